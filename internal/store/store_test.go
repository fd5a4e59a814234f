package store

import (
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	s, err := NewStore(filepath.Join(t.TempDir(), "test.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

type record struct {
	Name  string `json:"name"`
	Value uint64 `json:"value"`
}

func TestPutGetJSON(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.PutJSON(MetaBucket, "key-1", &record{Name: "a", Value: 42}))

	var out record
	found, err := s.GetJSON(MetaBucket, "key-1", &out)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "a", out.Name)
	assert.Equal(t, uint64(42), out.Value)

	// 不存在的键
	found, err = s.GetJSON(MetaBucket, "missing", &out)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestPutJSONByID_KeyOrder(t *testing.T) {
	s := newTestStore(t)

	// 大端u64键保证遍历顺序与ID顺序一致
	require.NoError(t, s.PutJSONByID(ChallengesBucket, 300, &record{Value: 300}))
	require.NoError(t, s.PutJSONByID(ChallengesBucket, 2, &record{Value: 2}))
	require.NoError(t, s.PutJSONByID(ChallengesBucket, 45, &record{Value: 45}))

	order := make([]string, 0)
	err := s.ForEach(ChallengesBucket, func(key, value []byte) error {
		order = append(order, string(key))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{IDKey(2), IDKey(45), IDKey(300)}, order)
}

func TestReplaceAll(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.PutJSON(VaultBalancesBucket, "old", &record{}))

	// 整体替换清掉旧内容
	require.NoError(t, s.ReplaceAll(VaultBalancesBucket, map[string][]byte{
		"new-1": []byte(`{"name":"x"}`),
		"new-2": []byte(`{"name":"y"}`),
	}))

	keys := make([]string, 0)
	err := s.ForEach(VaultBalancesBucket, func(key, value []byte) error {
		keys = append(keys, string(key))
		return nil
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"new-1", "new-2"}, keys)
}

func TestCounters(t *testing.T) {
	s := newTestStore(t)

	// 缺省返回指定初值
	assert.Equal(t, uint64(1), s.GetCounter("next_id", 1))

	require.NoError(t, s.PutCounter("next_id", 17))
	assert.Equal(t, uint64(17), s.GetCounter("next_id", 1))
}

func TestReopenPersists(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	path := filepath.Join(t.TempDir(), "persist.db")

	s, err := NewStore(path, logger)
	require.NoError(t, err)
	require.NoError(t, s.PutCounter("c", 9))
	require.NoError(t, s.Close())

	// 重新打开后数据仍在
	s2, err := NewStore(path, logger)
	require.NoError(t, err)
	defer s2.Close()
	assert.Equal(t, uint64(9), s2.GetCounter("c", 1))
}
