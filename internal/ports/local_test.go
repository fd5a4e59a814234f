package ports

import (
	"context"
	"testing"

	"zerolock/internal/errors"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newQuietLogger 测试用的静默日志器
func newQuietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func TestLocalBalanceProbe(t *testing.T) {
	probe := NewLocalBalanceProbe()

	// 未知目标
	_, err := probe.Probe(context.Background(), "missing")
	assert.Equal(t, errors.KindNotFound, errors.KindOf(err))

	probe.SetBalance("target-1", 100)
	balance, err := probe.Probe(context.Background(), "target-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(100), balance)

	// 故障模式
	probe.SetFailing(true)
	_, err = probe.Probe(context.Background(), "target-1")
	assert.Equal(t, errors.KindNetworkError, errors.KindOf(err))
}

func TestLocalDeployPort(t *testing.T) {
	probe := NewLocalBalanceProbe()
	deploy := NewLocalDeployPort(probe, 500)

	target, err := deploy.Deploy(context.Background(), []byte{0x00}, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, target)

	// 部署后目标余额已登记
	balance, err := probe.Probe(context.Background(), target)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), balance)

	// 每次部署生成不同标识
	target2, err := deploy.Deploy(context.Background(), []byte{0x00}, nil)
	require.NoError(t, err)
	assert.NotEqual(t, target, target2)

	// 空镜像拒绝
	_, err = deploy.Deploy(context.Background(), nil, nil)
	assert.Equal(t, errors.KindInvalidInput, errors.KindOf(err))

	// 故障模式
	deploy.SetFailing(true)
	_, err = deploy.Deploy(context.Background(), []byte{0x00}, nil)
	assert.Equal(t, errors.KindNetworkError, errors.KindOf(err))
}

func TestManualClock(t *testing.T) {
	clock := NewManualClock(1000)
	assert.Equal(t, int64(1000), clock.Now())

	clock.Advance(500)
	assert.Equal(t, int64(1500), clock.Now())

	clock.Set(42)
	assert.Equal(t, int64(42), clock.Now())
}

func TestEthBalanceProbe_RejectsBadTarget(t *testing.T) {
	logger := newQuietLogger()

	probe, err := NewEthBalanceProbe([]*EthNodeConfig{
		{Name: "primary", URL: "http://127.0.0.1:1", Priority: 1},
	}, logger)
	require.NoError(t, err)
	defer probe.Close()

	// 非十六进制地址直接拒绝，不触发网络调用
	_, err = probe.Probe(context.Background(), "not-an-address")
	assert.Equal(t, errors.KindInvalidInput, errors.KindOf(err))
}

func TestNewEthBalanceProbe_RequiresNodes(t *testing.T) {
	_, err := NewEthBalanceProbe(nil, newQuietLogger())
	assert.Error(t, err)
}
