package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

const (
	// DefaultDBPath 默认数据库路径
	DefaultDBPath = "./data/zerolock.db"

	// 各组件的存储桶
	VaultBalancesBucket           = "vault_balances"
	VaultLocksBucket              = "vault_locks"
	VaultTransactionsBucket       = "vault_transactions"
	ChallengesBucket              = "challenges"
	JudgeMonitoringBucket         = "judge_monitoring"
	JudgeEvaluationsBucket        = "judge_evaluations"
	JudgeDisputesBucket           = "judge_disputes"
	JudgeHistoryBucket            = "judge_history"
	LeaderboardProfilesBucket     = "leaderboard_profiles"
	LeaderboardNamesBucket        = "leaderboard_names"
	LeaderboardAchievementsBucket = "leaderboard_achievements"
	LeaderboardHistoryBucket      = "leaderboard_history"
	MetaBucket                    = "meta"
)

// allBuckets 启动时初始化的全部存储桶
var allBuckets = []string{
	VaultBalancesBucket,
	VaultLocksBucket,
	VaultTransactionsBucket,
	ChallengesBucket,
	JudgeMonitoringBucket,
	JudgeEvaluationsBucket,
	JudgeDisputesBucket,
	JudgeHistoryBucket,
	LeaderboardProfilesBucket,
	LeaderboardNamesBucket,
	LeaderboardAchievementsBucket,
	LeaderboardHistoryBucket,
	MetaBucket,
}

// Store 快照存储
// 组件在受控停机时写入快照，进程启动时恢复内存状态
type Store struct {
	db     *bolt.DB
	logger *logrus.Logger
	dbPath string
}

// NewStore 创建快照存储
func NewStore(dbPath string, logger *logrus.Logger) (*Store, error) {
	if dbPath == "" {
		dbPath = DefaultDBPath
	}

	// 确保目录存在
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("打开快照数据库失败: %w", err)
	}

	s := &Store{
		db:     db,
		logger: logger,
		dbPath: dbPath,
	}

	if err := s.initBuckets(); err != nil {
		db.Close()
		return nil, fmt.Errorf("初始化存储桶失败: %w", err)
	}

	logger.Infof("快照存储已初始化，数据库路径: %s", dbPath)
	return s, nil
}

// initBuckets 初始化存储桶
func (s *Store) initBuckets() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("创建存储桶 %s 失败: %w", name, err)
			}
		}
		return nil
	})
}

// PutJSON 以JSON形式保存一条记录
func (s *Store) PutJSON(bucket, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("序列化失败: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("存储桶 %s 不存在", bucket)
		}
		return b.Put([]byte(key), data)
	})
}

// PutJSONByID 以大端u64为键保存一条记录，保持键序与ID序一致
func (s *Store) PutJSONByID(bucket string, id uint64, value interface{}) error {
	return s.PutJSON(bucket, string(u64Key(id)), value)
}

// GetJSON 读取一条记录，返回是否存在
func (s *Store) GetJSON(bucket, key string, out interface{}) (bool, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("存储桶 %s 不存在", bucket)
		}
		if v := b.Get([]byte(key)); v != nil {
			data = append(data, v...)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	if data == nil {
		return false, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("反序列化失败: %w", err)
	}
	return true, nil
}

// ForEach 遍历存储桶内全部记录
func (s *Store) ForEach(bucket string, fn func(key, value []byte) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("存储桶 %s 不存在", bucket)
		}
		return b.ForEach(fn)
	})
}

// ReplaceAll 以一组记录整体替换存储桶内容，快照写入用
func (s *Store) ReplaceAll(bucket string, entries map[string][]byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket([]byte(bucket)); err != nil {
			return fmt.Errorf("清空存储桶 %s 失败: %w", bucket, err)
		}
		b, err := tx.CreateBucket([]byte(bucket))
		if err != nil {
			return fmt.Errorf("重建存储桶 %s 失败: %w", bucket, err)
		}
		for k, v := range entries {
			if err := b.Put([]byte(k), v); err != nil {
				return err
			}
		}
		return nil
	})
}

// PutCounter 保存单调计数器
func (s *Store) PutCounter(name string, value uint64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(MetaBucket))
		if b == nil {
			return fmt.Errorf("存储桶 %s 不存在", MetaBucket)
		}
		return b.Put([]byte(name), u64Key(value))
	})
}

// GetCounter 读取单调计数器，缺省返回指定初值
func (s *Store) GetCounter(name string, fallback uint64) uint64 {
	value := fallback
	_ = s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(MetaBucket))
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(name)); len(v) == 8 {
			value = binary.BigEndian.Uint64(v)
		}
		return nil
	})
	return value
}

// u64Key 大端编码的u64键
func u64Key(v uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, v)
	return key
}

// IDKey 大端编码的u64键，供组件构造快照条目使用
func IDKey(v uint64) string {
	return string(u64Key(v))
}

// GetDBPath 获取数据库路径
func (s *Store) GetDBPath() string {
	return s.dbPath
}

// Close 关闭快照存储
func (s *Store) Close() error {
	if s.db != nil {
		s.logger.Info("关闭快照存储")
		return s.db.Close()
	}
	return nil
}
