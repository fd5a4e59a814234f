package config

import (
	"fmt"
	"os"

	"zerolock/internal/events"
	"zerolock/internal/logging"
	"zerolock/internal/ports"
	"zerolock/internal/scheduler"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config 主配置
type Config struct {
	Platform   *PlatformConfig    `mapstructure:"platform"`
	Blockchain *BlockchainConfig  `mapstructure:"blockchain"`
	Scheduler  *scheduler.Config  `mapstructure:"scheduler"`
	Events     *events.FeedConfig `mapstructure:"events"`
	API        *APIConfig         `mapstructure:"api"`
	Store      *StoreConfig       `mapstructure:"store"`
	Logging    *logging.LogConfig `mapstructure:"logging"`
}

// PlatformConfig 平台配置
type PlatformConfig struct {
	Mode         string   `mapstructure:"mode"`          // local 或 eth，决定探针与部署端口实现
	Admins       []string `mapstructure:"admins"`        // 初始管理员
	FeeRecipient string   `mapstructure:"fee_recipient"` // 平台手续费入账方
}

// BlockchainConfig 区块链探针配置，eth 模式使用
type BlockchainConfig struct {
	Nodes []*ports.EthNodeConfig `mapstructure:"nodes"`
}

// APIConfig API服务配置
type APIConfig struct {
	Port int `mapstructure:"port"`
}

// StoreConfig 快照存储配置
type StoreConfig struct {
	Path    string `mapstructure:"path"`
	Restore bool   `mapstructure:"restore"` // 启动时是否从快照恢复
}

// LoadConfig 加载配置（自动检测配置源）
// 优先从 ZEROLOCK_DB_DSN 指向的数据库加载，其次回退到YAML文件
func LoadConfig(configPath string) (*Config, error) {
	dbDSN := os.Getenv("ZEROLOCK_DB_DSN")
	if dbDSN != "" {
		logger := logrus.New()
		dbConfig, err := NewDatabaseConfig(dbDSN, logger)
		if err != nil {
			return nil, fmt.Errorf("连接配置数据库失败: %w", err)
		}
		defer dbConfig.Close()

		config, err := dbConfig.LoadConfig()
		if err != nil {
			return nil, fmt.Errorf("从数据库加载配置失败: %w", err)
		}

		logger.Info("已从数据库加载配置")
		return config, nil
	}

	return LoadConfigFromFile(configPath)
}

// LoadConfigFromFile 从文件加载配置
func LoadConfigFromFile(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return GetDefaultConfig(), nil
	}

	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	config := GetDefaultConfig()
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	return config, nil
}

// GetDefaultConfig 获取默认配置
func GetDefaultConfig() *Config {
	return &Config{
		Platform: &PlatformConfig{
			Mode:         "local",
			Admins:       []string{},
			FeeRecipient: "",
		},
		Blockchain: &BlockchainConfig{
			Nodes: []*ports.EthNodeConfig{},
		},
		Scheduler: &scheduler.Config{
			TickInterval:  "10s",
			SweepInterval: "30s",
		},
		Events: &events.FeedConfig{
			Format:    "noop",
			Directory: "./outputs",
			Brokers:   []string{"localhost:9092"},
			Topics: map[string]string{
				"challenges":  "zerolock_challenges",
				"attacks":     "zerolock_attacks",
				"settlements": "zerolock_settlements",
			},
		},
		API: &APIConfig{
			Port: 8080,
		},
		Store: &StoreConfig{
			Path:    "./data/zerolock.db",
			Restore: true,
		},
		Logging: &logging.LogConfig{
			Level:      "info",
			Format:     "json",
			Output:     "stdout",
			Rotation:   false,
			MaxSize:    100,
			MaxAge:     30,
			MaxBackups: 3,
		},
	}
}
