package config

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"zerolock/internal/ports"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// DatabaseConfig 数据库配置管理器
// 平台运维侧把配置集中在postgres，进程启动时拉取
type DatabaseConfig struct {
	DB     *sql.DB
	logger *logrus.Logger
}

// NewDatabaseConfig 创建数据库配置管理器
func NewDatabaseConfig(dsn string, logger *logrus.Logger) (*DatabaseConfig, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	// 测试连接
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("数据库连接测试失败: %w", err)
	}

	return &DatabaseConfig{
		DB:     db,
		logger: logger,
	}, nil
}

// LoadConfig 从数据库加载完整配置
// 缺失的配置项保持默认值
func (dc *DatabaseConfig) LoadConfig() (*Config, error) {
	config := GetDefaultConfig()

	nodes, err := dc.loadBlockchainNodes()
	if err != nil {
		return nil, fmt.Errorf("加载节点配置失败: %w", err)
	}
	config.Blockchain = &BlockchainConfig{Nodes: nodes}

	if err := dc.loadPlatformConfig(config); err != nil {
		return nil, fmt.Errorf("加载平台配置失败: %w", err)
	}

	return config, nil
}

// loadBlockchainNodes 加载探针节点配置
func (dc *DatabaseConfig) loadBlockchainNodes() ([]*ports.EthNodeConfig, error) {
	query := `SELECT name, url, priority FROM blockchain_nodes WHERE is_active = true ORDER BY priority`
	rows, err := dc.DB.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var nodes []*ports.EthNodeConfig
	for rows.Next() {
		var node ports.EthNodeConfig
		if err := rows.Scan(&node.Name, &node.URL, &node.Priority); err != nil {
			return nil, err
		}
		nodes = append(nodes, &node)
	}

	return nodes, rows.Err()
}

// loadPlatformConfig 加载键值形式的平台配置
func (dc *DatabaseConfig) loadPlatformConfig(config *Config) error {
	query := `SELECT config_key, config_value FROM platform_config WHERE is_active = true`
	rows, err := dc.DB.Query(query)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return err
		}
		dc.applyConfigEntry(config, key, value)
	}

	return rows.Err()
}

// applyConfigEntry 应用单条配置
func (dc *DatabaseConfig) applyConfigEntry(config *Config, key, value string) {
	switch key {
	case "platform_mode":
		config.Platform.Mode = value
	case "platform_admins":
		config.Platform.Admins = splitNonEmpty(value)
	case "fee_recipient":
		config.Platform.FeeRecipient = value
	case "tick_interval":
		config.Scheduler.TickInterval = value
	case "sweep_interval":
		config.Scheduler.SweepInterval = value
	case "events_format":
		config.Events.Format = value
	case "events_brokers":
		config.Events.Brokers = splitNonEmpty(value)
	case "api_port":
		if v, err := strconv.Atoi(value); err == nil {
			config.API.Port = v
		}
	case "store_path":
		config.Store.Path = value
	case "store_restore":
		if v, err := strconv.ParseBool(value); err == nil {
			config.Store.Restore = v
		}
	case "log_level":
		config.Logging.Level = value
	case "log_format":
		config.Logging.Format = value
	default:
		dc.logger.Debugf("忽略未知配置项: %s", key)
	}
}

// splitNonEmpty 按逗号切分并去掉空项
func splitNonEmpty(value string) []string {
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// Close 关闭数据库连接
func (dc *DatabaseConfig) Close() error {
	if dc.DB != nil {
		return dc.DB.Close()
	}
	return nil
}
