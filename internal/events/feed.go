package events

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"zerolock/pkg/models"

	"github.com/sirupsen/logrus"
)

// Feed 平台事件输出接口
// 事件发布是尽力而为的，关键路径不等待也不回滚
type Feed interface {
	Publish(event *models.Event) error
	Close() error
}

// FeedConfig 事件输出配置
type FeedConfig struct {
	Format    string            `mapstructure:"format"`    // kafka, file, noop
	Directory string            `mapstructure:"directory"` // file 格式的输出目录
	Brokers   []string          `mapstructure:"brokers"`
	Topics    map[string]string `mapstructure:"topics"`
}

// NewFeed 按配置创建事件输出
func NewFeed(cfg *FeedConfig, logger *logrus.Logger) (Feed, error) {
	if cfg == nil {
		return &NoopFeed{}, nil
	}

	switch cfg.Format {
	case "kafka":
		return NewKafkaFeed(cfg.Brokers, cfg.Topics, logger)
	case "file":
		return NewFileFeed(cfg.Directory, logger)
	case "noop", "":
		return &NoopFeed{}, nil
	default:
		return nil, fmt.Errorf("不支持的事件输出格式: %s", cfg.Format)
	}
}

// NoopFeed 丢弃所有事件
type NoopFeed struct{}

// Publish 空操作
func (NoopFeed) Publish(event *models.Event) error { return nil }

// Close 空操作
func (NoopFeed) Close() error { return nil }

// FileFeed 文件事件输出，按行追加JSON
type FileFeed struct {
	logger *logrus.Logger
	file   *os.File
	mu     sync.Mutex
}

// NewFileFeed 创建文件事件输出
func NewFileFeed(directory string, logger *logrus.Logger) (*FileFeed, error) {
	if directory == "" {
		directory = "./outputs"
	}
	if err := os.MkdirAll(directory, 0755); err != nil {
		return nil, fmt.Errorf("创建输出目录失败: %w", err)
	}

	path := filepath.Join(directory, "platform_events.jsonl")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("打开事件文件失败: %w", err)
	}

	logger.Infof("文件事件输出已初始化: %s", path)
	return &FileFeed{logger: logger, file: file}, nil
}

// Publish 追加一条事件
func (f *FileFeed) Publish(event *models.Event) error {
	if event == nil {
		return nil
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("序列化事件失败: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, err := f.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("写入事件失败: %w", err)
	}
	return nil
}

// Close 关闭事件文件
func (f *FileFeed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.file != nil {
		return f.file.Close()
	}
	return nil
}
