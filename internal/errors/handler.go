package errors

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrorHandler 错误处理器
// 各组件共享一个实例，负责统计、回调与按类别的处理策略
type ErrorHandler struct {
	logger *logrus.Logger
	stats  *ErrorStats
	mu     sync.RWMutex

	// 错误处理策略
	strategies map[Kind]ErrorStrategy

	// 错误回调
	callbacks []ErrorCallback

	// 阈值设置
	thresholds map[Severity]ThresholdConfig
}

// ErrorStrategy 错误处理策略
type ErrorStrategy interface {
	Handle(ctx context.Context, err *PlatformError) error
}

// ErrorCallback 错误回调函数
type ErrorCallback func(err *PlatformError)

// ThresholdConfig 阈值配置
type ThresholdConfig struct {
	MaxErrorsPerHour     int           `json:"max_errors_per_hour"`
	MaxConsecutiveErrors int           `json:"max_consecutive_errors"`
	CooldownPeriod       time.Duration `json:"cooldown_period"`
}

// LoggingStrategy 日志记录策略
type LoggingStrategy struct {
	logger *logrus.Logger
}

// NewErrorHandler 创建错误处理器
func NewErrorHandler(logger *logrus.Logger) *ErrorHandler {
	eh := &ErrorHandler{
		logger:     logger,
		stats:      NewErrorStats(),
		strategies: make(map[Kind]ErrorStrategy),
		callbacks:  make([]ErrorCallback, 0),
		thresholds: make(map[Severity]ThresholdConfig),
	}

	// 设置默认策略
	eh.setupDefaultStrategies()

	// 设置默认阈值
	eh.setupDefaultThresholds()

	return eh
}

// setupDefaultStrategies 设置默认处理策略
func (eh *ErrorHandler) setupDefaultStrategies() {
	// 所有类别默认记录日志，端口错误由调用方的重试器处理
	loggingStrategy := &LoggingStrategy{logger: eh.logger}
	for kind := range kindNames {
		eh.strategies[kind] = loggingStrategy
	}
}

// setupDefaultThresholds 设置默认阈值
func (eh *ErrorHandler) setupDefaultThresholds() {
	eh.thresholds[SeverityLow] = ThresholdConfig{
		MaxErrorsPerHour:     100,
		MaxConsecutiveErrors: 20,
		CooldownPeriod:       5 * time.Minute,
	}

	eh.thresholds[SeverityMedium] = ThresholdConfig{
		MaxErrorsPerHour:     50,
		MaxConsecutiveErrors: 10,
		CooldownPeriod:       10 * time.Minute,
	}

	eh.thresholds[SeverityHigh] = ThresholdConfig{
		MaxErrorsPerHour:     20,
		MaxConsecutiveErrors: 5,
		CooldownPeriod:       30 * time.Minute,
	}

	eh.thresholds[SeverityCritical] = ThresholdConfig{
		MaxErrorsPerHour:     5,
		MaxConsecutiveErrors: 2,
		CooldownPeriod:       time.Hour,
	}
}

// HandleError 处理错误
func (eh *ErrorHandler) HandleError(ctx context.Context, err error) error {
	platformErr := AsPlatformError(err)

	// 记录错误统计
	eh.recordError(platformErr)

	// 检查阈值
	if eh.checkThresholds(platformErr) {
		eh.logger.Warnf("错误达到阈值限制: %s", platformErr.Error())
	}

	// 执行回调
	eh.executeCallbacks(platformErr)

	// 执行处理策略
	return eh.executeStrategy(ctx, platformErr)
}

// recordError 记录错误
func (eh *ErrorHandler) recordError(err *PlatformError) {
	eh.mu.Lock()
	defer eh.mu.Unlock()
	eh.stats.RecordError(err)
}

// checkThresholds 检查阈值
func (eh *ErrorHandler) checkThresholds(err *PlatformError) bool {
	threshold, exists := eh.thresholds[err.Severity]
	if !exists {
		return false
	}

	hourlyRate := eh.errorRate(time.Hour)
	return hourlyRate > float64(threshold.MaxErrorsPerHour)
}

// errorRate 计算时间窗口内的错误率（错误/小时）
func (eh *ErrorHandler) errorRate(window time.Duration) float64 {
	eh.mu.RLock()
	defer eh.mu.RUnlock()

	cutoff := time.Now().Add(-window)
	recentCount := 0
	for _, err := range eh.stats.RecentErrors {
		if err.Timestamp.After(cutoff) {
			recentCount++
		}
	}

	hours := window.Hours()
	if hours == 0 {
		return float64(recentCount)
	}
	return float64(recentCount) / hours
}

// executeCallbacks 执行错误回调
func (eh *ErrorHandler) executeCallbacks(err *PlatformError) {
	eh.mu.RLock()
	callbacks := make([]ErrorCallback, len(eh.callbacks))
	copy(callbacks, eh.callbacks)
	eh.mu.RUnlock()

	for _, callback := range callbacks {
		go func(cb ErrorCallback) {
			defer func() {
				if r := recover(); r != nil {
					eh.logger.Errorf("错误回调执行时发生panic: %v", r)
				}
			}()
			cb(err)
		}(callback)
	}
}

// executeStrategy 执行处理策略
func (eh *ErrorHandler) executeStrategy(ctx context.Context, err *PlatformError) error {
	eh.mu.RLock()
	strategy, exists := eh.strategies[err.Kind]
	eh.mu.RUnlock()

	if !exists {
		strategy = &LoggingStrategy{logger: eh.logger}
	}

	return strategy.Handle(ctx, err)
}

// Handle 实现LoggingStrategy的处理方法
func (ls *LoggingStrategy) Handle(ctx context.Context, err *PlatformError) error {
	logEntry := ls.logger.WithFields(logrus.Fields{
		"error_kind":   err.Kind.String(),
		"error_code":   err.Code,
		"component":    err.Component,
		"retryable":    err.Retryable,
		"challenge_id": err.ChallengeID,
		"tx_id":        err.TxID,
		"context":      err.Context,
	})

	switch err.Severity {
	case SeverityLow:
		logEntry.Debug(err.Message)
	case SeverityMedium:
		logEntry.Warn(err.Message)
	case SeverityHigh:
		logEntry.Error(err.Message)
	case SeverityCritical:
		// 不变量破坏必须留下可追溯的持久记录，但核心进程不自行退出
		logEntry.WithField("invariant_breach", true).Error(err.Message)
	}

	return err
}

// AddCallback 添加错误回调
func (eh *ErrorHandler) AddCallback(callback ErrorCallback) {
	eh.mu.Lock()
	defer eh.mu.Unlock()
	eh.callbacks = append(eh.callbacks, callback)
}

// SetStrategy 设置错误处理策略
func (eh *ErrorHandler) SetStrategy(kind Kind, strategy ErrorStrategy) {
	eh.mu.Lock()
	defer eh.mu.Unlock()
	eh.strategies[kind] = strategy
}

// GetStats 获取错误统计信息
func (eh *ErrorHandler) GetStats() *ErrorStats {
	eh.mu.RLock()
	defer eh.mu.RUnlock()
	return eh.stats
}

// SetThreshold 设置阈值
func (eh *ErrorHandler) SetThreshold(severity Severity, config ThresholdConfig) {
	eh.mu.Lock()
	defer eh.mu.Unlock()
	eh.thresholds[severity] = config
}

// ClearStats 清除统计信息
func (eh *ErrorHandler) ClearStats() {
	eh.mu.Lock()
	defer eh.mu.Unlock()
	eh.stats = NewErrorStats()
}
