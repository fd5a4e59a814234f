package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Ticker 接受周期性余额检查的组件
type Ticker interface {
	Tick(ctx context.Context)
}

// Sweeper 接受过期清扫的组件
type Sweeper interface {
	SweepExpired(ctx context.Context)
}

// Config 调度配置
type Config struct {
	TickInterval  string `mapstructure:"tick_interval"`  // 裁决余额检查触发间隔
	SweepInterval string `mapstructure:"sweep_interval"` // 挑战过期清扫触发间隔
}

// DefaultConfig 默认调度配置
var DefaultConfig = &Config{
	TickInterval:  "10s",
	SweepInterval: "30s",
}

// Scheduler 周期调度器
// 以至少一次语义投递tick与清扫；组件自身按 last_check 去重，
// 因此触发间隔可以比组件的检查间隔更密
type Scheduler struct {
	logger  *logrus.Logger
	ticker  Ticker
	sweeper Sweeper

	tickInterval  time.Duration
	sweepInterval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	active bool
}

// NewScheduler 创建调度器
func NewScheduler(cfg *Config, ticker Ticker, sweeper Sweeper, logger *logrus.Logger) *Scheduler {
	if cfg == nil {
		cfg = DefaultConfig
	}

	tickInterval, err := time.ParseDuration(cfg.TickInterval)
	if err != nil || tickInterval <= 0 {
		tickInterval = 10 * time.Second
	}
	sweepInterval, err := time.ParseDuration(cfg.SweepInterval)
	if err != nil || sweepInterval <= 0 {
		sweepInterval = 30 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		logger:        logger,
		ticker:        ticker,
		sweeper:       sweeper,
		tickInterval:  tickInterval,
		sweepInterval: sweepInterval,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Start 启动调度循环
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return
	}
	s.active = true
	s.mu.Unlock()

	s.wg.Add(2)
	go s.tickLoop()
	go s.sweepLoop()

	s.logger.Infof("调度器已启动: tick=%v, sweep=%v", s.tickInterval, s.sweepInterval)
}

// tickLoop 余额检查循环
func (s *Scheduler) tickLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.ticker.Tick(s.ctx)
		case <-s.ctx.Done():
			return
		}
	}
}

// sweepLoop 过期清扫循环
func (s *Scheduler) sweepLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweeper.SweepExpired(s.ctx)
		case <-s.ctx.Done():
			return
		}
	}
}

// Stop 停止调度循环并等待退出
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.active = false
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	s.logger.Info("调度器已停止")
}
