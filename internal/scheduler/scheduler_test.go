package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

type countingTicker struct {
	ticks int64
}

func (c *countingTicker) Tick(ctx context.Context) {
	atomic.AddInt64(&c.ticks, 1)
}

type countingSweeper struct {
	sweeps int64
}

func (c *countingSweeper) SweepExpired(ctx context.Context) {
	atomic.AddInt64(&c.sweeps, 1)
}

func newQuietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func TestScheduler_DeliversTicksAndSweeps(t *testing.T) {
	ticker := &countingTicker{}
	sweeper := &countingSweeper{}

	s := NewScheduler(&Config{TickInterval: "10ms", SweepInterval: "10ms"}, ticker, sweeper, newQuietLogger())
	s.Start()

	time.Sleep(100 * time.Millisecond)
	s.Stop()

	assert.Greater(t, atomic.LoadInt64(&ticker.ticks), int64(0))
	assert.Greater(t, atomic.LoadInt64(&sweeper.sweeps), int64(0))

	// 停止后不再投递
	ticksAfterStop := atomic.LoadInt64(&ticker.ticks)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, ticksAfterStop, atomic.LoadInt64(&ticker.ticks))
}

func TestScheduler_InvalidIntervalFallsBack(t *testing.T) {
	s := NewScheduler(&Config{TickInterval: "bogus", SweepInterval: ""}, &countingTicker{}, &countingSweeper{}, newQuietLogger())

	assert.Equal(t, 10*time.Second, s.tickInterval)
	assert.Equal(t, 30*time.Second, s.sweepInterval)
}

func TestScheduler_StartStopIdempotent(t *testing.T) {
	s := NewScheduler(DefaultConfig, &countingTicker{}, &countingSweeper{}, newQuietLogger())

	s.Start()
	s.Start()
	s.Stop()
	s.Stop()
}
