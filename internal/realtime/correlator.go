// Package realtime 同步读取请求与异步上报的关联
package realtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"babyguardian-vitals/internal/metrics"
	"babyguardian-vitals/internal/models"

	"go.uber.org/zap"
)

// Outcome 等待结果
type Outcome string

const (
	OutcomeDelivered Outcome = "delivered"
	OutcomeTimeout   Outcome = "timeout"
	OutcomeReplaced  Outcome = "replaced"  // 被同设备的新请求取代
	OutcomeCancelled Outcome = "cancelled" // 调用方 ctx 结束
)

// Result 等待结果，仅 OutcomeDelivered 时 Reading 有效
type Result struct {
	Outcome Outcome
	Reading models.CleanReading
}

// OK 是否拿到读数
func (r Result) OK() bool {
	return r.Outcome == OutcomeDelivered
}

type waiter struct {
	reading  chan models.CleanReading // 容量 1，只会被写一次
	replaced chan struct{}
}

// Correlator 每个设备最多一个等待者，新请求原子替换旧请求
type Correlator struct {
	metrics *metrics.Metrics
	logger  *zap.Logger

	mu      sync.Mutex
	waiters map[string]*waiter
}

// NewCorrelator 创建关联器
func NewCorrelator(m *metrics.Metrics, logger *zap.Logger) *Correlator {
	return &Correlator{
		metrics: m,
		logger:  logger,
		waiters: make(map[string]*waiter),
	}
}

// Await 登记等待者，执行 trigger（下发读取指令），然后最多等待 timeout
// 等待者在 trigger 之前登记，设备回包不会丢失
// 返回的 error 仅来自 trigger；超时通过 Result.Outcome 表示
func (c *Correlator) Await(ctx context.Context, deviceID string, timeout time.Duration, trigger func() error) (Result, error) {
	deviceID = models.NormalizeDeviceID(deviceID)
	w := &waiter{
		reading:  make(chan models.CleanReading, 1),
		replaced: make(chan struct{}),
	}

	c.mu.Lock()
	if prev, ok := c.waiters[deviceID]; ok {
		close(prev.replaced)
	}
	c.waiters[deviceID] = w
	c.metrics.RealtimeWaiters(len(c.waiters))
	c.mu.Unlock()

	defer c.release(deviceID, w)

	if trigger != nil {
		if err := trigger(); err != nil {
			c.metrics.RealtimeRequest("trigger_error")
			return Result{}, fmt.Errorf("failed to trigger read for %s: %w", deviceID, err)
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var res Result
	select {
	case r := <-w.reading:
		res = Result{Outcome: OutcomeDelivered, Reading: r}
	case <-w.replaced:
		res = Result{Outcome: OutcomeReplaced}
	case <-timer.C:
		res = Result{Outcome: OutcomeTimeout}
	case <-ctx.Done():
		res = Result{Outcome: OutcomeCancelled}
	}

	c.metrics.RealtimeRequest(string(res.Outcome))
	c.logger.Debug("Realtime read finished",
		zap.String("device_id", deviceID),
		zap.String("outcome", string(res.Outcome)),
	)
	return res, nil
}

// release 仅在自己仍是当前等待者时移除
func (c *Correlator) release(deviceID string, w *waiter) {
	c.mu.Lock()
	if cur, ok := c.waiters[deviceID]; ok && cur == w {
		delete(c.waiters, deviceID)
	}
	c.metrics.RealtimeWaiters(len(c.waiters))
	c.mu.Unlock()
}

// Complete 将读数交给该设备当前的等待者；没有等待者时为空操作，返回 false
func (c *Correlator) Complete(deviceID string, reading models.CleanReading) bool {
	deviceID = models.NormalizeDeviceID(deviceID)

	c.mu.Lock()
	w, ok := c.waiters[deviceID]
	if ok {
		delete(c.waiters, deviceID)
	}
	c.metrics.RealtimeWaiters(len(c.waiters))
	c.mu.Unlock()

	if !ok {
		return false
	}
	w.reading <- reading
	return true
}

// Pending 当前等待者数量
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}
