// Package monitor 设备在线状态监控
package monitor

import (
	"context"
	"sync"
	"time"

	"babyguardian-vitals/internal/metrics"
	"babyguardian-vitals/internal/models"

	"go.uber.org/zap"
)

// Broadcaster 上下线事件的分发出口（SubscriberHub）
type Broadcaster interface {
	Broadcast(deviceID, event string, payload interface{})
}

// Options 监控配置
type Options struct {
	Timeout       time.Duration // 无活动超过该时长判定离线
	SweepInterval time.Duration
}

// LivenessMonitor 设备在线监控器
// 状态变化在锁内计算并入队，事件在释放锁后按入队顺序广播
type LivenessMonitor struct {
	opts        Options
	broadcaster Broadcaster
	metrics     *metrics.Metrics
	logger      *zap.Logger
	now         func() time.Time

	mu       sync.Mutex
	states   map[string]*models.ConnectionState
	pending  []transition
	flushing bool // 已有调用方在发送 pending
}

// NewLivenessMonitor 创建在线监控器
func NewLivenessMonitor(opts Options, broadcaster Broadcaster, m *metrics.Metrics, logger *zap.Logger) *LivenessMonitor {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = 5 * time.Second
	}
	return &LivenessMonitor{
		opts:        opts,
		broadcaster: broadcaster,
		metrics:     m,
		logger:      logger,
		now:         time.Now,
		states:      make(map[string]*models.ConnectionState),
	}
}

type transition struct {
	deviceID  string
	connected bool
	at        time.Time
}

// RecordActivity 记录设备活动；从离线或未知变为在线时发出 device-connected
func (m *LivenessMonitor) RecordActivity(deviceID string) {
	deviceID = models.NormalizeDeviceID(deviceID)
	if deviceID == "" {
		return
	}
	now := m.now()

	m.mu.Lock()
	st, ok := m.states[deviceID]
	if !ok {
		st = &models.ConnectionState{DeviceID: deviceID}
		m.states[deviceID] = st
	}
	st.LastSeen = now
	if !st.Connected {
		st.Connected = true
		m.pending = append(m.pending, transition{deviceID: deviceID, connected: true, at: now})
	}
	m.mu.Unlock()

	m.flush()
}

// MarkDisconnected 强制置为离线并总是发出 device-disconnected
func (m *LivenessMonitor) MarkDisconnected(deviceID string) {
	deviceID = models.NormalizeDeviceID(deviceID)
	if deviceID == "" {
		return
	}
	now := m.now()

	m.mu.Lock()
	st, ok := m.states[deviceID]
	if !ok {
		st = &models.ConnectionState{DeviceID: deviceID, LastSeen: now}
		m.states[deviceID] = st
	}
	st.Connected = false
	m.pending = append(m.pending, transition{deviceID: deviceID, connected: false, at: now})
	m.mu.Unlock()

	m.flush()
}

// Sweep 将超时未活动的在线设备置为离线，返回本次离线的设备数
func (m *LivenessMonitor) Sweep() int {
	now := m.now()

	var expired []string
	m.mu.Lock()
	for id, st := range m.states {
		if st.Connected && now.Sub(st.LastSeen) > m.opts.Timeout {
			st.Connected = false
			expired = append(expired, id)
			m.pending = append(m.pending, transition{deviceID: id, connected: false, at: now})
		}
	}
	m.mu.Unlock()

	for _, id := range expired {
		m.logger.Info("Device timed out",
			zap.String("device_id", id),
			zap.Duration("timeout", m.opts.Timeout),
		)
	}
	m.flush()
	return len(expired)
}

// flush 按入队顺序广播 pending；另一个调用方正在发送时直接返回，由它发完
// 广播不能在 m.mu 内进行：Hub.Subscribe 持有 hub 锁时会读取 AllStatuses
func (m *LivenessMonitor) flush() {
	m.mu.Lock()
	if m.flushing {
		m.mu.Unlock()
		return
	}
	m.flushing = true
	for len(m.pending) > 0 {
		t := m.pending[0]
		m.pending = m.pending[1:]
		m.mu.Unlock()
		m.emit(t)
		m.mu.Lock()
	}
	m.pending = nil
	m.flushing = false
	m.mu.Unlock()
}

func (m *LivenessMonitor) emit(t transition) {
	event := models.EventDeviceDisconnected
	if t.connected {
		event = models.EventDeviceConnected
	}
	m.logger.Debug("Device connection changed",
		zap.String("device_id", t.deviceID),
		zap.Bool("connected", t.connected),
	)
	m.metrics.DeviceTransition(t.connected)
	if m.broadcaster != nil {
		m.broadcaster.Broadcast(t.deviceID, event, models.NewConnectionStatus(t.deviceID, t.connected, t.at))
	}
}

// IsConnected 设备是否在线，未知设备为 false
func (m *LivenessMonitor) IsConnected(deviceID string) bool {
	deviceID = models.NormalizeDeviceID(deviceID)

	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[deviceID]
	return ok && st.Connected
}

// AllStatuses 全部已知设备的在线状态副本
func (m *LivenessMonitor) AllStatuses() map[string]bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]bool, len(m.states))
	for id, st := range m.states {
		out[id] = st.Connected
	}
	return out
}

// State 单个设备的状态副本
func (m *LivenessMonitor) State(deviceID string) (models.ConnectionState, bool) {
	deviceID = models.NormalizeDeviceID(deviceID)

	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[deviceID]
	if !ok {
		return models.ConnectionState{}, false
	}
	return *st, true
}

// Run 按 SweepInterval 定时扫描，直到 ctx 取消
func (m *LivenessMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.opts.SweepInterval)
	defer ticker.Stop()

	m.logger.Info("Liveness monitor started",
		zap.Duration("timeout", m.opts.Timeout),
		zap.Duration("sweep_interval", m.opts.SweepInterval),
	)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}
