// Package hub 推送订阅者管理与事件分发
package hub

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"babyguardian-vitals/internal/metrics"
	"babyguardian-vitals/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Sink 订阅者的推送通道（SSE 连接、WebSocket 连接等）
type Sink interface {
	Send(event string, payload []byte) error
}

// Filter 设备过滤器，nil 表示接收全部设备
type Filter func(deviceID string) bool

// AcceptDevices 只接收给定设备的过滤器
func AcceptDevices(ids ...string) Filter {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[models.NormalizeDeviceID(id)] = struct{}{}
	}
	return func(deviceID string) bool {
		_, ok := set[deviceID]
		return ok
	}
}

// StatusSource 设备连接状态快照来源
type StatusSource interface {
	AllStatuses() map[string]bool
}

// 移除原因
const (
	ReasonUnsubscribe = "unsubscribe"
	ReasonSendError   = "send_error"
	ReasonQueueFull   = "queue_full"
	ReasonShutdown    = "shutdown"
)

type message struct {
	event string
	data  []byte
}

// Subscriber 订阅者句柄
type Subscriber struct {
	id     string
	sink   Sink
	filter Filter
	queue  chan message

	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	mu       sync.Mutex
	reason   string
}

// ID 订阅者ID
func (s *Subscriber) ID() string { return s.id }

// Done 写协程退出后关闭
func (s *Subscriber) Done() <-chan struct{} { return s.done }

// Reason 被移除的原因，未移除时为空
func (s *Subscriber) Reason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

func (s *Subscriber) accepts(deviceID string) bool {
	return s.filter == nil || s.filter(deviceID)
}

// offer 非阻塞入队，队列满时返回 false
func (s *Subscriber) offer(m message) bool {
	select {
	case <-s.quit:
		return true
	default:
	}
	select {
	case s.queue <- m:
		return true
	default:
		return false
	}
}

func (s *Subscriber) stop(reason string) {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.reason = reason
		s.mu.Unlock()
		close(s.quit)
	})
}

// Options Hub 配置
type Options struct {
	QueueSize    int
	PingInterval time.Duration
}

// Hub 订阅者注册表，按设备过滤广播
type Hub struct {
	opts    Options
	metrics *metrics.Metrics
	logger  *zap.Logger

	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	status      StatusSource
	closed      bool // Run 已退出，不再接受订阅
}

// New 创建 Hub
func New(opts Options, m *metrics.Metrics, logger *zap.Logger) *Hub {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 20 * time.Second
	}
	return &Hub{
		opts:        opts,
		metrics:     m,
		logger:      logger,
		subscribers: make(map[string]*Subscriber),
	}
}

// SetStatusSource 设置订阅快照来源（通常为在线监控器）
func (h *Hub) SetStatusSource(src StatusSource) {
	h.mu.Lock()
	h.status = src
	h.mu.Unlock()
}

// Subscribe 注册订阅者，并立即推送其可见设备的当前状态
// 注册和快照在同一把锁内完成，期间的广播不会早于快照
func (h *Hub) Subscribe(sink Sink, filter Filter) *Subscriber {
	h.mu.Lock()

	if h.closed {
		h.mu.Unlock()
		sub := &Subscriber{
			id:     uuid.New().String(),
			sink:   sink,
			filter: filter,
			quit:   make(chan struct{}),
			done:   make(chan struct{}),
		}
		sub.stop(ReasonShutdown)
		close(sub.done)
		return sub
	}

	var snapshot map[string]bool
	if h.status != nil {
		snapshot = h.status.AllStatuses()
	}

	sub := &Subscriber{
		id:     uuid.New().String(),
		sink:   sink,
		filter: filter,
		queue:  make(chan message, h.opts.QueueSize+len(snapshot)),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	h.subscribers[sub.id] = sub

	ids := make([]string, 0, len(snapshot))
	for id := range snapshot {
		if sub.accepts(id) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	for _, id := range ids {
		data, _ := json.Marshal(models.InitialStatusPayload{
			Type:      models.PushTypeInitialStatus,
			DeviceID:  id,
			Connected: snapshot[id],
		})
		sub.offer(message{event: models.EventInitialStatus, data: data})
	}

	h.mu.Unlock()

	h.metrics.SubscriberAdded()
	go h.pump(sub)

	h.logger.Debug("Subscriber registered",
		zap.String("subscriber_id", sub.id),
		zap.Int("initial_devices", len(ids)),
	)
	return sub
}

// Unsubscribe 注销订阅者，可重复调用
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.remove(sub, ReasonUnsubscribe)
}

func (h *Hub) remove(sub *Subscriber, reason string) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	current, ok := h.subscribers[sub.id]
	if ok && current == sub {
		delete(h.subscribers, sub.id)
	}
	h.mu.Unlock()

	sub.stop(reason)
	if ok && current == sub {
		h.metrics.SubscriberRemoved(reason)
		h.logger.Debug("Subscriber removed",
			zap.String("subscriber_id", sub.id),
			zap.String("reason", reason),
		)
	}
}

func (h *Hub) pump(sub *Subscriber) {
	defer close(sub.done)
	for {
		select {
		case <-sub.quit:
			return
		case m := <-sub.queue:
			if err := sub.sink.Send(m.event, m.data); err != nil {
				h.logger.Debug("Push send failed, dropping subscriber",
					zap.String("subscriber_id", sub.id),
					zap.String("event", m.event),
					zap.Error(err),
				)
				h.remove(sub, ReasonSendError)
				return
			}
		}
	}
}

func encode(payload interface{}) ([]byte, error) {
	switch p := payload.(type) {
	case []byte:
		return p, nil
	case json.RawMessage:
		return p, nil
	default:
		return json.Marshal(payload)
	}
}

// Broadcast 向接收该设备的订阅者推送事件
func (h *Hub) Broadcast(deviceID, event string, payload interface{}) {
	h.deliver(event, payload, func(s *Subscriber) bool { return s.accepts(deviceID) })
}

// BroadcastUnfiltered 向全部订阅者推送事件
func (h *Hub) BroadcastUnfiltered(event string, payload interface{}) {
	h.deliver(event, payload, func(*Subscriber) bool { return true })
}

func (h *Hub) deliver(event string, payload interface{}, match func(*Subscriber) bool) {
	data, err := encode(payload)
	if err != nil {
		h.logger.Error("Failed to encode push payload", zap.String("event", event), zap.Error(err))
		return
	}

	h.mu.RLock()
	targets := make([]*Subscriber, 0, len(h.subscribers))
	for _, s := range h.subscribers {
		if match(s) {
			targets = append(targets, s)
		}
	}
	h.mu.RUnlock()

	m := message{event: event, data: data}
	for _, s := range targets {
		if !s.offer(m) {
			h.logger.Warn("Subscriber queue full, dropping subscriber",
				zap.String("subscriber_id", s.id),
				zap.String("event", event),
			)
			h.remove(s, ReasonQueueFull)
		}
	}
}

// Count 当前订阅者数量
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Run 定时发送保活 ping，直到 ctx 取消；退出时移除全部订阅者
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case now := <-ticker.C:
			h.BroadcastUnfiltered(models.EventPing, models.PingPayload{
				Type:      models.PushTypePing,
				Timestamp: now.UnixMilli(),
			})
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	h.closed = true
	subs := make([]*Subscriber, 0, len(h.subscribers))
	for _, s := range h.subscribers {
		subs = append(subs, s)
	}
	h.mu.Unlock()

	for _, s := range subs {
		h.remove(s, ReasonShutdown)
	}
}
