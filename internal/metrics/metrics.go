// Package metrics 服务运行指标（Prometheus）
// 所有方法在 *Metrics 为 nil 时为空操作，测试中可直接传 nil
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "babyguardian"

// Metrics 指标集合
type Metrics struct {
	registry *prometheus.Registry

	readings          *prometheus.CounterVec
	alerts            *prometheus.CounterVec
	transitions       *prometheus.CounterVec
	subscribers       prometheus.Gauge
	droppedSubs       *prometheus.CounterVec
	realtimeRequests  *prometheus.CounterVec
	realtimeInFlight  prometheus.Gauge
	streamPublishErrs *prometheus.CounterVec
}

// New 创建并注册指标
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		readings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "readings_total",
			Help:      "Telemetry readings processed, by result",
		}, []string{"result"}),

		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "fired_total",
			Help:      "Threshold alerts fired, by type",
		}, []string{"type"}),

		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "liveness",
			Name:      "transitions_total",
			Help:      "Device connection transitions, by resulting state",
		}, []string{"state"}),

		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "subscribers",
			Help:      "Currently registered push subscribers",
		}),

		droppedSubs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "subscribers_removed_total",
			Help:      "Push subscribers removed, by reason",
		}, []string{"reason"}),

		realtimeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "requests_total",
			Help:      "Synchronous read requests, by outcome",
		}, []string{"outcome"}),

		realtimeInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "waiters",
			Help:      "Outstanding synchronous read waiters",
		}),

		streamPublishErrs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "publish_errors_total",
			Help:      "Redis stream publish failures, by stream",
		}, []string{"stream"}),
	}

	m.registry.MustRegister(
		m.readings,
		m.alerts,
		m.transitions,
		m.subscribers,
		m.droppedSubs,
		m.realtimeRequests,
		m.realtimeInFlight,
		m.streamPublishErrs,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry 底层注册表
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler /metrics 处理器
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ReadingProcessed result: ok / clamped / test / rejected / invalid / malformed
func (m *Metrics) ReadingProcessed(result string) {
	if m == nil {
		return
	}
	m.readings.WithLabelValues(result).Inc()
}

func (m *Metrics) AlertFired(alertType string) {
	if m == nil {
		return
	}
	m.alerts.WithLabelValues(alertType).Inc()
}

func (m *Metrics) DeviceTransition(connected bool) {
	if m == nil {
		return
	}
	state := "disconnected"
	if connected {
		state = "connected"
	}
	m.transitions.WithLabelValues(state).Inc()
}

func (m *Metrics) SubscriberAdded() {
	if m == nil {
		return
	}
	m.subscribers.Inc()
}

// SubscriberRemoved reason: unsubscribe / send_error / queue_full
func (m *Metrics) SubscriberRemoved(reason string) {
	if m == nil {
		return
	}
	m.subscribers.Dec()
	m.droppedSubs.WithLabelValues(reason).Inc()
}

func (m *Metrics) RealtimeRequest(outcome string) {
	if m == nil {
		return
	}
	m.realtimeRequests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RealtimeWaiters(n int) {
	if m == nil {
		return
	}
	m.realtimeInFlight.Set(float64(n))
}

func (m *Metrics) StreamPublishFailed(stream string) {
	if m == nil {
		return
	}
	m.streamPublishErrs.WithLabelValues(stream).Inc()
}
