package monitor

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 指标收集器
type Metrics struct {
	eventsDispatched *prometheus.CounterVec
	eventsDropped    *prometheus.CounterVec
	handlerErrors    *prometheus.CounterVec
	eventQueueSize   prometheus.Gauge

	ordersTotal         *prometheus.CounterVec
	connectionState     *prometheus.GaugeVec
	reconnectAttempts   *prometheus.CounterVec
	subscriptionsActive *prometheus.GaugeVec
	pollingFallback     *prometheus.GaugeVec

	natsConnected prometheus.Gauge
}

// NewMetrics 创建指标收集器
func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		eventsDispatched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_dispatched_total",
				Help:      "Total number of events dispatched by the event bus",
			},
			[]string{"type"},
		),
		eventsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_dropped_total",
				Help:      "Total number of events dropped because the queue was full",
			},
			[]string{"type"},
		),
		handlerErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "handler_errors_total",
				Help:      "Total number of recovered event handler panics",
			},
			[]string{"type"},
		),
		eventQueueSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "event_queue_size",
				Help:      "Current event bus queue backlog",
			},
		),
		ordersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "orders_total",
				Help:      "Total number of order snapshots by status",
			},
			[]string{"adapter", "status"},
		),
		connectionState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "connection_state",
				Help:      "Streaming connection state (0=disconnected 1=connecting 2=connected 3=error 4=reconnecting)",
			},
			[]string{"adapter"},
		),
		reconnectAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reconnect_attempts_total",
				Help:      "Total number of reconnect attempts",
			},
			[]string{"adapter"},
		),
		subscriptionsActive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "subscriptions_active",
				Help:      "Current number of desired streaming subscriptions",
			},
			[]string{"adapter"},
		),
		pollingFallback: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "polling_fallback_active",
				Help:      "Whether the adapter degraded to the polling fallback (1=active)",
			},
			[]string{"adapter"},
		),
		natsConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "nats_connected",
				Help:      "NATS connection status (1=connected, 0=disconnected)",
			},
		),
	}

	prometheus.MustRegister(
		m.eventsDispatched,
		m.eventsDropped,
		m.handlerErrors,
		m.eventQueueSize,
		m.ordersTotal,
		m.connectionState,
		m.reconnectAttempts,
		m.subscriptionsActive,
		m.pollingFallback,
		m.natsConnected,
	)

	return m
}

func (m *Metrics) IncEventDispatched(eventType string) {
	m.eventsDispatched.WithLabelValues(eventType).Inc()
}

func (m *Metrics) IncEventDropped(eventType string) {
	m.eventsDropped.WithLabelValues(eventType).Inc()
}

func (m *Metrics) IncHandlerError(eventType string) {
	m.handlerErrors.WithLabelValues(eventType).Inc()
}

func (m *Metrics) SetEventQueueSize(size int) {
	m.eventQueueSize.Set(float64(size))
}

func (m *Metrics) IncOrderStatus(adapter, status string) {
	m.ordersTotal.WithLabelValues(adapter, status).Inc()
}

func (m *Metrics) SetConnectionState(adapter string, state int32) {
	m.connectionState.WithLabelValues(adapter).Set(float64(state))
}

func (m *Metrics) IncReconnectAttempt(adapter string) {
	m.reconnectAttempts.WithLabelValues(adapter).Inc()
}

func (m *Metrics) SetSubscriptionsActive(adapter string, count int) {
	m.subscriptionsActive.WithLabelValues(adapter).Set(float64(count))
}

func (m *Metrics) SetPollingFallback(adapter string, active bool) {
	v := 0.0
	if active {
		v = 1.0
	}
	m.pollingFallback.WithLabelValues(adapter).Set(v)
}

func (m *Metrics) SetNATSConnected(connected bool) {
	v := 0.0
	if connected {
		v = 1.0
	}
	m.natsConnected.Set(v)
}

var globalMetrics *Metrics
var metricsOnce sync.Once

// GetMetrics 获取全局指标收集器
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = NewMetrics("trade_engine")
	})
	return globalMetrics
}

// InitMetrics 初始化指标收集器（供 main 使用）
func InitMetrics() {
	GetMetrics()
}
