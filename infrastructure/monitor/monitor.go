package monitor

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Monitor Prometheus监控指标收集器
type Monitor struct {
	registry *prometheus.Registry

	// 订单指标
	ordersPlaced     prometheus.Counter
	ordersRecorded   prometheus.Counter
	ordersCanceled   prometheus.Counter
	ordersReconciled *prometheus.CounterVec
	pendingOrders    prometheus.Gauge

	// 系统指标
	streamClients prometheus.Gauge
	restRequests  *prometheus.CounterVec
	restErrors    *prometheus.CounterVec
	restLatency   *prometheus.HistogramVec
}

// Config 监控配置
type Config struct {
	Namespace string
	Subsystem string
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Namespace: "desk",
	}
}

// New 创建新的Monitor实例，使用独立 registry。
func New(cfg Config) *Monitor {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Monitor{
		registry: reg,

		ordersPlaced: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "orders_placed_total",
			Help:      "券商接受的下单总数",
		}),
		ordersRecorded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "orders_recorded_total",
			Help:      "写入账本的非市价单总数",
		}),
		ordersCanceled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "orders_canceled_total",
			Help:      "券商确认的撤单总数",
		}),
		ordersReconciled: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "orders_reconciled_total",
				Help:      "对账得到终态的订单数",
			},
			[]string{"status"},
		),
		pendingOrders: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "pending_orders",
			Help:      "账本中 pending 订单数",
		}),

		streamClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "stream_clients",
			Help:      "当前 WebSocket 推送连接数",
		}),
		restRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "rest_requests_total",
				Help:      "券商REST请求总数",
			},
			[]string{"endpoint"},
		),
		restErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "rest_errors_total",
				Help:      "券商REST错误总数",
			},
			[]string{"endpoint"},
		),
		restLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "rest_latency_seconds",
				Help:      "券商REST请求延迟（秒）",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
	}

	return m
}

// 订单相关方法
func (m *Monitor) RecordOrderPlaced() {
	m.ordersPlaced.Inc()
}

func (m *Monitor) RecordOrderRecorded() {
	m.ordersRecorded.Inc()
}

func (m *Monitor) RecordOrderCanceled() {
	m.ordersCanceled.Inc()
}

func (m *Monitor) RecordOrderReconciled(status string) {
	m.ordersReconciled.WithLabelValues(status).Inc()
}

func (m *Monitor) SetPendingOrders(n int) {
	m.pendingOrders.Set(float64(n))
}

// 系统相关方法
func (m *Monitor) SetStreamClients(n int) {
	m.streamClients.Set(float64(n))
}

func (m *Monitor) RecordRESTRequest(endpoint string) {
	m.restRequests.WithLabelValues(endpoint).Inc()
}

func (m *Monitor) RecordRESTError(endpoint string) {
	m.restErrors.WithLabelValues(endpoint).Inc()
}

func (m *Monitor) RecordRESTLatency(endpoint string, seconds float64) {
	m.restLatency.WithLabelValues(endpoint).Observe(seconds)
}

// Handler 返回HTTP handler用于暴露指标
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry 返回prometheus registry
func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}
