// Package metrics exposes Prometheus counters for wallet actions, transactions and RPC calls.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "nftwallet"

// Metrics 持有独立的 registry，测试里可以创建多份互不干扰
type Metrics struct {
	registry *prometheus.Registry

	actions        *prometheus.CounterVec
	actionDuration *prometheus.HistogramVec
	txs            *prometheus.CounterVec
	rpcCalls       *prometheus.CounterVec
	rpcDuration    *prometheus.HistogramVec
	httpRequests   *prometheus.CounterVec
	sessions       prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.actions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "actions_total",
		Help:      "Wallet actions by kind and final status",
	}, []string{"action", "status"})

	m.actionDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "action_duration_seconds",
		Help:      "Wallet action duration including confirmation wait",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
	}, []string{"action"})

	m.txs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transactions_total",
		Help:      "Transactions submitted per action; result=failed when submission errored",
	}, []string{"action", "result"})

	m.rpcCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "rpc",
		Name:      "calls_total",
		Help:      "JSON-RPC calls by method and result",
	}, []string{"method", "result"})

	m.rpcDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "rpc",
		Name:      "call_duration_seconds",
		Help:      "JSON-RPC call latency",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"method"})

	m.httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "requests_total",
		Help:      "HTTP API requests",
	}, []string{"method", "path", "status"})

	m.sessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "wallet_connected",
		Help:      "1 while a wallet session is connected",
	})

	m.registry.MustRegister(
		m.actions, m.actionDuration, m.txs, m.rpcCalls, m.rpcDuration, m.httpRequests, m.sessions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ActionFinished 实现 actions.Observer
func (m *Metrics) ActionFinished(action, status string, took time.Duration) {
	m.actions.WithLabelValues(action, status).Inc()
	m.actionDuration.WithLabelValues(action).Observe(took.Seconds())
}

// TxSent 实现 actions.Observer
func (m *Metrics) TxSent(action string, err error) {
	result := "submitted"
	if err != nil {
		result = "failed"
	}
	m.txs.WithLabelValues(action, result).Inc()
}

// ObserveRPC 签名与 client.Observer 一致，传给 ThrottledBackend
func (m *Metrics) ObserveRPC(method string, took time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.rpcCalls.WithLabelValues(method, result).Inc()
	m.rpcDuration.WithLabelValues(method).Observe(took.Seconds())
}

func (m *Metrics) SetConnected(connected bool) {
	if connected {
		m.sessions.Set(1)
		return
	}
	m.sessions.Set(0)
}

// Middleware gin 请求计数，path 用路由模板避免 token id 撑爆标签
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.httpRequests.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
	}
}
