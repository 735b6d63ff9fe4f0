// Package metrics 以 Prometheus 匯出服務指標.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"simple-chat/internal/channel"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "simple_chat"

// Metrics 服務指標集合. nil 值可安全呼叫.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	channelCalls    *prometheus.CounterVec
	channelDuration *prometheus.HistogramVec
	persistFailures prometheus.Counter
	reconciled      prometheus.Counter
}

// New 建立獨立 registry 的指標集合.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		channelCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "channel_calls_total",
			Help:      "External channel calls by operation and result.",
		}, []string{"operation", "result"}),
		channelDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "channel_call_duration_seconds",
			Help:      "External channel call latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		persistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "message_persist_failures_total",
			Help:      "Messages delivered to the channel but not recorded locally.",
		}),
		reconciled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_reconciled_total",
			Help:      "Remote messages back-filled into the local store.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.channelCalls,
		m.channelDuration,
		m.persistFailures,
		m.reconciled,
	)
	return m
}

// Handler /metrics 端點.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry 底層 registry (測試用).
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveHTTP 記錄一次 HTTP 請求.
func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ObserveChannelCall 實作 channel.Observer.
func (m *Metrics) ObserveChannelCall(op string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.channelCalls.WithLabelValues(op, callResult(err)).Inc()
	m.channelDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// PersistFailure 遠端已送出但本地寫入失敗.
func (m *Metrics) PersistFailure() {
	if m == nil {
		return
	}
	m.persistFailures.Inc()
}

// Reconciled 同步工作補寫了 n 則訊息.
func (m *Metrics) Reconciled(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.reconciled.Add(float64(n))
}

func callResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, channel.ErrUnavailable):
		return "unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}

var _ channel.Observer = (*Metrics)(nil)
