// internal/pkg/metrics/metrics.go
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 收集 points-service 的业务指标。
type Metrics struct {
	Registry *prometheus.Registry

	EngineRuns       *prometheus.CounterVec
	SessionOps       *prometheus.CounterVec
	UpstreamRequests *prometheus.CounterVec
	Redemptions      *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
	WSSubscribers    prometheus.Gauge
}

// New 在独立的 registry 上注册所有指标，测试中可以多次创建。
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		EngineRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "easypoints",
			Name:      "engine_runs_total",
			Help:      "Points engine invocations by operation and outcome.",
		}, []string{"operation", "outcome"}),
		SessionOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "easypoints",
			Name:      "session_operations_total",
			Help:      "Session cache loads and saves by store and outcome.",
		}, []string{"store", "operation", "outcome"}),
		UpstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "easypoints",
			Name:      "upstream_requests_total",
			Help:      "Loyalty app requests by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		Redemptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "easypoints",
			Name:      "redemptions_total",
			Help:      "Point redemptions and resets by kind.",
		}, []string{"kind"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "easypoints",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP handler latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "code"}),
		WSSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "easypoints",
			Name:      "websocket_subscribers",
			Help:      "Open session websocket subscriptions.",
		}),
	}
	reg.MustRegister(
		m.EngineRuns, m.SessionOps, m.UpstreamRequests, m.Redemptions, m.HTTPDuration, m.WSSubscribers,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler 暴露 /metrics。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// Outcome 把 error 归为 ok / error 两类标签。
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
