package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the server collectors on a private registry. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	operations       *prometheus.CounterVec
	operationLatency *prometheus.HistogramVec
	instances        prometheus.Gauge
	httpRequests     *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Metrics{
		registry: reg,
		operations: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "memfs_operations_total",
				Help: "Total number of filesystem operations by operation and result",
			},
			[]string{"op", "result"},
		),
		operationLatency: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "memfs_operation_duration_microseconds",
				Help: "Duration of filesystem operations in microseconds",
				Buckets: []float64{
					1,     // 1us - lookups in small tables
					10,    // 10us
					50,    // 50us
					100,   // 100us
					500,   // 500us
					1000,  // 1ms - large readdir
					10000, // 10ms
				},
			},
			[]string{"op"},
		),
		instances: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "memfs_instances",
				Help: "Number of filesystem instances held in memory",
			},
		),
		httpRequests: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "memfs_http_requests_total",
				Help: "Total number of HTTP requests by path and status code",
			},
			[]string{"path", "status"},
		),
	}
}

func (m *Metrics) ObserveOperation(op string, err error, duration time.Duration) {
	if m == nil {
		return
	}

	result := "ok"
	if err != nil {
		result = "error"
	}

	m.operations.WithLabelValues(op, result).Inc()
	m.operationLatency.WithLabelValues(op).Observe(float64(duration.Microseconds()))
}

func (m *Metrics) SetInstances(n int) {
	if m == nil {
		return
	}
	m.instances.Set(float64(n))
}

func (m *Metrics) ObserveRequest(path string, status int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(path, strconv.Itoa(status)).Inc()
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
