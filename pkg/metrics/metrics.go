package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	DecisionsTotal   *prometheus.CounterVec
	TransitionsTotal *prometheus.CounterVec
	JobsCreatedTotal prometheus.Counter

	AuditWrittenTotal prometheus.Counter
	AuditDroppedTotal prometheus.Counter
}

func NewCollector(serviceName string) *Collector {
	return &Collector{
		RequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method, path, and status code.",
		}, []string{"method", "path", "status"}),

		RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: serviceName,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency distribution.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"method", "path", "status"}),

		DecisionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "rbac",
			Name:      "decisions_total",
			Help:      "Permission decisions by outcome.",
		}, []string{"outcome"}),

		TransitionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "jobs",
			Name:      "transitions_total",
			Help:      "Applied job transitions by target state.",
		}, []string{"to_state"}),

		JobsCreatedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "jobs",
			Name:      "created_total",
			Help:      "Total jobs registered at intake.",
		}),

		AuditWrittenTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "audit",
			Name:      "written_total",
			Help:      "Audit events persisted by the sink.",
		}),

		AuditDroppedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "audit",
			Name:      "dropped_total",
			Help:      "Audit events dropped because the sink buffer was full.",
		}),
	}
}

// FiberMiddleware observes every request: one counter increment and one
// latency sample, labeled with the method, the registered route path (not
// the raw URL, keeping label cardinality bounded), and the status code.
func (m *Collector) FiberMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}
		path := c.Route().Path
		labels := []string{c.Method(), path, strconv.Itoa(status)}
		m.RequestsTotal.WithLabelValues(labels...).Inc()
		m.RequestDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
		return err
	}
}

// AuditWritten and AuditDropped let the audit sink report its outcomes
// without depending on this package's types.
func (m *Collector) AuditWritten() { m.AuditWrittenTotal.Inc() }
func (m *Collector) AuditDropped() { m.AuditDroppedTotal.Inc() }

func Handler() http.Handler {
	return promhttp.Handler()
}
