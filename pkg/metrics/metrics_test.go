package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// One collector per test binary: promauto registers against the default
// registry, and duplicate registration panics.
var collector = NewCollector("labcore_test")

func TestFiberMiddleware_ObservesRequests(t *testing.T) {
	app := fiber.New()
	app.Use(collector.FiberMiddleware())
	app.Get("/ping", func(c *fiber.Ctx) error {
		return c.SendString("pong")
	})
	app.Get("/boom", func(c *fiber.Ctx) error {
		return fiber.ErrTeapot
	})

	for i := 0; i < 3; i++ {
		if _, err := app.Test(httptest.NewRequest("GET", "/ping", nil)); err != nil {
			t.Fatalf("GET /ping: %v", err)
		}
	}
	if _, err := app.Test(httptest.NewRequest("GET", "/boom", nil)); err != nil {
		t.Fatalf("GET /boom: %v", err)
	}

	if got := testutil.ToFloat64(collector.RequestsTotal.WithLabelValues("GET", "/ping", "200")); got != 3 {
		t.Errorf("requests_total{GET,/ping,200} = %v, want 3", got)
	}
	if got := testutil.ToFloat64(collector.RequestsTotal.WithLabelValues("GET", "/boom", "418")); got != 1 {
		t.Errorf("requests_total{GET,/boom,418} = %v, want 1", got)
	}
}

func TestAuditCounters(t *testing.T) {
	before := testutil.ToFloat64(collector.AuditWrittenTotal)
	collector.AuditWritten()
	collector.AuditWritten()
	collector.AuditDropped()

	if got := testutil.ToFloat64(collector.AuditWrittenTotal) - before; got != 2 {
		t.Errorf("written delta = %v, want 2", got)
	}
	if got := testutil.ToFloat64(collector.AuditDroppedTotal); got != 1 {
		t.Errorf("dropped = %v, want 1", got)
	}
}
