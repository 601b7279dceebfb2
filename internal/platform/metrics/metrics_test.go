package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollector_Counters(t *testing.T) {
	c := New()

	c.Checkout(OutcomeCreated)
	c.Checkout(OutcomeCreated)
	c.Checkout(OutcomeInsufficientStock)
	c.SignalRelayed()
	c.ClientConnected()
	c.ClientConnected()
	c.ClientDisconnected()
	c.EventPublished("kafka", errors.New("broker down"))

	if got := testutil.ToFloat64(c.checkouts.WithLabelValues(OutcomeCreated)); got != 2 {
		t.Errorf("expected 2 created checkouts, got %v", got)
	}
	if got := testutil.ToFloat64(c.checkouts.WithLabelValues(OutcomeInsufficientStock)); got != 1 {
		t.Errorf("expected 1 insufficient stock checkout, got %v", got)
	}
	if got := testutil.ToFloat64(c.wsClients); got != 1 {
		t.Errorf("expected 1 connected client, got %v", got)
	}
	if got := testutil.ToFloat64(c.signalsRelayed); got != 1 {
		t.Errorf("expected 1 relayed signal, got %v", got)
	}
	if got := testutil.ToFloat64(c.eventsPublished.WithLabelValues("kafka", "error")); got != 1 {
		t.Errorf("expected 1 failed kafka publish, got %v", got)
	}
}

func TestCollector_MiddlewareAndHandler(t *testing.T) {
	c := New()
	e := echo.New()
	e.Use(c.Middleware())
	e.GET("/api/orders/:id", func(ec echo.Context) error {
		return ec.NoContent(http.StatusNoContent)
	})
	e.GET("/metrics", c.Handler())

	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/orders/ORD-1", nil))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `telemed_http_request_duration_seconds_count{method="GET",route="/api/orders/:id",status="204"} 1`) {
		t.Errorf("expected request histogram for route, got:\n%s", body)
	}
}

func TestCollector_NilSafe(t *testing.T) {
	var c *Collector
	c.Checkout(OutcomeError)
	c.OrderStatus("confirmed")
	c.Appointment("completed")
	c.ClientConnected()
	c.ClientDisconnected()
	c.SignalRelayed()
	c.EventPublished("sqs", nil)
}
