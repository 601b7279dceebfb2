// Package metrics exposes Prometheus collectors for the API, the order
// pipeline and the realtime relay.
package metrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Checkout outcomes.
const (
	OutcomeCreated           = "created"
	OutcomeEmptyCart         = "empty_cart"
	OutcomeInsufficientStock = "insufficient_stock"
	OutcomeError             = "error"
)

// Collector owns every metric the service exports.
type Collector struct {
	registry *prometheus.Registry

	httpDuration    *prometheus.HistogramVec
	checkouts       *prometheus.CounterVec
	orderStatus     *prometheus.CounterVec
	appointments    *prometheus.CounterVec
	wsClients       prometheus.Gauge
	signalsRelayed  prometheus.Counter
	eventsPublished *prometheus.CounterVec
}

// New builds a Collector on its own registry so tests can create many.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "telemed_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "telemed_checkouts_total",
			Help: "Checkout attempts by outcome",
		}, []string{"outcome"}),
		orderStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "telemed_order_status_changes_total",
			Help: "Order status transitions by target status",
		}, []string{"status"}),
		appointments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "telemed_appointment_transitions_total",
			Help: "Appointment transitions by target status",
		}, []string{"status"}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "telemed_ws_clients",
			Help: "Connected realtime clients",
		}),
		signalsRelayed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "telemed_signals_relayed_total",
			Help: "Signaling payloads forwarded between call peers",
		}),
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "telemed_events_published_total",
			Help: "Domain events published by sink and result",
		}, []string{"sink", "result"}),
	}

	c.registry.MustRegister(
		c.httpDuration,
		c.checkouts,
		c.orderStatus,
		c.appointments,
		c.wsClients,
		c.signalsRelayed,
		c.eventsPublished,
		prometheus.NewGoCollector(),
	)
	return c
}

func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{}))
}

// Middleware records request latency by matched route.
func (c *Collector) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ec echo.Context) error {
			start := time.Now()
			err := next(ec)
			status := ec.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
			}
			c.httpDuration.
				WithLabelValues(ec.Request().Method, ec.Path(), strconv.Itoa(status)).
				Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// Recording methods are no-ops on a nil Collector.

func (c *Collector) Checkout(outcome string) {
	if c == nil {
		return
	}
	c.checkouts.WithLabelValues(outcome).Inc()
}

func (c *Collector) OrderStatus(status string) {
	if c == nil {
		return
	}
	c.orderStatus.WithLabelValues(status).Inc()
}

func (c *Collector) Appointment(status string) {
	if c == nil {
		return
	}
	c.appointments.WithLabelValues(status).Inc()
}

func (c *Collector) ClientConnected() {
	if c != nil {
		c.wsClients.Inc()
	}
}

func (c *Collector) ClientDisconnected() {
	if c != nil {
		c.wsClients.Dec()
	}
}

func (c *Collector) SignalRelayed() {
	if c != nil {
		c.signalsRelayed.Inc()
	}
}

func (c *Collector) EventPublished(sink string, err error) {
	if c == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.eventsPublished.WithLabelValues(sink, result).Inc()
}
