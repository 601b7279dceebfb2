// Package events carries domain state changes to interested parties: the
// realtime hub for connected clients and, when configured, Kafka and SQS for
// downstream consumers. Delivery is best effort and at most once.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ruralcare/telemed/internal/platform/metrics"
)

// Event names pushed to clients.
const (
	NewOrder             = "new-order"
	OrderStatusUpdated   = "order-status-updated"
	StockUpdated         = "stock-updated"
	MedicineAdded        = "medicine-added"
	MedicineRemoved      = "medicine-removed"
	AppointmentRequested = "appointment-requested"
	AppointmentUpdated   = "appointment-updated"
)

// Event is a named payload addressed to a topic.
type Event struct {
	Name      string      `json:"event"`
	Topic     string      `json:"topic"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// New stamps an event with the current time.
func New(name, topic string, data interface{}) Event {
	return Event{Name: name, Topic: topic, Timestamp: time.Now().UTC(), Data: data}
}

// UserTopic is the notification topic for a single user.
func UserTopic(userID string) string { return "user:" + userID }

// PharmacyTopic is the notification topic for a pharmacy's catalog and orders.
func PharmacyTopic(pharmacyID string) string { return "pharmacy:" + pharmacyID }

// Publisher delivers an event.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, event Event) error

func (f PublisherFunc) Publish(ctx context.Context, event Event) error { return f(ctx, event) }

// Nop discards every event.
var Nop Publisher = PublisherFunc(func(context.Context, Event) error { return nil })

// Sink is a named publisher inside a Fanout.
type Sink struct {
	Name      string
	Publisher Publisher
}

// Fanout publishes every event to all sinks in order. Sink failures are
// logged and counted, never returned: the state change that produced the
// event has already been committed.
type Fanout struct {
	sinks   []Sink
	logger  zerolog.Logger
	metrics *metrics.Collector
}

func NewFanout(logger zerolog.Logger, m *metrics.Collector, sinks ...Sink) *Fanout {
	return &Fanout{sinks: sinks, logger: logger, metrics: m}
}

// Add appends a sink.
func (f *Fanout) Add(s Sink) {
	f.sinks = append(f.sinks, s)
}

func (f *Fanout) Publish(ctx context.Context, event Event) error {
	for _, s := range f.sinks {
		err := s.Publisher.Publish(ctx, event)
		f.metrics.EventPublished(s.Name, err)
		if err != nil {
			f.logger.Warn().Err(err).
				Str("sink", s.Name).
				Str("event", event.Name).
				Str("topic", event.Topic).
				Msg("event publish failed")
		}
	}
	return nil
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Named returns the recorded events with the given name.
func (r *Recorder) Named(name string) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}
