// Package notify - Fire-and-forget delivery of match decisions to UI consumers.
package notify

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Kind is the decision an event reports.
type Kind string

// Event kinds.
const (
	KindMatch   Kind = "match"
	KindNoMatch Kind = "nomatch"
)

// User-facing messages.
const (
	MessageMatch   = "Face match found"
	MessageNoMatch = "Face not matched"
)

// DefaultTTL is how long a UI should show an event, the length of a short toast.
const DefaultTTL = 2 * time.Second

// Event is a one-shot, user-facing notification.
type Event struct {
	ID      string        `json:"id"`
	Kind    Kind          `json:"kind"`
	Message string        `json:"message"`
	Score   float64       `json:"score"`
	FrameID uint64        `json:"frameId"`
	At      time.Time     `json:"at"`
	TTL     time.Duration `json:"ttl"`
}

// NewEvent builds the event for a match decision.
func NewEvent(matched bool, score float64, frameID uint64) Event {
	e := Event{
		ID:      uuid.NewString(),
		Kind:    KindNoMatch,
		Message: MessageNoMatch,
		Score:   score,
		FrameID: frameID,
		At:      time.Now(),
		TTL:     DefaultTTL,
	}
	if matched {
		e.Kind = KindMatch
		e.Message = MessageMatch
	}
	return e
}

// Notifier accepts events without blocking the caller.
type Notifier interface {
	Notify(Event)
}

// Sink consumes events on the dispatcher goroutine.
type Sink interface {
	Deliver(ctx context.Context, e Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, e Event)

// Deliver calls f.
func (f SinkFunc) Deliver(ctx context.Context, e Event) { f(ctx, e) }

// Dispatcher queues events and fans them out to sinks. Notify never blocks:
// when the queue is full the event is dropped and counted.
type Dispatcher struct {
	queue   chan Event
	mu      sync.RWMutex
	sinks   []Sink
	dropped atomic.Uint64
	sent    atomic.Uint64
	logger  zerolog.Logger
}

// NewDispatcher creates a dispatcher with the given queue capacity.
func NewDispatcher(capacity int, logger zerolog.Logger) *Dispatcher {
	if capacity <= 0 {
		capacity = 16
	}
	return &Dispatcher{
		queue:  make(chan Event, capacity),
		logger: logger,
	}
}

// AddSink registers a consumer.
func (d *Dispatcher) AddSink(s Sink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sinks = append(d.sinks, s)
}

// Notify enqueues e or drops it when the queue is full.
func (d *Dispatcher) Notify(e Event) {
	select {
	case d.queue <- e:
	default:
		d.dropped.Add(1)
		d.logger.Debug().Str("event", e.ID).Msg("notification queue full, event dropped")
	}
}

// Run delivers queued events until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-d.queue:
			d.mu.RLock()
			sinks := d.sinks
			d.mu.RUnlock()
			for _, s := range sinks {
				s.Deliver(ctx, e)
			}
			d.sent.Add(1)
		}
	}
}

// Dropped returns how many events were discarded.
func (d *Dispatcher) Dropped() uint64 { return d.dropped.Load() }

// Sent returns how many events reached the sinks.
func (d *Dispatcher) Sent() uint64 { return d.sent.Load() }

// LogSink writes every event to a logger.
func LogSink(logger zerolog.Logger) Sink {
	return SinkFunc(func(_ context.Context, e Event) {
		logger.Info().
			Str("kind", string(e.Kind)).
			Float64("score", e.Score).
			Uint64("frame", e.FrameID).
			Msg(e.Message)
	})
}

// CollectMetrics reports delivery counters to the runtime profiler.
func (d *Dispatcher) CollectMetrics() map[string]float64 {
	return map[string]float64{
		"events_sent":    float64(d.Sent()),
		"events_dropped": float64(d.Dropped()),
	}
}
