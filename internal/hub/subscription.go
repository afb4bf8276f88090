package hub

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rileyhilliard/pifleet/internal/telemetry"
)

// Kind says what a subscription streams.
type Kind string

const (
	KindMetrics  Kind = "metrics"
	KindLogs     Kind = "logs"
	KindTerminal Kind = "terminal"
)

// SubState tracks a subscription's lifecycle. Closed is terminal; a consumer
// that wants the stream back creates a new subscription.
type SubState int

const (
	SubOpen SubState = iota
	SubStreaming
	SubClosed
)

func (s SubState) String() string {
	switch s {
	case SubOpen:
		return "open"
	case SubStreaming:
		return "streaming"
	case SubClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// EventKind says what one delivery carries.
type EventKind int

const (
	// EventSnapshot carries a metrics snapshot.
	EventSnapshot EventKind = iota
	// EventLogLine carries one log line.
	EventLogLine
	// EventError reports why the stream is about to close.
	EventError
	// EventClosed is the last event a subscription ever delivers.
	EventClosed
)

func (k EventKind) String() string {
	switch k {
	case EventSnapshot:
		return "snapshot"
	case EventLogLine:
		return "log"
	case EventError:
		return "error"
	case EventClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Event is one delivery to a subscriber. Seq is monotonic per subscription
// and assigned before queueing, so a consumer can spot dropped events as
// gaps in the sequence.
type Event struct {
	Seq      uint64
	Kind     EventKind
	Snapshot *telemetry.MetricsSnapshot
	Line     string
	Err      error
	Time     time.Time
}

// Subscription is one consumer's handle on a stream. Events are delivered
// through a bounded queue: when a consumer falls behind, the oldest queued
// event is dropped for the newest, so what it sees is always fresh and in
// order, just with gaps.
type Subscription struct {
	id     string
	kind   Kind
	source string
	unit   string

	// interval is the cadence this subscriber asked for; zero means the
	// hub default. Metrics only.
	interval time.Duration

	cancel func()
	once   sync.Once

	mu     sync.Mutex
	state  SubState
	seq    uint64
	events chan Event
}

func newSubscription(kind Kind, source, unit string, queueSize int, interval time.Duration) *Subscription {
	return &Subscription{
		id:       uuid.NewString(),
		kind:     kind,
		source:   source,
		unit:     unit,
		interval: interval,
		events:   make(chan Event, queueSize),
	}
}

func (s *Subscription) ID() string { return s.id }

func (s *Subscription) Kind() Kind { return s.kind }

func (s *Subscription) Source() string { return s.source }

func (s *Subscription) Unit() string { return s.unit }

// Events is the consumer's read side. The channel is closed after the final
// Closed event, so ranging over it terminates.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

func (s *Subscription) State() SubState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Close detaches the subscription from its stream and delivers the final
// Closed event. Idempotent.
func (s *Subscription) Close() {
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		s.finish(nil)
	})
}

// deliver queues one event, dropping the oldest queued event when the
// consumer is behind. No-op once closed.
func (s *Subscription) deliver(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == SubClosed {
		return
	}
	if s.state == SubOpen {
		s.state = SubStreaming
	}
	s.push(ev)
}

// finish ends the subscription: an Error event when err is non-nil, then
// Closed, then the channel itself closes. Safe to call more than once.
func (s *Subscription) finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == SubClosed {
		return
	}
	if err != nil {
		s.push(Event{Kind: EventError, Err: err})
	}
	s.push(Event{Kind: EventClosed})
	s.state = SubClosed
	close(s.events)
}

// push assigns the sequence number and queues under s.mu. The loop below
// frees exactly one slot per pass, so it terminates even while the consumer
// drains concurrently.
func (s *Subscription) push(ev Event) {
	ev.Seq = s.seq
	s.seq++
	for {
		select {
		case s.events <- ev:
			return
		default:
		}
		select {
		case <-s.events:
		default:
		}
	}
}
