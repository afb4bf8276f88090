// Package events carries fleet lifecycle notifications between the session
// manager, the serve surface, and the notifier. One process-wide bus, typed
// payloads, topic-per-event-type.
package events

import (
	"time"

	"github.com/juju/clock"
	"github.com/juju/pubsub/v2"
)

// Type names an event topic.
type Type string

const (
	SessionConnecting Type = "session.connecting"
	SessionReady      Type = "session.ready"
	SessionDegraded   Type = "session.degraded"
	SessionClosed     Type = "session.closed"
	SessionRecovered  Type = "session.recovered"

	ScanStarted  Type = "scan.started"
	ScanFinished Type = "scan.finished"
	DeviceFound  Type = "device.found"
)

// SessionTypes lists the session lifecycle topics in transition order.
func SessionTypes() []Type {
	return []Type{SessionConnecting, SessionReady, SessionDegraded, SessionClosed, SessionRecovered}
}

// Event is the payload delivered to subscribers. Device carries the logical
// name when the publisher knows one, Address always carries the dial target.
type Event struct {
	Type      Type
	Device    string
	Address   string
	Message   string
	Attempt   int // reconnect attempt, when the event is part of a retry loop
	Err       string
	Timestamp time.Time
}

// Handler receives published events. Handlers run on the hub's goroutines
// and must not block; anything slow belongs behind a channel.
type Handler func(Event)

// Bus is a typed wrapper over a pubsub hub.
type Bus struct {
	hub   *pubsub.SimpleHub
	clock clock.Clock
}

// NewBus creates a bus on the wall clock.
func NewBus() *Bus {
	return NewBusWithClock(clock.WallClock)
}

// NewBusWithClock creates a bus stamping events from the given clock.
func NewBusWithClock(clk clock.Clock) *Bus {
	return &Bus{
		hub:   pubsub.NewSimpleHub(nil),
		clock: clk,
	}
}

// Publish sends an event to subscribers of its type. The returned channel
// closes once every subscriber has processed the event; callers that don't
// care simply drop it.
func (b *Bus) Publish(event Event) <-chan struct{} {
	if event.Timestamp.IsZero() {
		event.Timestamp = b.clock.Now()
	}
	wait := b.hub.Publish(string(event.Type), event)
	done := make(chan struct{})
	go func() {
		wait()
		close(done)
	}()
	return done
}

// Subscribe registers a handler for one event type. The returned function
// unsubscribes.
func (b *Bus) Subscribe(t Type, handler Handler) func() {
	return b.hub.Subscribe(string(t), func(topic string, data interface{}) {
		if event, ok := data.(Event); ok {
			handler(event)
		}
	})
}

// SubscribeTypes registers one handler for several event types and returns
// a single unsubscribe covering them all.
func (b *Bus) SubscribeTypes(handler Handler, types ...Type) func() {
	unsubs := make([]func(), 0, len(types))
	for _, t := range types {
		unsubs = append(unsubs, b.Subscribe(t, handler))
	}
	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}
