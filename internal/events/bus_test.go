package events

import (
	"sync"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish never completed")
	}
}

func TestBusDeliversToTypeSubscribers(t *testing.T) {
	bus := NewBus()

	var mu sync.Mutex
	var got []Event
	unsub := bus.Subscribe(SessionReady, func(event Event) {
		mu.Lock()
		got = append(got, event)
		mu.Unlock()
	})
	defer unsub()

	waitDone(t, bus.Publish(Event{Type: SessionReady, Device: "garage", Address: "192.168.4.20:22"}))
	waitDone(t, bus.Publish(Event{Type: SessionClosed, Device: "garage"}))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	assert.Equal(t, SessionReady, got[0].Type)
	assert.Equal(t, "garage", got[0].Device)
	assert.Equal(t, "192.168.4.20:22", got[0].Address)
}

func TestBusStampsTimestamp(t *testing.T) {
	t0 := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	bus := NewBusWithClock(testclock.NewClock(t0))

	var mu sync.Mutex
	var got Event
	unsub := bus.Subscribe(SessionDegraded, func(event Event) {
		mu.Lock()
		got = event
		mu.Unlock()
	})
	defer unsub()

	waitDone(t, bus.Publish(Event{Type: SessionDegraded, Device: "attic"}))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, t0, got.Timestamp)
}

func TestBusUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus()

	var mu sync.Mutex
	count := 0
	unsub := bus.Subscribe(DeviceFound, func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	waitDone(t, bus.Publish(Event{Type: DeviceFound}))
	unsub()
	waitDone(t, bus.Publish(Event{Type: DeviceFound}))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, count)
}

func TestSubscribeTypes(t *testing.T) {
	bus := NewBus()

	var mu sync.Mutex
	var seen []Type
	unsub := bus.SubscribeTypes(func(event Event) {
		mu.Lock()
		seen = append(seen, event.Type)
		mu.Unlock()
	}, SessionClosed, SessionRecovered)

	waitDone(t, bus.Publish(Event{Type: SessionClosed, Device: "garage"}))
	waitDone(t, bus.Publish(Event{Type: SessionReady, Device: "garage"}))
	waitDone(t, bus.Publish(Event{Type: SessionRecovered, Device: "garage"}))

	mu.Lock()
	assert.Equal(t, []Type{SessionClosed, SessionRecovered}, seen)
	mu.Unlock()

	unsub()
	waitDone(t, bus.Publish(Event{Type: SessionClosed, Device: "garage"}))

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, seen, 2)
}
