// Package notify pushes fleet lifecycle events to the operator's phone
// or chat. It watches the event bus for the configured topics and
// dispatches through shoutrrr; a flapping device is held to one
// notification per event type per cooldown window.
package notify

import (
	"fmt"
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/nicholas-fedor/shoutrrr"
	"github.com/rileyhilliard/pifleet/internal/events"
	"github.com/rileyhilliard/pifleet/internal/logger"
)

// queueSize bounds the handoff between bus handlers and the send loop.
// Bus handlers must not block, so an overflowing queue drops instead.
const queueSize = 64

// Sender abstracts message dispatch so tests don't hit real services.
type Sender interface {
	Send(serviceURL, message string) error
}

// ShoutrrrSender dispatches via the shoutrrr library.
type ShoutrrrSender struct{}

func (ShoutrrrSender) Send(serviceURL, message string) error {
	return shoutrrr.Send(serviceURL, message)
}

// Config wires a Notifier.
type Config struct {
	Bus *events.Bus

	// URLs are shoutrrr service URLs. Every message goes to all of them.
	URLs []string

	// Events selects the topics that notify. Nil means session.closed
	// and session.recovered.
	Events []events.Type

	// Cooldown spaces repeat notifications per device and event type.
	// Zero or negative disables the cooldown.
	Cooldown time.Duration

	Sender Sender
	Clock  clock.Clock
	Log    logger.Logger
}

func (c *Config) fill() {
	if c.Sender == nil {
		c.Sender = ShoutrrrSender{}
	}
	if c.Clock == nil {
		c.Clock = clock.WallClock
	}
	if c.Log == nil {
		c.Log = logger.Default()
	}
	if c.Events == nil {
		c.Events = []events.Type{events.SessionClosed, events.SessionRecovered}
	}
}

// Notifier bridges the event bus to shoutrrr.
type Notifier struct {
	cfg   Config
	queue chan events.Event
	unsub func()
	stop  chan struct{}
	wg    sync.WaitGroup

	mu   sync.Mutex
	last map[string]time.Time
}

// New creates a notifier. Call Start to begin dispatching.
func New(cfg Config) *Notifier {
	cfg.fill()
	return &Notifier{
		cfg:   cfg,
		queue: make(chan events.Event, queueSize),
		stop:  make(chan struct{}),
		last:  make(map[string]time.Time),
	}
}

// Start subscribes to the bus and begins dispatching. A notifier with
// no URLs configured stays inert.
func (n *Notifier) Start() {
	if len(n.cfg.URLs) == 0 || n.cfg.Bus == nil {
		return
	}

	n.unsub = n.cfg.Bus.SubscribeTypes(func(e events.Event) {
		select {
		case n.queue <- e:
		default:
			n.cfg.Log.Warn("notify: queue full, dropping %s for %s", e.Type, e.Device)
		}
	}, n.cfg.Events...)

	n.wg.Add(1)
	go n.loop()
}

// Stop unsubscribes, drains what's already queued, and waits for the
// send loop to finish.
func (n *Notifier) Stop() {
	if n.unsub != nil {
		n.unsub()
		n.unsub = nil
	}
	close(n.stop)
	n.wg.Wait()
}

func (n *Notifier) loop() {
	defer n.wg.Done()
	for {
		select {
		case e := <-n.queue:
			n.handle(e)
		case <-n.stop:
			for {
				select {
				case e := <-n.queue:
					n.handle(e)
				default:
					return
				}
			}
		}
	}
}

func (n *Notifier) handle(e events.Event) {
	// A close without a cause is the operator shutting things down,
	// not an outage.
	if e.Type == events.SessionClosed && e.Err == "" {
		return
	}
	if !n.allow(e) {
		n.cfg.Log.Debug("notify: cooldown holding %s for %s", e.Type, e.Device)
		return
	}

	msg := formatMessage(e)
	for _, u := range n.cfg.URLs {
		if err := n.cfg.Sender.Send(u, msg); err != nil {
			n.cfg.Log.Warn("notify: send failed: %v", err)
		}
	}
}

// allow applies the per-device, per-event-type cooldown and records
// the dispatch time when the event passes.
func (n *Notifier) allow(e events.Event) bool {
	if n.cfg.Cooldown <= 0 {
		return true
	}

	key := e.Device
	if key == "" {
		key = e.Address
	}
	key += "\x00" + string(e.Type)

	now := n.cfg.Clock.Now()
	n.mu.Lock()
	defer n.mu.Unlock()
	if lastSent, ok := n.last[key]; ok && now.Sub(lastSent) < n.cfg.Cooldown {
		return false
	}
	n.last[key] = now
	return true
}

func formatMessage(e events.Event) string {
	subject := e.Device
	if subject == "" {
		subject = e.Address
	} else if e.Address != "" {
		subject = fmt.Sprintf("%s (%s)", e.Device, e.Address)
	}

	switch e.Type {
	case events.SessionClosed:
		msg := fmt.Sprintf("pifleet: lost %s", subject)
		if e.Err != "" {
			msg += ": " + e.Err
		}
		return msg
	case events.SessionRecovered:
		return fmt.Sprintf("pifleet: %s is back", subject)
	default:
		msg := fmt.Sprintf("pifleet: %s %s", subject, e.Type)
		if e.Err != "" {
			msg += ": " + e.Err
		}
		return msg
	}
}
