package hub

import (
	"context"
	"sync"
	"time"

	"gopkg.in/tomb.v2"
)

// metricsLoop samples one source and fans each snapshot out to every live
// metrics subscription for it. One loop per source, regardless of how many
// consumers watch.
type metricsLoop struct {
	hub    *Hub
	source string

	tomb tomb.Tomb
	kick chan struct{}

	// retired is guarded by hub.mu: once set, the hub will never hand this
	// loop a new subscriber.
	retired bool

	mu   sync.Mutex
	subs map[string]*Subscription
}

func newMetricsLoop(h *Hub, source string, first *Subscription) *metricsLoop {
	return &metricsLoop{
		hub:    h,
		source: source,
		kick:   make(chan struct{}, 1),
		subs:   map[string]*Subscription{first.id: first},
	}
}

// add attaches a subscriber and wakes the loop so a faster interval or a
// fresh consumer takes effect now rather than after the current wait.
func (l *metricsLoop) add(sub *Subscription) {
	l.mu.Lock()
	l.subs[sub.id] = sub
	l.mu.Unlock()
	l.wake()
}

// remove detaches a subscriber and reports whether the loop is now empty.
func (l *metricsLoop) remove(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.subs, id)
	return len(l.subs) == 0
}

func (l *metricsLoop) wake() {
	select {
	case l.kick <- struct{}{}:
	default:
	}
}

// interval is the fastest cadence among live subscribers. A subscriber that
// didn't ask for one counts as asking for the hub default, so a lone slow
// watcher really does slow the loop down.
func (l *metricsLoop) interval() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	var fastest time.Duration
	for _, sub := range l.subs {
		want := sub.interval
		if want <= 0 {
			want = l.hub.cfg.Interval
		}
		if fastest == 0 || want < fastest {
			fastest = want
		}
	}
	if fastest == 0 {
		fastest = l.hub.cfg.Interval
	}
	return fastest
}

func (l *metricsLoop) snapshotSubs() []*Subscription {
	l.mu.Lock()
	defer l.mu.Unlock()
	subs := make([]*Subscription, 0, len(l.subs))
	for _, sub := range l.subs {
		subs = append(subs, sub)
	}
	return subs
}

func (l *metricsLoop) run() error {
	defer l.finish()
	ctx := l.tomb.Context(context.Background())
	for {
		source, err := l.hub.cfg.Acquire(ctx, l.source)
		if err != nil {
			if l.dying() {
				return nil
			}
			// The session layer already retried; the source is gone.
			// Everyone watching it finds out and resubscribes later.
			l.hub.cfg.Log.Warn("metrics loop for %s stopped: %v", l.source, err)
			l.fail(err)
			return nil
		}

		snapshot, err := l.hub.cfg.Sampler.Sample(ctx, source)
		if err != nil {
			if l.dying() {
				return nil
			}
			// Transient: the next pass re-acquires, and the session layer
			// redials underneath if the transport died.
			l.hub.cfg.Log.Debug("sample of %s failed: %v", l.source, err)
		} else {
			now := l.hub.cfg.Clock.Now()
			for _, sub := range l.snapshotSubs() {
				sub.deliver(Event{Kind: EventSnapshot, Snapshot: snapshot, Time: now})
			}
		}

		select {
		case <-l.tomb.Dying():
			return nil
		case <-l.kick:
		case <-l.hub.cfg.Clock.After(l.interval()):
		}
	}
}

func (l *metricsLoop) dying() bool {
	select {
	case <-l.tomb.Dying():
		return true
	default:
		return false
	}
}

// fail is the terminal-error path: every subscriber gets the error and then
// Closed, the counter baseline is dropped, and the loop retires itself so a
// later subscriber starts over.
func (l *metricsLoop) fail(err error) {
	l.hub.dropMetricsLoop(l)
	l.hub.cfg.Sampler.Forget(l.source)
	for _, sub := range l.snapshotSubs() {
		sub.finish(err)
	}
}

// finish is the orderly path: remaining subscribers (hub shutdown) get a
// plain Closed.
func (l *metricsLoop) finish() {
	l.hub.dropMetricsLoop(l)
	for _, sub := range l.snapshotSubs() {
		sub.finish(nil)
	}
}
