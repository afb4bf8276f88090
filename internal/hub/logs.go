package hub

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/rileyhilliard/pifleet/internal/errors"
	"github.com/rileyhilliard/pifleet/internal/util"
	"gopkg.in/tomb.v2"
)

// logTail runs one journalctl follow per (source, unit) and fans its lines
// out to every subscriber of that stream.
type logTail struct {
	hub    *Hub
	key    string
	source string
	unit   string

	tomb tomb.Tomb

	// retired is guarded by hub.mu, same contract as metricsLoop.
	retired bool

	mu   sync.Mutex
	subs map[string]*Subscription
}

func newLogTail(h *Hub, key, source, unit string, first *Subscription) *logTail {
	return &logTail{
		hub:    h,
		key:    key,
		source: source,
		unit:   unit,
		subs:   map[string]*Subscription{first.id: first},
	}
}

func (t *logTail) add(sub *Subscription) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subs[sub.id] = sub
}

func (t *logTail) remove(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.subs, id)
	return len(t.subs) == 0
}

func (t *logTail) snapshotSubs() []*Subscription {
	t.mu.Lock()
	defer t.mu.Unlock()
	subs := make([]*Subscription, 0, len(t.subs))
	for _, sub := range t.subs {
		subs = append(subs, sub)
	}
	return subs
}

func (t *logTail) run() error {
	ctx := t.tomb.Context(context.Background())

	source, err := t.hub.cfg.Acquire(ctx, t.source)
	if err != nil {
		if t.dying() {
			t.finish(nil)
			return nil
		}
		t.finish(err)
		return nil
	}

	command := fmt.Sprintf("journalctl -o cat -n %d -u %s -f",
		t.hub.cfg.TailLines, util.ShellQuote(t.unit))
	fan := newLineFan(t, t.hub.cfg.Clock, t.hub.cfg.LineRate, t.hub.cfg.TailLines)
	var stderr strings.Builder

	code, err := source.ExecuteStream(ctx, command, fan, &stderr)
	fan.flush()

	if t.dying() {
		t.finish(nil)
		return nil
	}

	// A follow should never end on its own; whatever ended it is the
	// subscribers' cue to resubscribe.
	switch {
	case err != nil:
		t.finish(err)
	case code != 0:
		detail, _, _ := strings.Cut(strings.TrimSpace(stderr.String()), "\n")
		t.finish(errors.New(errors.ErrExec,
			fmt.Sprintf("journalctl for %s on %s exited with status %d", t.unit, t.source, code),
			detail))
	default:
		t.finish(nil)
	}
	return nil
}

func (t *logTail) dying() bool {
	select {
	case <-t.tomb.Dying():
		return true
	default:
		return false
	}
}

func (t *logTail) finish(err error) {
	t.hub.dropLogTail(t)
	for _, sub := range t.snapshotSubs() {
		sub.finish(err)
	}
}

// lineFan turns the raw journalctl byte stream into per-line events. A
// token bucket caps sustained fan-out: lines over the cap are dropped and
// counted, so a service spewing thousands of lines a second can't bury the
// hub or the consumers behind it.
type lineFan struct {
	tail  *logTail
	clock clock.Clock

	rate float64
	// burst covers the initial -n tail plus one second of flow, so history
	// replay isn't eaten by the cap meant for runaway services.
	burst  float64
	tokens float64
	last   time.Time

	buf     []byte
	dropped int
}

func newLineFan(t *logTail, clk clock.Clock, rate, tailLines int) *lineFan {
	return &lineFan{
		tail:  t,
		clock: clk,
		rate:  float64(rate),
		burst: float64(rate + tailLines),
	}
}

func (f *lineFan) Write(p []byte) (int, error) {
	f.buf = append(f.buf, p...)
	for {
		i := bytes.IndexByte(f.buf, '\n')
		if i < 0 {
			break
		}
		line := strings.TrimSuffix(string(f.buf[:i]), "\r")
		f.buf = f.buf[i+1:]
		f.emit(line)
	}
	return len(p), nil
}

// flush emits a final unterminated line once the stream has ended.
func (f *lineFan) flush() {
	if len(f.buf) > 0 {
		f.emit(strings.TrimSuffix(string(f.buf), "\r"))
		f.buf = nil
	}
	if f.dropped > 0 {
		f.tail.hub.cfg.Log.Debug("log tail for %s dropped %d lines over the rate cap",
			f.tail.unit, f.dropped)
	}
}

func (f *lineFan) emit(line string) {
	if !f.allow() {
		f.dropped++
		return
	}
	now := f.clock.Now()
	for _, sub := range f.tail.snapshotSubs() {
		sub.deliver(Event{Kind: EventLogLine, Line: line, Time: now})
	}
}

func (f *lineFan) allow() bool {
	now := f.clock.Now()
	if f.last.IsZero() {
		f.tokens = f.burst
	} else {
		f.tokens += now.Sub(f.last).Seconds() * f.rate
		if f.tokens > f.burst {
			f.tokens = f.burst
		}
	}
	f.last = now
	if f.tokens < 1 {
		return false
	}
	f.tokens--
	return true
}
