// Package hub fans live device data out to many concurrent consumers. One
// sampler loop per source feeds every metrics subscriber, one journalctl
// stream per (source, unit) feeds every log subscriber, and terminal bridges
// stay strictly one-to-one. A slow consumer only ever loses its own oldest
// events; it never stalls the producer or its neighbors.
package hub

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/rileyhilliard/pifleet/internal/errors"
	"github.com/rileyhilliard/pifleet/internal/logger"
	"github.com/rileyhilliard/pifleet/internal/session"
	"github.com/rileyhilliard/pifleet/internal/telemetry"
	"github.com/rileyhilliard/pifleet/internal/util"
	"github.com/rileyhilliard/pifleet/pkg/sshx"
)

const (
	// DefaultQueueSize bounds each subscription's event queue.
	DefaultQueueSize = 8
	// DefaultInterval is the metrics cadence when no subscriber asks for one.
	DefaultInterval = 2 * time.Second
	// DefaultTailLines is how much history a new log stream starts with.
	DefaultTailLines = 100
	// DefaultLineRate caps log fan-out in lines per second.
	DefaultLineRate = 100
)

// Source is the session surface the hub consumes. *session.Session
// satisfies it.
type Source interface {
	Address() string
	Execute(ctx context.Context, command string) (sshx.Result, error)
	ExecuteStream(ctx context.Context, command string, stdout, stderr io.Writer) (int, error)
	OpenInteractive(ctx context.Context, size session.TermSize) (sshx.Interactive, error)
}

// AcquireFunc hands the hub a live session for a source. The session layer
// owns reconnection; the hub treats an acquire failure as the source being
// gone for good and closes that source's subscriptions.
type AcquireFunc func(ctx context.Context, source string) (Source, error)

// MetricsSampler produces snapshots for the per-source loops.
// *telemetry.Sampler satisfies it.
type MetricsSampler interface {
	Sample(ctx context.Context, runner telemetry.Runner) (*telemetry.MetricsSnapshot, error)
	Forget(address string)
}

// Config wires a Hub. Acquire and Sampler are required; the rest defaults.
type Config struct {
	Acquire AcquireFunc
	Sampler MetricsSampler
	Clock   clock.Clock
	Log     logger.Logger

	QueueSize int
	Interval  time.Duration
	TailLines int
	LineRate  int
}

func (c *Config) fill() {
	if c.Clock == nil {
		c.Clock = clock.WallClock
	}
	if c.Log == nil {
		c.Log = logger.Noop()
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.TailLines <= 0 {
		c.TailLines = DefaultTailLines
	}
	if c.LineRate <= 0 {
		c.LineRate = DefaultLineRate
	}
}

// Hub owns the per-source loops and the subscription tables. The hub mutex
// only guards the lookup maps; each loop guards its own member set, so slow
// I/O against one source never blocks another.
type Hub struct {
	cfg Config

	mu      sync.Mutex
	closed  bool
	metrics map[string]*metricsLoop
	logs    map[string]*logTail

	dying   chan struct{}
	bridges sync.WaitGroup
}

func New(cfg Config) *Hub {
	cfg.fill()
	return &Hub{
		cfg:     cfg,
		metrics: make(map[string]*metricsLoop),
		logs:    make(map[string]*logTail),
		dying:   make(chan struct{}),
	}
}

// SubscribeMetrics attaches a new consumer to the source's snapshot stream,
// starting the source's sampler loop if this is its first subscriber. The
// loop runs at the fastest interval any live subscriber asked for; zero
// means the hub default.
func (h *Hub) SubscribeMetrics(ctx context.Context, source string, interval time.Duration) (*Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrTimeout, "Subscribe was cancelled", "")
	}
	if source == "" {
		return nil, errors.New(errors.ErrConfig, "A metrics subscription needs a source address", "")
	}

	sub := newSubscription(KindMetrics, source, "", h.cfg.QueueSize, interval)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, errors.New(errors.ErrInternal, "The hub is shut down", "")
	}
	loop := h.metrics[source]
	if loop == nil || loop.retired {
		loop = newMetricsLoop(h, source, sub)
		h.metrics[source] = loop
		loop.tomb.Go(loop.run)
	} else {
		loop.add(sub)
	}
	h.mu.Unlock()

	sub.cancel = func() { h.releaseMetricsSub(loop, sub) }
	return sub, nil
}

// SubscribeLogs attaches a new consumer to a unit's log stream on the
// source, starting the journalctl tail if this is its first subscriber.
func (h *Hub) SubscribeLogs(ctx context.Context, source, unit string) (*Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrTimeout, "Subscribe was cancelled", "")
	}
	if source == "" {
		return nil, errors.New(errors.ErrConfig, "A log subscription needs a source address", "")
	}
	if !util.ValidUnitName(unit) {
		return nil, errors.New(errors.ErrConfig,
			fmt.Sprintf("'%s' doesn't look like a systemd unit name", unit),
			"Unit names use letters, digits, and . _ - @ only.")
	}

	sub := newSubscription(KindLogs, source, unit, h.cfg.QueueSize, 0)
	key := source + "\x00" + unit

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, errors.New(errors.ErrInternal, "The hub is shut down", "")
	}
	tail := h.logs[key]
	if tail == nil || tail.retired {
		tail = newLogTail(h, key, source, unit, sub)
		h.logs[key] = tail
		tail.tomb.Go(tail.run)
	} else {
		tail.add(sub)
	}
	h.mu.Unlock()

	sub.cancel = func() { h.releaseLogSub(tail, sub) }
	return sub, nil
}

// releaseMetricsSub detaches one subscriber; the loop stops once the last
// one leaves.
func (h *Hub) releaseMetricsSub(loop *metricsLoop, sub *Subscription) {
	h.mu.Lock()
	empty := loop.remove(sub.id)
	if empty && h.metrics[loop.source] == loop {
		delete(h.metrics, loop.source)
		loop.retired = true
	}
	h.mu.Unlock()
	if empty {
		loop.tomb.Kill(nil)
	}
}

func (h *Hub) releaseLogSub(tail *logTail, sub *Subscription) {
	h.mu.Lock()
	empty := tail.remove(sub.id)
	if empty && h.logs[tail.key] == tail {
		delete(h.logs, tail.key)
		tail.retired = true
	}
	h.mu.Unlock()
	if empty {
		tail.tomb.Kill(nil)
	}
}

// dropMetricsLoop is called by a loop retiring itself after a terminal
// failure, so a later subscriber starts a fresh loop.
func (h *Hub) dropMetricsLoop(loop *metricsLoop) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.metrics[loop.source] == loop {
		delete(h.metrics, loop.source)
	}
	loop.retired = true
}

func (h *Hub) dropLogTail(tail *logTail) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.logs[tail.key] == tail {
		delete(h.logs, tail.key)
	}
	tail.retired = true
}

// Close stops every loop and tail, waits for them, and closes all
// subscriptions. Bridges see the shutdown and unwind too.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	loops := make([]*metricsLoop, 0, len(h.metrics))
	for _, l := range h.metrics {
		loops = append(loops, l)
	}
	tails := make([]*logTail, 0, len(h.logs))
	for _, t := range h.logs {
		tails = append(tails, t)
	}
	h.mu.Unlock()

	close(h.dying)
	for _, l := range loops {
		l.tomb.Kill(nil)
	}
	for _, t := range tails {
		t.tomb.Kill(nil)
	}
	for _, l := range loops {
		_ = l.tomb.Wait()
	}
	for _, t := range tails {
		_ = t.tomb.Wait()
	}
	h.bridges.Wait()
	return nil
}
