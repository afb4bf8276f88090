package hub

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/rileyhilliard/pifleet/internal/errors"
	"github.com/rileyhilliard/pifleet/internal/logger"
	"github.com/rileyhilliard/pifleet/internal/session"
	"github.com/rileyhilliard/pifleet/internal/telemetry"
	"github.com/rileyhilliard/pifleet/pkg/sshx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWait = 5 * time.Second

// fakeSource is a scripted Source. The default ExecuteStream blocks until
// the context ends, like a journalctl follow with a quiet unit.
type fakeSource struct {
	addr     string
	stream   func(ctx context.Context, command string, stdout, stderr io.Writer) (int, error)
	shell    sshx.Interactive
	shellErr error

	mu       sync.Mutex
	commands []string
}

func (s *fakeSource) Address() string { return s.addr }

func (s *fakeSource) Execute(ctx context.Context, command string) (sshx.Result, error) {
	return sshx.Result{}, nil
}

func (s *fakeSource) ExecuteStream(ctx context.Context, command string, stdout, stderr io.Writer) (int, error) {
	s.mu.Lock()
	s.commands = append(s.commands, command)
	s.mu.Unlock()
	if s.stream != nil {
		return s.stream(ctx, command, stdout, stderr)
	}
	<-ctx.Done()
	return -1, ctx.Err()
}

func (s *fakeSource) OpenInteractive(ctx context.Context, size session.TermSize) (sshx.Interactive, error) {
	if s.shellErr != nil {
		return nil, s.shellErr
	}
	return s.shell, nil
}

func (s *fakeSource) streamed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.commands))
	copy(out, s.commands)
	return out
}

// fakeAcquirer hands out one fakeSource per address and can be told to
// fail, as if the session layer gave up on the host.
type fakeAcquirer struct {
	mu      sync.Mutex
	sources map[string]*fakeSource
	err     error
	calls   int
}

func newFakeAcquirer() *fakeAcquirer {
	return &fakeAcquirer{sources: make(map[string]*fakeSource)}
}

func (a *fakeAcquirer) acquire(ctx context.Context, source string) (Source, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if a.err != nil {
		return nil, a.err
	}
	src, ok := a.sources[source]
	if !ok {
		src = &fakeSource{addr: source}
		a.sources[source] = src
	}
	return src, nil
}

func (a *fakeAcquirer) install(src *fakeSource) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sources[src.addr] = src
}

func (a *fakeAcquirer) setErr(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.err = err
}

func (a *fakeAcquirer) acquireCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

// fakeSampler mints numbered snapshots so tests can tell samples apart.
// Setting gate makes Sample block until the gate closes.
type fakeSampler struct {
	gate chan struct{}

	mu     sync.Mutex
	calls  int
	err    error
	forgot []string
}

func (f *fakeSampler) Sample(ctx context.Context, r telemetry.Runner) (*telemetry.MetricsSnapshot, error) {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.calls++
	return &telemetry.MetricsSnapshot{ProcessCount: f.calls}, nil
}

func (f *fakeSampler) Forget(address string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forgot = append(f.forgot, address)
}

func (f *fakeSampler) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeSampler) forgotten() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.forgot))
	copy(out, f.forgot)
	return out
}

func (f *fakeSampler) sampleCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestHub(t *testing.T, mutate func(*Config)) (*Hub, *testclock.Clock, *fakeAcquirer, *fakeSampler) {
	t.Helper()
	clk := testclock.NewClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	acq := newFakeAcquirer()
	sampler := &fakeSampler{}
	cfg := Config{
		Acquire: acq.acquire,
		Sampler: sampler,
		Clock:   clk,
		Log:     logger.Noop(),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	h := New(cfg)
	t.Cleanup(func() { _ = h.Close() })
	return h, clk, acq, sampler
}

func waitEvent(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		require.True(t, ok, "subscription ended early")
		return ev
	case <-time.After(testWait):
		t.Fatal("timed out waiting for an event")
		return Event{}
	}
}

// waitClosed collects everything still queued until the channel closes.
func waitClosed(t *testing.T, sub *Subscription) []Event {
	t.Helper()
	deadline := time.After(testWait)
	var events []Event
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-deadline:
			t.Fatal("timed out waiting for the subscription to close")
			return nil
		}
	}
}

func assertNoEvent(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case ev := <-sub.Events():
		t.Fatalf("unexpected %v event, seq %d", ev.Kind, ev.Seq)
	default:
	}
}

func waitSignal(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(testWait):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestSubscribeMetricsValidation(t *testing.T) {
	h, _, _, _ := newTestHub(t, nil)

	_, err := h.SubscribeMetrics(context.Background(), "", 0)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrConfig))

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = h.SubscribeMetrics(cancelled, "pi4.local", 0)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrTimeout))
}

func TestMetricsFanOutSharesOneLoop(t *testing.T) {
	h, clk, _, _ := newTestHub(t, nil)
	ctx := context.Background()

	first, err := h.SubscribeMetrics(ctx, "pi4.local", 0)
	require.NoError(t, err)

	ev := waitEvent(t, first)
	assert.Equal(t, EventSnapshot, ev.Kind)
	require.NotNil(t, ev.Snapshot)
	assert.Equal(t, 1, ev.Snapshot.ProcessCount)
	assert.Equal(t, uint64(0), ev.Seq)
	assert.True(t, ev.Time.Equal(clk.Now()))

	second, err := h.SubscribeMetrics(ctx, "pi4.local", 0)
	require.NoError(t, err)

	// Joining wakes the shared loop; both consumers get the same snapshot.
	evFirst := waitEvent(t, first)
	evSecond := waitEvent(t, second)
	assert.Same(t, evFirst.Snapshot, evSecond.Snapshot)
	assert.Equal(t, 2, evSecond.Snapshot.ProcessCount)
	assert.Equal(t, uint64(1), evFirst.Seq)
	assert.Equal(t, uint64(0), evSecond.Seq)

	h.mu.Lock()
	assert.Len(t, h.metrics, 1)
	h.mu.Unlock()
}

func TestMetricsIntervalAdvancesSamples(t *testing.T) {
	h, clk, _, _ := newTestHub(t, func(cfg *Config) { cfg.Interval = 2 * time.Second })
	ctx := context.Background()

	sub, err := h.SubscribeMetrics(ctx, "pi4.local", 0)
	require.NoError(t, err)
	waitEvent(t, sub)

	require.NoError(t, clk.WaitAdvance(2*time.Second, testWait, 1))
	ev := waitEvent(t, sub)
	assert.Equal(t, 2, ev.Snapshot.ProcessCount)

	require.NoError(t, clk.WaitAdvance(2*time.Second, testWait, 1))
	ev = waitEvent(t, sub)
	assert.Equal(t, 3, ev.Snapshot.ProcessCount)
}

func TestMetricsSlowSubscriberSlowsTheLoop(t *testing.T) {
	h, clk, _, _ := newTestHub(t, func(cfg *Config) { cfg.Interval = 2 * time.Second })
	ctx := context.Background()

	slow, err := h.SubscribeMetrics(ctx, "pi4.local", 10*time.Second)
	require.NoError(t, err)
	waitEvent(t, slow)

	// Advancing past the hub default fires nothing; the only watcher asked
	// for ten seconds.
	require.NoError(t, clk.WaitAdvance(2*time.Second, testWait, 1))
	assertNoEvent(t, slow)

	require.NoError(t, clk.WaitAdvance(8*time.Second, testWait, 1))
	ev := waitEvent(t, slow)
	assert.Equal(t, 2, ev.Snapshot.ProcessCount)
}

func TestMetricsFastJoinerSpeedsTheLoop(t *testing.T) {
	h, clk, _, _ := newTestHub(t, func(cfg *Config) { cfg.Interval = 2 * time.Second })
	ctx := context.Background()

	slow, err := h.SubscribeMetrics(ctx, "pi4.local", 10*time.Second)
	require.NoError(t, err)
	waitEvent(t, slow)

	fast, err := h.SubscribeMetrics(ctx, "pi4.local", time.Second)
	require.NoError(t, err)

	// The joiner kicks an immediate shared sample and drags the cadence
	// down to its one-second request.
	waitEvent(t, fast)
	waitEvent(t, slow)

	require.NoError(t, clk.WaitAdvance(time.Second, testWait, 1))
	ev := waitEvent(t, fast)
	assert.Equal(t, 3, ev.Snapshot.ProcessCount)
	waitEvent(t, slow)
}

func TestMetricsMixedIntervalsShareOneLoop(t *testing.T) {
	h, clk, _, sampler := newTestHub(t, func(cfg *Config) { cfg.Interval = 2 * time.Second })
	ctx := context.Background()

	twoSec, err := h.SubscribeMetrics(ctx, "pi4.local", 2*time.Second)
	require.NoError(t, err)
	waitEvent(t, twoSec)

	fiveSec, err := h.SubscribeMetrics(ctx, "pi4.local", 5*time.Second)
	require.NoError(t, err)
	waitEvent(t, twoSec)
	waitEvent(t, fiveSec)

	// One loop at the fastest request serves both: a two-second advance
	// costs one sample total, not one per subscriber.
	require.NoError(t, clk.WaitAdvance(2*time.Second, testWait, 1))
	evA := waitEvent(t, twoSec)
	evB := waitEvent(t, fiveSec)
	assert.Same(t, evA.Snapshot, evB.Snapshot)
	assert.Equal(t, 3, sampler.sampleCount())

	h.mu.Lock()
	assert.Len(t, h.metrics, 1)
	h.mu.Unlock()
}

func TestMetricsSubscriptionStates(t *testing.T) {
	h, _, _, sampler := newTestHub(t, nil)
	sampler.gate = make(chan struct{})
	ctx := context.Background()

	sub, err := h.SubscribeMetrics(ctx, "pi4.local", 0)
	require.NoError(t, err)
	assert.Equal(t, SubOpen, sub.State())

	close(sampler.gate)
	waitEvent(t, sub)
	assert.Equal(t, SubStreaming, sub.State())

	sub.Close()
	waitClosed(t, sub)
	assert.Equal(t, SubClosed, sub.State())
}

func TestMetricsSampleErrorIsTransient(t *testing.T) {
	h, clk, _, sampler := newTestHub(t, func(cfg *Config) { cfg.Interval = 2 * time.Second })
	sampler.setErr(errors.New(errors.ErrParse, "Metrics output was empty", ""))
	ctx := context.Background()

	sub, err := h.SubscribeMetrics(ctx, "pi4.local", 0)
	require.NoError(t, err)

	// The failed pass delivers nothing and keeps the subscription open.
	require.NoError(t, clk.WaitAdvance(0, testWait, 1))
	assertNoEvent(t, sub)
	assert.Equal(t, SubOpen, sub.State())

	sampler.setErr(nil)
	require.NoError(t, clk.WaitAdvance(2*time.Second, testWait, 1))
	ev := waitEvent(t, sub)
	assert.Equal(t, EventSnapshot, ev.Kind)
	assert.Equal(t, 1, ev.Snapshot.ProcessCount)
}

func TestMetricsAcquireFailureClosesSubscribers(t *testing.T) {
	h, _, acq, sampler := newTestHub(t, nil)
	acq.setErr(errors.New(errors.ErrUnreachable, "pi4.local is unreachable", ""))
	ctx := context.Background()

	sub, err := h.SubscribeMetrics(ctx, "pi4.local", 0)
	require.NoError(t, err)

	events := waitClosed(t, sub)
	require.Len(t, events, 2)
	assert.Equal(t, EventError, events[0].Kind)
	assert.True(t, errors.IsCode(events[0].Err, errors.ErrUnreachable))
	assert.Equal(t, EventClosed, events[1].Kind)
	assert.Equal(t, []string{"pi4.local"}, sampler.forgotten())

	// The loop retired itself; a new subscription starts a fresh attempt.
	before := acq.acquireCount()
	again, err := h.SubscribeMetrics(ctx, "pi4.local", 0)
	require.NoError(t, err)
	waitClosed(t, again)
	assert.Greater(t, acq.acquireCount(), before)
}

func TestMetricsLastUnsubscribeStopsLoop(t *testing.T) {
	h, _, _, _ := newTestHub(t, nil)
	ctx := context.Background()

	sub, err := h.SubscribeMetrics(ctx, "pi4.local", 0)
	require.NoError(t, err)
	waitEvent(t, sub)

	h.mu.Lock()
	loop := h.metrics["pi4.local"]
	h.mu.Unlock()
	require.NotNil(t, loop)

	sub.Close()
	events := waitClosed(t, sub)
	require.Len(t, events, 1)
	assert.Equal(t, EventClosed, events[0].Kind)

	done := make(chan error, 1)
	go func() { done <- loop.tomb.Wait() }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(testWait):
		t.Fatal("metrics loop did not stop")
	}

	h.mu.Lock()
	assert.Empty(t, h.metrics)
	h.mu.Unlock()
}

func TestHubCloseClosesEverything(t *testing.T) {
	h, _, _, _ := newTestHub(t, nil)
	ctx := context.Background()

	m1, err := h.SubscribeMetrics(ctx, "pi4.local", 0)
	require.NoError(t, err)
	m2, err := h.SubscribeMetrics(ctx, "pi5.local", 0)
	require.NoError(t, err)
	logs, err := h.SubscribeLogs(ctx, "pi4.local", "myapp.service")
	require.NoError(t, err)
	waitEvent(t, m1)
	waitEvent(t, m2)

	require.NoError(t, h.Close())

	for _, sub := range []*Subscription{m1, m2, logs} {
		events := waitClosed(t, sub)
		require.NotEmpty(t, events)
		assert.Equal(t, EventClosed, events[len(events)-1].Kind)
		assert.Equal(t, SubClosed, sub.State())
	}

	_, err = h.SubscribeMetrics(ctx, "pi4.local", 0)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrInternal))
	_, err = h.SubscribeLogs(ctx, "pi4.local", "myapp.service")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrInternal))
}
