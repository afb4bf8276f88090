package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rileyhilliard/pifleet/internal/errors"
	"github.com/rileyhilliard/pifleet/internal/events"
	"github.com/rileyhilliard/pifleet/internal/logger"
	"github.com/rileyhilliard/pifleet/pkg/sshx"
	"github.com/rileyhilliard/pifleet/pkg/sshx/sshxtest"
)

const testAddr = "192.168.4.20"

func unreachableErr() error {
	return errors.New(errors.ErrUnreachable, "Couldn't reach the device", "")
}

func authErr() error {
	return errors.New(errors.ErrAuth, "All keys were rejected", "")
}

// newTestManager wires a manager to a fake dialer and a test clock, with
// keepalive probing off so the clock's only waiters are reconnect delays.
func newTestManager(dialer *sshxtest.FakeDialer, clk *testclock.Clock) *Manager {
	return NewManager(Config{
		Dialer:    dialer.Dial,
		Clock:     clk,
		Log:       logger.Noop(),
		Keepalive: -1,
	})
}

func waitForState(t *testing.T, s *Session, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return s.State() == want },
		2*time.Second, 5*time.Millisecond, "session never reached %s", want)
}

func TestExecuteRoundTrip(t *testing.T) {
	fake := sshxtest.NewFakeClient(testAddr)
	fake.SetCommandResponse("hostname", sshxtest.CommandResponse{Stdout: "pi-garage\n"})

	dialer := sshxtest.NewFakeDialer()
	dialer.QueueClient(testAddr, fake)

	mgr := newTestManager(dialer, testclock.NewClock(time.Now()))
	defer mgr.CloseAll()

	s, err := mgr.Acquire(context.Background(), testAddr, Credentials{Name: "garage"})
	require.NoError(t, err)
	assert.Equal(t, StateReady, s.State())
	assert.Equal(t, "garage", s.Name())
	assert.Equal(t, testAddr, s.Address())

	result, err := s.Execute(context.Background(), "hostname")
	require.NoError(t, err)
	assert.Equal(t, "pi-garage\n", result.Stdout)
	assert.Equal(t, 0, result.ExitCode)
}

func TestExecuteSequentialOrder(t *testing.T) {
	fake := sshxtest.NewFakeClient(testAddr)
	fake.SetCommandResponse("hostname", sshxtest.CommandResponse{Stdout: "pi-garage\n"})
	fake.SetCommandResponse("uptime", sshxtest.CommandResponse{Stdout: "up 2 days\n"})
	fake.SetCommandResponse("uname -m", sshxtest.CommandResponse{Stdout: "aarch64\n"})

	dialer := sshxtest.NewFakeDialer()
	dialer.QueueClient(testAddr, fake)

	mgr := newTestManager(dialer, testclock.NewClock(time.Now()))
	defer mgr.CloseAll()

	s, err := mgr.Acquire(context.Background(), testAddr, Credentials{Name: "garage"})
	require.NoError(t, err)

	commands := []string{"hostname", "uptime", "uname -m"}
	want := []string{"pi-garage\n", "up 2 days\n", "aarch64\n"}
	for i, command := range commands {
		result, err := s.Execute(context.Background(), command)
		require.NoError(t, err)
		assert.Equal(t, want[i], result.Stdout)
	}

	// The transport saw the commands in issue order, nothing reordered.
	assert.Equal(t, commands, fake.ExecLog())
}

func TestAcquireReturnsExistingSession(t *testing.T) {
	dialer := sshxtest.NewFakeDialer()
	dialer.QueueClient(testAddr, sshxtest.NewFakeClient(testAddr))

	mgr := newTestManager(dialer, testclock.NewClock(time.Now()))
	defer mgr.CloseAll()

	first, err := mgr.Acquire(context.Background(), testAddr, Credentials{})
	require.NoError(t, err)
	second, err := mgr.Acquire(context.Background(), testAddr, Credentials{})
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, dialer.DialCount(testAddr))
}

func TestAcquireSharesInflightDial(t *testing.T) {
	block := make(chan struct{})
	var mu sync.Mutex
	dials := 0
	dialer := func(ctx context.Context, host string, opts sshx.Options) (sshx.SSHClient, error) {
		mu.Lock()
		dials++
		mu.Unlock()
		<-block
		return sshxtest.NewFakeClient(host), nil
	}

	mgr := NewManager(Config{
		Dialer:    dialer,
		Clock:     testclock.NewClock(time.Now()),
		Log:       logger.Noop(),
		Keepalive: -1,
	})
	defer mgr.CloseAll()

	type acquired struct {
		s   *Session
		err error
	}
	results := make(chan acquired, 2)
	for i := 0; i < 2; i++ {
		go func() {
			s, err := mgr.Acquire(context.Background(), testAddr, Credentials{})
			results <- acquired{s, err}
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(block)

	a := <-results
	b := <-results
	require.NoError(t, a.err)
	require.NoError(t, b.err)
	assert.Same(t, a.s, b.s)

	mu.Lock()
	assert.Equal(t, 1, dials)
	mu.Unlock()
}

func TestAcquireDialFailure(t *testing.T) {
	dialer := sshxtest.NewFakeDialer()
	dialer.QueueErr(testAddr, unreachableErr())
	dialer.QueueClient(testAddr, sshxtest.NewFakeClient(testAddr))

	mgr := newTestManager(dialer, testclock.NewClock(time.Now()))
	defer mgr.CloseAll()

	_, err := mgr.Acquire(context.Background(), testAddr, Credentials{Name: "garage"})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrUnreachable))
	assert.Equal(t, 0, mgr.Len())

	// The failed slot is gone, so the next acquire dials fresh.
	s, err := mgr.Acquire(context.Background(), testAddr, Credentials{Name: "garage"})
	require.NoError(t, err)
	assert.Equal(t, StateReady, s.State())
}

func TestAcquireAuthRejected(t *testing.T) {
	dialer := sshxtest.NewFakeDialer()
	dialer.QueueErr(testAddr, authErr())

	mgr := newTestManager(dialer, testclock.NewClock(time.Now()))
	defer mgr.CloseAll()

	_, err := mgr.Acquire(context.Background(), testAddr, Credentials{})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrAuth))
	assert.Equal(t, 0, mgr.Len())
}

func TestExecuteReconnectsWithBackoff(t *testing.T) {
	clk := testclock.NewClock(time.Now())

	fake1 := sshxtest.NewFakeClient(testAddr)
	fake2 := sshxtest.NewFakeClient(testAddr)
	fake2.SetCommandResponse("uptime", sshxtest.CommandResponse{Stdout: "up 2 days\n"})

	dialer := sshxtest.NewFakeDialer()
	dialer.QueueClient(testAddr, fake1)
	dialer.QueueErr(testAddr, unreachableErr())
	dialer.QueueErr(testAddr, unreachableErr())
	dialer.QueueClient(testAddr, fake2)

	mgr := newTestManager(dialer, clk)
	defer mgr.CloseAll()

	s, err := mgr.Acquire(context.Background(), testAddr, Credentials{Name: "garage"})
	require.NoError(t, err)

	// The transport dies mid-flight: the command fails with a lost
	// connection, not a hang.
	fake1.Sever()
	_, err = s.Execute(context.Background(), "uptime")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrConnLost))

	waitForState(t, s, StateDegraded)

	// While the retry loop is backing off, calls fail fast.
	_, err = s.Execute(context.Background(), "uptime")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrConnLost))

	// Redial 1 failed immediately; the next two wait 500ms then 1s.
	require.NoError(t, clk.WaitAdvance(500*time.Millisecond, 2*time.Second, 1))
	require.NoError(t, clk.WaitAdvance(time.Second, 2*time.Second, 1))

	waitForState(t, s, StateReady)

	result, err := s.Execute(context.Background(), "uptime")
	require.NoError(t, err)
	assert.Equal(t, "up 2 days\n", result.Stdout)
	assert.True(t, fake1.Closed())
}

func TestReconnectExhaustionClosesSession(t *testing.T) {
	clk := testclock.NewClock(time.Now())

	fake := sshxtest.NewFakeClient(testAddr)
	dialer := sshxtest.NewFakeDialer()
	dialer.QueueClient(testAddr, fake)
	// Every redial fails; the drained queue keeps repeating this outcome.
	dialer.QueueErr(testAddr, unreachableErr())

	mgr := newTestManager(dialer, clk)
	defer mgr.CloseAll()

	s, err := mgr.Acquire(context.Background(), testAddr, Credentials{Name: "garage"})
	require.NoError(t, err)

	fake.Sever()
	_, err = s.Execute(context.Background(), "uptime")
	require.Error(t, err)

	// Five attempts: one immediate, then 500ms, 1s, 2s, 4s apart.
	for _, delay := range []time.Duration{
		500 * time.Millisecond, time.Second, 2 * time.Second, 4 * time.Second,
	} {
		require.NoError(t, clk.WaitAdvance(delay, 2*time.Second, 1))
	}

	waitForState(t, s, StateClosed)
	s.WaitClosed()

	_, err = s.Execute(context.Background(), "uptime")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrConnLost))

	// The manager dropped the slot, so the device can be re-acquired later.
	assert.Equal(t, 0, mgr.Len())
}

func TestReconnectNeverRetriesAuthRejection(t *testing.T) {
	clk := testclock.NewClock(time.Now())

	fake := sshxtest.NewFakeClient(testAddr)
	dialer := sshxtest.NewFakeDialer()
	dialer.QueueClient(testAddr, fake)
	dialer.QueueErr(testAddr, authErr())

	mgr := newTestManager(dialer, clk)
	defer mgr.CloseAll()

	s, err := mgr.Acquire(context.Background(), testAddr, Credentials{})
	require.NoError(t, err)

	fake.Sever()
	_, err = s.Execute(context.Background(), "uptime")
	require.Error(t, err)

	// No clock advance: the rejected redial closes the session outright.
	waitForState(t, s, StateClosed)
	assert.Equal(t, 2, dialer.DialCount(testAddr))
}

func TestKeepaliveDetectsSilentDeath(t *testing.T) {
	clk := testclock.NewClock(time.Now())

	fake1 := sshxtest.NewFakeClient(testAddr)
	fake2 := sshxtest.NewFakeClient(testAddr)

	dialer := sshxtest.NewFakeDialer()
	dialer.QueueClient(testAddr, fake1)
	dialer.QueueClient(testAddr, fake2)

	mgr := NewManager(Config{
		Dialer:    dialer.Dial,
		Clock:     clk,
		Log:       logger.Noop(),
		Keepalive: 15 * time.Second,
	})
	defer mgr.CloseAll()

	s, err := mgr.Acquire(context.Background(), testAddr, Credentials{Name: "garage"})
	require.NoError(t, err)

	// A healthy probe keeps the session Ready.
	require.NoError(t, clk.WaitAdvance(15*time.Second, 2*time.Second, 1))
	assert.Equal(t, StateReady, s.State())

	// The device reboots without closing the TCP stream; the next probe
	// notices and the immediate redial brings up a fresh transport.
	fake1.Sever()
	require.NoError(t, clk.WaitAdvance(15*time.Second, 2*time.Second, 1))

	waitForState(t, s, StateReady)
	assert.Equal(t, 2, dialer.DialCount(testAddr))
	assert.True(t, fake1.Closed())
}

func TestSessionEventsOnReconnect(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	bus := events.NewBus()

	var mu sync.Mutex
	counts := make(map[events.Type]int)
	attempts := []int{}
	unsub := bus.SubscribeTypes(func(event events.Event) {
		mu.Lock()
		counts[event.Type]++
		if event.Type == events.SessionConnecting && event.Attempt > 0 {
			attempts = append(attempts, event.Attempt)
		}
		mu.Unlock()
	}, events.SessionTypes()...)
	defer unsub()

	fake1 := sshxtest.NewFakeClient(testAddr)
	fake2 := sshxtest.NewFakeClient(testAddr)
	dialer := sshxtest.NewFakeDialer()
	dialer.QueueClient(testAddr, fake1)
	dialer.QueueErr(testAddr, unreachableErr())
	dialer.QueueClient(testAddr, fake2)

	mgr := NewManager(Config{
		Dialer:    dialer.Dial,
		Clock:     clk,
		Bus:       bus,
		Log:       logger.Noop(),
		Keepalive: -1,
	})
	defer mgr.CloseAll()

	s, err := mgr.Acquire(context.Background(), testAddr, Credentials{Name: "garage"})
	require.NoError(t, err)

	fake1.Sever()
	_, _ = s.Execute(context.Background(), "uptime")

	require.NoError(t, clk.WaitAdvance(500*time.Millisecond, 2*time.Second, 1))
	waitForState(t, s, StateReady)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return counts[events.SessionRecovered] == 1
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	// connecting twice: the initial dial, then redial attempt 1 failing.
	assert.Equal(t, 2, counts[events.SessionConnecting])
	assert.Equal(t, 1, counts[events.SessionReady])
	assert.Equal(t, 1, counts[events.SessionDegraded])
	assert.Equal(t, 1, counts[events.SessionRecovered])
	assert.Equal(t, []int{1}, attempts)
}

func TestReleaseClosesSession(t *testing.T) {
	dialer := sshxtest.NewFakeDialer()
	fake := sshxtest.NewFakeClient(testAddr)
	dialer.QueueClient(testAddr, fake)

	mgr := newTestManager(dialer, testclock.NewClock(time.Now()))

	s, err := mgr.Acquire(context.Background(), testAddr, Credentials{})
	require.NoError(t, err)

	mgr.Release(testAddr)
	assert.Equal(t, StateClosed, s.State())
	assert.True(t, fake.Closed())
	assert.Equal(t, 0, mgr.Len())
}

func TestCloseAllRefusesFurtherAcquires(t *testing.T) {
	dialer := sshxtest.NewFakeDialer()
	dialer.QueueClient(testAddr, sshxtest.NewFakeClient(testAddr))

	mgr := newTestManager(dialer, testclock.NewClock(time.Now()))

	s, err := mgr.Acquire(context.Background(), testAddr, Credentials{})
	require.NoError(t, err)

	mgr.CloseAll()
	assert.Equal(t, StateClosed, s.State())

	_, err = mgr.Acquire(context.Background(), testAddr, Credentials{})
	require.Error(t, err)
}

func TestStatesReportsTrackedSessions(t *testing.T) {
	dialer := sshxtest.NewFakeDialer()
	dialer.QueueClient("10.0.0.1", sshxtest.NewFakeClient("10.0.0.1"))
	dialer.QueueClient("10.0.0.2", sshxtest.NewFakeClient("10.0.0.2"))

	mgr := newTestManager(dialer, testclock.NewClock(time.Now()))
	defer mgr.CloseAll()

	_, err := mgr.Acquire(context.Background(), "10.0.0.2", Credentials{Name: "attic"})
	require.NoError(t, err)
	_, err = mgr.Acquire(context.Background(), "10.0.0.1", Credentials{Name: "garage"})
	require.NoError(t, err)

	statuses := mgr.States()
	require.Len(t, statuses, 2)
	assert.Equal(t, "10.0.0.1", statuses[0].Address)
	assert.Equal(t, "garage", statuses[0].Name)
	assert.Equal(t, StateReady, statuses[0].State)
	assert.Equal(t, "10.0.0.2", statuses[1].Address)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "degraded", StateDegraded.String())
	assert.Equal(t, "closed", StateClosed.String())
}
