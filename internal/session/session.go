// Package session keeps at most one live SSH transport per device address,
// watches it with keepalive probes, and reconnects with backoff when the
// transport drops. Callers acquire sessions from the Manager and run
// commands through them; they never touch the transport directly.
package session

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/juju/retry"
	"gopkg.in/tomb.v2"

	"github.com/rileyhilliard/pifleet/internal/errors"
	"github.com/rileyhilliard/pifleet/internal/events"
	"github.com/rileyhilliard/pifleet/internal/logger"
	"github.com/rileyhilliard/pifleet/pkg/sshx"
)

// State is a session's lifecycle position. Transitions only move forward
// except Degraded → Ready on a successful reconnect.
type State int

const (
	StateConnecting State = iota
	StateReady
	StateDegraded
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateDegraded:
		return "degraded"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// TermSize is a PTY geometry request.
type TermSize struct {
	Rows int
	Cols int
}

// Session is one managed transport to one device. Safe for concurrent use;
// Execute calls are serialized so command order is preserved.
type Session struct {
	address string
	name    string // logical device name, may equal address
	opts    sshx.Options

	dialer        sshx.Dialer
	clock         clock.Clock
	bus           *events.Bus
	log           logger.Logger
	keepalive     time.Duration
	retryAttempts int
	retryDelay    time.Duration
	retryMaxDelay time.Duration
	dialTimeout   time.Duration

	mu     sync.Mutex
	state  State
	client sshx.SSHClient

	execMu sync.Mutex

	kick chan struct{} // wakes the watchdog to reconnect now

	onClosed func(*Session)

	tomb tomb.Tomb
}

// newSession wraps a freshly dialed client and starts its watchdog.
func newSession(client sshx.SSHClient, address, name string, opts sshx.Options, cfg Config, onClosed func(*Session)) *Session {
	s := &Session{
		address:       address,
		name:          name,
		opts:          opts,
		dialer:        cfg.Dialer,
		clock:         cfg.Clock,
		bus:           cfg.Bus,
		log:           cfg.Log,
		keepalive:     cfg.Keepalive,
		retryAttempts: cfg.RetryAttempts,
		retryDelay:    cfg.RetryDelay,
		retryMaxDelay: cfg.RetryMaxDelay,
		dialTimeout:   cfg.DialTimeout,
		state:         StateReady,
		client:        client,
		kick:          make(chan struct{}, 1),
		onClosed:      onClosed,
	}
	s.tomb.Go(s.run)
	s.publish(events.Event{Type: events.SessionReady})
	return s
}

// Address returns the dial target.
func (s *Session) Address() string {
	return s.address
}

// Name returns the logical device name.
func (s *Session) Name() string {
	return s.name
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// WaitClosed blocks until the session reaches Closed and its watchdog has
// fully stopped.
func (s *Session) WaitClosed() {
	<-s.tomb.Dead()
}

// Close tears the session down. Idempotent.
func (s *Session) Close() error {
	s.closeWith(nil)
	return s.tomb.Wait()
}

// Execute runs one command and returns its output. Calls are serialized per
// session. While the session is reconnecting or closed the call fails fast
// with a connection-lost error instead of queueing behind the retry loop.
func (s *Session) Execute(ctx context.Context, command string) (sshx.Result, error) {
	s.execMu.Lock()
	defer s.execMu.Unlock()

	client, err := s.liveClient()
	if err != nil {
		return sshx.Result{}, err
	}

	result, err := client.Exec(ctx, command)
	if err != nil && errors.IsCode(err, errors.ErrConnLost) {
		s.transportFailed(client, err)
	}
	return result, err
}

// ExecuteStream runs a long-lived command, copying output to the writers as
// it arrives. Streams run concurrently with Execute calls; they hold no lock.
func (s *Session) ExecuteStream(ctx context.Context, command string, stdout, stderr io.Writer) (int, error) {
	client, err := s.liveClient()
	if err != nil {
		return -1, err
	}

	code, err := client.ExecStream(ctx, command, stdout, stderr)
	if err != nil && errors.IsCode(err, errors.ErrConnLost) {
		s.transportFailed(client, err)
	}
	return code, err
}

// OpenInteractive opens a PTY shell on the session's transport. The caller
// owns the shell; the session does not reconnect it when the transport dies.
func (s *Session) OpenInteractive(ctx context.Context, size TermSize) (sshx.Interactive, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrTimeout, "Shell open was cancelled", "")
	}

	client, err := s.liveClient()
	if err != nil {
		return nil, err
	}
	shell, err := client.OpenInteractive(size.Rows, size.Cols)
	if err != nil && errors.IsCode(err, errors.ErrConnLost) {
		s.transportFailed(client, err)
	}
	return shell, err
}

// liveClient returns the transport when the session is Ready.
func (s *Session) liveClient() (sshx.SSHClient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateReady:
		return s.client, nil
	case StateClosed:
		return nil, errors.New(errors.ErrConnLost,
			fmt.Sprintf("Session to %s is closed", s.name),
			"Acquire a fresh session.")
	default:
		return nil, errors.New(errors.ErrConnLost,
			fmt.Sprintf("Connection to %s was lost, reconnecting", s.name),
			"Retry once the session recovers.")
	}
}

// transportFailed flips Ready → Degraded and wakes the watchdog. The failing
// client is checked against the current one so a straggling call on an
// already-replaced transport can't degrade its successor. Reports whether it
// actually degraded the session.
func (s *Session) transportFailed(client sshx.SSHClient, cause error) bool {
	s.mu.Lock()
	if s.state != StateReady || s.client != client {
		s.mu.Unlock()
		return false
	}
	s.state = StateDegraded
	s.mu.Unlock()

	s.log.Debug("session %s transport failed: %v", s.name, cause)
	s.publish(events.Event{Type: events.SessionDegraded, Err: errString(cause)})

	select {
	case s.kick <- struct{}{}:
	default:
	}
	return true
}

// run is the watchdog loop: probe on an interval, reconnect on failure.
func (s *Session) run() error {
	for {
		var wake <-chan time.Time
		if s.keepalive > 0 {
			wake = s.clock.After(s.keepalive)
		}

		select {
		case <-s.tomb.Dying():
			return tomb.ErrDying
		case <-s.kick:
			if !s.reconnect() {
				return nil
			}
		case <-wake:
			if s.State() != StateReady {
				continue
			}
			client, err := s.probe()
			if err == nil {
				continue
			}
			if !s.transportFailed(client, err) {
				continue
			}
			// Consume our own kick so the next loop doesn't reconnect twice.
			select {
			case <-s.kick:
			default:
			}
			if !s.reconnect() {
				return nil
			}
		}
	}
}

// probe sends an application-level keepalive. OpenSSH replies to the
// keepalive request (with failure, which is fine); only a dead transport
// errors.
func (s *Session) probe() (sshx.SSHClient, error) {
	s.mu.Lock()
	client := s.client
	s.mu.Unlock()
	if client == nil {
		return nil, errors.New(errors.ErrConnLost, "No live transport", "")
	}
	_, _, err := client.SendRequest("keepalive@openssh.com", true, nil)
	return client, err
}

// reconnect redials with exponential backoff. Returns false when the
// session is done for: retries exhausted, auth rejected, or closed from
// outside mid-backoff.
func (s *Session) reconnect() bool {
	var fresh sshx.SSHClient
	var lastErr error

	err := retry.Call(retry.CallArgs{
		Func: func() error {
			dctx, cancel := context.WithTimeout(s.tomb.Context(context.Background()), s.dialTimeout)
			defer cancel()
			client, err := s.dialer(dctx, s.address, s.opts)
			if err != nil {
				return err
			}
			fresh = client
			return nil
		},
		// Rejected credentials won't improve with repetition.
		IsFatalError: func(err error) bool {
			return errors.IsCode(err, errors.ErrAuth)
		},
		NotifyFunc: func(err error, attempt int) {
			lastErr = err
			s.log.Debug("reconnect %s attempt %d failed: %v", s.name, attempt, err)
			s.publish(events.Event{Type: events.SessionConnecting, Attempt: attempt, Err: errString(err)})
		},
		Attempts:    s.retryAttempts,
		Delay:       s.retryDelay,
		MaxDelay:    s.retryMaxDelay,
		BackoffFunc: retry.DoubleDelay,
		Clock:       s.clock,
		Stop:        s.tomb.Dying(),
	})

	if err == nil {
		s.adopt(fresh)
		return true
	}

	select {
	case <-s.tomb.Dying():
		// Closed from outside while backing off; closeWith already ran or
		// is about to.
		return false
	default:
	}

	if lastErr == nil {
		lastErr = err
	}
	s.closeWith(lastErr)
	return false
}

// adopt swaps in a fresh transport and announces recovery.
func (s *Session) adopt(client sshx.SSHClient) {
	s.mu.Lock()
	old := s.client
	s.client = client
	s.state = StateReady
	s.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	s.log.Debug("session %s reconnected", s.name)
	s.publish(events.Event{Type: events.SessionRecovered})
}

// closeWith moves the session to Closed, closes the transport, and tells
// the manager to drop its entry. Idempotent.
func (s *Session) closeWith(cause error) {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosed
	client := s.client
	s.client = nil
	s.mu.Unlock()

	if client != nil {
		_ = client.Close()
	}
	s.publish(events.Event{Type: events.SessionClosed, Err: errString(cause)})
	if s.onClosed != nil {
		s.onClosed(s)
	}
	s.tomb.Kill(nil)
}

func (s *Session) publish(event events.Event) {
	if s.bus == nil {
		return
	}
	event.Device = s.name
	event.Address = s.address
	s.bus.Publish(event)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
