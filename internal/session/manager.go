package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/juju/clock"

	"github.com/rileyhilliard/pifleet/internal/errors"
	"github.com/rileyhilliard/pifleet/internal/events"
	"github.com/rileyhilliard/pifleet/internal/logger"
	"github.com/rileyhilliard/pifleet/pkg/sshx"
)

const (
	// DefaultKeepalive is how often an idle session is probed.
	DefaultKeepalive = 15 * time.Second

	// Reconnect backoff: 500ms doubling to 8s, five tries.
	DefaultRetryAttempts = 5
	DefaultRetryDelay    = 500 * time.Millisecond
	DefaultRetryMaxDelay = 8 * time.Second
)

// Credentials name how to authenticate to one device. Zero values defer to
// ssh_config and the usual key locations.
type Credentials struct {
	User         string
	Port         int
	IdentityFile string
	Name         string // logical device name for events and messages
}

func (c Credentials) sshOptions() sshx.Options {
	return sshx.Options{
		User:         c.User,
		Port:         c.Port,
		IdentityFile: c.IdentityFile,
	}
}

// Config carries the manager's collaborators. Zero values get defaults.
type Config struct {
	Dialer        sshx.Dialer
	Clock         clock.Clock
	Bus           *events.Bus
	Log           logger.Logger
	Keepalive     time.Duration // negative disables probing
	RetryAttempts int
	RetryDelay    time.Duration
	RetryMaxDelay time.Duration
	DialTimeout   time.Duration
}

func (c *Config) fill() {
	if c.Dialer == nil {
		c.Dialer = sshx.DefaultDialer
	}
	if c.Clock == nil {
		c.Clock = clock.WallClock
	}
	if c.Log == nil {
		c.Log = logger.Default()
	}
	if c.Keepalive == 0 {
		c.Keepalive = DefaultKeepalive
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = DefaultRetryAttempts
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = DefaultRetryMaxDelay
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = sshx.DefaultDialTimeout
	}
}

// entry is one address slot. While a dial is in flight, session is nil and
// ready is open; waiters block on ready instead of dialing again.
type entry struct {
	session *Session
	ready   chan struct{}
}

// Manager hands out sessions, one live transport per address.
type Manager struct {
	cfg Config

	mu      sync.Mutex
	entries map[string]*entry
	closed  bool
}

// NewManager creates a session manager.
func NewManager(cfg Config) *Manager {
	cfg.fill()
	return &Manager{
		cfg:     cfg,
		entries: make(map[string]*entry),
	}
}

// Acquire returns the live session for an address, dialing if there is
// none. Concurrent acquires for the same address share one dial; only the
// winner opens a transport. Auth rejection comes back as ErrAuth and is
// never retried.
func (m *Manager) Acquire(ctx context.Context, address string, creds Credentials) (*Session, error) {
	name := creds.Name
	if name == "" {
		name = address
	}

	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return nil, errors.New(errors.ErrInternal, "Session manager is shut down", "")
		}

		if e, ok := m.entries[address]; ok {
			if e.session != nil {
				if e.session.State() != StateClosed {
					s := e.session
					m.mu.Unlock()
					return s, nil
				}
				// Stale slot from a session that closed itself.
				delete(m.entries, address)
			} else {
				// Someone else is dialing; wait for them.
				wait := e.ready
				m.mu.Unlock()
				select {
				case <-wait:
					continue
				case <-ctx.Done():
					return nil, errors.WrapWithCode(ctx.Err(), errors.ErrTimeout,
						fmt.Sprintf("Gave up waiting for the connection to %s", name), "")
				}
			}
		}

		e := &entry{ready: make(chan struct{})}
		m.entries[address] = e
		m.mu.Unlock()

		s, err := m.dial(ctx, address, name, creds)

		m.mu.Lock()
		if err != nil {
			delete(m.entries, address)
		} else {
			e.session = s
		}
		close(e.ready)
		m.mu.Unlock()

		return s, err
	}
}

// dial opens the transport and wraps it in a session.
func (m *Manager) dial(ctx context.Context, address, name string, creds Credentials) (*Session, error) {
	m.publish(events.Event{Type: events.SessionConnecting, Device: name, Address: address})

	dctx, cancel := context.WithTimeout(ctx, m.cfg.DialTimeout)
	defer cancel()

	client, err := m.cfg.Dialer(dctx, address, creds.sshOptions())
	if err != nil {
		if errors.IsCode(err, errors.ErrAuth) {
			return nil, err
		}
		return nil, errors.WrapWithCode(err, errors.ErrUnreachable,
			fmt.Sprintf("Couldn't reach %s", name),
			"Check that the device is powered on and on the network.")
	}

	return newSession(client, address, name, creds.sshOptions(), m.cfg, func(s *Session) {
		m.removeEntry(address, s)
	}), nil
}

// removeEntry drops a session's slot, but only if the slot still holds that
// session; a replacement acquired in the meantime stays.
func (m *Manager) removeEntry(address string, s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[address]; ok && e.session == s {
		delete(m.entries, address)
	}
}

// Get returns the live session for an address without dialing.
func (m *Manager) Get(address string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[address]
	if !ok || e.session == nil || e.session.State() == StateClosed {
		return nil, false
	}
	return e.session, true
}

// Release closes and forgets the session for an address.
func (m *Manager) Release(address string) {
	m.mu.Lock()
	e, ok := m.entries[address]
	if ok {
		delete(m.entries, address)
	}
	m.mu.Unlock()

	if ok && e.session != nil {
		_ = e.session.Close()
	}
}

// CloseAll tears down every session and refuses further acquires.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	m.closed = true
	sessions := make([]*Session, 0, len(m.entries))
	for address, e := range m.entries {
		if e.session != nil {
			sessions = append(sessions, e.session)
		}
		delete(m.entries, address)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		_ = s.Close()
	}
}

// Status is one row of the manager's table.
type Status struct {
	Address string
	Name    string
	State   State
}

// States reports every tracked address and its state, dial-in-flight slots
// included, sorted by address.
func (m *Manager) States() []Status {
	m.mu.Lock()
	statuses := make([]Status, 0, len(m.entries))
	for address, e := range m.entries {
		status := Status{Address: address, State: StateConnecting}
		if e.session != nil {
			status.Name = e.session.Name()
			status.State = e.session.State()
		}
		statuses = append(statuses, status)
	}
	m.mu.Unlock()

	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Address < statuses[j].Address })
	return statuses
}

// Len returns the number of tracked addresses.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Manager) publish(event events.Event) {
	if m.cfg.Bus == nil {
		return
	}
	m.cfg.Bus.Publish(event)
}
