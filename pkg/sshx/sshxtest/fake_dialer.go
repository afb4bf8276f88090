package sshxtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/rileyhilliard/pifleet/pkg/sshx"
)

// DialOutcome is one scripted result of a dial attempt.
type DialOutcome struct {
	Client *FakeClient
	Err    error
}

// FakeDialer scripts the outcomes of successive dial attempts per host, in
// order. Once a host's queue is drained, further dials repeat the last
// outcome, so "fail, fail, succeed" scripts stay succeeding.
type FakeDialer struct {
	mu     sync.Mutex
	queues map[string][]DialOutcome
	dials  map[string]int
}

// NewFakeDialer creates an empty dialer. Dialing an unscripted host fails.
func NewFakeDialer() *FakeDialer {
	return &FakeDialer{
		queues: make(map[string][]DialOutcome),
		dials:  make(map[string]int),
	}
}

// Queue appends scripted outcomes for a host.
func (d *FakeDialer) Queue(host string, outcomes ...DialOutcome) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queues[host] = append(d.queues[host], outcomes...)
}

// QueueClient is shorthand for a single successful dial.
func (d *FakeDialer) QueueClient(host string, client *FakeClient) {
	d.Queue(host, DialOutcome{Client: client})
}

// QueueErr is shorthand for a single failed dial.
func (d *FakeDialer) QueueErr(host string, err error) {
	d.Queue(host, DialOutcome{Err: err})
}

// DialCount returns how many times the host has been dialed.
func (d *FakeDialer) DialCount(host string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials[host]
}

// Dial implements sshx.Dialer.
func (d *FakeDialer) Dial(ctx context.Context, host string, opts sshx.Options) (sshx.SSHClient, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.dials[host]++
	queue := d.queues[host]
	if len(queue) == 0 {
		d.mu.Unlock()
		return nil, fmt.Errorf("sshxtest: no dial outcome scripted for %q", host)
	}
	outcome := queue[0]
	if len(queue) > 1 {
		d.queues[host] = queue[1:]
	}
	d.mu.Unlock()

	if outcome.Err != nil {
		return nil, outcome.Err
	}
	return outcome.Client, nil
}

var _ sshx.Dialer = NewFakeDialer().Dial
