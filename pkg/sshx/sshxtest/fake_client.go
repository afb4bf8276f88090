// Package sshxtest provides a scripted in-memory sshx.SSHClient for tests.
// Commands are matched against configured patterns and answered with canned
// responses, the transport can be severed mid-flight to exercise reconnect
// paths, and interactive channels are backed by pipes the test drives.
package sshxtest

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"sync"
	"time"

	"github.com/rileyhilliard/pifleet/internal/errors"
	"github.com/rileyhilliard/pifleet/pkg/sshx"
)

// CommandResponse defines how the fake answers a command.
type CommandResponse struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Err      error         // transport-level error returned instead of a result
	Delay    time.Duration // latency before answering, cancellable via ctx
}

// StreamFunc produces the output of an ExecStream call. It should honor ctx.
type StreamFunc func(ctx context.Context, stdout, stderr io.Writer) (int, error)

// FakeClient is a scripted SSHClient. Safe for concurrent use.
type FakeClient struct {
	host    string
	address string

	mu        sync.Mutex
	responses map[string]CommandResponse
	streams   map[string]StreamFunc
	execLog   []string
	closed    bool
	severed   bool
	sendErr   error
	shells    []*FakeShell
}

// NewFakeClient creates a fake client for the given host.
func NewFakeClient(host string) *FakeClient {
	return &FakeClient{
		host:      host,
		address:   host + ":22",
		responses: make(map[string]CommandResponse),
		streams:   make(map[string]StreamFunc),
	}
}

// SetCommandResponse configures the answer for a command. The pattern is
// matched exactly first, then as a regular expression.
func (f *FakeClient) SetCommandResponse(pattern string, resp CommandResponse) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[pattern] = resp
}

// SetStreamFunc configures the behavior of ExecStream for a command pattern.
func (f *FakeClient) SetStreamFunc(pattern string, fn StreamFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streams[pattern] = fn
}

// Sever simulates the transport dropping out from under the client. Every
// call from here on fails with a connection-lost error, as the real client
// does once the TCP stream is gone. Open shells are terminated.
func (f *FakeClient) Sever() {
	f.mu.Lock()
	f.severed = true
	shells := f.shells
	f.shells = nil
	f.mu.Unlock()
	for _, sh := range shells {
		sh.CloseFromRemote(io.EOF)
	}
}

// SetSendRequestErr makes keepalive probes fail with the given error.
func (f *FakeClient) SetSendRequestErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendErr = err
}

// ExecLog returns the commands executed so far, in order.
func (f *FakeClient) ExecLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.execLog))
	copy(out, f.execLog)
	return out
}

// Closed reports whether Close has been called.
func (f *FakeClient) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *FakeClient) gone() error {
	if f.closed {
		return errors.New(errors.ErrConnLost,
			fmt.Sprintf("Connection to '%s' is closed", f.host), "")
	}
	if f.severed {
		return errors.New(errors.ErrConnLost,
			fmt.Sprintf("Lost the connection to '%s' mid-command", f.host), "")
	}
	return nil
}

func (f *FakeClient) lookup(command string) (CommandResponse, bool) {
	if resp, ok := f.responses[command]; ok {
		return resp, true
	}
	for pattern, resp := range f.responses {
		if matched, err := regexp.MatchString(pattern, command); err == nil && matched {
			return resp, true
		}
	}
	return CommandResponse{}, false
}

// Exec implements sshx.SSHClient.
func (f *FakeClient) Exec(ctx context.Context, command string) (sshx.Result, error) {
	f.mu.Lock()
	f.execLog = append(f.execLog, command)
	if err := f.gone(); err != nil {
		f.mu.Unlock()
		return sshx.Result{}, err
	}
	resp, ok := f.lookup(command)
	f.mu.Unlock()

	if !ok {
		// Unscripted commands fail loudly, like a missing binary would.
		return sshx.Result{
			Stderr:   fmt.Sprintf("sh: %s: command not found", command),
			ExitCode: 127,
		}, nil
	}

	if resp.Delay > 0 {
		timer := time.NewTimer(resp.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return sshx.Result{ExitCode: -1}, errors.WrapWithCode(ctx.Err(), errors.ErrTimeout,
				fmt.Sprintf("Command on '%s' didn't finish in time", f.host), "")
		case <-timer.C:
		}
	}

	if resp.Err != nil {
		return sshx.Result{ExitCode: -1}, resp.Err
	}
	return sshx.Result{Stdout: resp.Stdout, Stderr: resp.Stderr, ExitCode: resp.ExitCode}, nil
}

// ExecStream implements sshx.SSHClient.
func (f *FakeClient) ExecStream(ctx context.Context, command string, stdout, stderr io.Writer) (int, error) {
	f.mu.Lock()
	f.execLog = append(f.execLog, command)
	if err := f.gone(); err != nil {
		f.mu.Unlock()
		return -1, err
	}
	var fn StreamFunc
	if exact, ok := f.streams[command]; ok {
		fn = exact
	} else {
		for pattern, candidate := range f.streams {
			if matched, err := regexp.MatchString(pattern, command); err == nil && matched {
				fn = candidate
				break
			}
		}
	}
	resp, haveResp := f.lookup(command)
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx, stdout, stderr)
	}
	if haveResp {
		if resp.Err != nil {
			return -1, resp.Err
		}
		if resp.Stdout != "" {
			io.WriteString(stdout, resp.Stdout)
		}
		if resp.Stderr != "" {
			io.WriteString(stderr, resp.Stderr)
		}
		return resp.ExitCode, nil
	}
	io.WriteString(stderr, fmt.Sprintf("sh: %s: command not found", command))
	return 127, nil
}

// OpenInteractive implements sshx.SSHClient.
func (f *FakeClient) OpenInteractive(rows, cols int) (sshx.Interactive, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.gone(); err != nil {
		return nil, err
	}
	sh := NewFakeShell()
	sh.resizes = append(sh.resizes, [2]int{rows, cols})
	f.shells = append(f.shells, sh)
	return sh, nil
}

// SendRequest implements sshx.SSHClient. It mirrors the real client's use as
// a liveness probe: a healthy connection answers, a dead one errors.
func (f *FakeClient) SendRequest(name string, wantReply bool, payload []byte) (bool, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.gone(); err != nil {
		return false, nil, err
	}
	if f.sendErr != nil {
		return false, nil, f.sendErr
	}
	return true, nil, nil
}

// Close implements sshx.SSHClient.
func (f *FakeClient) Close() error {
	f.mu.Lock()
	f.closed = true
	shells := f.shells
	f.shells = nil
	f.mu.Unlock()
	for _, sh := range shells {
		sh.CloseFromRemote(io.EOF)
	}
	return nil
}

// GetHost implements sshx.SSHClient.
func (f *FakeClient) GetHost() string { return f.host }

// GetAddress implements sshx.SSHClient.
func (f *FakeClient) GetAddress() string { return f.address }

var _ sshx.SSHClient = (*FakeClient)(nil)
