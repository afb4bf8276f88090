package sshx

import (
	"context"
	"io"
)

// SSHClient is the interface for an established SSH connection.
// *Client implements it for real connections; sshxtest provides a scripted
// fake so the session and telemetry layers can be tested without a device.
type SSHClient interface {
	// Exec runs a command and captures its output.
	Exec(ctx context.Context, command string) (Result, error)

	// ExecStream runs a command with output streamed to the writers.
	ExecStream(ctx context.Context, command string, stdout, stderr io.Writer) (int, error)

	// OpenInteractive starts a remote shell with a PTY attached.
	OpenInteractive(rows, cols int) (Interactive, error)

	// SendRequest sends a global request, used as a cheap liveness probe.
	SendRequest(name string, wantReply bool, payload []byte) (bool, []byte, error)

	// Close tears down the connection.
	Close() error

	// GetHost returns the original host/alias used to connect.
	GetHost() string

	// GetAddress returns the resolved host:port address.
	GetAddress() string
}

// Dialer opens an SSH connection to a host. The session manager takes one of
// these instead of calling Dial directly so tests can substitute a fake.
type Dialer func(ctx context.Context, host string, opts Options) (SSHClient, error)

// DefaultDialer adapts Dial to the Dialer type.
func DefaultDialer(ctx context.Context, host string, opts Options) (SSHClient, error) {
	return Dial(ctx, host, opts)
}

// Compile-time check that *Client satisfies SSHClient.
var _ SSHClient = (*Client)(nil)
