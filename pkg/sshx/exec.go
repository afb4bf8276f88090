package sshx

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"strings"

	"github.com/rileyhilliard/pifleet/internal/errors"
	"golang.org/x/crypto/ssh"
)

// Result holds the outcome of a remote command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Exec runs a command on the remote host and captures its output.
// A non-zero exit status is not an error: the command ran, the status is data.
// The returned error is non-nil only when the command could not be run or
// finished for transport reasons, or when ctx expired first.
func (c *Client) Exec(ctx context.Context, command string) (Result, error) {
	session, err := c.newSSHSession()
	if err != nil {
		return Result{}, errors.WrapWithCode(err, errors.ErrConnLost,
			fmt.Sprintf("Couldn't open a session on '%s'", c.Host),
			"The connection may have dropped. Reconnect and retry.")
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	if err := session.Start(command); err != nil {
		return Result{}, errors.WrapWithCode(err, errors.ErrConnLost,
			fmt.Sprintf("Couldn't start command on '%s'", c.Host), "")
	}

	done := make(chan error, 1)
	go func() { done <- session.Wait() }()

	select {
	case <-ctx.Done():
		// Best effort: ask the remote side to stop, then tear the session
		// down so Wait unblocks. The drain goroutine keeps us leak-free even
		// if the transport is wedged.
		_ = session.Signal(ssh.SIGTERM)
		_ = session.Close()
		go func() { <-done }()
		return Result{Stdout: stdout.String(), Stderr: stderr.String(), ExitCode: -1},
			errors.WrapWithCode(ctx.Err(), errors.ErrTimeout,
				fmt.Sprintf("Command on '%s' didn't finish in time", c.Host),
				"Raise the timeout or check what the command is doing.")
	case err := <-done:
		result := Result{Stdout: stdout.String(), Stderr: stderr.String()}
		if err != nil {
			var exitErr *ssh.ExitError
			if stderrors.As(err, &exitErr) {
				result.ExitCode = exitErr.ExitStatus()
				return result, nil
			}
			result.ExitCode = -1
			return result, classifyWaitError(err, c.Host)
		}
		return result, nil
	}
}

// ExecStream runs a command with output streamed to the given writers as it
// arrives. Used for long-running commands like journalctl -f where buffering
// the whole output first would defeat the point.
// Returns the command's exit code; semantics match Exec.
func (c *Client) ExecStream(ctx context.Context, command string, stdout, stderr io.Writer) (int, error) {
	session, err := c.newSSHSession()
	if err != nil {
		return -1, errors.WrapWithCode(err, errors.ErrConnLost,
			fmt.Sprintf("Couldn't open a session on '%s'", c.Host),
			"The connection may have dropped. Reconnect and retry.")
	}
	defer session.Close()

	session.Stdout = stdout
	session.Stderr = stderr

	if err := session.Start(command); err != nil {
		return -1, errors.WrapWithCode(err, errors.ErrConnLost,
			fmt.Sprintf("Couldn't start command on '%s'", c.Host), "")
	}

	done := make(chan error, 1)
	go func() { done <- session.Wait() }()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGTERM)
		_ = session.Close()
		go func() { <-done }()
		if stderrors.Is(ctx.Err(), context.Canceled) {
			// Deliberate cancellation of a stream is a normal shutdown.
			return 0, nil
		}
		return -1, errors.WrapWithCode(ctx.Err(), errors.ErrTimeout,
			fmt.Sprintf("Stream from '%s' hit its deadline", c.Host), "")
	case err := <-done:
		if err != nil {
			var exitErr *ssh.ExitError
			if stderrors.As(err, &exitErr) {
				return exitErr.ExitStatus(), nil
			}
			return -1, classifyWaitError(err, c.Host)
		}
		return 0, nil
	}
}

// classifyWaitError maps a session.Wait failure to the fleet error taxonomy.
// Anything that isn't a clean exit status at this point means the transport
// went away under the command.
func classifyWaitError(err error, host string) error {
	var missingErr *ssh.ExitMissingError
	if stderrors.As(err, &missingErr) || stderrors.Is(err, io.EOF) ||
		strings.Contains(err.Error(), "EOF") ||
		strings.Contains(err.Error(), "connection reset") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "use of closed network connection") {
		return errors.WrapWithCode(err, errors.ErrConnLost,
			fmt.Sprintf("Lost the connection to '%s' mid-command", host),
			"The device may have rebooted or dropped off the network.")
	}
	return errors.WrapWithCode(err, errors.ErrExec,
		fmt.Sprintf("Command on '%s' failed", host), "")
}
