package sshx

import (
	"fmt"
	"io"
	"sync"

	"github.com/rileyhilliard/pifleet/internal/errors"
	"golang.org/x/crypto/ssh"
)

// Interactive is a live remote shell with a PTY attached. Reads return the
// remote terminal's output (stdout and stderr merged by the PTY), writes feed
// its stdin. Done is closed when the remote shell exits or the transport
// drops, after which Err reports why.
type Interactive interface {
	io.Reader
	io.Writer
	io.Closer
	// Resize propagates a window size change to the remote PTY.
	Resize(rows, cols int) error
	// Done is closed once the shell has ended, for any reason.
	Done() <-chan struct{}
	// Err returns the exit reason. Valid after Done is closed; nil means the
	// shell exited cleanly.
	Err() error
}

// OpenInteractive starts a login shell on the remote host with a PTY of the
// given size and returns a channel to drive it. Exactly one caller should own
// the returned Interactive; it does not survive a dropped connection.
func (c *Client) OpenInteractive(rows, cols int) (Interactive, error) {
	session, err := c.newSSHSession()
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConnLost,
			fmt.Sprintf("Couldn't open a session on '%s'", c.Host),
			"The connection may have dropped. Reconnect and retry.")
	}

	if rows <= 0 {
		rows = 24
	}
	if cols <= 0 {
		cols = 80
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}

	if err := session.RequestPty("xterm-256color", rows, cols, modes); err != nil {
		session.Close()
		return nil, errors.WrapWithCode(err, errors.ErrSSH,
			fmt.Sprintf("Couldn't get a PTY on '%s'", c.Host),
			"The server may disallow PTY allocation. Check /etc/ssh/sshd_config.")
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		return nil, errors.Wrap(err, "Couldn't wire up stdin")
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		return nil, errors.Wrap(err, "Couldn't wire up stdout")
	}

	if err := session.Shell(); err != nil {
		session.Close()
		return nil, errors.Wrap(err, fmt.Sprintf("Couldn't start a shell on '%s'", c.Host))
	}

	sh := &shellChannel{
		session: session,
		stdin:   stdin,
		stdout:  stdout,
		done:    make(chan struct{}),
	}

	go func() {
		err := session.Wait()
		sh.mu.Lock()
		sh.err = err
		sh.mu.Unlock()
		close(sh.done)
	}()

	return sh, nil
}

// shellChannel implements Interactive over an *ssh.Session.
type shellChannel struct {
	session *ssh.Session
	stdin   io.WriteCloser
	stdout  io.Reader
	done    chan struct{}

	mu        sync.Mutex
	err       error
	closeOnce sync.Once
}

func (s *shellChannel) Read(p []byte) (int, error) {
	return s.stdout.Read(p)
}

func (s *shellChannel) Write(p []byte) (int, error) {
	return s.stdin.Write(p)
}

func (s *shellChannel) Resize(rows, cols int) error {
	if rows <= 0 || cols <= 0 {
		return errors.New(errors.ErrInternal,
			fmt.Sprintf("Bad terminal size %dx%d", cols, rows), "")
	}
	return s.session.WindowChange(rows, cols)
}

func (s *shellChannel) Close() error {
	s.closeOnce.Do(func() {
		_ = s.stdin.Close()
		_ = s.session.Close()
	})
	return nil
}

func (s *shellChannel) Done() <-chan struct{} {
	return s.done
}

func (s *shellChannel) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
