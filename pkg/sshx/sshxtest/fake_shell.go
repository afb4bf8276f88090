package sshxtest

import (
	"bytes"
	"io"
	"sync"

	"github.com/rileyhilliard/pifleet/pkg/sshx"
)

// FakeShell is a scripted sshx.Interactive. The test plays the remote side:
// EmitOutput feeds bytes to the Read end, InputString returns everything the
// code under test wrote, CloseFromRemote ends the shell as if it exited.
type FakeShell struct {
	outR *io.PipeReader
	outW *io.PipeWriter

	mu      sync.Mutex
	input   bytes.Buffer
	resizes [][2]int
	err     error
	done    chan struct{}
	once    sync.Once
}

// NewFakeShell creates a shell with nothing buffered.
func NewFakeShell() *FakeShell {
	outR, outW := io.Pipe()
	return &FakeShell{
		outR: outR,
		outW: outW,
		done: make(chan struct{}),
	}
}

// EmitOutput makes the remote terminal produce data. Blocks until the code
// under test has read it, like a real PTY with a full window would.
func (s *FakeShell) EmitOutput(data string) {
	_, _ = io.WriteString(s.outW, data)
}

// InputString returns all bytes written to the shell so far.
func (s *FakeShell) InputString() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.input.String()
}

// Resizes returns the {rows, cols} history, including the opening size.
func (s *FakeShell) Resizes() [][2]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][2]int, len(s.resizes))
	copy(out, s.resizes)
	return out
}

// CloseFromRemote ends the shell as if the remote side exited with err.
func (s *FakeShell) CloseFromRemote(err error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		_ = s.outW.CloseWithError(io.EOF)
		close(s.done)
	})
}

// Read implements sshx.Interactive.
func (s *FakeShell) Read(p []byte) (int, error) {
	return s.outR.Read(p)
}

// Write implements sshx.Interactive.
func (s *FakeShell) Write(p []byte) (int, error) {
	select {
	case <-s.done:
		return 0, io.ErrClosedPipe
	default:
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.input.Write(p)
}

// Resize implements sshx.Interactive.
func (s *FakeShell) Resize(rows, cols int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resizes = append(s.resizes, [2]int{rows, cols})
	return nil
}

// Close implements sshx.Interactive.
func (s *FakeShell) Close() error {
	s.once.Do(func() {
		_ = s.outW.CloseWithError(io.EOF)
		close(s.done)
	})
	return nil
}

// Done implements sshx.Interactive.
func (s *FakeShell) Done() <-chan struct{} { return s.done }

// Err implements sshx.Interactive.
func (s *FakeShell) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == io.EOF {
		return nil
	}
	return s.err
}

var _ sshx.Interactive = (*FakeShell)(nil)
