package hub

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/rileyhilliard/pifleet/internal/errors"
	"github.com/rileyhilliard/pifleet/internal/session"
	"github.com/rileyhilliard/pifleet/pkg/sshx/sshxtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pipeEnd is the consumer's half of a terminal: reads are keystrokes,
// writes are screen output.
type pipeEnd struct {
	io.Reader
	io.Writer
}

func waitBridge(t *testing.T, errc <-chan error) error {
	t.Helper()
	select {
	case err := <-errc:
		return err
	case <-time.After(testWait):
		t.Fatal("bridge did not return")
		return nil
	}
}

func TestBridgePumpsBothDirections(t *testing.T) {
	h, _, acq, _ := newTestHub(t, nil)
	shell := sshxtest.NewFakeShell()
	acq.install(&fakeSource{addr: "pi4.local", shell: shell})

	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	defer inW.Close()
	defer outR.Close()

	errc := make(chan error, 1)
	go func() {
		errc <- h.Bridge(context.Background(), "pi4.local",
			pipeEnd{inR, outW}, session.TermSize{Rows: 24, Cols: 80}, nil)
	}()

	_, err := io.WriteString(inW, "ls -la\n")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return shell.InputString() == "ls -la\n"
	}, testWait, 5*time.Millisecond)

	shell.EmitOutput("total 42\n")
	buf := make([]byte, 32)
	n, err := outR.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "total 42\n", string(buf[:n]))

	shell.CloseFromRemote(nil)
	assert.NoError(t, waitBridge(t, errc))
}

func TestBridgeForwardsResize(t *testing.T) {
	h, _, acq, _ := newTestHub(t, nil)
	shell := sshxtest.NewFakeShell()
	acq.install(&fakeSource{addr: "pi4.local", shell: shell})

	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	defer inW.Close()
	defer outR.Close()

	resize := make(chan session.TermSize, 1)
	errc := make(chan error, 1)
	go func() {
		errc <- h.Bridge(context.Background(), "pi4.local",
			pipeEnd{inR, outW}, session.TermSize{Rows: 24, Cols: 80}, resize)
	}()

	resize <- session.TermSize{Rows: 50, Cols: 132}
	require.Eventually(t, func() bool {
		return len(shell.Resizes()) == 1
	}, testWait, 5*time.Millisecond)
	assert.Equal(t, [][2]int{{50, 132}}, shell.Resizes())

	// Closing the resize channel must not end the session.
	close(resize)
	shell.EmitOutput("still here\n")
	buf := make([]byte, 16)
	n, err := outR.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "still here\n", string(buf[:n]))

	shell.CloseFromRemote(nil)
	assert.NoError(t, waitBridge(t, errc))
}

func TestBridgeEndsOnContextCancel(t *testing.T) {
	h, _, acq, _ := newTestHub(t, nil)
	acq.install(&fakeSource{addr: "pi4.local", shell: sshxtest.NewFakeShell()})

	inR, inW := io.Pipe()
	_, outW := io.Pipe()
	defer inW.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		errc <- h.Bridge(ctx, "pi4.local", pipeEnd{inR, outW}, session.TermSize{}, nil)
	}()

	cancel()
	err := waitBridge(t, errc)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrTimeout))
}

func TestBridgeEndsOnHubClose(t *testing.T) {
	h, _, acq, _ := newTestHub(t, nil)
	shell := sshxtest.NewFakeShell()
	acq.install(&fakeSource{addr: "pi4.local", shell: shell})

	inR, inW := io.Pipe()
	_, outW := io.Pipe()
	defer inW.Close()

	errc := make(chan error, 1)
	go func() {
		errc <- h.Bridge(context.Background(), "pi4.local",
			pipeEnd{inR, outW}, session.TermSize{Rows: 24, Cols: 80}, nil)
	}()

	// Make sure the bridge is up before shutting the hub down.
	_, err := io.WriteString(inW, "w\n")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return shell.InputString() == "w\n"
	}, testWait, 5*time.Millisecond)

	require.NoError(t, h.Close())
	err = waitBridge(t, errc)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrInternal))

	// And a closed hub refuses new bridges outright.
	err = h.Bridge(context.Background(), "pi4.local", pipeEnd{inR, outW}, session.TermSize{}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrInternal))
}

func TestBridgeSetupFailures(t *testing.T) {
	h, _, acq, _ := newTestHub(t, nil)
	rw := pipeEnd{}

	acq.setErr(errors.New(errors.ErrUnreachable, "pi4.local is unreachable", ""))
	err := h.Bridge(context.Background(), "pi4.local", rw, session.TermSize{}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrUnreachable))

	acq.setErr(nil)
	acq.install(&fakeSource{
		addr:     "pi4.local",
		shellErr: errors.New(errors.ErrSSH, "The host refused a PTY", ""),
	})
	err = h.Bridge(context.Background(), "pi4.local", rw, session.TermSize{}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrSSH))
}
