package hub

import (
	"context"
	"io"

	"github.com/rileyhilliard/pifleet/internal/errors"
	"github.com/rileyhilliard/pifleet/internal/session"
)

// Bridge wires one consumer's byte stream to a PTY shell on the source,
// strictly one-to-one: rw's reads feed the shell's stdin, the shell's
// output feeds rw's writes, and the first side to fail ends both. There is
// no transparent reconnect; a dropped shell comes back as a fresh Bridge
// call so the caller knows shell state was lost.
//
// Resize values are forwarded to the remote PTY; a nil channel disables
// resizing. Bridge returns when either side closes, ctx ends, or the hub
// shuts down. The caller owns rw and closes it afterwards, which also
// unwinds the reader pump.
func (h *Hub) Bridge(ctx context.Context, source string, rw io.ReadWriter, size session.TermSize, resize <-chan session.TermSize) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return errors.New(errors.ErrInternal, "The hub is shut down", "")
	}
	h.bridges.Add(1)
	h.mu.Unlock()
	defer h.bridges.Done()

	src, err := h.cfg.Acquire(ctx, source)
	if err != nil {
		return err
	}

	shell, err := src.OpenInteractive(ctx, size)
	if err != nil {
		return err
	}
	defer shell.Close()

	pump := make(chan error, 2)
	go func() {
		_, err := io.Copy(shell, rw)
		pump <- err
	}()
	go func() {
		_, err := io.Copy(rw, shell)
		pump <- err
	}()

	for {
		select {
		case err := <-pump:
			return err
		case <-shell.Done():
			return shell.Err()
		case <-ctx.Done():
			return errors.WrapWithCode(ctx.Err(), errors.ErrTimeout, "Terminal session ended", "")
		case <-h.dying:
			return errors.New(errors.ErrInternal, "The hub is shutting down", "")
		case ts, ok := <-resize:
			if !ok {
				resize = nil
				continue
			}
			if err := shell.Resize(ts.Rows, ts.Cols); err != nil {
				h.cfg.Log.Debug("resize of %s terminal failed: %v", source, err)
			}
		}
	}
}
