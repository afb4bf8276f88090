package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/rileyhilliard/pifleet/internal/errors"
	"github.com/rileyhilliard/pifleet/internal/registry"
	"github.com/rileyhilliard/pifleet/internal/session"
	"github.com/rileyhilliard/pifleet/internal/ui"
	"github.com/rileyhilliard/pifleet/pkg/sshx"
	"golang.org/x/crypto/ssh"
	"golang.org/x/term"
)

// attachCommand drops the user into an interactive shell on a device.
func attachCommand(device string, flags CommonFlags) error {
	if MachineMode() {
		return errors.New(errors.ErrExec,
			"attach is interactive and doesn't mix with --json",
			"Use 'pifleet exec' for scripted commands.")
	}
	if !ui.IsTerminal(os.Stdin) || !ui.IsTerminal(os.Stdout) {
		return errors.New(errors.ErrExec,
			"attach needs an interactive terminal",
			"Run it from a real shell, or use 'pifleet exec' in scripts.")
	}

	cfg, err := loadFleetConfig()
	if err != nil {
		return err
	}
	probeTimeout, err := ParseTimeout(flags.ProbeTimeout)
	if err != nil {
		return err
	}

	reg := registry.FromConfig(cfg)
	dev, err := resolveDevice(reg, device)
	if err != nil {
		return err
	}

	conn := newConnector(cfg, flags.Insecure, probeTimeout)
	defer conn.close()

	sess, err := conn.acquire(context.Background(), dev)
	if err != nil {
		return err
	}
	return runShell(sess, dev.Name)
}

// runShell bridges the local terminal to a remote PTY until the shell ends.
func runShell(sess *session.Session, name string) error {
	fd := int(os.Stdin.Fd())
	cols, rows, err := term.GetSize(fd)
	if err != nil {
		cols, rows = 80, 24
	}

	shell, err := sess.OpenInteractive(context.Background(), session.TermSize{Rows: rows, Cols: cols})
	if err != nil {
		return err
	}
	defer shell.Close()

	muted := lipgloss.NewStyle().Foreground(ui.ColorMuted)
	fmt.Println(muted.Render(fmt.Sprintf("Connected to %s. Type 'exit' or press Ctrl-D to leave.", name)))

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrInternal,
			"Couldn't switch the terminal to raw mode",
			"attach needs full control of the local terminal.")
	}
	defer term.Restore(fd, oldState)

	// Keystrokes go straight to the remote PTY; closing stdin ends the shell.
	go func() {
		_, _ = io.Copy(shell, os.Stdin)
		_ = shell.Close()
	}()
	go func() {
		_, _ = io.Copy(os.Stdout, shell)
	}()
	go watchResize(fd, shell, rows, cols)

	<-shell.Done()
	_ = term.Restore(fd, oldState)

	fmt.Printf("\nConnection to %s closed.\n", name)
	return shellExitError(shell.Err())
}

// watchResize polls the local terminal size and forwards changes to the PTY.
// Polling instead of SIGWINCH keeps this portable.
func watchResize(fd int, shell sshx.Interactive, rows, cols int) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-shell.Done():
			return
		case <-ticker.C:
			c, r, err := term.GetSize(fd)
			if err != nil || (r == rows && c == cols) {
				continue
			}
			rows, cols = r, c
			if shell.Resize(rows, cols) != nil {
				return
			}
		}
	}
}

// shellExitError maps the remote shell's exit reason onto our exit code.
func shellExitError(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *ssh.ExitError
	if stderrors.As(err, &exitErr) {
		if code := exitErr.ExitStatus(); code != 0 {
			return errors.NewExitError(code)
		}
		return nil
	}
	if stderrors.Is(err, io.EOF) {
		return nil
	}
	return errors.WrapWithCode(err, errors.ErrConnLost,
		"The shell ended unexpectedly",
		"The connection to the device may have dropped.")
}
