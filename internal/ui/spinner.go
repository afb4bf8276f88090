package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// SpinnerState represents the current state of a spinner.
type SpinnerState int

const (
	SpinnerPending SpinnerState = iota
	SpinnerInProgress
	SpinnerSuccess
	SpinnerFailed
	SpinnerSkipped
)

// Spinner animation frames, a braille scan pattern.
var spinnerFrames = []string{"⣾", "⣽", "⣻", "⢿", "⡿", "⣟", "⣯", "⣷"}

// Spinner displays an animated status indicator with a label. The label can
// change mid-run, which scan uses for its probed-count ticker.
type Spinner struct {
	mu           sync.Mutex
	label        string
	state        SpinnerState
	frame        int
	startTime    time.Time
	stopChan     chan struct{}
	doneChan     chan struct{}
	w            io.Writer
	running      bool
	lastRendered string
}

// NewSpinner creates a new spinner with the given label, writing to stdout.
func NewSpinner(label string) *Spinner {
	return &Spinner{
		label: label,
		state: SpinnerPending,
		w:     os.Stdout,
	}
}

// SetWriter redirects spinner output, for tests or captured output.
func (s *Spinner) SetWriter(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w = w
}

// Start begins the spinner animation.
func (s *Spinner) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.state = SpinnerInProgress
	if s.startTime.IsZero() {
		s.startTime = time.Now()
	}
	s.stopChan = make(chan struct{})
	s.doneChan = make(chan struct{})
	s.mu.Unlock()

	s.render()

	go s.animate()
}

// Stop halts the spinner animation without changing state.
func (s *Spinner) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopChan)
	s.mu.Unlock()

	<-s.doneChan
}

// Success stops the spinner and marks it as successful.
func (s *Spinner) Success() {
	s.Stop()
	s.mu.Lock()
	s.state = SpinnerSuccess
	s.mu.Unlock()
	s.renderFinal()
}

// Fail stops the spinner and marks it as failed.
func (s *Spinner) Fail() {
	s.Stop()
	s.mu.Lock()
	s.state = SpinnerFailed
	s.mu.Unlock()
	s.renderFinal()
}

// Skip stops the spinner and marks it as skipped.
func (s *Spinner) Skip() {
	s.Stop()
	s.mu.Lock()
	s.state = SpinnerSkipped
	s.mu.Unlock()
	s.renderFinal()
}

// State returns the current spinner state.
func (s *Spinner) State() SpinnerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Elapsed returns the time since the spinner started.
func (s *Spinner) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startTime.IsZero() {
		return 0
	}
	return time.Since(s.startTime)
}

// Label returns the spinner's label.
func (s *Spinner) Label() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.label
}

// SetLabel updates the spinner's label while it runs.
func (s *Spinner) SetLabel(label string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.label = label
}

func (s *Spinner) animate() {
	ticker := time.NewTicker(60 * time.Millisecond)
	defer ticker.Stop()
	defer close(s.doneChan)

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.mu.Lock()
			s.frame = (s.frame + 1) % len(spinnerFrames)
			s.mu.Unlock()
			s.render()
		}
	}
}

func (s *Spinner) render() {
	s.mu.Lock()
	defer s.mu.Unlock()

	symbol := spinnerFrames[s.frame]
	colorIndex := (s.frame / 2) % len(GradientColors)
	style := lipgloss.NewStyle().Foreground(GradientColors[colorIndex])

	line := fmt.Sprintf("\r%s %s...", style.Render(symbol), s.label)

	s.clearLineLocked()
	fmt.Fprint(s.w, line)
	s.lastRendered = line
}

func (s *Spinner) renderFinal() {
	s.mu.Lock()
	defer s.mu.Unlock()

	var symbol string
	var style lipgloss.Style

	switch s.state {
	case SpinnerSuccess:
		symbol = SymbolComplete
		style = lipgloss.NewStyle().Foreground(ColorSuccess)
	case SpinnerFailed:
		symbol = SymbolFail
		style = lipgloss.NewStyle().Foreground(ColorError)
	case SpinnerSkipped:
		symbol = SymbolSkipped
		style = lipgloss.NewStyle().Foreground(ColorWarning)
	default:
		symbol = SymbolPending
		style = lipgloss.NewStyle().Foreground(ColorMuted)
	}

	var elapsed time.Duration
	if !s.startTime.IsZero() {
		elapsed = time.Since(s.startTime)
	}
	timingStyle := lipgloss.NewStyle().Foreground(ColorMuted)

	s.clearLineLocked()
	line := fmt.Sprintf("%s %s %s\n",
		style.Render(symbol),
		s.label,
		timingStyle.Render(formatDuration(elapsed)),
	)
	fmt.Fprint(s.w, line)
	s.lastRendered = ""
}

// clearLineLocked wipes whatever the spinner last drew. Must be called with
// the lock held.
func (s *Spinner) clearLineLocked() {
	if s.lastRendered == "" {
		return
	}
	clearLen := len([]rune(s.lastRendered))
	fmt.Fprint(s.w, "\r"+strings.Repeat(" ", clearLen)+"\r")
}

// formatDuration formats a duration for display (e.g., "0.3s", "1.2s").
func formatDuration(d time.Duration) string {
	secs := d.Seconds()
	if secs < 0.1 {
		return fmt.Sprintf("%.2fs", secs)
	}
	return fmt.Sprintf("%.1fs", secs)
}
