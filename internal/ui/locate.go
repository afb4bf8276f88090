package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/rileyhilliard/pifleet/internal/discover"
)

// LocateDisplay renders discovery progress while hunting for a device.
// Each candidate probe is shown indented under the main phase line.
//
// Example output:
//
//	◐ Locating den-pi...
//	  ○ 10.0.0.4 (cached)                                timeout
//	  ● 192.168.4.61 (subnet)                               0.3s
//	● Located den-pi at 192.168.4.61                         2.3s
//
// HandleEvent matches discover.EventHandler, so a display can be attached
// directly with locator.SetEventHandler(ld.HandleEvent).
type LocateDisplay struct {
	mu      sync.Mutex
	w       io.Writer
	events  []discover.LocateEvent
	spinner *Spinner
	started time.Time
	quiet   bool // If true, suppress per-candidate output
}

// NewLocateDisplay creates a locate display writing to w.
func NewLocateDisplay(w io.Writer) *LocateDisplay {
	return &LocateDisplay{
		w:      w,
		events: make([]discover.LocateEvent, 0),
	}
}

// SetQuiet enables or disables quiet mode.
// In quiet mode, individual candidates are not shown, only the final result.
func (ld *LocateDisplay) SetQuiet(quiet bool) {
	ld.mu.Lock()
	defer ld.mu.Unlock()
	ld.quiet = quiet
}

// Start begins the locate phase with an animated spinner.
func (ld *LocateDisplay) Start(deviceName string) {
	ld.mu.Lock()
	defer ld.mu.Unlock()

	ld.started = time.Now()
	ld.spinner = NewSpinner(fmt.Sprintf("Locating %s", deviceName))
	ld.spinner.SetWriter(ld.w)
	ld.spinner.Start()
}

// HandleEvent records and displays a locate event. Trying events keep the
// spinner running; terminal events render a candidate line.
// In quiet mode, events are recorded but not displayed.
func (ld *LocateDisplay) HandleEvent(ev discover.LocateEvent) {
	ld.mu.Lock()
	defer ld.mu.Unlock()

	if ev.Type == discover.EventTrying {
		return
	}
	ld.events = append(ld.events, ev)

	if ld.quiet {
		return
	}

	// Stop the spinner temporarily to render the candidate line
	if ld.spinner != nil && ld.spinner.State() == SpinnerInProgress {
		ld.spinner.Stop()
	}

	ld.renderEvent(ev)

	// Restart the spinner if the hunt continues
	if ev.Type == discover.EventFailed && ld.spinner != nil {
		ld.spinner.Start()
	}
}

// renderEvent renders a single candidate line.
// Format:   ○ 10.0.0.4 (cached)                                timeout
func (ld *LocateDisplay) renderEvent(ev discover.LocateEvent) {
	var symbol string
	var symbolColor lipgloss.Color
	var status string

	switch ev.Type {
	case discover.EventFound, discover.EventCacheHit:
		symbol = SymbolComplete
		symbolColor = ColorSuccess
		status = formatDuration(ev.Latency)
	default:
		symbol = SymbolPending
		symbolColor = ColorMuted
		if ev.Message != "" {
			status = ev.Message
		} else {
			status = "failed"
		}
	}

	symbolStyle := lipgloss.NewStyle().Foreground(symbolColor)
	statusStyle := lipgloss.NewStyle().Foreground(ColorMuted)

	label := candidateLabel(ev)

	// Pad so statuses line up in a right-hand column
	padding := 50 - len(label)
	if padding < 2 {
		padding = 2
	}

	fmt.Fprintf(ld.w, "  %s %s%s%s\n",
		symbolStyle.Render(symbol),
		label,
		strings.Repeat(" ", padding),
		statusStyle.Render(status),
	)
}

// Success completes the locate display with the winning address.
func (ld *LocateDisplay) Success(deviceName, address string) {
	ld.mu.Lock()
	defer ld.mu.Unlock()

	if ld.spinner != nil {
		ld.spinner.Stop()
	}

	totalDuration := time.Since(ld.started)

	if ld.quiet && len(ld.events) > 0 {
		fmt.Fprint(ld.w, "\r"+strings.Repeat(" ", 80)+"\r")
	}

	symbolStyle := lipgloss.NewStyle().Foreground(ColorSuccess)
	timingStyle := lipgloss.NewStyle().Foreground(ColorMuted)

	msg := fmt.Sprintf("Located %s at %s", deviceName, address)
	fmt.Fprintf(ld.w, "%s %s %s\n",
		symbolStyle.Render(SymbolComplete),
		msg,
		timingStyle.Render(formatDuration(totalDuration)),
	)
}

// Fail completes the locate display after the candidate list is exhausted.
func (ld *LocateDisplay) Fail(errMsg string) {
	ld.mu.Lock()
	defer ld.mu.Unlock()

	if ld.spinner != nil {
		ld.spinner.Stop()
	}

	totalDuration := time.Since(ld.started)

	fmt.Fprint(ld.w, "\r"+strings.Repeat(" ", 80)+"\r")

	symbolStyle := lipgloss.NewStyle().Foreground(ColorError)
	timingStyle := lipgloss.NewStyle().Foreground(ColorMuted)

	msg := "Device not found"
	if errMsg != "" {
		msg = fmt.Sprintf("Device not found: %s", errMsg)
	}

	fmt.Fprintf(ld.w, "%s %s %s\n",
		symbolStyle.Render(SymbolFail),
		msg,
		timingStyle.Render(formatDuration(totalDuration)),
	)
}

// Events returns a copy of all recorded terminal events.
func (ld *LocateDisplay) Events() []discover.LocateEvent {
	ld.mu.Lock()
	defer ld.mu.Unlock()

	result := make([]discover.LocateEvent, len(ld.events))
	copy(result, ld.events)
	return result
}

// HasMisses returns true if any candidate failed before the device was found.
func (ld *LocateDisplay) HasMisses() bool {
	ld.mu.Lock()
	defer ld.mu.Unlock()

	for _, ev := range ld.events {
		if ev.Type == discover.EventFailed {
			return true
		}
	}
	return false
}

// FoundAddress returns the address that answered, or empty string.
func (ld *LocateDisplay) FoundAddress() string {
	ld.mu.Lock()
	defer ld.mu.Unlock()

	for _, ev := range ld.events {
		if ev.Type == discover.EventFound || ev.Type == discover.EventCacheHit {
			return ev.Address
		}
	}
	return ""
}

// candidateLabel names a candidate for display, e.g. "10.0.0.4 (cached)".
func candidateLabel(ev discover.LocateEvent) string {
	return fmt.Sprintf("%s (%s)", ev.Address, ev.Source)
}

// RenderLocateLine returns a formatted candidate line as a string (for testing).
func RenderLocateLine(ev discover.LocateEvent) string {
	var symbol string
	var status string

	switch ev.Type {
	case discover.EventFound, discover.EventCacheHit:
		symbol = SymbolComplete
		status = formatDuration(ev.Latency)
	default:
		symbol = SymbolPending
		if ev.Message != "" {
			status = ev.Message
		} else {
			status = "failed"
		}
	}

	label := candidateLabel(ev)
	padding := 50 - len(label)
	if padding < 2 {
		padding = 2
	}

	return fmt.Sprintf("  %s %s%s%s", symbol, label, strings.Repeat(" ", padding), status)
}
