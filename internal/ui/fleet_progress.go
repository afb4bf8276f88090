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

// FleetProgress displays animated progress for a command fanning out across
// multiple devices. Uses in-place terminal updates so running devices animate
// and completed devices transition smoothly without printing new lines.
type FleetProgress struct {
	mu sync.Mutex

	rows      []deviceRow // Ordered list of devices
	lineCount int         // Number of lines currently rendered
	frame     int         // Current animation frame

	running  bool
	stopChan chan struct{}
	doneChan chan struct{}
	output   io.Writer
	isTTY    bool

	// Styles
	successStyle lipgloss.Style
	errorStyle   lipgloss.Style
	mutedStyle   lipgloss.Style
}

type deviceRow struct {
	ID        string
	Name      string
	Address   string
	Status    RunStatus
	StartTime time.Time
}

// FleetTask names one device in the fan-out, in display order.
type FleetTask struct {
	ID   string
	Name string
}

// RunStatus tracks a device through the fan-out lifecycle.
type RunStatus int

const (
	RunPending    RunStatus = iota
	RunConnecting           // Dialing / waiting for a session
	RunExecuting            // Command is running on the device
	RunPassed
	RunFailed
)

// NewFleetProgress creates a new fleet progress display.
func NewFleetProgress(isTTY bool) *FleetProgress {
	return &FleetProgress{
		rows:     make([]deviceRow, 0),
		output:   os.Stdout,
		isTTY:    isTTY,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),

		successStyle: lipgloss.NewStyle().Foreground(ColorSuccess),
		errorStyle:   lipgloss.NewStyle().Foreground(ColorError),
		mutedStyle:   lipgloss.NewStyle().Foreground(ColorMuted),
	}
}

// SetWriter sets the output writer (useful for testing).
func (p *FleetProgress) SetWriter(w io.Writer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.output = w
}

// Start begins the animation loop.
func (p *FleetProgress) Start() {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.stopChan = make(chan struct{})
	p.doneChan = make(chan struct{})
	p.mu.Unlock()

	go p.animate()
}

// Stop halts the animation and renders final state.
func (p *FleetProgress) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopChan)
	p.mu.Unlock()

	<-p.doneChan
}

// InitDevices seeds all devices as pending. Call this before starting workers
// so the whole fleet shows upfront in the UI.
func (p *FleetProgress) InitDevices(tasks []FleetTask) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, t := range tasks {
		p.rows = append(p.rows, deviceRow{
			ID:     t.ID,
			Name:   t.Name,
			Status: RunPending,
		})
	}

	p.renderLocked()
}

// DeviceConnecting marks a device as dialing. The resolved address shows next
// to the name once known.
func (p *FleetProgress) DeviceConnecting(id, address string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range p.rows {
		if p.rows[i].ID == id {
			p.rows[i].Status = RunConnecting
			p.rows[i].Address = address
			p.rows[i].StartTime = time.Now()
			p.renderLocked()
			return
		}
	}

	// Device missing from InitDevices, add it (shouldn't normally happen)
	p.rows = append(p.rows, deviceRow{
		ID:        id,
		Name:      id,
		Address:   address,
		Status:    RunConnecting,
		StartTime: time.Now(),
	})

	p.renderLocked()
}

// DeviceExecuting transitions a device from connecting to executing.
func (p *FleetProgress) DeviceExecuting(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range p.rows {
		if p.rows[i].ID == id {
			p.rows[i].Status = RunExecuting
			p.renderLocked()
			return
		}
	}
}

// DeviceCompleted updates a device's status to passed or failed.
func (p *FleetProgress) DeviceCompleted(id string, success bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range p.rows {
		if p.rows[i].ID == id {
			if success {
				p.rows[i].Status = RunPassed
			} else {
				p.rows[i].Status = RunFailed
			}
			break
		}
	}

	p.renderLocked()
}

// HasActive returns true if any devices are still connecting or executing.
func (p *FleetProgress) HasActive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, r := range p.rows {
		if r.Status == RunConnecting || r.Status == RunExecuting {
			return true
		}
	}
	return false
}

func (p *FleetProgress) animate() {
	ticker := time.NewTicker(80 * time.Millisecond)
	defer ticker.Stop()
	defer close(p.doneChan)

	for {
		select {
		case <-p.stopChan:
			// Final render with every device in its final state
			p.mu.Lock()
			p.renderLocked()
			p.mu.Unlock()
			return
		case <-ticker.C:
			p.mu.Lock()
			p.frame = (p.frame + 1) % len(spinnerFrames)
			p.renderLocked()
			p.mu.Unlock()
		}
	}
}

// renderLocked renders all device lines in-place. Must be called with lock held.
func (p *FleetProgress) renderLocked() {
	if !p.isTTY || len(p.rows) == 0 {
		return
	}

	var sb strings.Builder

	// Move cursor up to overwrite previous lines
	if p.lineCount > 0 {
		sb.WriteString(fmt.Sprintf("\x1b[%dA", p.lineCount))
	}

	for _, row := range p.rows {
		line := p.renderDeviceLine(row)
		sb.WriteString("\x1b[K") // Clear to end of line
		sb.WriteString(line)
		sb.WriteString("\n")
	}

	fmt.Fprint(p.output, sb.String())
	p.lineCount = len(p.rows)
}

// renderDeviceLine renders a single device with appropriate symbol and style.
func (p *FleetProgress) renderDeviceLine(row deviceRow) string {
	var symbol string
	var style lipgloss.Style

	switch row.Status {
	case RunPending:
		symbol = SymbolPending
		style = p.mutedStyle
	case RunConnecting:
		// Slow pulse while dialing, to differentiate from executing
		symbol = SymbolProgress
		colorIdx := (p.frame / 4) % len(GradientColors)
		style = lipgloss.NewStyle().Foreground(GradientColors[colorIdx])
	case RunExecuting:
		symbol = spinnerFrames[p.frame]
		colorIdx := (p.frame / 2) % len(GradientColors)
		style = lipgloss.NewStyle().Foreground(GradientColors[colorIdx])
	case RunPassed:
		symbol = SymbolSuccess
		style = p.successStyle
	case RunFailed:
		symbol = SymbolFail
		style = p.errorStyle
	}

	if row.Address != "" {
		addrStr := p.mutedStyle.Render(fmt.Sprintf("[%s]", row.Address))
		return fmt.Sprintf("%s %s %s", style.Render(symbol), row.Name, addrStr)
	}
	return fmt.Sprintf("%s %s", style.Render(symbol), row.Name)
}
