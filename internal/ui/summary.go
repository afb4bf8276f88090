package ui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// DeviceFailure represents a single device failure for summary display.
// Err is set when the command never ran (dial/auth problems); otherwise
// ExitCode and Stderr describe what the command did.
type DeviceFailure struct {
	Device   string
	Address  string
	ExitCode int
	Err      string
	Stderr   string
}

// ExecSummary holds fan-out results for summary rendering.
type ExecSummary struct {
	Passed   int
	Failed   int
	Failures []DeviceFailure
}

// SummaryRenderer formats fan-out summaries for terminal display.
type SummaryRenderer struct {
	errorStyle   lipgloss.Style
	successStyle lipgloss.Style
	deviceStyle  lipgloss.Style
	mutedStyle   lipgloss.Style
}

// NewSummaryRenderer creates a new summary renderer with default styles.
func NewSummaryRenderer() *SummaryRenderer {
	return &SummaryRenderer{
		errorStyle:   lipgloss.NewStyle().Foreground(ColorError),
		successStyle: lipgloss.NewStyle().Foreground(ColorSuccess),
		deviceStyle:  lipgloss.NewStyle().Foreground(ColorInfo),
		mutedStyle:   lipgloss.NewStyle().Foreground(ColorMuted),
	}
}

// RenderExecSummary generates a formatted failure summary for a fan-out.
// Returns an empty string when every device succeeded.
func RenderExecSummary(summary *ExecSummary) string {
	r := NewSummaryRenderer()
	return r.Render(summary)
}

// Render generates the formatted summary string.
func (r *SummaryRenderer) Render(summary *ExecSummary) string {
	if summary == nil || len(summary.Failures) == 0 {
		return ""
	}

	var sb strings.Builder

	failCount := len(summary.Failures)
	deviceWord := "device"
	if failCount != 1 {
		deviceWord = "devices"
	}
	sb.WriteString(r.errorStyle.Render(fmt.Sprintf("%s %d %s failed", SymbolFail, failCount, deviceWord)))
	sb.WriteString("\n")

	for _, failure := range summary.Failures {
		sb.WriteString("\n")

		// Device name with resolved address
		location := failure.Device
		if failure.Address != "" {
			location += " (" + failure.Address + ")"
		}
		sb.WriteString("  ")
		sb.WriteString(r.deviceStyle.Render(location))
		sb.WriteString("\n")

		// Why it failed
		reason := failure.Err
		if reason == "" {
			reason = "exit " + strconv.Itoa(failure.ExitCode)
		}
		sb.WriteString("    ")
		sb.WriteString(reason)
		sb.WriteString("\n")

		// Tail of remote stderr, if captured
		if failure.Stderr != "" {
			lines := strings.Split(strings.TrimRight(failure.Stderr, "\n"), "\n")
			for _, line := range lines {
				sb.WriteString("    ")
				sb.WriteString(r.mutedStyle.Render(line))
				sb.WriteString("\n")
			}
		}
	}

	return sb.String()
}

// RenderSuccessSummary generates a simple all-devices-succeeded message.
func RenderSuccessSummary(passed int) string {
	r := NewSummaryRenderer()
	if passed == 0 {
		return ""
	}
	deviceWord := "device"
	if passed != 1 {
		deviceWord = "devices"
	}
	return r.successStyle.Render(fmt.Sprintf("%s %d %s succeeded", SymbolSuccess, passed, deviceWord))
}
