package monitor

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/rileyhilliard/pifleet/internal/telemetry"
)

// Card layout constants
const (
	cardGraphHeight = 2  // braille graph rows
	cardMinBarWidth = 10 // minimum graph width
)

// cardDividerStyle creates a subtle divider line with matching background
var cardDividerStyle = lipgloss.NewStyle().
	Foreground(ColorBorder).
	Background(ColorSurfaceBg)

// renderCardDivider creates a subtle thin divider line
func renderCardDivider(width int) string {
	divider := strings.Repeat("─", width)
	return cardDividerStyle.Render(divider)
}

// truncateWithEllipsis truncates a string to maxLen, adding ellipsis if needed.
func truncateWithEllipsis(s string, maxLen int) string {
	if maxLen <= 3 {
		return s
	}
	if len(s) > maxLen {
		return s[:maxLen-3] + "..."
	}
	return s
}

// wrapWords breaks text into lines no wider than width.
func wrapWords(text string, width int) []string {
	words := strings.Fields(text)
	var lines []string
	var current string
	for _, word := range words {
		switch {
		case current == "":
			current = word
		case len(current)+1+len(word) <= width:
			current += " " + word
		default:
			lines = append(lines, current)
			current = word
		}
	}
	if current != "" {
		lines = append(lines, current)
	}
	return lines
}

// renderCardLine renders a text line with proper background fill.
// Applies background to the entire line including content and padding.
func renderCardLine(content string, width int) string {
	contentWidth := lipgloss.Width(content)
	padding := ""
	if width > contentWidth {
		padding = strings.Repeat(" ", width-contentWidth)
	}
	// Apply background to entire line (content + padding)
	lineStyle := lipgloss.NewStyle().Background(ColorSurfaceBg)
	return lineStyle.Render(content + padding)
}

// renderCard renders a single device card with metrics.
func (m Model) renderCard(id string, width int, selected bool) string {
	st := m.states[id]

	// Choose card style based on selection
	style := CardStyle.Width(width)
	if selected {
		style = CardSelectedStyle.Width(width)
	}

	// Inner width for content (account for card padding)
	innerWidth := width - 4

	var lines []string

	// Device name with status indicator
	lines = append(lines, renderCardLine(m.renderNameLine(st), innerWidth))

	if st.snapshot == nil {
		// No snapshot yet: show a status-appropriate placeholder
		lines = append(lines, renderCardDivider(innerWidth))
		switch st.status {
		case StatusOffline:
			lines = append(lines, renderOfflineLines(st, innerWidth, true)...)
		case StatusDegraded:
			lines = append(lines, renderCardLine(StatusDegradedStyle.Render("  Degraded"), innerWidth))
			if st.errMsg != "" {
				errDisplay := truncateWithEllipsis(st.errMsg, innerWidth-4)
				lines = append(lines, renderCardLine(LabelStyle.Render("  "+errDisplay), innerWidth))
			}
		default:
			lines = append(lines, renderCardLine(LabelStyle.Render("  "+m.WaitingText()), innerWidth))
		}
	} else {
		snap := st.snapshot

		// CPU metrics with braille graph
		lines = append(lines, renderCardDivider(innerWidth))
		lines = append(lines, m.renderCardCPUSection(id, snap, innerWidth)...)

		// Memory metrics with braille graph
		lines = append(lines, renderCardDivider(innerWidth))
		lines = append(lines, m.renderCardMemSection(id, snap, innerWidth)...)

		// Network rates (with divider if present)
		netLine := renderCardNetworkLine(snap, innerWidth)
		if netLine != "" {
			lines = append(lines, renderCardDivider(innerWidth))
			lines = append(lines, renderCardLine(netLine, innerWidth))
		}

		// SoC temperature (with divider if reported)
		tempLine := renderCardTempLine(snap, innerWidth)
		if tempLine != "" {
			lines = append(lines, renderCardDivider(innerWidth))
			lines = append(lines, renderCardLine(tempLine, innerWidth))
		}

		// Top process (with divider if present)
		if len(snap.TopCPU) > 0 {
			lines = append(lines, renderCardDivider(innerWidth))
			topLine := renderCardTopProcess(snap.TopCPU, innerWidth)
			lines = append(lines, renderCardLine(topLine, innerWidth))
		}

		// A degraded device keeps showing its last snapshot with the
		// sampler error underneath.
		if st.status == StatusDegraded && st.errMsg != "" {
			lines = append(lines, renderCardDivider(innerWidth))
			errDisplay := truncateWithEllipsis(st.errMsg, innerWidth-4)
			lines = append(lines, renderCardLine(StatusDegradedStyle.Render("  "+errDisplay), innerWidth))
		}
	}

	content := strings.Join(lines, "\n")
	return style.Render(content)
}

// renderNameLine renders the device name with its status indicator.
func (m Model) renderNameLine(st *deviceState) string {
	glyph, style := statusGlyph(st.status, m.spinnerFrame)
	return style.Render(glyph) + " " + DeviceNameStyle.Render(st.device.Name)
}

// renderOfflineLines renders the offline placeholder with the last error and
// its suggestion. Full cards wrap the suggestion, compact cards truncate it.
func renderOfflineLines(st *deviceState, innerWidth int, wrap bool) []string {
	var lines []string
	lines = append(lines, renderCardLine(StatusOfflineStyle.Render("  Offline"), innerWidth))

	// Show the core error (e.g. "connection refused")
	if st.errMsg != "" {
		errDisplay := truncateWithEllipsis(st.errMsg, innerWidth-4)
		lines = append(lines, renderCardLine(LabelStyle.Render("  "+errDisplay), innerWidth))
	}

	lines = append(lines, renderCardDivider(innerWidth))

	hint := st.errHint
	if hint == "" {
		hint = "Device may be powered off or unreachable"
	}

	if wrap {
		for _, hl := range wrapWords(hint, innerWidth-4) {
			lines = append(lines, renderCardLine(LabelStyle.Render("  "+hl), innerWidth))
		}
		// Pad to roughly match the height of an online card
		lines = append(lines, renderCardLine("", innerWidth))
		lines = append(lines, renderCardLine("", innerWidth))
	} else {
		hintDisplay := truncateWithEllipsis(hint, innerWidth-4)
		lines = append(lines, renderCardLine(LabelStyle.Render("  "+hintDisplay), innerWidth))
	}

	return lines
}

// renderCardCPUSection renders CPU with a braille sparkline graph.
// Returns multiple lines: header line + graph rows.
func (m Model) renderCardCPUSection(id string, snap *telemetry.MetricsSnapshot, lineWidth int) []string {
	var lines []string

	// Header line: "CPU" label + right-aligned percentage and load
	label := LabelStyle.Render("CPU")
	pctText := MetricStyle(snap.CPUPercent).Render(fmt.Sprintf("%5.1f%%", snap.CPUPercent))
	loadText := LabelStyle.Render(fmt.Sprintf("L:%.1f", snap.Load1))

	rightContent := pctText + " " + loadText
	rightWidth := lipgloss.Width(rightContent)

	padding := ""
	if lineWidth > lipgloss.Width(label)+rightWidth {
		padding = strings.Repeat(" ", lineWidth-lipgloss.Width(label)-rightWidth)
	}
	headerLine := label + padding + rightContent
	lines = append(lines, renderCardLine(headerLine, lineWidth))

	graphWidth := lineWidth
	if graphWidth < cardMinBarWidth {
		graphWidth = cardMinBarWidth
	}

	// Braille graph once history exists, gradient bar until then
	cpuHistory := m.history.CPU(id, DefaultHistorySize)
	if len(cpuHistory) > 0 {
		graph := BrailleSparkline(cpuHistory, graphWidth, cardGraphHeight)
		for _, gl := range strings.Split(graph, "\n") {
			lines = append(lines, renderCardLine(gl, lineWidth))
		}
	} else {
		bar := GradientBar(graphWidth, snap.CPUPercent)
		lines = append(lines, renderCardLine(bar, lineWidth))
	}

	return lines
}

// renderCardMemSection renders memory with a braille sparkline graph.
func (m Model) renderCardMemSection(id string, snap *telemetry.MetricsSnapshot, lineWidth int) []string {
	var lines []string

	// Header line: "MEM" label + right-aligned percentage
	label := LabelStyle.Render("MEM")
	pctText := MetricStyle(snap.MemPercent).Render(fmt.Sprintf("%5.1f%%", snap.MemPercent))

	rightWidth := lipgloss.Width(pctText)
	padding := ""
	if lineWidth > lipgloss.Width(label)+rightWidth {
		padding = strings.Repeat(" ", lineWidth-lipgloss.Width(label)-rightWidth)
	}
	headerLine := label + padding + pctText
	lines = append(lines, renderCardLine(headerLine, lineWidth))

	graphWidth := lineWidth
	if graphWidth < cardMinBarWidth {
		graphWidth = cardMinBarWidth
	}

	memHistory := m.history.Mem(id, DefaultHistorySize)
	if len(memHistory) > 0 {
		graph := BrailleSparkline(memHistory, graphWidth, cardGraphHeight)
		for _, gl := range strings.Split(graph, "\n") {
			lines = append(lines, renderCardLine(gl, lineWidth))
		}
	} else {
		bar := GradientBar(graphWidth, snap.MemPercent)
		lines = append(lines, renderCardLine(bar, lineWidth))
	}

	return lines
}

// renderCardNetworkLine renders network throughput rates in a single line.
// The sampler computes the rates, so the first snapshot shows nothing.
func renderCardNetworkLine(snap *telemetry.MetricsSnapshot, lineWidth int) string {
	if snap.NetRxKBps == 0 && snap.NetTxKBps == 0 {
		return ""
	}

	label := LabelStyle.Render("NET")
	downArrow := lipgloss.NewStyle().Foreground(ColorAccent).Render("↓")
	upArrow := lipgloss.NewStyle().Foreground(ColorAccent).Render("↑")

	rxText := ValueStyle.Render(FormatRate(snap.NetRxKBps))
	txText := ValueStyle.Render(FormatRate(snap.NetTxKBps))

	// Right-align the rates
	rightContent := downArrow + rxText + " " + upArrow + txText
	rightWidth := lipgloss.Width(rightContent)
	padding := ""
	if lineWidth > lipgloss.Width(label)+rightWidth {
		padding = strings.Repeat(" ", lineWidth-lipgloss.Width(label)-rightWidth)
	}

	return label + padding + rightContent
}

// renderCardTempLine renders the SoC temperature when the device reports one.
func renderCardTempLine(snap *telemetry.MetricsSnapshot, lineWidth int) string {
	if snap.TempC == nil {
		return ""
	}

	label := LabelStyle.Render("TMP")
	tempStyle := lipgloss.NewStyle().Foreground(TempColor(*snap.TempC))
	tempText := tempStyle.Render(fmt.Sprintf("%.1f°C", *snap.TempC))

	rightWidth := lipgloss.Width(tempText)
	padding := ""
	if lineWidth > lipgloss.Width(label)+rightWidth {
		padding = strings.Repeat(" ", lineWidth-lipgloss.Width(label)-rightWidth)
	}

	return label + padding + tempText
}

// renderCardTopProcess renders the busiest process by CPU in a single line.
func renderCardTopProcess(procs []telemetry.ProcessStat, maxWidth int) string {
	if len(procs) == 0 {
		return ""
	}

	label := LabelStyle.Render("TOP")
	proc := procs[0]

	// ps reports the bare command name, but strip a path if one shows up
	name := proc.Name
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}

	pctColor := MetricColor(proc.CPUPercent)
	pctText := lipgloss.NewStyle().Foreground(pctColor).Render(fmt.Sprintf("%.0f%%", proc.CPUPercent))

	maxNameLen := 15
	if len(name) > maxNameLen {
		name = name[:maxNameLen-2] + ".."
	}

	// Right-align: "name(pct)"
	rightContent := name + "(" + pctText + ")"
	rightWidth := lipgloss.Width(rightContent)
	padding := ""
	if maxWidth > lipgloss.Width(label)+rightWidth {
		padding = strings.Repeat(" ", maxWidth-lipgloss.Width(label)-rightWidth)
	}

	return label + padding + rightContent
}

// renderCompactCard renders a compact card for terminals 80-120 columns wide.
// Uses the same braille graph layout as full cards but with smaller graphs.
func (m Model) renderCompactCard(id string, width int, selected bool) string {
	st := m.states[id]

	style := CardStyle.Width(width)
	if selected {
		style = CardSelectedStyle.Width(width)
	}

	innerWidth := width - 4
	var lines []string

	lines = append(lines, renderCardLine(m.renderNameLine(st), innerWidth))

	if st.snapshot == nil {
		lines = append(lines, renderCardDivider(innerWidth))
		switch st.status {
		case StatusOffline:
			lines = append(lines, renderOfflineLines(st, innerWidth, false)...)
		case StatusDegraded:
			lines = append(lines, renderCardLine(StatusDegradedStyle.Render("  Degraded"), innerWidth))
		default:
			lines = append(lines, renderCardLine(LabelStyle.Render("  "+m.WaitingText()), innerWidth))
		}
	} else {
		snap := st.snapshot

		// CPU with single-row sparkline
		lines = append(lines, renderCardDivider(innerWidth))
		lines = append(lines, m.renderCompactCPUSection(id, snap, innerWidth)...)

		// Memory with single-row sparkline
		lines = append(lines, renderCardDivider(innerWidth))
		lines = append(lines, m.renderCompactMemSection(id, snap, innerWidth)...)
	}

	content := strings.Join(lines, "\n")
	return style.Render(content)
}

// renderCompactCPUSection renders CPU with a single-row braille graph.
func (m Model) renderCompactCPUSection(id string, snap *telemetry.MetricsSnapshot, lineWidth int) []string {
	var lines []string

	label := LabelStyle.Render("CPU")
	pctText := MetricStyle(snap.CPUPercent).Render(fmt.Sprintf("%5.1f%%", snap.CPUPercent))

	rightWidth := lipgloss.Width(pctText)
	padding := ""
	if lineWidth > lipgloss.Width(label)+rightWidth {
		padding = strings.Repeat(" ", lineWidth-lipgloss.Width(label)-rightWidth)
	}
	headerLine := label + padding + pctText
	lines = append(lines, renderCardLine(headerLine, lineWidth))

	graphWidth := lineWidth
	if graphWidth < cardMinBarWidth {
		graphWidth = cardMinBarWidth
	}

	cpuHistory := m.history.CPU(id, DefaultHistorySize)
	if len(cpuHistory) > 0 {
		graph := BrailleSparkline(cpuHistory, graphWidth, 1)
		lines = append(lines, renderCardLine(graph, lineWidth))
	} else {
		bar := GradientBar(graphWidth, snap.CPUPercent)
		lines = append(lines, renderCardLine(bar, lineWidth))
	}

	return lines
}

// renderCompactMemSection renders memory with a single-row braille graph.
func (m Model) renderCompactMemSection(id string, snap *telemetry.MetricsSnapshot, lineWidth int) []string {
	var lines []string

	label := LabelStyle.Render("MEM")
	pctText := MetricStyle(snap.MemPercent).Render(fmt.Sprintf("%5.1f%%", snap.MemPercent))

	rightWidth := lipgloss.Width(pctText)
	padding := ""
	if lineWidth > lipgloss.Width(label)+rightWidth {
		padding = strings.Repeat(" ", lineWidth-lipgloss.Width(label)-rightWidth)
	}
	headerLine := label + padding + pctText
	lines = append(lines, renderCardLine(headerLine, lineWidth))

	graphWidth := lineWidth
	if graphWidth < cardMinBarWidth {
		graphWidth = cardMinBarWidth
	}

	memHistory := m.history.Mem(id, DefaultHistorySize)
	if len(memHistory) > 0 {
		graph := BrailleSparkline(memHistory, graphWidth, 1)
		lines = append(lines, renderCardLine(graph, lineWidth))
	} else {
		bar := GradientBar(graphWidth, snap.MemPercent)
		lines = append(lines, renderCardLine(bar, lineWidth))
	}

	return lines
}

// renderMinimalCard renders a minimal card for terminals < 80 columns.
// Shows only essential metrics as text, no graphs.
func (m Model) renderMinimalCard(id string, width int, selected bool) string {
	st := m.states[id]

	style := CardStyle.Width(width)
	if selected {
		style = CardSelectedStyle.Width(width)
	}

	innerWidth := width - 4
	var lines []string

	// Device name with status indicator (abbreviated if necessary)
	lines = append(lines, renderCardLine(m.renderMinimalNameLine(st, innerWidth), innerWidth))

	if st.snapshot == nil {
		placeholder := "..."
		if st.status == StatusOffline {
			placeholder = "Offline"
		}
		lines = append(lines, renderCardLine(LabelStyle.Render(placeholder), innerWidth))
	} else {
		lines = append(lines, renderCardDivider(innerWidth))
		metricsLine := renderMinimalMetricsLine(st.snapshot, innerWidth)
		lines = append(lines, renderCardLine(metricsLine, innerWidth))
	}

	content := strings.Join(lines, "\n")
	return style.Render(content)
}

// renderMinimalNameLine renders the device name, truncating if necessary.
func (m Model) renderMinimalNameLine(st *deviceState, maxWidth int) string {
	glyph, style := statusGlyph(st.status, m.spinnerFrame)

	displayName := st.device.Name
	availableWidth := maxWidth - 2 // indicator + space
	if len(displayName) > availableWidth && availableWidth > 3 {
		displayName = displayName[:availableWidth-2] + ".."
	}

	return style.Render(glyph) + " " + DeviceNameStyle.Render(displayName)
}

// renderMinimalMetricsLine renders a single line with CPU and memory usage.
func renderMinimalMetricsLine(snap *telemetry.MetricsSnapshot, width int) string {
	cpuText := MetricStyle(snap.CPUPercent).Render(fmt.Sprintf("%.0f%%", snap.CPUPercent))
	memText := MetricStyle(snap.MemPercent).Render(fmt.Sprintf("%.0f%%", snap.MemPercent))

	if width >= 30 {
		return fmt.Sprintf("%s %s  %s %s",
			LabelStyle.Render("CPU:"), cpuText,
			LabelStyle.Render("MEM:"), memText)
	}

	// Super compact format
	return fmt.Sprintf("C:%s M:%s", cpuText, memText)
}
