package monitor

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/rileyhilliard/pifleet/internal/telemetry"
)

// Detail view styles
var (
	detailContainerStyle = lipgloss.NewStyle().
				Padding(1, 2)

	detailSectionStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(ColorBorder).
				Padding(0, 1).
				MarginBottom(1)

	detailTitleStyle = lipgloss.NewStyle().
				Foreground(ColorAccent).
				Bold(true)

	detailValueStyle = lipgloss.NewStyle().
				Foreground(ColorTextPrimary)
)

// renderDetailView renders the expanded single-device view. The body lives
// in a viewport so tall sections stay reachable on short terminals.
func (m Model) renderDetailView() string {
	id := m.SelectedDevice()
	if id == "" {
		return LabelStyle.Render("No device selected")
	}

	var b strings.Builder

	b.WriteString(m.renderDetailHeader(m.states[id]))
	b.WriteString("\n\n")

	if m.viewportReady {
		b.WriteString(m.detailViewport.View())
	} else {
		b.WriteString(m.renderDetailContent())
	}

	b.WriteString("\n")
	b.WriteString(m.renderDetailFooter())

	return detailContainerStyle.Render(b.String())
}

// updateDetailViewportContent refreshes the scrollable body after new data
// arrives or the selection changes.
func (m *Model) updateDetailViewportContent() {
	if !m.viewportReady {
		return
	}
	m.detailViewport.SetContent(m.renderDetailContent())
}

// renderDetailContent renders every section for the selected device.
func (m Model) renderDetailContent() string {
	id := m.SelectedDevice()
	if id == "" {
		return ""
	}

	st := m.states[id]
	snap := st.snapshot

	// Content width based on terminal
	contentWidth := m.width - 6
	if contentWidth < 40 {
		contentWidth = 40
	}

	var b strings.Builder

	// Identity section always renders, even before the first snapshot
	b.WriteString(m.renderDetailIdentitySection(st, contentWidth))
	b.WriteString("\n")

	if snap == nil {
		placeholder := LabelStyle.Render("Waiting for the first snapshot...")
		if st.status == StatusOffline {
			placeholder = StatusOfflineStyle.Render("Offline")
			if st.errMsg != "" {
				placeholder += "\n" + LabelStyle.Render(st.errMsg)
			}
			if st.errHint != "" {
				placeholder += "\n" + LabelStyle.Render(st.errHint)
			}
		}
		b.WriteString(detailSectionStyle.Width(contentWidth).Render(placeholder))
		return b.String()
	}

	b.WriteString(m.renderDetailCPUSection(id, snap, contentWidth))
	b.WriteString("\n")

	b.WriteString(renderDetailMemSection(snap, contentWidth))
	b.WriteString("\n")

	if snap.DiskTotalGB > 0 || len(snap.DiskPartitions) > 0 {
		b.WriteString(renderDetailDiskSection(snap, contentWidth))
		b.WriteString("\n")
	}

	b.WriteString(m.renderDetailNetSection(id, snap, contentWidth))
	b.WriteString("\n")

	if len(snap.TopCPU) > 0 || len(snap.TopMem) > 0 {
		b.WriteString(renderDetailProcessSection(snap, contentWidth))
		b.WriteString("\n")
	}

	if stream := m.renderDetailStreamSection(st, snap, contentWidth); stream != "" {
		b.WriteString(stream)
		b.WriteString("\n")
	}

	return b.String()
}

// renderDetailHeader renders the device name and status prominently.
func (m Model) renderDetailHeader(st *deviceState) string {
	glyph, glyphStyle := statusGlyph(st.status, m.spinnerFrame)

	var statusText string
	switch st.status {
	case StatusWaiting:
		statusText = "Waiting"
	case StatusOnline:
		statusText = "Online"
	case StatusDegraded:
		statusText = "Degraded"
	default:
		statusText = "Offline"
	}

	title := lipgloss.NewStyle().
		Foreground(ColorAccent).
		Bold(true).
		Render(st.device.Name)

	indicator := glyphStyle.Render(glyph + " " + statusText)

	return fmt.Sprintf("%s  %s", title, indicator)
}

// renderDetailIdentitySection renders who the device is and how we reach it.
func (m Model) renderDetailIdentitySection(st *deviceState, width int) string {
	var lines []string

	lines = append(lines, detailTitleStyle.Render("Device"))
	lines = append(lines, "")

	target := fmt.Sprintf("%s@%s", st.device.User, st.device.Address)
	if st.device.Port != 0 && st.device.Port != 22 {
		target = fmt.Sprintf("%s:%d", target, st.device.Port)
	}
	lines = append(lines, fmt.Sprintf("  Target: %s", detailValueStyle.Render(target)))

	if len(st.device.Tags) > 0 {
		tagsLine := fmt.Sprintf("  Tags:   %s", strings.Join(st.device.Tags, ", "))
		lines = append(lines, LabelStyle.Render(tagsLine))
	}

	if st.snapshot != nil && st.snapshot.UptimeSeconds > 0 {
		upLine := fmt.Sprintf("  Up:     %s", formatUptime(st.snapshot.UptimeSeconds))
		lines = append(lines, LabelStyle.Render(upLine))
	}

	if !st.lastSeen.IsZero() {
		seenLine := fmt.Sprintf("  Seen:   %s", st.lastSeen.Format("15:04:05"))
		lines = append(lines, LabelStyle.Render(seenLine))
	}

	content := strings.Join(lines, "\n")
	return detailSectionStyle.Width(width).Render(content)
}

// renderDetailCPUSection renders the CPU section with per-core bars and a
// history sparkline.
func (m Model) renderDetailCPUSection(id string, snap *telemetry.MetricsSnapshot, width int) string {
	var lines []string

	lines = append(lines, detailTitleStyle.Render("CPU"))
	lines = append(lines, "")

	// Current usage with large progress bar
	barWidth := width - 20
	if barWidth < 20 {
		barWidth = 20
	}
	bar := ProgressBar(barWidth, snap.CPUPercent)
	pctText := MetricStyle(snap.CPUPercent).Render(fmt.Sprintf("%5.1f%%", snap.CPUPercent))
	lines = append(lines, fmt.Sprintf("  Usage: %s %s", bar, pctText))

	// Load average
	loadLine := fmt.Sprintf("  Load:  %.2f, %.2f, %.2f (1m, 5m, 15m)",
		snap.Load1, snap.Load5, snap.Load15)
	lines = append(lines, LabelStyle.Render(loadLine))

	if snap.CPUCores > 0 {
		coresLine := fmt.Sprintf("  Cores: %d", snap.CPUCores)
		lines = append(lines, LabelStyle.Render(coresLine))
	}

	// Per-core bars
	if len(snap.CPUPerCore) > 0 {
		lines = append(lines, "")
		coreBarWidth := barWidth - 8
		if coreBarWidth < 10 {
			coreBarWidth = 10
		}
		for i, core := range snap.CPUPerCore {
			coreBar := ProgressBar(coreBarWidth, core)
			corePct := MetricStyle(core).Render(fmt.Sprintf("%5.1f%%", core))
			lines = append(lines, fmt.Sprintf("  cpu%-2d  %s %s", i, coreBar, corePct))
		}
	}

	// SoC temperature
	if snap.TempC != nil {
		tempStyle := lipgloss.NewStyle().Foreground(TempColor(*snap.TempC))
		tempLine := fmt.Sprintf("  Temp:  %s", tempStyle.Render(fmt.Sprintf("%.1f°C", *snap.TempC)))
		lines = append(lines, "")
		lines = append(lines, tempLine)
	}

	// History sparkline
	history := m.history.CPU(id, DefaultHistorySize)
	if len(history) > 1 {
		lines = append(lines, "")
		graph := BrailleSparkline(history, width-4, 2)
		for _, gl := range strings.Split(graph, "\n") {
			lines = append(lines, fmt.Sprintf("  %s", gl))
		}
		lines = append(lines, LabelStyle.Render(fmt.Sprintf("  History (%d samples)", len(history))))
	}

	content := strings.Join(lines, "\n")
	return detailSectionStyle.Width(width).Render(content)
}

// renderDetailMemSection renders the memory section with breakdown and swap.
func renderDetailMemSection(snap *telemetry.MetricsSnapshot, width int) string {
	var lines []string

	lines = append(lines, detailTitleStyle.Render("Memory"))
	lines = append(lines, "")

	barWidth := width - 20
	if barWidth < 20 {
		barWidth = 20
	}
	bar := ProgressBar(barWidth, snap.MemPercent)
	pctText := MetricStyle(snap.MemPercent).Render(fmt.Sprintf("%5.1f%%", snap.MemPercent))
	lines = append(lines, fmt.Sprintf("  Usage: %s %s", bar, pctText))

	// Memory breakdown
	usedText := fmt.Sprintf("  Used:      %s", formatMB(snap.MemUsedMB))
	availText := fmt.Sprintf("  Available: %s", formatMB(snap.MemAvailableMB))
	cachedText := fmt.Sprintf("  Cached:    %s", formatMB(snap.MemCachedMB))
	totalText := fmt.Sprintf("  Total:     %s", formatMB(snap.MemTotalMB))

	lines = append(lines, LabelStyle.Render(usedText))
	lines = append(lines, LabelStyle.Render(availText))
	lines = append(lines, LabelStyle.Render(cachedText))
	lines = append(lines, LabelStyle.Render(totalText))

	// Swap only matters when the device has any
	if snap.SwapTotalMB > 0 {
		swapPct := float64(snap.SwapUsedMB) / float64(snap.SwapTotalMB) * 100
		swapBar := ProgressBar(barWidth, swapPct)
		swapText := MetricStyle(swapPct).Render(fmt.Sprintf("%5.1f%%", swapPct))
		lines = append(lines, "")
		lines = append(lines, fmt.Sprintf("  Swap:  %s %s", swapBar, swapText))
		swapDetail := fmt.Sprintf("         %s / %s", formatMB(snap.SwapUsedMB), formatMB(snap.SwapTotalMB))
		lines = append(lines, LabelStyle.Render(swapDetail))
	}

	content := strings.Join(lines, "\n")
	return detailSectionStyle.Width(width).Render(content)
}

// renderDetailDiskSection renders root filesystem usage plus any extra mounts.
func renderDetailDiskSection(snap *telemetry.MetricsSnapshot, width int) string {
	var lines []string

	lines = append(lines, detailTitleStyle.Render("Disk"))
	lines = append(lines, "")

	barWidth := width - 20
	if barWidth < 20 {
		barWidth = 20
	}

	if snap.DiskTotalGB > 0 {
		bar := ProgressBar(barWidth, snap.DiskPercent)
		pctText := MetricStyle(snap.DiskPercent).Render(fmt.Sprintf("%5.1f%%", snap.DiskPercent))
		lines = append(lines, fmt.Sprintf("  /:     %s %s", bar, pctText))
		rootDetail := fmt.Sprintf("         %s / %s", formatGB(snap.DiskUsedGB), formatGB(snap.DiskTotalGB))
		lines = append(lines, LabelStyle.Render(rootDetail))
	}

	for _, part := range snap.DiskPartitions {
		if part.Mountpoint == "/" {
			continue
		}
		lines = append(lines, "")

		name := lipgloss.NewStyle().Foreground(ColorTextPrimary).Bold(true).Render(part.Mountpoint)
		lines = append(lines, fmt.Sprintf("  %s", name))

		partPct := MetricStyle(part.Percent).Render(fmt.Sprintf("%.1f%%", part.Percent))
		partLine := fmt.Sprintf("    %s  %s / %s (%s)",
			partPct, formatGB(part.UsedGB), formatGB(part.TotalGB), part.Fstype)
		lines = append(lines, LabelStyle.Render(partLine))
	}

	content := strings.Join(lines, "\n")
	return detailSectionStyle.Width(width).Render(content)
}

// renderDetailNetSection renders current throughput with short history graphs.
func (m Model) renderDetailNetSection(id string, snap *telemetry.MetricsSnapshot, width int) string {
	var lines []string

	lines = append(lines, detailTitleStyle.Render("Network"))
	lines = append(lines, "")

	downArrow := lipgloss.NewStyle().Foreground(ColorHealthy).Render("↓")
	upArrow := lipgloss.NewStyle().Foreground(ColorWarning).Render("↑")

	rateLine := fmt.Sprintf("  %s %s  %s %s",
		downArrow, FormatRate(snap.NetRxKBps),
		upArrow, FormatRate(snap.NetTxKBps))
	lines = append(lines, rateLine)

	rx, tx := m.history.Net(id, DefaultHistorySize)
	graphWidth := width - 10
	if graphWidth < 10 {
		graphWidth = 10
	}
	if len(rx) > 1 {
		lines = append(lines, "")
		lines = append(lines, fmt.Sprintf("  rx  %s", BlockSparkline(rx, graphWidth)))
		lines = append(lines, fmt.Sprintf("  tx  %s", BlockSparkline(tx, graphWidth)))
	}

	content := strings.Join(lines, "\n")
	return detailSectionStyle.Width(width).Render(content)
}

// renderDetailProcessSection renders the busiest processes by CPU and memory.
func renderDetailProcessSection(snap *telemetry.MetricsSnapshot, width int) string {
	var lines []string

	lines = append(lines, detailTitleStyle.Render("Processes"))

	if snap.ProcessCount > 0 {
		lines = append(lines, LabelStyle.Render(fmt.Sprintf("  %d running", snap.ProcessCount)))
	}

	if len(snap.TopCPU) > 0 {
		lines = append(lines, "")
		lines = append(lines, LabelStyle.Render("  Top CPU"))
		lines = append(lines, renderProcessRows(snap.TopCPU, true)...)
	}

	if len(snap.TopMem) > 0 {
		lines = append(lines, "")
		lines = append(lines, LabelStyle.Render("  Top memory"))
		lines = append(lines, renderProcessRows(snap.TopMem, false)...)
	}

	content := strings.Join(lines, "\n")
	return detailSectionStyle.Width(width).Render(content)
}

// renderProcessRows formats process rows, coloring whichever metric the list
// is ranked by.
func renderProcessRows(procs []telemetry.ProcessStat, byCPU bool) []string {
	var lines []string
	for _, p := range procs {
		name := truncateWithEllipsis(p.Name, 20)

		cpuText := fmt.Sprintf("%5.1f%%", p.CPUPercent)
		memText := fmt.Sprintf("%5.1f%%", p.MemPercent)

		var cpuCell, memCell string
		if byCPU {
			cpuCell = MetricStyle(p.CPUPercent).Render(cpuText)
			memCell = LabelStyle.Render(memText)
		} else {
			cpuCell = LabelStyle.Render(cpuText)
			memCell = MetricStyle(p.MemPercent).Render(memText)
		}

		lines = append(lines, fmt.Sprintf("    %-20s %7d  cpu %s  mem %s",
			name, p.PID, cpuCell, memCell))
	}
	return lines
}

// renderDetailStreamSection surfaces stream health: degraded collectors,
// dropped events, and the last error. Empty when there is nothing to report.
func (m Model) renderDetailStreamSection(st *deviceState, snap *telemetry.MetricsSnapshot, width int) string {
	var lines []string

	if len(snap.Degraded) > 0 {
		degradedLine := fmt.Sprintf("  Degraded: %s", strings.Join(snap.Degraded, ", "))
		lines = append(lines, StatusDegradedStyle.Render(degradedLine))
	}

	if st.dropped > 0 {
		dropLine := fmt.Sprintf("  Dropped:  %d events (terminal too slow)", st.dropped)
		lines = append(lines, LabelStyle.Render(dropLine))
	}

	if st.errMsg != "" {
		lines = append(lines, StatusDegradedStyle.Render(fmt.Sprintf("  Error:    %s", st.errMsg)))
		if st.errHint != "" {
			lines = append(lines, LabelStyle.Render(fmt.Sprintf("            %s", st.errHint)))
		}
	}

	if len(lines) == 0 {
		return ""
	}

	header := []string{detailTitleStyle.Render("Stream"), ""}
	content := strings.Join(append(header, lines...), "\n")
	return detailSectionStyle.Width(width).Render(content)
}

// renderDetailFooter renders navigation hints for the detail view.
func (m Model) renderDetailFooter() string {
	hints := []string{"Esc back", "↑↓ device", "pgup/pgdn scroll", "q quit"}
	return FooterStyle.Render(strings.Join(hints, " | "))
}
