package monitor

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// renderDashboard renders the complete dashboard view.
func (m Model) renderDashboard() string {
	var b strings.Builder

	// Render header
	header := m.renderHeader()
	b.WriteString(header)
	b.WriteString("\n\n")

	// Render device cards
	cards := m.renderDeviceCards()
	b.WriteString(cards)

	// Render footer on terminals tall enough for one
	if m.ShowFooter() {
		footer := m.renderFooter()
		b.WriteString("\n")
		b.WriteString(footer)
	}

	return b.String()
}

// renderHeader renders the dashboard header with summary stats.
func (m Model) renderHeader() string {
	totalDevices := len(m.ids)
	onlineDevices := m.OnlineCount()
	lastUpdate := m.SecondsSinceUpdate()

	var updateText string
	switch lastUpdate {
	case 0:
		updateText = "just now"
	case 1:
		updateText = "1s ago"
	default:
		updateText = fmt.Sprintf("%ds ago", lastUpdate)
	}

	title := lipgloss.NewStyle().
		Foreground(ColorAccent).
		Bold(true).
		Render("pifleet monitor")

	stats := lipgloss.NewStyle().
		Foreground(ColorTextSecondary).
		Render(fmt.Sprintf(" | %d devices | %d online | sort %s | last update %s",
			totalDevices, onlineDevices, m.sortOrder, updateText))

	return HeaderStyle.Render(title + stats)
}

// renderDeviceCards renders the grid of device cards. The layout tier picks
// the card variant: minimal below 80 columns, compact to 120, full above.
func (m Model) renderDeviceCards() string {
	if len(m.ids) == 0 {
		return LabelStyle.Render("No devices configured")
	}

	cardWidth := m.calculateCardWidth()
	layout := m.LayoutMode()

	var cards []string
	for i, id := range m.ids {
		isSelected := i == m.selected

		var card string
		switch layout {
		case LayoutMinimal:
			card = m.renderMinimalCard(id, cardWidth, isSelected)
		case LayoutCompact:
			card = m.renderCompactCard(id, cardWidth, isSelected)
		default:
			card = m.renderCard(id, cardWidth, isSelected)
		}
		cards = append(cards, card)
	}

	// Arrange cards in a grid
	return m.layoutCards(cards, cardWidth)
}

// calculateCardWidth determines the optimal card width based on terminal width.
func (m Model) calculateCardWidth() int {
	if m.width == 0 {
		return 40 // Default width
	}

	// Try to fit 2-3 cards per row with some margin
	if m.width >= BreakpointCompact {
		return 38
	}
	return m.width - 4 // Single column with margin
}

// layoutCards arranges cards in rows based on terminal width.
func (m Model) layoutCards(cards []string, cardWidth int) string {
	if len(cards) == 0 {
		return ""
	}

	// Calculate cards per row
	cardsPerRow := 1
	if m.width > 0 {
		// Account for card margins and borders
		effectiveCardWidth := cardWidth + 3 // margin + border
		cardsPerRow = m.width / effectiveCardWidth
		if cardsPerRow < 1 {
			cardsPerRow = 1
		}
	}

	var rows []string
	for i := 0; i < len(cards); i += cardsPerRow {
		end := i + cardsPerRow
		if end > len(cards) {
			end = len(cards)
		}

		rowCards := cards[i:end]
		row := lipgloss.JoinHorizontal(lipgloss.Top, rowCards...)
		rows = append(rows, row)
	}

	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

// renderFooter renders the keyboard help footer.
func (m Model) renderFooter() string {
	hints := []string{
		"q quit",
		"s sort",
		"↑↓ select",
		"enter detail",
		"? help",
	}

	return FooterStyle.Render(strings.Join(hints, " | "))
}

// formatMB formats a megabyte count as a human-readable string.
func formatMB(mb int64) string {
	if mb < 1024 {
		return fmt.Sprintf("%d MB", mb)
	}
	return fmt.Sprintf("%.1f GB", float64(mb)/1024)
}

// formatGB formats a gigabyte count as a human-readable string.
func formatGB(gb float64) string {
	if gb < 1024 {
		return fmt.Sprintf("%.1f GB", gb)
	}
	return fmt.Sprintf("%.2f TB", gb/1024)
}

// formatUptime formats seconds of uptime as the two largest units.
func formatUptime(seconds int64) string {
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}

	days := seconds / 86400
	hours := (seconds % 86400) / 3600
	minutes := (seconds % 3600) / 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh", days, hours)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	default:
		return fmt.Sprintf("%dm", minutes)
	}
}

// FormatRate formats a kilobytes-per-second rate as a human-readable string.
func FormatRate(kbps float64) string {
	if kbps < 1 {
		return fmt.Sprintf("%.0f B/s", kbps*1024)
	} else if kbps < 1024 {
		return fmt.Sprintf("%.1f KB/s", kbps)
	} else if kbps < 1024*1024 {
		return fmt.Sprintf("%.1f MB/s", kbps/1024)
	}
	return fmt.Sprintf("%.1f GB/s", kbps/(1024*1024))
}
