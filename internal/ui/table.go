package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
)

// TableColumn defines a table column with name and width.
type TableColumn struct {
	Title string
	Width int
}

// NewTable creates a new Bubbles table with default styling.
func NewTable(columns []TableColumn, rows []table.Row) table.Model {
	cols := make([]table.Column, len(columns))
	for i, c := range columns {
		cols[i] = table.Column{
			Title: c.Title,
			Width: c.Width,
		}
	}

	t := table.New(
		table.WithColumns(cols),
		table.WithRows(rows),
		table.WithFocused(false),
		table.WithHeight(len(rows)+1), // +1 for header
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color(string(ColorMuted))).
		BorderBottom(true).
		Bold(true).
		Foreground(lipgloss.Color(string(ColorPrimary)))
	s.Cell = s.Cell.
		Foreground(lipgloss.Color(string(ColorPrimary)))
	s.Selected = s.Selected.
		Foreground(lipgloss.Color(string(ColorPrimary))).
		Background(lipgloss.Color(string(ColorMuted))).
		Bold(false)

	t.SetStyles(s)
	return t
}

// RenderSimpleTable renders a non-interactive table string for CLI output.
func RenderSimpleTable(columns []TableColumn, rows [][]string) string {
	if len(rows) == 0 {
		return ""
	}

	tableRows := make([]table.Row, len(rows))
	for i, row := range rows {
		tableRows[i] = table.Row(row)
	}

	t := NewTable(columns, tableRows)
	return t.View()
}

// ScanRow is one discovered host in the scan output.
type ScanRow struct {
	Address  string
	Service  bool // true when the service banner identified SSH
	Identity string
	Latency  time.Duration
	Source   string // probe strategy that found it
}

// RenderScanRow formats a single result line for streaming scan output.
// Service hosts get a filled green marker, bare reachable hosts a hollow one.
func RenderScanRow(row ScanRow) string {
	var marker string
	var kind string
	if row.Service {
		marker = lipgloss.NewStyle().Foreground(ColorSuccess).Render(SymbolComplete)
		kind = "ssh"
	} else {
		marker = lipgloss.NewStyle().Foreground(ColorMuted).Render(SymbolPending)
		kind = "up"
	}

	muted := lipgloss.NewStyle().Foreground(ColorMuted)

	identity := row.Identity
	if identity == "" {
		identity = "-"
	}

	return fmt.Sprintf("  %s %s %s  %s  %s",
		marker,
		padRight(row.Address, 17),
		padRight(kind, 4),
		padRight(identity, 28),
		muted.Render(formatLatency(row.Latency)),
	)
}

// RenderScanTable renders the complete scan result set with a header line.
func RenderScanTable(rows []ScanRow) string {
	if len(rows) == 0 {
		return "No hosts responded"
	}

	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color(string(ColorPrimary))).
		BorderStyle(lipgloss.NormalBorder()).
		BorderBottom(true).
		BorderForeground(lipgloss.Color(string(ColorMuted)))

	var b strings.Builder
	b.WriteString(headerStyle.Render("    ADDRESS           KIND  IDENTITY                      LATENCY"))
	b.WriteString("\n")
	for _, row := range rows {
		b.WriteString(RenderScanRow(row))
		b.WriteString("\n")
	}
	return b.String()
}

// formatLatency renders sub-second latencies in whole milliseconds.
func formatLatency(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return formatDuration(d)
}

// padRight pads a string to the specified visible width, ANSI-aware.
func padRight(s string, width int) string {
	visibleLen := lipgloss.Width(s)
	if visibleLen >= width {
		return s
	}
	return s + strings.Repeat(" ", width-visibleLen)
}
