package monitor

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Dashboard color palette
const (
	// Background colors
	ColorDarkBg    = lipgloss.Color("#0A0A0F") // Deep void
	ColorSurfaceBg = lipgloss.Color("#12121A") // Dark surface
	ColorBorder    = lipgloss.Color("#2A2A4A") // Glass border (purple tint)

	// Semantic colors for metrics
	ColorHealthy  = lipgloss.Color("#39FF14") // Neon green
	ColorWarning  = lipgloss.Color("#FFAA00") // Electric amber
	ColorCritical = lipgloss.Color("#FF0055") // Hot red-pink

	// Text colors
	ColorTextPrimary   = lipgloss.Color("#FFFFFF") // Pure white
	ColorTextSecondary = lipgloss.Color("#B4B4D0") // Lavender gray
	ColorTextMuted     = lipgloss.Color("#6B6B8D") // Purple-gray

	// Accent colors
	ColorAccent    = lipgloss.Color("#FF2E97") // Neon pink
	ColorAccentDim = lipgloss.Color("#BF40FF") // Neon purple

	// Graph colors
	ColorGraph = lipgloss.Color("#00FFFF") // Neon cyan
)

// Thresholds for metric severity levels
const (
	WarningThreshold  = 70.0
	CriticalThreshold = 90.0
)

// Base styles for the dashboard
var (
	HeaderStyle = lipgloss.NewStyle().
			Foreground(ColorTextPrimary).
			Background(ColorSurfaceBg).
			Bold(true).
			Padding(0, 1)

	FooterStyle = lipgloss.NewStyle().
			Foreground(ColorTextMuted).
			Padding(0, 1)

	// Card styles - no background set here, each line handles its own
	CardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder).
			Padding(0, 1).
			MarginRight(1).
			MarginBottom(1)

	CardSelectedStyle = CardStyle.
				BorderForeground(ColorAccent)

	// Text styles
	DeviceNameStyle = lipgloss.NewStyle().
			Foreground(ColorTextPrimary).
			Bold(true)

	LabelStyle = lipgloss.NewStyle().
			Foreground(ColorTextSecondary)

	ValueStyle = lipgloss.NewStyle().
			Foreground(ColorTextPrimary)

	// Status indicator styles
	StatusWaitingStyle = lipgloss.NewStyle().
				Foreground(ColorTextSecondary)

	StatusOnlineStyle = lipgloss.NewStyle().
				Foreground(ColorHealthy)

	StatusDegradedStyle = lipgloss.NewStyle().
				Foreground(ColorWarning)

	StatusOfflineStyle = lipgloss.NewStyle().
				Foreground(ColorCritical)

	// Status text style (for the "- offline" suffix)
	StatusTextStyle = lipgloss.NewStyle().
			Foreground(ColorTextMuted)
)

// Status indicator characters
const (
	GlyphWaiting  = "◐" // Half-filled (fallback when animation not available)
	GlyphOnline   = "◉" // Filled target
	GlyphDegraded = "◔" // Partially filled
	GlyphOffline  = "◌" // Dashed circle
)

// WaitingSpinnerFrames are the animation frames for the waiting state.
// Rotates through half-circle positions for a smooth spin effect.
var WaitingSpinnerFrames = []string{"◐", "◓", "◑", "◒"}

// WaitingTextFrames are the animated text frames shown while the first
// snapshot is on its way.
var WaitingTextFrames = []string{
	"Linking up",
	"Linking up.",
	"Linking up..",
	"Linking up...",
}

// WaitingTextSlowdown controls how many spinner frames pass before advancing
// the waiting text animation. At 150ms per spinner frame, 3 gives ~450ms per
// text frame.
const WaitingTextSlowdown = 3

// statusGlyph returns the indicator character and its style for a status.
// The waiting glyph animates with the spinner frame.
func statusGlyph(status DeviceStatus, frame int) (string, lipgloss.Style) {
	switch status {
	case StatusWaiting:
		return WaitingSpinnerFrames[frame%len(WaitingSpinnerFrames)], StatusWaitingStyle
	case StatusOnline:
		return GlyphOnline, StatusOnlineStyle
	case StatusDegraded:
		return GlyphDegraded, StatusDegradedStyle
	default:
		return GlyphOffline, StatusOfflineStyle
	}
}

// MetricColor returns the appropriate color for a percentage-based metric.
// Green below 70%, amber from 70%, red from 90%.
func MetricColor(percent float64) lipgloss.Color {
	switch {
	case percent >= CriticalThreshold:
		return ColorCritical
	case percent >= WarningThreshold:
		return ColorWarning
	default:
		return ColorHealthy
	}
}

// MetricStyle returns a style with the appropriate foreground color for the metric.
func MetricStyle(percent float64) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(MetricColor(percent))
}

// Temperature thresholds in degrees Celsius. Pi SoCs begin soft throttling
// around 80C.
const (
	TempWarningThreshold  = 70.0
	TempCriticalThreshold = 80.0
)

// TempColor returns the color for a SoC temperature reading.
func TempColor(tempC float64) lipgloss.Color {
	switch {
	case tempC >= TempCriticalThreshold:
		return ColorCritical
	case tempC >= TempWarningThreshold:
		return ColorWarning
	default:
		return ColorHealthy
	}
}

// ProgressBar renders a bracketless progress bar with threshold-based coloring.
func ProgressBar(width int, percent float64) string {
	if width < 1 {
		width = 1
	}
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	filled := int(percent / 100.0 * float64(width))
	if filled > width {
		filled = width
	}

	var bar strings.Builder
	for i := 0; i < width; i++ {
		if i < filled {
			bar.WriteString("▰")
		} else {
			bar.WriteString("▱")
		}
	}

	return lipgloss.NewStyle().Foreground(MetricColor(percent)).Render(bar.String())
}
