package ui

import "github.com/charmbracelet/lipgloss"

// Semantic colors use base ANSI codes so output stays readable on any
// terminal theme, including 8-color ones.
const (
	ColorSuccess lipgloss.Color = "2" // Green
	ColorError   lipgloss.Color = "1" // Red
	ColorWarning lipgloss.Color = "3" // Yellow
	ColorInfo    lipgloss.Color = "6" // Cyan
)

// Text colors for content hierarchy
const (
	ColorPrimary   lipgloss.Color = "7" // White/default
	ColorSecondary lipgloss.Color = "4" // Blue
	ColorMuted     lipgloss.Color = "8" // Gray (bright black)
)

// Accent colors shared with the dashboard palette. Truecolor terminals get
// the neon identity; others downsample.
const (
	ColorAccent     lipgloss.Color = "#FF2E97" // Neon pink
	ColorAccentDim  lipgloss.Color = "#BF40FF" // Neon purple
	ColorAccentCyan lipgloss.Color = "#00FFFF" // Neon cyan
	ColorBorderDim  lipgloss.Color = "#2A2A4A" // Glass border
)

// GradientColors is the cycle the animated spinners walk through.
var GradientColors = []lipgloss.Color{
	ColorAccent,
	ColorAccentDim,
	ColorAccentCyan,
	"#39FF14", // Neon green
}
