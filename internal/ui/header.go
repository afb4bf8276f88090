package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// HeaderInfo contains information to display in the header.
type HeaderInfo struct {
	Version    string // Version string (e.g., "v0.3.0")
	Tagline    string // Optional tagline (e.g., "SSH fleet manager")
	ConfigPath string // Optional config file path to display
}

// HeaderWidth is the default width of the header divider
const HeaderWidth = 50

// RenderHeader renders a clean, branded header.
// No ASCII art - just clean typography with neon accents.
func RenderHeader(info HeaderInfo) string {
	titleStyle := lipgloss.NewStyle().
		Foreground(ColorAccent).
		Bold(true)

	versionStyle := lipgloss.NewStyle().
		Foreground(ColorAccentCyan)

	taglineStyle := lipgloss.NewStyle().
		Foreground(ColorSecondary)

	dividerStyle := lipgloss.NewStyle().
		Foreground(ColorBorderDim)

	var output strings.Builder

	// Title line: "pifleet v0.3.0"
	output.WriteString(titleStyle.Render("pifleet"))
	output.WriteString(" ")
	output.WriteString(versionStyle.Render(info.Version))
	output.WriteString("\n")

	// Tagline (if provided)
	if info.Tagline != "" {
		output.WriteString(taglineStyle.Render(info.Tagline))
		output.WriteString("\n")
	}

	// Config path (if provided)
	if info.ConfigPath != "" {
		configStyle := lipgloss.NewStyle().Foreground(ColorMuted)
		output.WriteString(configStyle.Render(info.ConfigPath))
		output.WriteString("\n")
	}

	// Divider line
	output.WriteString(dividerStyle.Render(strings.Repeat("━", HeaderWidth)))
	output.WriteString("\n")

	return output.String()
}

// PrintHeader prints the styled header to stdout.
func PrintHeader(info HeaderInfo) {
	fmt.Print(RenderHeader(info))
}
