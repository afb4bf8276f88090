package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Sparkline block characters representing 8 vertical levels (lowest to highest).
const sparklineBlocks = "▁▂▃▄▅▆▇█"

// sparklineBlockRunes provides indexed access to block characters.
var sparklineBlockRunes = []rune(sparklineBlocks)

// RenderSparkline creates a one-line graph from a slice of values. The width
// parameter caps how many of the most recent points are shown. Values are
// mapped to 8 vertical levels over the min/max range, and the whole line is
// colored by the last value's percent threshold:
//   - below 60: green
//   - 60 to 80: yellow
//   - 80 and up: red
func RenderSparkline(data []float64, width int) string {
	if len(data) == 0 || width <= 0 {
		return ""
	}

	if len(data) > width {
		data = data[len(data)-width:]
	}

	minVal, maxVal := data[0], data[0]
	for _, v := range data {
		if v < minVal {
			minVal = v
		}
		if v > maxVal {
			maxVal = v
		}
	}

	var sb strings.Builder
	sb.Grow(len(data) * 4)

	numLevels := len(sparklineBlockRunes)
	valueRange := maxVal - minVal

	for _, v := range data {
		var level int
		if valueRange == 0 {
			level = numLevels / 2
		} else {
			normalized := (v - minVal) / valueRange
			level = int(normalized * float64(numLevels-1))
			if level < 0 {
				level = 0
			} else if level >= numLevels {
				level = numLevels - 1
			}
		}
		sb.WriteRune(sparklineBlockRunes[level])
	}

	lastValue := data[len(data)-1]
	style := lipgloss.NewStyle().Foreground(getThresholdColor(lastValue))
	return style.Render(sb.String())
}

// getThresholdColor returns a color for a percent-scaled value.
func getThresholdColor(percent float64) lipgloss.Color {
	switch {
	case percent >= 80:
		return ColorError
	case percent >= 60:
		return ColorWarning
	default:
		return ColorSuccess
	}
}
