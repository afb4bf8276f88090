package monitor

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Braille character rendering for high-resolution terminal graphs.
//
// Braille patterns use a 2x4 dot matrix per character, so each cell plots
// two samples at four vertical levels. Unicode braille starts at U+2800
// (empty) with one bit per dot:
// bit 0 = dot 1, bit 1 = dot 2, bit 2 = dot 3, bit 3 = dot 4,
// bit 4 = dot 5, bit 5 = dot 6, bit 6 = dot 7, bit 7 = dot 8.

const brailleBase = '⠀'

// brailleDots maps [row][col] to the bit offset for the braille pattern,
// row 0-3 top to bottom, col 0-1 left to right.
var brailleDots = [4][2]uint8{
	{0, 3}, // Row 0: dots 1 and 4
	{1, 4}, // Row 1: dots 2 and 5
	{2, 5}, // Row 2: dots 3 and 6
	{6, 7}, // Row 3: dots 7 and 8
}

// sparklineBlocks are block characters for 8-level vertical resolution.
var sparklineBlocks = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// BrailleSparkline renders a percentage series as a braille graph. Each
// character column is colored by the hotter of its two samples, so spikes
// stay visible even after downsampling. Data fills from the right until
// the history buffer is full.
func BrailleSparkline(data []float64, width, height int) string {
	if len(data) == 0 || width <= 0 || height <= 0 {
		return ""
	}

	totalDots := height * 4
	targetPoints := width * 2

	resampled := data
	if len(data) > targetPoints {
		resampled = resample(data, targetPoints)
	}

	grid := make([][]rune, height)
	for i := range grid {
		grid[i] = make([]rune, width)
		for j := range grid[i] {
			grid[i][j] = brailleBase
		}
	}

	colMax := make([]float64, width)

	// Right-align when there is less data than display width.
	offset := targetPoints - len(resampled)
	if offset < 0 {
		offset = 0
	}

	for i, val := range resampled {
		clamped := val
		if clamped < 0 {
			clamped = 0
		}
		if clamped > 100 {
			clamped = 100
		}
		dotHeight := int(clamped / 100 * float64(totalDots))
		if dotHeight > totalDots {
			dotHeight = totalDots
		}

		charCol := (i + offset) / 2
		if charCol >= width {
			continue
		}
		if val > colMax[charCol] {
			colMax[charCol] = val
		}
		subCol := (i + offset) % 2

		// Fill dots from the bottom up.
		for dot := 0; dot < dotHeight; dot++ {
			row := height - 1 - (dot / 4)
			if row < 0 {
				continue
			}
			subRow := 3 - (dot % 4)
			grid[row][charCol] |= rune(1 << brailleDots[subRow][subCol])
		}
	}

	var lines []string
	for _, row := range grid {
		var b strings.Builder
		for col, char := range row {
			style := lipgloss.NewStyle().
				Foreground(MetricColor(colMax[col])).
				Background(ColorSurfaceBg)
			b.WriteString(style.Render(string(char)))
		}
		lines = append(lines, b.String())
	}

	return strings.Join(lines, "\n")
}

// GradientBar renders a horizontal bar whose fill shifts green to amber to
// red along its length. Used in place of a sparkline until history exists.
func GradientBar(width int, percent float64) string {
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

	var b strings.Builder
	for i := 0; i < width; i++ {
		if i < filled {
			pos := float64(i+1) / float64(width) * 100
			style := lipgloss.NewStyle().Foreground(MetricColor(pos)).Background(ColorSurfaceBg)
			b.WriteString(style.Render("█"))
		} else {
			style := lipgloss.NewStyle().Foreground(ColorTextMuted).Background(ColorSurfaceBg)
			b.WriteString(style.Render("░"))
		}
	}

	return b.String()
}

// BlockSparkline renders a single-row sparkline with block characters,
// colored by the most recent value. Compact enough for detail view rows.
func BlockSparkline(data []float64, width int) string {
	if len(data) == 0 || width <= 0 {
		return ""
	}

	resampled := resample(data, width)

	var b strings.Builder
	for _, val := range resampled {
		clamped := val
		if clamped < 0 {
			clamped = 0
		}
		if clamped > 100 {
			clamped = 100
		}
		idx := int(clamped / 100 * float64(len(sparklineBlocks)-1))
		if idx >= len(sparklineBlocks) {
			idx = len(sparklineBlocks) - 1
		}
		b.WriteRune(sparklineBlocks[idx])
	}

	last := data[len(data)-1]
	return lipgloss.NewStyle().Foreground(MetricColor(last)).Render(b.String())
}

// resample fits data to targetSize points. Downsampling keeps the max of
// each bucket so spikes survive compression; upsampling interpolates.
func resample(data []float64, targetSize int) []float64 {
	if len(data) == 0 || targetSize <= 0 {
		return nil
	}
	if len(data) == targetSize {
		return data
	}

	result := make([]float64, targetSize)

	if len(data) == 1 {
		for i := range result {
			result[i] = data[0]
		}
		return result
	}

	if len(data) > targetSize {
		bucket := float64(len(data)) / float64(targetSize)
		for i := 0; i < targetSize; i++ {
			start := int(float64(i) * bucket)
			end := int(float64(i+1) * bucket)
			if end > len(data) {
				end = len(data)
			}
			if start >= end {
				start = end - 1
			}
			if start < 0 {
				start = 0
			}
			maxVal := data[start]
			for j := start + 1; j < end; j++ {
				if data[j] > maxVal {
					maxVal = data[j]
				}
			}
			result[i] = maxVal
		}
		return result
	}

	scale := float64(len(data)-1) / float64(targetSize-1)
	for i := 0; i < targetSize; i++ {
		pos := float64(i) * scale
		idx := int(pos)
		frac := pos - float64(idx)
		if idx >= len(data)-1 {
			result[i] = data[len(data)-1]
		} else {
			result[i] = data[idx]*(1-frac) + data[idx+1]*frac
		}
	}

	return result
}
