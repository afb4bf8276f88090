package monitor

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Force truecolor so rendered output carries the RGB escape codes the
// assertions below look for, regardless of the test terminal.
func init() {
	lipgloss.SetColorProfile(termenv.TrueColor)
}

// RGB escape fragments for the palette colors.
const (
	ansiHealthy  = "38;2;57;255;20" // #39FF14
	ansiWarning  = "38;2;255;170;0" // #FFAA00
	ansiCritical = "38;2;255;0;85"  // #FF0055
)

func TestBrailleSparklineEmpty(t *testing.T) {
	assert.Empty(t, BrailleSparkline(nil, 10, 2))
	assert.Empty(t, BrailleSparkline([]float64{50}, 0, 2))
	assert.Empty(t, BrailleSparkline([]float64{50}, 10, 0))
}

func TestBrailleSparklineRowCount(t *testing.T) {
	data := []float64{10, 20, 30, 40, 50}

	for _, height := range []int{1, 2, 4} {
		result := BrailleSparkline(data, 10, height)
		rows := strings.Split(result, "\n")
		assert.Len(t, rows, height)
	}
}

func TestBrailleSparklineRightAligned(t *testing.T) {
	// Four samples at 100% on a 10-wide graph fill only the last two
	// character columns; the rest stay blank.
	data := []float64{100, 100, 100, 100}

	result := BrailleSparkline(data, 10, 4)
	rows := strings.Split(result, "\n")
	require.Len(t, rows, 4)

	for _, row := range rows {
		assert.Equal(t, 8, strings.Count(row, "⠀"), "left columns blank")
		assert.Equal(t, 2, strings.Count(row, "⣿"), "data columns full")
	}
}

func TestBrailleSparklineFillsBottomUp(t *testing.T) {
	// A single 50% sample lights the bottom half of its column only.
	result := BrailleSparkline([]float64{50}, 4, 2)
	rows := strings.Split(result, "\n")
	require.Len(t, rows, 2)

	assert.Equal(t, 4, strings.Count(rows[0], "⠀"), "top row blank")
	assert.Equal(t, 3, strings.Count(rows[1], "⠀"), "bottom row has one lit cell")
}

func TestBrailleSparklineColorByValue(t *testing.T) {
	hot := BrailleSparkline([]float64{95, 95, 95, 95}, 10, 2)
	assert.Contains(t, hot, ansiCritical)

	warm := BrailleSparkline([]float64{75, 75, 75, 75}, 10, 2)
	assert.Contains(t, warm, ansiWarning)
	assert.NotContains(t, warm, ansiCritical)

	cool := BrailleSparkline([]float64{10, 20, 30, 15}, 10, 2)
	assert.Contains(t, cool, ansiHealthy)
	assert.NotContains(t, cool, ansiCritical)
	assert.NotContains(t, cool, ansiWarning)
}

func TestGradientBarFill(t *testing.T) {
	tests := []struct {
		name    string
		width   int
		percent float64
		filled  int
	}{
		{"half", 10, 50, 5},
		{"full", 10, 100, 10},
		{"empty", 10, 0, 0},
		{"clamped high", 10, 150, 10},
		{"clamped low", 10, -5, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := GradientBar(tt.width, tt.percent)
			assert.Equal(t, tt.filled, strings.Count(result, "█"))
			assert.Equal(t, tt.width-tt.filled, strings.Count(result, "░"))
		})
	}
}

func TestGradientBarPositionalColor(t *testing.T) {
	// A full bar passes through all three severity bands.
	full := GradientBar(10, 100)
	assert.Contains(t, full, ansiHealthy)
	assert.Contains(t, full, ansiWarning)
	assert.Contains(t, full, ansiCritical)

	// A short fill never leaves the green band.
	low := GradientBar(10, 30)
	assert.Contains(t, low, ansiHealthy)
	assert.NotContains(t, low, ansiWarning)
	assert.NotContains(t, low, ansiCritical)
}

func TestBlockSparkline(t *testing.T) {
	result := BlockSparkline([]float64{20, 20, 95}, 3)

	assert.Contains(t, result, "▂▂▇")
	assert.Contains(t, result, ansiCritical, "colored by the most recent value")
}

func TestBlockSparklineEmpty(t *testing.T) {
	assert.Empty(t, BlockSparkline(nil, 10))
	assert.Empty(t, BlockSparkline([]float64{50}, 0))
}

func TestResample(t *testing.T) {
	tests := []struct {
		name   string
		data   []float64
		target int
		want   []float64
	}{
		{
			name:   "same size passthrough",
			data:   []float64{1, 2, 3},
			target: 3,
			want:   []float64{1, 2, 3},
		},
		{
			name:   "downsample keeps bucket max",
			data:   []float64{0, 0, 100, 0, 0, 0, 0, 0, 0, 0},
			target: 5,
			want:   []float64{0, 100, 0, 0, 0},
		},
		{
			name:   "upsample interpolates",
			data:   []float64{0, 100},
			target: 5,
			want:   []float64{0, 25, 50, 75, 100},
		},
		{
			name:   "single value broadcast",
			data:   []float64{42},
			target: 4,
			want:   []float64{42, 42, 42, 42},
		},
		{
			name:   "empty",
			data:   nil,
			target: 5,
			want:   nil,
		},
		{
			name:   "zero target",
			data:   []float64{1, 2},
			target: 0,
			want:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resample(tt.data, tt.target))
		})
	}
}
