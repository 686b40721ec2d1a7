package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Bar block characters.
const (
	BarFilled = '█'
	BarEmpty  = '░'
)

// ClampPercent clamps a percentage to the 0-100 range.
func ClampPercent(percent float64) float64 {
	if percent < 0 {
		return 0
	}
	if percent > 100 {
		return 100
	}
	return percent
}

// CalculateBarCounts returns the number of filled and empty characters for a bar.
// Percent should be 0-100, width is the total bar width.
func CalculateBarCounts(percent float64, width int) (filled, empty int) {
	filled = int((ClampPercent(percent) / 100.0) * float64(width))
	empty = width - filled
	return
}

// UsageBar renders a usage bar followed by the percentage, e.g.
// "███░░░░░░░  34%". Colors follow the usage thresholds.
func UsageBar(percent float64, width int) string {
	if width <= 0 {
		return fmt.Sprintf("%3.0f%%", ClampPercent(percent))
	}
	filled, empty := CalculateBarCounts(percent, width)

	var sb strings.Builder
	sb.Grow(filled + empty)
	for i := 0; i < filled; i++ {
		sb.WriteRune(BarFilled)
	}
	for i := 0; i < empty; i++ {
		sb.WriteRune(BarEmpty)
	}

	bar := lipgloss.NewStyle().Foreground(thresholdColor(percent)).Render(sb.String())
	return fmt.Sprintf("%s %3.0f%%", bar, ClampPercent(percent))
}
