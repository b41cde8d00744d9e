package utils

import (
	"math"
	"time"
)

// RoundTo rounds v half-away-from-zero to the given number of decimals.
func RoundTo(v float64, decimals int) float64 {
	shift := math.Pow(10, float64(decimals))
	return math.Round(v*shift) / shift
}

// DaysBetween returns |b-a| expressed in whole days, rounding half up.
// Matches the legacy millisecond arithmetic (|Δms| / 86400000, rounded).
func DaysBetween(a, b time.Time) int {
	diff := b.Sub(a)
	if diff < 0 {
		diff = -diff
	}
	const day = 24 * time.Hour
	return int(math.Round(float64(diff.Milliseconds()) / float64(day.Milliseconds())))
}
