package stats

import (
	"time"

	"github.com/wespeak/backend/internal/models"
	"github.com/wespeak/backend/internal/utils"
)

// EpochYear anchors the 12-slot year cycle. The production deployment
// launched in 2018; changing this reshuffles every stored year series.
const EpochYear = 2018

// Fold incorporates one score sample into all four resolutions of the
// graph and returns the updated copy. Each coarser level averages the
// already-updated finer level restricted to the buckets elapsed so far,
// so the divisor is always at least 1. Pure transform, caller persists.
func Fold(g models.DataGraph, sample float64, now time.Time) models.DataGraph {
	return FoldAt(g, sample, now, EpochYear)
}

// FoldAt is Fold with an explicit epoch year.
func FoldAt(g models.DataGraph, sample float64, now time.Time, epochYear int) models.DataGraph {
	hourIdx := HourBucket(now)
	g.Day[hourIdx] = sample

	dayIdx := clamp(now.Day()-1, len(g.Days)-1)
	g.Days[dayIdx] = utils.RoundTo(mean(g.Day[:hourIdx+1]), 2)

	monthIdx := int(now.Month()) - 1
	g.Month[monthIdx] = utils.RoundTo(mean(g.Days[:dayIdx+1]), 2)

	yearIdx := YearSlot(now, epochYear)
	g.Year[yearIdx] = utils.RoundTo(mean(g.Month[:monthIdx+1]), 2)

	return g
}

// SeedGraph returns a graph pre-filled with the starting score in every
// bucket already elapsed at each resolution, so a brand-new organization
// renders a flat history instead of zeros.
func SeedGraph(score float64, now time.Time, epochYear int) models.DataGraph {
	var g models.DataGraph
	fill(g.Day[:], score, HourBucket(now)+1)
	fill(g.Days[:], score, clamp(now.Day()-1, len(g.Days)-1)+1)
	fill(g.Month[:], score, int(now.Month()))
	fill(g.Year[:], score, YearSlot(now, epochYear)+1)
	return g
}

// HourBucket maps the hour of day onto the 12 two-hour buckets.
func HourBucket(now time.Time) int {
	return now.Hour() / 2
}

// YearSlot maps a year onto the 12-year rolling cycle. Years before the
// epoch wrap onto positive slots. A zero epochYear falls back to EpochYear.
func YearSlot(now time.Time, epochYear int) int {
	if epochYear == 0 {
		epochYear = EpochYear
	}
	return ((now.Year()-epochYear)%12 + 12) % 12
}

func mean(vals []float64) float64 {
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func clamp(idx, max int) int {
	if idx < 0 {
		return 0
	}
	if idx > max {
		return max
	}
	return idx
}

func fill(dst []float64, v float64, n int) {
	for i := 0; i < n && i < len(dst); i++ {
		dst[i] = v
	}
}
