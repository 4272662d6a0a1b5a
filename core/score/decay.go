// Package score computes time-decayed quality scores for connections,
// restaurants and categories, and recomputes them in bounded concurrent
// batches after ingestion.
package score

import (
	"math"
	"time"
)

// Decay returns the exponential half-life decay factor for an age, in
// (0, 1]. An age of zero decays to 1; an age equal to the half-life
// decays to 0.5.
func Decay(ageDays, halfLifeDays float64) float64 {
	if halfLifeDays <= 0 {
		return 0
	}
	if ageDays <= 0 {
		return 1
	}
	return math.Exp(-math.Ln2 * ageDays / halfLifeDays)
}

// AgeDays returns the age of a timestamp in fractional days. A zero
// timestamp is treated as infinitely old.
func AgeDays(t, now time.Time) float64 {
	if t.IsZero() {
		return math.Inf(1)
	}
	age := now.Sub(t).Hours() / 24
	if age < 0 {
		return 0
	}
	return age
}

// saturate maps a non-negative count onto [0, 1) with diminishing
// returns: a count equal to k yields 0.5.
func saturate(count, k float64) float64 {
	if count <= 0 {
		return 0
	}
	return count / (count + k)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
