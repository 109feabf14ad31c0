package feature

import (
	"math"
	"time"
)

// Recency decay constants: weight = decayScale * exp(-days/decayDays).
// Tunable, but applied as a per-row fit weight, never as row filtering.
const (
	decayScale = 1.0
	decayDays  = 360.0
)

// RecencyWeight down-weights older auction results. ref is the training-run
// time, so weights are recomputed fresh each run and never persisted.
func RecencyWeight(end, ref time.Time) float64 {
	days := math.Floor(ref.Sub(end).Hours() / 24)
	return decayScale * math.Exp(-days/decayDays)
}
