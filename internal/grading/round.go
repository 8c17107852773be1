package grading

import "math"

// Round2 rounds half-up to 2 decimal places. Applied once, where scores are
// produced, so persisted values never carry raw float noise.
func Round2(v float64) float64 {
	return math.Floor(v*100+0.5) / 100
}
