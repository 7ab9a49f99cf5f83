package protracker

import "math"

// mix sums the four channel outputs and soft-clips the result into (-1, 1).
// Each channel is at most ±0.5 so the sum stays well inside tanh's linear
// region for typical material.
func mix(c1, c2, c3, c4 float64) float32 {
	return float32(math.Tanh(c1 + c2 + c3 + c4))
}
