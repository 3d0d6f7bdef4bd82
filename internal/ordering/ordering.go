// Package ordering computes fractional positions for tickets in a status column.
// Larger positions sort first. Positions are only comparable inside one column.
package ordering

import "math"

const (
	// Step separates a new extremal position from the current extreme.
	Step = 1000.0
	// DefaultPosition is used for the first ticket in an empty column.
	DefaultPosition = 1000.0
	// MinGap is the smallest neighbour gap considered safe for another midpoint.
	MinGap = 1e-9
)

// Bottom returns a position below lowest, the minimum position in the column.
// When the column is empty (ok is false) it returns DefaultPosition.
func Bottom(lowest float64, ok bool) float64 {
	if !ok {
		return DefaultPosition
	}
	return lowest - Step
}

// Top returns a position above highest, the maximum position in the column.
// When the column is empty (ok is false) it returns DefaultPosition.
func Top(highest float64, ok bool) float64 {
	if !ok {
		return DefaultPosition
	}
	return highest + Step
}

// Between returns the midpoint of two neighbouring positions.
func Between(a, b float64) float64 {
	return a + (b-a)/2
}

// NeedsRespacing reports whether the gap between two distinct neighbours is too
// small to take another midpoint: either below MinGap or collapsed by float
// precision. Equal positions are a tie, broken by the updated timestamp, and
// never need respacing.
func NeedsRespacing(a, b float64) bool {
	if a == b {
		return false
	}
	if math.Abs(a-b) < MinGap {
		return true
	}
	mid := Between(a, b)
	return mid == a || mid == b
}

// Respace returns n evenly spaced positions, descending, ending at Step.
// Assigning them in current display order keeps that order and restores gaps.
func Respace(n int) []float64 {
	positions := make([]float64, n)
	for i := range positions {
		positions[i] = float64(n-i) * Step
	}
	return positions
}
