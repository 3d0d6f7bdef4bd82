// Package complexity derives the retrospective complexity score of a ticket.
package complexity

import (
	"math"

	"github.com/ownlytics/mcptix-sub000/internal/persistence"
)

// MaxScore is the score of a ticket whose every metric reaches its cap.
const MaxScore = 100.0

type metric struct {
	name   string
	cap    float64
	weight float64
	value  func(c persistence.Complexity) int
	set    func(c *persistence.Complexity, v int)
	input  func(in persistence.ComplexityInput) *int
}

// metrics weights sum to 1.
var metrics = []metric{
	{"files_touched", 20, 0.08,
		func(c persistence.Complexity) int { return c.FilesTouched },
		func(c *persistence.Complexity, v int) { c.FilesTouched = v },
		func(in persistence.ComplexityInput) *int { return in.FilesTouched }},
	{"modules_crossed", 10, 0.08,
		func(c persistence.Complexity) int { return c.ModulesCrossed },
		func(c *persistence.Complexity, v int) { c.ModulesCrossed = v },
		func(in persistence.ComplexityInput) *int { return in.ModulesCrossed }},
	{"stack_layers_involved", 5, 0.07,
		func(c persistence.Complexity) int { return c.StackLayersInvolved },
		func(c *persistence.Complexity, v int) { c.StackLayersInvolved = v },
		func(in persistence.ComplexityInput) *int { return in.StackLayersInvolved }},
	{"dependencies", 10, 0.06,
		func(c persistence.Complexity) int { return c.Dependencies },
		func(c *persistence.Complexity, v int) { c.Dependencies = v },
		func(in persistence.ComplexityInput) *int { return in.Dependencies }},
	{"shared_state_touches", 10, 0.07,
		func(c persistence.Complexity) int { return c.SharedStateTouches },
		func(c *persistence.Complexity, v int) { c.SharedStateTouches = v },
		func(in persistence.ComplexityInput) *int { return in.SharedStateTouches }},
	{"cascade_impact_zones", 10, 0.08,
		func(c persistence.Complexity) int { return c.CascadeImpactZones },
		func(c *persistence.Complexity, v int) { c.CascadeImpactZones = v },
		func(in persistence.ComplexityInput) *int { return in.CascadeImpactZones }},
	{"subjectivity_rating", 5, 0.10,
		func(c persistence.Complexity) int { return c.SubjectivityRating },
		func(c *persistence.Complexity, v int) { c.SubjectivityRating = v },
		func(in persistence.ComplexityInput) *int { return in.SubjectivityRating }},
	{"loc_added", 2000, 0.07,
		func(c persistence.Complexity) int { return c.LOCAdded },
		func(c *persistence.Complexity, v int) { c.LOCAdded = v },
		func(in persistence.ComplexityInput) *int { return in.LOCAdded }},
	{"loc_modified", 1000, 0.06,
		func(c persistence.Complexity) int { return c.LOCModified },
		func(c *persistence.Complexity, v int) { c.LOCModified = v },
		func(in persistence.ComplexityInput) *int { return in.LOCModified }},
	{"test_cases_written", 50, 0.05,
		func(c persistence.Complexity) int { return c.TestCasesWritten },
		func(c *persistence.Complexity, v int) { c.TestCasesWritten = v },
		func(in persistence.ComplexityInput) *int { return in.TestCasesWritten }},
	{"edge_cases", 20, 0.06,
		func(c persistence.Complexity) int { return c.EdgeCases },
		func(c *persistence.Complexity, v int) { c.EdgeCases = v },
		func(in persistence.ComplexityInput) *int { return in.EdgeCases }},
	{"mocks_required", 10, 0.04,
		func(c persistence.Complexity) int { return c.MocksRequired },
		func(c *persistence.Complexity, v int) { c.MocksRequired = v },
		func(in persistence.ComplexityInput) *int { return in.MocksRequired }},
	{"coordination_touchpoints", 10, 0.06,
		func(c persistence.Complexity) int { return c.CoordinationTouchpoints },
		func(c *persistence.Complexity, v int) { c.CoordinationTouchpoints = v },
		func(in persistence.ComplexityInput) *int { return in.CoordinationTouchpoints }},
	{"review_rounds", 10, 0.06,
		func(c persistence.Complexity) int { return c.ReviewRounds },
		func(c *persistence.Complexity, v int) { c.ReviewRounds = v },
		func(in persistence.ComplexityInput) *int { return in.ReviewRounds }},
	{"blockers_encountered", 10, 0.06,
		func(c persistence.Complexity) int { return c.BlockersEncountered },
		func(c *persistence.Complexity, v int) { c.BlockersEncountered = v },
		func(in persistence.ComplexityInput) *int { return in.BlockersEncountered }},
}

// Score returns the weighted, normalized sum of the metrics scaled to
// [0, MaxScore] and rounded to two decimals. Each metric is clamped to
// [0, cap] before weighting.
func Score(c persistence.Complexity) float64 {
	var total float64
	for _, m := range metrics {
		v := math.Min(math.Max(float64(m.value(c)), 0), m.cap)
		total += m.weight * v / m.cap
	}
	return math.Round(total*MaxScore*100) / 100
}

// Merge overlays the non-nil fields of in onto base and recomputes the score.
// Passing a zero base yields a record with absent fields defaulted to zero.
func Merge(base persistence.Complexity, in persistence.ComplexityInput) persistence.Complexity {
	merged := base
	for _, m := range metrics {
		if v := m.input(in); v != nil {
			m.set(&merged, *v)
		}
	}
	merged.Score = Score(merged)
	return merged
}

// Metrics returns the metric column names in storage order.
func Metrics() []string {
	names := make([]string, len(metrics))
	for i, m := range metrics {
		names[i] = m.name
	}
	return names
}

// Values returns the metric values of c in the order of Metrics.
func Values(c persistence.Complexity) []int {
	values := make([]int, len(metrics))
	for i, m := range metrics {
		values[i] = m.value(c)
	}
	return values
}

// Pointers returns pointers into c in the order of Metrics, for row scanning.
func Pointers(c *persistence.Complexity) []any {
	return []any{
		&c.FilesTouched, &c.ModulesCrossed, &c.StackLayersInvolved, &c.Dependencies,
		&c.SharedStateTouches, &c.CascadeImpactZones, &c.SubjectivityRating, &c.LOCAdded,
		&c.LOCModified, &c.TestCasesWritten, &c.EdgeCases, &c.MocksRequired,
		&c.CoordinationTouchpoints, &c.ReviewRounds, &c.BlockersEncountered,
	}
}
