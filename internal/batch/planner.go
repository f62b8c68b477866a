// Package batch groups change units into token-bounded batches.
package batch

import "github.com/joescharf/cr/internal/models"

// Estimator estimates the token cost of one change unit.
type Estimator func(models.ChangeUnit) int

// DefaultEstimator approximates tokens as one per four bytes of content,
// plus a small per-file overhead for the prompt framing.
func DefaultEstimator(u models.ChangeUnit) int {
	return len(u.Content)/4 + len(u.Path)/4 + 8
}

// Batch is an ordered group of units whose estimated tokens fit the budget.
type Batch struct {
	Units  []models.ChangeUnit
	Tokens int // sum of estimates for Units
}

// Plan greedily packs units into batches of at most maxTokens estimated
// tokens, preserving input order. A single unit whose estimate alone exceeds
// the budget still gets its own oversized batch rather than being dropped.
func Plan(units []models.ChangeUnit, estimate Estimator, maxTokens int) []Batch {
	if estimate == nil {
		estimate = DefaultEstimator
	}

	var batches []Batch
	var current Batch
	for _, u := range units {
		cost := estimate(u)
		if len(current.Units) > 0 && current.Tokens+cost > maxTokens {
			batches = append(batches, current)
			current = Batch{}
		}
		current.Units = append(current.Units, u)
		current.Tokens += cost
	}
	if len(current.Units) > 0 {
		batches = append(batches, current)
	}
	return batches
}
