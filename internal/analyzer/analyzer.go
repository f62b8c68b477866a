// Package analyzer produces per-file risk classification and semantic hints
// for a set of change units, either via the model or local heuristics.
package analyzer

import (
	"context"

	"github.com/joescharf/cr/internal/models"
)

// Analyzer is the shared contract for diff analysis. Both implementations
// return the same shape so callers and tests can swap them freely.
type Analyzer interface {
	Analyze(ctx context.Context, units []models.ChangeUnit) (*models.AnalysisResult, error)
}

// RiskFromSignals applies the shared risk policy: HIGH if any exported
// interface/function signature changed or a security-sensitive pattern
// matched, MEDIUM if only internal implementation changed, LOW otherwise.
func RiskFromSignals(exportedChange, securityHit, internalChange bool) models.RiskLevel {
	switch {
	case exportedChange || securityHit:
		return models.RiskHigh
	case internalChange:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}

// normalizeRisk maps arbitrary model output onto a known risk level,
// defaulting unknown values to MEDIUM rather than trusting them.
func normalizeRisk(r models.RiskLevel) models.RiskLevel {
	switch r {
	case models.RiskLow, models.RiskMedium, models.RiskHigh:
		return r
	}
	return models.RiskMedium
}
