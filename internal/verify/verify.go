package verify

import (
	"fmt"

	"github.com/joescharf/cr/internal/models"
)

// lineTolerance matches the aggregator's nearby-range tolerance so a
// finding that drifted a line or two still counts as the same issue.
const lineTolerance = 2

// equivalent reports whether a current issue is the same finding as a
// previous one: same file, same category, overlapping or nearby lines.
func equivalent(prev models.PreviousIssue, cur models.ValidatedIssue) bool {
	if prev.File != cur.File || prev.Category != cur.Category {
		return false
	}
	if cur.OverlapsRange(prev.LineStart, prev.LineEnd) {
		return true
	}
	gap := prev.LineStart - cur.LineEnd
	if cur.LineStart > prev.LineEnd {
		gap = cur.LineStart - prev.LineEnd
	}
	return gap <= lineTolerance
}

// Verify classifies every previous issue against the current validated set:
// fixed when no equivalent issue remains, present when one exists at equal
// or lower severity, regressed when the equivalent is now more severe.
// At least one previous issue is required.
func Verify(prev *models.PreviousReviewData, current []models.ValidatedIssue) ([]models.FixVerificationResult, error) {
	if prev == nil || len(prev.Issues) == 0 {
		return nil, ErrNoPreviousIssues
	}

	results := make([]models.FixVerificationResult, 0, len(prev.Issues))
	for _, p := range prev.Issues {
		results = append(results, classify(p, current))
	}
	return results, nil
}

func classify(prev models.PreviousIssue, current []models.ValidatedIssue) models.FixVerificationResult {
	res := models.FixVerificationResult{IssueID: prev.ID}

	var match *models.ValidatedIssue
	for i := range current {
		if !equivalent(prev, current[i]) {
			continue
		}
		// Track the most severe equivalent so one regression is never
		// masked by a milder duplicate.
		if match == nil || current[i].Severity.Rank() > match.Severity.Rank() {
			match = &current[i]
		}
	}

	if match == nil {
		res.Status = models.FixStatusFixed
		res.Evidence = fmt.Sprintf("no %s issue remains at %s:%d-%d",
			prev.Category, prev.File, prev.LineStart, prev.LineEnd)
		return res
	}

	if match.Severity.Rank() > prev.Severity.Rank() {
		res.Status = models.FixStatusRegressed
		res.Evidence = fmt.Sprintf("severity rose from %s to %s at %s:%d-%d",
			prev.Severity, match.Severity, match.File, match.LineStart, match.LineEnd)
		return res
	}

	res.Status = models.FixStatusPresent
	res.Evidence = fmt.Sprintf("equivalent %s issue still reported at %s:%d-%d",
		match.Severity, match.File, match.LineStart, match.LineEnd)
	return res
}

// NewIssues returns the current issues that have no counterpart in the
// previous review. They belong to the current report, not to the
// verification output.
func NewIssues(prev *models.PreviousReviewData, current []models.ValidatedIssue) []models.ValidatedIssue {
	var out []models.ValidatedIssue
	for _, cur := range current {
		known := false
		for _, p := range prev.Issues {
			if equivalent(p, cur) {
				known = true
				break
			}
		}
		if !known {
			out = append(out, cur)
		}
	}
	return out
}
