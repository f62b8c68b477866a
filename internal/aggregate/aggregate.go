// Package aggregate merges validated issues across agents and batches into
// one deduplicated set.
package aggregate

import "github.com/joescharf/cr/internal/models"

// lineTolerance is how close two non-overlapping ranges may sit and still
// count as the same finding.
const lineTolerance = 2

// duplicates reports whether two issues describe the same finding: same
// file, same category, and ranges that overlap or sit within tolerance.
func duplicates(a, b models.ValidatedIssue) bool {
	if a.File != b.File || a.Category != b.Category {
		return false
	}
	if a.OverlapsRange(b.LineStart, b.LineEnd) {
		return true
	}
	gap := a.LineStart - b.LineEnd
	if b.LineStart > a.LineEnd {
		gap = b.LineStart - a.LineEnd
	}
	return gap <= lineTolerance
}

// prefer picks the survivor of two duplicates: higher final confidence,
// then the narrower (more specific) line range, then the earlier-inserted
// issue. The last rule keeps output deterministic regardless of which agent
// produced what.
func prefer(kept, challenger models.ValidatedIssue) bool {
	switch {
	case challenger.FinalConfidence > kept.FinalConfidence:
		return true
	case challenger.FinalConfidence < kept.FinalConfidence:
		return false
	}
	return challenger.LineSpan() < kept.LineSpan()
}

// Deduplicate collapses duplicate findings, keeping insertion order of the
// surviving set. The suggestion of a discarded duplicate is carried over
// when the survivor has none. Running Deduplicate on its own output returns
// the same set.
func Deduplicate(issues []models.ValidatedIssue) []models.ValidatedIssue {
	out := collapseOnce(issues)
	for {
		// A replacement can move a survivor's range within tolerance of a
		// later survivor, so collapse again until the set stops shrinking.
		next := collapseOnce(out)
		if len(next) == len(out) {
			return next
		}
		out = next
	}
}

func collapseOnce(issues []models.ValidatedIssue) []models.ValidatedIssue {
	var out []models.ValidatedIssue
	for _, issue := range issues {
		matched := false
		for i := range out {
			if !duplicates(out[i], issue) {
				continue
			}
			matched = true
			if prefer(out[i], issue) {
				if issue.Suggestion == "" {
					issue.Suggestion = out[i].Suggestion
				}
				out[i] = issue
			} else if out[i].Suggestion == "" {
				out[i].Suggestion = issue.Suggestion
			}
			break
		}
		if !matched {
			out = append(out, issue)
		}
	}
	return out
}

// ByCategory groups issues by category. Pure projection: the input set is
// never mutated.
func ByCategory(issues []models.ValidatedIssue) map[models.IssueCategory][]models.ValidatedIssue {
	out := make(map[models.IssueCategory][]models.ValidatedIssue)
	for _, issue := range issues {
		out[issue.Category] = append(out[issue.Category], issue)
	}
	return out
}

// ByFile groups issues by file path.
func ByFile(issues []models.ValidatedIssue) map[string][]models.ValidatedIssue {
	out := make(map[string][]models.ValidatedIssue)
	for _, issue := range issues {
		out[issue.File] = append(out[issue.File], issue)
	}
	return out
}

// BySeverity groups issues by severity.
func BySeverity(issues []models.ValidatedIssue) map[models.IssueSeverity][]models.ValidatedIssue {
	out := make(map[models.IssueSeverity][]models.ValidatedIssue)
	for _, issue := range issues {
		out[issue.Severity] = append(out[issue.Severity], issue)
	}
	return out
}

// RiskForFile derives a file's risk level from its issues: HIGH if any
// critical finding, MEDIUM if any error or warning, LOW otherwise.
func RiskForFile(issues []models.ValidatedIssue) models.RiskLevel {
	risk := models.RiskLow
	for _, issue := range issues {
		switch issue.Severity {
		case models.SeverityCritical:
			return models.RiskHigh
		case models.SeverityError, models.SeverityWarning:
			risk = models.RiskMedium
		}
	}
	return risk
}
