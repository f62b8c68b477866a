// Package validate grounds raw issues in diff evidence before they are
// allowed into a report.
package validate

import (
	"context"
	"fmt"
	"strings"

	"github.com/joescharf/cr/internal/diff"
	"github.com/joescharf/cr/internal/models"
)

// Evidence-quality weights folded into an issue's final confidence.
const (
	ExactMatchWeight = 1.0
	FuzzyMatchWeight = 0.75
)

// QuotedLine is one line of grounding evidence: a new-side line number and
// the text the agent claims is there.
type QuotedLine struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
}

// SymbolLookup names a symbol the finding depends on. Resolution is checked
// against the diff's changed content.
type SymbolLookup struct {
	Name string `json:"name"`
}

// Evidence is what an agent must supply before a proposed issue can be
// accepted.
type Evidence struct {
	Lines  []QuotedLine  `json:"lines"`
	Symbol *SymbolLookup `json:"symbol,omitempty"`
}

// EvidenceSource supplies grounding evidence for a proposed issue: the
// originating agent, or a local collaborator in offline runs.
type EvidenceSource interface {
	Gather(ctx context.Context, issue models.RawIssue) (Evidence, error)
}

// Validator runs each raw issue through the grounding state machine.
type Validator struct {
	source EvidenceSource
}

// New creates a validator backed by the given evidence source.
func New(source EvidenceSource) *Validator {
	return &Validator{source: source}
}

// Validate drives one issue from proposed to a terminal state. The changed
// line set is the file's actual added lines; evidence referencing anything
// outside it rejects the issue.
func (v *Validator) Validate(ctx context.Context, issue models.RawIssue, changed diff.LineSet) models.ValidatedIssue {
	m := NewMachine()

	// Ask the originating agent to justify the finding.
	if err := m.Transition(models.StatusEvidenceRequested); err != nil {
		return finish(issue, m, 0, err.Error())
	}

	evidence, err := v.source.Gather(ctx, issue)
	if err != nil {
		_ = m.Transition(models.StatusRejected)
		return finish(issue, m, 0, fmt.Sprintf("evidence gathering failed: %v", err))
	}

	quality, rationale := scoreEvidence(evidence, issue, changed)
	if quality == 0 {
		_ = m.Transition(models.StatusRejected)
		return finish(issue, m, 0, rationale)
	}

	_ = m.Transition(models.StatusGrounded)
	confidence := min(issue.Confidence, quality)
	return finish(issue, m, confidence, rationale)
}

func finish(issue models.RawIssue, m *Machine, confidence float64, rationale string) models.ValidatedIssue {
	return models.ValidatedIssue{
		RawIssue:        issue,
		FinalConfidence: confidence,
		Status:          m.Status(),
		Rationale:       rationale,
	}
}

// scoreEvidence returns the evidence-quality weight, or 0 with a rationale
// when the evidence cannot ground the issue.
func scoreEvidence(ev Evidence, issue models.RawIssue, changed diff.LineSet) (float64, string) {
	if len(ev.Lines) == 0 {
		return 0, "no evidence lines supplied"
	}

	quality := ExactMatchWeight
	for _, line := range ev.Lines {
		actual, ok := changed[line.Number]
		if !ok {
			return 0, fmt.Sprintf("line %d is not in the changed-line set", line.Number)
		}
		if !issue.OverlapsRange(line.Number, line.Number) {
			return 0, fmt.Sprintf("line %d is outside the issue's reported range", line.Number)
		}
		switch {
		case line.Text == actual:
			// exact match, full weight
		case squeeze(line.Text) == squeeze(actual):
			if quality > FuzzyMatchWeight {
				quality = FuzzyMatchWeight
			}
		default:
			return 0, fmt.Sprintf("quoted text for line %d does not match the diff", line.Number)
		}
	}

	if ev.Symbol != nil && !symbolInLines(ev.Symbol.Name, changed) {
		return 0, fmt.Sprintf("symbol %q does not resolve in the changed lines", ev.Symbol.Name)
	}

	return quality, "evidence matched changed lines"
}

// squeeze collapses all whitespace so fuzzy comparison ignores indentation
// and spacing differences.
func squeeze(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func symbolInLines(name string, changed diff.LineSet) bool {
	if name == "" {
		return false
	}
	for _, text := range changed {
		if strings.Contains(text, name) {
			return true
		}
	}
	return false
}

// ValidateAll validates every issue against its file's changed lines and
// returns all terminal records in input order. Callers typically keep only
// the grounded ones but the full set preserves the decision trace.
func (v *Validator) ValidateAll(ctx context.Context, issues []models.RawIssue, cs *diff.ChangeSet) []models.ValidatedIssue {
	out := make([]models.ValidatedIssue, len(issues))
	for i, issue := range issues {
		out[i] = v.Validate(ctx, issue, cs.Lines(issue.File))
	}
	return out
}

// Grounded filters a validated set down to the accepted issues.
func Grounded(validated []models.ValidatedIssue) []models.ValidatedIssue {
	var out []models.ValidatedIssue
	for _, vi := range validated {
		if vi.Status == models.StatusGrounded {
			out = append(out, vi)
		}
	}
	return out
}
