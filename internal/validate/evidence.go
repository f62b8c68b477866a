package validate

import (
	"context"
	"fmt"
	"strings"

	"github.com/joescharf/cr/internal/diff"
	"github.com/joescharf/cr/internal/llm"
	"github.com/joescharf/cr/internal/models"
)

const evidenceSystemPrompt = `You previously reported a code review finding. Justify it with concrete evidence from the diff. Return ONLY a JSON object:
- "lines": array of {"number": <new-side line number>, "text": "<the exact added line>"} for the added lines the finding is about
- "symbol": optional {"name": "<the function/type/variable the finding concerns>"}

Rules:
- Quote lines exactly as they appear after the change, without the leading "+"
- Only reference lines the diff actually adds
- Return valid JSON only, no markdown fencing or explanation`

// AgentEvidenceSource asks the model to justify its own finding against the
// diff hunk it reviewed.
type AgentEvidenceSource struct {
	provider llm.Provider
	cs       *diff.ChangeSet
}

// NewAgentEvidenceSource creates the model-backed evidence source.
func NewAgentEvidenceSource(provider llm.Provider, cs *diff.ChangeSet) *AgentEvidenceSource {
	return &AgentEvidenceSource{provider: provider, cs: cs}
}

// Gather requests evidence for one issue.
func (s *AgentEvidenceSource) Gather(ctx context.Context, issue models.RawIssue) (Evidence, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Finding: %s (%s/%s) at %s:%d-%d\n%s\n\n",
		issue.Title, issue.Category, issue.Severity,
		issue.File, issue.LineStart, issue.LineEnd, issue.Description)
	sb.WriteString("The diff for that file:\n\n")
	sb.WriteString(s.unitContent(issue.File))

	var ev Evidence
	if err := s.provider.ChatJSON(ctx, evidenceSystemPrompt, sb.String(), &ev); err != nil {
		return Evidence{}, fmt.Errorf("request evidence for %s: %w", issue.File, err)
	}
	return ev, nil
}

func (s *AgentEvidenceSource) unitContent(path string) string {
	for _, u := range s.cs.Units {
		if u.Path == path {
			return u.Content
		}
	}
	return "(file not present in diff)"
}

// DiffEvidenceSource grounds issues directly from the parsed diff with no
// model call: the evidence is the added lines inside the issue's range.
// Used by offline runs and tests.
type DiffEvidenceSource struct {
	cs *diff.ChangeSet
}

// NewDiffEvidenceSource creates the local evidence source.
func NewDiffEvidenceSource(cs *diff.ChangeSet) *DiffEvidenceSource {
	return &DiffEvidenceSource{cs: cs}
}

// Gather quotes the changed lines covered by the issue's range.
func (s *DiffEvidenceSource) Gather(ctx context.Context, issue models.RawIssue) (Evidence, error) {
	changed := s.cs.Lines(issue.File)
	var ev Evidence
	for n := issue.LineStart; n <= issue.LineEnd; n++ {
		if text, ok := changed[n]; ok {
			ev.Lines = append(ev.Lines, QuotedLine{Number: n, Text: text})
		}
	}
	return ev, nil
}
