package validate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/cr/internal/diff"
	"github.com/joescharf/cr/internal/models"
)

// cannedSource returns fixed evidence (or an error) for every issue.
type cannedSource struct {
	ev  Evidence
	err error
}

func (s cannedSource) Gather(ctx context.Context, issue models.RawIssue) (Evidence, error) {
	return s.ev, s.err
}

func testIssue() models.RawIssue {
	return models.RawIssue{
		ID: "ISSUE1", File: "a.go", LineStart: 10, LineEnd: 12,
		Category: models.CategorySecurity, Severity: models.SeverityCritical,
		Title: "hardcoded secret", Confidence: 0.9, SourceAgent: "security",
	}
}

func changedLines() diff.LineSet {
	return diff.LineSet{
		10: `	apiKey := "sk-123"`,
		11: `	client := newClient(apiKey)`,
		12: `	return client`,
	}
}

func TestMachineTransitions(t *testing.T) {
	t.Run("happy path", func(t *testing.T) {
		m := NewMachine()
		assert.Equal(t, models.StatusProposed, m.Status())
		require.NoError(t, m.Transition(models.StatusEvidenceRequested))
		require.NoError(t, m.Transition(models.StatusGrounded))
		assert.Equal(t, models.StatusGrounded, m.Status())
	})

	t.Run("rejection path", func(t *testing.T) {
		m := NewMachine()
		require.NoError(t, m.Transition(models.StatusEvidenceRequested))
		require.NoError(t, m.Transition(models.StatusRejected))
	})

	t.Run("cannot skip evidence request", func(t *testing.T) {
		m := NewMachine()
		assert.Error(t, m.Transition(models.StatusGrounded))
		assert.Error(t, m.Transition(models.StatusRejected))
	})

	t.Run("terminal states are final", func(t *testing.T) {
		m := NewMachine()
		require.NoError(t, m.Transition(models.StatusEvidenceRequested))
		require.NoError(t, m.Transition(models.StatusGrounded))

		for _, to := range []models.ValidationStatus{
			models.StatusProposed, models.StatusEvidenceRequested, models.StatusRejected, models.StatusGrounded,
		} {
			assert.Error(t, m.Transition(to), "grounded -> %s must fail", to)
		}
	})
}

func TestValidate(t *testing.T) {
	ctx := context.Background()

	t.Run("exact evidence grounds at full weight", func(t *testing.T) {
		src := cannedSource{ev: Evidence{Lines: []QuotedLine{
			{Number: 10, Text: `	apiKey := "sk-123"`},
		}}}
		vi := New(src).Validate(ctx, testIssue(), changedLines())

		assert.Equal(t, models.StatusGrounded, vi.Status)
		assert.InDelta(t, 0.9, vi.FinalConfidence, 1e-9) // min(0.9, 1.0)
	})

	t.Run("fuzzy evidence grounds at partial weight", func(t *testing.T) {
		src := cannedSource{ev: Evidence{Lines: []QuotedLine{
			{Number: 10, Text: `apiKey := "sk-123"`}, // indentation stripped
		}}}
		vi := New(src).Validate(ctx, testIssue(), changedLines())

		assert.Equal(t, models.StatusGrounded, vi.Status)
		assert.InDelta(t, FuzzyMatchWeight, vi.FinalConfidence, 1e-9) // min(0.9, 0.75)
	})

	t.Run("confidence is the minimum of agent and evidence", func(t *testing.T) {
		issue := testIssue()
		issue.Confidence = 0.4
		src := cannedSource{ev: Evidence{Lines: []QuotedLine{
			{Number: 10, Text: `	apiKey := "sk-123"`},
		}}}
		vi := New(src).Validate(ctx, issue, changedLines())
		assert.InDelta(t, 0.4, vi.FinalConfidence, 1e-9)
	})

	t.Run("line outside changed set rejects", func(t *testing.T) {
		src := cannedSource{ev: Evidence{Lines: []QuotedLine{
			{Number: 99, Text: "whatever"},
		}}}
		vi := New(src).Validate(ctx, testIssue(), changedLines())

		assert.Equal(t, models.StatusRejected, vi.Status)
		assert.Zero(t, vi.FinalConfidence)
		assert.Contains(t, vi.Rationale, "changed-line set")
	})

	t.Run("line outside issue range rejects", func(t *testing.T) {
		changed := changedLines()
		changed[20] = "unrelated := true"
		src := cannedSource{ev: Evidence{Lines: []QuotedLine{
			{Number: 20, Text: "unrelated := true"},
		}}}
		vi := New(src).Validate(ctx, testIssue(), changed)
		assert.Equal(t, models.StatusRejected, vi.Status)
	})

	t.Run("mismatched quoted text rejects", func(t *testing.T) {
		src := cannedSource{ev: Evidence{Lines: []QuotedLine{
			{Number: 10, Text: "something else entirely"},
		}}}
		vi := New(src).Validate(ctx, testIssue(), changedLines())
		assert.Equal(t, models.StatusRejected, vi.Status)
	})

	t.Run("empty evidence rejects", func(t *testing.T) {
		vi := New(cannedSource{}).Validate(ctx, testIssue(), changedLines())
		assert.Equal(t, models.StatusRejected, vi.Status)
		assert.Contains(t, vi.Rationale, "no evidence")
	})

	t.Run("evidence source failure rejects", func(t *testing.T) {
		src := cannedSource{err: errors.New("provider down")}
		vi := New(src).Validate(ctx, testIssue(), changedLines())
		assert.Equal(t, models.StatusRejected, vi.Status)
		assert.Contains(t, vi.Rationale, "provider down")
	})

	t.Run("unresolved symbol rejects", func(t *testing.T) {
		src := cannedSource{ev: Evidence{
			Lines:  []QuotedLine{{Number: 10, Text: `	apiKey := "sk-123"`}},
			Symbol: &SymbolLookup{Name: "NoSuchFunc"},
		}}
		vi := New(src).Validate(ctx, testIssue(), changedLines())
		assert.Equal(t, models.StatusRejected, vi.Status)
		assert.Contains(t, vi.Rationale, "NoSuchFunc")
	})

	t.Run("resolved symbol grounds", func(t *testing.T) {
		src := cannedSource{ev: Evidence{
			Lines:  []QuotedLine{{Number: 11, Text: `	client := newClient(apiKey)`}},
			Symbol: &SymbolLookup{Name: "newClient"},
		}}
		vi := New(src).Validate(ctx, testIssue(), changedLines())
		assert.Equal(t, models.StatusGrounded, vi.Status)
	})
}

func TestDiffEvidenceSource(t *testing.T) {
	cs := &diff.ChangeSet{
		Changed: map[string]diff.LineSet{"a.go": changedLines()},
	}
	src := NewDiffEvidenceSource(cs)

	t.Run("quotes lines inside the issue range", func(t *testing.T) {
		ev, err := src.Gather(context.Background(), testIssue())
		require.NoError(t, err)
		require.Len(t, ev.Lines, 3)
		assert.Equal(t, 10, ev.Lines[0].Number)
	})

	t.Run("self-grounded issues validate end to end", func(t *testing.T) {
		validated := New(src).ValidateAll(context.Background(), []models.RawIssue{testIssue()}, cs)
		require.Len(t, validated, 1)
		assert.Equal(t, models.StatusGrounded, validated[0].Status)

		grounded := Grounded(validated)
		assert.Len(t, grounded, 1)
	})

	t.Run("issue on untouched lines cannot be grounded", func(t *testing.T) {
		issue := testIssue()
		issue.LineStart, issue.LineEnd = 100, 105
		validated := New(src).ValidateAll(context.Background(), []models.RawIssue{issue}, cs)
		assert.Equal(t, models.StatusRejected, validated[0].Status)
		assert.Empty(t, Grounded(validated))
	})
}
