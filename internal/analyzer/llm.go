package analyzer

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/joescharf/cr/internal/batch"
	"github.com/joescharf/cr/internal/executor"
	"github.com/joescharf/cr/internal/llm"
	"github.com/joescharf/cr/internal/models"
)

const analyzeSystemPrompt = `You analyze git diffs. For every file in the diff, return one JSON object describing the change. Return ONLY a JSON array with these fields per file:
- "file_path": the file's path exactly as it appears in the diff
- "risk_level": "LOW", "MEDIUM", or "HIGH"
  - HIGH: an exported interface or function signature changed, or the change touches security-sensitive code (auth, crypto, SQL, subprocess execution)
  - MEDIUM: only internal implementation changed
  - LOW: comments, docs, formatting, or no behavioral change
- "semantic_hints": an object with:
  - "interfaces": array of {"name", "added_fields", "removed_fields", "modified_fields"}
  - "functions": array of {"name", "kind": "new"|"deleted"|"signature"|"implementation", "exported": bool}
  - "exports": array of exported symbol names that changed
  - "summary": one sentence describing the change

Rules:
- One object per file, in the order files appear in the diff
- Return valid JSON only, no markdown fencing or explanation`

// Config tunes the LLM analyzer's batching and retry behavior.
type Config struct {
	MaxTokensPerBatch int
	Concurrency       int
	MaxRetries        int
	BaseDelay         time.Duration
	Estimator         batch.Estimator
}

// DiffAnalyzer analyzes change units by sending token-bounded batches to
// the model.
type DiffAnalyzer struct {
	provider llm.Provider
	cfg      Config
}

// NewDiffAnalyzer creates an LLM-backed analyzer.
func NewDiffAnalyzer(provider llm.Provider, cfg Config) *DiffAnalyzer {
	if cfg.MaxTokensPerBatch <= 0 {
		cfg.MaxTokensPerBatch = 12000
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	return &DiffAnalyzer{provider: provider, cfg: cfg}
}

func buildBatchPrompt(units []models.ChangeUnit) string {
	var sb strings.Builder
	sb.WriteString("Analyze the following diff. It contains ")
	fmt.Fprintf(&sb, "%d file(s).\n\n", len(units))
	for _, u := range units {
		fmt.Fprintf(&sb, "--- file: %s (%s) ---\n", u.Path, u.Type)
		sb.WriteString(u.Content)
		if !strings.HasSuffix(u.Content, "\n") {
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// Analyze batches the units, runs one model call per batch under the
// executor, and merges the per-file analyses. A failed batch skips only its
// own files; its error never aborts the other batches.
func (a *DiffAnalyzer) Analyze(ctx context.Context, units []models.ChangeUnit) (*models.AnalysisResult, error) {
	batches := batch.Plan(units, a.cfg.Estimator, a.cfg.MaxTokensPerBatch)

	var totalTokens int64
	results := executor.Map(ctx, batches, executor.Options{
		Concurrency: a.cfg.Concurrency,
		MaxRetries:  a.cfg.MaxRetries,
		BaseDelay:   a.cfg.BaseDelay,
		RetryIf:     llm.Retryable,
	}, func(ctx context.Context, b batch.Batch) ([]models.ChangeAnalysis, error) {
		text, usage, err := a.provider.ChatWithUsage(ctx, analyzeSystemPrompt, buildBatchPrompt(b.Units))
		if err != nil {
			return nil, fmt.Errorf("analyze batch of %d file(s): %w", len(b.Units), err)
		}
		atomic.AddInt64(&totalTokens, int64(usage.Total()))

		var analyses []models.ChangeAnalysis
		if err := llm.DecodeJSON(text, &analyses); err != nil {
			return nil, err
		}
		return analyses, nil
	})

	out := &models.AnalysisResult{
		Metadata: models.AnalysisMetadata{
			TotalFiles:  len(units),
			BatchCount:  len(batches),
			TotalTokens: int(atomic.LoadInt64(&totalTokens)),
		},
	}

	for i, r := range results {
		if r.Err != nil {
			// Scoped failure: the whole batch's files count as skipped.
			out.Metadata.SkippedFiles += len(batches[i].Units)
			continue
		}
		for _, ca := range r.Value {
			ca.RiskLevel = normalizeRisk(ca.RiskLevel)
			out.Changes = append(out.Changes, ca)
		}
		out.Metadata.AnalyzedFiles += len(batches[i].Units)
	}

	return out, nil
}
