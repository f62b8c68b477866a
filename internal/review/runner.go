// Package review composes the whole pipeline: parse a diff, analyze it,
// dispatch specialists, ground their findings, deduplicate, and report.
package review

import (
	"context"
	"fmt"
	"time"

	"github.com/joescharf/cr/internal/agents"
	"github.com/joescharf/cr/internal/aggregate"
	"github.com/joescharf/cr/internal/analyzer"
	"github.com/joescharf/cr/internal/custom"
	"github.com/joescharf/cr/internal/diff"
	"github.com/joescharf/cr/internal/llm"
	"github.com/joescharf/cr/internal/models"
	"github.com/joescharf/cr/internal/output"
	"github.com/joescharf/cr/internal/report"
	"github.com/joescharf/cr/internal/standards"
	"github.com/joescharf/cr/internal/store"
	"github.com/joescharf/cr/internal/validate"
)

// Options configure one review run.
type Options struct {
	RepoPath  string
	GitRef    string // passed through to the report and run record
	DiffText  string // the unified diff under review
	AgentsDir string // custom agent definitions; empty skips loading
	Offline   bool   // heuristics only, no model calls
}

// Runner wires the pipeline stages together. Provider may be nil only when
// the run is offline.
type Runner struct {
	Provider llm.Provider
	Store    store.Store // optional; nil disables history
	UI       *output.UI

	Analyzer analyzer.Config
	Agents   agents.Config
	Custom   custom.Config
}

// Run executes a full review over the supplied diff and returns the report.
// Agent-level failures degrade the result and are surfaced as warnings;
// only input-level problems (unparseable diff, missing provider) are fatal.
func (r *Runner) Run(ctx context.Context, opts Options) (*report.Report, error) {
	if !opts.Offline && r.Provider == nil {
		return nil, fmt.Errorf("model provider required unless running offline")
	}

	cs, err := diff.Parse(opts.DiffText)
	if err != nil {
		return nil, fmt.Errorf("parse diff: %w", err)
	}
	for _, skipped := range cs.Skipped {
		r.UI.VerboseLog("skipping %s", skipped)
	}

	rep := &report.Report{
		RunID:       store.NewRunID(),
		RepoPath:    opts.RepoPath,
		GitRef:      opts.GitRef,
		GeneratedAt: time.Now().UTC(),
	}
	if len(cs.Units) == 0 {
		r.UI.Info("nothing to review after filtering")
		return rep, nil
	}

	analysis, err := r.analyze(ctx, opts, cs)
	if err != nil {
		return nil, err
	}
	rep.Metadata = analysis.Metadata
	rep.Analyses = analysis.Changes

	raw := r.dispatch(ctx, opts, cs)

	validated := r.validate(ctx, opts, raw, cs)
	rep.Issues = aggregate.Deduplicate(validate.Grounded(validated))

	if r.Store != nil {
		if err := r.persist(ctx, rep, analysis); err != nil {
			r.UI.Warning("history not saved: %v", err)
		}
	}
	return rep, nil
}

func (r *Runner) analyze(ctx context.Context, opts Options, cs *diff.ChangeSet) (*models.AnalysisResult, error) {
	var az analyzer.Analyzer
	if opts.Offline {
		az = analyzer.NewLocalDiffAnalyzer()
	} else {
		az = analyzer.NewDiffAnalyzer(r.Provider, r.Analyzer)
	}

	analysis, err := az.Analyze(ctx, cs.Units)
	if err != nil {
		return nil, fmt.Errorf("analyze diff: %w", err)
	}
	if analysis.Metadata.SkippedFiles > 0 {
		r.UI.Warning("%d of %d files skipped during analysis",
			analysis.Metadata.SkippedFiles, analysis.Metadata.TotalFiles)
	}
	return analysis, nil
}

// dispatch runs the built-in specialists plus any matched custom agents and
// pools their raw findings. A failing agent costs its findings, nothing else.
func (r *Runner) dispatch(ctx context.Context, opts Options, cs *diff.ChangeSet) []models.RawIssue {
	specialists := agents.BuiltIn()

	if opts.AgentsDir != "" && !opts.Offline {
		defs, warnings, err := custom.Load(opts.AgentsDir)
		if err != nil {
			r.UI.Warning("custom agents unavailable: %v", err)
		}
		for _, w := range warnings {
			r.UI.Warning("custom agent %s: %v", w.File, w.Err)
		}
		if len(defs) > 0 {
			engine := custom.NewEngine(r.Provider, r.Custom)
			decisions := engine.MatchAll(ctx, defs, custom.TriggerContext{Units: cs.Units})
			for _, d := range decisions {
				if d.Matched {
					r.UI.VerboseLog("custom agent %s triggered (%s: %s, %d llm calls)", d.Agent, d.Kind, d.Reason, d.LLMCalls)
				} else {
					r.UI.VerboseLog("custom agent %s skipped (%s: %s, %d llm calls)", d.Agent, d.Kind, d.Reason, d.LLMCalls)
				}
			}
			specialists = append(specialists, custom.Specialists(defs, decisions)...)
		}
	}

	if opts.Offline {
		// No model, no specialists. Offline runs report analysis only.
		return nil
	}

	stdBlock, sources := standards.Gather(opts.RepoPath)
	for _, src := range sources {
		r.UI.VerboseLog("standards from %s (%d bytes)", src.Path, src.Size)
	}

	rc := agents.ReviewContext{
		Diff:      opts.DiffText,
		Standards: stdBlock,
		Paths:     cs.Paths(),
	}

	dispatcher := agents.NewDispatcher(r.Provider, r.Agents)
	var raw []models.RawIssue
	for _, res := range dispatcher.Dispatch(ctx, specialists, rc) {
		if res.Err != nil {
			r.UI.Warning("agent %s failed: %v", res.Agent, res.Err)
			continue
		}
		raw = append(raw, res.Issues...)
	}
	return raw
}

func (r *Runner) validate(ctx context.Context, opts Options, raw []models.RawIssue, cs *diff.ChangeSet) []models.ValidatedIssue {
	if len(raw) == 0 {
		return nil
	}
	var source validate.EvidenceSource
	if opts.Offline {
		source = validate.NewDiffEvidenceSource(cs)
	} else {
		source = validate.NewAgentEvidenceSource(r.Provider, cs)
	}
	validated := validate.New(source).ValidateAll(ctx, raw, cs)

	for _, v := range validated {
		if v.Status == models.StatusRejected {
			r.UI.VerboseLog("rejected %s at %s:%d (%s)", v.Title, v.File, v.LineStart, v.Rationale)
		}
	}
	return validated
}

func (r *Runner) persist(ctx context.Context, rep *report.Report, analysis *models.AnalysisResult) error {
	highRisk := 0
	for _, ch := range analysis.Changes {
		if ch.RiskLevel.AtLeast(models.RiskHigh) {
			highRisk++
		}
	}
	run := &models.ReviewRun{
		ID:         rep.RunID,
		RepoPath:   rep.RepoPath,
		GitRef:     rep.GitRef,
		TotalFiles: rep.Metadata.TotalFiles,
		HighRisk:   highRisk,
		CreatedAt:  rep.GeneratedAt,
	}
	return r.Store.SaveRun(ctx, run, rep.Issues)
}
