// Package agents runs role-scoped specialist reviews over a shared context,
// each producing raw, unvalidated issues.
package agents

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/joescharf/cr/internal/executor"
	"github.com/joescharf/cr/internal/llm"
	"github.com/joescharf/cr/internal/models"
)

// ReviewContext is the shared input every specialist sees: the filtered
// diff plus the project standards text used to anchor style findings.
type ReviewContext struct {
	Diff      string
	Standards string
	Paths     []string
}

// Specialist is one role-scoped review pass.
type Specialist struct {
	Name  string
	Focus string // appended to the shared system prompt
}

// BuiltIn returns the standard specialist roles in registration order.
// Order matters: it is the deduplication tie-break downstream.
func BuiltIn() []Specialist {
	return []Specialist{
		{Name: "security", Focus: "Focus exclusively on security: injection, auth bypass, secrets in code, unsafe deserialization, path traversal, SSRF, crypto misuse. Category must be \"security\"."},
		{Name: "logic", Focus: "Focus exclusively on correctness: off-by-one errors, nil/undefined access, race conditions, broken error handling, unreachable code, wrong conditionals. Category must be \"logic\"."},
		{Name: "performance", Focus: "Focus exclusively on performance: accidental O(n^2) loops, repeated allocations, unbounded growth, N+1 queries, blocking calls on hot paths. Category must be \"performance\"."},
		{Name: "style", Focus: "Focus exclusively on style and consistency with the project standards provided. Category must be \"style\"."},
		{Name: "maintainability", Focus: "Focus exclusively on maintainability: duplication, overly complex functions, unclear naming, missing abstraction boundaries. Category must be \"maintainability\"."},
	}
}

const issueSchemaPrompt = `You review git diffs. Report findings ONLY as a JSON array of objects with these fields:
- "file": path exactly as it appears in the diff
- "line_start", "line_end": new-side line numbers the finding covers (line_start <= line_end)
- "category": one of "security", "logic", "performance", "style", "maintainability"
- "severity": one of "critical", "error", "warning", "suggestion"
- "title": short finding title
- "description": what is wrong and why it matters
- "suggestion": concrete fix (optional)
- "code_snippet": the exact changed line(s) the finding is about (optional)
- "confidence": your confidence in the finding, 0.0 to 1.0

Rules:
- Only report findings on lines the diff actually changes
- Return an empty array if there is nothing to report
- Return valid JSON only, no markdown fencing or explanation

`

// rawIssueWire is the JSON shape specialists return; IDs and agent
// attribution are assigned locally after parsing.
type rawIssueWire struct {
	File        string  `json:"file"`
	LineStart   int     `json:"line_start"`
	LineEnd     int     `json:"line_end"`
	Category    string  `json:"category"`
	Severity    string  `json:"severity"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Suggestion  string  `json:"suggestion"`
	CodeSnippet string  `json:"code_snippet"`
	Confidence  float64 `json:"confidence"`
}

// Config tunes specialist execution.
type Config struct {
	Concurrency int
	MaxRetries  int
	BaseDelay   time.Duration
}

// Dispatcher runs specialists concurrently against one review context.
type Dispatcher struct {
	provider llm.Provider
	cfg      Config
}

// NewDispatcher creates a dispatcher over the given provider.
func NewDispatcher(provider llm.Provider, cfg Config) *Dispatcher {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	return &Dispatcher{provider: provider, cfg: cfg}
}

// AgentResult is one specialist's outcome. A failed agent carries its error
// here instead of aborting the others.
type AgentResult struct {
	Agent  string
	Issues []models.RawIssue
	Err    error
}

func buildUserPrompt(rc ReviewContext) string {
	var sb strings.Builder
	if rc.Standards != "" {
		sb.WriteString("Project standards:\n\n")
		sb.WriteString(rc.Standards)
		sb.WriteString("\n\n")
	}
	sb.WriteString("Review this diff:\n\n")
	sb.WriteString(rc.Diff)
	return sb.String()
}

// Dispatch runs every specialist over the same context under the executor.
// Results are positionally aligned to the input specialists.
func (d *Dispatcher) Dispatch(ctx context.Context, specialists []Specialist, rc ReviewContext) []AgentResult {
	user := buildUserPrompt(rc)

	results := executor.Map(ctx, specialists, executor.Options{
		Concurrency: d.cfg.Concurrency,
		MaxRetries:  d.cfg.MaxRetries,
		BaseDelay:   d.cfg.BaseDelay,
		RetryIf:     llm.Retryable,
	}, func(ctx context.Context, sp Specialist) ([]models.RawIssue, error) {
		return d.runOne(ctx, sp, user)
	})

	out := make([]AgentResult, len(specialists))
	for i, r := range results {
		out[i] = AgentResult{Agent: specialists[i].Name, Issues: r.Value, Err: r.Err}
	}
	return out
}

func (d *Dispatcher) runOne(ctx context.Context, sp Specialist, user string) ([]models.RawIssue, error) {
	var wire []rawIssueWire
	if err := d.provider.ChatJSON(ctx, issueSchemaPrompt+sp.Focus, user, &wire); err != nil {
		return nil, fmt.Errorf("specialist %s: %w", sp.Name, err)
	}

	var issues []models.RawIssue
	for _, w := range wire {
		issue, ok := fromWire(w, sp.Name)
		if !ok {
			continue
		}
		issues = append(issues, issue)
	}
	return issues, nil
}

// fromWire converts a wire issue to a RawIssue, normalizing ranges and
// confidence and dropping entries with unusable fields.
func fromWire(w rawIssueWire, agent string) (models.RawIssue, bool) {
	if w.File == "" || w.Title == "" {
		return models.RawIssue{}, false
	}
	category := models.IssueCategory(strings.ToLower(w.Category))
	severity := models.IssueSeverity(strings.ToLower(w.Severity))
	if !models.ValidCategory(category) || !models.ValidSeverity(severity) {
		return models.RawIssue{}, false
	}

	start, end := w.LineStart, w.LineEnd
	if end < start {
		start, end = end, start
	}
	if start < 1 {
		return models.RawIssue{}, false
	}

	confidence := w.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	return models.RawIssue{
		ID:          NewIssueID(),
		File:        w.File,
		LineStart:   start,
		LineEnd:     end,
		Category:    category,
		Severity:    severity,
		Title:       w.Title,
		Description: w.Description,
		Suggestion:  w.Suggestion,
		CodeSnippet: w.CodeSnippet,
		Confidence:  confidence,
		SourceAgent: agent,
	}, true
}

// Monotonic readers are not safe for concurrent use, so ID generation
// serializes on a shared entropy source.
var (
	issueEntropyMu sync.Mutex
	issueEntropy   = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
)

// NewIssueID generates a ULID for a new issue. Safe for concurrent use.
func NewIssueID() string {
	issueEntropyMu.Lock()
	defer issueEntropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), issueEntropy).String()
}
