package custom

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/joescharf/cr/internal/agents"
	"github.com/joescharf/cr/internal/executor"
	"github.com/joescharf/cr/internal/llm"
	"github.com/joescharf/cr/internal/models"
)

// TriggerContext is what trigger evaluation may see: the changed units for
// the current diff.
type TriggerContext struct {
	Units []models.ChangeUnit
}

// ruleOutcome is the three-way result of rule evaluation.
type ruleOutcome int

const (
	ruleNoMatch ruleOutcome = iota
	ruleMatched
	ruleInconclusive // no predicates configured, nothing to evaluate
)

// EvalRule evaluates path and status predicates against the context. Pure
// and synchronous; no remote calls.
func EvalRule(tr Trigger, tc TriggerContext) ruleOutcome {
	if len(tr.Paths) == 0 && len(tr.Statuses) == 0 {
		return ruleInconclusive
	}
	for _, u := range tc.Units {
		if matchesPath(tr.Paths, u.Path) && matchesStatus(tr.Statuses, u.Type) {
			return ruleMatched
		}
	}
	return ruleNoMatch
}

// matchesPath accepts glob patterns (matched against the full path and the
// base name) and directory prefixes ending in "/". Empty patterns match
// everything.
func matchesPath(patterns []string, path string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, pat := range patterns {
		if strings.HasSuffix(pat, "/") && strings.HasPrefix(path, pat) {
			return true
		}
		if ok, _ := filepath.Match(pat, path); ok {
			return true
		}
		if ok, _ := filepath.Match(pat, filepath.Base(path)); ok {
			return true
		}
	}
	return false
}

func matchesStatus(statuses []string, ct models.ChangeType) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, s := range statuses {
		if models.ChangeType(strings.ToLower(s)) == ct {
			return true
		}
	}
	return false
}

// Decision is the per-agent match trace kept for observability.
type Decision struct {
	Agent    string
	Matched  bool
	Kind     TriggerKind
	Reason   string
	LLMCalls int // remote calls spent deciding, including retries
}

// Config tunes model-backed trigger evaluation.
type Config struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// Engine matches custom agent definitions against a trigger context.
type Engine struct {
	provider llm.Provider
	cfg      Config
}

// NewEngine creates a matching engine over the given provider.
func NewEngine(provider llm.Provider, cfg Config) *Engine {
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	return &Engine{provider: provider, cfg: cfg}
}

const triggerSystemPrompt = `You decide whether a code-review concern applies to a set of changed files. Return ONLY a JSON object: {"applies": true|false, "reason": "<one sentence>"}. No markdown fencing.`

type triggerVerdict struct {
	Applies bool   `json:"applies"`
	Reason  string `json:"reason"`
}

// Match evaluates one definition. Rule triggers never touch the model;
// hybrid triggers consult it only after the rule says so, which keeps the
// cheap local check in front of the remote-call cost.
func (e *Engine) Match(ctx context.Context, def Definition, tc TriggerContext) Decision {
	d := Decision{Agent: def.Name, Kind: def.Trigger.Kind}

	switch def.Trigger.Kind {
	case TriggerRule:
		outcome := EvalRule(def.Trigger, tc)
		d.Matched = outcome == ruleMatched
		d.Reason = ruleReason(outcome)

	case TriggerLLM:
		e.askModel(ctx, def, tc, &d)

	case TriggerHybrid:
		outcome := EvalRule(def.Trigger, tc)
		fallThrough := outcome == ruleMatched ||
			(outcome == ruleInconclusive && def.Trigger.Mode == HybridOnInconclusive)
		if !fallThrough {
			d.Reason = "rule trigger did not match; model not consulted"
			return d
		}
		e.askModel(ctx, def, tc, &d)
	}
	return d
}

func ruleReason(outcome ruleOutcome) string {
	switch outcome {
	case ruleMatched:
		return "rule trigger matched a changed path"
	case ruleInconclusive:
		return "rule trigger had no predicates to evaluate"
	default:
		return "rule trigger did not match"
	}
}

func (e *Engine) askModel(ctx context.Context, def Definition, tc TriggerContext, d *Decision) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Concern: %s\n\nChanged files:\n", def.Trigger.Concern)
	for _, u := range tc.Units {
		fmt.Fprintf(&sb, "- %s (%s)\n", u.Path, u.Type)
	}

	results := executor.Map(ctx, []string{sb.String()}, executor.Options{
		Concurrency: 1,
		MaxRetries:  e.cfg.MaxRetries,
		BaseDelay:   e.cfg.BaseDelay,
		RetryIf:     llm.Retryable,
	}, func(ctx context.Context, user string) (triggerVerdict, error) {
		var verdict triggerVerdict
		err := e.provider.ChatJSON(ctx, triggerSystemPrompt, user, &verdict)
		return verdict, err
	})

	r := results[0]
	d.LLMCalls = r.Attempts
	if r.Err != nil {
		d.Matched = false
		d.Reason = fmt.Sprintf("model trigger failed: %v", r.Err)
		return
	}
	d.Matched = r.Value.Applies
	d.Reason = r.Value.Reason
	if d.Reason == "" {
		d.Reason = "model returned no reason"
	}
}

// MatchAll evaluates every definition in order and returns the full
// decision trace, one entry per definition.
func (e *Engine) MatchAll(ctx context.Context, defs []Definition, tc TriggerContext) []Decision {
	out := make([]Decision, len(defs))
	for i, def := range defs {
		out[i] = e.Match(ctx, def, tc)
	}
	return out
}

// Specialists converts the matched definitions into specialist passes that
// run through the same dispatcher as the built-in agents.
func Specialists(defs []Definition, decisions []Decision) []agents.Specialist {
	var out []agents.Specialist
	for i, def := range defs {
		if i < len(decisions) && decisions[i].Matched {
			out = append(out, agents.Specialist{Name: def.Name, Focus: def.Focus})
		}
	}
	return out
}
