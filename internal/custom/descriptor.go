// Package custom loads user-defined review agents and matches them against
// changed files before execution.
package custom

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// TriggerKind selects how an agent decides whether it applies to a diff.
type TriggerKind string

const (
	TriggerRule   TriggerKind = "rule"
	TriggerLLM    TriggerKind = "llm"
	TriggerHybrid TriggerKind = "hybrid"
)

// HybridMode controls when a hybrid trigger falls through to the model.
type HybridMode string

const (
	// HybridOnMatch asks the model only when the rule trigger matched.
	HybridOnMatch HybridMode = "on_match"
	// HybridOnInconclusive also asks when the rule has no predicates to
	// evaluate.
	HybridOnInconclusive HybridMode = "on_inconclusive"
)

// Trigger is the matching configuration for one custom agent descriptor.
type Trigger struct {
	Kind     TriggerKind `yaml:"kind"`
	Paths    []string    `yaml:"paths"`    // glob or directory-prefix patterns
	Statuses []string    `yaml:"statuses"` // add, modify, delete
	Concern  string      `yaml:"concern"`  // question put to the model
	Mode     HybridMode  `yaml:"mode"`
}

// Definition is one custom agent loaded from a YAML descriptor. Immutable
// per run.
type Definition struct {
	Name        string  `yaml:"name"`
	Description string  `yaml:"description"`
	Focus       string  `yaml:"focus"` // appended to the specialist system prompt
	Trigger     Trigger `yaml:"trigger"`
}

func (d *Definition) validate() error {
	if d.Name == "" {
		return fmt.Errorf("missing name")
	}
	if d.Focus == "" {
		return fmt.Errorf("agent %s: missing focus", d.Name)
	}
	switch d.Trigger.Kind {
	case TriggerRule:
		if len(d.Trigger.Paths) == 0 && len(d.Trigger.Statuses) == 0 {
			return fmt.Errorf("agent %s: rule trigger needs paths or statuses", d.Name)
		}
	case TriggerLLM, TriggerHybrid:
		if d.Trigger.Concern == "" {
			return fmt.Errorf("agent %s: %s trigger needs a concern", d.Name, d.Trigger.Kind)
		}
	default:
		return fmt.Errorf("agent %s: unknown trigger kind %q", d.Name, d.Trigger.Kind)
	}
	if d.Trigger.Mode == "" {
		d.Trigger.Mode = HybridOnMatch
	}
	return nil
}

// LoadWarning records one descriptor that could not be loaded. A bad
// descriptor skips that agent, never the run.
type LoadWarning struct {
	File string
	Err  error
}

// Load reads every *.yaml/*.yml descriptor in dir, in filename order. A
// missing directory yields no agents and no error.
func Load(dir string) ([]Definition, []LoadWarning, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read agents dir: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext == ".yaml" || ext == ".yml" {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	var defs []Definition
	var warnings []LoadWarning
	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			warnings = append(warnings, LoadWarning{File: name, Err: err})
			continue
		}
		var def Definition
		if err := yaml.Unmarshal(data, &def); err != nil {
			warnings = append(warnings, LoadWarning{File: name, Err: fmt.Errorf("parse descriptor: %w", err)})
			continue
		}
		if err := def.validate(); err != nil {
			warnings = append(warnings, LoadWarning{File: name, Err: err})
			continue
		}
		defs = append(defs, def)
	}
	return defs, warnings, nil
}
