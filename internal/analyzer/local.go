package analyzer

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/joescharf/cr/internal/models"
)

// LocalDiffAnalyzer classifies changes with static heuristics: no model
// call, deterministic output, same contract as DiffAnalyzer.
type LocalDiffAnalyzer struct{}

// NewLocalDiffAnalyzer returns the rule-based analyzer.
func NewLocalDiffAnalyzer() *LocalDiffAnalyzer {
	return &LocalDiffAnalyzer{}
}

var funcRe = regexp.MustCompile(`^func\s+(?:\([^)]*\)\s*)?([A-Za-z_]\w*)\s*(\([^)]*\).*)`)

var typeRe = regexp.MustCompile(`^type\s+([A-Za-z_]\w*)\s+(interface|struct)\b`)

// Security-sensitive patterns; any hit on an added line raises the file to
// HIGH risk.
var securityPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(auth|login|password|credential|token|jwt|oauth|session)`),
	regexp.MustCompile(`(?i)(\bSELECT\b|\bINSERT\b|\bUPDATE\b|\bDELETE\b|\bDROP\b)\s`),
	regexp.MustCompile(`(?i)(db\.exec|db\.query|\.prepare\(|raw.?sql)`),
	regexp.MustCompile(`(?i)(encrypt|decrypt|hmac|cipher|bcrypt|private.?key|secret.?key)`),
	regexp.MustCompile(`(?i)(exec\.Command|os\.system|subprocess|child_process|eval\()`),
	regexp.MustCompile(`(?i)(api.?key|secret|password)\s*[:=]\s*["']`),
	regexp.MustCompile(`(?i)InsecureSkipVerify`),
}

// Analyze runs the heuristics over every unit. It never fails and never
// skips a file.
func (l *LocalDiffAnalyzer) Analyze(ctx context.Context, units []models.ChangeUnit) (*models.AnalysisResult, error) {
	out := &models.AnalysisResult{
		Metadata: models.AnalysisMetadata{
			TotalFiles:    len(units),
			AnalyzedFiles: len(units),
		},
	}
	if len(units) > 0 {
		out.Metadata.BatchCount = 1
	}

	for _, u := range units {
		out.Changes = append(out.Changes, analyzeUnit(u))
	}
	return out, nil
}

type sigPair struct {
	added   string
	removed string
}

func analyzeUnit(u models.ChangeUnit) models.ChangeAnalysis {
	var added, removed []string
	for _, line := range strings.Split(u.Content, "\n") {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
		case strings.HasPrefix(line, "+"):
			added = append(added, line[1:])
		case strings.HasPrefix(line, "-"):
			removed = append(removed, line[1:])
		}
	}

	hints := models.SemanticHints{}
	funcs := map[string]*sigPair{}
	var funcOrder []string // first-seen order keeps output deterministic
	record := func(name string) *sigPair {
		pair := funcs[name]
		if pair == nil {
			pair = &sigPair{}
			funcs[name] = pair
			funcOrder = append(funcOrder, name)
		}
		return pair
	}
	securityHit := false

	for _, line := range added {
		trimmed := strings.TrimSpace(line)
		if m := funcRe.FindStringSubmatch(trimmed); m != nil {
			record(m[1]).added = m[2]
		}
		if m := typeRe.FindStringSubmatch(trimmed); m != nil {
			hints.Interfaces = append(hints.Interfaces, models.InterfaceChange{Name: m[1]})
		}
		for _, re := range securityPatterns {
			if re.MatchString(line) {
				securityHit = true
				break
			}
		}
	}
	for _, line := range removed {
		trimmed := strings.TrimSpace(line)
		if m := funcRe.FindStringSubmatch(trimmed); m != nil {
			record(m[1]).removed = m[2]
		}
	}

	exportedChange := false
	for _, name := range funcOrder {
		pair := funcs[name]
		fc := models.FunctionChange{
			Name:     name,
			Exported: exported(name),
		}
		switch {
		case pair.added != "" && pair.removed != "":
			if pair.added != pair.removed {
				fc.Kind = models.FunctionSignature
			} else {
				fc.Kind = models.FunctionImplementation
			}
		case pair.added != "":
			fc.Kind = models.FunctionNew
		default:
			fc.Kind = models.FunctionDeleted
		}
		hints.Functions = append(hints.Functions, fc)

		if fc.Exported && fc.Kind != models.FunctionImplementation {
			exportedChange = true
			hints.Exports = append(hints.Exports, name)
		}
	}
	for _, ic := range hints.Interfaces {
		if exported(ic.Name) {
			exportedChange = true
			hints.Exports = append(hints.Exports, ic.Name)
		}
	}

	internalChange := hasCodeChange(added) || hasCodeChange(removed)
	hints.Summary = fmt.Sprintf("%s: +%d/-%d lines, %d function change(s)",
		u.Type, len(added), len(removed), len(hints.Functions))

	return models.ChangeAnalysis{
		FilePath:  u.Path,
		RiskLevel: RiskFromSignals(exportedChange, securityHit, internalChange),
		Hints:     hints,
	}
}

// hasCodeChange reports whether any line looks like code rather than a
// comment or blank line.
func hasCodeChange(lines []string) bool {
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "//") || strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "*") {
			continue
		}
		return true
	}
	return false
}

func exported(name string) bool {
	if name == "" {
		return false
	}
	return unicode.IsUpper(rune(name[0]))
}
