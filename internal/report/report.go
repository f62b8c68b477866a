// Package report renders review results to the terminal and writes the JSON
// report file that later fix-verification runs read back.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/joescharf/cr/internal/aggregate"
	"github.com/joescharf/cr/internal/models"
	"github.com/joescharf/cr/internal/output"
)

// Report is the persisted result of one review run. The Issues key is the
// contract with fix verification: a later run loads it as the baseline.
type Report struct {
	RunID       string                  `json:"run_id"`
	RepoPath    string                  `json:"repo_path"`
	GitRef      string                  `json:"git_ref,omitempty"`
	GeneratedAt time.Time               `json:"generated_at"`
	Metadata    models.AnalysisMetadata `json:"metadata"`
	Analyses    []models.ChangeAnalysis `json:"analyses,omitempty"`
	Issues      []models.ValidatedIssue `json:"issues"`
}

// SeverityCounts tallies issues per severity, most severe first.
func (r *Report) SeverityCounts() map[models.IssueSeverity]int {
	counts := make(map[models.IssueSeverity]int)
	for _, issue := range r.Issues {
		counts[issue.Severity]++
	}
	return counts
}

// Write marshals the report to path as indented JSON, creating parent
// directories as needed.
func Write(r *Report, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// severityOrder lists severities most severe first for display.
var severityOrder = []models.IssueSeverity{
	models.SeverityCritical,
	models.SeverityError,
	models.SeverityWarning,
	models.SeveritySuggestion,
}

// Render prints the report to the terminal, grouped by file with per-file
// risk and a severity summary line.
func Render(ui *output.UI, r *Report) {
	ui.Info("Reviewed %d files (%d analyzed, %d skipped) in %d batches",
		r.Metadata.TotalFiles, r.Metadata.AnalyzedFiles, r.Metadata.SkippedFiles, r.Metadata.BatchCount)

	if len(r.Analyses) > 0 {
		table := ui.Table([]string{"FILE", "RISK", "SUMMARY"})
		for _, ch := range r.Analyses {
			table.Append([]string{ch.FilePath, output.RiskColor(ch.RiskLevel), ch.Hints.Summary})
		}
		table.Render()
		fmt.Fprintln(ui.Out)
	}

	if len(r.Issues) == 0 {
		ui.Success("No issues found")
		return
	}

	byFile := aggregate.ByFile(r.Issues)
	files := make([]string, 0, len(byFile))
	for f := range byFile {
		files = append(files, f)
	}
	sort.Strings(files)

	for _, file := range files {
		issues := byFile[file]
		risk := aggregate.RiskForFile(issues)
		fmt.Fprintf(ui.Out, "\n%s  %s\n", output.Cyan(file), output.RiskColor(risk))

		table := ui.Table([]string{"LINES", "SEVERITY", "CATEGORY", "CONF", "TITLE"})
		for _, issue := range issues {
			table.Append([]string{
				fmt.Sprintf("%d-%d", issue.LineStart, issue.LineEnd),
				output.SeverityColor(issue.Severity),
				string(issue.Category),
				output.ConfidenceColor(issue.FinalConfidence),
				issue.Title,
			})
		}
		table.Render()
	}

	fmt.Fprintln(ui.Out)
	counts := r.SeverityCounts()
	for _, sev := range severityOrder {
		if n := counts[sev]; n > 0 {
			fmt.Fprintf(ui.Out, "  %s %d\n", output.SeverityColor(sev), n)
		}
	}

	byCategory := aggregate.ByCategory(r.Issues)
	parts := make([]string, 0, len(byCategory))
	for _, cat := range models.Categories() {
		if n := len(byCategory[cat]); n > 0 {
			parts = append(parts, fmt.Sprintf("%s %d", cat, n))
		}
	}
	fmt.Fprintf(ui.Out, "  %s\n", strings.Join(parts, ", "))

	ui.Info("%d issues total", len(r.Issues))
}

// RenderVerification prints fix-verification outcomes: the fate of every
// previous issue plus any newly introduced ones.
func RenderVerification(ui *output.UI, prev *models.PreviousReviewData, results []models.FixVerificationResult, fresh []models.ValidatedIssue) {
	ui.Info("Verifying %d issues from %s", len(prev.Issues), prev.Source)
	if prev.Skipped > 0 {
		ui.Warning("%d unparseable entries skipped in previous report", prev.Skipped)
	}

	byID := make(map[string]models.PreviousIssue, len(prev.Issues))
	for _, issue := range prev.Issues {
		byID[issue.ID] = issue
	}

	table := ui.Table([]string{"STATUS", "FILE", "LINES", "TITLE"})
	counts := make(map[models.FixStatus]int)
	for _, res := range results {
		counts[res.Status]++
		issue := byID[res.IssueID]
		table.Append([]string{
			statusColor(res.Status),
			issue.File,
			fmt.Sprintf("%d-%d", issue.LineStart, issue.LineEnd),
			issue.Title,
		})
	}
	table.Render()

	fmt.Fprintln(ui.Out)
	ui.Info("%d fixed, %d still present, %d regressed",
		counts[models.FixStatusFixed], counts[models.FixStatusPresent], counts[models.FixStatusRegressed])

	if len(fresh) > 0 {
		ui.Warning("%d new issues introduced since the previous review", len(fresh))
		for _, issue := range fresh {
			fmt.Fprintf(ui.Out, "  %s %s:%d-%d %s\n",
				output.SeverityColor(issue.Severity), issue.File, issue.LineStart, issue.LineEnd, issue.Title)
		}
	}
}

func statusColor(s models.FixStatus) string {
	switch s {
	case models.FixStatusFixed:
		return output.Green(string(s))
	case models.FixStatusRegressed:
		return output.Red(string(s))
	case models.FixStatusPresent:
		return output.Yellow(string(s))
	default:
		return string(s)
	}
}
