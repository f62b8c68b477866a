// Package verify classifies previously reported issues against a new
// review: fixed, still present, or regressed.
package verify

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joescharf/cr/internal/models"
)

// ErrNoPreviousIssues means the prior report contained nothing usable.
// Fix verification requires at least one previous issue.
var ErrNoPreviousIssues = errors.New("previous review contains no valid issues")

// previousReport is the tolerated top-level shape of a prior report file.
// Issues are decoded individually so one bad entry never poisons the rest.
type previousReport struct {
	Issues []json.RawMessage `json:"issues"`
}

// LoadPreviousReview reads a prior report file. Unknown or invalid issue
// entries are skipped (counted in Skipped); an unreadable or structurally
// invalid file, or a file with zero valid issues, is an error.
func LoadPreviousReview(path string) (*models.PreviousReviewData, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read previous review: %w", err)
	}

	var report previousReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("parse previous review %s: %w", path, err)
	}

	out := &models.PreviousReviewData{Source: path}
	for _, raw := range report.Issues {
		var issue models.PreviousIssue
		if err := json.Unmarshal(raw, &issue); err != nil {
			out.Skipped++
			continue
		}
		if !usable(issue) {
			out.Skipped++
			continue
		}
		if issue.LineEnd < issue.LineStart {
			issue.LineStart, issue.LineEnd = issue.LineEnd, issue.LineStart
		}
		out.Issues = append(out.Issues, issue)
	}

	if len(out.Issues) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNoPreviousIssues)
	}
	return out, nil
}

// usable requires the fields verification depends on; everything else is
// optional so both raw and validated issue shapes load.
func usable(issue models.PreviousIssue) bool {
	if strings.TrimSpace(issue.File) == "" {
		return false
	}
	if issue.LineStart < 1 {
		return false
	}
	return models.ValidCategory(issue.Category)
}
