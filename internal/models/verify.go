package models

// FixStatus classifies a previously reported issue against a new review.
type FixStatus string

const (
	FixStatusFixed     FixStatus = "fixed"
	FixStatusPresent   FixStatus = "present"
	FixStatusRegressed FixStatus = "regressed"
	FixStatusNew       FixStatus = "new"
)

// PreviousIssue is one issue loaded from a prior report file. It mirrors the
// RawIssue shape but tolerates partially populated records.
type PreviousIssue struct {
	ID        string        `json:"id"`
	File      string        `json:"file"`
	LineStart int           `json:"line_start"`
	LineEnd   int           `json:"line_end"`
	Category  IssueCategory `json:"category"`
	Severity  IssueSeverity `json:"severity"`
	Title     string        `json:"title"`
}

// PreviousReviewData holds the issues loaded from a prior report. Read-only
// input to fix verification.
type PreviousReviewData struct {
	Source  string          `json:"source"`
	Skipped int             `json:"skipped"`
	Issues  []PreviousIssue `json:"issues"`
}

// FixVerificationResult records the fate of one previous issue.
type FixVerificationResult struct {
	IssueID  string    `json:"issue_id"`
	Status   FixStatus `json:"status"`
	Evidence string    `json:"evidence,omitempty"`
}
