package models

// IssueCategory classifies what kind of problem an issue describes.
type IssueCategory string

const (
	CategorySecurity        IssueCategory = "security"
	CategoryLogic           IssueCategory = "logic"
	CategoryPerformance     IssueCategory = "performance"
	CategoryStyle           IssueCategory = "style"
	CategoryMaintainability IssueCategory = "maintainability"
)

// Categories lists all known issue categories in display order.
func Categories() []IssueCategory {
	return []IssueCategory{
		CategorySecurity,
		CategoryLogic,
		CategoryPerformance,
		CategoryStyle,
		CategoryMaintainability,
	}
}

// IssueSeverity represents how serious an issue is.
type IssueSeverity string

const (
	SeverityCritical   IssueSeverity = "critical"
	SeverityError      IssueSeverity = "error"
	SeverityWarning    IssueSeverity = "warning"
	SeveritySuggestion IssueSeverity = "suggestion"
)

// Rank orders severities for comparison; higher is more severe. Unknown
// severities rank below suggestion so malformed input never outranks real
// findings.
func (s IssueSeverity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityError:
		return 3
	case SeverityWarning:
		return 2
	case SeveritySuggestion:
		return 1
	}
	return 0
}

// ValidSeverity reports whether s is one of the known severity values.
func ValidSeverity(s IssueSeverity) bool {
	return s.Rank() > 0
}

// ValidCategory reports whether c is one of the known category values.
func ValidCategory(c IssueCategory) bool {
	switch c {
	case CategorySecurity, CategoryLogic, CategoryPerformance, CategoryStyle, CategoryMaintainability:
		return true
	}
	return false
}

// RawIssue is an unvalidated finding reported by an agent.
type RawIssue struct {
	ID          string        `json:"id"`
	File        string        `json:"file"`
	LineStart   int           `json:"line_start"`
	LineEnd     int           `json:"line_end"`
	Category    IssueCategory `json:"category"`
	Severity    IssueSeverity `json:"severity"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Suggestion  string        `json:"suggestion,omitempty"`
	CodeSnippet string        `json:"code_snippet,omitempty"`
	Confidence  float64       `json:"confidence"`
	SourceAgent string        `json:"source_agent"`
}

// OverlapsRange reports whether the issue's line range shares at least one
// line with [start, end].
func (i RawIssue) OverlapsRange(start, end int) bool {
	return i.LineStart <= end && start <= i.LineEnd
}

// LineSpan returns the number of lines the issue covers.
func (i RawIssue) LineSpan() int {
	return i.LineEnd - i.LineStart + 1
}

// ValidationStatus is the state of an issue in the grounding state machine.
type ValidationStatus string

const (
	StatusProposed          ValidationStatus = "proposed"
	StatusEvidenceRequested ValidationStatus = "evidence_requested"
	StatusGrounded          ValidationStatus = "grounded"
	StatusRejected          ValidationStatus = "rejected"
)

// Terminal reports whether the status is a terminal state.
func (s ValidationStatus) Terminal() bool {
	return s == StatusGrounded || s == StatusRejected
}

// ValidatedIssue is a RawIssue that passed through the grounding state
// machine, carrying the combined confidence and final status.
type ValidatedIssue struct {
	RawIssue
	FinalConfidence float64          `json:"final_confidence"`
	Status          ValidationStatus `json:"validation_status"`
	Rationale       string           `json:"rationale,omitempty"`
}
