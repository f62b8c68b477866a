package models

// ChangeType represents the kind of change a file underwent in a diff.
type ChangeType string

const (
	ChangeTypeAdd    ChangeType = "add"
	ChangeTypeDelete ChangeType = "delete"
	ChangeTypeModify ChangeType = "modify"
)

// RiskLevel represents the assessed risk of a file change.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// riskRank orders risk levels for comparison. Unknown levels rank lowest.
func riskRank(r RiskLevel) int {
	switch r {
	case RiskHigh:
		return 3
	case RiskMedium:
		return 2
	case RiskLow:
		return 1
	}
	return 0
}

// AtLeast reports whether r is at least as severe as other.
func (r RiskLevel) AtLeast(other RiskLevel) bool {
	return riskRank(r) >= riskRank(other)
}

// ChangeUnit is one file's diff hunk text plus change type. Immutable once
// produced by ingestion.
type ChangeUnit struct {
	Path    string     `json:"path"`
	Type    ChangeType `json:"type"`
	Content string     `json:"content"`
}

// InterfaceChange describes a modified interface or struct in a diff.
type InterfaceChange struct {
	Name           string   `json:"name"`
	AddedFields    []string `json:"added_fields,omitempty"`
	RemovedFields  []string `json:"removed_fields,omitempty"`
	ModifiedFields []string `json:"modified_fields,omitempty"`
}

// FunctionChangeKind classifies how a function changed.
type FunctionChangeKind string

const (
	FunctionNew            FunctionChangeKind = "new"
	FunctionDeleted        FunctionChangeKind = "deleted"
	FunctionSignature      FunctionChangeKind = "signature"
	FunctionImplementation FunctionChangeKind = "implementation"
)

// FunctionChange describes a changed function in a diff.
type FunctionChange struct {
	Name     string             `json:"name"`
	Kind     FunctionChangeKind `json:"kind"`
	Exported bool               `json:"exported"`
}

// SemanticHints holds structured deltas extracted from one file's change.
type SemanticHints struct {
	Interfaces []InterfaceChange `json:"interfaces,omitempty"`
	Functions  []FunctionChange  `json:"functions,omitempty"`
	Exports    []string          `json:"exports,omitempty"`
	Summary    string            `json:"summary,omitempty"`
}

// ChangeAnalysis is the per-file output of diff analysis.
type ChangeAnalysis struct {
	FilePath  string        `json:"file_path"`
	RiskLevel RiskLevel     `json:"risk_level"`
	Hints     SemanticHints `json:"semantic_hints"`
}

// AnalysisMetadata summarizes an analysis run. Derived, never mutated after
// the run completes. AnalyzedFiles + SkippedFiles always equals TotalFiles.
type AnalysisMetadata struct {
	TotalFiles    int `json:"total_files"`
	AnalyzedFiles int `json:"analyzed_files"`
	SkippedFiles  int `json:"skipped_files"`
	BatchCount    int `json:"batch_count"`
	TotalTokens   int `json:"total_tokens"`
}

// AnalysisResult pairs per-file analyses with run metadata.
type AnalysisResult struct {
	Changes  []ChangeAnalysis `json:"changes"`
	Metadata AnalysisMetadata `json:"metadata"`
}
