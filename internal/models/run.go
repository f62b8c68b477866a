package models

import "time"

// ReviewRun is one persisted review of a diff, stored for history and as a
// baseline for later fix verification.
type ReviewRun struct {
	ID         string
	RepoPath   string
	GitRef     string
	TotalFiles int
	IssueCount int
	HighRisk   int
	CreatedAt  time.Time
}
