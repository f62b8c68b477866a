package store

import (
	"context"

	"github.com/joescharf/cr/internal/models"
)

// RunListFilter specifies filters for listing review runs.
type RunListFilter struct {
	RepoPath string
	Limit    int
}

// Store defines the persistence interface for review history.
type Store interface {
	// Runs
	SaveRun(ctx context.Context, run *models.ReviewRun, issues []models.ValidatedIssue) error
	GetRun(ctx context.Context, id string) (*models.ReviewRun, error)
	LatestRun(ctx context.Context, repoPath string) (*models.ReviewRun, error)
	ListRuns(ctx context.Context, filter RunListFilter) ([]*models.ReviewRun, error)
	DeleteRun(ctx context.Context, id string) error

	// Issues
	ListRunIssues(ctx context.Context, runID string) ([]models.ValidatedIssue, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
