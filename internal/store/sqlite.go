package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/joescharf/cr/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer. Limiting to a single
	// connection serializes all DB access through Go's connection pool.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	// Set busy timeout so concurrent writes wait instead of failing immediately
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

var (
	runEntropyMu sync.Mutex
	runEntropy   = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
)

// NewRunID generates a new ULID string for a review run. Safe for
// concurrent use.
func NewRunID() string {
	runEntropyMu.Lock()
	defer runEntropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), runEntropy).String()
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()

		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveRun persists a run and its issues in one transaction. The run and its
// issues either all land or none do.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *models.ReviewRun, issues []models.ValidatedIssue) error {
	if run.ID == "" {
		run.ID = NewRunID()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	run.IssueCount = len(issues)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save run: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO review_runs (id, repo_path, git_ref, total_files, issue_count, high_risk, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.RepoPath, run.GitRef, run.TotalFiles, run.IssueCount, run.HighRisk, run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}

	for i, issue := range issues {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO run_issues (id, run_id, file, line_start, line_end, category, severity, title, description, suggestion, code_snippet, confidence, source_agent, final_confidence, validation_status, rationale, position)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			issue.ID, run.ID, issue.File, issue.LineStart, issue.LineEnd, string(issue.Category),
			string(issue.Severity), issue.Title, issue.Description, issue.Suggestion, issue.CodeSnippet,
			issue.Confidence, issue.SourceAgent, issue.FinalConfidence, string(issue.Status), issue.Rationale, i,
		)
		if err != nil {
			return fmt.Errorf("save run issue %s: %w", issue.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save run: %w", err)
	}
	return nil
}

const runColumns = `id, repo_path, git_ref, total_files, issue_count, high_risk, created_at`

func scanRun(row interface{ Scan(...any) error }) (*models.ReviewRun, error) {
	run := &models.ReviewRun{}
	err := row.Scan(&run.ID, &run.RepoPath, &run.GitRef, &run.TotalFiles, &run.IssueCount, &run.HighRisk, &run.CreatedAt)
	if err != nil {
		return nil, err
	}
	return run, nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*models.ReviewRun, error) {
	run, err := scanRun(s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM review_runs WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

func (s *SQLiteStore) LatestRun(ctx context.Context, repoPath string) (*models.ReviewRun, error) {
	run, err := scanRun(s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM review_runs WHERE repo_path = ? ORDER BY created_at DESC, id DESC LIMIT 1`, repoPath))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no runs recorded for %s", repoPath)
	}
	if err != nil {
		return nil, fmt.Errorf("latest run: %w", err)
	}
	return run, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunListFilter) ([]*models.ReviewRun, error) {
	query := `SELECT ` + runColumns + ` FROM review_runs`
	args := []any{}
	if filter.RepoPath != "" {
		query += ` WHERE repo_path = ?`
		args = append(args, filter.RepoPath)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.ReviewRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *SQLiteStore) DeleteRun(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM review_runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("run not found: %s", id)
	}
	return nil
}

// ListRunIssues returns a run's issues in the order they were reported.
func (s *SQLiteStore) ListRunIssues(ctx context.Context, runID string) ([]models.ValidatedIssue, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, file, line_start, line_end, category, severity, title, description, suggestion, code_snippet, confidence, source_agent, final_confidence, validation_status, rationale
		FROM run_issues WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("list run issues: %w", err)
	}
	defer rows.Close()

	var issues []models.ValidatedIssue
	for rows.Next() {
		var issue models.ValidatedIssue
		var category, severity, status string
		err := rows.Scan(&issue.ID, &issue.File, &issue.LineStart, &issue.LineEnd, &category,
			&severity, &issue.Title, &issue.Description, &issue.Suggestion, &issue.CodeSnippet,
			&issue.Confidence, &issue.SourceAgent, &issue.FinalConfidence, &status, &issue.Rationale)
		if err != nil {
			return nil, fmt.Errorf("scan run issue: %w", err)
		}
		issue.Category = models.IssueCategory(category)
		issue.Severity = models.IssueSeverity(severity)
		issue.Status = models.ValidationStatus(status)
		issues = append(issues, issue)
	}
	return issues, rows.Err()
}
