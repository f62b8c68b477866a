package review

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/cr/internal/llm"
	"github.com/joescharf/cr/internal/models"
	"github.com/joescharf/cr/internal/output"
	"github.com/joescharf/cr/internal/store"
)

// fakeProvider replies based on which pipeline stage the system prompt
// belongs to. Unknown prompts get an empty findings array.
type fakeProvider struct {
	mu      sync.Mutex
	calls   []string
	replies map[string]string // system-prompt substring -> reply
	failOn  string            // system-prompt substring that errors
}

func (f *fakeProvider) reply(system string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, system)
	f.mu.Unlock()
	if f.failOn != "" && strings.Contains(system, f.failOn) {
		return "", errors.New("synthetic agent failure")
	}
	for key, text := range f.replies {
		if strings.Contains(system, key) {
			return text, nil
		}
	}
	return "[]", nil
}

func (f *fakeProvider) Chat(ctx context.Context, system, user string) (string, error) {
	return f.reply(system)
}

func (f *fakeProvider) ChatJSON(ctx context.Context, system, user string, out any) error {
	text, err := f.reply(system)
	if err != nil {
		return err
	}
	return llm.DecodeJSON(text, out)
}

func (f *fakeProvider) ChatWithUsage(ctx context.Context, system, user string) (string, llm.Usage, error) {
	text, err := f.reply(system)
	return text, llm.Usage{InputTokens: 10, OutputTokens: 5}, err
}

func (f *fakeProvider) TestConnection(ctx context.Context) bool { return true }

const loginDiff = `diff --git a/auth/login.go b/auth/login.go
index 1111111..2222222 100644
--- a/auth/login.go
+++ b/auth/login.go
@@ -1,3 +1,4 @@
 package auth

+func Login(password string) { log.Println(password) }
 var version = 1
`

const addedLine = `func Login(password string) { log.Println(password) }`

// pipelineProvider wires all three stages to canned replies: one HIGH-risk
// analysis, one security finding, and exact evidence for it.
func pipelineProvider() *fakeProvider {
	return &fakeProvider{
		replies: map[string]string{
			"You analyze git diffs": `[
				{"file_path": "auth/login.go", "risk_level": "HIGH",
				 "semantic_hints": {"summary": "adds Login which logs the password"}}
			]`,
			"Focus exclusively on security": `[
				{"file": "auth/login.go", "line_start": 3, "line_end": 3,
				 "category": "security", "severity": "critical",
				 "title": "password logged in plaintext",
				 "description": "Login writes the raw password to the log.",
				 "confidence": 0.9}
			]`,
			"Justify it with concrete evidence": `{
				"lines": [{"number": 3, "text": "` + addedLine + `"}]
			}`,
		},
	}
}

func newRunner(p llm.Provider) *Runner {
	return &Runner{
		Provider: p,
		UI:       &output.UI{Out: &bytes.Buffer{}, ErrOut: &bytes.Buffer{}},
	}
}

func TestRunnerFullPipeline(t *testing.T) {
	provider := pipelineProvider()
	r := newRunner(provider)

	rep, err := r.Run(context.Background(), Options{
		RepoPath: "/tmp/repo",
		GitRef:   "main",
		DiffText: loginDiff,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, rep.RunID)
	assert.Equal(t, "main", rep.GitRef)

	t.Run("analysis metadata covers every file", func(t *testing.T) {
		assert.Equal(t, 1, rep.Metadata.TotalFiles)
		assert.Equal(t, 1, rep.Metadata.AnalyzedFiles)
		assert.Equal(t, 0, rep.Metadata.SkippedFiles)
		assert.Equal(t, 15, rep.Metadata.TotalTokens)
	})

	t.Run("per-file analyses carried into the report", func(t *testing.T) {
		require.Len(t, rep.Analyses, 1)
		assert.Equal(t, models.RiskHigh, rep.Analyses[0].RiskLevel)
	})

	t.Run("security finding survives grounding", func(t *testing.T) {
		require.Len(t, rep.Issues, 1)
		issue := rep.Issues[0]
		assert.Equal(t, "auth/login.go", issue.File)
		assert.Equal(t, models.CategorySecurity, issue.Category)
		assert.Equal(t, models.StatusGrounded, issue.Status)
		assert.Equal(t, "security", issue.SourceAgent)
		assert.InDelta(t, 0.9, issue.FinalConfidence, 1e-9)
	})
}

func TestRunnerPersistsHistory(t *testing.T) {
	db, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "cr.db"))
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Migrate(context.Background()))

	r := newRunner(pipelineProvider())
	r.Store = db

	rep, err := r.Run(context.Background(), Options{
		RepoPath: "/tmp/repo",
		GitRef:   "main",
		DiffText: loginDiff,
	})
	require.NoError(t, err)

	run, err := db.LatestRun(context.Background(), "/tmp/repo")
	require.NoError(t, err)
	assert.Equal(t, rep.RunID, run.ID)
	assert.Equal(t, 1, run.TotalFiles)
	assert.Equal(t, 1, run.IssueCount)
	assert.Equal(t, 1, run.HighRisk)

	issues, err := db.ListRunIssues(context.Background(), run.ID)
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, "password logged in plaintext", issues[0].Title)
}

func TestRunnerFailedAgentDegradesOnly(t *testing.T) {
	provider := pipelineProvider()
	provider.failOn = "Focus exclusively on correctness"
	r := newRunner(provider)

	rep, err := r.Run(context.Background(), Options{
		RepoPath: "/tmp/repo",
		DiffText: loginDiff,
	})
	require.NoError(t, err, "one failing agent must not abort the review")
	require.Len(t, rep.Issues, 1)
	assert.Equal(t, "security", rep.Issues[0].SourceAgent)
}

func TestRunnerLogsEveryCustomAgentDecision(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	write("auth.yaml", `name: auth-reviewer
description: Checks authentication changes
focus: Focus on authentication and session handling.
trigger:
  kind: rule
  paths:
    - "auth/"
`)
	write("migrations.yaml", `name: migration-reviewer
description: Checks schema migrations
focus: Focus on reversibility of schema migrations.
trigger:
  kind: rule
  paths:
    - "db/"
`)

	buf := &bytes.Buffer{}
	r := newRunner(pipelineProvider())
	r.UI = &output.UI{Verbose: true, Out: buf, ErrOut: buf}

	_, err := r.Run(context.Background(), Options{
		RepoPath:  "/tmp/repo",
		DiffText:  loginDiff,
		AgentsDir: dir,
	})
	require.NoError(t, err)

	logs := buf.String()
	assert.Contains(t, logs, "custom agent auth-reviewer triggered")
	assert.Contains(t, logs, "custom agent migration-reviewer skipped")
}

func TestRunnerOffline(t *testing.T) {
	r := &Runner{UI: &output.UI{Out: &bytes.Buffer{}, ErrOut: &bytes.Buffer{}}}

	rep, err := r.Run(context.Background(), Options{
		RepoPath: "/tmp/repo",
		DiffText: loginDiff,
		Offline:  true,
	})
	require.NoError(t, err, "offline runs need no provider")

	assert.Empty(t, rep.Issues, "offline runs report analysis only")
	require.Len(t, rep.Analyses, 1)
	assert.Equal(t, 1, rep.Metadata.AnalyzedFiles)
}

func TestRunnerRequiresProviderOnline(t *testing.T) {
	r := &Runner{UI: &output.UI{Out: &bytes.Buffer{}, ErrOut: &bytes.Buffer{}}}

	_, err := r.Run(context.Background(), Options{DiffText: loginDiff})
	assert.Error(t, err)
}

func TestRunnerEmptyDiff(t *testing.T) {
	r := newRunner(pipelineProvider())

	rep, err := r.Run(context.Background(), Options{RepoPath: "/tmp/repo", DiffText: ""})
	require.NoError(t, err)
	assert.Empty(t, rep.Issues)
	assert.Equal(t, 0, rep.Metadata.TotalFiles)
}
