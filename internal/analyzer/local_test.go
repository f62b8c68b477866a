package analyzer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/cr/internal/models"
)

func modify(path, content string) models.ChangeUnit {
	return models.ChangeUnit{Path: path, Type: models.ChangeTypeModify, Content: content}
}

func TestLocalDiffAnalyzer(t *testing.T) {
	local := NewLocalDiffAnalyzer()
	ctx := context.Background()

	t.Run("exported signature change is HIGH", func(t *testing.T) {
		unit := modify("api/server.go",
			"@@ -1,3 +1,3 @@\n"+
				"-func Serve(addr string) error {\n"+
				"+func Serve(addr string, tlsConfig *tls.Config) error {\n"+
				" \treturn nil\n")
		res, err := local.Analyze(ctx, []models.ChangeUnit{unit})
		require.NoError(t, err)
		require.Len(t, res.Changes, 1)

		ca := res.Changes[0]
		assert.Equal(t, models.RiskHigh, ca.RiskLevel)
		require.Len(t, ca.Hints.Functions, 1)
		assert.Equal(t, "Serve", ca.Hints.Functions[0].Name)
		assert.Equal(t, models.FunctionSignature, ca.Hints.Functions[0].Kind)
		assert.True(t, ca.Hints.Functions[0].Exported)
		assert.Contains(t, ca.Hints.Exports, "Serve")
	})

	t.Run("security pattern is HIGH", func(t *testing.T) {
		unit := modify("db/query.go",
			"@@ -10,2 +10,3 @@\n"+
				"+\trows, err := db.Query(\"SELECT * FROM users WHERE name = '\" + name + \"'\")\n"+
				" \t_ = rows\n")
		res, err := local.Analyze(ctx, []models.ChangeUnit{unit})
		require.NoError(t, err)
		assert.Equal(t, models.RiskHigh, res.Changes[0].RiskLevel)
	})

	t.Run("internal implementation change is MEDIUM", func(t *testing.T) {
		unit := modify("internal/math.go",
			"@@ -5,2 +5,2 @@\n"+
				"-\ttotal := a + a\n"+
				"+\ttotal := a * 2\n")
		res, err := local.Analyze(ctx, []models.ChangeUnit{unit})
		require.NoError(t, err)
		assert.Equal(t, models.RiskMedium, res.Changes[0].RiskLevel)
	})

	t.Run("comment-only change is LOW", func(t *testing.T) {
		unit := modify("doc.go",
			"@@ -1,2 +1,2 @@\n"+
				"-// Package doc is old.\n"+
				"+// Package doc is new.\n")
		res, err := local.Analyze(ctx, []models.ChangeUnit{unit})
		require.NoError(t, err)
		assert.Equal(t, models.RiskLow, res.Changes[0].RiskLevel)
	})

	t.Run("new unexported function is MEDIUM", func(t *testing.T) {
		unit := modify("internal/helper.go",
			"@@ -1,1 +1,4 @@\n"+
				"+func clamp(n, lo, hi int) int {\n"+
				"+\treturn n\n"+
				"+}\n")
		res, err := local.Analyze(ctx, []models.ChangeUnit{unit})
		require.NoError(t, err)

		ca := res.Changes[0]
		assert.Equal(t, models.RiskMedium, ca.RiskLevel)
		require.Len(t, ca.Hints.Functions, 1)
		assert.Equal(t, models.FunctionNew, ca.Hints.Functions[0].Kind)
		assert.False(t, ca.Hints.Functions[0].Exported)
		assert.Empty(t, ca.Hints.Exports)
	})

	t.Run("deleted exported function is HIGH", func(t *testing.T) {
		unit := modify("api/old.go",
			"@@ -1,3 +0,0 @@\n"+
				"-func Legacy() {\n"+
				"-\t// gone\n"+
				"-}\n")
		res, err := local.Analyze(ctx, []models.ChangeUnit{unit})
		require.NoError(t, err)
		assert.Equal(t, models.RiskHigh, res.Changes[0].RiskLevel)
		assert.Equal(t, models.FunctionDeleted, res.Changes[0].Hints.Functions[0].Kind)
	})

	t.Run("metadata counts all files analyzed", func(t *testing.T) {
		units := []models.ChangeUnit{
			modify("a.go", "+x := 1\n"),
			modify("b.go", "+y := 2\n"),
		}
		res, err := local.Analyze(ctx, units)
		require.NoError(t, err)

		m := res.Metadata
		assert.Equal(t, 2, m.TotalFiles)
		assert.Equal(t, 2, m.AnalyzedFiles)
		assert.Equal(t, 0, m.SkippedFiles)
		assert.Equal(t, m.TotalFiles, m.AnalyzedFiles+m.SkippedFiles)
	})

	t.Run("deterministic across runs", func(t *testing.T) {
		unit := modify("multi.go",
			"@@ -1,4 +1,4 @@\n"+
				"-func Alpha(a int) {\n"+
				"+func Alpha(a, b int) {\n"+
				"-func Beta() {\n"+
				"+func Beta(x string) {\n")
		first, err := local.Analyze(ctx, []models.ChangeUnit{unit})
		require.NoError(t, err)
		for range 5 {
			again, err := local.Analyze(ctx, []models.ChangeUnit{unit})
			require.NoError(t, err)
			assert.Equal(t, first.Changes, again.Changes)
		}
	})
}

func TestRiskFromSignals(t *testing.T) {
	assert.Equal(t, models.RiskHigh, RiskFromSignals(true, false, false))
	assert.Equal(t, models.RiskHigh, RiskFromSignals(false, true, true))
	assert.Equal(t, models.RiskMedium, RiskFromSignals(false, false, true))
	assert.Equal(t, models.RiskLow, RiskFromSignals(false, false, false))
}
