package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/cr/internal/git"
	"github.com/joescharf/cr/internal/report"
	"github.com/joescharf/cr/internal/review"
)

var (
	reviewRef      string
	reviewDiffFile string
	reviewOffline  bool
	reviewOut      string
)

var reviewCmd = &cobra.Command{
	Use:   "review [path]",
	Short: "Review the diff of a repository",
	Long: `Review a git diff with the full pipeline: risk analysis, specialist
agents, evidence grounding, and deduplication.

By default the uncommitted changes of the repository at [path] (or the
current directory) are reviewed. Use --ref for a commit or range, or
--diff-file to review a saved diff (use "-" for stdin).`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repoPath := "."
		if len(args) == 1 {
			repoPath = args[0]
		}
		return reviewRun(cmd, repoPath)
	},
}

func init() {
	reviewCmd.Flags().StringVar(&reviewRef, "ref", "", "Commit or range to diff (default: uncommitted changes)")
	reviewCmd.Flags().StringVar(&reviewDiffFile, "diff-file", "", "Read the diff from a file instead of git (\"-\" for stdin)")
	reviewCmd.Flags().BoolVar(&reviewOffline, "offline", false, "Heuristic analysis only, no model calls")
	reviewCmd.Flags().StringVarP(&reviewOut, "output", "o", "", "Write the JSON report to this path")
	rootCmd.AddCommand(reviewCmd)
}

// loadDiff resolves the diff text: an explicit file, stdin, or git.
func loadDiff(repoPath, ref, diffFile string) (string, error) {
	switch {
	case diffFile == "-":
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("read diff from stdin: %w", err)
		}
		return string(data), nil
	case diffFile != "":
		data, err := os.ReadFile(diffFile)
		if err != nil {
			return "", fmt.Errorf("read diff file: %w", err)
		}
		return string(data), nil
	default:
		return git.NewClient().Diff(repoPath, ref)
	}
}

func reviewRun(cmd *cobra.Command, repoPath string) error {
	repoPath, err := filepath.Abs(repoPath)
	if err != nil {
		return err
	}

	diffText, err := loadDiff(repoPath, reviewRef, reviewDiffFile)
	if err != nil {
		return err
	}

	provider := newProvider()
	if provider == nil && !reviewOffline {
		return fmt.Errorf("no Anthropic API key configured; set anthropic.api_key, CR_ANTHROPIC_API_KEY, or ANTHROPIC_API_KEY, or pass --offline")
	}

	runner := newRunner(provider)
	rep, err := runner.Run(cmd.Context(), review.Options{
		RepoPath:  repoPath,
		GitRef:    reviewRef,
		DiffText:  diffText,
		AgentsDir: viper.GetString("agents_dir"),
		Offline:   reviewOffline,
	})
	if err != nil {
		return err
	}

	report.Render(ui, rep)

	if reviewOut != "" {
		if err := report.Write(rep, reviewOut); err != nil {
			return err
		}
		ui.Success("Report written to %s", reviewOut)
	}
	return nil
}
