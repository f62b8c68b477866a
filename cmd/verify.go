package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/cr/internal/models"
	"github.com/joescharf/cr/internal/report"
	"github.com/joescharf/cr/internal/review"
	"github.com/joescharf/cr/internal/verify"
)

var (
	verifyPrevious string
	verifyRef      string
	verifyDiffFile string
)

var verifyCmd = &cobra.Command{
	Use:   "verify [path]",
	Short: "Check whether previously reported issues are fixed",
	Long: `Re-review the current diff and classify every issue from a previous
report file as fixed, still present, or regressed. Newly introduced
issues are listed separately.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repoPath := "."
		if len(args) == 1 {
			repoPath = args[0]
		}
		return verifyRun(cmd, repoPath)
	},
}

func init() {
	verifyCmd.Flags().StringVar(&verifyPrevious, "previous", "", "Path to the JSON report from the earlier review (required)")
	verifyCmd.Flags().StringVar(&verifyRef, "ref", "", "Commit or range to diff (default: uncommitted changes)")
	verifyCmd.Flags().StringVar(&verifyDiffFile, "diff-file", "", "Read the diff from a file instead of git (\"-\" for stdin)")
	_ = verifyCmd.MarkFlagRequired("previous")
	rootCmd.AddCommand(verifyCmd)
}

func verifyRun(cmd *cobra.Command, repoPath string) error {
	repoPath, err := filepath.Abs(repoPath)
	if err != nil {
		return err
	}

	prev, err := verify.LoadPreviousReview(verifyPrevious)
	if err != nil {
		return err
	}

	diffText, err := loadDiff(repoPath, verifyRef, verifyDiffFile)
	if err != nil {
		return err
	}

	provider := newProvider()
	if provider == nil {
		return fmt.Errorf("no Anthropic API key configured; set anthropic.api_key, CR_ANTHROPIC_API_KEY, or ANTHROPIC_API_KEY")
	}

	runner := newRunner(provider)
	rep, err := runner.Run(cmd.Context(), review.Options{
		RepoPath:  repoPath,
		GitRef:    verifyRef,
		DiffText:  diffText,
		AgentsDir: viper.GetString("agents_dir"),
	})
	if err != nil {
		return err
	}

	results, err := verify.Verify(prev, rep.Issues)
	if err != nil {
		return err
	}

	report.RenderVerification(ui, prev, results, verify.NewIssues(prev, rep.Issues))

	for _, res := range results {
		if res.Status == models.FixStatusRegressed {
			return fmt.Errorf("previously reported issues regressed")
		}
	}
	return nil
}
