package cmd

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/joescharf/cr/internal/output"
	"github.com/joescharf/cr/internal/store"
)

var (
	historyLimit    int
	historyRepoPath string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past review runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		return historyListRun(cmd)
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show the issues recorded for one run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return historyShowRun(cmd, args[0])
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 10, "Maximum number of runs to list")
	historyCmd.Flags().StringVar(&historyRepoPath, "repo", "", "Filter runs to one repository path")
	historyCmd.AddCommand(historyShowCmd)
	rootCmd.AddCommand(historyCmd)
}

func historyListRun(cmd *cobra.Command) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	repo := historyRepoPath
	if repo != "" {
		if repo, err = filepath.Abs(repo); err != nil {
			return err
		}
	}

	runs, err := s.ListRuns(cmd.Context(), store.RunListFilter{RepoPath: repo, Limit: historyLimit})
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		ui.Info("No review runs recorded")
		return nil
	}

	table := ui.Table([]string{"Run", "When", "Repo", "Ref", "Files", "Issues", "High Risk"})
	for _, run := range runs {
		table.Append([]string{
			run.ID,
			run.CreatedAt.Local().Format(time.DateTime),
			run.RepoPath,
			run.GitRef,
			fmt.Sprintf("%d", run.TotalFiles),
			fmt.Sprintf("%d", run.IssueCount),
			fmt.Sprintf("%d", run.HighRisk),
		})
	}
	table.Render()
	return nil
}

func historyShowRun(cmd *cobra.Command, runID string) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	run, err := s.GetRun(cmd.Context(), runID)
	if err != nil {
		return err
	}
	issues, err := s.ListRunIssues(cmd.Context(), run.ID)
	if err != nil {
		return err
	}

	ui.Info("Run %s reviewed %s at %s", run.ID, run.RepoPath, run.CreatedAt.Local().Format(time.DateTime))
	if len(issues) == 0 {
		ui.Success("No issues recorded")
		return nil
	}

	table := ui.Table([]string{"File", "Lines", "Severity", "Category", "Conf", "Title"})
	for _, issue := range issues {
		table.Append([]string{
			issue.File,
			fmt.Sprintf("%d-%d", issue.LineStart, issue.LineEnd),
			output.SeverityColor(issue.Severity),
			string(issue.Category),
			output.ConfidenceColor(issue.FinalConfidence),
			issue.Title,
		})
	}
	table.Render()
	return nil
}
