package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/cr/internal/agents"
	"github.com/joescharf/cr/internal/custom"
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List built-in and custom review agents",
	Long: `List the built-in specialist roles plus any custom agents defined
under the agents directory (default ~/.config/cr/agents.d).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return agentsRun()
	},
}

func init() {
	rootCmd.AddCommand(agentsCmd)
}

func agentsRun() error {
	table := ui.Table([]string{"Name", "Kind", "Trigger", "Description"})

	for _, sp := range agents.BuiltIn() {
		table.Append([]string{sp.Name, "built-in", "always", ""})
	}

	agentsDir := viper.GetString("agents_dir")
	defs, warnings, err := custom.Load(agentsDir)
	if err != nil {
		return err
	}
	for _, def := range defs {
		table.Append([]string{def.Name, "custom", string(def.Trigger.Kind), def.Description})
	}
	table.Render()

	for _, w := range warnings {
		ui.Warning("skipped %s: %v", w.File, w.Err)
	}
	if len(defs) == 0 {
		ui.Info("No custom agents in %s", agentsDir)
	}
	return nil
}
