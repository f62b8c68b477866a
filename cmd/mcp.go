package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/cr/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for assistant integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets coding assistants request reviews of diffs directly.
Configure with:

  {
    "mcpServers": {
      "cr": { "command": "cr", "args": ["mcp"] }
    }
  }

Available tools: cr_review_diff, cr_verify_fixes, cr_list_agents,
cr_review_history`,
	RunE: func(cmd *cobra.Command, args []string) error {
		provider := newProvider()
		runner := newRunner(provider)

		srv := mcp.NewServer(runner, runner.Store, viper.GetString("agents_dir"))
		ui.VerboseLog("MCP server listening on stdio")
		return srv.ServeStdio(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
