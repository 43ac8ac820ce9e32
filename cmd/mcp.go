package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/autocommit/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for Claude Code integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets Claude Code ask autocommit for a commit message or inspect the
repository without committing. Configure in Claude Code with:

  {
    "mcpServers": {
      "autocommit": { "command": "autocommit", "args": ["mcp"] }
    }
  }

Available tools: autocommit_generate_message, autocommit_repo_status,
autocommit_repo_diff`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		gen, err := generatorFunc()
		if err != nil {
			return err
		}
		srv := mcp.NewServer(openRepo, gen, loadStyle(""), viper.GetString("language"), buildVersion)
		return srv.ServeStdio(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
