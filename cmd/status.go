package cmd

import (
	"github.com/spf13/cobra"

	"github.com/joescharf/autocommit/internal/committer"
	"github.com/joescharf/autocommit/internal/git"
	"github.com/joescharf/autocommit/internal/output"
)

var statusCmd = &cobra.Command{
	Use:   "status [path]",
	Short: "Show what autocommit would do in a repository",
	Long: `Show the current branch, whether it is protected, and the pending
changes that the next SessionStart (clear|compact) hook would commit.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := "."
		if len(args) == 1 {
			dir = args[0]
		}
		return statusRun(dir)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func statusRun(dir string) error {
	repo, err := git.Open(dir)
	if err != nil {
		return err
	}

	branch, err := repo.CurrentBranch()
	if err != nil {
		return err
	}
	changes, err := repo.Changes()
	if err != nil {
		return err
	}

	ui.Info("Repository: %s", repo.Root())
	if committer.IsProtected(branch) {
		ui.Info("Branch: %s (%s, a cleared session moves work to session-<timestamp>-<id>)", output.Cyan(branch), output.Yellow("protected"))
	} else {
		ui.Info("Branch: %s", output.Cyan(branch))
	}

	if len(changes) == 0 {
		ui.Info("No pending changes")
		return nil
	}

	table := ui.Table([]string{"Path", "Staged", "Worktree"})
	for _, c := range changes {
		_ = table.Append([]string{
			c.Path,
			statusLabel(c.Staging),
			statusLabel(c.Worktree),
		})
	}
	return table.Render()
}

func statusLabel(code string) string {
	switch code {
	case "M":
		return output.Yellow("modified")
	case "A":
		return output.Green("added")
	case "D":
		return output.Red("deleted")
	case "R":
		return output.Yellow("renamed")
	case "?":
		return "untracked"
	case " ", "":
		return ""
	default:
		return code
	}
}
