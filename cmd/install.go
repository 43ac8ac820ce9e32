package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/joescharf/autocommit/internal/settings"
)

var (
	installProject  bool
	installSettings string
	installCommand  string
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Register autocommit hooks in Claude Code settings",
	Long: `Add autocommit to the SessionStart (clear|compact) and PostToolUse
(Write|Edit|MultiEdit) hooks of a Claude Code settings.json.

Existing settings and hooks are kept. Running install twice does not add
the command twice.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return installRun()
	},
}

func init() {
	installCmd.Flags().BoolVar(&installProject, "project", false, "Install into ./.claude/settings.json instead of ~/.claude/settings.json")
	installCmd.Flags().StringVar(&installSettings, "settings", "", "Path to settings.json (overrides --project)")
	installCmd.Flags().StringVar(&installCommand, "command", "autocommit", "Hook command to register")
	rootCmd.AddCommand(installCmd)
}

func installPath() (string, error) {
	switch {
	case installSettings != "":
		return installSettings, nil
	case installProject:
		wd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		return settings.ProjectPath(wd), nil
	default:
		return settings.UserPath()
	}
}

func installRun() error {
	path, err := installPath()
	if err != nil {
		return fmt.Errorf("resolve settings path: %w", err)
	}

	var changes []settings.Change
	if dryRun {
		data, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("read %s: %w", path, err)
		}
		var out []byte
		out, changes, err = settings.Install(data, installCommand)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		ui.DryRunMsg("Would write %s", path)
		fmt.Fprintln(ui.Out, string(out))
	} else {
		changes, err = settings.InstallFile(path, installCommand)
		if err != nil {
			return err
		}
	}

	table := ui.Table([]string{"EVENT", "MATCHER", "STATUS"})
	added := 0
	for _, c := range changes {
		status := "already installed"
		if c.Added {
			status = "added"
			added++
		}
		_ = table.Append([]string{c.Event, c.Matcher, status})
	}
	if err := table.Render(); err != nil {
		return err
	}

	if added == 0 {
		ui.Info("%s already runs %q", path, installCommand)
	} else if !dryRun {
		ui.Success("Installed %d hook(s) in %s", added, path)
	}
	return nil
}
