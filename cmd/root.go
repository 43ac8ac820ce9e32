package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/autocommit/internal/commitmsg"
	"github.com/joescharf/autocommit/internal/committer"
	"github.com/joescharf/autocommit/internal/git"
	"github.com/joescharf/autocommit/internal/hook"
	"github.com/joescharf/autocommit/internal/llm"
	"github.com/joescharf/autocommit/internal/output"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui *output.UI

	verbose bool
	dryRun  bool
	quiet   bool
)

// Replaceable in tests.
var (
	stdin         io.Reader = os.Stdin
	openRepo                = committer.OpenGit
	generatorFunc           = newGenerator
)

var rootCmd = &cobra.Command{
	Use:   "autocommit",
	Short: "Generate conventional commit messages and commit from Claude Code hooks",
	Long: `autocommit reads a Claude Code hook payload or a diff from stdin.

As a SessionStart hook (source clear or compact) it moves work off a
protected branch (main, master, develop) onto a session branch and commits
pending changes. As a PostToolUse hook for Write, Edit and MultiEdit it
commits the edited file. Given plain text it prints a generated commit
message and touches nothing:

  git diff --cached | autocommit -l English`,
	Args:              cobra.NoArgs,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runHook(cmd.Context(), stdin)
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without making changes")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Only print warnings and errors")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/autocommit/config.yaml)")
	rootCmd.PersistentFlags().StringP("language", "l", "", "Language for commit messages (default Japanese)")
	_ = viper.BindPFlag("language", rootCmd.PersistentFlags().Lookup("language"))
}

func initConfig() {
	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if dir, err := configDirFunc(); err == nil {
		viper.AddConfigPath(dir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("AUTOCOMMIT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	_ = viper.BindEnv("language", "AUTOCOMMIT_LANGUAGE", "CC_AUTO_COMMIT_LANGUAGE")

	setDefaults()

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

// setDefaults registers a default for every config key.
func setDefaults() {
	viper.SetDefault("language", "Japanese")
	viper.SetDefault("commit_config", "")
	viper.SetDefault("generator.backend", "auto")
	viper.SetDefault("generator.command", "claude")
	viper.SetDefault("generator.args", []string{"-p"})
	viper.SetDefault("generator.timeout", "25s")
	viper.SetDefault("anthropic.api_key", "")
	viper.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun
	ui.Quiet = quiet
}

// runHook handles `autocommit` with no subcommand: one hook payload or one
// standalone text on in, at most one branch and one commit.
func runHook(ctx context.Context, in io.Reader) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if os.Getenv(llm.RecursionEnv) != "" {
		ui.VerboseLog("%s is set, skipping nested invocation", llm.RecursionEnv)
		return nil
	}

	input, err := readInput(in)
	if err != nil {
		return err
	}

	ev, err := hook.Parse(input)
	if err != nil {
		ui.VerboseLog("Ignoring input: %v", err)
		return nil
	}

	gen := &lazyGenerator{build: generatorFunc}
	engine := committer.New(openRepo, gen, committer.Options{
		Language: viper.GetString("language"),
		Style:    loadStyle(hook.Cwd(ev)),
		DryRun:   dryRun,
	}, ui)

	res, err := engine.Handle(ctx, ev)
	if err == nil && res.Message != nil {
		if _, standalone := ev.(hook.Standalone); standalone {
			ui.Print(res.Message.String())
		}
	}
	return exitError(err)
}

// exitError maps engine errors to the process exit status. Events that were
// not meant for autocommit, and files that cannot be read, end quietly with
// status 0 so the hook host is not disturbed.
func exitError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, hook.ErrParse), errors.Is(err, git.ErrNotARepository):
		ui.VerboseLog("Nothing to do: %v", err)
		return nil
	case errors.Is(err, committer.ErrSourceRead):
		ui.Warning("Skipping commit: %v", err)
		return nil
	default:
		return err
	}
}

// readInput reads all of in. An interactive terminal is treated as empty
// input instead of waiting for EOF.
func readInput(in io.Reader) (string, error) {
	if f, ok := in.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		return "", committer.ErrEmptyInput
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(data), nil
}

// loadStyle resolves the commit-config: explicit commit_config, then
// <repo>/.autocommit.yaml, then <config dir>/commit-config.yaml. Problems
// fall back to the built-in style and are only reported in verbose mode.
func loadStyle(cwd string) commitmsg.Style {
	paths := []string{viper.GetString("commit_config")}
	if cwd == "" {
		cwd, _ = os.Getwd()
	}
	if repo, err := openRepo(cwd); err == nil {
		paths = append(paths, filepath.Join(repo.Root(), ".autocommit.yaml"))
	}
	if dir, err := configDirFunc(); err == nil {
		paths = append(paths, filepath.Join(dir, "commit-config.yaml"))
	}

	style, path, err := commitmsg.LoadStyle(paths...)
	switch {
	case err != nil:
		ui.VerboseLog("Using built-in commit config: %v", err)
	case path != "":
		ui.VerboseLog("Using commit config %s", path)
	}
	return style
}
