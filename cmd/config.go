package cmd

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/joescharf/autocommit/internal/output"
)

var configForce bool

// configDirFunc returns the config directory path, replaceable in tests.
var configDirFunc = defaultConfigDir

func defaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "autocommit"), nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Show or manage autocommit configuration.

Running bare 'autocommit config' is the same as 'autocommit config show'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config file with commented defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configInitRun()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration with sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open config file in $EDITOR",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configEditRun()
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite existing config file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	rootCmd.AddCommand(configCmd)
}

// configTemplate is the template for generating config.yaml with comments.
const configTemplate = `# autocommit configuration
# See: autocommit config show (for effective values and sources)

# Language for commit message descriptions and bodies.
# The --language flag and AUTOCOMMIT_LANGUAGE override this.
language: "{{ .Language }}"

# Commit message rules (types, scopes, subject length). When empty,
# <repo>/.autocommit.yaml and then {{ .ConfigDir }}/commit-config.yaml are used.
commit_config: "{{ .CommitConfig }}"

generator:
  # auto: Anthropic API when a key is set, otherwise the command below
  # anthropic: Anthropic API only
  # command: external CLI only
  backend: "{{ .Backend }}"

  # External CLI; the prompt is passed as the last argument
  command: "{{ .Command }}"
  args: [{{ .Args }}]

  # Upper bound for one generation
  timeout: "{{ .Timeout }}"

anthropic:
  # Prefer the ANTHROPIC_API_KEY environment variable over storing a key here
  # api_key: ""
  model: "{{ .Model }}"
`

type configTemplateData struct {
	Language     string
	CommitConfig string
	ConfigDir    string
	Backend      string
	Command      string
	Args         string
	Timeout      string
	Model        string
}

func configFilePath() (string, error) {
	dir, err := configDirFunc()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func configInitRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if file already exists
	if _, err := os.Stat(cfgPath); err == nil {
		if !configForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", cfgPath)
		}
		ui.Warning("Overwriting existing config file")
	}

	args := viper.GetStringSlice("generator.args")
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = fmt.Sprintf("%q", a)
	}

	// Build template data from current viper values
	data := configTemplateData{
		Language:     viper.GetString("language"),
		CommitConfig: viper.GetString("commit_config"),
		ConfigDir:    filepath.Dir(cfgPath),
		Backend:      viper.GetString("generator.backend"),
		Command:      viper.GetString("generator.command"),
		Args:         strings.Join(quoted, ", "),
		Timeout:      viper.GetDuration("generator.timeout").String(),
		Model:        viper.GetString("anthropic.model"),
	}

	tmpl, err := template.New("config").Parse(configTemplate)
	if err != nil {
		return fmt.Errorf("template parse error: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("template execute error: %w", err)
	}

	if dryRun {
		ui.DryRunMsg("Would create config file: %s", cfgPath)
		fmt.Fprint(ui.Out, buf.String())
		return nil
	}

	// Create config directory
	if err := os.MkdirAll(filepath.Dir(cfgPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(cfgPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	ui.Success("Config file created: %s", cfgPath)
	fmt.Fprint(ui.Out, buf.String())
	return nil
}

// configKeyInfo describes a config key for display purposes.
type configKeyInfo struct {
	Key     string
	EnvVars []string
	Secret  bool
}

var configKeys = []configKeyInfo{
	{Key: "language", EnvVars: []string{"AUTOCOMMIT_LANGUAGE", "CC_AUTO_COMMIT_LANGUAGE"}},
	{Key: "commit_config", EnvVars: []string{"AUTOCOMMIT_COMMIT_CONFIG"}},
	{Key: "generator.backend", EnvVars: []string{"AUTOCOMMIT_GENERATOR_BACKEND"}},
	{Key: "generator.command", EnvVars: []string{"AUTOCOMMIT_GENERATOR_COMMAND"}},
	{Key: "generator.args", EnvVars: []string{"AUTOCOMMIT_GENERATOR_ARGS"}},
	{Key: "generator.timeout", EnvVars: []string{"AUTOCOMMIT_GENERATOR_TIMEOUT"}},
	{Key: "anthropic.api_key", EnvVars: []string{"AUTOCOMMIT_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY"}, Secret: true},
	{Key: "anthropic.model", EnvVars: []string{"AUTOCOMMIT_ANTHROPIC_MODEL"}},
}

func configShowRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if config file exists
	if _, err := os.Stat(cfgPath); err == nil {
		ui.Info("Config file: %s", cfgPath)
	} else {
		ui.Info("Config file: (none)")
	}

	// Read config file values to determine file source
	fileValues := readConfigFileValues(cfgPath)

	table := ui.Table([]string{"KEY", "VALUE", "SOURCE"})
	for _, k := range configKeys {
		val := fmt.Sprint(viper.Get(k.Key))
		source, envVar := detectSource(k.Key, k.EnvVars, fileValues)
		if k.Key == "anthropic.api_key" && val == "" {
			val = os.Getenv("ANTHROPIC_API_KEY")
		}
		if k.Secret {
			val = maskSecret(val)
		}
		label := output.SourceColor(source)
		if envVar != "" {
			label += " (" + envVar + ")"
		}
		_ = table.Append([]string{k.Key, val, label})
	}
	return table.Render()
}

// readConfigFileValues reads the raw YAML file and returns a flat map of keys present in it.
func readConfigFileValues(path string) map[string]bool {
	result := make(map[string]bool)

	data, err := os.ReadFile(path)
	if err != nil {
		return result
	}

	var parsed map[string]any
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return result
	}

	// Flatten nested keys with dot notation
	flattenKeys("", parsed, result)
	return result
}

// flattenKeys recursively flattens a nested map to dot-notation keys.
func flattenKeys(prefix string, m map[string]any, result map[string]bool) {
	for key, val := range m {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok {
			flattenKeys(fullKey, nested, result)
		} else {
			result[fullKey] = true
		}
	}
}

// detectSource determines where a config value is coming from: "env" (with
// the variable that supplied it), "file" or "default".
func detectSource(key string, envVars []string, fileValues map[string]bool) (string, string) {
	for _, envVar := range envVars {
		if _, ok := os.LookupEnv(envVar); ok {
			return "env", envVar
		}
	}
	if fileValues[key] {
		return "file", ""
	}
	return "default", ""
}

func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

func configEditRun() error {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		return fmt.Errorf("$EDITOR is not set, set it to your preferred editor (e.g. export EDITOR=vim)")
	}

	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s (run 'autocommit config init' first)", cfgPath)
	}

	if dryRun {
		ui.DryRunMsg("Would open %s in %s", cfgPath, editor)
		return nil
	}

	editCmd := exec.Command(editor, cfgPath)
	editCmd.Stdin = os.Stdin
	editCmd.Stdout = os.Stdout
	editCmd.Stderr = os.Stderr
	return editCmd.Run()
}
