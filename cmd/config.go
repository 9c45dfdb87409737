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
)

var configForce bool

// configDirFunc returns the config directory path, replaceable in tests.
var configDirFunc = defaultConfigDir

func defaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "revgate"), nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Show or manage revgate configuration.

Values come from ~/.config/revgate/config.yaml, then <repo>/.revgate.yaml,
then REVGATE_* environment variables.

Running bare 'revgate config' is the same as 'revgate config show'.`,
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
const configTemplate = `# revgate configuration
# See: revgate config show (for effective values and sources)
# A repository may override any key in <repo>/.revgate.yaml.

# State directory (default: ~/.config/revgate)
# state_dir: {{ .StateDir }}

# SQLite audit database (default: ~/.config/revgate/revgate.db)
# db_path: {{ .DBPath }}

audit:
  # Record gate decisions, plan rounds and review runs (default: true)
  enabled: {{ .AuditEnabled }}

log:
  # Structured log file; empty disables logging
  file: "{{ .LogFile }}"
  level: "{{ .LogLevel }}"

markers:
  # Marker directory, relative to the main repository root
  dir: "{{ .MarkersDir }}"

gate:
  # Branches whose pushes are never gated
  protected_branches: [{{ join .ProtectedBranches }}]
  # Review kind required before push and PR actions
  primary_kind: "{{ .PrimaryKind }}"
  # Review kind accepted while the primary reviewer is rate-limited
  fallback_kind: "{{ .FallbackKind }}"
  # Review cycles after which medium findings stop blocking
  cycle_ceiling: {{ .CycleCeiling }}
  rate_limit_ttl: "{{ .RateLimitTTL }}"
  blocking_severities: [{{ join .BlockingSeverities }}]
  # Review kind required when a PR or push touches migration files
  migration_kind: "{{ .MigrationKind }}"
  migration_globs: [{{ join .MigrationGlobs }}]
  # Dotenv file read for bypass variables (process env wins)
  dotenv: "{{ .Dotenv }}"

review:
  # Diffs larger than this are truncated in the reviewer prompt
  max_diff_bytes: {{ .MaxDiffBytes }}

plan_review:
  max_iterations: {{ .PlanMaxIterations }}
  timeout: "{{ .PlanTimeout }}"
  reviewer_timeout: "{{ .PlanReviewerTimeout }}"
  reviewers: [{{ join .PlanReviewers }}]

# Reviewer commands. The prompt is written to stdin.
# reviewers:
#   codex:
#     command: codex
#     args: ["exec", "-"]
#   gemini:
#     command: gemini
`

type configTemplateData struct {
	StateDir            string
	DBPath              string
	AuditEnabled        bool
	LogFile             string
	LogLevel            string
	MarkersDir          string
	ProtectedBranches   []string
	PrimaryKind         string
	FallbackKind        string
	CycleCeiling        int
	RateLimitTTL        string
	BlockingSeverities  []string
	MigrationKind       string
	MigrationGlobs      []string
	Dotenv              string
	MaxDiffBytes        int
	PlanMaxIterations   int
	PlanTimeout         string
	PlanReviewerTimeout string
	PlanReviewers       []string
}

var configFuncs = template.FuncMap{
	"join": func(values []string) string {
		quoted := make([]string, len(values))
		for i, v := range values {
			quoted[i] = fmt.Sprintf("%q", v)
		}
		return strings.Join(quoted, ", ")
	},
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

	// Build template data from current viper values
	data := configTemplateData{
		StateDir:            viper.GetString("state_dir"),
		DBPath:              viper.GetString("db_path"),
		AuditEnabled:        viper.GetBool("audit.enabled"),
		LogFile:             viper.GetString("log.file"),
		LogLevel:            viper.GetString("log.level"),
		MarkersDir:          viper.GetString("markers.dir"),
		ProtectedBranches:   viper.GetStringSlice("gate.protected_branches"),
		PrimaryKind:         viper.GetString("gate.primary_kind"),
		FallbackKind:        viper.GetString("gate.fallback_kind"),
		CycleCeiling:        viper.GetInt("gate.cycle_ceiling"),
		RateLimitTTL:        viper.GetString("gate.rate_limit_ttl"),
		BlockingSeverities:  viper.GetStringSlice("gate.blocking_severities"),
		MigrationKind:       viper.GetString("gate.migration_kind"),
		MigrationGlobs:      viper.GetStringSlice("gate.migration_globs"),
		Dotenv:              viper.GetString("gate.dotenv"),
		MaxDiffBytes:        viper.GetInt("review.max_diff_bytes"),
		PlanMaxIterations:   viper.GetInt("plan_review.max_iterations"),
		PlanTimeout:         viper.GetString("plan_review.timeout"),
		PlanReviewerTimeout: viper.GetString("plan_review.reviewer_timeout"),
		PlanReviewers:       viper.GetStringSlice("plan_review.reviewers"),
	}

	tmpl, err := template.New("config").Funcs(configFuncs).Parse(configTemplate)
	if err != nil {
		return fmt.Errorf("template parse error: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("template execute error: %w", err)
	}

	if dryRun {
		ui.DryRunMsg("Would create config file: %s", cfgPath)
		fmt.Fprintln(ui.Out)
		fmt.Fprint(ui.Out, buf.String())
		return nil
	}

	// Create config directory
	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(cfgPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	ui.Success("Config file created: %s", cfgPath)
	fmt.Fprintln(ui.Out)
	fmt.Fprint(ui.Out, buf.String())
	return nil
}

// configKeyInfo describes a config key for display purposes.
type configKeyInfo struct {
	Key    string
	EnvVar string
}

var configKeys = envKeys(
	"state_dir",
	"db_path",
	"audit.enabled",
	"log.file",
	"log.level",
	"markers.dir",
	"gate.protected_branches",
	"gate.primary_kind",
	"gate.fallback_kind",
	"gate.cycle_ceiling",
	"gate.rate_limit_ttl",
	"gate.blocking_severities",
	"gate.migration_kind",
	"gate.migration_globs",
	"gate.dotenv",
	"review.max_diff_bytes",
	"plan_review.max_iterations",
	"plan_review.timeout",
	"plan_review.reviewer_timeout",
	"plan_review.reviewers",
)

// envKeys pairs each key with the REVGATE_* variable viper binds it to.
func envKeys(keys ...string) []configKeyInfo {
	infos := make([]configKeyInfo, len(keys))
	for i, k := range keys {
		infos[i] = configKeyInfo{Key: k, EnvVar: "REVGATE_" + strings.ToUpper(strings.ReplaceAll(k, ".", "_"))}
	}
	return infos
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
	fmt.Fprintln(ui.Out)

	// Read config file values to determine file source
	fileValues := readConfigFileValues(cfgPath)

	for _, k := range configKeys {
		val := viper.Get(k.Key)
		source := detectSource(k.Key, k.EnvVar, fileValues)
		fmt.Fprintf(ui.Out, "  %-30s %v  %s\n", k.Key, val, source)
	}

	return nil
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

// detectSource determines where a config value is coming from.
func detectSource(key, envVar string, fileValues map[string]bool) string {
	if _, ok := os.LookupEnv(envVar); ok {
		return fmt.Sprintf("(env: %s)", envVar)
	}
	if fileValues[key] {
		return "(file)"
	}
	return "(default)"
}

func configEditRun() error {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		return fmt.Errorf("$EDITOR is not set; set it to your preferred editor (e.g. export EDITOR=vim)")
	}

	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s (run 'revgate config init' first)", cfgPath)
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
