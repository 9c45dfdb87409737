package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/joescharf/revgate/internal/logging"
	"github.com/joescharf/revgate/internal/output"
	"github.com/joescharf/revgate/internal/store"
)

// Exit codes. ExitBlock is reserved for gate blocks so the host can tell
// them apart from errors.
const (
	ExitSuccess = 0
	ExitError   = 1
	ExitBlock   = 2
)

// exitCode is set by command handlers to control the process exit code.
var exitCode = ExitSuccess

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	logger    = zap.NewNop()
	dataStore store.Store

	verbose bool
	dryRun  bool
	workDir string
)

var rootCmd = &cobra.Command{
	Use:   "revgate",
	Short: "Review gate - require a current code review before push, PR and plan approval",
	Long: `revgate gates risky git actions behind proof that an automated review
covers the current content of a branch, and drives a bounded multi-reviewer
convergence loop before a design plan may leave planning mode.

Hosts call 'revgate check' with a tool-call payload on stdin; it exits 2
when the action is blocked.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	closeDeps()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitError)
	}
	os.Exit(exitCode)
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without writing markers or state")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/revgate/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&workDir, "dir", "", "Working directory (default current directory)")
}

func initConfig() {
	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(ExitError)
		}

		configDir := filepath.Join(home, ".config", "revgate")
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("REVGATE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	home, _ := os.UserHomeDir()
	setDefaults(filepath.Join(home, ".config", "revgate"))

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()

	mergeProjectConfig()
}

// setDefaults registers every config key with its default value.
func setDefaults(stateDir string) {
	viper.SetDefault("state_dir", stateDir)
	viper.SetDefault("db_path", filepath.Join(stateDir, "revgate.db"))
	viper.SetDefault("audit.enabled", true)
	viper.SetDefault("log.file", filepath.Join(stateDir, "revgate.log"))
	viper.SetDefault("log.level", "info")

	viper.SetDefault("markers.dir", ".claude/markers")
	viper.SetDefault("gate.protected_branches", []string{"main", "master"})
	viper.SetDefault("gate.primary_kind", "codex")
	viper.SetDefault("gate.fallback_kind", "gemini")
	viper.SetDefault("gate.cycle_ceiling", 3)
	viper.SetDefault("gate.rate_limit_ttl", "1h")
	viper.SetDefault("gate.blocking_severities", []string{"critical", "high", "medium"})
	viper.SetDefault("gate.truthy_values", []string{"1", "true", "True"})
	viper.SetDefault("gate.migration_kind", "migration")
	viper.SetDefault("gate.migration_globs", []string{"**/migrations/**", "**/*.sql"})
	viper.SetDefault("gate.dotenv", ".env")

	viper.SetDefault("review.max_diff_bytes", 512<<10)

	viper.SetDefault("reviewers.codex.command", "codex")
	viper.SetDefault("reviewers.codex.args", []string{"exec", "-"})
	viper.SetDefault("reviewers.gemini.command", "gemini")
	viper.SetDefault("reviewers.migration.command", "codex")
	viper.SetDefault("reviewers.migration.args", []string{"exec", "-"})

	viper.SetDefault("plan_review.max_iterations", 3)
	viper.SetDefault("plan_review.timeout", "45m")
	viper.SetDefault("plan_review.reviewer_timeout", "5m")
	viper.SetDefault("plan_review.reviewers", []string{"codex", "gemini"})
}

// mergeProjectConfig layers <repo>/.revgate.yaml over the user config.
func mergeProjectConfig() {
	root := repoRootOrDir(context.Background(), currentDir())
	path := filepath.Join(root, ".revgate.yaml")
	if _, err := os.Stat(path); err != nil {
		return
	}
	pv := viper.New()
	pv.SetConfigFile(path)
	if err := pv.ReadInConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: ignoring %s: %v\n", path, err)
		return
	}
	_ = viper.MergeConfigMap(pv.AllSettings())
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun

	logger = logging.New(logging.Options{
		File:    viper.GetString("log.file"),
		Level:   viper.GetString("log.level"),
		Verbose: verbose,
	})

	// Initialize store lazily: only when commands actually need it.
	// This allows config/version commands to run without a db.
}

func closeDeps() {
	if dataStore != nil {
		_ = dataStore.Close()
		dataStore = nil
	}
	_ = logger.Sync()
}

// getStore returns the shared store, initializing it on first call.
func getStore() (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	dbPath := viper.GetString("db_path")
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := s.Migrate(rootCmd.Context()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	dataStore = s
	return dataStore, nil
}

// auditStore returns the store for audit writes, or nil when auditing is
// disabled or the database is unavailable. Audit failures never fail a command.
func auditStore() store.Store {
	if !viper.GetBool("audit.enabled") || dryRun {
		return nil
	}
	s, err := getStore()
	if err != nil {
		logger.Warn("audit store unavailable", zap.Error(err))
		return nil
	}
	return s
}
