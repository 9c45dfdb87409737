package gate

import (
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/joescharf/revgate/internal/shellcmd"
	"github.com/joescharf/revgate/internal/verdict"
)

// Config is everything the evaluator consults besides git and the marker
// files. It is built once per invocation; the evaluator never reads the
// process environment itself.
type Config struct {
	ProtectedBranches []string
	PrimaryKind       string
	// FallbackKind may stand in for PrimaryKind while the primary reviewer
	// is rate limited. Empty disables the fallback.
	FallbackKind string
	// BypassVars lists, per action, the environment variables that skip the
	// gate when set to one of TruthyValues.
	BypassVars   map[shellcmd.Action][]string
	TruthyValues []string
	// CycleCeiling is the cycle count at which a branch with no blocking
	// findings is let through with a warning. Zero disables the rule.
	CycleCeiling       int
	BlockingSeverities []verdict.Severity
	// MigrationKind is the extra review required when the diff touches
	// files matching MigrationGlobs. Empty disables the migration gate.
	MigrationKind  string
	MigrationGlobs []string
	// MarkersDir is relative to the main repository root unless absolute.
	MarkersDir string
	// Env is the environment snapshot bypass variables are read from.
	Env map[string]string
}

// DefaultBypassVars are the recognised skip variables per action.
func DefaultBypassVars() map[shellcmd.Action][]string {
	return map[shellcmd.Action][]string{
		shellcmd.ActionPush:         {"SKIP_REVIEW_GATE"},
		shellcmd.ActionPRCreate:     {"SKIP_REVIEW_GATE", "SKIP_PR_REVIEW_GATE"},
		shellcmd.ActionPRMerge:      {"SKIP_REVIEW_GATE", "SKIP_MERGE_GATE"},
		shellcmd.ActionCommitAmend:  {"ALLOW_MAIN_REPO_EDIT"},
		shellcmd.ActionCommitAll:    {"ALLOW_MAIN_REPO_EDIT"},
		shellcmd.ActionBranchRename: {"ALLOW_MAIN_REPO_EDIT"},
	}
}

// DefaultConfig returns the built-in policy.
func DefaultConfig() Config {
	return Config{
		ProtectedBranches:  []string{"main", "master"},
		PrimaryKind:        "codex",
		FallbackKind:       "gemini",
		BypassVars:         DefaultBypassVars(),
		TruthyValues:       []string{"1", "true", "True"},
		CycleCeiling:       3,
		BlockingSeverities: verdict.DefaultBlocking,
		MigrationKind:      "migration",
		MigrationGlobs:     []string{"**/migrations/**", "**/*.sql"},
		MarkersDir:         ".claude/markers",
		Env:                map[string]string{},
	}
}

// EnvSnapshot captures the process environment, optionally layered over a
// dotenv file. Variables already set in the process win over the file.
func EnvSnapshot(dotenvPath string) (map[string]string, error) {
	env := map[string]string{}
	if dotenvPath != "" {
		fileEnv, err := godotenv.Read(dotenvPath)
		if err != nil && !os.IsNotExist(err) {
			return nil, err
		}
		for k, v := range fileEnv {
			env[k] = v
		}
	}
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	return env, nil
}

func (c Config) truthy(v string) bool {
	for _, t := range c.TruthyValues {
		if v == t {
			return true
		}
	}
	return false
}

// bypass returns the first bypass variable for action that is set to a
// truthy literal, looking at inline command assignments before the
// environment snapshot.
func (c Config) bypass(action shellcmd.Action, inline map[string]string) (string, bool) {
	for _, name := range c.BypassVars[action] {
		if v, ok := inline[name]; ok {
			if c.truthy(v) {
				return name, true
			}
			continue
		}
		if c.truthy(c.Env[name]) {
			return name, true
		}
	}
	return "", false
}

func (c Config) protected(branch string) bool {
	for _, b := range c.ProtectedBranches {
		if b == branch {
			return true
		}
	}
	return false
}
