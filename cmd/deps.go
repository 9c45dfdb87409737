package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/joescharf/revgate/internal/gate"
	"github.com/joescharf/revgate/internal/git"
	"github.com/joescharf/revgate/internal/marker"
	"github.com/joescharf/revgate/internal/reviewer"
	"github.com/joescharf/revgate/internal/shellcmd"
	"github.com/joescharf/revgate/internal/verdict"
)

// currentDir returns --dir or the process working directory.
func currentDir() string {
	if workDir != "" {
		return workDir
	}
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}
	return dir
}

// repoRootOrDir returns the repository toplevel of dir, or dir itself
// outside a repository.
func repoRootOrDir(ctx context.Context, dir string) string {
	root, err := git.NewClient().RepoRoot(ctx, dir)
	if err != nil || root == "" {
		return dir
	}
	return root
}

// gateConfig builds the evaluator config from viper and an environment
// snapshot taken once, with <repo>/.env layered under the process env.
func gateConfig(ctx context.Context, dir string) gate.Config {
	cfg := gate.DefaultConfig()
	cfg.ProtectedBranches = viper.GetStringSlice("gate.protected_branches")
	cfg.PrimaryKind = viper.GetString("gate.primary_kind")
	cfg.FallbackKind = viper.GetString("gate.fallback_kind")
	cfg.CycleCeiling = viper.GetInt("gate.cycle_ceiling")
	cfg.TruthyValues = viper.GetStringSlice("gate.truthy_values")
	cfg.MigrationKind = viper.GetString("gate.migration_kind")
	cfg.MigrationGlobs = viper.GetStringSlice("gate.migration_globs")
	cfg.MarkersDir = viper.GetString("markers.dir")
	cfg.BlockingSeverities = blockingSeverities()

	for action := range cfg.BypassVars {
		key := "gate.bypass." + string(action)
		if viper.IsSet(key) {
			cfg.BypassVars[action] = viper.GetStringSlice(key)
		}
	}

	dotenv := viper.GetString("gate.dotenv")
	if dotenv != "" && !filepath.IsAbs(dotenv) {
		dotenv = filepath.Join(repoRootOrDir(ctx, dir), dotenv)
	}
	env, err := gate.EnvSnapshot(dotenv)
	if err != nil {
		logger.Warn("read dotenv", zap.String("path", dotenv), zap.Error(err))
		env, _ = gate.EnvSnapshot("")
	}
	cfg.Env = env
	return cfg
}

func blockingSeverities() []verdict.Severity {
	var set []verdict.Severity
	for _, s := range viper.GetStringSlice("gate.blocking_severities") {
		sev, err := verdict.ParseSeverity(s)
		if err != nil {
			logger.Warn("ignoring unknown blocking severity", zap.String("severity", s))
			continue
		}
		set = append(set, sev)
	}
	if len(set) == 0 {
		return verdict.DefaultBlocking
	}
	return set
}

// buildReviewer returns the reviewer configured under reviewers.<name>,
// running in dir.
func buildReviewer(name, dir string) (reviewer.Reviewer, error) {
	var spec reviewer.Spec
	if err := viper.UnmarshalKey("reviewers."+name, &spec); err != nil {
		return nil, fmt.Errorf("reviewer %s config: %w", name, err)
	}
	spec.Name = name
	r, err := reviewer.FromConfig(spec)
	if err != nil {
		return nil, err
	}
	if c, ok := r.(*reviewer.Command); ok {
		c.Dir = dir
	}
	return r, nil
}

// markerStore resolves the shared markers dir for dir.
func markerStore(ctx context.Context, dir string) (*marker.Store, error) {
	markersDir, err := marker.ResolveDir(ctx, git.NewClient(), dir, viper.GetString("markers.dir"))
	if err != nil {
		return nil, err
	}
	return marker.NewStore(markersDir), nil
}

// gateRequest turns one classified sub-command into an evaluator request.
// dir is where the command line starts; cd and git -C move it.
func gateRequest(m shellcmd.Match, dir string) gate.Request {
	req := gate.Request{Action: m.Action, Dir: dir, InlineEnv: map[string]string{}}
	if target, ok := m.Extracted[shellcmd.KeyDir]; ok {
		resolved, err := shellcmd.ResolveDir(dir, target)
		if err != nil {
			req.DirErr = err
		} else {
			req.Dir = resolved
		}
	}
	for k, v := range m.Extracted {
		if name, ok := strings.CutPrefix(k, shellcmd.EnvPrefix); ok {
			req.InlineEnv[name] = v
		}
	}
	switch m.Action {
	case shellcmd.ActionPush:
		req.Branch = m.Extracted[shellcmd.KeySource]
	case shellcmd.ActionPRCreate:
		req.Branch = headBranch(m.Extracted[shellcmd.KeyBranch])
		req.Base = m.Extracted[shellcmd.KeyBase]
	case shellcmd.ActionPRMerge:
		req.PR = m.Extracted[shellcmd.KeyPR]
	}
	return req
}

// headBranch strips the owner from a cross-repository "owner:branch" head.
func headBranch(head string) string {
	if _, branch, ok := strings.Cut(head, ":"); ok {
		return branch
	}
	return head
}
