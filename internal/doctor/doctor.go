// Package doctor checks that a repository is set up for gating: the tools
// the gate shells out to are installed, markers can be written and are not
// committed, and the host calls revgate.
package doctor

import (
	"bufio"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Check represents a single setup check.
type Check struct {
	Name   string
	Passed bool
	Detail string
}

// Tool is an executable a check expects on PATH.
type Tool struct {
	Label   string
	Command string
}

// Options describes the repository being checked.
type Options struct {
	// RepoRoot is the main repository root.
	RepoRoot string
	// MarkersDir is the resolved absolute markers directory.
	MarkersDir string
	// MarkersRel is the markers directory as configured, relative to RepoRoot.
	MarkersRel string
	// HomeDir holds the user-level host settings; empty skips them.
	HomeDir string
	Tools   []Tool
}

// hostSettings are the host config files that may register the check hook.
var hostSettings = []string{
	filepath.Join(".claude", "settings.json"),
	filepath.Join(".claude", "settings.local.json"),
}

// Checker evaluates repository setup.
type Checker struct {
	LookPath func(string) (string, error)
}

// NewChecker returns a Checker that resolves tools on PATH.
func NewChecker() *Checker {
	return &Checker{LookPath: exec.LookPath}
}

// Run evaluates all setup checks.
func (c *Checker) Run(opts Options) []Check {
	var checks []Check
	for _, t := range opts.Tools {
		checks = append(checks, c.checkTool(t))
	}
	checks = append(checks, checkMarkersDir(opts.MarkersDir))
	checks = append(checks, checkIgnored(opts.RepoRoot, opts.MarkersRel))
	checks = append(checks, checkHook(opts.RepoRoot, opts.HomeDir))
	return checks
}

// Passed reports whether every check passed.
func Passed(checks []Check) bool {
	for _, c := range checks {
		if !c.Passed {
			return false
		}
	}
	return true
}

func (c *Checker) checkTool(t Tool) Check {
	path, err := c.LookPath(t.Command)
	if err != nil {
		return Check{Name: t.Label, Passed: false, Detail: t.Command + " not found on PATH"}
	}
	return Check{Name: t.Label, Passed: true, Detail: path}
}

// checkMarkersDir passes when the markers dir is writable, or does not exist
// yet but its parent is.
func checkMarkersDir(dir string) Check {
	target := dir
	info, err := os.Stat(dir)
	switch {
	case err == nil && !info.IsDir():
		return Check{Name: "Markers dir", Passed: false, Detail: dir + " is not a directory"}
	case err != nil:
		target = filepath.Dir(dir)
	}
	for {
		if _, err := os.Stat(target); err == nil {
			break
		}
		parent := filepath.Dir(target)
		if parent == target {
			break
		}
		target = parent
	}

	f, err := os.CreateTemp(target, ".revgate-doctor-*")
	if err != nil {
		return Check{Name: "Markers dir", Passed: false, Detail: target + " not writable"}
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)

	if target != dir {
		return Check{Name: "Markers dir", Passed: true, Detail: dir + " (created on first write)"}
	}
	return Check{Name: "Markers dir", Passed: true, Detail: dir}
}

// checkIgnored passes when a .gitignore line covers the markers dir or one
// of its parents.
func checkIgnored(root, rel string) Check {
	rel = filepath.ToSlash(filepath.Clean(rel))
	if filepath.IsAbs(rel) || strings.HasPrefix(rel, "../") {
		return Check{Name: "Markers ignored", Passed: true, Detail: "markers dir outside the repository"}
	}

	f, err := os.Open(filepath.Join(root, ".gitignore"))
	if err != nil {
		return Check{Name: "Markers ignored", Passed: false, Detail: ".gitignore missing"}
	}
	defer f.Close()

	covered := map[string]bool{}
	for p := rel; p != "." && p != "/"; p = filepath.ToSlash(filepath.Dir(p)) {
		covered[p] = true
	}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSuffix(strings.TrimPrefix(line, "/"), "/")
		line = strings.TrimSuffix(line, "/*")
		if covered[line] {
			return Check{Name: "Markers ignored", Passed: true, Detail: ".gitignore covers " + line}
		}
	}
	return Check{Name: "Markers ignored", Passed: false, Detail: rel + " not in .gitignore"}
}

// checkHook passes when a project or user host settings file invokes
// `revgate check`.
func checkHook(root, home string) Check {
	var paths []string
	for _, name := range hostSettings {
		paths = append(paths, filepath.Join(root, name))
	}
	if home != "" {
		paths = append(paths, filepath.Join(home, hostSettings[0]))
	}
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		if strings.Contains(string(data), "revgate check") {
			return Check{Name: "Host hook", Passed: true, Detail: p}
		}
	}
	return Check{Name: "Host hook", Passed: false, Detail: "no host settings call 'revgate check'"}
}
