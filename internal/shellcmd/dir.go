package shellcmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Git global flags that take their value as the next word.
var gitValueFlags = map[string]bool{
	"-C": true, "-c": true,
	"--git-dir": true, "--work-tree": true, "--namespace": true,
	"--config-env": true, "--exec-path": true,
}

var wrappers = map[string]bool{
	"sudo": true, "command": true, "exec": true, "nohup": true, "time": true, "env": true,
}

// commandWords drops leading VAR=value assignments, wrappers and subshell
// openers from a sub-command's words.
func commandWords(sub string) []string {
	words := Fields(sub)
	for len(words) > 0 {
		w := strings.TrimLeft(words[0], "({")
		switch {
		case w == "":
			words = words[1:]
		case wrappers[w] || envAssignRe.MatchString(w):
			words = words[1:]
		default:
			words[0] = w
			return words
		}
	}
	return nil
}

// dirStack is the running directory of a command line. Entering a subshell
// saves it and leaving restores it, so a cd inside parentheses does not
// outlive them.
type dirStack struct {
	cwd   string
	saved []string
}

func (d *dirStack) push(n int) {
	for ; n > 0; n-- {
		d.saved = append(d.saved, d.cwd)
	}
}

func (d *dirStack) pop(n int) {
	for ; n > 0 && len(d.saved) > 0; n-- {
		d.cwd = d.saved[len(d.saved)-1]
		d.saved = d.saved[:len(d.saved)-1]
	}
}

// grouping splits a sub-command into the subshells it opens, its body, and
// the subshells it closes. Braces group without a subshell and are only
// dropped. Parentheses balanced inside the body, as in $(...), stay.
func grouping(sub string) (opened int, body string, closed int) {
	body = strings.TrimSpace(sub)
	for body != "" && (body[0] == '(' || body[0] == '{') {
		if body[0] == '(' {
			opened++
		}
		body = strings.TrimSpace(body[1:])
	}
	stripped := StripQuotedStrings(body)
	extra := strings.Count(stripped, ")") - strings.Count(stripped, "(")
	for ; extra > 0 && strings.HasSuffix(body, ")"); extra-- {
		body = strings.TrimSpace(body[:len(body)-1])
		closed++
	}
	return opened, body, closed
}

// cdTarget reports the directory a cd, pushd or popd sub-command moves to.
// A bare cd goes home; popd and cd - depend on the directory stack and are
// returned as "-".
func cdTarget(sub string) (string, bool) {
	words := commandWords(sub)
	if len(words) == 0 {
		return "", false
	}
	switch words[0] {
	case "cd", "pushd":
	case "popd":
		return "-", true
	default:
		return "", false
	}
	for i, w := range words[1:] {
		if w == "--" {
			if i+2 < len(words) {
				return words[i+2], true
			}
			break
		}
		if w == "-" || !strings.HasPrefix(w, "-") {
			return w, true
		}
	}
	return "~", true
}

// gitDirFlags returns the -C values of a git sub-command, in order.
func gitDirFlags(sub string) []string {
	words := commandWords(sub)
	if len(words) == 0 || words[0] != "git" {
		return nil
	}
	var dirs []string
	for i := 1; i < len(words); i++ {
		w := words[i]
		if !strings.HasPrefix(w, "-") {
			break
		}
		if gitValueFlags[w] && i+1 < len(words) {
			if w == "-C" {
				dirs = append(dirs, words[i+1])
			}
			i++
		}
	}
	return dirs
}

// joinDir applies next on top of base the way successive cd calls would.
func joinDir(base, next string) string {
	switch {
	case next == "":
		return base
	case base == "", filepath.IsAbs(next), next == "-", next == "~", strings.HasPrefix(next, "~/"):
		return next
	}
	return filepath.Join(base, next)
}

// ResolveDir resolves a KeyDir value against base, the directory the
// command line starts in. Values that depend on shell state (variables,
// command substitution, the directory stack, another user's home) and
// paths that are not existing directories are errors.
func ResolveDir(base, dir string) (string, error) {
	if dir == "" {
		return base, nil
	}
	if strings.ContainsAny(dir, "$`") || dir == "-" || strings.HasPrefix(dir, "-/") {
		return "", fmt.Errorf("directory %q depends on shell state", dir)
	}
	switch {
	case dir == "~" || strings.HasPrefix(dir, "~/"):
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve %q: %w", dir, err)
		}
		dir = filepath.Join(home, dir[1:])
	case strings.HasPrefix(dir, "~"):
		return "", fmt.Errorf("directory %q depends on shell state", dir)
	case !filepath.IsAbs(dir):
		dir = filepath.Join(base, dir)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return "", fmt.Errorf("resolve directory: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", dir)
	}
	return dir, nil
}
