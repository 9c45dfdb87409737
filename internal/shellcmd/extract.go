package shellcmd

import (
	"regexp"
	"strings"
)

type valueForm int

const (
	formHeredoc valueForm = iota
	formDouble
	formSingle
	formANSI
	formUnquoted
)

// extractionOrder is the priority used when several forms could match.
// Heredoc bodies come first because they legitimately contain quotes that
// would end a naive quoted-value scan early.
var extractionOrder = []valueForm{formHeredoc, formDouble, formSingle, formANSI, formUnquoted}

var valueTails = map[valueForm]string{
	formHeredoc:  `"?\$\(\s*cat\s+<<-?\s*['"]?([A-Za-z_][A-Za-z0-9_.-]*)['"]?[^\n]*\n`,
	formDouble:   `"((?:[^"\\]|\\.)*)"`,
	formSingle:   `'([^']*)'`,
	formANSI:     `\$'((?:[^'\\]|\\.)*)'`,
	formUnquoted: `([^\s"'-][^"'\n]*?)(?:\s+--?[A-Za-z]|\s*$)`,
}

func flagValueRegexp(names []string, form valueForm) *regexp.Regexp {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = regexp.QuoteMeta(n)
	}
	return regexp.MustCompile(`(?s)(?:^|\s)(` + strings.Join(quoted, "|") + `)(?:=|\s+)` + valueTails[form])
}

// ExtractFlagValue returns the value of the first of names found in a single
// command, trying heredoc, double-quoted, single-quoted, $'...' and unquoted
// forms in that order. Flags that only appear inside quoted text are ignored.
func ExtractFlagValue(cmd string, names ...string) (string, bool) {
	if len(names) == 0 {
		return "", false
	}
	literal, _ := scanMask(cmd)

	for _, form := range extractionOrder {
		re := flagValueRegexp(names, form)
		for _, idx := range re.FindAllStringSubmatchIndex(cmd, -1) {
			if literal[idx[2]] {
				continue
			}
			raw := cmd[idx[4]:idx[5]]
			switch form {
			case formHeredoc:
				if body, ok := heredocBody(cmd[idx[1]:], raw); ok {
					return body, true
				}
			case formDouble:
				return unescapeDouble(raw), true
			case formSingle:
				return raw, true
			case formANSI:
				val, _ := decodeANSI(raw + "'")
				return val, true
			case formUnquoted:
				return strings.TrimSpace(raw), true
			}
		}
	}
	return "", false
}

// heredocBody returns the lines of rest up to the line holding only delim.
func heredocBody(rest, delim string) (string, bool) {
	lines := strings.Split(rest, "\n")
	for i, line := range lines {
		if strings.TrimSpace(strings.TrimLeft(line, "\t")) == delim {
			return strings.Join(lines[:i], "\n"), true
		}
	}
	return "", false
}

func unescapeDouble(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) && strings.IndexByte("$`\"\\", s[i+1]) >= 0 {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// Flags taking a separate value, per command, so positional parsing can skip
// the value word.
var (
	pushValueFlags = map[string]bool{
		"-o": true, "--push-option": true, "--repo": true, "--receive-pack": true, "--exec": true,
	}
	mergeValueFlags = map[string]bool{
		"-t": true, "--subject": true, "-b": true, "--body": true, "-F": true, "--body-file": true,
		"-A": true, "--author-email": true, "--match-head-commit": true, "-R": true, "--repo": true,
	}
)

func extractFor(action Action, sub string) map[string]string {
	out := map[string]string{}
	set := func(key string, names ...string) {
		if v, ok := ExtractFlagValue(sub, names...); ok && v != "" {
			out[key] = v
		}
	}

	switch action {
	case ActionPush:
		remote, src, dst := PushRefspec(sub)
		if remote != "" {
			out[KeyRemote] = remote
		}
		if dst != "" {
			out[KeyBranch] = dst
		}
		if src != "" {
			out[KeySource] = src
		}
	case ActionPRCreate:
		set(KeyTitle, "--title", "-t")
		set(KeyBody, "--body", "-b")
		set(KeyBase, "--base", "-B")
		set(KeyBranch, "--head", "-H")
	case ActionPRMerge:
		if args := positionalsAfter(Fields(sub), "merge", mergeValueFlags); len(args) > 0 {
			out[KeyPR] = args[0]
		}
	case ActionRunReview:
		if args := positionalsAfter(Fields(sub), "review", nil); len(args) > 0 {
			out[KeyReview] = args[0]
		}
	}
	return out
}

// PushTarget returns the remote and destination branch named by a git push
// command. A refspec "src:dst" yields dst; "HEAD" yields no branch.
func PushTarget(sub string) (remote, branch string) {
	remote, _, branch = PushRefspec(sub)
	return remote, branch
}

// PushRefspec returns the remote and the source and destination branches of
// the first refspec of a git push command. HEAD, or no refspec at all,
// yields empty branches: the checked-out branch is being pushed.
func PushRefspec(sub string) (remote, src, dst string) {
	args := positionalsAfter(Fields(sub), "push", pushValueFlags)
	if len(args) > 0 {
		remote = args[0]
	}
	if len(args) < 2 {
		return remote, "", ""
	}
	spec := strings.TrimPrefix(args[1], "+")
	src, dst = spec, spec
	if i := strings.LastIndexByte(spec, ':'); i >= 0 {
		src, dst = spec[:i], spec[i+1:]
	}
	src = branchName(src)
	dst = branchName(dst)
	return remote, src, dst
}

func branchName(ref string) string {
	ref = strings.TrimPrefix(ref, "refs/heads/")
	if ref == "HEAD" || strings.HasPrefix(ref, "HEAD~") || strings.HasPrefix(ref, "HEAD^") {
		return ""
	}
	return ref
}

// positionalsAfter returns the non-flag words following the first occurrence
// of verb, skipping the values of flags listed in valueFlags.
func positionalsAfter(words []string, verb string, valueFlags map[string]bool) []string {
	start := -1
	for i, w := range words {
		if w == verb {
			start = i + 1
			break
		}
	}
	if start < 0 {
		return nil
	}
	var out []string
	for i := start; i < len(words); i++ {
		w := words[i]
		if strings.HasPrefix(w, "-") {
			if valueFlags[w] && !strings.Contains(w, "=") {
				i++
			}
			continue
		}
		out = append(out, w)
	}
	return out
}
