package shellcmd

import (
	"regexp"
	"strings"
)

// Action is the kind of guarded operation a command performs.
type Action string

const (
	ActionNone         Action = "none"
	ActionPush         Action = "push"
	ActionPRCreate     Action = "pr-create"
	ActionPRMerge      Action = "pr-merge"
	ActionRunReview    Action = "run-review"
	ActionCommitAmend  Action = "commit-amend"
	ActionCommitAll    Action = "commit-all"
	ActionBranchRename Action = "branch-rename"
)

// Extracted value keys.
const (
	KeyBranch = "branch"
	KeySource = "source" // local branch a push sends, when not HEAD
	KeyBase   = "base"
	KeyTitle  = "title"
	KeyBody   = "body"
	KeyPR     = "pr"
	KeyRemote = "remote"
	KeyReview = "review"
	// KeyDir is the directory the command runs in, from cd sub-commands and
	// git -C, chained in order. Relative values are relative to the
	// directory the command line starts in; see ResolveDir.
	KeyDir = "dir"

	// EnvPrefix prefixes inline or exported VAR=value assignments.
	EnvPrefix = "env."
)

// Match is one sub-command that performs a guarded action.
type Match struct {
	Action     Action
	SubCommand string
	Extracted  map[string]string
}

// Classification is the classifier's view of a full command line.
type Classification struct {
	IsTarget  bool
	Action    Action
	Extracted map[string]string
	Matches   []Match
}

// Global flags that may sit between the program name and its subcommand.
// Values are matched as \S+ because quoted values have been stripped to
// empty quotes by the time patterns run.
const (
	gitGlobalFlag = `(?:-C\s+\S+|-c\s+\S+|--(?:git-dir|work-tree|namespace|config-env|exec-path)(?:=\S*|\s+\S+)` +
		`|--no-pager|--paginate|-[pP]|--bare|--no-replace-objects|--no-optional-locks` +
		`|--(?:literal|glob|noglob|icase)-pathspecs)`
	ghGlobalFlag = `(?:-R\s+\S+|--repo(?:=\S+|\s+\S+)|--hostname(?:=\S+|\s+\S+))`

	// Leading VAR=value assignments and transparent wrappers.
	cmdLead = `^(?:[A-Za-z_][A-Za-z0-9_]*=\S*\s+)*(?:(?:sudo|command|exec|nohup|time|env)\s+(?:[A-Za-z_][A-Za-z0-9_]*=\S*\s+)*)*`

	gitPrefix = cmdLead + `git(?:\s+` + gitGlobalFlag + `){0,8}\s+`
	ghPrefix  = cmdLead + `gh(?:\s+` + ghGlobalFlag + `){0,4}\s+`
)

type targetPattern struct {
	action Action
	re     *regexp.Regexp
}

// Order matters: the first pattern that matches a sub-command wins.
var targetPatterns = []targetPattern{
	{ActionPush, regexp.MustCompile(gitPrefix + `push(?:\s|$)`)},
	{ActionCommitAmend, regexp.MustCompile(gitPrefix + `commit(?:\s+\S+)*?\s+--amend(?:\s|=|$)`)},
	{ActionCommitAll, regexp.MustCompile(gitPrefix + `commit(?:\s+\S+)*?\s+(?:-a[A-Za-z]*|--all)(?:\s|$)`)},
	{ActionBranchRename, regexp.MustCompile(gitPrefix + `branch(?:\s+\S+)*?\s+(?:-m|-M|--move)(?:\s|$)`)},
	{ActionPRCreate, regexp.MustCompile(ghPrefix + `pr(?:\s+` + ghGlobalFlag + `){0,4}\s+create(?:\s|$)`)},
	{ActionPRMerge, regexp.MustCompile(ghPrefix + `pr(?:\s+` + ghGlobalFlag + `){0,4}\s+merge(?:\s|$)`)},
	{ActionRunReview, regexp.MustCompile(cmdLead + `revgate(?:\s+--?\S+)*\s+review(?:\s|$)`)},
}

var (
	envAssignRe = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)=(.*)$`)
	exportRe    = regexp.MustCompile(`^(?:export|declare\s+-x)\s+`)
)

// MatchAction reports which guarded action a single sub-command performs,
// matching on its quote-stripped form.
func MatchAction(subCommand string) Action {
	stripped := strings.TrimSpace(StripQuotedStrings(subCommand))
	for _, p := range targetPatterns {
		if p.re.MatchString(stripped) {
			return p.action
		}
	}
	return ActionNone
}

// Classify splits a command line into sub-commands and classifies each one.
// The line is a target if any sub-command is. Variables exported by earlier
// sub-commands are visible to later ones, the way the shell would see them,
// and so is the directory left by an earlier cd outside a subshell.
func Classify(raw string) Classification {
	c := Classification{Action: ActionNone, Extracted: map[string]string{}}
	exported := map[string]string{}
	var dirs dirStack

	for _, sub := range SplitCommandChain(raw) {
		opened, body, closed := grouping(sub)
		dirs.push(opened)
		if m, ok := classifySub(sub, body, exported, &dirs); ok {
			c.Matches = append(c.Matches, m)
		}
		dirs.pop(closed)
	}

	if len(c.Matches) > 0 {
		c.IsTarget = true
		c.Action = c.Matches[0].Action
		c.Extracted = c.Matches[0].Extracted
	}
	return c
}

// classifySub classifies body, the sub-command sub without its subshell
// parentheses, recording exports and directory changes on the way.
func classifySub(sub, body string, exported map[string]string, dirs *dirStack) (Match, bool) {
	if target, ok := cdTarget(body); ok {
		dirs.cwd = joinDir(dirs.cwd, target)
		return Match{}, false
	}
	if exportRe.MatchString(body) {
		for _, w := range Fields(exportRe.ReplaceAllString(body, "")) {
			if m := envAssignRe.FindStringSubmatch(w); m != nil {
				exported[m[1]] = m[2]
			}
		}
		return Match{}, false
	}

	action := MatchAction(body)
	if action == ActionNone {
		return Match{}, false
	}

	extracted := map[string]string{}
	for k, v := range exported {
		extracted[EnvPrefix+k] = v
	}
	for k, v := range InlineEnv(body) {
		extracted[EnvPrefix+k] = v
	}
	for k, v := range extractFor(action, body) {
		extracted[k] = v
	}
	dir := dirs.cwd
	for _, d := range gitDirFlags(body) {
		dir = joinDir(dir, d)
	}
	if dir != "" {
		extracted[KeyDir] = dir
	}
	return Match{Action: action, SubCommand: sub, Extracted: extracted}, true
}

// InlineEnv returns the VAR=value assignments that prefix a command,
// including those following an `env` wrapper.
func InlineEnv(subCommand string) map[string]string {
	env := map[string]string{}
	for _, w := range Fields(subCommand) {
		if w == "env" || w == "sudo" || w == "command" || w == "exec" || w == "nohup" || w == "time" {
			continue
		}
		m := envAssignRe.FindStringSubmatch(w)
		if m == nil {
			break
		}
		env[m[1]] = m[2]
	}
	return env
}
