package planreview

import (
	"fmt"
	"sort"
	"strings"
)

// BuildPrompt generates the prompt sent to every reviewer in a round.
func BuildPrompt(planFile, content string, iteration int, previous *Iteration) string {
	var b strings.Builder

	b.WriteString("You are reviewing an implementation plan before any code is written. Find defects in the plan, not in style.\n\n")

	b.WriteString("## Plan Context\n")
	if planFile != "" {
		fmt.Fprintf(&b, "- Plan file: %s\n", planFile)
	}
	fmt.Fprintf(&b, "- Review round: %d\n", iteration)
	b.WriteString("\n")

	if previous != nil && previous.Result == Blocked {
		b.WriteString("## Previous Round\n\n")
		b.WriteString("The previous version of this plan was blocked. Check whether these points were addressed:\n\n")
		names := make([]string, 0, len(previous.Reviewers))
		for name := range previous.Reviewers {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			r := previous.Reviewers[name]
			if r == nil {
				continue
			}
			for _, f := range r.Findings {
				fmt.Fprintf(&b, "- [%s] %s (%s)\n", strings.ToUpper(string(f.Severity)), f.Text, name)
			}
			if r.HasQuestions {
				fmt.Fprintf(&b, "- %s had open questions\n", name)
			}
		}
		b.WriteString("\n")
	}

	b.WriteString("## Plan\n\n")
	b.WriteString(content)
	if !strings.HasSuffix(content, "\n") {
		b.WriteString("\n")
	}
	b.WriteString("\n")

	b.WriteString("## Response Format\n\n")
	b.WriteString("- Prefix each finding with a severity badge: [CRITICAL], [HIGH], [MEDIUM], [LOW] or [INFO]\n")
	b.WriteString("- List anything you cannot judge without an answer under \"Questions:\"\n")
	b.WriteString("- End with exactly one line: APPROVED if the plan can proceed as written, otherwise CHANGES REQUESTED\n")

	return b.String()
}
