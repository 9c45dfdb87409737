package review

import (
	"fmt"
	"strings"

	"github.com/joescharf/revgate/internal/identity"
	"github.com/joescharf/revgate/internal/marker"
)

// BuildReviewPrompt generates the prompt sent to a reviewer for a branch diff.
func BuildReviewPrompt(kind string, id identity.Identity, diff string, previous *marker.Findings, cfg Config) string {
	var b strings.Builder

	b.WriteString("You are reviewing a branch before it is pushed or merged. Review only the changes in the diff below.\n\n")

	b.WriteString("## Change Context\n")
	fmt.Fprintf(&b, "- Review kind: %s\n", kind)
	fmt.Fprintf(&b, "- Branch: %s\n", id.Branch)
	fmt.Fprintf(&b, "- Base: %s\n", id.Base)
	fmt.Fprintf(&b, "- Commit: %s\n", id.Commit)
	b.WriteString("\n")

	if previous != nil && previous.HighestSeverity != "" {
		b.WriteString("## Previous Review\n\n")
		fmt.Fprintf(&b, "The last %s review did not approve this branch (highest severity: %s). Check that those findings were fixed.\n\n",
			kind, previous.HighestSeverity)
	}

	b.WriteString("## Review Focus\n\n")
	b.WriteString("- Correctness bugs and regressions\n")
	b.WriteString("- Security issues\n")
	b.WriteString("- Missing or broken tests for the changed behavior\n")
	if kind == cfg.MigrationKind && cfg.MigrationKind != "" {
		b.WriteString("- Migration safety: locking, reversibility, data loss, ordering\n")
	}
	b.WriteString("\n")

	b.WriteString("## Diff\n\n```diff\n")
	if cfg.MaxDiffBytes > 0 && len(diff) > cfg.MaxDiffBytes {
		b.WriteString(diff[:cfg.MaxDiffBytes])
		fmt.Fprintf(&b, "\n... diff truncated at %d bytes ...\n", cfg.MaxDiffBytes)
	} else {
		b.WriteString(diff)
	}
	if !strings.HasSuffix(diff, "\n") {
		b.WriteString("\n")
	}
	b.WriteString("```\n\n")

	b.WriteString("## Response Format\n\n")
	b.WriteString("- Prefix each finding with a severity badge: [CRITICAL], [HIGH], [MEDIUM], [LOW] or [INFO]\n")
	b.WriteString("- Focus on correctness, not style nitpicks\n")
	b.WriteString("- End with exactly one line: APPROVED if the change can ship as is, otherwise CHANGES REQUESTED\n")

	return b.String()
}
