package verdict

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Affirmative(t *testing.T) {
	for _, out := range []string{
		"LGTM",
		"Reviewed the plan.\n\nAPPROVED: the approach is sound.",
		"Looks good to me, ship it!",
		"No issues found.",
		"No blocking issues. LGTM.",
		"- [LOW] typo in comment\n- [INFO] consider a helper\n\nLGTM",
	} {
		t.Run(out, func(t *testing.T) {
			v := Parse(out)
			assert.True(t, v.Approved, "matched: %v", v.MatchedPatterns)
			assert.False(t, v.HasQuestions)
		})
	}
}

func TestParse_NotApproved(t *testing.T) {
	tests := []struct {
		name string
		out  string
	}{
		{"negated approval", "Not approved: the migration is unsafe."},
		{"changes requested", "Changes requested. Otherwise looks good."},
		{"needs work", "This needs work before it ships."},
		{"blocking finding beats lgtm", "[HIGH] SQL built by concatenation\n\nLGTM otherwise"},
		{"heading badge", "### [HIGH] SQL injection in search handler\n\nLGTM otherwise"},
		{"numbered heading badge", "## 1. **[CRITICAL]** token logged\nLooks good apart from that."},
		{"mid-sentence badge", "Found one issue: [HIGH] SQL injection in search. Otherwise LGTM."},
		{"table cell badge", "| Severity | Issue |\n|---|---|\n| [HIGH] | SQL injection |\n\nLGTM"},
		{"negated lgtm", "Not LGTM."},
		{"question beats lgtm", "LGTM, but what happens when the cache is cold?"},
		{"no affirmative phrase", "I read the diff."},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, Parse(tt.out).Approved)
		})
	}
}

func TestParse_Badges(t *testing.T) {
	out := "Review:\n" +
		"1. ![medium] consider renaming X\n" +
		"- **[CRITICAL]** secret committed to repo\n" +
		"* [low]: trailing whitespace\n" +
		"Index math uses a[high] and b[ low ]\n"
	v := Parse(out)
	require.Len(t, v.Findings, 3)
	assert.Equal(t, Finding{Severity: SeverityMedium, Text: "consider renaming X"}, v.Findings[0])
	assert.Equal(t, SeverityCritical, v.Findings[1].Severity)
	assert.Equal(t, "secret committed to repo", v.Findings[1].Text)
	assert.Equal(t, Finding{Severity: SeverityLow, Text: "trailing whitespace"}, v.Findings[2])
	assert.Equal(t, SeverityCritical, v.Highest())
	assert.Equal(t, map[string]int{"medium": 1, "critical": 1, "low": 1}, v.Counts())
	assert.Contains(t, v.MatchedPatterns, "badge:medium")
}

func TestParse_BadgesAnywhere(t *testing.T) {
	out := "### [HIGH] SQL injection in search handler\n" +
		"Found one issue: [MEDIUM] unbounded retry. Also [low] a typo.\n" +
		"| Severity | Issue |\n" +
		"|:--------:|-------|\n" +
		"| [CRITICAL] | token written to logs |\n" +
		"| **[info]** | | consider a helper |\n"
	v := Parse(out)
	require.Len(t, v.Findings, 5)
	assert.Equal(t, Finding{Severity: SeverityHigh, Text: "SQL injection in search handler"}, v.Findings[0])
	assert.Equal(t, Finding{Severity: SeverityMedium, Text: "unbounded retry. Also"}, v.Findings[1])
	assert.Equal(t, Finding{Severity: SeverityLow, Text: "a typo."}, v.Findings[2])
	assert.Equal(t, Finding{Severity: SeverityCritical, Text: "token written to logs"}, v.Findings[3])
	assert.Equal(t, Finding{Severity: SeverityInfo, Text: "consider a helper"}, v.Findings[4])
	assert.False(t, v.Approved)
}

func TestParse_NegatedAffirmative(t *testing.T) {
	v := Parse("Not LGTM.")
	assert.False(t, v.Approved)
	assert.Contains(t, v.MatchedPatterns, "negative:not lgtm")
	assert.NotContains(t, v.MatchedPatterns, "affirmative:lgtm")
}

func TestParse_SeverityBlocks(t *testing.T) {
	out := "ISSUE:\nSEVERITY: major\nDESCRIPTION: missing error check\n\nISSUE:\nSEVERITY: minor\nDESCRIPTION: naming"
	v := Parse(out)
	require.Len(t, v.Findings, 2)
	assert.Equal(t, Finding{Severity: SeverityHigh, Text: "missing error check"}, v.Findings[0])
	assert.Equal(t, Finding{Severity: SeverityLow, Text: "naming"}, v.Findings[1])
	assert.False(t, v.Approved)
}

func TestParse_Questions(t *testing.T) {
	assert.True(t, Parse("Q1: which table owns the lock").HasQuestions)
	assert.True(t, Parse("[QUESTION] is the cache shared").HasQuestions)
	assert.True(t, Parse("- Should retries be capped?").HasQuestions)
	assert.False(t, Parse("Questions: none\nLGTM").HasQuestions)
	assert.False(t, Parse("```\nif x? {\n```\nLGTM").HasQuestions, "fenced code is ignored")
}

func TestParse_RateLimited(t *testing.T) {
	assert.True(t, Parse("Error: 429 Too Many Requests").RateLimited)
	assert.True(t, Parse("You have hit your usage limit. Try again at 5pm.").RateLimited)
	assert.True(t, Parse("rate limited by upstream").RateLimited)
	assert.False(t, Parse("LGTM").RateLimited)
}

func TestParser_CustomBlocking(t *testing.T) {
	out := "[LOW] nit\nLGTM"
	assert.True(t, Parse(out).Approved)
	strict := Parser{Blocking: []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}}
	assert.False(t, strict.Parse(out).Approved)
}

func TestParseSeverity(t *testing.T) {
	sev, err := ParseSeverity("MAJOR")
	require.NoError(t, err)
	assert.Equal(t, SeverityHigh, sev)
	_, err = ParseSeverity("urgent")
	assert.Error(t, err)
	assert.Greater(t, SeverityCritical.Rank(), SeverityMedium.Rank())
	assert.True(t, IsBlocking(SeverityMedium, DefaultBlocking))
	assert.False(t, IsBlocking(SeverityLow, DefaultBlocking))
}
