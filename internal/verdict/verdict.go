// Package verdict turns free-text reviewer output into a structured verdict.
//
// Reviewers have no response format, so parsing is pattern based: severity
// badges such as "[HIGH]" or "![medium]", quasar-style "SEVERITY:" lines,
// affirmative and negative phrases, and open questions.
package verdict

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// Severity of a finding, lowest to highest: info, low, medium, high, critical.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityInfo:     1,
	SeverityLow:      2,
	SeverityMedium:   3,
	SeverityHigh:     4,
	SeverityCritical: 5,
}

// Rank orders severities; unknown severities rank 0.
func (s Severity) Rank() int { return severityRank[s] }

// ParseSeverity maps a badge or SEVERITY word to a Severity. "major" and
// "minor" are accepted as high and low.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical", "blocker":
		return SeverityCritical, nil
	case "high", "major":
		return SeverityHigh, nil
	case "medium", "moderate":
		return SeverityMedium, nil
	case "low", "minor":
		return SeverityLow, nil
	case "info", "nit":
		return SeverityInfo, nil
	}
	return "", fmt.Errorf("unknown severity %q", s)
}

// DefaultBlocking is the set of severities that prevent approval.
var DefaultBlocking = []Severity{SeverityCritical, SeverityHigh, SeverityMedium}

// IsBlocking reports whether sev is in set.
func IsBlocking(sev Severity, set []Severity) bool {
	return slices.Contains(set, sev)
}

// Finding is one severity-tagged remark.
type Finding struct {
	Severity Severity `json:"severity"`
	Text     string   `json:"text"`
}

// Verdict is the structured reading of one reviewer's output.
type Verdict struct {
	// Approved is true only for unambiguously affirmative output: an
	// affirmative phrase, no negative phrase, no blocking finding and no
	// open question.
	Approved        bool      `json:"approved"`
	HasQuestions    bool      `json:"hasQuestions"`
	MatchedPatterns []string  `json:"matchedPatterns"`
	Findings        []Finding `json:"findings,omitempty"`
	RateLimited     bool      `json:"rateLimited,omitempty"`
}

// Highest returns the most severe finding severity, or "" without findings.
func (v Verdict) Highest() Severity {
	var top Severity
	for _, f := range v.Findings {
		if f.Severity.Rank() > top.Rank() {
			top = f.Severity
		}
	}
	return top
}

// Counts returns the number of findings per severity.
func (v Verdict) Counts() map[string]int {
	counts := map[string]int{}
	for _, f := range v.Findings {
		counts[string(f.Severity)]++
	}
	return counts
}

// Blocking returns the findings whose severity is in set.
func (v Verdict) Blocking(set []Severity) []Finding {
	var out []Finding
	for _, f := range v.Findings {
		if IsBlocking(f.Severity, set) {
			out = append(out, f)
		}
	}
	return out
}

var (
	// A badge may sit anywhere in a line but not directly after a word,
	// so index expressions like a[high] are not findings.
	badgeRe     = regexp.MustCompile(`(?i)(?:^|[^\w\[\]])[*_]*\[\s*(critical|high|medium|low|info)\s*\][*_]*\s*[:\-]?\s*`)
	severityRe  = regexp.MustCompile(`(?i)^SEVERITY:\s*(critical|major|minor|high|medium|low)\b`)
	descRe      = regexp.MustCompile(`(?i)^DESCRIPTION:\s*(.*)$`)
	questionRe  = regexp.MustCompile(`(?i)^(?:\[\s*question\s*\]|(?:open\s+)?questions?\s*\d*\s*:\s*\S|q\d+\s*[:.]\s*\S)`)
	noneRe      = regexp.MustCompile(`(?i)^(?:open\s+)?questions?\s*:\s*(?:none|n/?a|no)\b`)
	listMarker  = regexp.MustCompile(`^(?:[-*+]\s+|\d+[.)]\s+|>\s*|#{1,6}\s*)+`)
	tableRule   = regexp.MustCompile(`^[\s|:\-]+$`)
	affirmRe    = regexp.MustCompile(`(?i)\b(lgtm|approved|looks good|no issues found|ship it)\b`)
	negativeRe  = regexp.MustCompile(`(?i)(\bno\s+|\bnon-)?\b(not\s+(?:lgtm|approved|looks\s+good)|changes requested|request(?:ing)? changes|reject(?:ed)?|needs work|blocking)\b`)
	rateLimitRe = regexp.MustCompile(`(?i)\b(rate[ -]?limit(?:ed)?|too many requests|quota (?:exceeded|exhausted)|usage limit|status 429)\b`)
)

// Parser parses reviewer output against a set of blocking severities.
type Parser struct {
	Blocking []Severity
}

// Parse reads output with DefaultBlocking.
func Parse(output string) Verdict {
	return Parser{Blocking: DefaultBlocking}.Parse(output)
}

// Parse reads output and returns its verdict.
func (p Parser) Parse(output string) Verdict {
	v := Verdict{MatchedPatterns: []string{}}
	add := func(pattern string) {
		if !slices.Contains(v.MatchedPatterns, pattern) {
			v.MatchedPatterns = append(v.MatchedPatterns, pattern)
		}
	}

	affirmative, negative := false, false
	inFence := false
	pending := -1 // index of a SEVERITY: finding waiting for its DESCRIPTION

	for _, raw := range strings.Split(output, "\n") {
		line := strings.TrimSpace(raw)
		if strings.HasPrefix(line, "```") {
			inFence = !inFence
			continue
		}
		if inFence || line == "" {
			continue
		}
		line = strings.TrimSpace(listMarker.ReplaceAllString(line, ""))

		if strings.HasPrefix(line, "|") && tableRule.MatchString(line) {
			continue
		}
		if found := lineBadges(line); len(found) > 0 {
			for _, f := range found {
				v.Findings = append(v.Findings, f)
				add("badge:" + string(f.Severity))
			}
			continue
		}
		if m := severityRe.FindStringSubmatch(line); m != nil {
			sev, _ := ParseSeverity(m[1])
			v.Findings = append(v.Findings, Finding{Severity: sev})
			pending = len(v.Findings) - 1
			add("severity:" + string(sev))
			continue
		}
		if m := descRe.FindStringSubmatch(line); m != nil && pending >= 0 {
			v.Findings[pending].Text = strings.TrimSpace(m[1])
			pending = -1
			continue
		}

		if !noneRe.MatchString(line) && (questionRe.MatchString(line) || strings.HasSuffix(line, "?")) {
			v.HasQuestions = true
			add("question")
		}
		for _, m := range negativeRe.FindAllStringSubmatch(line, -1) {
			if m[1] != "" {
				continue
			}
			negative = true
			add("negative:" + strings.ToLower(m[2]))
		}
		// "not approved" must not also count as "approved".
		for _, m := range affirmRe.FindAllStringSubmatch(negativeRe.ReplaceAllString(line, " "), -1) {
			affirmative = true
			add("affirmative:" + strings.ToLower(m[1]))
		}
		if rateLimitRe.MatchString(line) {
			v.RateLimited = true
			add("rate-limit")
		}
	}

	v.Approved = affirmative && !negative && !v.HasQuestions && len(v.Blocking(p.Blocking)) == 0
	return v
}

// lineBadges returns the findings badged in line, each with the text that
// follows its badge. In a table row a badge cell takes the row's other cells
// as its text.
func lineBadges(line string) []Finding {
	if !strings.HasPrefix(line, "|") {
		return badges(line)
	}
	var found []Finding
	var rest []string
	for _, cell := range strings.Split(strings.Trim(line, "|"), "|") {
		cell = strings.TrimSpace(cell)
		if fs := badges(cell); len(fs) > 0 {
			found = append(found, fs...)
		} else if cell != "" {
			rest = append(rest, cell)
		}
	}
	for i := range found {
		if found[i].Text == "" {
			found[i].Text = strings.Join(rest, " | ")
		}
	}
	return found
}

func badges(s string) []Finding {
	locs := badgeRe.FindAllStringSubmatchIndex(s, -1)
	found := make([]Finding, 0, len(locs))
	for i, loc := range locs {
		end := len(s)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		sev, _ := ParseSeverity(s[loc[2]:loc[3]])
		found = append(found, Finding{Severity: sev, Text: strings.TrimSpace(s[loc[1]:end])})
	}
	return found
}
