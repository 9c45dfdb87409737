// Package marker persists review markers: one small file per (kind, branch)
// asserting that a review of that kind approved the branch as of a commit
// or diff identity.
package marker

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrCorrupt is returned for marker content that cannot be parsed.
var ErrCorrupt = errors.New("corrupt marker")

// Marker is the parsed content of a marker file.
type Marker struct {
	Branch   string
	Commit   string
	DiffHash string
	// CycleCount is the number of reviews that did not approve since the
	// last approval.
	CycleCount int
}

// Approved reports whether the marker records an identity at all. A marker
// that only carries a cycle count comes from reviews that never approved.
func (m *Marker) Approved() bool {
	return m != nil && (m.Commit != "" || m.DiffHash != "")
}

// Format renders the marker as branch:commit:diffHash:cycleCount. Git
// forbids ':' in ref names, so the branch needs no escaping.
func (m Marker) Format() string {
	return strings.Join([]string{m.Branch, m.Commit, m.DiffHash, strconv.Itoa(m.CycleCount)}, ":")
}

// Parse reads a marker line. The legacy branch:commit and
// branch:commit:diffHash forms read with an empty diff hash and zero cycles.
func Parse(line string) (Marker, error) {
	line = strings.TrimSpace(line)
	fields := strings.Split(line, ":")
	if len(fields) < 2 || len(fields) > 4 || fields[0] == "" {
		return Marker{}, fmt.Errorf("%w: %q", ErrCorrupt, line)
	}
	m := Marker{Branch: fields[0], Commit: fields[1]}
	if len(fields) > 2 {
		m.DiffHash = fields[2]
	}
	if len(fields) > 3 && fields[3] != "" {
		n, err := strconv.Atoi(fields[3])
		if err != nil || n < 0 {
			return Marker{}, fmt.Errorf("%w: cycle count %q", ErrCorrupt, fields[3])
		}
		m.CycleCount = n
	}
	return m, nil
}

// Sanitize turns a branch name into a file-name-safe token. Path
// separators and shell metacharacters become '-', blanks become '_',
// repeated separators collapse and leading or trailing separators are
// trimmed. Sanitize(Sanitize(b)) == Sanitize(b).
func Sanitize(branch string) string {
	var b strings.Builder
	b.Grow(len(branch))
	var last byte
	for i := 0; i < len(branch); i++ {
		c := branch[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '.':
		case c == ' ' || c == '\t':
			c = '_'
		case c == '_' || c == '-':
		default:
			c = '-'
		}
		if (c == '-' || c == '_') && c == last {
			continue
		}
		b.WriteByte(c)
		last = c
	}
	out := strings.Trim(b.String(), "-_.")
	if out == "" {
		return "unnamed"
	}
	return out
}
