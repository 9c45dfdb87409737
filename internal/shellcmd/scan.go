// Package shellcmd classifies shell command lines without executing them.
//
// Shell syntax has no grammar enforced here: the scanner only understands
// enough of it (quotes, escapes, command substitution inside double quotes,
// heredocs) to tell literal text apart from command text.
package shellcmd

import "strings"

type scanFrame int

const (
	frameSingle scanFrame = iota + 1
	frameDouble
	frameANSI
	frameSubst // $( ... ) nested inside a double-quoted string
)

type heredoc struct {
	delim     string
	stripTabs bool
}

// scanMask reports, for every byte of s, whether the byte is literal text
// (inside quotes, a quoted command substitution, or a heredoc body) and
// whether it must not act as a separator (escaped by a backslash outside any
// quote, or the newline that opens a heredoc body). Quote delimiters
// themselves are reported as command text.
func scanMask(s string) (literal, escaped []bool) {
	literal = make([]bool, len(s))
	escaped = make([]bool, len(s))

	var stack []scanFrame
	var parens []int // paren depth per frameSubst
	var pending []heredoc

	top := func() scanFrame {
		if len(stack) == 0 {
			return 0
		}
		return stack[len(stack)-1]
	}
	quotedDepth := func() bool {
		for _, f := range stack {
			if f == frameSingle || f == frameDouble || f == frameANSI {
				return true
			}
		}
		return false
	}

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch top() {
		case frameSingle:
			if c == '\'' {
				stack = stack[:len(stack)-1]
				literal[i] = quotedDepth()
				continue
			}
			literal[i] = true

		case frameANSI:
			if c == '\\' && i+1 < len(s) {
				literal[i], literal[i+1] = true, true
				i++
				continue
			}
			if c == '\'' {
				stack = stack[:len(stack)-1]
				literal[i] = quotedDepth()
				continue
			}
			literal[i] = true

		case frameDouble:
			if c == '\\' && i+1 < len(s) {
				literal[i], literal[i+1] = true, true
				i++
				continue
			}
			if c == '"' {
				stack = stack[:len(stack)-1]
				literal[i] = quotedDepth()
				continue
			}
			literal[i] = true
			if c == '$' && i+1 < len(s) && s[i+1] == '(' {
				literal[i+1] = true
				stack = append(stack, frameSubst)
				parens = append(parens, 1)
				i++
			}

		default: // top level or frameSubst
			inSubst := top() == frameSubst
			literal[i] = inSubst
			switch {
			case c == '\\' && i+1 < len(s):
				escaped[i+1] = true
				literal[i+1] = inSubst
				i++
			case c == '$' && i+1 < len(s) && s[i+1] == '\'':
				literal[i+1] = inSubst
				stack = append(stack, frameANSI)
				i++
			case c == '\'':
				stack = append(stack, frameSingle)
			case c == '"':
				stack = append(stack, frameDouble)
			case inSubst && c == '(':
				parens[len(parens)-1]++
			case inSubst && c == ')':
				parens[len(parens)-1]--
				if parens[len(parens)-1] == 0 {
					stack = stack[:len(stack)-1]
					parens = parens[:len(parens)-1]
				}
			case c == '<' && strings.HasPrefix(s[i:], "<<") && !strings.HasPrefix(s[i:], "<<<"):
				if h, n, ok := parseHeredocHeader(s[i+2:]); ok {
					pending = append(pending, h)
					for j := i; j < i+2+n; j++ {
						literal[j] = inSubst
					}
					i += 1 + n
				}
			case c == '\n' && len(pending) > 0:
				// The newline opening a heredoc body is not a separator.
				escaped[i] = true
				end := skipHeredocBodies(s, i+1, pending)
				for j := i + 1; j < end; j++ {
					literal[j] = true
				}
				pending = pending[:0]
				i = end - 1
			}
		}
	}
	return literal, escaped
}

// parseHeredocHeader parses what follows "<<": an optional "-", optional
// blanks, and a delimiter word that may be single or double quoted. It
// returns the heredoc and the number of bytes consumed.
func parseHeredocHeader(s string) (heredoc, int, bool) {
	var h heredoc
	i := 0
	if i < len(s) && s[i] == '-' {
		h.stripTabs = true
		i++
	}
	for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
		i++
	}
	if i >= len(s) {
		return h, 0, false
	}
	if q := s[i]; q == '\'' || q == '"' {
		end := strings.IndexByte(s[i+1:], q)
		if end <= 0 {
			return h, 0, false
		}
		h.delim = s[i+1 : i+1+end]
		return h, i + end + 2, true
	}
	start := i
	for i < len(s) && isWordByte(s[i]) {
		i++
	}
	if i == start {
		return h, 0, false
	}
	h.delim = s[start:i]
	return h, i, true
}

// skipHeredocBodies returns the offset of the newline ending the delimiter
// line of the last pending heredoc (or len(s)), starting at the line that
// begins at from. That newline stays command text so it still separates.
func skipHeredocBodies(s string, from int, pending []heredoc) int {
	pos := from
	for n, h := range pending {
		for pos < len(s) {
			lineEnd := strings.IndexByte(s[pos:], '\n')
			if lineEnd < 0 {
				lineEnd = len(s)
			} else {
				lineEnd += pos
			}
			line := s[pos:lineEnd]
			if heredocTerminates(line, h) && n == len(pending)-1 {
				return lineEnd
			}
			pos = lineEnd + 1
			if heredocTerminates(line, h) {
				break
			}
		}
	}
	return min(pos, len(s))
}

func heredocTerminates(line string, h heredoc) bool {
	if h.stripTabs {
		line = strings.TrimLeft(line, "\t")
	}
	return strings.TrimSpace(line) == h.delim
}

func isWordByte(c byte) bool {
	return c == '_' || c == '-' || c == '.' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// StripQuotedStrings removes the contents of quoted spans, quoted command
// substitutions and heredoc bodies, keeping the quote characters so word
// boundaries survive: `echo "git push"` becomes `echo ""`.
func StripQuotedStrings(s string) string {
	literal, _ := scanMask(s)
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if !literal[i] {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// SplitCommandChain splits a command line on unquoted "&&", "||", ";", "|"
// and newlines. Empty segments are dropped.
func SplitCommandChain(s string) []string {
	literal, escaped := scanMask(s)
	var parts []string
	start := 0
	flush := func(end int) {
		if seg := strings.TrimSpace(s[start:end]); seg != "" {
			parts = append(parts, seg)
		}
	}
	for i := 0; i < len(s); i++ {
		if literal[i] || escaped[i] {
			continue
		}
		switch c := s[i]; {
		case (c == '&' || c == '|') && i+1 < len(s) && s[i+1] == c && !literal[i+1]:
			flush(i)
			i++
			start = i + 1
		case c == '|' && !(i > 0 && s[i-1] == '>'):
			flush(i)
			start = i + 1
		case c == ';' || c == '\n':
			flush(i)
			start = i + 1
		}
	}
	flush(len(s))
	return parts
}

// Fields splits a single command into shell words, removing quotes and
// backslash escapes. No expansion is performed; $'...' escapes are decoded.
func Fields(s string) []string {
	var words []string
	var cur strings.Builder
	inWord := false
	emit := func() {
		if inWord {
			words = append(words, cur.String())
			cur.Reset()
			inWord = false
		}
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n':
			emit()
		case c == '\\' && i+1 < len(s):
			cur.WriteByte(s[i+1])
			inWord = true
			i++
		case c == '\'':
			end := strings.IndexByte(s[i+1:], '\'')
			if end < 0 {
				cur.WriteString(s[i+1:])
				i = len(s)
			} else {
				cur.WriteString(s[i+1 : i+1+end])
				i += end + 1
			}
			inWord = true
		case c == '$' && i+1 < len(s) && s[i+1] == '\'':
			val, n := decodeANSI(s[i+2:])
			cur.WriteString(val)
			i += 1 + n
			inWord = true
		case c == '"':
			val, n := decodeDouble(s[i+1:])
			cur.WriteString(val)
			i += n
			inWord = true
		default:
			cur.WriteByte(c)
			inWord = true
		}
	}
	emit()
	return words
}

// decodeDouble decodes the body of a double-quoted string starting just after
// the opening quote. It returns the value and the number of bytes consumed,
// including the closing quote. Nested $( ... ) is copied verbatim.
func decodeDouble(s string) (string, int) {
	var b strings.Builder
	depth := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\' && i+1 < len(s) && depth == 0 && strings.IndexByte("$`\"\\\n", s[i+1]) >= 0:
			if s[i+1] != '\n' {
				b.WriteByte(s[i+1])
			}
			i++
		case c == '$' && i+1 < len(s) && s[i+1] == '(':
			depth++
			b.WriteString("$(")
			i++
		case c == ')' && depth > 0:
			depth--
			b.WriteByte(c)
		case c == '"' && depth == 0:
			return b.String(), i + 1
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), len(s)
}

// decodeANSI decodes a $'...' body starting just after the opening quote.
func decodeANSI(s string) (string, int) {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\'' {
			return b.String(), i + 1
		}
		if c != '\\' || i+1 >= len(s) {
			b.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case '0':
			b.WriteByte(0)
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String(), len(s)
}
