package pattern

import (
	"regexp"
	"strings"
)

type statement struct {
	text string
	line int // 1-based line of the statement's first character
}

// labelPrefix matches REPL block labels such as "$:" or "drums:" at the start
// of a statement.
var labelPrefix = regexp.MustCompile(`^(\$|[A-Za-z_][A-Za-z0-9_]*)\s*:\s*`)

// splitStatements cuts code into top-level statements. A statement ends at a
// semicolon or newline outside brackets and strings, unless the next
// non-blank line continues a method chain with a leading dot.
func splitStatements(code string) []statement {
	var (
		out   []statement
		buf   strings.Builder
		depth int
		quote rune
		line  = 1
		start = 1
	)
	flush := func() {
		text := strings.TrimSpace(buf.String())
		buf.Reset()
		if text == "" {
			return
		}
		text = labelPrefix.ReplaceAllString(text, "")
		out = append(out, statement{text: text, line: start})
	}

	runes := []rune(code)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if buf.Len() == 0 && r != '\n' && !isBlank(r) {
			start = line
		}
		if quote != 0 {
			switch {
			case r == '\\' && i+1 < len(runes):
				buf.WriteRune(r)
				i++
				buf.WriteRune(runes[i])
			case r == quote:
				quote = 0
				writeQuote(&buf, r)
			default:
				if r == '\n' {
					line++
				}
				buf.WriteRune(r)
			}
			continue
		}
		if r == '/' && i+1 < len(runes) && runes[i+1] == '/' {
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
			i--
			continue
		}
		switch r {
		case '"', '\'', '`':
			quote = r
			writeQuote(&buf, r)
			continue
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			if depth > 0 {
				depth--
			}
		case ';':
			if depth == 0 {
				flush()
				continue
			}
		case '\n':
			line++
			if depth == 0 && !continuesChain(runes[i+1:]) && !openEnded(buf.String()) {
				flush()
				continue
			}
		}
		buf.WriteRune(r)
	}
	flush()
	return out
}

func isBlank(r rune) bool { return r == ' ' || r == '\t' || r == '\r' }

// continuesChain reports whether the next non-blank character is a dot.
func continuesChain(rest []rune) bool {
	for _, r := range rest {
		if isBlank(r) || r == '\n' {
			continue
		}
		return r == '.'
	}
	return false
}

// openEnded reports whether the statement so far ends with an operator or a
// comma and therefore continues on the next line.
func openEnded(s string) bool {
	s = strings.TrimRight(s, " \t\r")
	if s == "" {
		return false
	}
	switch s[len(s)-1] {
	case '.', ',', '+', '-', '*', '/', '?', ':', '&', '|', '=':
		return true
	}
	return false
}

// writeQuote emits a string delimiter. Template literals become triple-quoted
// strings so multi-line mini-notation stays a single literal.
func writeQuote(buf *strings.Builder, r rune) {
	if r == '`' {
		buf.WriteString(`"""`)
		return
	}
	buf.WriteRune(r)
}
