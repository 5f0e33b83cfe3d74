package utils

import "strings"

// SplitArgs splits a command line on spaces. Quoted strings, parenthesized
// lists and bracketed sections stay in one token.
func SplitArgs(line string) []string {
	var (
		args    []string
		cur     strings.Builder
		inQuote bool
		escaped bool
		depth   int
	)
	flush := func() {
		if cur.Len() > 0 {
			args = append(args, cur.String())
			cur.Reset()
		}
	}

	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case escaped:
			escaped = false
		case inQuote && c == '\\':
			escaped = true
		case c == '"':
			inQuote = !inQuote
		case inQuote:
		case c == '(' || c == '[':
			depth++
		case (c == ')' || c == ']') && depth > 0:
			depth--
		case c == ' ' && depth == 0:
			flush()
			continue
		}
		cur.WriteByte(c)
	}
	flush()
	return args
}

// ParseQuotedString returns the value of a quoted or atom argument.
func ParseQuotedString(arg string) string {
	if len(arg) < 2 || arg[0] != '"' || arg[len(arg)-1] != '"' {
		return arg
	}
	inner := arg[1 : len(arg)-1]
	if !strings.Contains(inner, `\`) {
		return inner
	}

	var b strings.Builder
	escaped := false
	for i := 0; i < len(inner); i++ {
		if inner[i] == '\\' && !escaped {
			escaped = true
			continue
		}
		escaped = false
		b.WriteByte(inner[i])
	}
	return b.String()
}

// StripParens removes one level of surrounding parentheses.
func StripParens(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '(' && s[len(s)-1] == ')' {
		return strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}
