package scim

import (
	"fmt"
	"strings"
)

// ============================================================
// Filter Expression Lexer (RFC 7644 3.4.2.2)
// ============================================================
//
// The scanner walks the input character by character, tracking quote state
// and group depth, and emits a flat token stream for the parser. Bracketed
// complex-attribute filters are fused onto the attribute word that precedes
// them ("emails[type eq \"work\"].value" is one word token), and a bare word
// directly after a value-taking comparator is reinterpreted as an unquoted
// string value.

type tokenKind int

const (
	tokWord tokenKind = iota
	tokString
	tokNumber
	tokBoolean
	tokNull
	tokGroup
	tokOperator
	tokComparator
)

type token struct {
	kind  tokenKind
	value string
}

var comparatorSet = map[string]bool{
	"eq": true, "ne": true, "co": true, "sw": true, "ew": true,
	"gt": true, "lt": true, "ge": true, "le": true, "pr": true, "np": true,
}

func isNameChar(c byte) bool {
	return c == '-' || c == '$' || c == '_' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// tokenize scans a filter expression into tokens. Errors are syntax-level
// and get wrapped into invalidFilter protocol errors by the caller.
func tokenize(input string) ([]token, error) {
	var tokens []token
	i := 0

	lastKind := func() (tokenKind, bool) {
		if len(tokens) == 0 {
			return 0, false
		}
		return tokens[len(tokens)-1].kind, true
	}

	for i < len(input) {
		c := input[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++

		case c == '"':
			value, next, err := scanQuoted(input, i)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token{tokString, value})
			i = next

		case c == '(':
			inner, next, err := scanGroup(input, i, '(', ')')
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token{tokGroup, inner})
			i = next

		case c == '[':
			// Bracket groups only occur as a complex-attribute filter fused
			// onto the preceding attribute word
			if k, ok := lastKind(); !ok || k != tokWord {
				return nil, fmt.Errorf("unexpected token '[' in filter expression")
			}
			inner, next, err := scanGroup(input, i, '[', ']')
			if err != nil {
				return nil, err
			}
			tokens[len(tokens)-1].value += "[" + inner + "]"
			i = next

		case c == '.':
			// Dotted continuation of the preceding word, e.g. after a fused
			// bracket group: emails[type eq "work"].value
			if k, ok := lastKind(); !ok || k != tokWord {
				return nil, fmt.Errorf("unexpected token '.' in filter expression")
			}
			word, next, err := scanWord(input, i)
			if err != nil {
				return nil, err
			}
			tokens[len(tokens)-1].value += word
			i = next

		case c >= '0' && c <= '9' || (c == '-' && i+1 < len(input) && input[i+1] >= '0' && input[i+1] <= '9'):
			start := i
			i++
			for i < len(input) && (input[i] >= '0' && input[i] <= '9' || input[i] == '.') {
				i++
			}
			tokens = append(tokens, token{tokNumber, input[start:i]})

		case isNameChar(c):
			word, next, err := scanWord(input, i)
			if err != nil {
				return nil, err
			}
			i = next
			prev, hasPrev := lastKind()
			if hasPrev && prev == tokWord && strings.HasSuffix(tokens[len(tokens)-1].value, ".") {
				// Word continuation across a trailing dot
				tokens[len(tokens)-1].value += word
				continue
			}
			tokens = append(tokens, classifyWord(word, hasPrev && expectsValue(tokens[len(tokens)-1])))

		default:
			return nil, fmt.Errorf("unexpected token '%c' in filter expression", c)
		}
	}
	return tokens, nil
}

// expectsValue reports whether the token is a comparator that takes an
// operand. "pr" and "np" are complete on their own, so a word after them is
// never an implicit string value.
func expectsValue(t token) bool {
	return t.kind == tokComparator && t.value != "pr" && t.value != "np"
}

// classifyWord types a scanned word. A word right after a value-taking
// comparator is an unquoted string value unless it is a typed literal.
func classifyWord(word string, afterComparator bool) token {
	if strings.ContainsAny(word, "[.") {
		return token{tokWord, word}
	}
	lower := strings.ToLower(word)
	switch lower {
	case "true", "false":
		return token{tokBoolean, lower}
	case "null":
		return token{tokNull, lower}
	}
	if afterComparator {
		return token{tokString, word}
	}
	switch lower {
	case "and", "or", "not":
		return token{tokOperator, lower}
	}
	if comparatorSet[lower] {
		return token{tokComparator, lower}
	}
	return token{tokWord, word}
}

// scanWord consumes an attribute path: name characters, dots, colons (URN
// namespaces), and embedded bracket groups kept verbatim
func scanWord(input string, start int) (string, int, error) {
	i := start
	for i < len(input) {
		c := input[i]
		if isNameChar(c) || c == '.' || c == ':' {
			i++
			continue
		}
		if c == '[' {
			_, next, err := scanGroup(input, i, '[', ']')
			if err != nil {
				return "", 0, err
			}
			i = next
			continue
		}
		break
	}
	return input[start:i], i, nil
}

// scanQuoted consumes a double-quoted string starting at input[start],
// returning the unescaped contents
func scanQuoted(input string, start int) (string, int, error) {
	var sb strings.Builder
	i := start + 1
	for i < len(input) {
		c := input[i]
		switch c {
		case '\\':
			if i+1 >= len(input) {
				return "", 0, fmt.Errorf("missing closing '\"' token in filter expression")
			}
			switch input[i+1] {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			default:
				sb.WriteByte(input[i+1])
			}
			i += 2
		case '"':
			return sb.String(), i + 1, nil
		default:
			sb.WriteByte(c)
			i++
		}
	}
	return "", 0, fmt.Errorf("missing closing '\"' token in filter expression")
}

// scanGroup consumes a balanced group starting at input[start] == open,
// returning the inner contents. Quoted strings inside the group are skipped
// whole so delimiters in values cannot unbalance the scan.
func scanGroup(input string, start int, open, close byte) (string, int, error) {
	depth := 0
	i := start
	for i < len(input) {
		c := input[i]
		switch c {
		case '"':
			_, next, err := scanQuoted(input, i)
			if err != nil {
				return "", 0, err
			}
			i = next
		case open:
			depth++
			i++
		case close:
			depth--
			i++
			if depth == 0 {
				return input[start+1 : i-1], i, nil
			}
		default:
			i++
		}
	}
	return "", 0, fmt.Errorf("missing closing '%c' token in filter expression", close)
}

// ============================================================
// Path Splitting
// ============================================================

// SplitPath splits an attribute path on dots, leaving bracketed filter
// groups and decimal digit runs intact. Shared by filter parsing and patch
// path resolution.
func SplitPath(path string) []string {
	var segments []string
	var sb strings.Builder
	i := 0
	for i < len(path) {
		c := path[i]
		switch c {
		case '[':
			if inner, next, err := scanGroup(path, i, '[', ']'); err == nil {
				sb.WriteString("[" + inner + "]")
				i = next
				continue
			}
			sb.WriteByte(c)
			i++
		case '.':
			// Keep decimal points inside numeric runs together
			if i > 0 && i+1 < len(path) && isDigit(path[i-1]) && isDigit(path[i+1]) {
				sb.WriteByte(c)
				i++
				continue
			}
			segments = append(segments, sb.String())
			sb.Reset()
			i++
		default:
			sb.WriteByte(c)
			i++
		}
	}
	segments = append(segments, sb.String())
	return segments
}

// CutFilter splits a path segment into its attribute name and any bracketed
// filter expression, e.g. `emails[type eq "work"]` yields ("emails",
// `type eq "work"`, true)
func CutFilter(segment string) (name, filterExpr string, found bool) {
	idx := strings.IndexByte(segment, '[')
	if idx < 0 {
		return segment, "", false
	}
	if strings.HasSuffix(segment, "]") {
		return segment[:idx], segment[idx+1 : len(segment)-1], true
	}
	return segment, "", false
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
