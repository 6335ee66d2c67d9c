package sqlanalyze

import "strings"

// scanBalanced reads a parenthesized body starting at the opening paren at
// sql[open]. It tracks nesting depth and skips single-quoted literals so a
// ')' inside a string cannot terminate the scan. Returns the body between
// the outer parens and the index just past the closing paren, or ("", -1)
// when the parens never balance.
func scanBalanced(sql string, open int) (string, int) {
	if open >= len(sql) || sql[open] != '(' {
		return "", -1
	}

	depth := 0
	inString := false
	for i := open; i < len(sql); i++ {
		c := sql[i]
		if inString {
			if c == '\'' {
				// Doubled quote is an escaped quote inside the literal.
				if i+1 < len(sql) && sql[i+1] == '\'' {
					i++
					continue
				}
				inString = false
			}
			continue
		}
		switch c {
		case '\'':
			inString = true
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return sql[open+1 : i], i + 1
			}
		}
	}
	return "", -1
}

// findMatchingEnd locates the END closing the CASE at sql[caseStart],
// accounting for nested CASE expressions. Returns the index just past END,
// or -1 when unterminated.
func findMatchingEnd(sql string, caseStart int) int {
	upper := strings.ToUpper(sql)
	depth := 0
	i := caseStart
	for i < len(upper) {
		switch {
		case hasWordAt(upper, i, "CASE"):
			depth++
			i += 4
		case hasWordAt(upper, i, "END"):
			depth--
			i += 3
			if depth == 0 {
				return i
			}
		default:
			i++
		}
	}
	return -1
}

// hasWordAt reports whether word occurs at offset i bounded by non-word
// characters on both sides.
func hasWordAt(s string, i int, word string) bool {
	if i+len(word) > len(s) || s[i:i+len(word)] != word {
		return false
	}
	if i > 0 && isWordChar(s[i-1]) {
		return false
	}
	if end := i + len(word); end < len(s) && isWordChar(s[end]) {
		return false
	}
	return true
}

func isWordChar(c byte) bool {
	return c == '_' || (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
