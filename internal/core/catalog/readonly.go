package catalog

import (
	"fmt"
	"strings"
)

// Keywords that never belong in an analytic read, even inside a CTE.
var writeKeywords = map[string]bool{
	"ALTER": true, "ATTACH": true, "CHECKPOINT": true, "COPY": true, "CREATE": true,
	"DELETE": true, "DETACH": true, "DROP": true, "EXPORT": true, "IMPORT": true,
	"INSERT": true, "INSTALL": true, "MERGE": true, "PRAGMA": true, "TRUNCATE": true,
	"UPDATE": true, "VACUUM": true,
}

// checkReadOnly accepts exactly one statement that starts with SELECT or WITH
// and carries no write keyword outside quotes and comments.
func checkReadOnly(sqlText string) error {
	words, statements := scanSQL(sqlText)
	if len(words) == 0 {
		return fmt.Errorf("%w: empty statement", ErrNotReadOnly)
	}
	if statements > 1 {
		return fmt.Errorf("%w: found %d statements", ErrNotReadOnly, statements)
	}
	if first := words[0]; first != "SELECT" && first != "WITH" {
		return fmt.Errorf("%w: statement starts with %s", ErrNotReadOnly, first)
	}
	for _, w := range words {
		if writeKeywords[w] {
			return fmt.Errorf("%w: %s is not permitted", ErrNotReadOnly, w)
		}
	}
	return nil
}

// scanSQL returns the upper-cased bare words of sqlText and the number of
// non-empty statements separated by semicolons. Quoted text and comments are skipped.
func scanSQL(s string) (words []string, statements int) {
	inStatement := false
	for i := 0; i < len(s); {
		ch := s[i]
		switch {
		case ch == '-' && i+1 < len(s) && s[i+1] == '-':
			for i < len(s) && s[i] != '\n' {
				i++
			}
		case ch == '/' && i+1 < len(s) && s[i+1] == '*':
			end := strings.Index(s[i+2:], "*/")
			if end < 0 {
				i = len(s)
			} else {
				i += end + 4
			}
		case ch == '\'' || ch == '"':
			i++
			for i < len(s) {
				if s[i] == ch {
					// doubled quote is an escaped quote
					if i+1 < len(s) && s[i+1] == ch {
						i += 2
						continue
					}
					break
				}
				i++
			}
			i++
			inStatement = true
		case ch == ';':
			if inStatement {
				statements++
			}
			inStatement = false
			i++
		case isWordByte(ch):
			start := i
			for i < len(s) && isWordByte(s[i]) {
				i++
			}
			words = append(words, strings.ToUpper(s[start:i]))
			inStatement = true
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
			i++
		default:
			inStatement = true
			i++
		}
	}
	if inStatement {
		statements++
	}
	return words, statements
}

func isWordByte(b byte) bool {
	return b == '_' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}
