// Copyright (c) 2026 Taskboard Team
// Taskboard - task tracking storage layer
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"fmt"
	"strconv"
	"strings"
)

// rebind scans stmt left to right and counts ? placeholders outside of
// string literals, quoted identifiers and comments. With numbered set each
// placeholder is replaced by $1, $2, ... in order. The count must equal nargs.
// With backslash set a backslash escapes the next character inside string
// literals; E'...' literals always honor backslash escapes.
func rebind(stmt string, nargs int, numbered, backslash bool) (string, error) {
	var b strings.Builder
	if numbered {
		b.Grow(len(stmt) + 2*nargs)
	}
	n := 0
	for i := 0; i < len(stmt); i++ {
		ch := stmt[i]
		switch {
		case ch == '\'' || ch == '"' || ch == '`':
			escapes := ch != '`' && (backslash || (ch == '\'' && escapePrefixed(stmt, i)))
			end := skipQuoted(stmt, i, ch, escapes)
			if numbered {
				b.WriteString(stmt[i:end])
			}
			i = end - 1
		case ch == '-' && i+1 < len(stmt) && stmt[i+1] == '-':
			end := strings.IndexByte(stmt[i:], '\n')
			if end < 0 {
				end = len(stmt)
			} else {
				end += i
			}
			if numbered {
				b.WriteString(stmt[i:end])
			}
			i = end - 1
		case ch == '/' && i+1 < len(stmt) && stmt[i+1] == '*':
			end := strings.Index(stmt[i+2:], "*/")
			if end < 0 {
				end = len(stmt)
			} else {
				end += i + 4
			}
			if numbered {
				b.WriteString(stmt[i:end])
			}
			i = end - 1
		case ch == '?':
			n++
			if numbered {
				b.WriteByte('$')
				b.WriteString(strconv.Itoa(n))
			}
		default:
			if numbered {
				b.WriteByte(ch)
			}
		}
	}
	if n != nargs {
		return "", &OpError{
			Kind: ErrPlaceholderCountMismatch,
			Op:   "rebind",
			Stmt: stmt,
			Err:  fmt.Errorf("statement has %d placeholders, %d arguments bound", n, nargs),
		}
	}
	if !numbered {
		return stmt, nil
	}
	return b.String(), nil
}

// skipQuoted returns the index just past the quoted run that starts at
// stmt[start]. A doubled quote character is an escaped quote, and so is a
// backslash-escaped one when escapes is set.
func skipQuoted(stmt string, start int, quote byte, escapes bool) int {
	for i := start + 1; i < len(stmt); i++ {
		if escapes && stmt[i] == '\\' {
			i++
			continue
		}
		if stmt[i] != quote {
			continue
		}
		if i+1 < len(stmt) && stmt[i+1] == quote {
			i++
			continue
		}
		return i + 1
	}
	return len(stmt)
}

// escapePrefixed reports whether the quote at stmt[i] opens an E'...'
// escape string literal.
func escapePrefixed(stmt string, i int) bool {
	if i == 0 || (stmt[i-1] != 'E' && stmt[i-1] != 'e') {
		return false
	}
	return i == 1 || !isIdentByte(stmt[i-2])
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '$' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= 0x80
}
