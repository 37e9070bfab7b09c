// Copyright (c) 2026 Taskboard Team
// Taskboard - task tracking storage layer
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"errors"
	"testing"
)

func TestRebind(t *testing.T) {
	cases := []struct {
		name     string
		stmt     string
		nargs    int
		numbered bool
		want     string
	}{
		{"positional unchanged", "SELECT * FROM t WHERE a = ? AND b = ?", 2, false, "SELECT * FROM t WHERE a = ? AND b = ?"},
		{"numbered in order", "SELECT * FROM t WHERE a = ? AND b = ?", 2, true, "SELECT * FROM t WHERE a = $1 AND b = $2"},
		{"no placeholders", "SELECT 1", 0, true, "SELECT 1"},
		{"string literal", "SELECT '?' FROM t WHERE a = ?", 1, true, "SELECT '?' FROM t WHERE a = $1"},
		{"escaped quote", "SELECT 'it''s ?' WHERE a = ?", 1, true, "SELECT 'it''s ?' WHERE a = $1"},
		{"quoted identifier", `SELECT "a?b" FROM t WHERE c = ?`, 1, true, `SELECT "a?b" FROM t WHERE c = $1`},
		{"backtick identifier", "SELECT `a?` FROM t WHERE c = ?", 1, true, "SELECT `a?` FROM t WHERE c = $1"},
		{"line comment", "SELECT a -- why?\nFROM t WHERE b = ?", 1, true, "SELECT a -- why?\nFROM t WHERE b = $1"},
		{"block comment", "SELECT /* ? */ a FROM t WHERE b = ?", 1, true, "SELECT /* ? */ a FROM t WHERE b = $1"},
		{"unterminated literal", "SELECT '?", 0, true, "SELECT '?"},
		{"escape string", `SELECT E'it\'s ?' WHERE a = ?`, 1, true, `SELECT E'it\'s ?' WHERE a = $1`},
		{"lowercase escape string", `SELECT e'\\' WHERE a = ?`, 1, true, `SELECT e'\\' WHERE a = $1`},
		{"backslash literal outside escape string", `SELECT '\' WHERE a = ?`, 1, true, `SELECT '\' WHERE a = $1`},
		{"identifier ending in e", `SELECT type'x?' WHERE a = ?`, 1, false, `SELECT type'x?' WHERE a = ?`},
		{"ten placeholders", "VALUES (?,?,?,?,?,?,?,?,?,?)", 10, true, "VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := rebind(c.stmt, c.nargs, c.numbered, false)
			if err != nil {
				t.Fatalf("rebind: %v", err)
			}
			if got != c.want {
				t.Fatalf("rebind(%q) = %q; want %q", c.stmt, got, c.want)
			}
		})
	}
}

func TestRebind_CountMismatch(t *testing.T) {
	for _, numbered := range []bool{false, true} {
		_, err := rebind("SELECT * FROM tasks WHERE id = ?", 0, numbered, false)
		if !errors.Is(err, ErrPlaceholderCountMismatch) {
			t.Fatalf("numbered=%v: expected ErrPlaceholderCountMismatch, got %v", numbered, err)
		}
		_, err = rebind("SELECT 1", 1, numbered, false)
		if !errors.Is(err, ErrPlaceholderCountMismatch) {
			t.Fatalf("numbered=%v: expected mismatch for surplus args, got %v", numbered, err)
		}
	}
}

func TestDialectRebind_BackslashEscapes(t *testing.T) {
	stmt := `SELECT id FROM tasks WHERE title = 'it\'s' AND id = ?`
	got, err := MySQLDialect().Rebind(stmt, 1)
	if err != nil {
		t.Fatalf("mysql: %v", err)
	}
	if got != stmt {
		t.Fatalf("mysql rebind = %q", got)
	}
	if _, err := MySQLDialect().Rebind(`SELECT "a\"?" FROM t WHERE b = ?`, 1); err != nil {
		t.Fatalf("mysql double-quoted: %v", err)
	}

	got, err = PostgresDialect().Rebind(`SELECT id FROM tasks WHERE title = E'it\'s' AND id = ?`, 1)
	if err != nil {
		t.Fatalf("postgres: %v", err)
	}
	if want := `SELECT id FROM tasks WHERE title = E'it\'s' AND id = $1`; got != want {
		t.Fatalf("postgres rebind = %q; want %q", got, want)
	}

	// sqlite keeps backslashes literal, so the quote closes the string.
	if _, err := SQLiteDialect().Rebind(`SELECT '\' WHERE a = ?`, 1); err != nil {
		t.Fatalf("sqlite: %v", err)
	}
}
