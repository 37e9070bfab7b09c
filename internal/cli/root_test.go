// Copyright (c) 2026 Taskboard Team
// Taskboard - task tracking storage layer
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// runCLI executes a fresh root command against a sqlite file in a scratch
// directory and returns its stdout.
func runCLI(t *testing.T, dbPath string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--db-path", dbPath}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func isolate(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmp)
	t.Setenv("HOME", tmp)
	t.Chdir(tmp)
	return tmp
}

func TestNewRootCmd_RegistersSubcommands(t *testing.T) {
	cmd := NewRootCmd()
	for _, n := range []string{"migrate", "inspect", "ping", "maintain", "query", "backup", "restore", "config", "version"} {
		found := false
		for _, c := range cmd.Commands() {
			if c.Name() == n {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("expected subcommand %s to be registered", n)
		}
	}
	if cmd.Version == "" {
		t.Fatalf("expected a version string")
	}
}

func TestMigrate_CreatesThenIsIdempotent(t *testing.T) {
	tmp := isolate(t)
	dbPath := filepath.Join(tmp, "tb.db")

	out, err := runCLI(t, dbPath, "migrate")
	if err != nil {
		t.Fatalf("first migrate: %v\n%s", err, out)
	}
	if !strings.Contains(out, "CREATE TABLE") || !strings.Contains(out, "sessions.*") {
		t.Fatalf("expected created tables in output, got:\n%s", out)
	}

	out, err = runCLI(t, dbPath, "migrate")
	if err != nil {
		t.Fatalf("second migrate: %v\n%s", err, out)
	}
	if strings.Contains(out, "CREATE TABLE") || strings.Contains(out, "ALTER TABLE") {
		t.Fatalf("expected no DDL on the second run, got:\n%s", out)
	}
}

func TestQueryAndInspect(t *testing.T) {
	tmp := isolate(t)
	dbPath := filepath.Join(tmp, "tb.db")

	if out, err := runCLI(t, dbPath, "query", "--exec",
		"INSERT INTO users (id, email, name) VALUES (?, ?, ?)",
		"3f1f6c1e-8a39-4c59-9d9a-2d4ae4a1c0b1", "ada@example.com", "Ada"); err != nil {
		t.Fatalf("insert: %v\n%s", err, out)
	} else if !strings.Contains(out, "affected: 1") {
		t.Fatalf("expected one affected row, got:\n%s", out)
	}

	out, err := runCLI(t, dbPath, "query", "SELECT id, email, is_admin FROM users WHERE email = ?", "ada@example.com")
	if err != nil {
		t.Fatalf("select: %v\n%s", err, out)
	}
	for _, want := range []string{"3f1f6c1e-8a39-4c59-9d9a-2d4ae4a1c0b1", "ada@example.com", "is_admin: false"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got:\n%s", want, out)
		}
	}

	out, err = runCLI(t, dbPath, "inspect", "sessions")
	if err != nil {
		t.Fatalf("inspect: %v\n%s", err, out)
	}
	if !strings.Contains(out, "name: token") {
		t.Fatalf("expected sessions.token in inspect output, got:\n%s", out)
	}

	if _, err := runCLI(t, dbPath, "inspect", "no_such_table"); err == nil {
		t.Fatalf("expected an error for an unknown table")
	}
}

func TestQuery_PlaceholderMismatchFails(t *testing.T) {
	tmp := isolate(t)
	_, err := runCLI(t, filepath.Join(tmp, "tb.db"), "query", "SELECT * FROM tasks WHERE id = ?")
	if err == nil || !strings.Contains(err.Error(), "placeholder count mismatch") {
		t.Fatalf("expected placeholder mismatch, got %v", err)
	}
}

func TestPingAndMaintain(t *testing.T) {
	tmp := isolate(t)
	dbPath := filepath.Join(tmp, "tb.db")
	out, err := runCLI(t, dbPath, "ping")
	if err != nil || !strings.HasPrefix(out, "ok embedded:") {
		t.Fatalf("ping: %v\n%s", err, out)
	}
	out, err = runCLI(t, dbPath, "maintain")
	if err != nil || !strings.Contains(out, "Maintenance completed successfully") {
		t.Fatalf("maintain: %v\n%s", err, out)
	}
}

func TestConfigWrite(t *testing.T) {
	tmp := isolate(t)
	out, err := runCLI(t, filepath.Join(tmp, "tb.db"), "config", "write")
	if err != nil {
		t.Fatalf("config write: %v\n%s", err, out)
	}
	path := filepath.Join(tmp, "taskboard", "taskboard.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected config at %s: %v", path, err)
	}
	if !strings.Contains(string(data), "tb.db") {
		t.Fatalf("expected flag value persisted, got:\n%s", data)
	}
}

func TestMissingConfigFileFails(t *testing.T) {
	tmp := isolate(t)
	_, err := runCLI(t, filepath.Join(tmp, "tb.db"), "--config", filepath.Join(tmp, "absent.yaml"), "ping")
	if err == nil {
		t.Fatalf("expected an error for a missing --config file")
	}
}

func TestBackupAndRestore(t *testing.T) {
	tmp := isolate(t)
	src := filepath.Join(tmp, "src.db")
	if out, err := runCLI(t, src, "query", "--exec",
		"INSERT INTO users (id, email, name) VALUES (?, ?, ?)",
		"9a7c2e1b-0d4f-4e6a-8b3c-5f2d1e0a9b8c", "grace@example.com", "Grace"); err != nil {
		t.Fatalf("insert: %v\n%s", err, out)
	}

	out, err := runCLI(t, src, "backup", "snap.json")
	if err != nil {
		t.Fatalf("backup: %v\n%s", err, out)
	}
	if !strings.Contains(out, "snap.json.zst") {
		t.Fatalf("expected .zst to be appended, got:\n%s", out)
	}

	dst := filepath.Join(tmp, "dst.db")
	out, err = runCLI(t, dst, "restore", filepath.Join(tmp, "snap.json.zst"))
	if err != nil {
		t.Fatalf("restore: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Restored 1 rows") {
		t.Fatalf("unexpected restore output:\n%s", out)
	}
	out, err = runCLI(t, dst, "query", "SELECT email FROM users")
	if err != nil || !strings.Contains(out, "grace@example.com") {
		t.Fatalf("restored row missing: %v\n%s", err, out)
	}
}
