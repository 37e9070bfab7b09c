// Copyright (c) 2026 Taskboard Team
// Taskboard - task tracking storage layer
// This source code is licensed under the MIT license found in the LICENSE file.

package model_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/taskboard/taskboard/internal/config"
	"github.com/taskboard/taskboard/internal/db"
	"github.com/taskboard/taskboard/internal/model"
)

func TestTablesValidateInDependencyOrder(t *testing.T) {
	seen := map[string]bool{}
	for _, tbl := range model.Tables() {
		if err := tbl.Validate(); err != nil {
			t.Fatalf("table %s: %v", tbl.Name, err)
		}
		if seen[tbl.Name] {
			t.Fatalf("table %s declared twice", tbl.Name)
		}
		for _, c := range tbl.Columns {
			if c.References != nil && !seen[c.References.Table] && c.References.Table != tbl.Name {
				t.Fatalf("%s.%s references %s before it is declared", tbl.Name, c.Name, c.References.Table)
			}
		}
		seen[tbl.Name] = true
	}
	for _, want := range []string{model.Users, model.Sessions, model.Projects, model.Boards, model.Columns,
		model.Tasks, model.Tags, model.TaskTags, model.TaskAssignees, model.ProjectMembers} {
		if !seen[want] {
			t.Fatalf("missing table %s", want)
		}
	}
}

func TestSchemaColumnsRequiredByApplication(t *testing.T) {
	want := map[string][]string{
		model.Users:          {"password_hash"},
		model.Sessions:       {"token"},
		model.Projects:       {"telegram_chat_id", "telegram_topic_id"},
		model.ProjectMembers: {"joined_at"},
	}
	for _, tbl := range model.Tables() {
		for _, name := range want[tbl.Name] {
			if _, ok := tbl.Column(name); !ok {
				t.Fatalf("%s lacks column %s", tbl.Name, name)
			}
		}
		if tbl.Name == model.Sessions {
			c, _ := tbl.Column("token")
			if c.NotNull || c.Type != db.Text {
				t.Fatalf("sessions.token should be nullable text, got %+v", c)
			}
		}
	}
}

func newAdapter(t *testing.T) *db.Adapter {
	t.Helper()
	a, err := db.New(config.Database{Path: filepath.Join(t.TempDir(), "taskboard.db")}, model.Tables())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestSchemaReconcilesOnEmbeddedStore(t *testing.T) {
	a := newAdapter(t)
	ctx := context.Background()

	rep := a.Report()
	if len(rep.Created) != len(model.Tables())+1 {
		t.Fatalf("expected every table plus the ledger to be created, got %v", rep.Created)
	}
	for _, tbl := range model.Tables() {
		cols, err := a.Inspect(ctx, tbl.Name)
		if err != nil {
			t.Fatalf("Inspect %s: %v", tbl.Name, err)
		}
		live := map[string]bool{}
		for _, c := range cols {
			live[c.Name] = true
		}
		for _, c := range tbl.Columns {
			if !live[c.Name] {
				t.Fatalf("%s.%s missing after initialize", tbl.Name, c.Name)
			}
		}
	}
}

func TestBoardHierarchyCascades(t *testing.T) {
	a := newAdapter(t)
	ctx := context.Background()

	user, project, board, column, task := uuid.New(), uuid.New(), uuid.New(), uuid.New(), uuid.New()
	err := a.Transaction(ctx, func(ctx context.Context, q db.Querier) error {
		steps := []struct {
			stmt string
			args []any
		}{
			{"INSERT INTO users (id, email) VALUES (?, ?)", []any{user, "ada@example.com"}},
			{"INSERT INTO projects (id, name, owner_id, telegram_chat_id) VALUES (?, ?, ?, ?)", []any{project, "Launch", user, "-1001"}},
			{"INSERT INTO project_members (project_id, user_id) VALUES (?, ?)", []any{project, user}},
			{"INSERT INTO boards (id, project_id, name) VALUES (?, ?, ?)", []any{board, project, "Main"}},
			{`INSERT INTO "columns" (id, board_id, name, position) VALUES (?, ?, ?, ?)`, []any{column, board, "Todo", 1}},
			{"INSERT INTO tasks (id, column_id, title, due_at, created_by) VALUES (?, ?, ?, ?, ?)",
				[]any{task, column, "Write docs", time.Date(2026, 11, 1, 9, 0, 0, 0, time.UTC), user}},
		}
		for _, s := range steps {
			if _, err := q.Execute(ctx, s.stmt, s.args...); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed transaction: %v", err)
	}

	res, err := a.Query(ctx, "SELECT role, joined_at FROM project_members WHERE project_id = ?", project)
	if err != nil {
		t.Fatalf("Query members: %v", err)
	}
	row, ok := res.First()
	if !ok || row.String("role") != "member" || row.Time("joined_at").IsZero() {
		t.Fatalf("unexpected member row %#v", row)
	}

	res, err = a.Query(ctx, "SELECT id, archived, due_at FROM tasks WHERE column_id = ?", column)
	if err != nil {
		t.Fatalf("Query tasks: %v", err)
	}
	row, _ = res.First()
	if row.UUID("id") != task || row.Bool("archived") || !row.Time("due_at").Equal(time.Date(2026, 11, 1, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected task row %#v", row)
	}

	if _, err := a.Execute(ctx, "DELETE FROM projects WHERE id = ?", project); err != nil {
		t.Fatalf("delete project: %v", err)
	}
	res, err = a.Query(ctx, "SELECT COUNT(*) AS n FROM tasks")
	if err != nil {
		t.Fatalf("count tasks: %v", err)
	}
	if row, _ := res.First(); row.Int("n") != 0 {
		t.Fatalf("expected tasks to cascade with their project, got %v", row["n"])
	}
}

func TestDuplicateEmailIsReported(t *testing.T) {
	a := newAdapter(t)
	ctx := context.Background()
	if _, err := a.Execute(ctx, "INSERT INTO users (id, email) VALUES (?, ?)", uuid.New(), "dup@example.com"); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	_, err := a.Execute(ctx, "INSERT INTO users (id, email) VALUES (?, ?)", uuid.New(), "dup@example.com")
	if !errors.Is(err, db.ErrQueryFailed) || !errors.Is(err, db.ErrDuplicate) {
		t.Fatalf("expected duplicate query failure, got %v", err)
	}
}
