// Copyright (c) 2026 Taskboard Team
// Taskboard - task tracking storage layer
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/taskboard/taskboard/internal/config"
	"github.com/uptrace/bun"
)

// fixtureTables returns a small project/task schema. prefix keeps table
// names apart when a shared server is used.
func fixtureTables(prefix string) []Table {
	projects := prefix + "projects"
	return []Table{
		{
			Name: projects,
			Columns: []Column{
				{Name: "id", Type: UUID, PrimaryKey: true},
				{Name: "name", Type: Text, NotNull: true},
				{Name: "archived", Type: Boolean, NotNull: true, Default: false},
				{Name: "settings", Type: JSON},
				{Name: "created_at", Type: Timestamp, NotNull: true, Default: CurrentTimestamp},
			},
		},
		{
			Name: prefix + "tasks",
			Columns: []Column{
				{Name: "id", Type: UUID, PrimaryKey: true},
				{Name: "project_id", Type: UUID, NotNull: true, References: &ForeignKey{Table: projects, Column: "id", OnDelete: "CASCADE"}},
				{Name: "title", Type: Text, NotNull: true},
				{Name: "priority", Type: Integer, NotNull: true, Default: 0},
				{Name: "due_at", Type: Timestamp},
			},
		},
	}
}

func sqliteConfig(t *testing.T) config.Database {
	t.Helper()
	return config.Database{Path: filepath.Join(t.TempDir(), "test.db")}
}

// newTestAdapter returns an initialized adapter on a fresh sqlite file.
func newTestAdapter(t *testing.T, cfg config.Database, tables []Table) *Adapter {
	t.Helper()
	a, err := New(cfg, tables)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a
}

// countingProvider records Acquire calls of a real provider.
type countingProvider struct {
	provider
	acquires atomic.Int32
}

func (c *countingProvider) Acquire(ctx context.Context) (bun.Conn, error) {
	c.acquires.Add(1)
	return c.provider.Acquire(ctx)
}

func countRows(t *testing.T, q Querier, table string) int64 {
	t.Helper()
	res, err := q.Query(context.Background(), "SELECT COUNT(*) AS n FROM "+table)
	if err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	row, _ := res.First()
	return row.Int("n")
}
