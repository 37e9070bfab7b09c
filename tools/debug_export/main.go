// Copyright (c) 2026 Taskboard Team
// Taskboard - task tracking storage layer
// This source code is licensed under the MIT license found in the LICENSE file.

// debug_export seeds a demo board into a store and prints what it wrote.
// Without arguments it uses an in-memory sqlite database.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/taskboard/taskboard/internal/config"
	"github.com/taskboard/taskboard/internal/db"
	"github.com/taskboard/taskboard/internal/model"
)

func main() {
	path := ":memory:"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}
	if err := run(context.Background(), config.Database{Path: path}); err != nil {
		fmt.Fprintf(os.Stderr, "debug_export: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Database) error {
	a, err := db.New(cfg, model.Tables())
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()
	if err := a.Initialize(ctx); err != nil {
		return err
	}

	err = a.Transaction(ctx, func(ctx context.Context, q db.Querier) error {
		owner := uuid.New()
		if _, err := q.Execute(ctx, "INSERT INTO users (id, email, name) VALUES (?, ?, ?)", owner, "demo@example.com", "Demo"); err != nil {
			return err
		}
		project := uuid.New()
		if _, err := q.Execute(ctx, "INSERT INTO projects (id, name, owner_id) VALUES (?, ?, ?)", project, "Demo project", owner); err != nil {
			return err
		}
		board := uuid.New()
		if _, err := q.Execute(ctx, "INSERT INTO boards (id, project_id, name) VALUES (?, ?, ?)", board, project, "Sprint"); err != nil {
			return err
		}
		for i, name := range []string{"Todo", "Doing", "Done"} {
			col := uuid.New()
			if _, err := q.Execute(ctx, `INSERT INTO "columns" (id, board_id, name, position) VALUES (?, ?, ?, ?)`, col, board, name, i); err != nil {
				return err
			}
			if _, err := q.Execute(ctx, "INSERT INTO tasks (id, column_id, title, created_by) VALUES (?, ?, ?, ?)", uuid.New(), col, name+" task", owner); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, t := range model.Tables() {
		res, err := a.Query(ctx, "SELECT COUNT(*) AS n FROM "+a.Dialect().Quote(t.Name))
		if err != nil {
			return err
		}
		row, _ := res.First()
		fmt.Printf("%s: %d\n", t.Name, row.Int("n"))
	}

	res, err := a.Query(ctx, `SELECT c.name AS "column", t.title FROM tasks t JOIN "columns" c ON c.id = t.column_id ORDER BY c.position`)
	if err != nil {
		return err
	}
	for _, row := range res.Rows {
		fmt.Printf("task: %s / %s\n", row.String("column"), row.String("title"))
	}
	return nil
}
