// Copyright (c) 2026 Taskboard Team
// Taskboard - task tracking storage layer
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/taskboard/taskboard/internal/logging"
	"github.com/uptrace/bun"
)

// MigrationsTable is the ledger of additive changes applied by the
// reconciler. It is reconciled ahead of the application's tables.
var MigrationsTable = Table{
	Name: "schema_migrations",
	Columns: []Column{
		{Name: "table_name", Type: Text, NotNull: true},
		{Name: "column_name", Type: Text, NotNull: true},
		{Name: "applied_at", Type: Timestamp, NotNull: true, Default: CurrentTimestamp},
	},
	PrimaryKey: []string{"table_name", "column_name"},
}

// Report describes what one reconcile pass changed.
type Report struct {
	Created    []string
	Added      []Migration
	Statements []string
	Warnings   []string
}

// Changed reports whether any DDL was executed.
func (r Report) Changed() bool { return len(r.Statements) > 0 }

// liveColumn is one row of catalog introspection.
type liveColumn struct {
	Name    string         `bun:"name"`
	Type    string         `bun:"type"`
	NotNull int            `bun:"not_null"`
	Default sql.NullString `bun:"dflt"`
}

type reconciler struct {
	d    *Dialect
	conn bun.Conn
	rep  Report
}

// Reconcile brings the schema reachable through conn up to the declared
// tables. It only creates tables and adds columns; drifted column types are
// reported as warnings and left alone. Running it against a schema that
// already holds every declared column executes no DDL.
func Reconcile(ctx context.Context, d *Dialect, conn bun.Conn, tables []Table) (Report, error) {
	start := time.Now()
	r := &reconciler{d: d, conn: conn}

	existing, err := listTables(ctx, d, conn)
	if err != nil {
		return r.rep, &OpError{Kind: ErrSchemaReconcile, Op: "list tables", Err: err}
	}
	present := make(map[string]bool, len(existing))
	for _, name := range existing {
		present[strings.ToLower(name)] = true
	}

	all := append([]Table{MigrationsTable}, tables...)
	for _, t := range all {
		if err := t.Validate(); err != nil {
			return r.rep, &OpError{Kind: ErrSchemaReconcile, Op: "validate", Table: t.Name, Err: err}
		}
		if !present[strings.ToLower(t.Name)] {
			if err := r.create(ctx, t); err != nil {
				return r.rep, err
			}
			present[strings.ToLower(t.Name)] = true
			continue
		}
		if err := r.extend(ctx, t); err != nil {
			return r.rep, err
		}
	}
	dbLogf("db: reconciled %d tables on %s in %s (%d statements)", len(all), d.Name(), time.Since(start), len(r.rep.Statements))
	return r.rep, nil
}

func (r *reconciler) create(ctx context.Context, t Table) error {
	stmt := r.d.CreateTable(t)
	if _, err := r.conn.Conn.ExecContext(ctx, stmt); err != nil {
		return &OpError{Kind: ErrSchemaReconcile, Op: "create table", Table: t.Name, Stmt: stmt, Err: err}
	}
	r.rep.Created = append(r.rep.Created, t.Name)
	r.rep.Statements = append(r.rep.Statements, stmt)
	return r.record(ctx, Migration{Table: t.Name, Column: CreatedMarker})
}

// extend adds the declared columns missing from an existing table.
func (r *reconciler) extend(ctx context.Context, t Table) error {
	live, err := listColumns(ctx, r.d, r.conn, t.Name)
	if err != nil {
		return &OpError{Kind: ErrSchemaReconcile, Op: "introspect", Table: t.Name, Err: err}
	}
	byName := make(map[string]liveColumn, len(live))
	for _, c := range live {
		byName[strings.ToLower(c.Name)] = c
	}

	var missing []Column
	for _, c := range t.Columns {
		lc, ok := byName[strings.ToLower(c.Name)]
		if !ok {
			missing = append(missing, c)
			continue
		}
		if !r.d.Matches(c.Type, lc.Type) {
			r.warn("%s.%s: live type %q does not match declared %s (%s), left unchanged",
				t.Name, c.Name, lc.Type, c.Type, r.d.NativeType(c, false))
		}
	}
	if len(missing) == 0 {
		return nil
	}

	mayHaveRows, err := r.hasRows(ctx, t.Name)
	if err != nil {
		return &OpError{Kind: ErrSchemaReconcile, Op: "introspect", Table: t.Name, Err: err}
	}
	// One statement per column; the embedded engine cannot add several.
	for _, c := range missing {
		planned, warnings, err := r.d.PlanAddColumn(t.Name, c, mayHaveRows)
		if err != nil {
			return &OpError{Kind: ErrSchemaReconcile, Op: "add column", Table: t.Name, Column: c.Name, Err: err}
		}
		for _, w := range warnings {
			r.warn("%s", w)
		}
		stmt := r.d.AddColumn(t.Name, planned)
		if _, err := r.conn.Conn.ExecContext(ctx, stmt); err != nil {
			return &OpError{Kind: ErrSchemaReconcile, Op: "add column", Table: t.Name, Column: c.Name, Stmt: stmt, Err: err}
		}
		m := Migration{Table: t.Name, Column: c.Name}
		r.rep.Added = append(r.rep.Added, m)
		r.rep.Statements = append(r.rep.Statements, stmt)
		if err := r.record(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func (r *reconciler) hasRows(ctx context.Context, table string) (bool, error) {
	var one int
	err := r.conn.Conn.QueryRowContext(ctx, r.d.hasRowsQuery(table)).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// record appends m to the ledger. An entry left by an earlier, interrupted
// run is not an error.
func (r *reconciler) record(ctx context.Context, m Migration) error {
	stmt, err := r.d.Rebind("INSERT INTO "+r.d.Quote(MigrationsTable.Name)+" (table_name, column_name) VALUES (?, ?)", 2)
	if err != nil {
		return &OpError{Kind: ErrSchemaReconcile, Op: "record", Table: m.Table, Column: m.Column, Err: err}
	}
	_, err = r.conn.Conn.ExecContext(ctx, stmt, m.Table, m.Column)
	if err != nil && !errors.Is(MapDBError(err), ErrDuplicate) {
		return &OpError{Kind: ErrSchemaReconcile, Op: "record", Table: m.Table, Column: m.Column, Stmt: stmt, Err: err}
	}
	return nil
}

func (r *reconciler) warn(format string, v ...any) {
	logging.Warnf("db: "+format, v...)
	r.rep.Warnings = append(r.rep.Warnings, fmt.Sprintf(format, v...))
}

func listTables(ctx context.Context, d *Dialect, conn bun.Conn) ([]string, error) {
	var names []string
	if err := QueryRawInto(ctx, conn, &names, d.tablesQuery()); err != nil {
		return nil, err
	}
	return names, nil
}

func listColumns(ctx context.Context, d *Dialect, conn bun.Conn, table string) ([]liveColumn, error) {
	var cols []liveColumn
	if err := QueryRawInto(ctx, conn, &cols, d.columnsQuery(), table); err != nil {
		return nil, err
	}
	return cols, nil
}
