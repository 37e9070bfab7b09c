// Copyright (c) 2026 Taskboard Team
// Taskboard - task tracking storage layer
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/taskboard/taskboard/internal/logging"
)

const snapshotFormat = 1

// Snapshot is the backend-neutral content of every declared table. Cells
// hold the JSON form of the semantic value, so a snapshot taken on one
// engine can be imported into another. JSON column values are carried as
// strings holding the document text; a null cell is SQL NULL.
type Snapshot struct {
	Format    int             `json:"format"`
	Backend   string          `json:"backend"`
	CreatedAt time.Time       `json:"created_at"`
	Tables    []TableSnapshot `json:"tables"`
}

// TableSnapshot holds the rows of one table.
type TableSnapshot struct {
	Name    string              `json:"name"`
	Columns []string            `json:"columns"`
	Rows    [][]json.RawMessage `json:"rows"`
}

// RowCount returns the number of rows across all tables.
func (s *Snapshot) RowCount() int {
	n := 0
	for _, t := range s.Tables {
		n += len(t.Rows)
	}
	return n
}

// Export reads the declared columns of every declared table inside one
// transaction.
func (a *Adapter) Export(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{Format: snapshotFormat, Backend: a.dialect.Name(), CreatedAt: time.Now().UTC()}
	err := a.Transaction(ctx, func(ctx context.Context, q Querier) error {
		for _, t := range a.tables {
			ts, err := a.exportTable(ctx, q, t)
			if err != nil {
				return err
			}
			snap.Tables = append(snap.Tables, ts)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	dbLogf("db: exported %d rows from %d tables", snap.RowCount(), len(snap.Tables))
	return snap, nil
}

func (a *Adapter) exportTable(ctx context.Context, q Querier, t Table) (TableSnapshot, error) {
	ts := TableSnapshot{Name: t.Name, Columns: make([]string, len(t.Columns))}
	quoted := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		ts.Columns[i] = c.Name
		quoted[i] = a.dialect.Quote(c.Name)
	}
	res, err := q.Query(ctx, "SELECT "+strings.Join(quoted, ", ")+" FROM "+a.dialect.Quote(t.Name))
	if err != nil {
		return ts, err
	}
	ts.Rows = make([][]json.RawMessage, 0, res.Len())
	for _, row := range res.Rows {
		cells := make([]json.RawMessage, len(t.Columns))
		for i, c := range t.Columns {
			v, err := convertValue(c.Type, row[c.Name])
			if err == nil {
				cells[i], err = encodeCell(v)
			}
			if err != nil {
				return ts, &OpError{Kind: ErrQueryFailed, Op: "export", Table: t.Name, Column: c.Name, Err: err}
			}
		}
		ts.Rows = append(ts.Rows, cells)
	}
	return ts, nil
}

// Import replaces the content of the declared tables with snap inside one
// transaction. Tables absent from snap are emptied. Snapshot columns that
// are no longer declared are skipped; declared columns missing from snap
// take their defaults.
func (a *Adapter) Import(ctx context.Context, snap *Snapshot) error {
	if snap.Format != snapshotFormat {
		return opError(ErrConfigInvalid, "import", fmt.Errorf("unsupported snapshot format %d", snap.Format))
	}
	declared := make(map[string]Table, len(a.tables))
	for _, t := range a.tables {
		declared[strings.ToLower(t.Name)] = t
	}
	byName := make(map[string]TableSnapshot, len(snap.Tables))
	for _, ts := range snap.Tables {
		if _, ok := declared[strings.ToLower(ts.Name)]; !ok {
			return &OpError{Kind: ErrConfigInvalid, Op: "import", Table: ts.Name, Err: fmt.Errorf("table is not declared")}
		}
		byName[strings.ToLower(ts.Name)] = ts
	}

	return a.Transaction(ctx, func(ctx context.Context, q Querier) error {
		// Children first so foreign keys never dangle.
		for i := len(a.tables) - 1; i >= 0; i-- {
			if _, err := q.Execute(ctx, "DELETE FROM "+a.dialect.Quote(a.tables[i].Name)); err != nil {
				return err
			}
		}
		rows := 0
		for _, t := range a.tables {
			ts, ok := byName[strings.ToLower(t.Name)]
			if !ok {
				continue
			}
			n, err := a.importTable(ctx, q, t, ts)
			if err != nil {
				return err
			}
			rows += n
		}
		dbLogf("db: imported %d rows from a %s snapshot of %s", rows, snap.Backend, snap.CreatedAt.Format(time.RFC3339))
		return nil
	})
}

func (a *Adapter) importTable(ctx context.Context, q Querier, t Table, ts TableSnapshot) (int, error) {
	var (
		cols    []Column
		indexes []int
		quoted  []string
	)
	for i, name := range ts.Columns {
		c, ok := t.Column(name)
		if !ok {
			logging.Warnf("db: snapshot column %s.%s is not declared, skipped", t.Name, name)
			continue
		}
		cols = append(cols, c)
		indexes = append(indexes, i)
		quoted = append(quoted, a.dialect.Quote(c.Name))
	}
	if len(cols) == 0 || len(ts.Rows) == 0 {
		return 0, nil
	}
	stmt := "INSERT INTO " + a.dialect.Quote(t.Name) + " (" + strings.Join(quoted, ", ") +
		") VALUES (" + strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ") + ")"

	args := make([]any, len(cols))
	for r, row := range ts.Rows {
		if len(row) != len(ts.Columns) {
			return r, &OpError{Kind: ErrQueryFailed, Op: "import", Table: t.Name,
				Err: fmt.Errorf("row %d has %d cells, want %d", r, len(row), len(ts.Columns))}
		}
		for j, c := range cols {
			v, err := decodeCell(c.Type, row[indexes[j]])
			if err != nil {
				return r, &OpError{Kind: ErrQueryFailed, Op: "import", Table: t.Name, Column: c.Name, Err: err}
			}
			args[j] = v
		}
		if _, err := q.Execute(ctx, stmt, args...); err != nil {
			return r, err
		}
	}
	return len(ts.Rows), nil
}

// encodeCell returns the JSON form of a semantic value.
func encodeCell(v any) (json.RawMessage, error) {
	if doc, ok := v.(json.RawMessage); ok {
		if doc == nil {
			return json.RawMessage("null"), nil
		}
		return json.Marshal(string(doc))
	}
	return json.Marshal(v)
}

// decodeCell turns the JSON form of a cell back into its semantic value.
func decodeCell(t Type, raw json.RawMessage) (any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var err error
	switch t {
	case Text:
		var s string
		err = json.Unmarshal(raw, &s)
		return s, err
	case Integer:
		var n int64
		err = json.Unmarshal(raw, &n)
		return n, err
	case Boolean:
		var b bool
		err = json.Unmarshal(raw, &b)
		return b, err
	case Timestamp:
		var ts time.Time
		err = json.Unmarshal(raw, &ts)
		return ts.UTC(), err
	case UUID:
		var u uuid.UUID
		err = json.Unmarshal(raw, &u)
		return u, err
	case JSON:
		var doc string
		if err = json.Unmarshal(raw, &doc); err != nil {
			return nil, err
		}
		return json.RawMessage(doc), nil
	}
	return nil, fmt.Errorf("unknown column type %q", t)
}

// WriteSnapshot writes snap as zstd-compressed JSON.
func WriteSnapshot(w io.Writer, snap *Snapshot) error {
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("create zstd writer: %w", err)
	}
	if err := json.NewEncoder(zw).Encode(snap); err != nil {
		_ = zw.Close()
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("flush snapshot: %w", err)
	}
	return nil
}

// ReadSnapshot reads a snapshot written by WriteSnapshot.
func ReadSnapshot(r io.Reader) (*Snapshot, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("create zstd reader: %w", err)
	}
	defer zr.Close()
	var snap Snapshot
	if err := json.NewDecoder(zr).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}
