// Copyright (c) 2026 Taskboard Team
// Taskboard - task tracking storage layer
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"fmt"
	"strings"
)

// Type is the backend-neutral type of a column.
type Type string

// Semantic column types.
const (
	Text      Type = "text"
	Integer   Type = "integer"
	Boolean   Type = "boolean"
	Timestamp Type = "timestamp"
	UUID      Type = "uuid"
	JSON      Type = "json"
)

func (t Type) valid() bool {
	switch t {
	case Text, Integer, Boolean, Timestamp, UUID, JSON:
		return true
	}
	return false
}

// Expr is a raw SQL expression used as a column default.
type Expr string

// CurrentTimestamp defaults a timestamp column to the insertion time.
const CurrentTimestamp Expr = "CURRENT_TIMESTAMP"

// ForeignKey points a column at another table's column.
type ForeignKey struct {
	Table    string
	Column   string
	OnDelete string // CASCADE, SET NULL, ...; empty for the engine default
}

// Column describes one column of a Table.
type Column struct {
	Name    string
	Type    Type
	NotNull bool
	// Default is nil, a string, an int/int64, a bool or an Expr.
	Default    any
	PrimaryKey bool
	Unique     bool
	References *ForeignKey
}

// Table describes a table independent of any backend. Columns are created
// in declaration order.
type Table struct {
	Name    string
	Columns []Column
	// PrimaryKey lists the columns of a composite key. Leave empty when a
	// single column is marked PrimaryKey.
	PrimaryKey []string
}

// Column returns the named column.
func (t Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return Column{}, false
}

// ColumnNames returns the declared column names in order.
func (t Table) ColumnNames() []string {
	names := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		names = append(names, c.Name)
	}
	return names
}

// Validate checks the descriptor for internal consistency.
func (t Table) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("table without a name")
	}
	if len(t.Columns) == 0 {
		return fmt.Errorf("table %s declares no columns", t.Name)
	}
	seen := make(map[string]bool, len(t.Columns))
	pkCols := 0
	for _, c := range t.Columns {
		key := strings.ToLower(c.Name)
		if c.Name == "" {
			return fmt.Errorf("table %s has a column without a name", t.Name)
		}
		if seen[key] {
			return fmt.Errorf("table %s declares column %s twice", t.Name, c.Name)
		}
		seen[key] = true
		if !c.Type.valid() {
			return fmt.Errorf("column %s.%s has unknown type %q", t.Name, c.Name, c.Type)
		}
		switch c.Default.(type) {
		case nil, string, int, int64, bool, Expr:
		default:
			return fmt.Errorf("column %s.%s has unsupported default %T", t.Name, c.Name, c.Default)
		}
		if c.PrimaryKey {
			pkCols++
		}
		if c.References != nil && (c.References.Table == "" || c.References.Column == "") {
			return fmt.Errorf("column %s.%s has an incomplete foreign key", t.Name, c.Name)
		}
	}
	if pkCols > 1 {
		return fmt.Errorf("table %s marks %d primary key columns; use Table.PrimaryKey", t.Name, pkCols)
	}
	if pkCols == 1 && len(t.PrimaryKey) > 0 {
		return fmt.Errorf("table %s declares both a column and a composite primary key", t.Name)
	}
	for _, name := range t.PrimaryKey {
		if !seen[strings.ToLower(name)] {
			return fmt.Errorf("table %s primary key names unknown column %s", t.Name, name)
		}
	}
	return nil
}

// Migration is one additive change the reconciler ensures: a created table
// (Column == "*") or an added column.
type Migration struct {
	Table  string `bun:"table_name"`
	Column string `bun:"column_name"`
}

// CreatedMarker is the Column of a Migration that records a CREATE TABLE.
const CreatedMarker = "*"

func (m Migration) String() string {
	return m.Table + "." + m.Column
}

// typeIndex maps column names to their semantic type across a table set.
// Names declared with conflicting types are left out.
func typeIndex(tables []Table) map[string]Type {
	idx := make(map[string]Type)
	conflict := make(map[string]bool)
	for _, t := range tables {
		for _, c := range t.Columns {
			key := strings.ToLower(c.Name)
			if prev, ok := idx[key]; ok && prev != c.Type {
				conflict[key] = true
				continue
			}
			idx[key] = c.Type
		}
	}
	for k := range conflict {
		delete(idx, k)
	}
	return idx
}
