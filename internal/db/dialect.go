// Copyright (c) 2026 Taskboard Team
// Taskboard - task tracking storage layer
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

// Dialect names.
const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
	DialectMySQL    = "mysql"
)

// Dialect translates backend-neutral statements and table descriptors into
// the SQL of one concrete engine. Literal quoting is delegated to Bun's
// dialect for the same engine.
type Dialect struct {
	name     string
	bun      schema.Dialect
	embedded bool
	// numbered placeholders ($1, $2, ...) instead of ?
	numbered bool
	// backslash escapes inside string literals
	backslash bool

	types map[Type]string
	// keyedText replaces the text type for columns that take part in a key
	// or carry a default (MySQL cannot index or default TEXT).
	keyedText string
	natives   map[Type][]string
	// driverTypes maps database/sql column type names to semantic types.
	// strong entries are trusted over name-based hints.
	driverTypes map[string]Type
	weakTypes   map[string]bool

	alterUnique      bool
	alterExprDefault bool
	jsonZeroDefault  bool
}

// SQLiteDialect is the embedded file-store dialect.
func SQLiteDialect() *Dialect {
	return &Dialect{
		name:     DialectSQLite,
		bun:      sqlitedialect.New(),
		embedded: true,
		types: map[Type]string{
			Text:      "TEXT",
			Integer:   "INTEGER",
			Boolean:   "INTEGER",
			Timestamp: "TEXT",
			UUID:      "TEXT",
			JSON:      "TEXT",
		},
		natives: map[Type][]string{
			Text:      {"text", "varchar", "char", "clob"},
			Integer:   {"integer", "int", "bigint"},
			Boolean:   {"integer", "int", "boolean", "bool"},
			Timestamp: {"text", "timestamp", "datetime"},
			UUID:      {"text", "varchar", "char"},
			JSON:      {"text", "json"},
		},
		driverTypes: map[string]Type{
			"TEXT": Text, "VARCHAR": Text, "INTEGER": Integer, "INT": Integer,
			"BOOLEAN": Boolean, "DATETIME": Timestamp, "TIMESTAMP": Timestamp, "JSON": JSON,
		},
		// sqlite declared types say little about the stored value.
		weakTypes:       map[string]bool{"TEXT": true, "VARCHAR": true, "INTEGER": true, "INT": true, "BOOLEAN": true, "DATETIME": true, "TIMESTAMP": true, "JSON": true},
		jsonZeroDefault: true,
	}
}

// PostgresDialect is the networked PostgreSQL dialect.
func PostgresDialect() *Dialect {
	return &Dialect{
		name:     DialectPostgres,
		bun:      pgdialect.New(),
		numbered: true,
		types: map[Type]string{
			Text:      "TEXT",
			Integer:   "INTEGER",
			Boolean:   "BOOLEAN",
			Timestamp: "TIMESTAMP",
			UUID:      "UUID",
			JSON:      "JSONB",
		},
		natives: map[Type][]string{
			Text:      {"text", "character varying", "character"},
			Integer:   {"integer", "bigint", "smallint"},
			Boolean:   {"boolean"},
			Timestamp: {"timestamp", "timestamptz", "timestamp without time zone", "timestamp with time zone"},
			UUID:      {"uuid"},
			JSON:      {"jsonb", "json"},
		},
		driverTypes: map[string]Type{
			"TEXT": Text, "VARCHAR": Text, "BPCHAR": Text, "NAME": Text,
			"INT2": Integer, "INT4": Integer, "INT8": Integer,
			"BOOL": Boolean, "TIMESTAMP": Timestamp, "TIMESTAMPTZ": Timestamp,
			"UUID": UUID, "JSON": JSON, "JSONB": JSON,
		},
		alterUnique:      true,
		alterExprDefault: true,
		jsonZeroDefault:  true,
	}
}

// MySQLDialect is the networked MySQL dialect.
func MySQLDialect() *Dialect {
	return &Dialect{
		name:      DialectMySQL,
		bun:       mysqldialect.New(),
		backslash: true,
		keyedText: "VARCHAR(191)",
		types: map[Type]string{
			Text:      "TEXT",
			Integer:   "INTEGER",
			Boolean:   "BOOLEAN",
			Timestamp: "DATETIME",
			UUID:      "CHAR(36)",
			JSON:      "JSON",
		},
		natives: map[Type][]string{
			Text:      {"text", "varchar", "char", "tinytext", "mediumtext", "longtext"},
			Integer:   {"int", "integer", "bigint", "smallint", "mediumint"},
			Boolean:   {"tinyint", "boolean", "bool"},
			Timestamp: {"datetime", "timestamp"},
			UUID:      {"char", "varchar"},
			JSON:      {"json"},
		},
		driverTypes: map[string]Type{
			"TEXT": Text, "VARCHAR": Text, "CHAR": Text,
			"INT": Integer, "BIGINT": Integer, "SMALLINT": Integer, "TINYINT": Boolean,
			"DATETIME": Timestamp, "TIMESTAMP": Timestamp, "JSON": JSON,
		},
		weakTypes:        map[string]bool{"CHAR": true, "TINYINT": true},
		alterUnique:      true,
		alterExprDefault: true,
	}
}

// Name returns the dialect name.
func (d *Dialect) Name() string { return d.name }

// Embedded reports whether the dialect belongs to the embedded backend.
func (d *Dialect) Embedded() bool { return d.embedded }

// Rebind rewrites the ? placeholders of stmt for this dialect and checks
// that exactly nargs of them are present.
func (d *Dialect) Rebind(stmt string, nargs int) (string, error) {
	return rebind(stmt, nargs, d.numbered, d.backslash)
}

// embeddedTimeLayout matches the text sqlite writes for CURRENT_TIMESTAMP,
// so bound and defaulted values in one column compare lexically.
const embeddedTimeLayout = "2006-01-02 15:04:05.999999999"

// BindArg converts an argument to the representation stored by this
// dialect. Timestamps are always bound in UTC.
func (d *Dialect) BindArg(v any) any {
	switch x := v.(type) {
	case time.Time:
		if d.embedded {
			return x.UTC().Format(embeddedTimeLayout)
		}
		return x.UTC()
	case *time.Time:
		if x == nil {
			return nil
		}
		return d.BindArg(*x)
	case bool:
		if d.embedded {
			if x {
				return int64(1)
			}
			return int64(0)
		}
		return x
	case uuid.UUID:
		return x.String()
	case json.RawMessage:
		if x == nil {
			return nil
		}
		return string(x)
	}
	return v
}

// Quote quotes an identifier.
func (d *Dialect) Quote(ident string) string {
	q := string(d.bun.IdentQuote())
	return q + strings.ReplaceAll(ident, q, q+q) + q
}

// Literal renders a column default as SQL.
func (d *Dialect) Literal(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case Expr:
		return string(x)
	case string:
		return string(d.bun.AppendString(nil, x))
	case bool:
		if d.embedded {
			if x {
				return "1"
			}
			return "0"
		}
		return string(d.bun.AppendBool(nil, x))
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	}
	return string(d.bun.AppendString(nil, fmt.Sprint(v)))
}

// NativeType returns the engine type used for c. keyed is true when c is
// part of a primary, unique or foreign key.
func (d *Dialect) NativeType(c Column, keyed bool) string {
	if c.Type == Text && d.keyedText != "" && (keyed || c.PrimaryKey || c.Unique || c.References != nil || c.Default != nil) {
		return d.keyedText
	}
	return d.types[c.Type]
}

// Matches reports whether an introspected native type is an acceptable
// representation of t.
func (d *Dialect) Matches(t Type, native string) bool {
	n := strings.ToLower(strings.TrimSpace(native))
	if i := strings.IndexByte(n, '('); i >= 0 {
		n = strings.TrimSpace(n[:i])
	}
	for _, want := range d.natives[t] {
		if n == want {
			return true
		}
	}
	return false
}

// recognize guesses the semantic type of an introspected native type, or
// returns "" when none matches.
func (d *Dialect) recognize(native string) Type {
	for _, t := range []Type{Text, Integer, Boolean, Timestamp, UUID, JSON} {
		if d.Matches(t, native) {
			return t
		}
	}
	return ""
}

// semanticOf maps a database/sql column type name to a semantic type.
// strong is false when the name alone is not trustworthy.
func (d *Dialect) semanticOf(dbType string) (t Type, strong bool) {
	name := strings.ToUpper(dbType)
	if i := strings.IndexByte(name, '('); i >= 0 {
		name = name[:i]
	}
	t, ok := d.driverTypes[name]
	if !ok {
		return "", false
	}
	return t, !d.weakTypes[name]
}

func (d *Dialect) columnDef(c Column, keyed bool) string {
	var b strings.Builder
	b.WriteString(d.Quote(c.Name))
	b.WriteString(" ")
	b.WriteString(d.NativeType(c, keyed))
	if c.PrimaryKey {
		b.WriteString(" PRIMARY KEY")
	}
	if c.NotNull && !c.PrimaryKey {
		b.WriteString(" NOT NULL")
	}
	if c.Unique && !c.PrimaryKey {
		b.WriteString(" UNIQUE")
	}
	if c.Default != nil {
		b.WriteString(" DEFAULT ")
		b.WriteString(d.Literal(c.Default))
	}
	return b.String()
}

func (d *Dialect) references(fk *ForeignKey) string {
	s := "REFERENCES " + d.Quote(fk.Table) + " (" + d.Quote(fk.Column) + ")"
	if fk.OnDelete != "" {
		s += " ON DELETE " + fk.OnDelete
	}
	return s
}

// CreateTable renders a CREATE TABLE statement for t.
func (d *Dialect) CreateTable(t Table) string {
	keyed := make(map[string]bool, len(t.PrimaryKey))
	for _, name := range t.PrimaryKey {
		keyed[strings.ToLower(name)] = true
	}

	defs := make([]string, 0, len(t.Columns)+1)
	for _, c := range t.Columns {
		defs = append(defs, d.columnDef(c, keyed[strings.ToLower(c.Name)]))
	}
	if len(t.PrimaryKey) > 0 {
		cols := make([]string, len(t.PrimaryKey))
		for i, name := range t.PrimaryKey {
			cols[i] = d.Quote(name)
		}
		defs = append(defs, "PRIMARY KEY ("+strings.Join(cols, ", ")+")")
	}
	// Table-level constraints: MySQL ignores inline REFERENCES.
	for _, c := range t.Columns {
		if c.References != nil {
			defs = append(defs, "FOREIGN KEY ("+d.Quote(c.Name)+") "+d.references(c.References))
		}
	}
	return "CREATE TABLE " + d.Quote(t.Name) + " (\n\t" + strings.Join(defs, ",\n\t") + "\n)"
}

// AddColumn renders one ALTER TABLE ... ADD COLUMN statement. Callers run
// the column through PlanAddColumn first.
func (d *Dialect) AddColumn(table string, c Column) string {
	stmt := "ALTER TABLE " + d.Quote(table) + " ADD COLUMN " + d.columnDef(c, false)
	if c.References != nil {
		if d.name == DialectMySQL {
			stmt += ", ADD FOREIGN KEY (" + d.Quote(c.Name) + ") " + d.references(c.References)
		} else {
			stmt += " " + d.references(c.References)
		}
	}
	return stmt
}

// PlanAddColumn adapts c so that adding it to an existing table is legal on
// this engine. mayHaveRows reports whether the table may already hold rows;
// the embedded engine is always treated as non-empty. Each relaxation is
// reported as a warning.
func (d *Dialect) PlanAddColumn(table string, c Column, mayHaveRows bool) (Column, []string, error) {
	if c.PrimaryKey {
		return c, nil, fmt.Errorf("cannot add primary key column %s.%s to an existing table", table, c.Name)
	}
	var warnings []string
	warnf := func(format string, v ...any) {
		warnings = append(warnings, fmt.Sprintf("%s.%s: ", table, c.Name)+fmt.Sprintf(format, v...))
	}
	if d.embedded {
		mayHaveRows = true
	}
	if c.Unique && !d.alterUnique {
		c.Unique = false
		warnf("UNIQUE not enforced on an added column")
	}
	if _, ok := c.Default.(Expr); ok && !d.alterExprDefault {
		warnf("default %s dropped, engine requires a constant default", c.Default)
		c.Default = nil
	}
	// sqlite only accepts a NULL default on an added foreign key column.
	if d.embedded && c.References != nil && c.Default != nil {
		warnf("default dropped on foreign key column")
		c.Default = nil
	}
	if c.NotNull && c.Default == nil && mayHaveRows {
		zero, ok := d.zeroDefault(c.Type)
		if ok && !(d.embedded && c.References != nil) {
			c.Default = zero
		} else {
			c.NotNull = false
			warnf("NOT NULL deferred, existing rows have no value")
		}
	}
	return c, warnings, nil
}

func (d *Dialect) zeroDefault(t Type) (any, bool) {
	switch t {
	case Text:
		return "", true
	case Integer:
		return int64(0), true
	case Boolean:
		return false, true
	case JSON:
		return "{}", d.jsonZeroDefault
	}
	return nil, false
}

// introspection queries, formatted by Bun with ? arguments.

func (d *Dialect) tablesQuery() string {
	switch d.name {
	case DialectSQLite:
		return `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`
	case DialectMySQL:
		return `SELECT table_name AS name FROM information_schema.tables WHERE table_schema = DATABASE() AND table_type = 'BASE TABLE' ORDER BY table_name`
	default:
		return `SELECT table_name AS name FROM information_schema.tables WHERE table_schema = current_schema() AND table_type = 'BASE TABLE' ORDER BY table_name`
	}
}

func (d *Dialect) columnsQuery() string {
	switch d.name {
	case DialectSQLite:
		return `SELECT name, type, "notnull" AS not_null, dflt_value AS dflt FROM pragma_table_info(?) ORDER BY cid`
	case DialectMySQL:
		return `SELECT column_name AS name, data_type AS type, CASE WHEN is_nullable = 'NO' THEN 1 ELSE 0 END AS not_null, column_default AS dflt
FROM information_schema.columns WHERE table_schema = DATABASE() AND table_name = ? ORDER BY ordinal_position`
	default:
		return `SELECT column_name AS name, data_type AS type, CASE WHEN is_nullable = 'NO' THEN 1 ELSE 0 END AS not_null, column_default AS dflt
FROM information_schema.columns WHERE table_schema = current_schema() AND table_name = ? ORDER BY ordinal_position`
	}
}

func (d *Dialect) hasRowsQuery(table string) string {
	return "SELECT 1 FROM " + d.Quote(table) + " LIMIT 1"
}
