// Copyright (c) 2026 Taskboard Team
// Taskboard - task tracking storage layer
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Row maps column names to values typed by semantic type: string, int64,
// bool, time.Time (UTC), uuid.UUID, json.RawMessage or nil.
type Row map[string]any

// Result is the ordered outcome of a query.
type Result struct {
	Columns []string
	Rows    []Row
}

// Len returns the number of rows.
func (r *Result) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Rows)
}

// First returns the first row, if any.
func (r *Result) First() (Row, bool) {
	if r.Len() == 0 {
		return nil, false
	}
	return r.Rows[0], true
}

// String returns the value of col as a string, or "" when it is NULL or not
// a string.
func (r Row) String(col string) string {
	s, _ := r[col].(string)
	return s
}

// Int returns the value of col as an int64.
func (r Row) Int(col string) int64 {
	n, _ := r[col].(int64)
	return n
}

// Bool returns the value of col as a bool.
func (r Row) Bool(col string) bool {
	b, _ := r[col].(bool)
	return b
}

// Time returns the value of col as a time.Time.
func (r Row) Time(col string) time.Time {
	t, _ := r[col].(time.Time)
	return t
}

// UUID returns the value of col as a uuid.UUID.
func (r Row) UUID(col string) uuid.UUID {
	u, _ := r[col].(uuid.UUID)
	return u
}

// normalizer converts driver values to semantic values.
type normalizer struct {
	dialect *Dialect
	names   map[string]Type
}

// resolve picks the semantic type of a result column. A trustworthy driver
// type wins, then the declared type of a column with that name, then
// whatever the driver type suggests.
func (n normalizer) resolve(name, dbType string) Type {
	t, strong := n.dialect.semanticOf(dbType)
	if strong {
		return t
	}
	if declared, ok := n.names[strings.ToLower(name)]; ok {
		return declared
	}
	return t
}

func (n normalizer) readRows(rows *sql.Rows) (*Result, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}
	types := make([]Type, len(cols))
	for i, ct := range colTypes {
		types[i] = n.resolve(cols[i], ct.DatabaseTypeName())
	}

	res := &Result{Columns: cols, Rows: []Row{}}
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(Row, len(cols))
		for i, col := range cols {
			v, err := convertValue(types[i], vals[i])
			if err != nil {
				return nil, fmt.Errorf("column %s: %w", col, err)
			}
			row[col] = v
		}
		res.Rows = append(res.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// convertValue maps one scanned value to its semantic Go representation.
func convertValue(t Type, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t {
	case Text:
		if b, ok := v.([]byte); ok {
			return string(b), nil
		}
		return v, nil
	case Integer:
		return toInt64(v)
	case Boolean:
		return toBool(v)
	case Timestamp:
		return toTime(v)
	case UUID:
		return toUUID(v)
	case JSON:
		return toJSON(v)
	}
	if b, ok := v.([]byte); ok {
		return string(b), nil
	}
	return v, nil
}

func toInt64(v any) (any, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case int32:
		return int64(x), nil
	case int:
		return int64(x), nil
	case float64:
		if x == math.Trunc(x) {
			return int64(x), nil
		}
		return nil, fmt.Errorf("non-integral value %v for integer column", x)
	case bool:
		if x {
			return int64(1), nil
		}
		return int64(0), nil
	case []byte:
		return strconv.ParseInt(string(x), 10, 64)
	case string:
		return strconv.ParseInt(x, 10, 64)
	}
	return nil, fmt.Errorf("cannot use %T as integer", v)
}

func toBool(v any) (any, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case int64:
		return x != 0, nil
	case int32:
		return x != 0, nil
	case []byte:
		return parseBool(string(x))
	case string:
		return parseBool(x)
	}
	return nil, fmt.Errorf("cannot use %T as boolean", v)
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "t", "true", "y", "yes", "on":
		return true, nil
	case "0", "f", "false", "n", "no", "off", "":
		return false, nil
	}
	return false, fmt.Errorf("cannot parse %q as boolean", s)
}

// timestampLayouts covers ISO-8601 text written by this package, sqlite's
// CURRENT_TIMESTAMP and the driver's default time formatting.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

func toTime(v any) (any, error) {
	switch x := v.(type) {
	case time.Time:
		return x.UTC(), nil
	case []byte:
		return parseTimestamp(string(x))
	case string:
		return parseTimestamp(x)
	case int64:
		return time.Unix(x, 0).UTC(), nil
	}
	return nil, fmt.Errorf("cannot use %T as timestamp", v)
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as timestamp", s)
}

func toUUID(v any) (any, error) {
	switch x := v.(type) {
	case uuid.UUID:
		return x, nil
	case [16]byte:
		return uuid.UUID(x), nil
	case string:
		return uuid.Parse(x)
	case []byte:
		if len(x) == 16 {
			return uuid.FromBytes(x)
		}
		return uuid.ParseBytes(x)
	}
	return nil, fmt.Errorf("cannot use %T as uuid", v)
}

func toJSON(v any) (any, error) {
	switch x := v.(type) {
	case json.RawMessage:
		return x, nil
	case []byte:
		return json.RawMessage(x), nil
	case string:
		return json.RawMessage(x), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}
