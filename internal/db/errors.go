// Copyright (c) 2026 Taskboard Team
// Taskboard - task tracking storage layer
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
)

// Error kinds. Every error returned by the adapter matches exactly one of
// these with errors.Is.
var (
	ErrConfigInvalid            = errors.New("configuration invalid")
	ErrConnectFailed            = errors.New("connect failed")
	ErrPoolExhausted            = errors.New("connection pool exhausted")
	ErrPlaceholderCountMismatch = errors.New("placeholder count mismatch")
	ErrSchemaReconcile          = errors.New("schema reconcile failed")
	ErrNotInitialized           = errors.New("adapter not initialized")
	ErrAdapterClosed            = errors.New("adapter closed")
	ErrCancelled                = errors.New("operation cancelled")
	ErrQueryFailed              = errors.New("query failed")
)

// ErrDuplicate is wrapped into ErrQueryFailed errors caused by a unique
// constraint violation.
var ErrDuplicate = errors.New("duplicate record")

// ErrAbort may be returned from a transaction body to roll back without a
// more specific cause. It is surfaced to the caller like any other error.
var ErrAbort = errors.New("transaction aborted")

// OpError carries the operation context of a failure. errors.Is matches both
// Kind and the wrapped cause.
type OpError struct {
	Kind   error
	Op     string
	Table  string
	Column string
	Stmt   string
	Err    error
}

func (e *OpError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Table != "" {
		b.WriteString(" ")
		b.WriteString(e.Table)
		if e.Column != "" {
			b.WriteString(".")
			b.WriteString(e.Column)
		}
	}
	b.WriteString(": ")
	b.WriteString(e.Kind.Error())
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if e.Stmt != "" {
		fmt.Fprintf(&b, " [%s]", abbreviate(e.Stmt, 80))
	}
	return b.String()
}

func (e *OpError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func opError(kind error, op string, err error) *OpError {
	return &OpError{Kind: kind, Op: op, Err: err}
}

// MapDBError inspects low-level driver errors and wraps constraint
// violations with ErrDuplicate. The original error stays in the chain.
func MapDBError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "23505" {
			return fmt.Errorf("%w: %w", ErrDuplicate, err)
		}
		return err
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		if myErr.Number == 1062 {
			return fmt.Errorf("%w: %w", ErrDuplicate, err)
		}
		return err
	}
	// sqlite reports "UNIQUE constraint failed"; keep the string fallback
	// so no sqlite internals leak into this file.
	le := strings.ToLower(err.Error())
	if strings.Contains(le, "unique constraint") || strings.Contains(le, "duplicate") {
		return fmt.Errorf("%w: %w", ErrDuplicate, err)
	}
	return err
}

// classify turns a failed database call into an OpError. A done ctx wins
// over whatever the driver reported.
func classify(ctx context.Context, op, stmt string, err error) error {
	if err == nil {
		return nil
	}
	var oe *OpError
	if errors.As(err, &oe) {
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		if ctxErr == nil {
			ctxErr = err
		}
		return &OpError{Kind: ErrCancelled, Op: op, Stmt: stmt, Err: ctxErr}
	}
	return &OpError{Kind: ErrQueryFailed, Op: op, Stmt: stmt, Err: MapDBError(err)}
}

func abbreviate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
