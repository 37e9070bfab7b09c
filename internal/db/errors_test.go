package db

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestMapDBError_DuplicateStrings(t *testing.T) {
	cases := []struct {
		name string
		err  error
	}{
		{"mysql duplicate entry", errors.New("Error 1062: Duplicate entry 'x' for key 'PRIMARY'")},
		{"sqlite unique constraint", errors.New("constraint failed: UNIQUE constraint failed: users.email (2067)")},
		{"generic duplicate word", errors.New("duplicate row")},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			mapped := MapDBError(c.err)
			if !errors.Is(mapped, ErrDuplicate) {
				t.Fatalf("expected ErrDuplicate for case %s, got: %v", c.name, mapped)
			}
			if !errors.Is(mapped, c.err) {
				t.Fatalf("original error should stay in the chain")
			}
		})
	}
}

func TestMapDBError_TypedDriverErrors(t *testing.T) {
	if !errors.Is(MapDBError(&pgconn.PgError{Code: "23505", Message: "duplicate key value"}), ErrDuplicate) {
		t.Fatalf("expected SQLSTATE 23505 to map to ErrDuplicate")
	}
	if errors.Is(MapDBError(&pgconn.PgError{Code: "23503", Message: "violates foreign key constraint"}), ErrDuplicate) {
		t.Fatalf("foreign key violation must not map to ErrDuplicate")
	}
	if !errors.Is(MapDBError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}), ErrDuplicate) {
		t.Fatalf("expected MySQL 1062 to map to ErrDuplicate")
	}
	if errors.Is(MapDBError(&mysql.MySQLError{Number: 1452, Message: "Cannot add or update a child row"}), ErrDuplicate) {
		t.Fatalf("MySQL 1452 must not map to ErrDuplicate")
	}
}

func TestMapDBError_NonDuplicatePassthrough(t *testing.T) {
	e := errors.New("some network error")
	mapped := MapDBError(e)
	if mapped != e {
		t.Fatalf("expected original error to be returned unchanged, got: %v", mapped)
	}
	if MapDBError(nil) != nil {
		t.Fatalf("nil should map to nil")
	}
}

func TestOpError(t *testing.T) {
	cause := errors.New("no such column: token")
	err := &OpError{Kind: ErrSchemaReconcile, Op: "add column", Table: "sessions", Column: "token", Stmt: "ALTER TABLE sessions ADD COLUMN token TEXT", Err: cause}
	if !errors.Is(err, ErrSchemaReconcile) || !errors.Is(err, cause) {
		t.Fatalf("OpError should match both its kind and its cause")
	}
	if errors.Is(err, ErrQueryFailed) {
		t.Fatalf("OpError should not match unrelated kinds")
	}
	msg := err.Error()
	for _, want := range []string{"add column sessions.token", "schema reconcile failed", "no such column: token", "[ALTER TABLE"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("message %q lacks %q", msg, want)
		}
	}
	if got := opError(ErrNotInitialized, "query", nil).Error(); got != "query: adapter not initialized" {
		t.Fatalf("message without cause = %q", got)
	}
}

func TestClassify(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := classify(ctx, "query", "SELECT 1", errors.New("interrupted")); !errors.Is(err, ErrCancelled) || !errors.Is(err, context.Canceled) {
		t.Fatalf("done ctx should classify as cancelled, got %v", err)
	}
	if err := classify(context.Background(), "query", "SELECT 1", context.DeadlineExceeded); !errors.Is(err, ErrCancelled) {
		t.Fatalf("deadline error should classify as cancelled, got %v", err)
	}
	err := classify(context.Background(), "execute", "INSERT", errors.New("UNIQUE constraint failed: t.x"))
	if !errors.Is(err, ErrQueryFailed) || !errors.Is(err, ErrDuplicate) {
		t.Fatalf("driver error should classify as query failure, got %v", err)
	}
	prev := opError(ErrPoolExhausted, "query", nil)
	if classify(context.Background(), "query", "", prev) != error(prev) {
		t.Fatalf("classified errors should pass through")
	}
	if classify(context.Background(), "query", "", nil) != nil {
		t.Fatalf("nil should stay nil")
	}
}
