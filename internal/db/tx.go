// Copyright (c) 2026 Taskboard Team
// Taskboard - task tracking storage layer
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"
)

// TxFunc is the body of a transaction. q and ctx are both bound to the
// transaction; statements issued through either run inside it. Returning a
// non-nil error (ErrAbort when there is no better cause) rolls back.
type TxFunc func(ctx context.Context, q Querier) error

type scopeKey struct{ a *Adapter }

// txScope is one open transaction on one acquired connection.
type txScope struct {
	a  *Adapter
	tx bun.Tx
}

var _ Querier = (*txScope)(nil)

func scopeFrom(ctx context.Context, a *Adapter) *txScope {
	s, _ := ctx.Value(scopeKey{a}).(*txScope)
	return s
}

// Transaction acquires one connection, begins a transaction and runs fn.
// It commits when fn returns nil and rolls back otherwise, returning fn's
// error unchanged. A panic in fn rolls back and is re-raised. Called again
// from within fn, Transaction runs the inner body in the enclosing
// transaction; there are no savepoints.
func (a *Adapter) Transaction(ctx context.Context, fn TxFunc) error {
	if s := scopeFrom(ctx, a); s != nil {
		return s.Transaction(ctx, fn)
	}
	p, err := a.ready("transaction")
	if err != nil {
		return err
	}
	conn, err := a.acquire(ctx, p, "transaction")
	if err != nil {
		return err
	}
	defer p.Release(conn)

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return classify(ctx, "begin", "", err)
	}
	s := &txScope{a: a, tx: tx}
	return s.run(ctx, fn)
}

func (s *txScope) run(ctx context.Context, fn TxFunc) error {
	done := false
	defer func() {
		if done {
			return
		}
		if r := recover(); r != nil {
			s.rollback()
			panic(r)
		}
	}()

	err := fn(context.WithValue(ctx, scopeKey{s.a}, s), s)
	done = true
	if err != nil {
		s.rollback()
		return err
	}
	if err := s.tx.Commit(); err != nil {
		return classify(ctx, "commit", "", err)
	}
	return nil
}

func (s *txScope) rollback() {
	// A cancelled ctx has already rolled the transaction back.
	if err := s.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		dbLogf("db: rollback failed: %v", err)
	}
}

func (s *txScope) Query(ctx context.Context, stmt string, args ...any) (*Result, error) {
	q, bound, err := s.a.translate("query", stmt, args)
	if err != nil {
		return nil, err
	}
	return s.a.runQuery(ctx, s.tx.Tx, q, bound)
}

func (s *txScope) Execute(ctx context.Context, stmt string, args ...any) (int64, error) {
	q, bound, err := s.a.translate("execute", stmt, args)
	if err != nil {
		return 0, err
	}
	return s.a.runExec(ctx, s.tx.Tx, q, bound)
}

// Transaction reuses the enclosing transaction.
func (s *txScope) Transaction(ctx context.Context, fn TxFunc) error {
	return fn(context.WithValue(ctx, scopeKey{s.a}, s), s)
}

// InTx runs fn in a transaction of q and returns its value. The zero value
// is returned when the transaction rolls back.
func InTx[T any](ctx context.Context, q Querier, fn func(ctx context.Context, q Querier) (T, error)) (T, error) {
	var out T
	err := q.Transaction(ctx, func(ctx context.Context, tq Querier) error {
		v, err := fn(ctx, tq)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}
