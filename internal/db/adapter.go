// Copyright (c) 2026 Taskboard Team
// Taskboard - task tracking storage layer
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/taskboard/taskboard/internal/config"
	"github.com/taskboard/taskboard/internal/logging"
	"github.com/uptrace/bun"
)

// Querier is the storage surface handed to application code. *Adapter
// implements it, and so does the transaction-bound value passed to a
// TxFunc, so callers never branch on the backend in use.
type Querier interface {
	// Query runs a read statement and returns its typed rows.
	Query(ctx context.Context, stmt string, args ...any) (*Result, error)
	// Execute runs a write statement and returns the affected row count.
	Execute(ctx context.Context, stmt string, args ...any) (int64, error)
	// Transaction runs fn inside one transaction. See Adapter.Transaction.
	Transaction(ctx context.Context, fn TxFunc) error
}

const (
	stateNew int32 = iota
	stateReady
	stateFailed
	stateClosed
)

// Adapter is the single entry point to one configured backend. Statements
// use ? placeholders regardless of backend; the adapter rewrites them for the
// active dialect. No statement runs before Initialize has reconciled the
// schema.
type Adapter struct {
	cfg     config.Database
	tables  []Table
	dialect *Dialect
	norm    normalizer

	// open constructs the provider; tests replace it.
	open func(context.Context, config.Database) (provider, error)

	mu       sync.Mutex // serializes Initialize and Close
	state    atomic.Int32
	provider provider
	report   Report
	initErr  error
}

var _ Querier = (*Adapter)(nil)

// New validates cfg and the table descriptors and returns an adapter that
// has not connected yet. Call Initialize before use.
func New(cfg config.Database, tables []Table) (*Adapter, error) {
	resolved := cfg.Resolved()
	if err := resolved.Validate(); err != nil {
		return nil, opError(ErrConfigInvalid, "new", err)
	}
	seen := make(map[string]bool, len(tables))
	for _, t := range tables {
		if err := t.Validate(); err != nil {
			return nil, &OpError{Kind: ErrConfigInvalid, Op: "new", Table: t.Name, Err: err}
		}
		key := strings.ToLower(t.Name)
		if seen[key] || key == MigrationsTable.Name {
			return nil, &OpError{Kind: ErrConfigInvalid, Op: "new", Table: t.Name, Err: errors.New("table declared twice")}
		}
		seen[key] = true
	}
	d := dialectFor(resolved)
	all := append([]Table{MigrationsTable}, tables...)
	return &Adapter{
		cfg:     resolved,
		tables:  tables,
		dialect: d,
		norm:    normalizer{dialect: d, names: typeIndex(all)},
		open:    openProvider,
	}, nil
}

// Config returns the resolved configuration the adapter was built from.
func (a *Adapter) Config() config.Database { return a.cfg }

// Dialect returns the dialect of the configured backend.
func (a *Adapter) Dialect() *Dialect { return a.dialect }

// Ready reports whether Initialize has completed successfully and the
// adapter has not been closed.
func (a *Adapter) Ready() bool { return a.state.Load() == stateReady }

// Report returns what the reconcile pass of Initialize changed.
func (a *Adapter) Report() Report {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.report
}

// Initialize connects to the backend and reconciles the schema. Calling it
// on a ready adapter is a no-op. A failed reconcile leaves the adapter
// unusable and every later call returns the same error; a failed connect
// may be retried.
func (a *Adapter) Initialize(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch a.state.Load() {
	case stateReady:
		return nil
	case stateFailed:
		return a.initErr
	case stateClosed:
		return opError(ErrAdapterClosed, "initialize", nil)
	}

	start := time.Now()
	p, err := a.open(ctx, a.cfg)
	if err != nil {
		if ctx.Err() != nil {
			return opError(ErrCancelled, "initialize", ctx.Err())
		}
		return err
	}

	conn, err := a.acquire(ctx, p, "initialize")
	if err != nil {
		_ = p.Close()
		return err
	}
	rep, err := Reconcile(ctx, a.dialect, conn, a.tables)
	p.Release(conn)
	if err != nil {
		_ = p.Close()
		if ctx.Err() != nil {
			return opError(ErrCancelled, "initialize", ctx.Err())
		}
		a.initErr = err
		a.state.Store(stateFailed)
		logging.Errorf("db: schema reconcile failed on %s: %v", a.cfg, err)
		return err
	}

	a.provider = p
	a.report = rep
	a.state.Store(stateReady)
	dbLogf("db: adapter ready on %s in %s", a.cfg, time.Since(start))
	return nil
}

// Close releases every connection. Later calls fail with ErrAdapterClosed.
// Closing twice is a no-op.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state.Swap(stateClosed) == stateClosed {
		return nil
	}
	if a.provider == nil {
		return nil
	}
	if err := a.provider.Close(); err != nil {
		return opError(ErrQueryFailed, "close", err)
	}
	dbLogf("db: adapter on %s closed", a.cfg)
	return nil
}

// ready returns the provider of a usable adapter.
func (a *Adapter) ready(op string) (provider, error) {
	switch a.state.Load() {
	case stateReady:
		return a.provider, nil
	case stateClosed:
		return nil, opError(ErrAdapterClosed, op, nil)
	case stateFailed:
		return nil, opError(ErrNotInitialized, op, a.initErr)
	}
	return nil, opError(ErrNotInitialized, op, nil)
}

// acquire takes a connection from p. Each attempt waits at most the
// configured acquire timeout; timed-out attempts are retried with
// exponential backoff before giving up with ErrPoolExhausted.
func (a *Adapter) acquire(ctx context.Context, p provider, op string) (bun.Conn, error) {
	backoff := a.cfg.AcquireBackoff
	for attempt := 0; ; attempt++ {
		actx, cancel := context.WithTimeout(ctx, a.cfg.AcquireTimeout)
		conn, err := p.Acquire(actx)
		cancel()
		if err == nil {
			return conn, nil
		}

		switch {
		case ctx.Err() != nil:
			return bun.Conn{}, opError(ErrCancelled, op, ctx.Err())
		case errors.Is(err, ErrAdapterClosed), errors.Is(err, sql.ErrConnDone):
			return bun.Conn{}, opError(ErrAdapterClosed, op, nil)
		case !errors.Is(err, context.DeadlineExceeded):
			return bun.Conn{}, opError(ErrConnectFailed, op, err)
		case attempt >= a.cfg.AcquireRetries:
			return bun.Conn{}, opError(ErrPoolExhausted, op,
				fmt.Errorf("no connection within %s after %d attempts", a.cfg.AcquireTimeout, attempt+1))
		}

		delay := withJitter(backoff)
		dbLogf("db: %s: acquire attempt %d timed out, retrying in %s", op, attempt+1, delay)
		if delay > 0 {
			t := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return bun.Conn{}, opError(ErrCancelled, op, ctx.Err())
			case <-t.C:
			}
		}
		backoff *= 2
	}
}

// withJitter spreads d by up to ±20%.
func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	spread := d / 5
	if spread == 0 {
		return d
	}
	return d - spread + rand.N(2*spread+1)
}

// translate rewrites placeholders and converts arguments for the dialect.
// It runs before any connection is acquired.
func (a *Adapter) translate(op, stmt string, args []any) (string, []any, error) {
	q, err := a.dialect.Rebind(stmt, len(args))
	if err != nil {
		var oe *OpError
		if errors.As(err, &oe) {
			oe.Op = op
		}
		return "", nil, err
	}
	bound := make([]any, len(args))
	for i, v := range args {
		bound[i] = a.dialect.BindArg(v)
	}
	return q, bound, nil
}

// sqlRunner is satisfied by *sql.Conn and *sql.Tx. bun.Conn and bun.Tx
// shadow these methods with client-side formatting, so callers pass the
// embedded database/sql value.
type sqlRunner interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Query runs a read statement. A ctx carrying a transaction of this adapter
// runs the statement inside it.
func (a *Adapter) Query(ctx context.Context, stmt string, args ...any) (*Result, error) {
	if s := scopeFrom(ctx, a); s != nil {
		return s.Query(ctx, stmt, args...)
	}
	p, err := a.ready("query")
	if err != nil {
		return nil, err
	}
	q, bound, err := a.translate("query", stmt, args)
	if err != nil {
		return nil, err
	}
	conn, err := a.acquire(ctx, p, "query")
	if err != nil {
		return nil, err
	}
	defer p.Release(conn)
	return a.runQuery(ctx, conn.Conn, q, bound)
}

// Execute runs a write statement and returns the number of affected rows.
func (a *Adapter) Execute(ctx context.Context, stmt string, args ...any) (int64, error) {
	if s := scopeFrom(ctx, a); s != nil {
		return s.Execute(ctx, stmt, args...)
	}
	p, err := a.ready("execute")
	if err != nil {
		return 0, err
	}
	q, bound, err := a.translate("execute", stmt, args)
	if err != nil {
		return 0, err
	}
	conn, err := a.acquire(ctx, p, "execute")
	if err != nil {
		return 0, err
	}
	defer p.Release(conn)
	return a.runExec(ctx, conn.Conn, q, bound)
}

func (a *Adapter) runQuery(ctx context.Context, r sqlRunner, stmt string, args []any) (*Result, error) {
	rows, err := r.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, classify(ctx, "query", stmt, err)
	}
	defer func() { _ = rows.Close() }()
	res, err := a.norm.readRows(rows)
	if err != nil {
		return nil, classify(ctx, "query", stmt, err)
	}
	return res, nil
}

func (a *Adapter) runExec(ctx context.Context, r sqlRunner, stmt string, args []any) (int64, error) {
	res, err := r.ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, classify(ctx, "execute", stmt, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, classify(ctx, "execute", stmt, err)
	}
	return n, nil
}

// withRaw hands fn something Bun can run raw queries on: the transaction
// riding on ctx, or a freshly acquired connection.
func (a *Adapter) withRaw(ctx context.Context, op string, fn func(execRawProvider) error) error {
	if s := scopeFrom(ctx, a); s != nil {
		return fn(s.tx)
	}
	p, err := a.ready(op)
	if err != nil {
		return err
	}
	conn, err := a.acquire(ctx, p, op)
	if err != nil {
		return err
	}
	defer p.Release(conn)
	return fn(conn)
}

// Ping checks that a connection can be acquired and reaches the backend.
func (a *Adapter) Ping(ctx context.Context) error {
	if scopeFrom(ctx, a) != nil {
		return nil
	}
	p, err := a.ready("ping")
	if err != nil {
		return err
	}
	conn, err := a.acquire(ctx, p, "ping")
	if err != nil {
		return err
	}
	defer p.Release(conn)
	if err := conn.Conn.PingContext(ctx); err != nil {
		return classify(ctx, "ping", "", err)
	}
	return nil
}

// Stats returns the pool statistics of the underlying handle.
func (a *Adapter) Stats() sql.DBStats {
	if p, err := a.ready("stats"); err == nil {
		return p.DB().Stats()
	}
	return sql.DBStats{}
}

// Tables lists the tables present in the live schema.
func (a *Adapter) Tables(ctx context.Context) ([]string, error) {
	var names []string
	err := a.withRaw(ctx, "tables", func(ex execRawProvider) error {
		return QueryRawInto(ctx, ex, &names, a.dialect.tablesQuery())
	})
	if err != nil {
		return nil, classify(ctx, "tables", "", err)
	}
	return names, nil
}

// ColumnInfo describes one live column.
type ColumnInfo struct {
	Name     string `yaml:"name"`
	Native   string `yaml:"native"`
	Type     Type   `yaml:"type,omitempty"` // empty when not recognizable
	Nullable bool   `yaml:"nullable"`
	Default  string `yaml:"default,omitempty"`
}

// Inspect returns the live columns of table in ordinal order. An unknown
// table yields an empty slice.
func (a *Adapter) Inspect(ctx context.Context, table string) ([]ColumnInfo, error) {
	var live []liveColumn
	err := a.withRaw(ctx, "inspect", func(ex execRawProvider) error {
		return QueryRawInto(ctx, ex, &live, a.dialect.columnsQuery(), table)
	})
	if err != nil {
		err = classify(ctx, "inspect", "", err)
		var oe *OpError
		if errors.As(err, &oe) && oe.Table == "" {
			oe.Table = table
		}
		return nil, err
	}

	var declared Table
	for _, t := range append([]Table{MigrationsTable}, a.tables...) {
		if strings.EqualFold(t.Name, table) {
			declared = t
		}
	}
	out := make([]ColumnInfo, 0, len(live))
	for _, lc := range live {
		ci := ColumnInfo{
			Name:     lc.Name,
			Native:   lc.Type,
			Nullable: lc.NotNull == 0,
			Default:  lc.Default.String,
		}
		if c, ok := declared.Column(lc.Name); ok && a.dialect.Matches(c.Type, lc.Type) {
			ci.Type = c.Type
		} else {
			ci.Type = a.dialect.recognize(lc.Type)
		}
		out = append(out, ci)
	}
	return out, nil
}

// AppliedMigrations lists the ledger in the order changes were applied.
func (a *Adapter) AppliedMigrations(ctx context.Context) ([]Migration, error) {
	var ms []Migration
	stmt := "SELECT table_name, column_name FROM " + a.dialect.Quote(MigrationsTable.Name) +
		" ORDER BY applied_at, table_name, column_name"
	err := a.withRaw(ctx, "migrations", func(ex execRawProvider) error {
		return QueryRawInto(ctx, ex, &ms, stmt)
	})
	if err != nil {
		return nil, classify(ctx, "migrations", stmt, err)
	}
	return ms, nil
}
