// Copyright (c) 2026 Taskboard Team
// Taskboard - task tracking storage layer
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/taskboard/taskboard/internal/config"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"golang.org/x/sync/semaphore"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// sqlOpenFunc allows tests to override database opening behavior.
var sqlOpenFunc = sql.Open

const defaultConnMaxLifetime = 5 * time.Minute

// provider owns the connections of one backend. Callers never see a raw
// connection outside an Acquire/Release pair.
type provider interface {
	// Acquire blocks until a connection is available or ctx is done.
	Acquire(ctx context.Context) (bun.Conn, error)
	// Release returns a connection obtained from Acquire.
	Release(conn bun.Conn)
	// DB exposes the pool for introspection and statistics.
	DB() *bun.DB
	// Close releases all resources; later Acquire calls fail with
	// ErrAdapterClosed.
	Close() error
}

// dialectFor picks the dialect of a resolved configuration.
func dialectFor(cfg config.Database) *Dialect {
	if cfg.Backend == config.BackendEmbedded {
		return SQLiteDialect()
	}
	if cfg.Driver == config.DriverMySQL {
		return MySQLDialect()
	}
	return PostgresDialect()
}

// openProvider opens the backend selected by a resolved configuration.
func openProvider(ctx context.Context, cfg config.Database) (provider, error) {
	if cfg.Backend == config.BackendEmbedded {
		return openEmbedded(ctx, cfg)
	}
	return openNetworked(ctx, cfg)
}

// embeddedProvider holds the single handle of the embedded store. sqlite
// allows one writer at a time, so every acquisition goes through one
// weighted semaphore that honors ctx deadlines.
type embeddedProvider struct {
	db     *bun.DB
	writer *semaphore.Weighted
	closed atomic.Bool
}

// sqliteDSN builds a modernc.org/sqlite DSN with foreign keys enforced.
func sqliteDSN(path string) string {
	if path == ":memory:" {
		return "file::memory:?_pragma=foreign_keys(1)"
	}
	dsn := path
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

func openEmbedded(ctx context.Context, cfg config.Database) (*embeddedProvider, error) {
	start := time.Now()
	sqlDB, err := sqlOpenFunc("sqlite", sqliteDSN(cfg.Path))
	if err != nil {
		return nil, opError(ErrConnectFailed, "open", err)
	}
	// One handle per process; it must outlive idle periods so that an
	// in-memory database is not dropped.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)
	sqlDB.SetConnMaxIdleTime(0)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, opError(ErrConnectFailed, "open", err)
	}
	dbLogf("db: opened embedded store %s in %s", cfg.Path, time.Since(start))
	return &embeddedProvider{
		db:     bun.NewDB(sqlDB, sqlitedialect.New()),
		writer: semaphore.NewWeighted(1),
	}, nil
}

func (p *embeddedProvider) Acquire(ctx context.Context) (bun.Conn, error) {
	if p.closed.Load() {
		return bun.Conn{}, ErrAdapterClosed
	}
	if err := p.writer.Acquire(ctx, 1); err != nil {
		return bun.Conn{}, err
	}
	if p.closed.Load() {
		p.writer.Release(1)
		return bun.Conn{}, ErrAdapterClosed
	}
	conn, err := p.db.Conn(ctx)
	if err != nil {
		p.writer.Release(1)
		if p.closed.Load() {
			return bun.Conn{}, ErrAdapterClosed
		}
		return bun.Conn{}, err
	}
	return conn, nil
}

func (p *embeddedProvider) Release(conn bun.Conn) {
	_ = conn.Close()
	p.writer.Release(1)
}

func (p *embeddedProvider) DB() *bun.DB { return p.db }

func (p *embeddedProvider) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	return p.db.Close()
}

// networkedProvider is a bounded database/sql pool in front of a
// PostgreSQL or MySQL server.
type networkedProvider struct {
	db     *bun.DB
	closed atomic.Bool
}

// postgresDSN renders a pgx connection URL. ssl selects verify-full, or
// require when certificate checks are relaxed.
func postgresDSN(cfg config.Database) string {
	if cfg.DSN != "" {
		return cfg.DSN
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:   "/" + cfg.Name,
	}
	if cfg.User != "" {
		if cfg.Password != "" {
			u.User = url.UserPassword(cfg.User, cfg.Password)
		} else {
			u.User = url.User(cfg.User)
		}
	}
	sslmode := "disable"
	if cfg.SSL {
		sslmode = "verify-full"
		if cfg.SSLInsecure {
			sslmode = "require"
		}
	}
	u.RawQuery = url.Values{"sslmode": {sslmode}}.Encode()
	return u.String()
}

// mysqlConfig renders a go-sql-driver configuration. Times are parsed into
// time.Time in UTC.
func mysqlConfig(cfg config.Database) (*mysql.Config, error) {
	var mc *mysql.Config
	if cfg.DSN != "" {
		parsed, err := mysql.ParseDSN(cfg.DSN)
		if err != nil {
			return nil, err
		}
		mc = parsed
	} else {
		mc = mysql.NewConfig()
		mc.User = cfg.User
		mc.Passwd = cfg.Password
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
		mc.DBName = cfg.Name
		switch {
		case cfg.SSL && cfg.SSLInsecure:
			mc.TLSConfig = "skip-verify"
		case cfg.SSL:
			mc.TLSConfig = "true"
		default:
			mc.TLSConfig = "false"
		}
	}
	mc.ParseTime = true
	mc.Loc = time.UTC
	return mc, nil
}

func openNetworked(ctx context.Context, cfg config.Database) (*networkedProvider, error) {
	start := time.Now()
	var bunDB *bun.DB
	switch cfg.Driver {
	case config.DriverMySQL:
		mc, err := mysqlConfig(cfg)
		if err != nil {
			return nil, opError(ErrConfigInvalid, "open", err)
		}
		connector, err := mysql.NewConnector(mc)
		if err != nil {
			return nil, opError(ErrConfigInvalid, "open", err)
		}
		bunDB = bun.NewDB(sql.OpenDB(connector), mysqldialect.New())
	default:
		cc, err := pgx.ParseConfig(postgresDSN(cfg))
		if err != nil {
			return nil, opError(ErrConfigInvalid, "open", err)
		}
		bunDB = bun.NewDB(stdlib.OpenDB(*cc), pgdialect.New())
	}

	sqlDB := bunDB.DB
	sqlDB.SetMaxOpenConns(cfg.Pool.Max)
	sqlDB.SetMaxIdleConns(cfg.Pool.Max)
	sqlDB.SetConnMaxLifetime(defaultConnMaxLifetime)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, opError(ErrConnectFailed, "open", err)
	}
	if err := prewarm(ctx, sqlDB, cfg.Pool.Min); err != nil {
		_ = sqlDB.Close()
		return nil, opError(ErrConnectFailed, "open", err)
	}
	dbLogf("db: opened %s pool %s in %s (min=%d max=%d)", cfg.Driver, cfg, time.Since(start), cfg.Pool.Min, cfg.Pool.Max)
	return &networkedProvider{db: bunDB}, nil
}

// prewarm opens n connections and hands them back to the idle pool.
func prewarm(ctx context.Context, sqlDB *sql.DB, n int) error {
	conns := make([]*sql.Conn, 0, n)
	defer func() {
		for _, c := range conns {
			_ = c.Close()
		}
	}()
	for range n {
		c, err := sqlDB.Conn(ctx)
		if err != nil {
			return fmt.Errorf("prewarm connection %d/%d: %w", len(conns)+1, n, err)
		}
		conns = append(conns, c)
	}
	return nil
}

func (p *networkedProvider) Acquire(ctx context.Context) (bun.Conn, error) {
	if p.closed.Load() {
		return bun.Conn{}, ErrAdapterClosed
	}
	conn, err := p.db.Conn(ctx)
	// Close may have raced the check above.
	if err != nil && p.closed.Load() {
		return bun.Conn{}, ErrAdapterClosed
	}
	return conn, err
}

func (p *networkedProvider) Release(conn bun.Conn) {
	_ = conn.Close()
}

func (p *networkedProvider) DB() *bun.DB { return p.db }

func (p *networkedProvider) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	return p.db.Close()
}
