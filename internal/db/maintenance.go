// Copyright (c) 2026 Taskboard Team
// Taskboard - task tracking storage layer
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"fmt"
	"time"
)

const maintenanceTimeout = 2 * time.Minute

// Maintain runs engine housekeeping on a connection of its own: optimize,
// vacuum, checkpoint and an integrity check on sqlite, VACUUM ANALYZE on
// PostgreSQL, OPTIMIZE TABLE for every MySQL table. It must not be called
// with a transaction ctx.
func (a *Adapter) Maintain(ctx context.Context) error {
	if scopeFrom(ctx, a) != nil {
		return opError(ErrQueryFailed, "maintain", fmt.Errorf("maintenance cannot run inside a transaction"))
	}
	p, err := a.ready("maintain")
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, maintenanceTimeout)
	defer cancel()

	conn, err := a.acquire(ctx, p, "maintain")
	if err != nil {
		return err
	}
	defer p.Release(conn)

	start := time.Now()
	exec := func(stmt string) error {
		if _, err := ExecRaw(ctx, conn, stmt); err != nil {
			return classify(ctx, "maintain", stmt, err)
		}
		return nil
	}

	switch a.dialect.Name() {
	case DialectSQLite:
		// optimize is advisory and unsupported on some filesystems.
		if err := exec("PRAGMA optimize"); err != nil {
			dbLogf("db: sqlite optimize failed (ignored): %v", err)
		}
		if err := exec("VACUUM"); err != nil {
			return err
		}
		_ = exec("PRAGMA wal_checkpoint(TRUNCATE)")
		var res string
		if err := conn.Conn.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&res); err != nil {
			return classify(ctx, "maintain", "PRAGMA integrity_check", err)
		}
		if res != "ok" {
			return opError(ErrQueryFailed, "maintain", fmt.Errorf("sqlite integrity_check failed: %s", res))
		}
	case DialectPostgres:
		if err := exec("VACUUM ANALYZE"); err != nil {
			return err
		}
	case DialectMySQL:
		tables, err := listTables(ctx, a.dialect, conn)
		if err != nil {
			return classify(ctx, "maintain", "", err)
		}
		var lastErr error
		for _, t := range tables {
			if err := exec("OPTIMIZE TABLE " + a.dialect.Quote(t)); err != nil {
				dbLogf("db: mysql optimize table %s failed: %v", t, err)
				lastErr = err
			}
		}
		if lastErr != nil {
			return lastErr
		}
	}
	dbLogf("db: maintenance on %s finished in %s", a.cfg, time.Since(start))
	return nil
}
