// Copyright (c) 2026 Taskboard Team
// Taskboard - task tracking storage layer
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/taskboard/taskboard/internal/config"
)

// Registry holds the one adapter of a process. Construct it at startup,
// pass it to whatever needs storage and Close it at shutdown.
type Registry struct {
	tables []Table

	mu      sync.Mutex // serializes construction and teardown
	current atomic.Pointer[Adapter]
	gen     atomic.Uint64
}

// NewRegistry returns an empty registry whose adapters reconcile tables.
func NewRegistry(tables []Table) *Registry {
	return &Registry{tables: tables}
}

// Get returns the ready adapter for cfg, building and initializing it on
// first use. A cfg that differs from the cached adapter's closes that
// adapter before the replacement is built. Concurrent callers wait for a
// single construction.
func (r *Registry) Get(ctx context.Context, cfg config.Database) (*Adapter, error) {
	want := cfg.Resolved()
	if cur := r.current.Load(); cur != nil && cur.cfg == want && cur.Ready() {
		return cur, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.current.Load()
	if cur != nil && cur.cfg == want {
		switch cur.state.Load() {
		case stateReady:
			return cur, nil
		case stateNew:
			// An earlier connect attempt failed; try again.
			if err := cur.Initialize(ctx); err != nil {
				return nil, err
			}
			return cur, nil
		}
	}

	a, err := New(want, r.tables)
	if err != nil {
		return nil, err
	}
	if cur != nil {
		r.current.Store(nil)
		if err := cur.Close(); err != nil {
			dbLogf("db: closing previous adapter on %s: %v", cur.cfg, err)
		}
	}
	r.current.Store(a)
	gen := r.gen.Add(1)
	dbLogf("db: registry generation %d for %s", gen, want)
	if err := a.Initialize(ctx); err != nil {
		if a.state.Load() != stateNew {
			r.current.Store(nil)
		}
		return nil, err
	}
	return a, nil
}

// Current returns the cached adapter, or nil.
func (r *Registry) Current() *Adapter {
	return r.current.Load()
}

// Generation counts the adapters constructed so far.
func (r *Registry) Generation() uint64 {
	return r.gen.Load()
}

// Close tears down the cached adapter.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur := r.current.Swap(nil)
	if cur == nil {
		return nil
	}
	return cur.Close()
}
