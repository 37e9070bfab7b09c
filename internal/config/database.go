// Copyright (c) 2026 Taskboard Team
// Taskboard - task tracking storage layer
// This source code is licensed under the MIT license found in the LICENSE file.

package config

import (
	"fmt"
	"time"
)

// Backend kinds.
const (
	BackendEmbedded  = "embedded"
	BackendNetworked = "networked"
)

// Networked drivers.
const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// Defaults applied by Database.Resolved.
const (
	DefaultPath           = "./taskboard.db"
	DefaultPoolMin        = 2
	DefaultPoolMax        = 10
	DefaultAcquireTimeout = 5 * time.Second
	DefaultAcquireRetries = 2
	DefaultAcquireBackoff = 50 * time.Millisecond
)

// Database describes which storage backend to use and how to reach it.
// A Database value is immutable once handed to the storage adapter, and two
// values compare equal with == exactly when they describe the same backend.
type Database struct {
	// Backend is "embedded" or "networked". When empty, a configured Host
	// selects networked and everything else falls back to the embedded file.
	Backend string `mapstructure:"backend" yaml:"backend"`
	// Driver selects the networked dialect ("postgres" or "mysql").
	Driver string `mapstructure:"driver" yaml:"driver"`
	// Path is the embedded database file (":memory:" is accepted).
	Path string `mapstructure:"path" yaml:"path"`

	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	Name     string `mapstructure:"name" yaml:"name"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"password"`
	// SSL negotiates TLS with certificate validation; SSLInsecure keeps TLS
	// but skips validation.
	SSL         bool `mapstructure:"ssl" yaml:"ssl"`
	SSLInsecure bool `mapstructure:"ssl_insecure" yaml:"ssl_insecure"`
	// DSN, when set, is handed to the networked driver verbatim and the
	// discrete connection fields are ignored.
	DSN string `mapstructure:"dsn" yaml:"dsn"`

	Pool           Pool          `mapstructure:"pool" yaml:"pool"`
	AcquireTimeout time.Duration `mapstructure:"acquire_timeout" yaml:"acquire_timeout"`
	AcquireRetries int           `mapstructure:"acquire_retries" yaml:"acquire_retries"`
	AcquireBackoff time.Duration `mapstructure:"acquire_backoff" yaml:"acquire_backoff"`
}

// Pool bounds the networked connection pool.
type Pool struct {
	Min int `mapstructure:"min" yaml:"min"`
	Max int `mapstructure:"max" yaml:"max"`
}

// Resolved returns a copy of d with implied values filled in.
func (d Database) Resolved() Database {
	if d.Backend == "" {
		if d.Host != "" || d.DSN != "" {
			d.Backend = BackendNetworked
		} else {
			d.Backend = BackendEmbedded
		}
	}
	switch d.Backend {
	case BackendEmbedded:
		if d.Path == "" {
			d.Path = DefaultPath
		}
	case BackendNetworked:
		if d.Driver == "" {
			d.Driver = DriverPostgres
		}
		if d.Port == 0 {
			switch d.Driver {
			case DriverPostgres:
				d.Port = 5432
			case DriverMySQL:
				d.Port = 3306
			}
		}
	}
	if d.Pool.Max == 0 {
		d.Pool.Max = DefaultPoolMax
	}
	if d.AcquireTimeout == 0 {
		d.AcquireTimeout = DefaultAcquireTimeout
	}
	return d
}

// Validate reports the first problem found in d. It does not apply
// defaults; call Resolved first.
func (d Database) Validate() error {
	switch d.Backend {
	case BackendEmbedded:
		if d.Path == "" {
			return fmt.Errorf("%w: embedded backend requires a file path", ErrInvalid)
		}
	case BackendNetworked:
		if d.Driver != DriverPostgres && d.Driver != DriverMySQL {
			return fmt.Errorf("%w: unsupported networked driver %q", ErrInvalid, d.Driver)
		}
		if d.DSN == "" {
			if d.Host == "" {
				return fmt.Errorf("%w: networked backend requires a host", ErrInvalid)
			}
			if d.Name == "" {
				return fmt.Errorf("%w: networked backend requires a database name", ErrInvalid)
			}
			if d.Port < 1 || d.Port > 65535 {
				return fmt.Errorf("%w: port %d out of range", ErrInvalid, d.Port)
			}
		}
		if d.SSLInsecure && !d.SSL {
			return fmt.Errorf("%w: ssl_insecure requires ssl", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrInvalid, d.Backend)
	}
	if d.Pool.Min < 0 || d.Pool.Max < 1 || d.Pool.Min > d.Pool.Max {
		return fmt.Errorf("%w: pool bounds min=%d max=%d", ErrInvalid, d.Pool.Min, d.Pool.Max)
	}
	if d.AcquireTimeout <= 0 {
		return fmt.Errorf("%w: acquire_timeout must be positive", ErrInvalid)
	}
	if d.AcquireRetries < 0 || d.AcquireBackoff < 0 {
		return fmt.Errorf("%w: acquire retry settings must not be negative", ErrInvalid)
	}
	return nil
}

// Embedded reports whether d selects the embedded file store.
func (d Database) Embedded() bool {
	return d.Resolved().Backend == BackendEmbedded
}

// String describes the target without credentials, for logs.
func (d Database) String() string {
	r := d.Resolved()
	if r.Backend == BackendEmbedded {
		return "embedded:" + r.Path
	}
	if r.DSN != "" {
		return r.Driver + ":<dsn>"
	}
	return fmt.Sprintf("%s://%s@%s:%d/%s", r.Driver, r.User, r.Host, r.Port, r.Name)
}
