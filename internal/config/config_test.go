package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	cfg "github.com/taskboard/taskboard/internal/config"
)

func isolateConfigDirs(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmp)
	t.Setenv("HOME", tmp)
	t.Chdir(tmp)
	return tmp
}

func TestLoad_DefaultsOnly(t *testing.T) {
	isolateConfigDirs(t)

	got, err := cfg.Load[cfg.Config](&cobra.Command{}, cfg.Defaults(), nil)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if got.Database.Path != cfg.DefaultPath {
		t.Fatalf("path = %q; want %q", got.Database.Path, cfg.DefaultPath)
	}
	if got.Database.AcquireTimeout != cfg.DefaultAcquireTimeout {
		t.Fatalf("acquire timeout = %s; want %s", got.Database.AcquireTimeout, cfg.DefaultAcquireTimeout)
	}
	if !got.Database.Embedded() {
		t.Fatalf("expected embedded backend when no host is configured")
	}
}

func TestLoad_ReadsExplicitFile(t *testing.T) {
	tmp := isolateConfigDirs(t)
	doc := "database:\n  host: db.internal\n  name: tasks\n  user: app\n  ssl: true\n  pool:\n    min: 1\n    max: 4\n  acquire_timeout: 750ms\nlog:\n  level: debug\n"
	file := filepath.Join(tmp, "cfg.yaml")
	if err := os.WriteFile(file, []byte(doc), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	got, err := cfg.Load[cfg.Config](&cobra.Command{}, cfg.Defaults(), &file)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	db := got.Database.Resolved()
	if db.Backend != cfg.BackendNetworked {
		t.Fatalf("backend = %q; want networked", db.Backend)
	}
	if db.Port != 5432 {
		t.Fatalf("port = %d; want 5432", db.Port)
	}
	if db.Pool.Max != 4 || db.Pool.Min != 1 {
		t.Fatalf("pool = %+v; want min=1 max=4", db.Pool)
	}
	if db.AcquireTimeout != 750*time.Millisecond {
		t.Fatalf("acquire timeout = %s", db.AcquireTimeout)
	}
	if got.Log.Level != "debug" {
		t.Fatalf("log level = %q", got.Log.Level)
	}
	if err := db.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	tmp := isolateConfigDirs(t)
	file := filepath.Join(tmp, "cfg.yaml")
	if err := os.WriteFile(file, []byte("database:\n  path: from-file.db\n"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	t.Setenv("TASKBOARD_DATABASE_PATH", "from-env.db")

	got, err := cfg.Load[cfg.Config](&cobra.Command{}, cfg.Defaults(), &file)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if got.Database.Path != "from-env.db" {
		t.Fatalf("path = %q; want from-env.db", got.Database.Path)
	}
}

func TestLoad_FlagOverridesEnv(t *testing.T) {
	isolateConfigDirs(t)
	t.Setenv("TASKBOARD_DATABASE_PATH", "from-env.db")

	cmd := &cobra.Command{Use: "x"}
	cmd.Flags().String("db-path", "", "")
	cfg.BindFlag(cmd, "db-path", "database.path")
	if err := cmd.Flags().Set("db-path", "from-flag.db"); err != nil {
		t.Fatalf("set flag: %v", err)
	}

	got, err := cfg.Load[cfg.Config](cmd, cfg.Defaults(), nil)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if got.Database.Path != "from-flag.db" {
		t.Fatalf("path = %q; want from-flag.db", got.Database.Path)
	}
}

func TestLoad_MalformedFile(t *testing.T) {
	tmp := isolateConfigDirs(t)
	file := filepath.Join(tmp, "bad.yaml")
	if err := os.WriteFile(file, []byte("database: [unterminated\n"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if _, err := cfg.Load[cfg.Config](&cobra.Command{}, cfg.Defaults(), &file); err == nil {
		t.Fatalf("expected error for malformed config")
	}
}

func TestWriteConfigFile_CreatesFile(t *testing.T) {
	isolateConfigDirs(t)

	c := cfg.Config{}
	c.Database.Path = "./boards.db"
	c.Log.Level = "info"

	path, err := cfg.WriteConfigFile(&c, false)
	if err != nil {
		t.Fatalf("WriteConfigFile failed: %v", err)
	}
	want, err := cfg.GetConfigPath(false)
	if err != nil {
		t.Fatalf("GetConfigPath failed: %v", err)
	}
	if path != want {
		t.Fatalf("path = %s; want %s", path, want)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read written config: %v", err)
	}
	if !strings.Contains(string(data), "./boards.db") {
		t.Fatalf("written config missing path: %s", data)
	}
}

func TestDatabaseValidate(t *testing.T) {
	base := cfg.Database{Host: "h", Name: "n"}.Resolved()

	cases := []struct {
		name    string
		mutate  func(d *cfg.Database)
		wantErr bool
	}{
		{"networked ok", func(d *cfg.Database) {}, false},
		{"unknown backend", func(d *cfg.Database) { d.Backend = "cloud" }, true},
		{"unknown driver", func(d *cfg.Database) { d.Driver = "oracle" }, true},
		{"missing name", func(d *cfg.Database) { d.Name = "" }, true},
		{"dsn replaces fields", func(d *cfg.Database) { d.Name = ""; d.Host = ""; d.DSN = "postgres://x/y" }, false},
		{"bad port", func(d *cfg.Database) { d.Port = 70000 }, true},
		{"min above max", func(d *cfg.Database) { d.Pool = cfg.Pool{Min: 5, Max: 2} }, true},
		{"insecure without ssl", func(d *cfg.Database) { d.SSLInsecure = true }, true},
		{"negative retries", func(d *cfg.Database) { d.AcquireRetries = -1 }, true},
		{"embedded without path", func(d *cfg.Database) { d.Backend = cfg.BackendEmbedded; d.Path = "" }, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := base
			tc.mutate(&d)
			err := d.Validate()
			if tc.wantErr && !errors.Is(err, cfg.ErrInvalid) {
				t.Fatalf("expected ErrInvalid, got %v", err)
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestDatabaseResolved_EmbeddedFallback(t *testing.T) {
	d := cfg.Database{}.Resolved()
	if d.Backend != cfg.BackendEmbedded || d.Path != cfg.DefaultPath {
		t.Fatalf("unexpected resolution: %+v", d)
	}
	m := cfg.Database{Host: "h", Driver: cfg.DriverMySQL}.Resolved()
	if m.Port != 3306 {
		t.Fatalf("mysql default port = %d", m.Port)
	}
	if s := (cfg.Database{Host: "h", Name: "n", User: "u", Password: "secret"}).String(); strings.Contains(s, "secret") {
		t.Fatalf("String leaked password: %s", s)
	}
}
