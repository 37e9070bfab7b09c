// Copyright (c) 2026 Taskboard Team
// Taskboard - task tracking storage layer
// This source code is licensed under the MIT license found in the LICENSE file.

// Package cli implements the taskboard command: schema migration,
// inspection, maintenance and ad-hoc queries against the configured store.
package cli

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"

	"github.com/spf13/cobra"
	"github.com/taskboard/taskboard/buildvars"
	"github.com/taskboard/taskboard/internal/config"
	"github.com/taskboard/taskboard/internal/db"
	"github.com/taskboard/taskboard/internal/logging"
	"github.com/taskboard/taskboard/internal/model"
)

// app is the state shared by the commands of one root command.
type app struct {
	configFile string
	verbose    bool
	cfg        config.Config
	registry   *db.Registry
}

// adapter returns the ready adapter for the loaded configuration.
func (a *app) adapter(ctx context.Context) (*db.Adapter, error) {
	return a.registry.Get(ctx, a.cfg.Database)
}

// NewRootCmd creates and configures a new root cobra command. Each call
// returns an independent command tree, which keeps tests isolated.
func NewRootCmd() *cobra.Command {
	a := &app{registry: db.NewRegistry(model.Tables())}

	cmd := &cobra.Command{
		Use:   "taskboard",
		Short: "Taskboard storage administration",
		Long: `Taskboard keeps its data either in an embedded sqlite file or on a
PostgreSQL/MySQL server. The schema is declared in code and reconciled on
startup; these commands run that reconciliation and inspect the result.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.registry.Close()
		},
	}
	cmd.Version = resolveVersion()

	pf := cmd.PersistentFlags()
	pf.StringVar(&a.configFile, "config", "", "config file (default is the user config dir, then ./taskboard.yaml)")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "Log storage activity at info level")
	pf.String("db-backend", "", `Storage backend ("embedded" or "networked")`)
	pf.String("db-path", "", "Embedded database file")
	pf.String("db-host", "", "Database server host")
	pf.Int("db-port", 0, "Database server port")
	pf.String("db-name", "", "Database name")
	pf.String("db-user", "", "Database user")
	pf.String("db-driver", "", `Networked driver ("postgres" or "mysql")`)
	pf.String("log-level", "", "Log level (debug, info, warn, error)")

	for flag, key := range map[string]string{
		"db-backend": "database.backend",
		"db-path":    "database.path",
		"db-host":    "database.host",
		"db-port":    "database.port",
		"db-name":    "database.name",
		"db-user":    "database.user",
		"db-driver":  "database.driver",
		"log-level":  "log.level",
	} {
		config.BindFlag(cmd, flag, key)
	}

	cmd.AddCommand(
		newMigrateCmd(a),
		newInspectCmd(a),
		newPingCmd(a),
		newMaintainCmd(a),
		newQueryCmd(a),
		newBackupCmd(a),
		newRestoreCmd(a),
		newConfigCmd(a),
		newVersionCmd(),
	)
	return cmd
}

func (a *app) setup(cmd *cobra.Command) error {
	var path *string
	if a.configFile != "" {
		if _, err := os.Stat(a.configFile); err != nil {
			return fmt.Errorf("config file specified via --config flag not found or is not accessible: %w", err)
		}
		path = &a.configFile
	}
	cfg, err := config.Load[config.Config](cmd, config.Defaults(), path)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	a.cfg = cfg
	if err := logging.SetLevel(cfg.Log.Level); err != nil {
		return err
	}
	db.SetDebug(a.verbose)
	return nil
}

// Execute runs the CLI. The cmd/taskboard main package calls it and
// handles the process exit.
func Execute() error {
	return NewRootCmd().Execute()
}

// resolveVersion prefers the module version stamped into the binary.
func resolveVersion() string {
	v, c := buildvars.VersionOrDefault("dev"), buildvars.CommitOrDefault("")
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "" && info.Main.Version != "(devel)" {
			v = info.Main.Version
		}
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" && s.Value != "" {
				c = s.Value
			}
		}
	}
	if c != "" {
		return v + " (" + c + ")"
	}
	return v
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "version: %s\n", resolveVersion())
			return err
		},
	}
}
