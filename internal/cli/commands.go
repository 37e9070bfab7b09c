// Copyright (c) 2026 Taskboard Team
// Taskboard - task tracking storage layer
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/taskboard/taskboard/internal/config"
	"github.com/taskboard/taskboard/internal/db"
)

func writeYAML(w io.Writer, v any) error {
	out, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Reconcile the schema and print what changed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ad, err := a.adapter(cmd.Context())
			if err != nil {
				return err
			}
			applied, err := ad.AppliedMigrations(cmd.Context())
			if err != nil {
				return err
			}
			rep := ad.Report()
			ledger := make([]string, 0, len(applied))
			for _, m := range applied {
				ledger = append(ledger, m.String())
			}
			added := make([]string, 0, len(rep.Added))
			for _, m := range rep.Added {
				added = append(added, m.String())
			}
			return writeYAML(cmd.OutOrStdout(), yaml.MapSlice{
				{Key: "backend", Value: ad.Config().String()},
				{Key: "created", Value: rep.Created},
				{Key: "added", Value: added},
				{Key: "statements", Value: rep.Statements},
				{Key: "warnings", Value: rep.Warnings},
				{Key: "applied", Value: ledger},
			})
		},
	}
}

func newInspectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect [table...]",
		Short: "Print the live columns of tables (all tables by default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ad, err := a.adapter(ctx)
			if err != nil {
				return err
			}
			tables := args
			if len(tables) == 0 {
				if tables, err = ad.Tables(ctx); err != nil {
					return err
				}
			}
			out := make(yaml.MapSlice, 0, len(tables))
			for _, t := range tables {
				cols, err := ad.Inspect(ctx, t)
				if err != nil {
					return err
				}
				if len(cols) == 0 {
					return fmt.Errorf("table %s does not exist", t)
				}
				out = append(out, yaml.MapItem{Key: t, Value: cols})
			}
			return writeYAML(cmd.OutOrStdout(), out)
		},
	}
}

func newPingCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the database is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()
			ad, err := a.adapter(cmd.Context())
			if err != nil {
				return err
			}
			if err := ad.Ping(cmd.Context()); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "ok %s (%s)\n", ad.Config(), time.Since(start).Round(time.Millisecond))
			return err
		},
	}
}

func newMaintainCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "maintain",
		Short: "Run database maintenance (VACUUM/OPTIMIZE) for the configured DB",
		Long:  `Runs engine-specific maintenance tasks (VACUUM, OPTIMIZE TABLE, PRAGMA optimize).`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ad, err := a.adapter(cmd.Context())
			if err != nil {
				return err
			}
			if err := ad.Maintain(cmd.Context()); err != nil {
				return fmt.Errorf("maintenance failed: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "Maintenance completed successfully")
			return err
		},
	}
}

func newQueryCmd(a *app) *cobra.Command {
	var exec bool
	cmd := &cobra.Command{
		Use:   "query <statement> [args...]",
		Short: "Run a statement with ? placeholders and print the rows as YAML",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ad, err := a.adapter(ctx)
			if err != nil {
				return err
			}
			params := make([]any, 0, len(args)-1)
			for _, p := range args[1:] {
				params = append(params, p)
			}
			if exec {
				n, err := ad.Execute(ctx, args[0], params...)
				if err != nil {
					return err
				}
				return writeYAML(cmd.OutOrStdout(), yaml.MapSlice{{Key: "affected", Value: n}})
			}
			res, err := ad.Query(ctx, args[0], params...)
			if err != nil {
				return err
			}
			return writeYAML(cmd.OutOrStdout(), rowsForOutput(res))
		},
	}
	cmd.Flags().BoolVar(&exec, "exec", false, "Run a write statement and print the affected row count")
	return cmd
}

// rowsForOutput keeps column order and renders values as plain scalars.
func rowsForOutput(res *db.Result) []yaml.MapSlice {
	out := make([]yaml.MapSlice, 0, res.Len())
	for _, row := range res.Rows {
		item := make(yaml.MapSlice, 0, len(res.Columns))
		for _, col := range res.Columns {
			item = append(item, yaml.MapItem{Key: col, Value: displayValue(row[col])})
		}
		out = append(out, item)
	}
	return out
}

func displayValue(v any) any {
	switch x := v.(type) {
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case uuid.UUID:
		return x.String()
	case json.RawMessage:
		return string(x)
	}
	return v
}

func newBackupCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "backup [output-file]",
		Short: "Create a compressed (zstd) JSON backup of the database",
		Long: `Dumps every declared table into a single, Zstandard-compressed JSON file.

If an output file is specified, '.zst' will be appended to the name if it's not already present.
If no output file is specified, a default filename 'taskboard-backup-YYYY-MM-DD.json.zst' is used.

The file can be restored into either backend, which makes it the way to move
data between the embedded file and a database server.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputFile := fmt.Sprintf("taskboard-backup-%s.json.zst", time.Now().Format("2006-01-02"))
			if len(args) == 1 {
				outputFile = args[0]
				if !strings.HasSuffix(outputFile, ".zst") {
					outputFile += ".zst"
				}
			}
			ad, err := a.adapter(cmd.Context())
			if err != nil {
				return err
			}
			snap, err := ad.Export(cmd.Context())
			if err != nil {
				return fmt.Errorf("export failed: %w", err)
			}
			f, err := os.Create(outputFile)
			if err != nil {
				return fmt.Errorf("could not create backup file: %w", err)
			}
			if err := db.WriteSnapshot(f, snap); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Backed up %d rows from %d tables to %s\n", snap.RowCount(), len(snap.Tables), outputFile)
			return err
		},
	}
}

func newRestoreCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <backup-file>",
		Short: "Replace the database content with a backup",
		Long: `Reads a backup written by 'taskboard backup' and replaces the content of
every declared table with it, inside one transaction.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("could not open backup file: %w", err)
			}
			defer func() { _ = f.Close() }()
			snap, err := db.ReadSnapshot(f)
			if err != nil {
				return err
			}
			ad, err := a.adapter(cmd.Context())
			if err != nil {
				return err
			}
			if err := ad.Import(cmd.Context(), snap); err != nil {
				return fmt.Errorf("restore failed: %w", err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Restored %d rows into %s\n", snap.RowCount(), ad.Config())
			return err
		},
	}
}

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}
	var system bool
	write := &cobra.Command{
		Use:   "write",
		Short: "Write the effective configuration to the user (or system) config path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.WriteConfigFile(&a.cfg, system)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Wrote config to %s\n", path)
			return err
		},
	}
	write.Flags().BoolVar(&system, "system", false, "Write the system-wide config instead of the user config")
	cmd.AddCommand(write)
	return cmd
}
