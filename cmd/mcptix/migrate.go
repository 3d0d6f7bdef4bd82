package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ownlytics/mcptix-sub000/internal/persistence/sqlite/migration"
)

func migrateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Inspect and change the database schema version",
	}
	cmd.AddCommand(migrateStatusCmd(a), migrateUpCmd(a), migrateDownCmd(a))
	return cmd
}

func migrateStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			storage, err := a.openStorage(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.closeStorage(storage)

			status, err := storage.Migrations().Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to read migration status: %w", err)
			}
			return writeStatus(cmd.OutOrStdout(), status)
		},
	}
}

func writeStatus(out io.Writer, status *migration.MigrationStatus) error {
	applied := color.New(color.FgGreen).SprintFunc()
	pending := color.New(color.FgYellow).SprintFunc()

	fmt.Fprintf(out, "Schema version: %d (latest %d)\n\n", status.CurrentVersion, status.LatestVersion)

	w := tabwriter.NewWriter(out, 2, 0, 3, ' ', 0)
	fmt.Fprintln(w, "VERSION\tNAME\tSTATE\tAPPLIED AT\tDURATION")
	for _, row := range status.Applied {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
			row.Version, row.Name, applied("applied"),
			row.AppliedAt.UTC().Format(time.RFC3339), row.ExecutionTime.Round(time.Millisecond),
		)
	}
	for _, def := range status.Pending {
		fmt.Fprintf(w, "%d\t%s\t%s\t-\t-\n", def.Version, def.Name, pending("pending"))
	}
	return w.Flush()
}

func migrateUpCmd(a *app) *cobra.Command {
	var to int

	cmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations, up to --to when given",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			storage, err := a.openStorage(ctx, false)
			if err != nil {
				return err
			}
			defer a.closeStorage(storage)

			manager := storage.Migrations()
			if to <= 0 {
				err = manager.Bootstrap(ctx, 0)
			} else {
				current, cerr := manager.CurrentVersion(ctx)
				if cerr != nil {
					return cerr
				}
				if to < current {
					return fmt.Errorf("target version %d is below current version %d; use migrate down", to, current)
				}
				err = manager.MigrateTo(ctx, to)
			}
			if err != nil {
				return err
			}
			return printVersion(ctx, cmd.OutOrStdout(), manager)
		},
	}
	cmd.Flags().IntVar(&to, "to", 0, "target schema version (default latest)")
	return cmd
}

func migrateDownCmd(a *app) *cobra.Command {
	var to int

	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll the schema back to --to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if to < 0 {
				return fmt.Errorf("target version must not be negative")
			}

			ctx := cmd.Context()
			storage, err := a.openStorage(ctx, false)
			if err != nil {
				return err
			}
			defer a.closeStorage(storage)

			manager := storage.Migrations()
			current, err := manager.CurrentVersion(ctx)
			if err != nil {
				return err
			}
			if to > current {
				return fmt.Errorf("target version %d is above current version %d; use migrate up", to, current)
			}
			if err := manager.MigrateTo(ctx, to); err != nil {
				return err
			}
			return printVersion(ctx, cmd.OutOrStdout(), manager)
		},
	}
	cmd.Flags().IntVar(&to, "to", 0, "target schema version")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func printVersion(ctx context.Context, out io.Writer, manager *migration.Manager) error {
	version, err := manager.CurrentVersion(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s schema at version %d\n", color.GreenString("✓"), version)
	return nil
}
