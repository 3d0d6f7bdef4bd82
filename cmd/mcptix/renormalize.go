package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ownlytics/mcptix-sub000/internal/application"
	"github.com/ownlytics/mcptix-sub000/internal/persistence"
)

func renormalizeCmd(a *app) *cobra.Command {
	var (
		status      string
		crowdedOnly bool
	)

	cmd := &cobra.Command{
		Use:   "renormalize",
		Short: "Respace ticket positions evenly within status columns",
		Long: `Rewrites the positions of a column to evenly spaced values while keeping
their order. Without --status every column is respaced; --crowded-only limits
the run to columns whose neighbouring tickets sit too close together.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			storage, err := a.openStorage(ctx, true)
			if err != nil {
				return err
			}
			defer a.closeStorage(storage)

			out := cmd.OutOrStdout()
			if crowdedOnly {
				rewritten, err := storage.RenormalizeCrowded(ctx)
				for _, s := range persistence.Statuses() {
					if n, ok := rewritten[s]; ok {
						fmt.Fprintf(out, "%s: %d tickets respaced\n", s, n)
					}
				}
				if err != nil {
					return err
				}
				if len(rewritten) == 0 {
					fmt.Fprintln(out, color.GreenString("no crowded columns"))
				}
				return nil
			}

			columns := persistence.Statuses()
			if status = strings.TrimSpace(status); status != "" {
				columns = []persistence.Status{persistence.Status(status)}
			}

			service := application.NewTicketServiceWithLogger(storage, a.logger)
			for _, column := range columns {
				n, err := service.RenormalizeColumn(ctx, column)
				if err != nil {
					return fmt.Errorf("failed to renormalize %s: %w", column, err)
				}
				fmt.Fprintf(out, "%s: %d tickets respaced\n", column, n)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "column to respace (default all)")
	cmd.Flags().BoolVar(&crowdedOnly, "crowded-only", false, "only respace columns with crowded positions")
	cmd.MarkFlagsMutuallyExclusive("status", "crowded-only")
	return cmd
}
