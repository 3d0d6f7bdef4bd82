package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ownlytics/mcptix-sub000/internal/config"
	"github.com/ownlytics/mcptix-sub000/internal/logging"
	"github.com/ownlytics/mcptix-sub000/internal/persistence/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app carries what every subcommand needs once configuration is loaded.
type app struct {
	configPath string
	logOutput  io.Writer

	cfg    config.Config
	logger *slog.Logger
}

func newRootCmd(out, logOutput io.Writer) *cobra.Command {
	a := &app{logOutput: logOutput}

	root := &cobra.Command{
		Use:           "mcptix",
		Short:         "Ticket store with fractional ordering and versioned schema",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "optional YAML configuration file")

	root.AddCommand(serveCmd(a))
	root.AddCommand(migrateCmd(a))
	root.AddCommand(renormalizeCmd(a))
	return root
}

func (a *app) load() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}

	logCfg := cfg.Log.Logging()
	logCfg.Output = a.logOutput
	logger, err := logging.New(logCfg)
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = logger
	return nil
}

// openStorage opens the configured database. With bootstrap false the schema
// is left untouched so migrate commands can drive the manager directly.
func (a *app) openStorage(ctx context.Context, bootstrap bool) (*sqlite.Storage, error) {
	storage, err := sqlite.Open(ctx, sqlite.Options{
		SQLite:        a.cfg.Database.SQLite(),
		TargetVersion: a.cfg.Database.TargetVersion,
		SkipBootstrap: !bootstrap,
		Logger:        a.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open storage %s: %w", a.cfg.Database.Path, err)
	}
	return storage, nil
}

func (a *app) closeStorage(storage *sqlite.Storage) {
	if err := storage.Close(); err != nil {
		a.logger.Error("failed to close storage", "error", err)
	}
}
