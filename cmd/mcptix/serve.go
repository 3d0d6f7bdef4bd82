package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/ownlytics/mcptix-sub000/internal/application"
	httptransport "github.com/ownlytics/mcptix-sub000/internal/http"
	"github.com/ownlytics/mcptix-sub000/internal/persistence/sqlite"
	"github.com/ownlytics/mcptix-sub000/internal/scheduler"
)

func serveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the REST API and the renormalization schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			listener, err := net.Listen("tcp", a.cfg.HTTP.Addr())
			if err != nil {
				return err
			}
			return a.serve(cmd.Context(), listener)
		},
	}
}

// serve blocks until ctx is cancelled or the server fails.
func (a *app) serve(ctx context.Context, listener net.Listener) error {
	storage, err := a.openStorage(ctx, true)
	if err != nil {
		listener.Close()
		return err
	}
	defer a.closeStorage(storage)

	renormalizer, err := scheduler.New(a.cfg.RenormalizeSchedule, storage, a.logger)
	if err != nil {
		listener.Close()
		return err
	}
	renormalizer.Start(ctx)

	server := a.newServer(storage)
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("mcptix API listening", "addr", listener.Addr().String())
		errCh <- server.Serve(listener)
	}()

	var serveErr error
	select {
	case err := <-errCh:
		serveErr = err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		a.logger.Error("failed to shutdown server", "error", err)
	}
	if err := renormalizer.Stop(shutdownCtx); err != nil {
		a.logger.Error("failed to stop renormalize schedule", "error", err)
	}

	if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		return serveErr
	}
	return nil
}

func (a *app) newServer(storage *sqlite.Storage) *http.Server {
	service := application.NewTicketServiceWithLogger(storage, a.logger)
	router := httptransport.NewRouter(httptransport.RouterConfig{
		Tickets: httptransport.NewTicketHandler(service, a.logger),
		Health:  storage,
		Logger:  a.logger,
	})

	return &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
