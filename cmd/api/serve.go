package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"workspace-auth/internal/app"
)

func NewServeCmd() *cobra.Command {
	var runMigrations bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return runServe(ctx, runMigrations)
		},
	}

	cmd.Flags().BoolVar(&runMigrations, "migrate", app.EnvBoolOrDefault("RUN_MIGRATIONS_ON_STARTUP", true), "apply pending migrations before serving")

	return cmd
}

func runServe(ctx context.Context, runMigrations bool) error {
	runtime, err := app.Build(ctx, app.Options{RunMigrations: runMigrations})
	if err != nil {
		return err
	}
	defer runtime.Close()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", runtime.Config.Port),
		Handler:           runtime.Handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		runtime.Logger.Info("server_start", map[string]any{"addr": server.Addr})
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			runtime.Logger.Error("server_failed", map[string]any{"error": err.Error()})
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	runtime.Logger.Info("server_shutdown", nil)
	return server.Shutdown(shutdownCtx)
}
