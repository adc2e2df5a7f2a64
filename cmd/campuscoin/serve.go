// cmd/campuscoin/serve.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	app "campus-coin/internal"
	"campus-coin/internal/config"
)

var servePort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&servePort, "port", "", "Listen port (overrides SERVER_PORT)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if servePort != "" {
		cfg.ServerPort = servePort
	}

	// Create and initialize the application
	application := app.NewApplication()
	if err := application.InitializeWithConfig(ctx, cfg); err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	// Start HTTP server
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           application.HTTPHandler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       120 * time.Second,
		// No WriteTimeout: it would cut long-lived WebSocket connections.
	}

	// Run server in a goroutine
	serverErr := make(chan error, 1)
	go func() {
		application.Logger.Info("Starting HTTP server", "port", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit: // Block until a signal is received
		application.Logger.Info("Shutting down HTTP server...", "signal", sig.String())
	case err, ok := <-serverErr:
		if ok {
			application.Logger.Error("HTTP server failed", "error", err)
			_ = application.Shutdown(context.Background())
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	// Close WebSockets first: Shutdown does not wait for hijacked connections.
	_ = application.Hub.Close()
	if err := server.Shutdown(shutdownCtx); err != nil {
		application.Logger.Error("HTTP server shutdown failed", "error", err)
		return fmt.Errorf("http server shutdown: %w", err)
	}

	// Perform application-level shutdown (e.g., close DB connections)
	if err := application.Shutdown(shutdownCtx); err != nil {
		application.Logger.Error("Application shutdown failed", "error", err)
		return err
	}

	application.Logger.Info("Application gracefully stopped.")
	return nil
}
