// cmd/campuscoin/reset.go
package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	app "campus-coin/internal"
	"campus-coin/internal/config"
	"campus-coin/internal/util"
)

var resetConfirmed bool

var resetDBCmd = &cobra.Command{
	Use:   "reset-db",
	Short: "Delete every account and history entry",
	Long: `reset-db empties the ledger of the configured STORE_BACKEND. The schema is
kept, so the service can be started again right away. Stop the server first.`,
	RunE: runResetDB,
}

func init() {
	resetDBCmd.Flags().BoolVar(&resetConfirmed, "yes", false, "Confirm that all ledger data should be deleted")
}

func runResetDB(cmd *cobra.Command, _ []string) error {
	if !resetConfirmed {
		return errors.New("refusing to reset without --yes")
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	util.InitLogger(cfg.LogLevel)
	logger := util.GetLogger()

	store, err := app.OpenStore(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", cfg.StoreBackend, err)
	}
	defer store.Close()

	if err := store.Reset(cmd.Context()); err != nil {
		return fmt.Errorf("failed to reset ledger: %w", err)
	}
	logger.Info("Ledger reset", "backend", cfg.StoreBackend)
	fmt.Fprintln(cmd.OutOrStdout(), "ledger reset")
	return nil
}
