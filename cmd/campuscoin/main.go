// cmd/campuscoin/main.go
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "campuscoin",
	Short: "Campus coin ledger service",
	Long: `campuscoin runs the campus coin wallet: nickname login, quest rewards,
peer-to-peer transfers, a ranking and per-account history.

Configuration comes from the environment (or a .env file); see STORE_BACKEND,
SQLITE_PATH, JSON_FILE_PATH, DB_* and KAFKA_BROKERS.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(serveCmd, resetDBCmd)
}
