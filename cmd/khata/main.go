package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/khata/internal/config"
)

var (
	configPath string
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "khata",
	Short: "Customer credit ledger synced to Google Drive",
	Long: `khata keeps a shop's customer credit ledger (who owes what) on this
device and mirrors it to a single JSON document in Google Drive.

Every change is written to the local cache first, so the ledger keeps working
offline. Pending changes are pushed the next time Drive is reachable, and a
daily CSV summary is written next to the ledger document.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default $HOME/.khata/config.yaml)")

	rootCmd.AddGroup(
		&cobra.Group{ID: "sync", Title: "Sync:"},
		&cobra.Group{ID: "ledger", Title: "Ledger:"},
		&cobra.Group{ID: "advanced", Title: "Advanced:"},
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// fatalf prints an error and exits.
func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
