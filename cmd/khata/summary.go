package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/khata/internal/ledger"
	"github.com/mschirtzinger/khata/internal/schema"
	"github.com/mschirtzinger/khata/internal/ui"
)

var summaryCmd = &cobra.Command{
	Use:     "summary",
	GroupID: "ledger",
	Short:   "Show ledger totals",
	Long: `Show totals across active customers.

With --csv, print the daily summary sheet (the same CSV that is written to
Drive after every successful save) to stdout instead.`,
	Run: func(cmd *cobra.Command, args []string) {
		asCSV, _ := cmd.Flags().GetBool("csv")

		a, _ := mustOpen(cmd.Context())
		defer a.Close()

		now := time.Now()
		if asCSV {
			snap := a.engine.Snapshot()
			data, err := schema.DailySummaryCSV(snap, snap.Name(), now)
			if err != nil {
				a.Close()
				fatalf("%v", err)
			}
			_, _ = cmd.OutOrStdout().Write(data)
			return
		}

		a.view(func(l *ledger.Ledger) error {
			s := l.Analytics(now)
			fmt.Printf("\n%s Ledger Summary\n\n", ui.RenderAccent("📊"))
			fmt.Printf("Customers: %d (%d owe, %d in advance)\n", s.TotalCustomers, s.CustomersWithDue, s.CustomersWithAdvance)
			fmt.Printf("Transactions: %d (%d this month)\n", s.TotalTransactions, s.ThisMonthTransactions)
			fmt.Printf("Total due: %s\n", ui.Balance(s.TotalDue))
			fmt.Printf("Total paid: %s\n", s.TotalPaid.Round(3))
			fmt.Printf("Total advance: %s\n", s.TotalAdvance.Round(3))

			inactive := l.Inactive(now, cfg.Ledger.InactivityWindow)
			if len(inactive) > 0 {
				fmt.Printf("Inactive for %v: %d customers\n", cfg.Ledger.InactivityWindow, len(inactive))
			}
			fmt.Println()
			return nil
		})
	},
}

func init() {
	summaryCmd.Flags().Bool("csv", false, "Print the daily summary CSV")
	rootCmd.AddCommand(summaryCmd)
}
