package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/khata/internal/ledger"
	"github.com/mschirtzinger/khata/internal/ui"
)

var trashCmd = &cobra.Command{
	Use:     "trash",
	GroupID: "ledger",
	Short:   "Inspect and empty deleted records",
	Long: `Deleted customers and transactions stay recoverable for
ledger.retention_days (default 30) before they can be purged.`,
}

var trashListCmd = &cobra.Command{
	Use:   "list",
	Short: "List deleted records and days left to restore them",
	Run: func(cmd *cobra.Command, args []string) {
		a, _ := mustOpen(cmd.Context())
		defer a.Close()

		a.view(func(l *ledger.Ledger) error {
			customers, txns := l.Trash()
			if len(customers) == 0 && len(txns) == 0 {
				fmt.Println(ui.RenderMuted("Trash is empty"))
				return nil
			}

			if len(customers) > 0 {
				rows := make([][]string, 0, len(customers))
				for _, c := range customers {
					rows = append(rows, []string{
						strconv.FormatInt(c.ID, 10), c.Name, strconv.Itoa(c.Transactions), daysLeft(c.DaysLeft),
					})
				}
				fmt.Println(ui.RenderHeader("Customers"))
				ui.Table(cmd.OutOrStdout(), []string{"ID", "NAME", "TXNS", "DAYS LEFT"}, rows)
				fmt.Println()
			}

			if len(txns) > 0 {
				rows := make([][]string, 0, len(txns))
				for _, t := range txns {
					rows = append(rows, []string{
						strconv.FormatInt(t.ID, 10), strconv.FormatInt(t.CustomerID, 10), t.Date.String(),
						string(t.Type), t.Amount.String(), string(t.DeletionCause), daysLeft(t.DaysLeft),
					})
				}
				fmt.Println(ui.RenderHeader("Transactions"))
				ui.Table(cmd.OutOrStdout(), []string{"ID", "CUSTOMER", "DATE", "TYPE", "AMOUNT", "CAUSE", "DAYS LEFT"}, rows)
			}
			return nil
		})
	},
}

var trashPurgeExpiredCmd = &cobra.Command{
	Use:   "purge-expired",
	Short: "Permanently remove records past the retention window",
	Run: func(cmd *cobra.Command, args []string) {
		a, _ := mustOpen(cmd.Context())
		defer a.Close()

		var res ledger.PurgeResult
		a.mutate(cmd.Context(), func(l *ledger.Ledger) error {
			res = l.PurgeExpired(time.Now())
			return nil
		})
		fmt.Printf("Purged %d customers and %d transactions\n", res.Customers, res.Transactions)
	},
}

var trashEmptyCmd = &cobra.Command{
	Use:   "empty",
	Short: "Permanently remove everything in the trash",
	Run: func(cmd *cobra.Command, args []string) {
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes && !ui.Confirm("Permanently remove everything in the trash?") {
			fatalf("aborted (pass --yes to skip confirmation)")
		}

		a, _ := mustOpen(cmd.Context())
		defer a.Close()

		var res ledger.PurgeResult
		a.mutate(cmd.Context(), func(l *ledger.Ledger) error {
			res = l.EmptyTrash()
			return nil
		})
		fmt.Printf("Purged %d customers and %d transactions\n", res.Customers, res.Transactions)
	},
}

func daysLeft(n int) string {
	if n <= 0 {
		return ui.RenderWarn("expired")
	}
	return strconv.Itoa(n)
}

func init() {
	trashEmptyCmd.Flags().Bool("yes", false, "Skip confirmation")

	trashCmd.AddCommand(trashListCmd, trashPurgeExpiredCmd, trashEmptyCmd)
	rootCmd.AddCommand(trashCmd)
}
