package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/mschirtzinger/khata/internal/ledger"
	"github.com/mschirtzinger/khata/internal/schema"
	"github.com/mschirtzinger/khata/internal/ui"
)

var txnCmd = &cobra.Command{
	Use:     "txn",
	Aliases: []string{"transaction", "t"},
	GroupID: "ledger",
	Short:   "Record and manage transactions",
}

var txnAddCmd = &cobra.Command{
	Use:   "add <customer-id> <due|paid> <amount> <item>",
	Short: "Record a due (credit given) or paid (money received) entry",
	Long: `Record a transaction against a customer.

  due   the customer took goods on credit (balance goes up)
  paid  the customer paid money (balance goes down)

Dates accept YYYY-MM-DD or phrases like "yesterday" or "last monday".

Example:
  khata txn add 42 due 150.50 "rice 5kg" --date yesterday`,
	Args: cobra.ExactArgs(4),
	Run: func(cmd *cobra.Command, args []string) {
		customerID := parseID(args[0])
		entry := schema.EntryType(strings.ToLower(args[1]))
		amount, err := decimal.NewFromString(args[2])
		if err != nil {
			fatalf("invalid amount %q", args[2])
		}
		dateText, _ := cmd.Flags().GetString("date")
		note, _ := cmd.Flags().GetString("note")

		a, _ := mustOpen(cmd.Context())
		defer a.Close()

		date, err := a.dates.Parse(dateText, time.Now())
		if err != nil {
			a.Close()
			fatalf("%v", err)
		}

		var created schema.Transaction
		a.mutate(cmd.Context(), func(l *ledger.Ledger) error {
			var err error
			created, err = l.AddTransaction(schema.NewTransaction{
				CustomerID: customerID,
				Date:       date,
				Item:       args[3],
				Amount:     amount,
				Type:       entry,
				Note:       note,
			})
			return err
		})
		fmt.Printf("%s Recorded %s %s on %s (id %d)\n", ui.RenderPass("✓"), created.Type, created.Amount, created.Date, created.ID)
	},
}

var txnDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Move a transaction to the trash",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := parseID(args[0])
		a, _ := mustOpen(cmd.Context())
		defer a.Close()
		a.mutate(cmd.Context(), func(l *ledger.Ledger) error { return l.DeleteTransaction(id) })
	},
}

var txnRestoreCmd = &cobra.Command{
	Use:   "restore <id>",
	Short: "Restore a deleted transaction",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := parseID(args[0])
		a, _ := mustOpen(cmd.Context())
		defer a.Close()
		a.mutate(cmd.Context(), func(l *ledger.Ledger) error { return l.RestoreTransaction(id) })
	},
}

var txnPurgeCmd = &cobra.Command{
	Use:   "purge <id>",
	Short: "Permanently remove a deleted transaction",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := parseID(args[0])
		a, _ := mustOpen(cmd.Context())
		defer a.Close()
		a.mutate(cmd.Context(), func(l *ledger.Ledger) error { return l.PurgeTransaction(id) })
	},
}

var txnDeleteAllCmd = &cobra.Command{
	Use:   "delete-all <customer-id>",
	Short: "Move every transaction of a customer to the trash",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		customerID := parseID(args[0])
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes && !ui.Confirm(fmt.Sprintf("Move every transaction of customer %d to the trash?", customerID)) {
			fatalf("aborted (pass --yes to skip confirmation)")
		}

		a, _ := mustOpen(cmd.Context())
		defer a.Close()

		var n int
		a.mutate(cmd.Context(), func(l *ledger.Ledger) error {
			var err error
			n, err = l.DeleteAllTransactions(customerID)
			return err
		})
		fmt.Printf("Moved %d transactions to the trash\n", n)
	},
}

func init() {
	txnAddCmd.Flags().String("date", "", "Transaction date (default today)")
	txnAddCmd.Flags().String("note", "", "Free-form note")
	txnDeleteAllCmd.Flags().Bool("yes", false, "Skip confirmation")

	txnCmd.AddCommand(txnAddCmd, txnDeleteCmd, txnRestoreCmd, txnPurgeCmd, txnDeleteAllCmd)
	rootCmd.AddCommand(txnCmd)
}
