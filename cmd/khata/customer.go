package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/khata/internal/ledger"
	"github.com/mschirtzinger/khata/internal/schema"
	"github.com/mschirtzinger/khata/internal/ui"
)

var customerCmd = &cobra.Command{
	Use:     "customer",
	Aliases: []string{"customers", "c"},
	GroupID: "ledger",
	Short:   "Manage customers",
}

var customerAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a customer",
	Run: func(cmd *cobra.Command, args []string) {
		in := customerInput(cmd)

		a, _ := mustOpen(cmd.Context())
		defer a.Close()

		var created schema.Customer
		a.mutate(cmd.Context(), func(l *ledger.Ledger) error {
			var err error
			created, err = l.AddCustomer(in)
			return err
		})
		fmt.Printf("%s Added customer %d: %s\n", ui.RenderPass("✓"), created.ID, created.Name)
	},
}

var customerEditCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Change a customer's name or phone",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := parseID(args[0])

		a, _ := mustOpen(cmd.Context())
		defer a.Close()

		var current schema.Customer
		a.view(func(l *ledger.Ledger) error {
			c, ok := l.Customer(id)
			if !ok {
				return fmt.Errorf("customer %d: %w", id, ledger.ErrCustomerNotFound)
			}
			current = c
			return nil
		})

		in := schema.NewCustomer{Name: current.Name, NameLocalized: current.NameLocalized, Phone: current.Phone}
		if cmd.Flags().Changed("name") {
			in.Name, _ = cmd.Flags().GetString("name")
		}
		if cmd.Flags().Changed("local-name") {
			in.NameLocalized, _ = cmd.Flags().GetString("local-name")
		}
		if cmd.Flags().Changed("phone") {
			in.Phone, _ = cmd.Flags().GetString("phone")
		}

		a.mutate(cmd.Context(), func(l *ledger.Ledger) error {
			_, err := l.UpdateCustomer(id, in)
			return err
		})
	},
}

var customerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List customers with their balances",
	Run: func(cmd *cobra.Command, args []string) {
		query, _ := cmd.Flags().GetString("search")
		inactive, _ := cmd.Flags().GetBool("inactive")

		a, _ := mustOpen(cmd.Context())
		defer a.Close()

		a.view(func(l *ledger.Ledger) error {
			customers := l.Search(query)
			if inactive {
				customers = l.Inactive(time.Now(), cfg.Ledger.InactivityWindow)
			}
			if len(customers) == 0 {
				fmt.Println(ui.RenderMuted("No customers"))
				return nil
			}
			rows := make([][]string, 0, len(customers))
			for _, c := range customers {
				rows = append(rows, []string{strconv.FormatInt(c.ID, 10), c.Name, c.Phone, ui.Balance(l.Balance(c.ID))})
			}
			ui.Table(cmd.OutOrStdout(), []string{"ID", "NAME", "PHONE", "BALANCE"}, rows)
			return nil
		})
	},
}

var customerShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a customer's transactions and balance",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := parseID(args[0])

		a, _ := mustOpen(cmd.Context())
		defer a.Close()

		a.view(func(l *ledger.Ledger) error {
			c, ok := l.Customer(id)
			if !ok {
				return fmt.Errorf("customer %d: %w", id, ledger.ErrCustomerNotFound)
			}
			fmt.Printf("\n%s\n", ui.RenderHeader(c.Name))
			if c.NameLocalized != "" {
				fmt.Println(c.NameLocalized)
			}
			fmt.Printf("Phone: %s\n", c.Phone)
			fmt.Printf("Balance: %s\n\n", ui.Balance(l.Balance(id)))

			txns := l.TransactionsFor(id)
			if len(txns) == 0 {
				fmt.Println(ui.RenderMuted("No transactions"))
				return nil
			}
			rows := make([][]string, 0, len(txns))
			for _, t := range txns {
				rows = append(rows, []string{
					strconv.FormatInt(t.ID, 10), t.Date.String(), string(t.Type), t.Amount.String(), t.Item, t.Note,
				})
			}
			ui.Table(cmd.OutOrStdout(), []string{"ID", "DATE", "TYPE", "AMOUNT", "ITEM", "NOTE"}, rows)
			fmt.Println()
			return nil
		})
	},
}

var customerDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Move a customer and their transactions to the trash",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := parseID(args[0])
		a, _ := mustOpen(cmd.Context())
		defer a.Close()
		a.mutate(cmd.Context(), func(l *ledger.Ledger) error { return l.DeleteCustomer(id) })
	},
}

var customerRestoreCmd = &cobra.Command{
	Use:   "restore <id>",
	Short: "Restore a customer (and the transactions deleted with them)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := parseID(args[0])
		a, _ := mustOpen(cmd.Context())
		defer a.Close()
		a.mutate(cmd.Context(), func(l *ledger.Ledger) error { return l.RestoreCustomer(id) })
	},
}

var customerPurgeCmd = &cobra.Command{
	Use:   "purge <id>",
	Short: "Permanently remove a deleted customer",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := parseID(args[0])
		a, _ := mustOpen(cmd.Context())
		defer a.Close()

		var n int
		a.mutate(cmd.Context(), func(l *ledger.Ledger) error {
			var err error
			n, err = l.Purge(id)
			return err
		})
		fmt.Printf("Purged customer %d and %d transactions\n", id, n)
	},
}

var customerDeleteAllCmd = &cobra.Command{
	Use:   "delete-all",
	Short: "Move every customer to the trash",
	Run: func(cmd *cobra.Command, args []string) {
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes && !ui.Confirm("Move every customer to the trash?") {
			fatalf("aborted (pass --yes to skip confirmation)")
		}

		a, _ := mustOpen(cmd.Context())
		defer a.Close()

		var n int
		a.mutate(cmd.Context(), func(l *ledger.Ledger) error {
			n = l.DeleteAllCustomers()
			return nil
		})
		fmt.Printf("Moved %d customers to the trash\n", n)
	},
}

func customerInput(cmd *cobra.Command) schema.NewCustomer {
	name, _ := cmd.Flags().GetString("name")
	local, _ := cmd.Flags().GetString("local-name")
	phone, _ := cmd.Flags().GetString("phone")
	return schema.NewCustomer{Name: name, NameLocalized: local, Phone: phone}
}

func parseID(s string) int64 {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		fatalf("invalid id %q", s)
	}
	return id
}

func init() {
	for _, c := range []*cobra.Command{customerAddCmd, customerEditCmd} {
		c.Flags().String("name", "", "Customer name")
		c.Flags().String("local-name", "", "Name in the local script")
		c.Flags().String("phone", "", "10 digit mobile number")
	}
	customerListCmd.Flags().StringP("search", "s", "", "Filter by name or phone")
	customerListCmd.Flags().Bool("inactive", false, "Only customers without recent transactions")
	customerDeleteAllCmd.Flags().Bool("yes", false, "Skip confirmation")

	customerCmd.AddCommand(customerAddCmd, customerEditCmd, customerListCmd, customerShowCmd,
		customerDeleteCmd, customerRestoreCmd, customerPurgeCmd, customerDeleteAllCmd)
	rootCmd.AddCommand(customerCmd)
}
