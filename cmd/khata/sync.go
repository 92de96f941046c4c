package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/khata/internal/cache"
	"github.com/mschirtzinger/khata/internal/schema"
	ksync "github.com/mschirtzinger/khata/internal/sync"
	"github.com/mschirtzinger/khata/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Save the ledger to Google Drive now",
	Long: `Load the ledger (Drive first, then the local cache) and save it back.

This is a manual save: if it cannot reach Drive the failure is reported and
the command exits non-zero. The ledger stays saved on this device.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, lr := mustOpen(ctx)
		defer a.Close()

		fmt.Printf("%s Loaded ledger from %s\n", ui.RenderAccent("↓"), lr.Source)

		start := time.Now()
		res := a.engine.Save(ctx, ksync.Manual)
		fmt.Println(ui.Outcome(res))
		if res.SummaryErr != nil {
			fmt.Printf("   %s\n", ui.RenderMuted("Daily summary not written: "+res.SummaryErr.Error()))
		}
		fmt.Printf("   %s\n", ui.RenderMuted(fmt.Sprintf("took %v", time.Since(start).Round(time.Millisecond))))

		if res.Outcome.IsFailure() {
			a.Close()
			fatalf("sync failed: %s", res.Outcome)
		}
	},
}

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show sync status without contacting Drive",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			fatalf("%v", err)
		}
		defer a.Close()

		storeName, _ := cache.GetString(ctx, a.cache, cache.KeyStoreName)
		pending, _ := cache.Has(ctx, a.cache, cache.KeyPending)
		lastSavedRaw, _ := cache.GetString(ctx, a.cache, cache.KeyLastSaved)
		lastSaved, _ := time.Parse(time.RFC3339, lastSavedRaw)

		fmt.Printf("\n%s Khata Status\n\n", ui.RenderAccent("📒"))
		if storeName == "" {
			storeName = ui.RenderMuted("(not set)")
		}
		fmt.Printf("Store: %s\n", storeName)

		if raw, err := a.cache.Get(ctx, cache.KeySnapshot); err == nil {
			if snap, err := schema.Decode(raw); err == nil {
				fmt.Printf("Customers: %d (%d in trash)\n", len(snap.Customers), len(snap.DeletedCustomers))
				fmt.Printf("Transactions: %d (%d in trash)\n", len(snap.Transactions), len(snap.DeletedTransactions))
			} else {
				fmt.Printf("Local copy: %s\n", ui.RenderFail("unreadable"))
			}
		} else {
			fmt.Printf("Local copy: %s\n", ui.RenderMuted("none yet"))
		}

		switch {
		case a.provider == nil:
			fmt.Printf("Account: %s\n", ui.RenderMuted("local (memory backend)"))
		default:
			if cred, ok := a.provider.Cached(ctx); ok {
				fmt.Printf("Account: %s\n", cred.Account)
			} else {
				fmt.Printf("Account: %s\n", ui.RenderWarn("signed out"))
			}
		}

		if a.monitor != nil {
			if a.monitor.Online() {
				fmt.Printf("Network: %s\n", ui.RenderPass("online"))
			} else {
				fmt.Printf("Network: %s\n", ui.RenderWarn("offline"))
			}
		}

		fmt.Printf("Last saved to Drive: %s\n", ui.Since(lastSaved, time.Now()))
		if pending {
			fmt.Printf("Pending: %s\n", ui.RenderWarn("changes not yet on Drive"))
		} else {
			fmt.Printf("Pending: %s\n", ui.RenderPass("none"))
		}
		if a.cachePath != "" {
			fmt.Printf("Cache: %s\n", a.cachePath)
		}
		fmt.Println()
	},
}

var storeNameCmd = &cobra.Command{
	Use:     "store-name [name]",
	GroupID: "ledger",
	Short:   "Show or set the store name",
	Args:    cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, _ := mustOpen(ctx)
		defer a.Close()

		if len(args) == 0 {
			name := a.engine.Snapshot().Name()
			if name == "" {
				fmt.Println(ui.RenderMuted("(not set)"))
				return
			}
			fmt.Println(name)
			return
		}

		if err := a.engine.SetStoreName(ctx, args[0]); err != nil {
			a.Close()
			fatalf("%v", err)
		}
		fmt.Println(ui.Outcome(a.engine.Save(ctx, ksync.Manual)))
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(storeNameCmd)
}
