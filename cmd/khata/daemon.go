package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/khata/internal/daemon"
	"github.com/mschirtzinger/khata/internal/dashboard"
	ksync "github.com/mschirtzinger/khata/internal/sync"
	"github.com/mschirtzinger/khata/internal/ui"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Keep the ledger in sync in the foreground",
	Long: `Run the sync scheduler until interrupted.

The daemon saves:
  1. Shortly after changes made by other khata commands (cache watcher)
  2. Every sync.interval (default 5m)
  3. Just after midnight, if nothing was saved today
  4. When the network comes back
  5. On SIGUSR1 (send it when a UI comes to the foreground)

With --dashboard a WebSocket status feed is served at ws://HOST:PORT/ws.`,
	Run: func(cmd *cobra.Command, args []string) {
		withDashboard, _ := cmd.Flags().GetBool("dashboard")
		port := cfg.Dashboard.Port
		if cmd.Flags().Changed("dashboard-port") {
			port, _ = cmd.Flags().GetInt("dashboard-port")
			withDashboard = true
		}

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		a, err := openApp(ctx)
		if err != nil {
			fatalf("%v", err)
		}
		defer a.Close()

		var handler *dashboard.Handler
		if withDashboard {
			server := dashboard.NewServer(&dashboard.Config{
				Host:   cfg.Dashboard.Host,
				Port:   port,
				Logger: a.logger("dashboard"),
			})
			handler = dashboard.NewHandler(server)
			if err := server.Start(); err != nil {
				fatalf("failed to start dashboard: %v", err)
			}
			defer server.Stop()
			a.engine.OnResult(handler.OnSyncResult)
			fmt.Printf("   Dashboard: ws://%s/ws\n", server.GetAddr())
		}

		lr := a.load(ctx)
		if handler != nil {
			handler.SetLastSaved(a.engine.LastSaved(), a.engine.Pending())
			handler.OnSnapshotLoaded(lr, a.engine.Snapshot())
		}

		var checker daemon.Checker
		if a.monitor != nil {
			checker = a.monitor
		}
		d, err := daemon.NewWithConfig(a.engine, checker, &daemon.Config{
			SyncInterval:     cfg.Sync.Interval,
			DebounceInterval: cfg.Sync.Debounce,
			ProbeInterval:    cfg.Sync.ProbeInterval,
			RolloverDelay:    cfg.Sync.RolloverDelay,
			CachePath:        a.cachePath,
			Logger:           a.logger("daemon"),
			Clock:            time.Now,
		})
		if err != nil {
			fatalf("failed to create daemon: %v", err)
		}
		if handler != nil {
			d.OnConnectivity(handler.OnConnectivity)
		}
		daemon.NotifyForeground(ctx, d)

		fmt.Printf("%s Starting khata sync daemon...\n", ui.RenderAccent("🚀"))
		fmt.Printf("   Loaded from: %s\n", lr.Source)
		if a.cachePath != "" {
			fmt.Printf("   Cache: %s\n", a.cachePath)
		}
		fmt.Printf("   Interval: %v\n", cfg.Sync.Interval)
		fmt.Printf("\nPress Ctrl+C to stop\n\n")

		if err := d.Start(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Daemon stopped with error: %v\n", err)
		}

		// Flush anything the last debounce window did not reach.
		if a.engine.Pending() {
			flushCtx, flushCancel := context.WithTimeout(context.Background(), cfg.Sync.SaveTimeout)
			defer flushCancel()
			fmt.Println(ui.Outcome(a.engine.Save(flushCtx, ksync.Auto)))
		}
	},
}

func init() {
	daemonCmd.Flags().Bool("dashboard", false, "Serve the WebSocket status dashboard")
	daemonCmd.Flags().Int("dashboard-port", 8080, "Dashboard port (implies --dashboard)")

	rootCmd.AddCommand(daemonCmd)
}
