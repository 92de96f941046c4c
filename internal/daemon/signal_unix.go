//go:build unix

package daemon

import (
	"context"
	"os"
	"os/signal"

	"golang.org/x/sys/unix"
)

// NotifyForeground calls d.Foreground whenever the process receives
// SIGUSR1, until ctx is done.
func NotifyForeground(ctx context.Context, d *Daemon) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, unix.SIGUSR1)

	go func() {
		defer signal.Stop(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ch:
				d.config.Logger.Println("Foreground signal received")
				d.Foreground()
			}
		}
	}()
}
