//go:build !unix

package daemon

import "context"

// NotifyForeground is a no-op on platforms without SIGUSR1.
func NotifyForeground(ctx context.Context, d *Daemon) {}
