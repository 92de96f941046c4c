// Package daemon decides when the ledger is saved.
//
// The daemon turns events into sync engine saves:
//
//   - Mutations are queued and saved once they have been quiet for the
//     debounce interval, so a burst of edits costs one remote write.
//   - A periodic ticker saves on the sync interval.
//   - A timer fires shortly after local midnight and saves when the last
//     successful save happened on an earlier day, which refreshes the
//     dated CSV summary.
//   - A connectivity poll saves once when the network comes back.
//   - Foreground (SIGUSR1 from the CLI host) saves immediately.
//   - A file watcher on the local cache adopts snapshots written by other
//     khata processes and pushes them.
//
// Saves go through the engine's single-flight path, so overlapping
// triggers coalesce there rather than here.
//
// Example:
//
//	d, err := daemon.New(engine, monitor)
//	if err != nil {
//	    return err
//	}
//	if err := d.Start(ctx); err != nil {
//	    return err
//	}
package daemon
