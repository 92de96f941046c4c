// Package sync keeps the in-memory ledger snapshot, the local cache and
// the remote document in step.
//
// # Saving
//
// Every save writes the local cache first and then replaces the remote
// document with the full snapshot. Saves are single-flight: at most one
// remote exchange runs at a time, and callers that arrive while one is
// running share a single queued flight. The queued flight encodes the
// snapshot as it is when the flight starts, so the last write always
// carries the newest state.
//
//	res := engine.Save(ctx, sync.Manual)
//	switch res.Outcome {
//	case sync.Success, sync.LocalOnly:
//	    // durable
//	case sync.AuthRequired:
//	    // prompt for sign-in
//	}
//
// When the network is down a save only touches the cache and leaves the
// pending flag set; the next save after connectivity returns pushes the
// local copy. After the JSON document is stored the day's CSV summary is
// uploaded. A summary failure is reported in Result.SummaryErr and never
// turns a successful save into a failed one.
//
// # Loading
//
// Load prefers the remote copy, then the cache, then an empty snapshot
// which is pushed immediately. A cached snapshot with the pending flag set
// wins over the remote copy, because it holds edits the remote never saw.
//
// # Mutations
//
// Mutate applies a function to a clone of the snapshot and swaps the clone
// in only when the function succeeds, then fires the mutation hook the
// scheduler uses for debounced saves.
package sync
