package sync

import (
	"errors"
	"time"
)

// ErrOffline is reported when a remote exchange was skipped because the
// network is down.
var ErrOffline = errors.New("offline")

// ErrNotLoaded is returned by Mutate and View before Load has run.
var ErrNotLoaded = errors.New("ledger not loaded")

// Outcome classifies a save or load.
type Outcome int

const (
	// Unknown means the caller stopped waiting before the flight finished.
	// The flight itself still runs to completion.
	Unknown Outcome = iota
	// Success means the remote document holds the snapshot.
	Success
	// LocalOnly means the snapshot is in the local cache only, because
	// the network is down.
	LocalOnly
	// AuthRequired means the snapshot is cached locally but the remote
	// needs interactive sign-in.
	AuthRequired
	// RemoteUnavailable means the snapshot is cached locally but the
	// remote exchange failed.
	RemoteUnavailable
	// Failed means nothing durable was written.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case LocalOnly:
		return "local-only"
	case AuthRequired:
		return "auth-required"
	case RemoteUnavailable:
		return "remote-unavailable"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsFailure reports whether the remote copy is behind for a reason the
// user should hear about. LocalOnly is expected while offline and is not
// a failure.
func (o Outcome) IsFailure() bool {
	return o == AuthRequired || o == RemoteUnavailable || o == Failed
}

// Trigger says why a save started. When flights merge the strongest
// trigger wins: Manual over Auto over Scheduled.
type Trigger int

const (
	// Scheduled covers the interval timer and the day rollover.
	Scheduled Trigger = iota
	// Auto covers mutations, connectivity restore and foregrounding.
	Auto
	// Manual is an explicit user request.
	Manual
)

func (t Trigger) String() string {
	switch t {
	case Manual:
		return "manual"
	case Auto:
		return "auto"
	default:
		return "scheduled"
	}
}

// Result describes one save.
type Result struct {
	Outcome Outcome
	Trigger Trigger

	// Pending is true when the remote copy is behind the local cache.
	Pending bool

	LocalErr   error
	RemoteErr  error
	SummaryErr error

	CompletedAt time.Time
	LastUpdated time.Time
}

// Err returns the error that decided the outcome, if any.
func (r Result) Err() error {
	if r.RemoteErr != nil {
		return r.RemoteErr
	}
	return r.LocalErr
}

// Message is a one-line description for the user.
func (r Result) Message() string {
	switch r.Outcome {
	case Success:
		return "Saved to Google Drive"
	case LocalOnly:
		return "Saved on this device; will sync when online"
	case AuthRequired:
		return "Saved on this device; sign in again to sync"
	case RemoteUnavailable:
		return "Saved on this device; Google Drive is unavailable"
	case Failed:
		return "Save failed"
	default:
		return "Save still in progress"
	}
}

// Source says where Load found the snapshot.
type Source int

const (
	SourceEmpty Source = iota
	SourceRemote
	SourceCache
)

func (s Source) String() string {
	switch s {
	case SourceRemote:
		return "remote"
	case SourceCache:
		return "cache"
	default:
		return "empty"
	}
}

// LoadResult describes a Load.
type LoadResult struct {
	Source Source

	// Outcome reflects the remote side: Success when the remote was read
	// (or pushed), otherwise why it could not be.
	Outcome   Outcome
	RemoteErr error

	// NeedsStoreName is set when neither the snapshot nor the cache knows
	// the store name.
	NeedsStoreName bool

	// Pushed is set when Load saved the snapshot back (empty or pending).
	Pushed *Result
}

// State is the engine's position in the remote exchange.
type State int32

const (
	StateIdle State = iota
	StateAuthenticating
	StateResolving
	StatePulling
	StatePushing
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateAuthenticating:
		return "authenticating"
	case StateResolving:
		return "resolving"
	case StatePulling:
		return "pulling"
	case StatePushing:
		return "pushing"
	case StateFailed:
		return "failed"
	default:
		return "idle"
	}
}
