package sync

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/mschirtzinger/khata/internal/auth"
	"github.com/mschirtzinger/khata/internal/cache"
	"github.com/mschirtzinger/khata/internal/remote"
	"github.com/mschirtzinger/khata/internal/schema"
)

// Load installs the starting snapshot: remote, else cache, else empty.
// It must run before the first Save. Load reads the remote outside the
// flight queue: it waits for running flights to finish first, and callers
// must not start a Save until it returns.
//
// An empty snapshot is pushed only when the remote was reached and holds
// no usable document. A failed read never overwrites the remote copy.
func (e *Engine) Load(ctx context.Context) LoadResult {
	e.Wait()

	pending, err := cache.Has(ctx, e.cache, cache.KeyPending)
	if err != nil {
		e.logger.Printf("WARNING: failed to read pending flag: %v", err)
	}
	e.pending.Store(pending)
	e.loadLastSaved(ctx)

	local, localRaw := e.readLocal(ctx)
	remoteSnap, remoteRaw, remoteErr := e.pull(ctx)

	res := LoadResult{RemoteErr: remoteErr, Outcome: loadOutcome(remoteErr)}
	var snap *schema.Snapshot
	push := false

	switch {
	case pending && local != nil && !(isEmpty(local) && remoteSnap != nil && !isEmpty(remoteSnap)):
		e.logger.Printf("Local changes not yet synced, keeping local copy")
		snap, res.Source = local, SourceCache
		e.rememberWritten(localRaw)
		push = true
	case remoteSnap != nil:
		snap, res.Source = remoteSnap, SourceRemote
		if err := e.writeLocal(ctx, remoteRaw); err != nil {
			e.logger.Printf("WARNING: failed to cache remote copy: %v", err)
		}
		if pending {
			e.clearPending(ctx)
		}
	case local != nil:
		snap, res.Source = local, SourceCache
		e.rememberWritten(localRaw)
	default:
		snap, res.Source = schema.NewEmptySnapshot(e.now()), SourceEmpty
		push = schema.IsDecodeError(remoteErr)
	}

	if snap.Name() == "" {
		name, err := cache.GetString(ctx, e.cache, cache.KeyStoreName)
		if err == nil && name != "" {
			snap.SetName(name)
		} else {
			res.NeedsStoreName = true
		}
	} else if err := e.cache.Put(ctx, cache.KeyStoreName, []byte(snap.Name())); err != nil {
		e.logger.Printf("WARNING: failed to cache store name: %v", err)
	}

	e.mu.Lock()
	e.snap = snap
	e.mu.Unlock()

	e.logger.Printf("Loaded %d customers from %s", len(snap.Customers), res.Source)

	if push {
		r := e.Save(ctx, Auto)
		res.Pushed = &r
		res.Outcome = r.Outcome
	}
	return res
}

func loadOutcome(err error) Outcome {
	switch {
	case err == nil:
		return Success
	case errors.Is(err, ErrOffline):
		return LocalOnly
	case errors.Is(err, auth.ErrAuthRequired) || remote.IsAuth(err):
		return AuthRequired
	default:
		return RemoteUnavailable
	}
}

func isEmpty(s *schema.Snapshot) bool {
	return len(s.Customers) == 0 && len(s.Transactions) == 0 &&
		len(s.DeletedCustomers) == 0 && len(s.DeletedTransactions) == 0
}

// pull reads the remote document within the load timeout. An undecodable
// document is reported as an error and treated as absent.
func (e *Engine) pull(ctx context.Context) (*schema.Snapshot, []byte, error) {
	if !e.net.Online() {
		return nil, nil, ErrOffline
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.LoadTimeout)
	defer cancel()

	snap, raw, err := e.fetch(ctx)
	if err != nil {
		e.setState(StateFailed)
		e.logger.Printf("Remote load failed: %v", err)
		return nil, nil, err
	}
	e.setState(StateIdle)
	return snap, raw, nil
}

func (e *Engine) fetch(ctx context.Context) (*schema.Snapshot, []byte, error) {
	e.setState(StateAuthenticating)
	authCtx, cancel := context.WithTimeout(ctx, e.cfg.AuthTimeout)
	cred, err := e.creds.Credential(authCtx)
	cancel()
	if err != nil {
		return nil, nil, err
	}

	e.setState(StateResolving)
	id, err := e.resolver.MainDocument(ctx, cred)
	if err != nil {
		return nil, nil, err
	}

	e.setState(StatePulling)
	raw, err := e.store.Content(ctx, cred, id)
	if remote.IsNotFound(err) {
		e.resolver.Invalidate()
		e.setState(StateResolving)
		if id, err = e.resolver.MainDocument(ctx, cred); err != nil {
			return nil, nil, err
		}
		e.setState(StatePulling)
		raw, err = e.store.Content(ctx, cred, id)
	}
	if err != nil {
		return nil, nil, err
	}

	snap, err := schema.Decode(raw)
	if err != nil {
		return nil, nil, err
	}
	return snap, raw, nil
}

// readLocal returns the cached snapshot, or nil when absent or unreadable.
func (e *Engine) readLocal(ctx context.Context) (*schema.Snapshot, []byte) {
	raw, err := e.cache.Get(ctx, cache.KeySnapshot)
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			e.logger.Printf("WARNING: failed to read local snapshot: %v", err)
		}
		return nil, nil
	}
	snap, err := schema.Decode(raw)
	if err != nil {
		e.logger.Printf("WARNING: ignoring unreadable local snapshot: %v", err)
		return nil, nil
	}
	return snap, raw
}

func (e *Engine) rememberWritten(raw []byte) {
	e.mu.Lock()
	e.lastWritten = raw
	e.mu.Unlock()
}

func (e *Engine) loadLastSaved(ctx context.Context) {
	v, err := cache.GetString(ctx, e.cache, cache.KeyLastSaved)
	if err != nil {
		return
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return
	}
	e.mu.Lock()
	e.lastSaved = t
	e.mu.Unlock()
}

// AdoptLocal replaces the live snapshot with the cached one when another
// process wrote a newer copy. It returns true when it adopted one; the
// caller should then save so the remote catches up.
func (e *Engine) AdoptLocal(ctx context.Context) (bool, error) {
	raw, err := e.cache.Get(ctx, cache.KeySnapshot)
	if errors.Is(err, cache.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	e.mu.Lock()
	own := bytes.Equal(raw, e.lastWritten)
	e.mu.Unlock()
	if own {
		return false, nil
	}

	snap, err := schema.Decode(raw)
	if err != nil {
		return false, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.snap != nil && !snap.LastUpdated.After(e.snap.LastUpdated) {
		return false, nil
	}
	if snap.Name() == "" && e.snap != nil {
		snap.StoreName = e.snap.StoreName
	}
	e.snap = snap
	e.lastWritten = raw
	e.logger.Printf("Adopted snapshot written by another process (%s)", snap.LastUpdated.Format(time.RFC3339))
	return true, nil
}
