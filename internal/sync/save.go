package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mschirtzinger/khata/internal/auth"
	"github.com/mschirtzinger/khata/internal/cache"
	"github.com/mschirtzinger/khata/internal/remote"
	"github.com/mschirtzinger/khata/internal/schema"
)

// save runs one flight. It never uses the caller's context: a caller that
// stops waiting must not abort a half-written remote exchange.
func (e *Engine) save(trigger Trigger) Result {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.SaveTimeout)
	defer cancel()

	if e.State() == StateFailed {
		e.setState(StateIdle)
	}

	res := Result{Trigger: trigger}
	finish := func(o Outcome) Result {
		res.Outcome = o
		res.Pending = e.Pending()
		res.CompletedAt = e.now()
		if o.IsFailure() {
			e.setState(StateFailed)
		} else {
			e.setState(StateIdle)
		}
		return res
	}

	base, snap := e.capture()
	if snap == nil {
		res.LocalErr = ErrNotLoaded
		return finish(Failed)
	}

	now := e.now()
	payload, err := schema.Encode(snap, now)
	if err != nil {
		res.LocalErr = err
		return finish(Failed)
	}
	res.LastUpdated = now.UTC()

	if err := e.writeLocal(ctx, payload); err != nil {
		e.logger.Printf("WARNING: local save failed: %v", err)
		res.LocalErr = err
	}
	localOK := res.LocalErr == nil

	if !e.net.Online() {
		e.markPending(ctx)
		res.RemoteErr = ErrOffline
		if !localOK {
			return finish(Failed)
		}
		e.logger.Printf("Offline, saved locally (%s)", trigger)
		return finish(LocalOnly)
	}

	e.setState(StateAuthenticating)
	authCtx, authCancel := context.WithTimeout(ctx, e.cfg.AuthTimeout)
	cred, err := e.creds.Credential(authCtx)
	authCancel()
	if err != nil {
		e.markPending(ctx)
		res.RemoteErr = err
		e.logger.Printf("Remote save skipped, no credential: %v", err)
		return finish(remoteFailure(localOK, err))
	}

	if err := e.push(ctx, cred, payload); err != nil {
		e.markPending(ctx)
		res.RemoteErr = err
		e.logger.Printf("Remote save failed (%s): %v", trigger, err)
		return finish(remoteFailure(localOK, err))
	}

	e.clearPending(ctx)
	e.recordSaved(ctx, base, now)
	e.logger.Printf("Saved %d customers, %d transactions (%s)", len(snap.Customers), len(snap.Transactions), trigger)

	if !e.cfg.DisableSummary {
		if err := e.uploadSummary(ctx, cred, snap, now); err != nil {
			e.logger.Printf("WARNING: daily summary upload failed: %v", err)
			res.SummaryErr = err
		}
	}
	return finish(Success)
}

func remoteFailure(localOK bool, err error) Outcome {
	switch {
	case !localOK:
		return Failed
	case errors.Is(err, auth.ErrAuthRequired) || remote.IsAuth(err):
		return AuthRequired
	default:
		return RemoteUnavailable
	}
}

// capture returns the live snapshot pointer and a copy to encode.
func (e *Engine) capture() (*schema.Snapshot, *schema.Snapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.snap == nil {
		return nil, nil
	}
	return e.snap, e.snap.Clone()
}

// push replaces the main document, re-resolving once if it vanished.
func (e *Engine) push(ctx context.Context, cred auth.Credential, payload []byte) error {
	e.setState(StateResolving)
	id, err := e.resolver.MainDocument(ctx, cred)
	if err != nil {
		return err
	}

	e.setState(StatePushing)
	err = e.store.Replace(ctx, cred, id, payload, remote.JSONMimeType)
	if !remote.IsNotFound(err) {
		return err
	}

	e.logger.Printf("Document %s vanished, re-resolving", id)
	e.resolver.Invalidate()
	e.setState(StateResolving)
	id, err = e.resolver.MainDocument(ctx, cred)
	if err != nil {
		return err
	}
	e.setState(StatePushing)
	return e.store.Replace(ctx, cred, id, payload, remote.JSONMimeType)
}

func (e *Engine) uploadSummary(ctx context.Context, cred auth.Credential, snap *schema.Snapshot, now time.Time) error {
	content, err := schema.DailySummaryCSV(snap, snap.Name(), now)
	if err != nil {
		return err
	}
	_, err = e.resolver.SummaryDocument(ctx, cred, schema.SummaryFileName(e.cfg.SummaryPrefix, now), content)
	return err
}

func (e *Engine) writeLocal(ctx context.Context, payload []byte) error {
	if err := e.cache.Put(ctx, cache.KeySnapshot, payload); err != nil {
		return fmt.Errorf("failed to write local snapshot: %w", err)
	}
	e.mu.Lock()
	e.lastWritten = payload
	e.mu.Unlock()
	return nil
}

func (e *Engine) markPending(ctx context.Context) {
	e.pending.Store(true)
	if err := e.cache.Put(ctx, cache.KeyPending, []byte("1")); err != nil {
		e.logger.Printf("WARNING: failed to record pending sync: %v", err)
	}
}

func (e *Engine) clearPending(ctx context.Context) {
	e.pending.Store(false)
	if err := e.cache.Delete(ctx, cache.KeyPending); err != nil {
		e.logger.Printf("WARNING: failed to clear pending sync: %v", err)
	}
}

// recordSaved stamps the save time. The live snapshot's lastUpdated only
// moves if no mutation replaced it while the flight ran.
func (e *Engine) recordSaved(ctx context.Context, base *schema.Snapshot, now time.Time) {
	e.mu.Lock()
	e.lastSaved = now
	if e.snap == base {
		e.snap.LastUpdated = now.UTC()
	}
	e.mu.Unlock()

	if err := e.cache.Put(ctx, cache.KeyLastSaved, []byte(now.UTC().Format(time.RFC3339))); err != nil {
		e.logger.Printf("WARNING: failed to record save time: %v", err)
	}
}
