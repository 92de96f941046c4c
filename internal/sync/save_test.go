package sync

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mschirtzinger/khata/internal/auth"
	"github.com/mschirtzinger/khata/internal/cache"
	"github.com/mschirtzinger/khata/internal/remote"
	"github.com/mschirtzinger/khata/internal/remote/memory"
	"github.com/mschirtzinger/khata/internal/resolver"
	"github.com/mschirtzinger/khata/internal/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveSuccess(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.engine.Load(ctx)
	require.NoError(t, h.engine.SetStoreName(ctx, "Sharma"))
	addCustomer(t, h.engine, "Asha")

	var observed []Result
	h.engine.OnResult(func(r Result) { observed = append(observed, r) })

	res := h.engine.Save(ctx, Manual)
	require.Equal(t, Success, res.Outcome, "err: %v", res.Err())
	assert.Equal(t, Manual, res.Trigger)
	assert.False(t, res.Pending)
	assert.NoError(t, res.SummaryErr)
	assert.Len(t, observed, 1)

	remoteSnap := h.remoteSnapshot(t)
	assert.Equal(t, []string{"Asha"}, customerNames(remoteSnap))
	assert.True(t, res.LastUpdated.Equal(remoteSnap.LastUpdated))
	assert.Equal(t, []string{"Asha"}, customerNames(h.cachedSnapshot(t)))

	assert.Equal(t, res.LastUpdated, h.engine.LastSaved().UTC())
	saved, err := cache.GetString(ctx, h.cache, cache.KeyLastSaved)
	require.NoError(t, err)
	assert.NotEmpty(t, saved)

	name := schema.SummaryFileName("KB", res.LastUpdated)
	meta, csv, ok := h.store.Find(name)
	require.True(t, ok, "daily summary %s missing", name)
	assert.Equal(t, remote.CSVMimeType, meta.MimeType)
	assert.Contains(t, string(csv), "SHARMA DAILY LEDGER")
	assert.Contains(t, string(csv), "Asha")
	assert.Equal(t, StateIdle, h.engine.State())
}

func TestSaveOfflineThenReconnect(t *testing.T) {
	h := newHarness(t, noSummary)
	ctx := context.Background()
	h.engine.Load(ctx)
	replaces := h.store.Calls(memory.OpReplace)

	h.net.offline.Store(true)
	addCustomer(t, h.engine, "Asha")
	res := h.engine.Save(ctx, Auto)
	assert.Equal(t, LocalOnly, res.Outcome)
	assert.True(t, res.Pending)
	assert.ErrorIs(t, res.RemoteErr, ErrOffline)
	assert.Equal(t, replaces, h.store.Calls(memory.OpReplace), "no network traffic while offline")
	assert.Equal(t, []string{"Asha"}, customerNames(h.cachedSnapshot(t)))
	assert.Empty(t, h.remoteSnapshot(t).Customers)

	h.net.offline.Store(false)
	res = h.engine.Save(ctx, Auto)
	assert.Equal(t, Success, res.Outcome)
	assert.False(t, res.Pending)
	assert.Equal(t, []string{"Asha"}, customerNames(h.remoteSnapshot(t)))
}

func TestSaveAuthRequired(t *testing.T) {
	h := newHarness(t, noSummary)
	ctx := context.Background()
	h.engine.Load(ctx)

	h.creds.fail(fmt.Errorf("%w: refresh rejected", auth.ErrAuthRequired))
	addCustomer(t, h.engine, "Asha")

	res := h.engine.Save(ctx, Manual)
	assert.Equal(t, AuthRequired, res.Outcome)
	assert.True(t, res.Outcome.IsFailure())
	assert.True(t, res.Pending)
	assert.NoError(t, res.LocalErr)
	assert.Equal(t, []string{"Asha"}, customerNames(h.cachedSnapshot(t)))
	assert.Equal(t, StateFailed, h.engine.State())

	// Failed returns to idle on the next flight.
	h.creds.fail(nil)
	res = h.engine.Save(ctx, Manual)
	assert.Equal(t, Success, res.Outcome)
	assert.Equal(t, StateIdle, h.engine.State())
}

func TestSaveRemoteRejectsCredential(t *testing.T) {
	h := newHarness(t, noSummary)
	ctx := context.Background()
	h.engine.Load(ctx)

	h.store.FailNext(memory.OpReplace, remote.ErrUnauthorized)
	res := h.engine.Save(ctx, Manual)
	assert.Equal(t, AuthRequired, res.Outcome)
}

func TestSaveRemoteUnavailable(t *testing.T) {
	h := newHarness(t, noSummary)
	ctx := context.Background()
	h.engine.Load(ctx)

	h.store.FailNext(memory.OpReplace, remote.ErrUnavailable)
	res := h.engine.Save(ctx, Auto)
	assert.Equal(t, RemoteUnavailable, res.Outcome)
	assert.True(t, h.engine.Pending())
}

func TestSaveFailedWhenNothingDurable(t *testing.T) {
	h := newHarness(t, noSummary)
	ctx := context.Background()
	h.engine.Load(ctx)

	e := h.engine
	e.cache = brokenCache{Store: h.cache}
	h.store.FailNext(memory.OpReplace, remote.ErrUnavailable)

	res := e.Save(ctx, Manual)
	assert.Equal(t, Failed, res.Outcome)
	assert.Error(t, res.LocalErr)
	assert.Error(t, res.RemoteErr)
}

type brokenCache struct{ cache.Store }

func (brokenCache) Put(context.Context, string, []byte) error {
	return fmt.Errorf("disk full")
}

func TestSaveReResolvesVanishedDocument(t *testing.T) {
	h := newHarness(t, noSummary)
	ctx := context.Background()
	h.engine.Load(ctx)

	meta, _, ok := h.store.Find(resolver.DefaultDocumentName)
	require.True(t, ok)
	h.store.Remove(meta.ID)

	addCustomer(t, h.engine, "Asha")
	res := h.engine.Save(ctx, Manual)
	require.Equal(t, Success, res.Outcome, "err: %v", res.Err())

	recreated, _, ok := h.store.Find(resolver.DefaultDocumentName)
	require.True(t, ok)
	assert.NotEqual(t, meta.ID, recreated.ID)
	assert.Equal(t, []string{"Asha"}, customerNames(h.remoteSnapshot(t)))
}

func TestSaveSummaryFailureKeepsSuccess(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.engine.Load(ctx)

	// The main document id is cached, so the next search is the summary's.
	h.store.FailNext(memory.OpSearch, remote.ErrUnavailable)
	addCustomer(t, h.engine, "Asha")

	res := h.engine.Save(ctx, Manual)
	assert.Equal(t, Success, res.Outcome)
	assert.Error(t, res.SummaryErr)
	assert.False(t, res.Pending)
	assert.Equal(t, []string{"Asha"}, customerNames(h.remoteSnapshot(t)))
}

func TestSaveAuthTimeoutKeepsLocalCopy(t *testing.T) {
	h := newHarness(t, noSummary, func(c *Config) { c.AuthTimeout = 50 * time.Millisecond })
	ctx := context.Background()
	h.engine.Load(ctx)
	replaces := h.store.Calls(memory.OpReplace)

	h.creds.stall()
	addCustomer(t, h.engine, "Asha")

	start := time.Now()
	res := h.engine.Save(ctx, Manual)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, RemoteUnavailable, res.Outcome)
	assert.ErrorIs(t, res.RemoteErr, context.DeadlineExceeded)
	assert.True(t, res.Pending)
	assert.Equal(t, replaces, h.store.Calls(memory.OpReplace))
	assert.Equal(t, []string{"Asha"}, customerNames(h.cachedSnapshot(t)))
}

func TestSaveSingleFlight(t *testing.T) {
	h := newHarness(t, noSummary)
	ctx := context.Background()
	h.engine.Load(ctx)
	before := h.store.Calls(memory.OpReplace)
	h.store.SetLatency(50 * time.Millisecond)

	const writers = 10
	var wg sync.WaitGroup
	results := make([]Result, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			addCustomer(t, h.engine, fmt.Sprintf("Customer %d", i))
			results[i] = h.engine.Save(ctx, Auto)
		}(i)
	}
	wg.Wait()

	for i, r := range results {
		assert.Equal(t, Success, r.Outcome, "writer %d", i)
	}
	assert.Equal(t, 1, h.store.MaxConcurrentReplaces())
	assert.Less(t, h.store.Calls(memory.OpReplace)-before, writers, "concurrent saves should coalesce")
	assert.Len(t, h.remoteSnapshot(t).Customers, writers, "last write carries every mutation")
}

func TestSaveCallerStopsWaiting(t *testing.T) {
	h := newHarness(t, noSummary)
	h.engine.Load(context.Background())
	h.store.SetLatency(200 * time.Millisecond)
	addCustomer(t, h.engine, "Asha")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	res := h.engine.Save(ctx, Manual)
	assert.Equal(t, Unknown, res.Outcome)

	h.engine.Wait()
	assert.Equal(t, []string{"Asha"}, customerNames(h.remoteSnapshot(t)), "flight finishes without the caller")
}

func TestSaveQueuedFlightKeepsStrongestTrigger(t *testing.T) {
	h := newHarness(t, noSummary)
	h.engine.Load(context.Background())
	h.store.SetLatency(100 * time.Millisecond)
	ctx := context.Background()

	first := make(chan Result, 1)
	go func() { first <- h.engine.Save(ctx, Scheduled) }()
	time.Sleep(20 * time.Millisecond)

	queued := make(chan Result, 1)
	go func() { queued <- h.engine.Save(ctx, Scheduled) }()
	time.Sleep(20 * time.Millisecond)

	manual := h.engine.Save(ctx, Manual)
	assert.Equal(t, Manual, manual.Trigger)
	assert.Equal(t, Manual, (<-queued).Trigger, "queued callers share the merged flight")
	assert.Equal(t, Scheduled, (<-first).Trigger)
}
