package resolver

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/mschirtzinger/khata/internal/auth"
	"github.com/mschirtzinger/khata/internal/remote"
	"github.com/mschirtzinger/khata/internal/remote/memory"
	"github.com/mschirtzinger/khata/internal/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var cred = auth.Credential{AccessToken: "tok"}

func newTestResolver(store remote.BlobStore) *Resolver {
	return New(store, Config{
		Logger: log.New(io.Discard, "", 0),
		Clock:  func() time.Time { return time.Date(2026, 1, 9, 8, 0, 0, 0, time.UTC) },
	})
}

func seedFolderAndDoc(store *memory.Store, content []byte) (folder, doc string) {
	folder = store.Seed(remote.BlobMeta{Name: DefaultFolderName, MimeType: remote.FolderMimeType}, nil)
	doc = store.Seed(remote.BlobMeta{Name: DefaultDocumentName, MimeType: remote.JSONMimeType, Parents: []string{folder}}, content)
	return folder, doc
}

func TestMainDocumentCreatesOnFirstRun(t *testing.T) {
	store := memory.New()
	r := newTestResolver(store)

	id, err := r.MainDocument(context.Background(), cred)
	require.NoError(t, err)

	meta, content, ok := store.Find(DefaultDocumentName)
	require.True(t, ok)
	assert.Equal(t, id, meta.ID)
	assert.Equal(t, remote.JSONMimeType, meta.MimeType)

	folder, _, ok := store.Find(DefaultFolderName)
	require.True(t, ok)
	assert.Equal(t, []string{folder.ID}, meta.Parents)

	snap, err := schema.Decode(content)
	require.NoError(t, err)
	assert.Empty(t, snap.Customers)
	assert.Empty(t, snap.Transactions)
}

func TestMainDocumentReusesExisting(t *testing.T) {
	store := memory.New()
	_, doc := seedFolderAndDoc(store, []byte(`{}`))
	r := newTestResolver(store)

	id, err := r.MainDocument(context.Background(), cred)
	require.NoError(t, err)
	assert.Equal(t, doc, id)
	assert.Zero(t, store.Calls(memory.OpCreate))

	// Cached: no further remote calls.
	searches := store.Calls(memory.OpSearch)
	id, err = r.MainDocument(context.Background(), cred)
	require.NoError(t, err)
	assert.Equal(t, doc, id)
	assert.Equal(t, searches, store.Calls(memory.OpSearch))
}

func TestMainDocumentSkipsUnreachableListing(t *testing.T) {
	store := memory.New()
	_, stale := seedFolderAndDoc(store, []byte(`{}`))
	store.FailNext(memory.OpMeta, remote.ErrNotFound)
	r := newTestResolver(store)

	id, err := r.MainDocument(context.Background(), cred)
	require.NoError(t, err)
	assert.NotEqual(t, stale, id)
	assert.Equal(t, 1, store.Calls(memory.OpCreate))
}

func TestMainDocumentRecoversFromVanishedFolder(t *testing.T) {
	store := memory.New()
	folder := store.Seed(remote.BlobMeta{Name: DefaultFolderName, MimeType: remote.FolderMimeType}, nil)
	r := newTestResolver(store)

	got, err := r.Folder(context.Background(), cred)
	require.NoError(t, err)
	require.Equal(t, folder, got)

	store.Remove(folder)

	id, err := r.MainDocument(context.Background(), cred)
	require.NoError(t, err)

	meta, _, ok := store.Find(DefaultDocumentName)
	require.True(t, ok)
	assert.Equal(t, id, meta.ID)
	newFolder, _ := r.Cached()
	assert.NotEqual(t, folder, newFolder)
	assert.Equal(t, []string{newFolder}, meta.Parents)
}

func TestMainDocumentGivesUpAfterTwoAttempts(t *testing.T) {
	store := memory.New()
	store.Seed(remote.BlobMeta{Name: DefaultFolderName, MimeType: remote.FolderMimeType}, nil)
	store.FailNext(memory.OpCreate, remote.ErrNotFound)
	store.FailNext(memory.OpCreate, remote.ErrNotFound)
	r := newTestResolver(store)

	_, err := r.MainDocument(context.Background(), cred)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrResolutionFailed)
	assert.ErrorIs(t, err, remote.ErrNotFound)
	assert.Equal(t, maxAttempts, store.Calls(memory.OpCreate))
}

func TestMainDocumentAuthFailureIsNotRetried(t *testing.T) {
	store := memory.New()
	store.RequireToken("other")
	r := newTestResolver(store)

	_, err := r.MainDocument(context.Background(), cred)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrResolutionFailed)
	assert.True(t, remote.IsAuth(err))
	assert.Equal(t, 1, store.Calls(memory.OpSearch))

	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	assert.Contains(t, rerr.Op, DefaultDocumentName)
}

func TestInvalidate(t *testing.T) {
	store := memory.New()
	_, doc := seedFolderAndDoc(store, []byte(`{}`))
	r := newTestResolver(store)

	_, err := r.MainDocument(context.Background(), cred)
	require.NoError(t, err)

	r.Invalidate()
	folderID, docID := r.Cached()
	assert.Empty(t, folderID)
	assert.Empty(t, docID)

	searches := store.Calls(memory.OpSearch)
	id, err := r.MainDocument(context.Background(), cred)
	require.NoError(t, err)
	assert.Equal(t, doc, id)
	assert.Greater(t, store.Calls(memory.OpSearch), searches)
}

func TestSummaryDocument(t *testing.T) {
	store := memory.New()
	seedFolderAndDoc(store, []byte(`{}`))
	r := newTestResolver(store)
	ctx := context.Background()

	id, err := r.SummaryDocument(ctx, cred, "KB-09-01-2026.csv", []byte("v1"))
	require.NoError(t, err)

	again, err := r.SummaryDocument(ctx, cred, "KB-09-01-2026.csv", []byte("v2"))
	require.NoError(t, err)
	assert.Equal(t, id, again)

	meta, content, ok := store.Find("KB-09-01-2026.csv")
	require.True(t, ok)
	assert.Equal(t, "v2", string(content))
	assert.Equal(t, remote.CSVMimeType, meta.MimeType)

	// Deleted out of band: recreated on the next write.
	store.Remove(id)
	recreated, err := r.SummaryDocument(ctx, cred, "KB-09-01-2026.csv", []byte("v3"))
	require.NoError(t, err)
	assert.NotEqual(t, id, recreated)
	_, content, ok = store.Find("KB-09-01-2026.csv")
	require.True(t, ok)
	assert.Equal(t, "v3", string(content))
}

func TestSummaryDocumentFindsExistingFile(t *testing.T) {
	store := memory.New()
	folder, _ := seedFolderAndDoc(store, []byte(`{}`))
	existing := store.Seed(remote.BlobMeta{Name: "KB-09-01-2026.csv", MimeType: remote.CSVMimeType, Parents: []string{folder}}, []byte("old"))
	r := newTestResolver(store)

	id, err := r.SummaryDocument(context.Background(), cred, "KB-09-01-2026.csv", []byte("new"))
	require.NoError(t, err)
	assert.Equal(t, existing, id)
	assert.Zero(t, store.Calls(memory.OpCreate))
}
