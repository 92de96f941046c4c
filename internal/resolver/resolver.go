// Package resolver finds or creates the app folder, the main ledger
// document and the daily summary files in the remote store, and remembers
// their ids for the life of the process.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/mschirtzinger/khata/internal/auth"
	"github.com/mschirtzinger/khata/internal/remote"
	"github.com/mschirtzinger/khata/internal/schema"
)

// Defaults for Config.
const (
	DefaultFolderName   = "KhataApp"
	DefaultDocumentName = "KB_MAIN_DATA.json"
)

// maxAttempts bounds each resolution. A NotFound on the second attempt
// is reported rather than retried.
const maxAttempts = 2

// ErrResolutionFailed matches every *Error.
var ErrResolutionFailed = errors.New("document resolution failed")

// Error reports a failed resolution. The cause stays reachable through
// errors.Is, so remote.IsAuth and remote.IsNotFound work on it.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("resolve %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is makes every *Error match ErrResolutionFailed.
func (e *Error) Is(target error) bool {
	return target == ErrResolutionFailed
}

// Config names the remote objects.
type Config struct {
	FolderName   string
	DocumentName string
	Logger       *log.Logger
	Clock        func() time.Time
}

// Resolver is safe for concurrent use; resolutions are serialized.
type Resolver struct {
	store  remote.BlobStore
	folder string
	doc    string
	logger *log.Logger
	now    func() time.Time

	mu        sync.Mutex
	folderID  string
	docID     string
	summaries map[string]string
}

// New creates a Resolver over store.
func New(store remote.BlobStore, cfg Config) *Resolver {
	if cfg.FolderName == "" {
		cfg.FolderName = DefaultFolderName
	}
	if cfg.DocumentName == "" {
		cfg.DocumentName = DefaultDocumentName
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[resolver] ", log.LstdFlags)
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Resolver{
		store:     store,
		folder:    cfg.FolderName,
		doc:       cfg.DocumentName,
		logger:    cfg.Logger,
		now:       cfg.Clock,
		summaries: make(map[string]string),
	}
}

// Folder returns the app folder id, creating the folder if needed.
func (r *Resolver) Folder(ctx context.Context, cred auth.Credential) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, err := r.folderLocked(ctx, cred)
	if err != nil {
		return "", &Error{Op: "folder " + r.folder, Err: err}
	}
	return id, nil
}

// MainDocument returns the id of the main ledger document, creating it
// with an empty snapshot if no reachable copy exists.
func (r *Resolver) MainDocument(ctx context.Context, cred auth.Credential) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.docID != "" {
		return r.docID, nil
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		id, err := r.resolveDocument(ctx, cred)
		if err == nil {
			r.docID = id
			return id, nil
		}
		lastErr = err
		if !remote.IsNotFound(err) {
			break
		}
		r.logger.Printf("Folder %s vanished during resolution (attempt %d/%d)", r.folder, attempt, maxAttempts)
		r.folderID = ""
	}
	return "", &Error{Op: "document " + r.doc, Err: lastErr}
}

// SummaryDocument writes content to the summary file called name,
// creating it in the app folder if needed, and returns its id.
func (r *Resolver) SummaryDocument(ctx context.Context, cred auth.Credential, name string, content []byte) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		id, err := r.writeSummary(ctx, cred, name, content)
		if err == nil {
			return id, nil
		}
		lastErr = err
		if !remote.IsNotFound(err) {
			break
		}
		delete(r.summaries, name)
		r.folderID = ""
	}
	return "", &Error{Op: "summary " + name, Err: lastErr}
}

// Invalidate forgets every cached id.
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.folderID = ""
	r.docID = ""
	r.summaries = make(map[string]string)
}

// Cached returns the ids resolved so far. Empty strings mean unresolved.
func (r *Resolver) Cached() (folderID, docID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.folderID, r.docID
}

func (r *Resolver) folderLocked(ctx context.Context, cred auth.Credential) (string, error) {
	if r.folderID != "" {
		return r.folderID, nil
	}

	found, err := r.store.Search(ctx, cred, remote.Query{Name: r.folder, MimeType: remote.FolderMimeType})
	if err != nil {
		return "", err
	}
	if len(found) > 0 {
		r.folderID = found[0].ID
		return r.folderID, nil
	}

	id, err := r.store.Create(ctx, cred, remote.BlobMeta{Name: r.folder, MimeType: remote.FolderMimeType}, nil)
	if err != nil {
		return "", err
	}
	r.logger.Printf("Created folder %s", r.folder)
	r.folderID = id
	return id, nil
}

func (r *Resolver) resolveDocument(ctx context.Context, cred auth.Credential) (string, error) {
	folder, err := r.folderLocked(ctx, cred)
	if err != nil {
		return "", err
	}

	found, err := r.store.Search(ctx, cred, remote.Query{Name: r.doc, Parent: folder})
	if err != nil {
		return "", err
	}
	for _, m := range found {
		_, err := r.store.Meta(ctx, cred, m.ID)
		if err == nil {
			return m.ID, nil
		}
		if !remote.IsNotFound(err) {
			return "", err
		}
		r.logger.Printf("Listed document %s is not reachable, skipping", m.ID)
	}

	now := r.now()
	content, err := schema.Encode(schema.NewEmptySnapshot(now), now)
	if err != nil {
		return "", fmt.Errorf("failed to encode empty snapshot: %w", err)
	}
	id, err := r.store.Create(ctx, cred, remote.BlobMeta{
		Name:     r.doc,
		MimeType: remote.JSONMimeType,
		Parents:  []string{folder},
	}, content)
	if err != nil {
		return "", err
	}
	r.logger.Printf("Created document %s", r.doc)
	return id, nil
}

func (r *Resolver) writeSummary(ctx context.Context, cred auth.Credential, name string, content []byte) (string, error) {
	if id, ok := r.summaries[name]; ok {
		if err := r.store.Replace(ctx, cred, id, content, remote.CSVMimeType); err != nil {
			return "", err
		}
		return id, nil
	}

	folder, err := r.folderLocked(ctx, cred)
	if err != nil {
		return "", err
	}

	found, err := r.store.Search(ctx, cred, remote.Query{Name: name, Parent: folder})
	if err != nil {
		return "", err
	}
	if len(found) > 0 {
		id := found[0].ID
		if err := r.store.Replace(ctx, cred, id, content, remote.CSVMimeType); err != nil {
			return "", err
		}
		r.summaries[name] = id
		return id, nil
	}

	id, err := r.store.Create(ctx, cred, remote.BlobMeta{
		Name:     name,
		MimeType: remote.CSVMimeType,
		Parents:  []string{folder},
	}, content)
	if err != nil {
		return "", err
	}
	r.summaries[name] = id
	return id, nil
}
