// Package remote defines the blob backend the ledger document lives in.
//
// The backend is modeled as a minimal named-file store: find by name inside
// a folder, create with content, replace full content, read content, read
// metadata. Every call carries the caller's bearer credential. There are no
// transactions; the last replace wins.
package remote

import (
	"context"
	"errors"
	"time"

	"github.com/mschirtzinger/khata/internal/auth"
)

// MIME types used by the ledger.
const (
	FolderMimeType = "application/vnd.google-apps.folder"
	JSONMimeType   = "application/json"
	CSVMimeType    = "text/csv"
)

var (
	// ErrNotFound is returned when the addressed blob or parent does not
	// exist (or is trashed).
	ErrNotFound = errors.New("remote blob not found")

	// ErrUnauthorized is returned when the backend rejects the credential.
	ErrUnauthorized = errors.New("remote rejected credential")

	// ErrUnavailable is returned for network failures and any other
	// backend error. A later attempt may succeed.
	ErrUnavailable = errors.New("remote store unavailable")
)

// IsNotFound reports whether err means the blob vanished.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAuth reports whether err means the credential must be renewed.
func IsAuth(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, auth.ErrAuthRequired)
}

// BlobMeta describes a stored blob.
type BlobMeta struct {
	ID           string
	Name         string
	MimeType     string
	Parents      []string
	ModifiedTime time.Time
}

// Query selects blobs by exact name, parent folder and MIME type. Empty
// fields do not filter. Trashed blobs never match.
type Query struct {
	Name     string
	Parent   string
	MimeType string
}

// BlobStore is the remote backend.
type BlobStore interface {
	Search(ctx context.Context, cred auth.Credential, q Query) ([]BlobMeta, error)
	Create(ctx context.Context, cred auth.Credential, meta BlobMeta, content []byte) (string, error)
	Replace(ctx context.Context, cred auth.Credential, id string, content []byte, mimeType string) error
	Content(ctx context.Context, cred auth.Credential, id string) ([]byte, error)
	Meta(ctx context.Context, cred auth.Credential, id string) (BlobMeta, error)
}
