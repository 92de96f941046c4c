// Package drive implements remote.BlobStore on the Google Drive v3 API.
//
// The store holds no credential of its own: each call builds a client
// around the bearer token it is handed, so a renewed token takes effect on
// the very next request.
package drive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mschirtzinger/khata/internal/auth"
	"github.com/mschirtzinger/khata/internal/remote"
	"golang.org/x/oauth2"
	drivev3 "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const metaFields = "id, name, mimeType, parents, modifiedTime, trashed"

// Store talks to Drive.
type Store struct {
	endpoint   string
	httpClient *http.Client
	logger     *log.Logger
}

var _ remote.BlobStore = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithEndpoint points the store at a different API base URL, such as
// "http://127.0.0.1:8080/drive/v3/".
func WithEndpoint(endpoint string) Option {
	return func(s *Store) { s.endpoint = endpoint }
}

// WithHTTPClient sets the base client the bearer transport wraps.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Store) { s.httpClient = c }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New creates a Store.
func New(opts ...Option) *Store {
	s := &Store{}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.New(os.Stderr, "[drive] ", log.LstdFlags)
	}
	return s
}

func (s *Store) service(ctx context.Context, cred auth.Credential) (*drivev3.Service, error) {
	if cred.AccessToken == "" {
		return nil, fmt.Errorf("%w: empty access token", remote.ErrUnauthorized)
	}

	base := ctx
	if s.httpClient != nil {
		base = context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
	}
	opts := []option.ClientOption{
		option.WithHTTPClient(oauth2.NewClient(base, oauth2.StaticTokenSource(cred.Token()))),
	}
	if s.endpoint != "" {
		opts = append(opts, option.WithEndpoint(s.endpoint))
	}

	svc, err := drivev3.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive client: %w", err)
	}
	return svc, nil
}

// Search implements remote.BlobStore.
func (s *Store) Search(ctx context.Context, cred auth.Credential, q remote.Query) ([]remote.BlobMeta, error) {
	svc, err := s.service(ctx, cred)
	if err != nil {
		return nil, err
	}

	var out []remote.BlobMeta
	call := svc.Files.List().
		Q(buildQuery(q)).
		Spaces("drive").
		Fields(googleapi.Field("nextPageToken, files(" + metaFields + ")")).
		PageSize(100)
	err = call.Pages(ctx, func(page *drivev3.FileList) error {
		for _, f := range page.Files {
			out = append(out, toMeta(f))
		}
		return nil
	})
	if err != nil {
		return nil, classify("search "+q.Name, err)
	}
	return out, nil
}

// Create implements remote.BlobStore. Folders are created without media.
func (s *Store) Create(ctx context.Context, cred auth.Credential, meta remote.BlobMeta, content []byte) (string, error) {
	svc, err := s.service(ctx, cred)
	if err != nil {
		return "", err
	}

	call := svc.Files.Create(&drivev3.File{
		Name:     meta.Name,
		MimeType: meta.MimeType,
		Parents:  meta.Parents,
	}).Fields("id").Context(ctx)
	if meta.MimeType != remote.FolderMimeType {
		call = call.Media(bytes.NewReader(content), googleapi.ContentType(meta.MimeType))
	}

	f, err := call.Do()
	if err != nil {
		return "", classify("create "+meta.Name, err)
	}
	s.logger.Printf("Created %s (%s)", meta.Name, f.Id)
	return f.Id, nil
}

// Replace implements remote.BlobStore.
func (s *Store) Replace(ctx context.Context, cred auth.Credential, id string, content []byte, mimeType string) error {
	svc, err := s.service(ctx, cred)
	if err != nil {
		return err
	}

	var mediaOpts []googleapi.MediaOption
	if mimeType != "" {
		mediaOpts = append(mediaOpts, googleapi.ContentType(mimeType))
	}
	_, err = svc.Files.Update(id, &drivev3.File{}).
		Media(bytes.NewReader(content), mediaOpts...).
		Fields("id").
		Context(ctx).
		Do()
	if err != nil {
		return classify("replace "+id, err)
	}
	return nil
}

// Content implements remote.BlobStore.
func (s *Store) Content(ctx context.Context, cred auth.Credential, id string) ([]byte, error) {
	svc, err := s.service(ctx, cred)
	if err != nil {
		return nil, err
	}

	resp, err := svc.Files.Get(id).Context(ctx).Download()
	if err != nil {
		return nil, classify("content "+id, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("content %s: %w: %v", id, remote.ErrUnavailable, err)
	}
	return data, nil
}

// Meta implements remote.BlobStore. Trashed files count as missing.
func (s *Store) Meta(ctx context.Context, cred auth.Credential, id string) (remote.BlobMeta, error) {
	svc, err := s.service(ctx, cred)
	if err != nil {
		return remote.BlobMeta{}, err
	}

	f, err := svc.Files.Get(id).Fields(metaFields).Context(ctx).Do()
	if err != nil {
		return remote.BlobMeta{}, classify("meta "+id, err)
	}
	if f.Trashed {
		return remote.BlobMeta{}, fmt.Errorf("meta %s: %w: trashed", id, remote.ErrNotFound)
	}
	return toMeta(f), nil
}

// buildQuery renders q in the Drive search syntax.
func buildQuery(q remote.Query) string {
	clauses := []string{"trashed = false"}
	if q.Name != "" {
		clauses = append(clauses, fmt.Sprintf("name = '%s'", escape(q.Name)))
	}
	if q.Parent != "" {
		clauses = append(clauses, fmt.Sprintf("'%s' in parents", escape(q.Parent)))
	}
	if q.MimeType != "" {
		clauses = append(clauses, fmt.Sprintf("mimeType = '%s'", escape(q.MimeType)))
	}
	return strings.Join(clauses, " and ")
}

var queryEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

func escape(v string) string {
	return queryEscaper.Replace(v)
}

func toMeta(f *drivev3.File) remote.BlobMeta {
	m := remote.BlobMeta{
		ID:       f.Id,
		Name:     f.Name,
		MimeType: f.MimeType,
		Parents:  f.Parents,
	}
	if t, err := time.Parse(time.RFC3339, f.ModifiedTime); err == nil {
		m.ModifiedTime = t
	}
	return m
}

// classify maps API failures onto the remote sentinel errors.
func classify(op string, err error) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return fmt.Errorf("%s: %w: %v", op, remote.ErrUnavailable, err)
	}

	switch gerr.Code {
	case http.StatusNotFound:
		return fmt.Errorf("%s: %w: %s", op, remote.ErrNotFound, gerr.Message)
	case http.StatusUnauthorized:
		return fmt.Errorf("%s: %w: %s", op, remote.ErrUnauthorized, gerr.Message)
	case http.StatusForbidden:
		if rateLimited(gerr) {
			return fmt.Errorf("%s: %w: %s", op, remote.ErrUnavailable, gerr.Message)
		}
		return fmt.Errorf("%s: %w: %s", op, remote.ErrUnauthorized, gerr.Message)
	}
	return fmt.Errorf("%s: %w: %s", op, remote.ErrUnavailable, gerr.Error())
}

func rateLimited(gerr *googleapi.Error) bool {
	for _, item := range gerr.Errors {
		switch item.Reason {
		case "rateLimitExceeded", "userRateLimitExceeded":
			return true
		}
	}
	return false
}
