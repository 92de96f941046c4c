package sync

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mschirtzinger/khata/internal/auth"
	"github.com/mschirtzinger/khata/internal/cache"
	"github.com/mschirtzinger/khata/internal/ledger"
	"github.com/mschirtzinger/khata/internal/remote"
	"github.com/mschirtzinger/khata/internal/schema"
)

// Credentials hands out a validated credential.
type Credentials interface {
	Credential(ctx context.Context) (auth.Credential, error)
}

// DocumentResolver locates the remote documents.
type DocumentResolver interface {
	MainDocument(ctx context.Context, cred auth.Credential) (string, error)
	SummaryDocument(ctx context.Context, cred auth.Credential, name string, content []byte) (string, error)
	Invalidate()
}

// Connectivity reports the last known network state.
type Connectivity interface {
	Online() bool
}

// Config holds the engine's tunables.
type Config struct {
	LoadTimeout time.Duration
	AuthTimeout time.Duration
	SaveTimeout time.Duration

	// SummaryPrefix names the daily CSV ("KB" gives KB-DD-MM-YYYY.csv).
	SummaryPrefix string
	// DisableSummary skips the CSV upload.
	DisableSummary bool

	// RetentionDays is passed to the ledger.
	RetentionDays int
}

// DefaultConfig returns the standard timeouts.
func DefaultConfig() Config {
	return Config{
		LoadTimeout:   5 * time.Second,
		AuthTimeout:   5 * time.Second,
		SaveTimeout:   30 * time.Second,
		SummaryPrefix: "KB",
		RetentionDays: ledger.DefaultRetentionDays,
	}
}

// Deps are the collaborators of an Engine. Cache, Credentials, Store and
// Resolver are required.
type Deps struct {
	Cache        cache.Store
	Credentials  Credentials
	Store        remote.BlobStore
	Resolver     DocumentResolver
	Connectivity Connectivity
	IDs          schema.IDGenerator
	Logger       *log.Logger
	Clock        func() time.Time
}

// Engine owns the live snapshot. All methods are safe for concurrent use.
type Engine struct {
	cfg      Config
	cache    cache.Store
	creds    Credentials
	store    remote.BlobStore
	resolver DocumentResolver
	net      Connectivity
	ids      schema.IDGenerator
	logger   *log.Logger
	now      func() time.Time

	mu          sync.Mutex
	snap        *schema.Snapshot
	lastWritten []byte
	lastSaved   time.Time
	onMutate    func()
	observers   []func(Result)

	flightMu sync.Mutex
	inflight *flight
	queued   *flight
	drains   sync.WaitGroup

	state   atomic.Int32
	pending atomic.Bool
}

// New creates an Engine. Call Load before anything else.
func New(cfg Config, deps Deps) (*Engine, error) {
	if deps.Cache == nil {
		return nil, fmt.Errorf("cache cannot be nil")
	}
	if deps.Credentials == nil {
		return nil, fmt.Errorf("credentials cannot be nil")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("remote store cannot be nil")
	}
	if deps.Resolver == nil {
		return nil, fmt.Errorf("resolver cannot be nil")
	}

	def := DefaultConfig()
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = def.LoadTimeout
	}
	if cfg.AuthTimeout <= 0 {
		cfg.AuthTimeout = def.AuthTimeout
	}
	if cfg.SaveTimeout <= 0 {
		cfg.SaveTimeout = def.SaveTimeout
	}
	if cfg.SummaryPrefix == "" {
		cfg.SummaryPrefix = def.SummaryPrefix
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = def.RetentionDays
	}

	if deps.Connectivity == nil {
		deps.Connectivity = alwaysOnline{}
	}
	if deps.Logger == nil {
		deps.Logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}

	return &Engine{
		cfg:      cfg,
		cache:    deps.Cache,
		creds:    deps.Credentials,
		store:    deps.Store,
		resolver: deps.Resolver,
		net:      deps.Connectivity,
		ids:      deps.IDs,
		logger:   deps.Logger,
		now:      deps.Clock,
	}, nil
}

type alwaysOnline struct{}

func (alwaysOnline) Online() bool { return true }

// OnMutate registers the function called after every successful Mutate.
// It runs on the mutating goroutine and must not block.
func (e *Engine) OnMutate(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onMutate = fn
}

// OnResult registers an observer for finished saves. Observers run on the
// flight goroutine and must not block or call Save.
func (e *Engine) OnResult(fn func(Result)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observers = append(e.observers, fn)
}

func (e *Engine) notify(res Result) {
	e.mu.Lock()
	observers := append([]func(Result){}, e.observers...)
	e.mu.Unlock()

	for _, fn := range observers {
		fn(res)
	}
}

// State returns where the engine is in the remote exchange.
func (e *Engine) State() State {
	return State(e.state.Load())
}

func (e *Engine) setState(s State) {
	e.state.Store(int32(s))
}

// Pending reports whether the cache holds changes the remote has not seen.
func (e *Engine) Pending() bool {
	return e.pending.Load()
}

// LastSaved returns when the remote document was last replaced, or the
// zero time if never.
func (e *Engine) LastSaved() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSaved
}

// Snapshot returns a copy of the live snapshot, or nil before Load.
func (e *Engine) Snapshot() *schema.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.snap == nil {
		return nil
	}
	return e.snap.Clone()
}

func (e *Engine) ledgerOptions() []ledger.Option {
	opts := []ledger.Option{
		ledger.WithClock(e.now),
		ledger.WithRetention(e.cfg.RetentionDays),
	}
	if e.ids != nil {
		opts = append(opts, ledger.WithIDs(e.ids))
	}
	return opts
}

// Mutate runs fn against a copy of the snapshot. The copy replaces the
// live snapshot only when fn returns nil.
func (e *Engine) Mutate(fn func(*ledger.Ledger) error) error {
	e.mu.Lock()
	if e.snap == nil {
		e.mu.Unlock()
		return ErrNotLoaded
	}

	l := ledger.New(e.snap.Clone(), e.ledgerOptions()...)
	if err := fn(l); err != nil {
		e.mu.Unlock()
		return err
	}
	e.snap = l.Snapshot()
	hook := e.onMutate
	e.mu.Unlock()

	if hook != nil {
		hook()
	}
	return nil
}

// View runs fn against a copy of the snapshot. Changes fn makes are
// discarded.
func (e *Engine) View(fn func(*ledger.Ledger) error) error {
	snap := e.Snapshot()
	if snap == nil {
		return ErrNotLoaded
	}
	return fn(ledger.New(snap, e.ledgerOptions()...))
}

// SetStoreName names the store in the snapshot and the cache.
func (e *Engine) SetStoreName(ctx context.Context, name string) error {
	if err := e.Mutate(func(l *ledger.Ledger) error {
		l.Snapshot().SetName(name)
		if l.Snapshot().Name() == "" {
			return fmt.Errorf("store name cannot be empty")
		}
		return nil
	}); err != nil {
		return err
	}

	if err := e.cache.Put(ctx, cache.KeyStoreName, []byte(e.storeName())); err != nil {
		return fmt.Errorf("failed to cache store name: %w", err)
	}
	return nil
}

func (e *Engine) storeName() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.snap == nil {
		return ""
	}
	return e.snap.Name()
}

// Wait blocks until no flight is running or queued.
func (e *Engine) Wait() {
	e.drains.Wait()
}
