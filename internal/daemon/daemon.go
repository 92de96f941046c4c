package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	ksync "github.com/mschirtzinger/khata/internal/sync"
	"golang.org/x/sync/errgroup"
)

// Engine is the part of the sync engine the daemon drives.
type Engine interface {
	Save(ctx context.Context, trigger ksync.Trigger) ksync.Result
	AdoptLocal(ctx context.Context) (bool, error)
	LastSaved() time.Time
	OnMutate(fn func())
}

// Checker probes connectivity. restored is true on an offline to online
// transition.
type Checker interface {
	Check(ctx context.Context) (online, restored bool)
}

// Config holds configuration for the daemon.
type Config struct {
	// SyncInterval is how often to save regardless of activity.
	SyncInterval time.Duration

	// DebounceInterval is how long mutations must be quiet before they
	// are saved. This batches rapid edits together.
	DebounceInterval time.Duration

	// ProbeInterval is how often connectivity is checked.
	ProbeInterval time.Duration

	// RolloverDelay is how long after midnight the rollover save runs.
	RolloverDelay time.Duration

	// CachePath is the local cache file to watch. Empty disables the
	// watcher (for example with the redis cache).
	CachePath string

	// Logger for daemon activity
	Logger *log.Logger

	// Clock is used for the day rollover.
	Clock func() time.Time
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		SyncInterval:     5 * time.Minute,
		DebounceInterval: 500 * time.Millisecond,
		ProbeInterval:    15 * time.Second,
		RolloverDelay:    5 * time.Second,
		Logger:           log.New(os.Stderr, "[daemon] ", log.LstdFlags),
		Clock:            time.Now,
	}
}

// change sources in the queue
const (
	changeMutation = "mutation"
	changeCache    = "cache"
)

// Daemon schedules saves.
type Daemon struct {
	engine  Engine
	checker Checker
	config  *Config

	watcher *CacheWatcher

	changeQueue   map[string]time.Time // source -> last event
	changeQueueMu sync.Mutex

	foreground chan struct{}

	listenersMu sync.Mutex
	onNet       []func(online bool)

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group
}

// New creates a new Daemon with the default configuration.
func New(engine Engine, checker Checker) (*Daemon, error) {
	return NewWithConfig(engine, checker, DefaultConfig())
}

// NewWithConfig creates a daemon with custom configuration. checker may
// be nil, which disables the connectivity poll.
func NewWithConfig(engine Engine, checker Checker, config *Config) (*Daemon, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	def := DefaultConfig()
	if config.SyncInterval <= 0 {
		return nil, fmt.Errorf("sync interval must be positive")
	}
	if config.DebounceInterval <= 0 {
		return nil, fmt.Errorf("debounce interval must be positive")
	}
	if config.ProbeInterval <= 0 {
		config.ProbeInterval = def.ProbeInterval
	}
	if config.RolloverDelay < 0 {
		config.RolloverDelay = def.RolloverDelay
	}
	if config.Logger == nil {
		config.Logger = def.Logger
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}

	var watcher *CacheWatcher
	if config.CachePath != "" {
		w, err := NewCacheWatcher(config.CachePath)
		if err != nil {
			return nil, err
		}
		watcher = w
	}

	ctx, cancel := context.WithCancel(context.Background())

	d := &Daemon{
		engine:      engine,
		checker:     checker,
		config:      config,
		watcher:     watcher,
		changeQueue: make(map[string]time.Time),
		foreground:  make(chan struct{}, 1),
		ctx:         ctx,
		cancel:      cancel,
	}
	engine.OnMutate(func() { d.queueChange(changeMutation) })
	return d, nil
}

// OnConnectivity registers a listener for connectivity changes.
func (d *Daemon) OnConnectivity(fn func(online bool)) {
	d.listenersMu.Lock()
	defer d.listenersMu.Unlock()
	d.onNet = append(d.onNet, fn)
}

// Foreground requests an immediate save. It never blocks; requests made
// while one is waiting are merged.
func (d *Daemon) Foreground() {
	select {
	case d.foreground <- struct{}{}:
	default:
	}
}

// Start runs the schedulers. This blocks until ctx is cancelled or Stop
// is called.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Println("Starting daemon")

	if d.watcher != nil {
		if err := d.watcher.Start(); err != nil {
			return fmt.Errorf("failed to start cache watcher: %w", err)
		}
		d.config.Logger.Printf("Watching: %s", d.config.CachePath)
	}

	g, gctx := errgroup.WithContext(d.ctx)
	d.group = g
	g.Go(func() error { d.processChangeQueue(gctx); return nil })
	g.Go(func() error { d.periodicSync(gctx); return nil })
	g.Go(func() error { d.dayRollover(gctx); return nil })
	g.Go(func() error { d.foregroundLoop(gctx); return nil })
	if d.checker != nil {
		g.Go(func() error { d.pollConnectivity(gctx); return nil })
	}
	if d.watcher != nil {
		g.Go(func() error { d.watchCacheEvents(gctx); return nil })
	}

	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down the daemon.
func (d *Daemon) Stop() error {
	d.config.Logger.Println("Stopping daemon")

	d.cancel()

	if d.watcher != nil {
		if err := d.watcher.Stop(); err != nil {
			d.config.Logger.Printf("Error closing watcher: %v", err)
		}
	}

	if d.group != nil {
		if err := d.group.Wait(); err != nil {
			d.config.Logger.Printf("Error stopping: %v", err)
		}
	}

	d.config.Logger.Println("Daemon stopped")
	return nil
}

func (d *Daemon) save(trigger ksync.Trigger, reason string) {
	res := d.engine.Save(d.ctx, trigger)
	if res.Outcome.IsFailure() {
		d.config.Logger.Printf("Save (%s) %s: %v", reason, res.Outcome, res.Err())
		return
	}
	d.config.Logger.Printf("Save (%s) %s", reason, res.Outcome)
}

// queueChange records a change source with debouncing.
func (d *Daemon) queueChange(source string) {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()

	d.changeQueue[source] = time.Now()
}

// processChangeQueue processes queued changes with debouncing.
func (d *Daemon) processChangeQueue(ctx context.Context) {
	ticker := time.NewTicker(d.config.DebounceInterval / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.processPendingChanges(ctx)
		}
	}
}

// processPendingChanges saves once for every source that has been quiet
// for long enough.
func (d *Daemon) processPendingChanges(ctx context.Context) {
	d.changeQueueMu.Lock()
	now := time.Now()
	ready := make(map[string]bool)
	for source, queuedAt := range d.changeQueue {
		if now.Sub(queuedAt) < d.config.DebounceInterval {
			continue
		}
		ready[source] = true
		delete(d.changeQueue, source)
	}
	d.changeQueueMu.Unlock()

	needsSave := ready[changeMutation]
	if ready[changeCache] {
		adopted, err := d.engine.AdoptLocal(ctx)
		if err != nil {
			d.config.Logger.Printf("Error reading cache change: %v", err)
		}
		needsSave = needsSave || adopted
	}

	if needsSave {
		d.save(ksync.Auto, "changes")
	}
}

// periodicSync saves on the sync interval.
func (d *Daemon) periodicSync(ctx context.Context) {
	ticker := time.NewTicker(d.config.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.save(ksync.Scheduled, "interval")
		}
	}
}

// dayRollover saves shortly after each local midnight if nothing was
// saved yet on the new day.
func (d *Daemon) dayRollover(ctx context.Context) {
	for {
		now := d.config.Clock()
		timer := time.NewTimer(nextRollover(now, d.config.RolloverDelay).Sub(now))

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			if needsRollover(d.engine.LastSaved(), d.config.Clock()) {
				d.save(ksync.Scheduled, "day rollover")
			}
		}
	}
}

// nextRollover returns the next local midnight plus delay after now.
func nextRollover(now time.Time, delay time.Duration) time.Time {
	y, m, day := now.Date()
	next := time.Date(y, m, day+1, 0, 0, 0, 0, now.Location()).Add(delay)
	if today := next.AddDate(0, 0, -1); today.After(now) {
		return today
	}
	return next
}

// needsRollover reports whether the last save happened before today.
func needsRollover(lastSaved, now time.Time) bool {
	if lastSaved.IsZero() {
		return true
	}
	ly, lm, ld := lastSaved.In(now.Location()).Date()
	y, m, day := now.Date()
	return time.Date(ly, lm, ld, 0, 0, 0, 0, now.Location()).Before(time.Date(y, m, day, 0, 0, 0, 0, now.Location()))
}

// pollConnectivity saves once each time the network comes back.
func (d *Daemon) pollConnectivity(ctx context.Context) {
	ticker := time.NewTicker(d.config.ProbeInterval)
	defer ticker.Stop()

	last := true
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			online, restored := d.checker.Check(ctx)
			if online != last {
				d.config.Logger.Printf("Connectivity changed: online=%v", online)
				d.notifyConnectivity(online)
				last = online
			}
			if restored {
				d.save(ksync.Auto, "connectivity restored")
			}
		}
	}
}

func (d *Daemon) notifyConnectivity(online bool) {
	d.listenersMu.Lock()
	listeners := append([]func(bool){}, d.onNet...)
	d.listenersMu.Unlock()

	for _, fn := range listeners {
		fn(online)
	}
}

func (d *Daemon) foregroundLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.foreground:
			d.save(ksync.Auto, "foreground")
		}
	}
}

// watchCacheEvents queues writes to the cache file by any process.
func (d *Daemon) watchCacheEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-d.watcher.Events():
			if !ok {
				return
			}
			if ev.Op == OpDelete {
				continue
			}
			d.queueChange(changeCache)
		case err, ok := <-d.watcher.Errors():
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}
