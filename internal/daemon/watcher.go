package daemon

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// EventOp represents the type of file system operation.
type EventOp int

const (
	// OpCreate indicates the file was created.
	OpCreate EventOp = iota
	// OpModify indicates the file was written.
	OpModify
	// OpDelete indicates the file was removed or renamed away.
	OpDelete
)

// String returns a human-readable representation of the operation.
func (op EventOp) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpModify:
		return "modify"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// CacheEvent is a change to the cache file or its write-ahead log.
type CacheEvent struct {
	Path string
	Op   EventOp
}

// CacheWatcher watches the directory of a cache file and reports changes
// to that file. sqlite commits in WAL mode touch the -wal sidecar, so
// writes to it count as changes too.
type CacheWatcher struct {
	watcher *fsnotify.Watcher
	path    string
	events  chan CacheEvent
	errors  chan error
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewCacheWatcher creates a watcher for the cache file at path. The
// watcher must be started with Start() before it will emit events.
func NewCacheWatcher(path string) (*CacheWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve cache path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &CacheWatcher{
		watcher: watcher,
		path:    abs,
		events:  make(chan CacheEvent, 100),
		errors:  make(chan error, 10),
		done:    make(chan struct{}),
	}, nil
}

// Start begins watching the cache directory.
func (cw *CacheWatcher) Start() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if cw.running {
		return fmt.Errorf("watcher already running")
	}

	dir := filepath.Dir(cw.path)
	if err := cw.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch cache directory %s: %w", dir, err)
	}

	cw.running = true
	cw.wg.Add(1)
	go cw.processEvents()
	return nil
}

// Stop stops watching and blocks until the event loop has exited.
func (cw *CacheWatcher) Stop() error {
	cw.mu.Lock()
	if !cw.running {
		cw.mu.Unlock()
		return nil
	}
	cw.running = false
	cw.mu.Unlock()

	close(cw.done)

	if err := cw.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	cw.wg.Wait()

	close(cw.events)
	close(cw.errors)
	return nil
}

// Events returns the channel of cache changes. It is closed by Stop.
func (cw *CacheWatcher) Events() <-chan CacheEvent {
	return cw.events
}

// Errors returns the channel of watcher errors. It is closed by Stop.
func (cw *CacheWatcher) Errors() <-chan error {
	return cw.errors
}

// IsRunning returns true if the watcher is currently running.
func (cw *CacheWatcher) IsRunning() bool {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	return cw.running
}

func (cw *CacheWatcher) processEvents() {
	defer cw.wg.Done()

	for {
		select {
		case <-cw.done:
			return

		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if ev, ok := cw.convertEvent(event); ok {
				select {
				case cw.events <- ev:
				case <-cw.done:
					return
				}
			}

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			select {
			case cw.errors <- err:
			case <-cw.done:
				return
			}
		}
	}
}

// convertEvent keeps events for the cache file and its -wal sidecar.
func (cw *CacheWatcher) convertEvent(event fsnotify.Event) (CacheEvent, bool) {
	if !cw.matches(event.Name) {
		return CacheEvent{}, false
	}

	var op EventOp
	switch {
	case event.Has(fsnotify.Create):
		op = OpCreate
	case event.Has(fsnotify.Write):
		op = OpModify
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		op = OpDelete
	default:
		return CacheEvent{}, false
	}
	return CacheEvent{Path: event.Name, Op: op}, true
}

func (cw *CacheWatcher) matches(name string) bool {
	abs, err := filepath.Abs(name)
	if err != nil {
		return false
	}
	if filepath.Dir(abs) != filepath.Dir(cw.path) {
		return false
	}
	base := filepath.Base(abs)
	want := filepath.Base(cw.path)
	return base == want || base == want+"-wal"
}
