// Package watcher refreshes the plugin catalog when the plugins root changes.
//
// Only direct children of the root are observed. Creating, removing or
// renaming a plugin directory schedules a refresh; bursts of changes within
// the debounce window collapse into one. Hidden entries (in-progress
// installs) and the registry state file are ignored, so the manager's own
// writes never trigger a refresh.
package watcher

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is the quiet period before a refresh runs.
const DefaultDebounce = 500 * time.Millisecond

// Errors returned by the watcher.
var (
	ErrWatcherClosed = errors.New("watcher is closed")
	ErrPathNotExist  = errors.New("path does not exist")
)

// Refresher rebuilds state from disk. *plugin.Manager implements it.
type Refresher interface {
	Refresh() error
}

// Stats contains watcher statistics.
type Stats struct {
	Events    int64
	Refreshes int64
	Errors    int64
	LastError error
}

// Watcher triggers debounced refreshes for changes under a plugins root.
type Watcher struct {
	mu sync.Mutex

	fsw    *fsnotify.Watcher
	root   string
	target Refresher
	logger *zap.Logger

	delay  time.Duration
	ignore map[string]bool
	timer  *time.Timer

	events    int64
	refreshes int64
	errs      int64
	lastError error

	closed   bool
	closeCh  chan struct{}
	closedWg sync.WaitGroup
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period. Non-positive values keep the default.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.delay = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// WithIgnore adds base names whose changes never trigger a refresh.
func WithIgnore(names ...string) Option {
	return func(w *Watcher) {
		for _, n := range names {
			w.ignore[n] = true
		}
	}
}

// New starts watching root and calls target.Refresh after changes settle.
func New(root string, target Refresher, opts ...Option) (*Watcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(abs); err != nil {
		if os.IsNotExist(err) {
			return nil, ErrPathNotExist
		}
		return nil, err
	}

	w := &Watcher{
		root:    abs,
		target:  target,
		logger:  zap.NewNop(),
		delay:   DefaultDebounce,
		ignore:  make(map[string]bool),
		closeCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(abs); err != nil {
		fsw.Close()
		return nil, err
	}
	w.fsw = fsw

	w.closedWg.Add(1)
	go w.processLoop()

	w.logger.Debug("watching plugins root", zap.String("root", abs), zap.Duration("debounce", w.delay))
	return w, nil
}

// Root returns the watched directory.
func (w *Watcher) Root() string {
	return w.root
}

// Close stops watching. A pending refresh is dropped.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.closeCh)
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.mu.Unlock()

	w.closedWg.Wait()
	return w.fsw.Close()
}

// Stats returns watcher statistics.
func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Stats{
		Events:    atomic.LoadInt64(&w.events),
		Refreshes: atomic.LoadInt64(&w.refreshes),
		Errors:    atomic.LoadInt64(&w.errs),
		LastError: w.lastError,
	}
}

func (w *Watcher) processLoop() {
	defer w.closedWg.Done()

	for {
		select {
		case <-w.closeCh:
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if w.relevant(ev) {
				atomic.AddInt64(&w.events, 1)
				w.schedule()
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.recordError(err)
			w.logger.Warn("plugins root watch error", zap.Error(err))
		}
	}
}

// relevant reports whether ev changes the set of plugin directories.
func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return false
	}
	if filepath.Dir(ev.Name) != w.root {
		return false
	}
	base := filepath.Base(ev.Name)
	return !strings.HasPrefix(base, ".") && !w.ignore[base]
}

// schedule (re)starts the debounce timer.
func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.delay, w.fire)
}

func (w *Watcher) fire() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.timer = nil
	w.mu.Unlock()

	atomic.AddInt64(&w.refreshes, 1)
	if err := w.target.Refresh(); err != nil {
		w.recordError(err)
		w.logger.Warn("plugin refresh failed", zap.Error(err))
		return
	}
	w.logger.Debug("plugins refreshed after change")
}

func (w *Watcher) recordError(err error) {
	atomic.AddInt64(&w.errs, 1)
	w.mu.Lock()
	w.lastError = err
	w.mu.Unlock()
}
