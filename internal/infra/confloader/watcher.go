package confloader

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce collapses the burst of events a single editor save produces.
const DefaultDebounce = 250 * time.Millisecond

// Watcher reports changes to one configuration file. It watches the parent
// directory so rename-and-replace saves are seen; events for other files
// are ignored.
type Watcher struct {
	fsw      *fsnotify.Watcher
	path     string
	debounce time.Duration
	logger   *slog.Logger

	mu        sync.Mutex
	callbacks []func()

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithWatcherLogger sets the logger.
func WithWatcherLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = logger }
}

// WithDebounce sets how long the file must stay quiet before callbacks run.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.debounce = d }
}

// NewWatcher watches path. Call Start to begin delivering events.
func NewWatcher(path string, opts ...WatcherOption) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	w := &Watcher{
		fsw:      fsw,
		path:     filepath.Clean(path),
		debounce: DefaultDebounce,
		logger:   slog.Default(),
		stop:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}
	return w, nil
}

// OnChange registers fn to run after the file changes. Callbacks run
// sequentially on the watcher goroutine.
func (w *Watcher) OnChange(fn func()) {
	w.mu.Lock()
	w.callbacks = append(w.callbacks, fn)
	w.mu.Unlock()
}

// Start runs the event loop in a goroutine.
func (w *Watcher) Start() {
	w.wg.Add(1)
	go w.run()
	w.logger.Debug("configuration watcher started", "file", w.path)
}

// Stop ends the event loop and waits for a running callback to return.
// It is safe to call more than once.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.stop)
		err = w.fsw.Close()
		w.wg.Wait()
	})
	return err
}

func (w *Watcher) run() {
	defer w.wg.Done()

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 || filepath.Clean(ev.Name) != w.path {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(w.debounce)
			fire = timer.C
		case <-fire:
			fire = nil
			w.logger.Info("configuration file changed", "file", w.path)
			w.notify()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("configuration watcher error", "error", err)
		case <-w.stop:
			return
		}
	}
}

func (w *Watcher) notify() {
	w.mu.Lock()
	callbacks := append([]func(){}, w.callbacks...)
	w.mu.Unlock()
	for _, fn := range callbacks {
		fn()
	}
}

// OnReload loads l into a fresh value from newTarget after every change
// and passes the result, or the load error, to fn.
func OnReload[T any](w *Watcher, l *Loader, newTarget func() *T, fn func(*T, error)) {
	w.OnChange(func() {
		target := newTarget()
		if err := l.Load(target); err != nil {
			fn(nil, err)
			return
		}
		fn(target, nil)
	})
}
