package plugins

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// WatcherOption configures a Watcher
type WatcherOption func(*Watcher)

// WithAutoStart initializes and activates units registered by the watcher
func WithAutoStart(enabled bool) WatcherOption {
	return func(w *Watcher) {
		w.autoStart = enabled
	}
}

// WithSettleDelay sets how long a new package must stay unchanged before it is loaded
func WithSettleDelay(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.settle = d
		}
	}
}

// Watcher registers packages dropped into the plugins directory after startup.
// Already registered units are never replaced or reloaded.
type Watcher struct {
	registry  *Registry
	log       logrus.FieldLogger
	autoStart bool
	settle    time.Duration

	mu      sync.Mutex
	pending map[string]*time.Timer
	ready   chan string
	done    chan struct{}
}

// NewWatcher creates a watcher for the registry's plugins directory
func NewWatcher(r *Registry, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		registry: r,
		log:      r.log.WithField("component", "watcher"),
		settle:   500 * time.Millisecond,
		pending:  make(map[string]*time.Timer),
		ready:    make(chan string, 16),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run watches until ctx is done. A Watcher runs once.
func (w *Watcher) Run(ctx context.Context) error {
	defer close(w.done)

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(w.registry.Dir()); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.registry.Dir(), err)
	}
	w.log.WithField("path", w.registry.Dir()).Info("Watching plugins directory")

	defer w.stopPending()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !w.registry.IsCandidate(event.Name) {
				continue
			}
			w.schedule(event.Name)
		case path := <-w.ready:
			w.load(ctx, path)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.log.WithError(err).Warn("Watcher error")
		}
	}
}

// schedule (re)arms the settle timer of path; writes in progress keep pushing it back
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[path]; ok {
		t.Reset(w.settle)
		return
	}
	w.pending[path] = time.AfterFunc(w.settle, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		select {
		case w.ready <- path:
		case <-w.done:
		}
	})
}

func (w *Watcher) stopPending() {
	w.mu.Lock()
	defer w.mu.Unlock()

	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
}

func (w *Watcher) load(ctx context.Context, path string) {
	if _, loaded := w.registry.LoadedFrom(path); loaded {
		w.log.WithField("path", path).Debug("Package already registered, ignoring change")
		return
	}
	if w.registry.Uninstalled(path) {
		w.log.WithField("path", path).Debug("Package was uninstalled, ignoring change")
		return
	}

	u, err := w.registry.Load(path)
	if err != nil || !w.autoStart {
		return
	}

	if err := w.registry.InitOne(ctx, u.ID()); err != nil {
		return
	}
	_ = w.registry.ActivateOne(ctx, u.ID())
}
