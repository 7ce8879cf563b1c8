// Package watch turns edits to the CSV data directory into dataset change
// notifications.
package watch

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 250 * time.Millisecond

// Notifier receives one call per settled change.
type Notifier interface {
	DatasetChanged(ctx context.Context, source string, categories []string)
}

// Notifiers fans one change out to several notifiers, in order.
type Notifiers []Notifier

func (ns Notifiers) DatasetChanged(ctx context.Context, source string, categories []string) {
	for _, n := range ns {
		n.DatasetChanged(ctx, source, categories)
	}
}

// Resolver maps a locator to the categories reading it.
type Resolver interface {
	BySource(locator string) []string
}

// Watcher watches one directory. Rapid writes to a file are coalesced into
// a single notification once the file has been quiet for Debounce.
type Watcher struct {
	Dir      string
	Debounce time.Duration

	watcher  *fsnotify.Watcher
	resolver Resolver
	notify   Notifier
	logger   *zap.Logger

	mu      sync.Mutex
	pending map[string]time.Time
	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
}

func New(dir string, resolver Resolver, notify Notifier, logger *zap.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		Dir:      dir,
		Debounce: defaultDebounce,
		watcher:  fw,
		resolver: resolver,
		notify:   notify,
		logger:   logger.Named("watch"),
		pending:  make(map[string]time.Time),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start begins watching; it does not block.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.watcher.Add(w.Dir); err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		return err
	}
	w.logger.Info("watching data directory", zap.String("dir", w.Dir))

	go w.run(ctx)
	return nil
}

// Stop ends the event loop and releases the watcher.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	running := w.running
	w.running = false
	w.mu.Unlock()

	if running {
		close(w.stopCh)
		<-w.doneCh
	}
	return w.watcher.Close()
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	tick := time.NewTicker(max(w.Debounce/4, 10*time.Millisecond))
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", zap.Error(err))
		case now := <-tick.C:
			w.flush(ctx, now)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Write) &&
		!ev.Op.Has(fsnotify.Remove) && !ev.Op.Has(fsnotify.Rename) {
		return
	}
	locator := filepath.Base(ev.Name)
	if len(w.resolver.BySource(locator)) == 0 {
		return
	}
	w.logger.Debug("dataset event", zap.String("source", locator), zap.String("op", ev.Op.String()))

	w.mu.Lock()
	w.pending[locator] = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) flush(ctx context.Context, now time.Time) {
	var ready []string
	w.mu.Lock()
	for locator, at := range w.pending {
		if now.Sub(at) >= w.Debounce {
			ready = append(ready, locator)
			delete(w.pending, locator)
		}
	}
	w.mu.Unlock()

	for _, locator := range ready {
		cats := w.resolver.BySource(locator)
		w.logger.Info("dataset changed", zap.String("source", locator), zap.Strings("categories", cats))
		w.notify.DatasetChanged(ctx, locator, cats)
	}
}
