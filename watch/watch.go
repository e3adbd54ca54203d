// Package watch reports entries created under a directory tree.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/jellydator/ttlcache/v3"

	askdir "github.com/Paranoid-AF/askdir"
)

// DefaultQueueSize is the events channel capacity when Config.QueueSize is unset.
const DefaultQueueSize = 16

// reportWindow is how long a reported path is remembered, so an entry seen
// both by a directory scan and by its own Create event is reported once.
const reportWindow = 5 * time.Second

// Config configures a Watcher.
type Config struct {
	// Root is the directory to watch recursively.
	Root string
	// Settle delays a new file's event until it has gone this long without a
	// write. Zero reports files as soon as they are created.
	Settle time.Duration
	// Ignore holds filepath.Match patterns tested against base names.
	Ignore []string
	// QueueSize is the capacity of the Events channel.
	QueueSize int
	Logger    *slog.Logger
}

// StartupError reports a watch root that cannot be watched.
type StartupError struct {
	Root string
	Err  error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("cannot watch %s: %v", e.Root, e.Err)
}

func (e *StartupError) Unwrap() error { return e.Err }

// Watcher watches a directory tree and emits an Event per created entry.
type Watcher struct {
	root   string
	settle time.Duration
	ignore []string
	logger *slog.Logger

	fsw       *fsnotify.Watcher
	closeOnce sync.Once

	events chan askdir.Event

	// pending holds files waiting to settle; nil when Settle is zero.
	pending *ttlcache.Cache[string, askdir.Event]
	// reported holds recently reported paths.
	reported *ttlcache.Cache[string, struct{}]
	settled chan askdir.Event
	done    chan struct{}
}

// New validates the root and registers watches on every directory under it.
// Entries created after New returns are reported once Run is called.
func New(cfg Config) (*Watcher, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	for _, pattern := range cfg.Ignore {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return nil, fmt.Errorf("invalid ignore pattern %q: %w", pattern, err)
		}
	}

	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, &StartupError{Root: cfg.Root, Err: err}
	}
	if err := checkRoot(root); err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	w := &Watcher{
		root:    root,
		settle:  cfg.Settle,
		ignore:  cfg.Ignore,
		logger:  cfg.Logger.With("component", "watcher"),
		fsw:     fsw,
		events:  make(chan askdir.Event, cfg.QueueSize),
		settled: make(chan askdir.Event),
		done:    make(chan struct{}),
	}
	w.reported = ttlcache.New[string, struct{}](
		ttlcache.WithTTL[string, struct{}](reportWindow),
		ttlcache.WithDisableTouchOnHit[string, struct{}](),
	)

	if err := fsw.Add(root); err != nil {
		fsw.Close()
		return nil, &StartupError{Root: root, Err: err}
	}
	w.addTree(root)

	if w.settle > 0 {
		w.pending = ttlcache.New[string, askdir.Event](
			ttlcache.WithTTL[string, askdir.Event](w.settle),
			ttlcache.WithDisableTouchOnHit[string, askdir.Event](),
		)
		w.pending.OnEviction(w.onEviction)
	}

	return w, nil
}

func checkRoot(root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return &StartupError{Root: root, Err: err}
	}
	if !info.IsDir() {
		return &StartupError{Root: root, Err: errors.New("not a directory")}
	}
	f, err := os.Open(root)
	if err != nil {
		return &StartupError{Root: root, Err: err}
	}
	f.Close()
	return nil
}

// Root returns the absolute watch root.
func (w *Watcher) Root() string { return w.root }

// Events returns the channel of creation events. It is closed when Run returns.
func (w *Watcher) Events() <-chan askdir.Event { return w.events }

// Close releases the OS watch handle. Run calls it on exit; calling it
// directly is only needed when Run is never started.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		err = w.fsw.Close()
	})
	return err
}

// Run delivers events until ctx is cancelled or the OS watch fails.
func (w *Watcher) Run(ctx context.Context) error {
	defer close(w.events)
	defer close(w.done)
	defer w.Close()

	go w.reported.Start()
	defer w.reported.Stop()
	if w.pending != nil {
		go w.pending.Start()
		defer w.pending.Stop()
	}

	w.logger.Info("watching", "root", w.root, "settle", w.settle)

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, ev)

		case ev := <-w.settled:
			w.emit(ctx, ev)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				w.logger.Warn("watch queue overflowed, events were dropped", "error", err)
				continue
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}

// handle processes one raw filesystem event.
func (w *Watcher) handle(ctx context.Context, ev fsnotify.Event) {
	switch {
	case ev.Has(fsnotify.Create):
		info, err := os.Lstat(ev.Name)
		if err != nil {
			// Gone before we looked.
			w.logger.Debug("created entry vanished", "path", ev.Name, "error", err)
			return
		}
		if w.ignored(ev.Name) {
			w.logger.Debug("ignored", "path", ev.Name)
			return
		}
		switch {
		case info.IsDir():
			w.createdDir(ctx, ev.Name)
		case info.Mode().IsRegular():
			w.createdFile(ctx, ev.Name)
		default:
			w.logger.Debug("skipping non-regular entry", "path", ev.Name, "mode", info.Mode().Type())
		}

	case ev.Has(fsnotify.Write):
		if w.pending != nil && w.pending.Has(ev.Name) {
			w.pending.Set(ev.Name, askdir.Event{Path: ev.Name}, ttlcache.DefaultTTL)
		}

	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		w.reported.Delete(ev.Name)
		if w.pending != nil {
			w.pending.Delete(ev.Name)
		}
	}
}

// createdDir reports a new directory, watches it and reports the files
// already inside it. Those may have been created before the watch existed.
func (w *Watcher) createdDir(ctx context.Context, dir string) {
	if !w.markReported(dir) {
		return
	}
	w.emit(ctx, askdir.Event{Path: dir, IsDir: true})
	for _, path := range w.addTree(dir) {
		w.createdFile(ctx, path)
	}
}

// createdFile reports a new file now, or once it settles.
func (w *Watcher) createdFile(ctx context.Context, path string) {
	if !w.markReported(path) {
		return
	}
	if w.pending == nil {
		w.emit(ctx, askdir.Event{Path: path})
		return
	}
	w.pending.Set(path, askdir.Event{Path: path}, ttlcache.DefaultTTL)
}

// markReported records path and reports whether it was not already recorded.
func (w *Watcher) markReported(path string) bool {
	if w.reported.Has(path) {
		return false
	}
	w.reported.Set(path, struct{}{}, ttlcache.DefaultTTL)
	return true
}

// onEviction forwards settled files to the Run loop. Deletions are not settled.
func (w *Watcher) onEviction(_ context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[string, askdir.Event]) {
	if reason != ttlcache.EvictionReasonExpired {
		return
	}
	ev := item.Value()
	go func() {
		select {
		case w.settled <- ev:
		case <-w.done:
		}
	}()
}

// emit blocks until the consumer accepts ev or ctx is done.
func (w *Watcher) emit(ctx context.Context, ev askdir.Event) {
	select {
	case w.events <- ev:
	case <-ctx.Done():
	}
}

// addTree watches dir and every directory below it that is not ignored, and
// returns the regular files found below a directory other than the root.
func (w *Watcher) addTree(dir string) []string {
	var files []string
	filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			w.logger.Warn("cannot walk directory", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if path != dir && w.ignored(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			if d.Type().IsRegular() && dir != w.root {
				files = append(files, path)
			}
			return nil
		}
		if path == w.root {
			return nil
		}
		if err := w.fsw.Add(path); err != nil {
			w.logger.Warn("cannot watch directory", "path", path, "error", err)
		}
		return nil
	})
	return files
}

// ignored reports whether the base name of path matches an ignore pattern.
func (w *Watcher) ignored(path string) bool {
	name := filepath.Base(path)
	for _, pattern := range w.ignore {
		if ok, _ := filepath.Match(pattern, name); ok {
			return true
		}
	}
	return false
}
