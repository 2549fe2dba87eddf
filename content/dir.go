package content

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Dir serves assets from an OS directory and caches them in memory. The
// cache entry for a file is dropped whenever fsnotify reports a change to it.
type Dir struct {
	root string
	fs   *FS
	log  *slog.Logger

	mu    sync.RWMutex
	cache map[string]Asset
	// gen is bumped on every invalidation. A read only fills the cache if
	// gen is unchanged since it started.
	gen uint64

	// afterRead runs between the disk read and the cache fill. Tests only.
	afterRead func(name string)

	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	done    chan struct{}
}

// DirOption configures a Dir.
type DirOption func(*Dir)

func WithDirLogger(log *slog.Logger) DirOption {
	return func(d *Dir) { d.log = log }
}

// OpenDir starts serving root. The watch runs until Close is called or ctx
// is cancelled. If the watcher cannot be created the directory is still
// served, without caching.
func OpenDir(ctx context.Context, root string, opts ...DirOption) (*Dir, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("content dir: %w", err)
	}
	fi, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("content dir: %w", err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("content dir: %s is not a directory", abs)
	}

	d := &Dir{
		root:  abs,
		fs:    NewFS(os.DirFS(abs)),
		log:   slog.New(slog.DiscardHandler),
		cache: make(map[string]Asset),
		done:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		d.log.Warn("content.watch.unavailable", slog.String("err", err.Error()))
		close(d.done)
		return d, nil
	}
	if err := w.Add(abs); err != nil {
		_ = w.Close()
		d.log.Warn("content.watch.unavailable", slog.String("err", err.Error()))
		close(d.done)
		return d, nil
	}
	d.watcher = w

	watchCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	go d.watch(watchCtx)

	return d, nil
}

func (d *Dir) Asset(ctx context.Context, name string) (Asset, error) {
	var gen uint64
	if d.watcher != nil {
		d.mu.RLock()
		a, ok := d.cache[name]
		gen = d.gen
		d.mu.RUnlock()
		if ok {
			return a, nil
		}
	}

	a, err := d.fs.Asset(ctx, name)
	if err != nil {
		return Asset{}, err
	}
	if d.afterRead != nil {
		d.afterRead(name)
	}
	if d.watcher != nil {
		d.mu.Lock()
		if d.gen == gen {
			d.cache[name] = a
		}
		d.mu.Unlock()
	}
	return a, nil
}

func (d *Dir) List(ctx context.Context) ([]string, error) {
	return d.fs.List(ctx)
}

// Close stops the watcher.
func (d *Dir) Close() error {
	if d.cancel != nil {
		d.cancel()
	}
	<-d.done
	return nil
}

func (d *Dir) watch(ctx context.Context) {
	defer close(d.done)
	defer func() { _ = d.watcher.Close() }()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename|fsnotify.Chmod) == 0 {
				continue
			}
			name, err := filepath.Rel(d.root, ev.Name)
			if err != nil || !validName(name) {
				continue
			}
			d.invalidate(name)
			d.log.DebugContext(ctx, "content.watch.invalidate", slog.String("name", name), slog.String("op", ev.Op.String()))
		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				d.invalidateAll()
			}
			d.log.WarnContext(ctx, "content.watch.error", slog.String("err", err.Error()))
		}
	}
}

func (d *Dir) invalidate(name string) {
	d.mu.Lock()
	d.gen++
	delete(d.cache, name)
	d.mu.Unlock()
}

func (d *Dir) invalidateAll() {
	d.mu.Lock()
	d.gen++
	d.cache = make(map[string]Asset)
	d.mu.Unlock()
}
