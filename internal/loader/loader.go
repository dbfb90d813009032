// Package loader locates template files across the configured search
// directories and, when watching is enabled, reports file changes so
// callers can drop stale cache entries.
package loader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ombra-web/ombra/internal/logging"
)

// ErrNotFound reports a template name that resolved to no file in any
// search directory.
var ErrNotFound = errors.New("ombra: template not found")

const debounceDelay = 150 * time.Millisecond

// Content is one loaded template file. Hash identifies the exact bytes
// read, so callers can key compiled artifacts on it.
type Content struct {
	Name   string
	Path   string
	Source string
	Hash   string
}

// Loader resolves template names against an ordered list of search
// directories. Safe for concurrent use.
type Loader struct {
	dirs []string
	log  logging.Logger

	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	onChange []func(path string)
}

func New(dirs []string, log logging.Logger) *Loader {
	if log == nil {
		log = logging.NewNop()
	}
	return &Loader{dirs: slices.Clone(dirs), log: log.WithComponent("loader")}
}

// Dirs returns the search directories in resolution order.
func (l *Loader) Dirs() []string {
	return slices.Clone(l.dirs)
}

// Resolve maps a template name to the first matching file across the
// search directories. Names are relative: absolute paths and names
// escaping the search directories are rejected.
func (l *Loader) Resolve(name string) (string, error) {
	clean := filepath.Clean(name)
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("ombra: template name %q escapes the search directories", name)
	}
	for _, dir := range l.dirs {
		p := filepath.Join(dir, clean)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q (searched %d directories)", ErrNotFound, name, len(l.dirs))
}

// Read resolves and reads a template file. A done ctx fails the read
// before touching the filesystem.
func (l *Loader) Read(ctx context.Context, name string) (Content, error) {
	if err := ctx.Err(); err != nil {
		return Content{}, err
	}
	path, err := l.Resolve(name)
	if err != nil {
		return Content{}, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Content{}, fmt.Errorf("ombra: read template %q: %w", name, err)
	}
	sum := sha256.Sum256(b)
	l.log.Debug(ctx, "template read", "name", name, "path", path, "bytes", len(b))
	return Content{
		Name:   name,
		Path:   path,
		Source: string(b),
		Hash:   hex.EncodeToString(sum[:]),
	}, nil
}

// OnChange registers a handler invoked with the path of every changed
// file once Watch is running.
func (l *Loader) OnChange(fn func(path string)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onChange = append(l.onChange, fn)
}

// Watch starts watching every search directory recursively. Changes
// are debounced and deduplicated by path before handlers run. The
// watcher stops when ctx is cancelled or Close is called.
func (l *Loader) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("ombra: start template watcher: %w", err)
	}
	for _, dir := range l.dirs {
		if err := addRecursive(w, dir); err != nil {
			w.Close()
			return fmt.Errorf("ombra: watch %q: %w", dir, err)
		}
	}
	l.mu.Lock()
	l.watcher = w
	l.mu.Unlock()
	l.log.Info(ctx, "template watcher started", "dirs", len(l.dirs))
	go l.watchLoop(ctx, w)
	return nil
}

// Close stops the watcher, if one is running.
func (l *Loader) Close() error {
	l.mu.Lock()
	w := l.watcher
	l.watcher = nil
	l.mu.Unlock()
	if w == nil {
		return nil
	}
	return w.Close()
}

func (l *Loader) watchLoop(ctx context.Context, w *fsnotify.Watcher) {
	var (
		mu      sync.Mutex
		pending = make(map[string]struct{})
		timer   *time.Timer
	)
	flush := func() {
		mu.Lock()
		paths := slices.Sorted(maps.Keys(pending))
		clear(pending)
		mu.Unlock()
		for _, p := range paths {
			l.notify(ctx, p)
		}
	}
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := addRecursive(w, ev.Name); err != nil {
						l.log.Warn(ctx, err, "watch new directory", "path", ev.Name)
					}
					continue
				}
			}
			mu.Lock()
			pending[ev.Name] = struct{}{}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounceDelay, flush)
			mu.Unlock()
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			l.log.Warn(ctx, err, "template watcher error")
		}
	}
}

func (l *Loader) notify(ctx context.Context, path string) {
	l.mu.Lock()
	handlers := slices.Clone(l.onChange)
	l.mu.Unlock()
	l.log.Debug(ctx, "template changed", "path", path)
	for _, fn := range handlers {
		fn(path)
	}
}

func addRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
