// Package watch turns file-system change events into worker-completion
// signals for the verification gate: the first change for a task queues a
// verification, later changes reset its stability timer.
package watch

import (
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Sink receives change signals for tasks. The verification gate adapter is
// the production implementation.
type Sink interface {
	FileChanged(taskID, path string)
}

// Config configures a Watcher.
type Config struct {
	// ExcludeDirs lists directory names to skip (e.g. ".git", "node_modules").
	ExcludeDirs []string
}

// DefaultConfig returns the default watch configuration.
func DefaultConfig() Config {
	return Config{
		ExcludeDirs: []string{".git", "node_modules", "vendor"},
	}
}

// Watcher watches a directory tree and routes change events to tasks by
// their registered file paths.
type Watcher struct {
	watcher  *fsnotify.Watcher
	sink     Sink
	logger   *slog.Logger
	excludes map[string]bool

	mu     sync.RWMutex
	byPath map[string]string // absolute file path -> task id
	byDir  map[string]string // directory prefix -> task id

	done chan struct{}
	once sync.Once
}

// New creates a Watcher delivering signals to sink.
func New(cfg Config, sink Sink, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	excludes := make(map[string]bool, len(cfg.ExcludeDirs))
	for _, d := range cfg.ExcludeDirs {
		excludes[d] = true
	}

	return &Watcher{
		watcher:  fsw,
		sink:     sink,
		logger:   logger,
		excludes: excludes,
		byPath:   make(map[string]string),
		byDir:    make(map[string]string),
		done:     make(chan struct{}),
	}, nil
}

// Register associates the given paths with a task, so change events under
// them are reported as that task's activity. Directory paths match
// recursively.
func (w *Watcher) Register(taskID string, paths []string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			continue
		}
		if strings.HasSuffix(p, string(filepath.Separator)) {
			w.byDir[abs] = taskID
		} else {
			w.byPath[abs] = taskID
		}
	}
}

// Unregister drops every path mapping for the task.
func (w *Watcher) Unregister(taskID string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for p, id := range w.byPath {
		if id == taskID {
			delete(w.byPath, p)
		}
	}
	for p, id := range w.byDir {
		if id == taskID {
			delete(w.byDir, p)
		}
	}
}

// Watch walks root and adds every non-excluded directory to the watcher,
// then starts the event loop.
func (w *Watcher) Watch(root string) error {
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if w.excludes[d.Name()] {
			return filepath.SkipDir
		}
		return w.watcher.Add(path)
	})
	if err != nil {
		return err
	}

	go w.loop()
	return nil
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.dispatch(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", "error", err)
		}
	}
}

func (w *Watcher) dispatch(event fsnotify.Event) {
	abs, err := filepath.Abs(event.Name)
	if err != nil {
		return
	}

	w.mu.RLock()
	taskID, ok := w.byPath[abs]
	if !ok {
		for dir, id := range w.byDir {
			if strings.HasPrefix(abs, dir+string(filepath.Separator)) || abs == dir {
				taskID, ok = id, true
				break
			}
		}
	}
	w.mu.RUnlock()

	if !ok {
		return
	}

	w.logger.Debug("file change signal", "task", taskID, "path", abs, "op", event.Op.String())
	w.sink.FileChanged(taskID, abs)
}

// Close stops the event loop and releases the underlying watcher. Idempotent.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		err = w.watcher.Close()
	})
	return err
}
