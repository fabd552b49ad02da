package runner

import (
	"sort"
	"sync"
)

// FileLocks provides per-path mutual exclusion so concurrent tasks never
// write the same file at once. Each path gets its own mutex; different paths
// proceed in parallel.
type FileLocks struct {
	mu    sync.Mutex             // guards the map itself
	locks map[string]*sync.Mutex // per-path mutexes
}

// NewFileLocks creates an empty FileLocks.
func NewFileLocks() *FileLocks {
	return &FileLocks{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for one path, creating it on first use.
func (f *FileLocks) Lock(path string) {
	f.mu.Lock()
	l, ok := f.locks[path]
	if !ok {
		l = &sync.Mutex{}
		f.locks[path] = l
	}
	f.mu.Unlock()

	// Acquired outside the map lock so unrelated paths don't contend.
	l.Lock()
}

// Unlock releases the mutex for one path.
func (f *FileLocks) Unlock(path string) {
	f.mu.Lock()
	l, ok := f.locks[path]
	f.mu.Unlock()

	if ok {
		l.Unlock()
	}
}

// LockAll acquires every path's mutex in lexicographic order. The ordering is
// what prevents deadlock between tasks locking overlapping sets.
func (f *FileLocks) LockAll(paths []string) {
	if len(paths) == 0 {
		return
	}
	sorted := make([]string, len(paths))
	copy(sorted, paths)
	sort.Strings(sorted)

	for _, p := range sorted {
		f.Lock(p)
	}
}

// UnlockAll releases in reverse lexicographic order, symmetric with LockAll.
func (f *FileLocks) UnlockAll(paths []string) {
	if len(paths) == 0 {
		return
	}
	sorted := make([]string, len(paths))
	copy(sorted, paths)
	sort.Strings(sorted)

	for i := len(sorted) - 1; i >= 0; i-- {
		f.Unlock(sorted[i])
	}
}
