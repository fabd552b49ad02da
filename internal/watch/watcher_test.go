package watch

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// capturingSink records every delivered (taskID, path) pair.
type capturingSink struct {
	mu      sync.Mutex
	signals []signal
}

type signal struct {
	taskID string
	path   string
}

func (s *capturingSink) FileChanged(taskID, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signals = append(s.signals, signal{taskID: taskID, path: path})
}

func (s *capturingSink) forTask(taskID string) []signal {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []signal
	for _, sig := range s.signals {
		if sig.taskID == taskID {
			out = append(out, sig)
		}
	}
	return out
}

func waitForSignal(t *testing.T, sink *capturingSink, taskID string) []signal {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if sigs := sink.forTask(taskID); len(sigs) > 0 {
			return sigs
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("no signal for task %q", taskID)
	return nil
}

func TestWatcherRoutesFileChanges(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "handler.go")
	require.NoError(t, os.WriteFile(file, []byte("package x"), 0644))

	sink := &capturingSink{}
	w, err := New(DefaultConfig(), sink, nil)
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })

	w.Register("t1", []string{file})
	require.NoError(t, w.Watch(root))

	require.NoError(t, os.WriteFile(file, []byte("package x // edited"), 0644))

	sigs := waitForSignal(t, sink, "t1")
	assert.Equal(t, "t1", sigs[0].taskID)

	abs, _ := filepath.Abs(file)
	assert.Equal(t, abs, sigs[0].path)
}

func TestWatcherDirectoryRegistration(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "api")
	require.NoError(t, os.Mkdir(sub, 0755))

	sink := &capturingSink{}
	w, err := New(DefaultConfig(), sink, nil)
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })

	// Trailing separator marks a recursive directory registration.
	w.Register("t1", []string{sub + string(filepath.Separator)})
	require.NoError(t, w.Watch(root))

	require.NoError(t, os.WriteFile(filepath.Join(sub, "new.go"), []byte("package api"), 0644))

	waitForSignal(t, sink, "t1")
}

func TestWatcherIgnoresUnregisteredPaths(t *testing.T) {
	root := t.TempDir()
	tracked := filepath.Join(root, "tracked.go")
	other := filepath.Join(root, "other.go")
	require.NoError(t, os.WriteFile(tracked, nil, 0644))
	require.NoError(t, os.WriteFile(other, nil, 0644))

	sink := &capturingSink{}
	w, err := New(DefaultConfig(), sink, nil)
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })

	w.Register("t1", []string{tracked})
	require.NoError(t, w.Watch(root))

	require.NoError(t, os.WriteFile(other, []byte("x"), 0644))
	require.NoError(t, os.WriteFile(tracked, []byte("x"), 0644))

	sigs := waitForSignal(t, sink, "t1")
	for _, sig := range sigs {
		assert.Equal(t, "t1", sig.taskID)
	}

	abs, _ := filepath.Abs(other)
	for _, sig := range sink.forTask("t1") {
		assert.NotEqual(t, abs, sig.path, "unregistered path leaked through")
	}
}

func TestWatcherUnregister(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "a.go")
	require.NoError(t, os.WriteFile(file, nil, 0644))

	sink := &capturingSink{}
	w, err := New(DefaultConfig(), sink, nil)
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })

	w.Register("t1", []string{file})
	w.Unregister("t1")
	require.NoError(t, w.Watch(root))

	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))
	time.Sleep(200 * time.Millisecond)
	assert.Empty(t, sink.forTask("t1"))
}

func TestWatcherCloseIdempotent(t *testing.T) {
	w, err := New(DefaultConfig(), &capturingSink{}, nil)
	require.NoError(t, err)

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
}
