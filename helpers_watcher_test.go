// scriptcomplete/helpers_watcher_test.go
package scriptcomplete

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBindingsWatcher(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bindings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("bindings: {}\n"), 0644))

	var reloads atomic.Int32
	w, err := NewBindingsWatcher(path, 20*time.Millisecond, func() error {
		reloads.Add(1)
		return nil
	}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give the watcher a moment to start reading events.
	time.Sleep(50 * time.Millisecond)

	// Unrelated files in the same directory are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0644))
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(0), reloads.Load())

	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(path, []byte("bindings:\n  a: {value: 1}\n"), 0644))
	}
	require.Eventually(t, func() bool { return reloads.Load() >= 1 }, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop after cancellation")
	}
}

func TestBindingsWatcher_NoReloadAfterStop(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bindings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("bindings: {}\n"), 0644))

	var reloads atomic.Int32
	w, err := NewBindingsWatcher(path, 300*time.Millisecond, func() error {
		reloads.Add(1)
		return nil
	}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)

	// The change is seen but the watcher stops before the delay elapses.
	require.NoError(t, os.WriteFile(path, []byte("bindings:\n  a: {value: 1}\n"), 0644))
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop after cancellation")
	}

	time.Sleep(600 * time.Millisecond)
	assert.Equal(t, int32(0), reloads.Load())
}

func TestNewBindingsWatcher_MissingDirectory(t *testing.T) {
	_, err := NewBindingsWatcher(filepath.Join(t.TempDir(), "missing", "bindings.yaml"), 0, func() error { return nil }, nil)
	assert.Error(t, err)
}
