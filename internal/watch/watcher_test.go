package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebouncer_CoalescesBurst(t *testing.T) {
	var mu sync.Mutex
	var batches [][]string

	d := NewDebouncer(30 * time.Millisecond)
	d.SetCallback(func(files []string) {
		mu.Lock()
		defer mu.Unlock()
		batches = append(batches, files)
	})

	d.Add("menu.yml")
	d.Add("hierarchicalroutes.yml")
	d.Add("menu.yml")

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(batches) == 1
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"hierarchicalroutes.yml", "menu.yml"}, batches[0])
}

func TestDebouncer_StopCancelsPending(t *testing.T) {
	var calls atomic.Int32
	d := NewDebouncer(30 * time.Millisecond)
	d.SetCallback(func([]string) { calls.Add(1) })

	d.Add("menu.yml")
	d.Stop()
	d.Add("menu.yml")

	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, calls.Load())
}

func TestNewFileWatcher_NoFiles(t *testing.T) {
	_, err := NewFileWatcher([]string{""}, 0, func([]string) error { return nil }, nil)
	assert.Error(t, err)
}

type countingRebuilder struct {
	calls atomic.Int32
}

func (c *countingRebuilder) Rebuild(context.Context) error {
	c.calls.Add(1)
	return nil
}

func TestRebuildWatcher(t *testing.T) {
	dir := t.TempDir()
	menu := filepath.Join(dir, "menu.yml")
	other := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(menu, []byte("main: []\n"), 0o644))
	require.NoError(t, os.WriteFile(other, []byte("x"), 0o644))

	target := &countingRebuilder{}
	fw, err := NewRebuildWatcher(context.Background(), []string{menu}, 20*time.Millisecond, target, nil)
	require.NoError(t, err)
	require.NoError(t, fw.Start())
	t.Cleanup(func() { _ = fw.Stop() })

	require.NoError(t, os.WriteFile(other, []byte("y"), 0o644))
	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, target.calls.Load(), "unrelated files are ignored")

	require.NoError(t, os.WriteFile(menu, []byte("main:\n  - path: pages/1\n"), 0o644))
	assert.Eventually(t, func() bool { return target.calls.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, fw.Stop())
	require.NoError(t, fw.Stop())
}

func TestFileWatcher_RunStopsWithContext(t *testing.T) {
	dir := t.TempDir()
	menu := filepath.Join(dir, "menu.yml")
	require.NoError(t, os.WriteFile(menu, nil, 0o644))

	fw, err := NewFileWatcher([]string{menu}, 0, func([]string) error { return nil }, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- fw.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
