package watch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDebouncerFirstEventEmits(t *testing.T) {
	d := NewDebouncer(100 * time.Millisecond)
	require.True(t, d.ShouldEmit([]string{"/test/file.txt"}))
}

func TestDebouncerRapidEventsSuppressed(t *testing.T) {
	d := NewDebouncer(100 * time.Millisecond)
	require.True(t, d.ShouldEmit([]string{"/test/file.txt"}))
	require.False(t, d.ShouldEmit([]string{"/test/file.txt"}))
}

func TestDebouncerAfterThresholdEmitsAgain(t *testing.T) {
	d := NewDebouncer(10 * time.Millisecond)
	require.True(t, d.ShouldEmit([]string{"/test/file.txt"}))
	time.Sleep(20 * time.Millisecond)
	require.True(t, d.ShouldEmit([]string{"/test/file.txt"}))
}

func TestDebouncerDifferentPathsBothEmit(t *testing.T) {
	d := NewDebouncer(100 * time.Millisecond)
	require.True(t, d.ShouldEmit([]string{"/test/file1.txt"}))
	require.True(t, d.ShouldEmit([]string{"/test/file2.txt"}))
}

func TestDebouncerReset(t *testing.T) {
	d := NewDebouncer(100 * time.Millisecond)
	d.ShouldEmit([]string{"/test/file.txt"})
	d.Reset()
	require.True(t, d.ShouldEmit([]string{"/test/file.txt"}))
}

func TestShouldIgnoreMatchesComponentsAndFullPath(t *testing.T) {
	w := &Watcher{ignore: []string{"target", "node_modules", "*.swp"}}
	require.True(t, w.shouldIgnore("/project/target/debug/app"))
	require.True(t, w.shouldIgnore("/project/node_modules/package/index.js"))
	require.True(t, w.shouldIgnore("/project/src/main.rs.swp"))
	require.False(t, w.shouldIgnore("/project/src/main.rs"))
}

func TestWatcherEmitsOnFileCreate(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir, nil, 50*time.Millisecond)
	require.NoError(t, err)
	defer w.Close()

	events := w.Events()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "test.txt"), []byte("hello"), 0o644))

	select {
	case ev := <-events:
		require.NotEmpty(t, ev.Paths)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for watch event")
	}
}
