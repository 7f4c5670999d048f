package logstream

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWriterWriteAndTail(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(filepath.Join(dir, "app-out.log"), DefaultRotationConfig())
	require.NoError(t, err)
	defer w.Close()

	for i := 0; i < 5; i++ {
		require.NoError(t, w.WriteLine(fmt.Sprintf("line-%d", i)))
	}

	lines, err := Tail(w.Path(), 3)
	require.NoError(t, err)
	require.Len(t, lines, 3)
	require.True(t, strings.HasSuffix(lines[0], "line-2"))
	require.True(t, strings.HasSuffix(lines[2], "line-4"))
}

func TestWriterRotationBoundary(t *testing.T) {
	dir := t.TempDir()
	const k = int64(1024)
	config := RotationConfig{MaxSizeBytes: k, MaxFiles: 10}
	w, err := NewWriter(filepath.Join(dir, "app-out.log"), config)
	require.NoError(t, err)
	defer w.Close()

	line := strings.Repeat("x", 100)
	// write well past 10*k bytes total to force repeated rotation.
	var written int64
	for written < 10*k {
		require.NoError(t, w.WriteLine(line))
		written += int64(len(line)) + 30 // rough timestamp+newline overhead
	}

	require.LessOrEqual(t, w.CurrentSize(), config.MaxSizeBytes)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	rotated := 0
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "app-out.log.") {
			rotated++
		}
	}
	require.LessOrEqual(t, rotated, config.MaxFiles)
	require.Greater(t, rotated, 0)
}

func TestWriterFlush(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(filepath.Join(dir, "app-out.log"), DefaultRotationConfig())
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.WriteLine("before"))
	require.Greater(t, w.CurrentSize(), int64(0))
	require.NoError(t, w.Flush())
	require.Equal(t, int64(0), w.CurrentSize())

	info, err := os.Stat(w.Path())
	require.NoError(t, err)
	require.Equal(t, int64(0), info.Size())
}

func TestFollowStreamsAppendedLines(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(filepath.Join(dir, "app-out.log"), DefaultRotationConfig())
	require.NoError(t, err)
	defer w.Close()
	require.NoError(t, w.WriteLine("before-follow"))
	require.NoError(t, w.Flush())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := make(chan string, 16)
	go func() { _ = Follow(ctx, w.Path(), ch) }()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, w.WriteLine("hello"))
	require.NoError(t, w.WriteLine("world"))

	var got []string
	timeout := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case line := <-ch:
			got = append(got, line)
		case <-timeout:
			t.Fatalf("timed out waiting for follow, got %v", got)
		}
	}
	require.True(t, strings.HasSuffix(got[0], "hello"))
	require.True(t, strings.HasSuffix(got[1], "world"))
}

func TestLogStreamOpenDerivesThreePaths(t *testing.T) {
	dir := t.TempDir()
	ls, err := Open(dir, "myapp", DefaultRotationConfig())
	require.NoError(t, err)
	defer ls.Close()

	require.Equal(t, filepath.Join(dir, "myapp-out.log"), ls.Out.Path())
	require.Equal(t, filepath.Join(dir, "myapp-err.log"), ls.Err.Path())
	require.Equal(t, filepath.Join(dir, "myapp-hooks.log"), ls.Hooks.Path())

	require.NoError(t, ls.Out.WriteLine("out-line"))
	require.NoError(t, ls.Err.WriteLine("err-line"))
	require.NoError(t, ls.Flush())
	require.Equal(t, int64(0), ls.Out.CurrentSize())
}

func TestPumpLinesAppendsTimestampedLines(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(filepath.Join(dir, "app-out.log"), DefaultRotationConfig())
	require.NoError(t, err)
	defer w.Close()

	r, wr := os.Pipe()
	done := make(chan struct{})
	go func() {
		PumpLines(r, w)
		close(done)
	}()

	_, err = wr.WriteString("first\nsecond\n")
	require.NoError(t, err)
	require.NoError(t, wr.Close())
	<-done

	lines, err := Tail(w.Path(), 2)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	require.True(t, strings.HasSuffix(lines[0], "first"))
	require.True(t, strings.HasSuffix(lines[1], "second"))
}
