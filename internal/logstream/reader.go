package logstream

import (
	"bufio"
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

const tailChunkSize = 4096

// Tail returns up to the last n lines of path, read by seeking backward from
// the end in fixed-size chunks rather than scanning the whole file, so it
// stays cheap against a log that has rotated down to a bounded size but may
// still be large relative to n. Grounded on
// oxidepm-logs::reader::LogReader::tail_efficient.
func Tail(path string, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := info.Size()
	if size == 0 {
		return nil, nil
	}

	var (
		collected [][]byte
		pos       = size
		pending   []byte
		newlines  int
	)
	buf := make([]byte, tailChunkSize)
	for pos > 0 && newlines <= n {
		readSize := int64(tailChunkSize)
		if readSize > pos {
			readSize = pos
		}
		pos -= readSize
		if _, err := f.ReadAt(buf[:readSize], pos); err != nil && err != io.EOF {
			return nil, err
		}
		chunk := append([]byte(nil), buf[:readSize]...)
		pending = append(chunk, pending...)
		newlines = strings.Count(string(pending), "\n")
	}

	text := strings.TrimSuffix(string(pending), "\n")
	if text == "" {
		return nil, nil
	}
	lines := strings.Split(text, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	collected = make([][]byte, len(lines))
	for i, l := range lines {
		collected[i] = []byte(l)
	}
	out := make([]string, len(collected))
	for i, b := range collected {
		out[i] = string(b)
	}
	return out, nil
}

// Follow streams newly appended lines from path to ch until ctx is
// cancelled, starting from the file's current end-of-file. It watches the
// file itself (not its directory) via fsnotify, and falls back to a 500ms
// poll so a missed event never wedges the stream. A truncation (Flush)
// restarts reading from offset 0; after a rotation the open handle still
// refers to the renamed file, so lines written to the new live file are not
// followed.
// Grounded on oxidepm-logs::reader::LogReader::follow.
func Follow(ctx context.Context, path string, ch chan<- string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err := watcher.Add(path); err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	offset, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return err
	}

	read := func() {
		info, err := f.Stat()
		if err != nil {
			return
		}
		if info.Size() < offset {
			// Truncated (Flush) under us; restart from 0.
			offset = 0
		}
		if info.Size() <= offset {
			return
		}
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			return
		}
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
		for scanner.Scan() {
			select {
			case ch <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		pos, _ := f.Seek(0, io.SeekCurrent)
		offset = pos
	}

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			read()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				read()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			if err != nil {
				return err
			}
		}
	}
}

const maxLineBytes = 1 << 20
