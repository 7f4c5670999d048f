// Package watch implements Watcher: a debounced, ignore-glob-filtered
// recursive filesystem watcher used by the Supervisor's watch task
// (spec §4.6/§4.7.9). Grounded on
// original_source/crates/oxidepm-watch/src/{watcher,debounce}.rs.
package watch

import (
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce matches spec §4.6's default coalescing window.
const DefaultDebounce = 200 * time.Millisecond

// DefaultIgnorePatterns mirrors oxidepm_core::DEFAULT_IGNORE_PATTERNS.
var DefaultIgnorePatterns = []string{
	".git", "node_modules", "target", ".oxidepm", "*.swp", "*.tmp",
}

// Event is a coalesced, filtered change notification.
type Event struct {
	Paths     []string
	Timestamp time.Time
}

// Watcher wraps fsnotify with recursive directory registration, ignore-glob
// filtering, and debouncing.
type Watcher struct {
	fs        *fsnotify.Watcher
	ignore    []string
	debouncer *Debouncer
	root      string
}

// New creates a Watcher rooted at root, with ignore glob patterns (matched
// against both the full path and each path component, same as the Rust
// watcher) and a debounce window.
func New(root string, ignore []string, debounce time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	w := &Watcher{fs: fsw, ignore: ignore, debouncer: NewDebouncer(debounce), root: root}
	if err := w.addRecursive(root); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if w.shouldIgnore(path) && path != root {
				return filepath.SkipDir
			}
			return w.fs.Add(path)
		}
		return nil
	})
}

// shouldIgnore reports whether path matches any ignore pattern, either as
// a full-path glob or against any individual path component.
func (w *Watcher) shouldIgnore(path string) bool {
	for _, pattern := range w.ignore {
		if ok, _ := filepath.Match(pattern, path); ok {
			return true
		}
		for _, part := range splitComponents(path) {
			if ok, _ := filepath.Match(pattern, part); ok {
				return true
			}
		}
	}
	return false
}

func splitComponents(path string) []string {
	var parts []string
	for {
		dir, file := filepath.Split(path)
		if file != "" {
			parts = append(parts, file)
		}
		dir = filepath.Clean(dir)
		if dir == path || dir == "." || dir == string(filepath.Separator) {
			break
		}
		path = dir
	}
	return parts
}

// Events returns a channel of debounced, filtered change events. The
// channel closes when Close is called; a background goroutine owns the
// fsnotify read loop and the debounce bookkeeping.
func (w *Watcher) Events() <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)
		for {
			select {
			case ev, ok := <-w.fs.Events:
				if !ok {
					return
				}
				if w.shouldIgnore(ev.Name) {
					continue
				}
				if ev.Op&fsnotify.Create != 0 {
					if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
						_ = w.fs.Add(ev.Name)
					}
				}
				if w.debouncer.ShouldEmit([]string{ev.Name}) {
					out <- Event{Paths: []string{ev.Name}, Timestamp: time.Now()}
				}
			case _, ok := <-w.fs.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return out
}

// Close stops the underlying fsnotify watcher.
func (w *Watcher) Close() error { return w.fs.Close() }
