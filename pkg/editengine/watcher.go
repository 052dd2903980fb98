package editengine

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/forgeref/forgeref/pkg/checksum"
)

// Watcher is an optional workspace watcher (SPEC_FULL.md §2.3's domain-stack
// entry for fsnotify): it proactively bumps DocumentVersions and calls
// OnChange for files edited outside of an Engine.Apply call — a teammate's
// editor, a `git checkout`, a build step regenerating a file. It never
// replaces the checksum check in preValidate; a plan built against a stale
// checksum is still rejected even if this watcher never ran. Grounded on
// the recursive-add/debounce shape of the pack's own workspace watchers
// (e.g. AleutianLocal's graph.FileWatcher), trimmed to this package's needs:
// one debounce window, one bump-and-notify callback, no change-kind taxonomy.
type Watcher struct {
	fsw      *fsnotify.Watcher
	root     string
	versions *checksum.VersionRegistry
	onChange func(path string)
	debounce time.Duration
	done     chan struct{}
}

var defaultIgnoredDirs = map[string]bool{
	".git": true, ".forgeref": true, "node_modules": true,
	"vendor": true, "target": true, "__pycache__": true,
}

// NewWatcher builds a Watcher rooted at root. onChange, if non-nil, is
// called once per changed file (relative to root) after the debounce
// window; a typical caller reopens the file with the LSP multiplexer so an
// out-of-process edit isn't served a stale diagnostic.
func NewWatcher(root string, versions *checksum.VersionRegistry, onChange func(path string)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		fsw:      fsw,
		root:     root,
		versions: versions,
		onChange: onChange,
		debounce: 200 * time.Millisecond,
		done:     make(chan struct{}),
	}, nil
}

// Start recursively registers root's directories with fsnotify and begins
// the debounce loop. ctx cancellation stops the loop the same as Close.
func (w *Watcher) Start(ctx context.Context) error {
	err := filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if defaultIgnoredDirs[d.Name()] {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
	if err != nil {
		return err
	}
	go w.loop(ctx)
	return nil
}

// Close stops the watch loop and releases the underlying fsnotify handle.
func (w *Watcher) Close() error {
	select {
	case <-w.done:
	default:
		close(w.done)
	}
	return w.fsw.Close()
}

func (w *Watcher) loop(ctx context.Context) {
	pending := map[string]bool{}
	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	flush := func() {
		for path := range pending {
			if w.versions != nil {
				w.versions.Bump(path)
			}
			if w.onChange != nil {
				w.onChange(path)
			}
		}
		pending = map[string]bool{}
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case <-w.done:
			flush()
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			rel, relErr := filepath.Rel(w.root, ev.Name)
			if relErr != nil {
				rel = ev.Name
			}
			if ev.Has(fsnotify.Create) {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					_ = w.fsw.Add(ev.Name)
					continue
				}
			}
			pending[rel] = true
		case <-ticker.C:
			if len(pending) > 0 {
				flush()
			}
		case _, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
		}
	}
}
