package watcher

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Stryk91/lsp-mcp-bridge/logger"
)

// Mode selects how document changes are detected.
type Mode string

const (
	// ModeOff disables watching; documents resync only on tool calls.
	ModeOff Mode = "off"
	// ModeAuto prefers fsnotify and falls back to polling when the
	// platform cannot deliver events (Docker bind mounts on Windows).
	ModeAuto Mode = "auto"
	// ModeFsnotify forces native filesystem events.
	ModeFsnotify Mode = "fsnotify"
	// ModePolling forces periodic stat scans.
	ModePolling Mode = "polling"
)

// ParseMode maps a config string onto a Mode, defaulting to auto.
func ParseMode(s string) Mode {
	switch Mode(s) {
	case ModeOff, ModeFsnotify, ModePolling:
		return Mode(s)
	default:
		return ModeAuto
	}
}

type fileStamp struct {
	modTime time.Time
	size    int64
}

// DocumentWatcher keeps documents that were already pushed to a language
// server in sync with edits made outside the bridge. Each watched file's
// change triggers the resync callback with its path.
type DocumentWatcher struct {
	mode     Mode
	interval time.Duration
	resync   func(path string)

	fs *fsnotify.Watcher

	mu      sync.Mutex
	watched map[string]fileStamp
	dirs    map[string]int

	stop      chan struct{}
	closeOnce sync.Once
}

// New builds a watcher in the given mode. With ModeAuto a failed fsnotify
// setup degrades to polling instead of failing.
func New(mode Mode, interval time.Duration, resync func(path string)) (*DocumentWatcher, error) {
	if interval <= 0 {
		interval = 2 * time.Second
	}

	w := &DocumentWatcher{
		mode:     mode,
		interval: interval,
		resync:   resync,
		watched:  make(map[string]fileStamp),
		dirs:     make(map[string]int),
		stop:     make(chan struct{}),
	}

	if mode == ModeOff {
		return w, nil
	}

	if mode == ModeFsnotify || mode == ModeAuto {
		fs, err := fsnotify.NewWatcher()
		switch {
		case err == nil:
			w.fs = fs
			w.mode = ModeFsnotify
			go w.runEvents()
			return w, nil
		case mode == ModeFsnotify:
			return nil, err
		default:
			logger.Warn("fsnotify unavailable, falling back to polling:", err)
		}
	}

	w.mode = ModePolling
	go w.runPolling()

	return w, nil
}

// Mode reports the effective mode after auto-selection.
func (w *DocumentWatcher) Mode() Mode { return w.mode }

// Watch registers one file. Watching the containing directory instead of the
// file survives the rename-and-replace saves editors do.
func (w *DocumentWatcher) Watch(path string) error {
	if w.mode == ModeOff {
		return nil
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.watched[abs]; ok {
		return nil
	}
	w.watched[abs] = stampFor(abs)

	if w.fs != nil {
		dir := filepath.Dir(abs)
		w.dirs[dir]++
		if w.dirs[dir] == 1 {
			if err := w.fs.Add(dir); err != nil {
				w.dirs[dir]--
				delete(w.watched, abs)
				return err
			}
		}
	}

	return nil
}

func stampFor(path string) fileStamp {
	info, err := os.Stat(path)
	if err != nil {
		return fileStamp{}
	}
	return fileStamp{modTime: info.ModTime(), size: info.Size()}
}

func (w *DocumentWatcher) runEvents() {
	for {
		select {
		case <-w.stop:
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			abs, err := filepath.Abs(event.Name)
			if err != nil {
				continue
			}
			w.mu.Lock()
			_, watched := w.watched[abs]
			if watched {
				w.watched[abs] = stampFor(abs)
			}
			w.mu.Unlock()
			if watched {
				w.resync(abs)
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			logger.Warn("document watcher error:", err)
		}
	}
}

func (w *DocumentWatcher) runPolling() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			for _, path := range w.changedSinceLastScan() {
				w.resync(path)
			}
		}
	}
}

func (w *DocumentWatcher) changedSinceLastScan() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	var changed []string
	for path, prev := range w.watched {
		cur := stampFor(path)
		if cur != prev {
			w.watched[path] = cur
			changed = append(changed, path)
		}
	}
	return changed
}

// Close stops event delivery. Watched state is discarded.
func (w *DocumentWatcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.stop)
		if w.fs != nil {
			err = w.fs.Close()
		}
	})
	return err
}
