// Package watch merges OS file notifications and periodic polling into a
// single directory-activity callback. Consumers get "something changed,
// here is the filename" and nothing else; whether the signal came from
// inotify or a poll tick is deliberately hidden.
package watch

import (
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DirWatcher watches at most one directory at a time. Activity is reported
// as the base name of the file that changed. Polling backstops fsnotify on
// filesystems that drop events (network mounts, some containers).
type DirWatcher struct {
	mu         sync.Mutex
	fsw        *fsnotify.Watcher
	dir        string
	lastMod    time.Time
	onActivity func(filename string)
	done       chan struct{}
	closeOnce  sync.Once
}

// NewDirWatcher starts a watcher delivering activity to onActivity from a
// background goroutine. If the OS notification facility is unavailable the
// watcher degrades to polling alone.
func NewDirWatcher(pollInterval time.Duration, onActivity func(filename string)) *DirWatcher {
	w := &DirWatcher{
		onActivity: onActivity,
		done:       make(chan struct{}),
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("fsnotify unavailable, falling back to polling: %v", err)
	} else {
		w.fsw = fsw
	}

	if pollInterval <= 0 {
		pollInterval = 30 * time.Second
	}
	go w.run(pollInterval)
	return w
}

// Watch switches the watcher to dir, replacing any previous directory.
func (w *DirWatcher) Watch(dir string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.fsw != nil {
		if w.dir != "" && w.dir != dir {
			_ = w.fsw.Remove(w.dir)
		}
		if dir != "" && dir != w.dir {
			if err := w.fsw.Add(dir); err != nil {
				return err
			}
		}
	}
	w.dir = dir
	w.lastMod = time.Now()
	return nil
}

// Close stops the watcher. Idempotent.
func (w *DirWatcher) Close() {
	w.closeOnce.Do(func() {
		close(w.done)
		if w.fsw != nil {
			_ = w.fsw.Close()
		}
	})
}

func (w *DirWatcher) run(pollInterval time.Duration) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var events chan fsnotify.Event
	var errors chan error
	if w.fsw != nil {
		events = w.fsw.Events
		errors = w.fsw.Errors
	}

	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
				w.emit(filepath.Base(ev.Name))
			}
		case err, ok := <-errors:
			if !ok {
				errors = nil
				continue
			}
			log.Printf("watch error: %v", err)
		case <-ticker.C:
			w.pollOnce()
		}
	}
}

// pollOnce scans the watched directory for files modified since the last
// observation and emits the newest one.
func (w *DirWatcher) pollOnce() {
	w.mu.Lock()
	dir := w.dir
	last := w.lastMod
	w.mu.Unlock()

	if dir == "" {
		return
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	var newest string
	var newestMod time.Time
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(last) && info.ModTime().After(newestMod) {
			newestMod = info.ModTime()
			newest = e.Name()
		}
	}
	if newest == "" {
		return
	}

	w.mu.Lock()
	if newestMod.After(w.lastMod) {
		w.lastMod = newestMod
	}
	w.mu.Unlock()
	w.emit(newest)
}

func (w *DirWatcher) emit(filename string) {
	select {
	case <-w.done:
		return
	default:
	}
	if w.onActivity != nil {
		w.onActivity(filename)
	}
}
