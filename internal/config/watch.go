package config

import (
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads Defaults from a file whenever it changes on disk.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	stopCh  chan struct{}
}

// Watch starts watching path's containing directory (matching writes
// that replace the file, which some editors do instead of an in-place
// write) and calls onChange with the freshly reloaded Defaults on every
// write event. A failed reload is logged and skipped; the watcher keeps
// running with the last-good Defaults still in effect at the caller.
func Watch(path string, onChange func(*Defaults)) (*Watcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(absPath)
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{path: absPath, watcher: fsw, stopCh: make(chan struct{})}
	go w.loop(filepath.Base(absPath), onChange)
	return w, nil
}

func (w *Watcher) loop(fileName string, onChange func(*Defaults)) {
	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != fileName {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			defaults, err := Load(w.path)
			if err != nil {
				slog.Warn("config: reload failed, keeping previous defaults", "path", w.path, "error", err)
				continue
			}
			onChange(defaults)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("config: watcher error", "error", err)
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.stopCh)
	return w.watcher.Close()
}
