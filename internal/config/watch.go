package config

import (
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads Config from its source file whenever the file changes,
// applying the update in place via ReplaceFrom so every holder of the
// *Config pointer sees the new values on its next read (for example the
// Server's origin allow-list and per-connection rate limits). Values copied
// out at startup, such as the agent defaults each connection's AgentConfig
// is resolved from, are not refreshed.
type Watcher struct {
	watcher *fsnotify.Watcher
	path    string
	cfg     *Config
	done    chan struct{}
}

// NewWatcher starts watching path's parent directory — matching editors
// that replace-then-rename on save, which a direct file watch would miss.
func NewWatcher(path string, cfg *Config) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, err
	}
	w := &Watcher{watcher: fw, path: path, cfg: cfg, done: make(chan struct{})}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			reloaded, err := Load(w.path)
			if err != nil {
				slog.Warn("config: reload failed, keeping previous config", "path", w.path, "error", err)
				continue
			}
			w.cfg.ReplaceFrom(reloaded)
			slog.Info("config: reloaded from disk", "path", w.path)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("config: watcher error", "error", err)
		}
	}
}

// Stop closes the underlying filesystem watcher.
func (w *Watcher) Stop() error {
	return w.watcher.Close()
}
