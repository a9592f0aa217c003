package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchTargets holds callbacks that fire when reloadable sections of the
// config change. Only redaction and retention are hot-reloadable; digest and
// storage changes require a restart because they define the chain itself.
type WatchTargets struct {
	// OnRedactChange fires with the new redaction settings after
	// config.yaml is rewritten with a different redact section.
	OnRedactChange func(RedactConfig)

	// OnRetentionChange fires with the new retention window.
	OnRetentionChange func(time.Duration)
}

// Watcher monitors the config file for changes using fsnotify and applies
// hot-reloadable sections through the WatchTargets callbacks.
//
// The watcher runs a background goroutine that processes fsnotify events.
// Call Close() to stop the watcher and release resources.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	done      chan struct{}
}

// NewWatcher starts watching the config file at path. The containing
// directory is watched rather than the file itself so atomic rename-replace
// saves from editors still produce events.
func NewWatcher(path string, targets WatchTargets) (*Watcher, error) {
	last, err := Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config for watch: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watching directory %s: %w", filepath.Dir(path), err)
	}

	w := &Watcher{
		fsWatcher: fw,
		done:      make(chan struct{}),
	}
	go w.processEvents(path, last, targets)

	slog.Info("config watcher started", "path", path)
	return w, nil
}

// processEvents reads fsnotify events, reloads the config on writes to the
// watched file, and dispatches section changes. Runs in a background
// goroutine until Close() is called.
func (w *Watcher) processEvents(path string, last *Config, targets WatchTargets) {
	base := filepath.Base(path)
	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			// Only writes and creates matter; a remove or rename means the
			// file is gone and the running settings stay in effect.
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if filepath.Base(event.Name) != base {
				continue
			}

			cfg, err := Load(path)
			if err != nil {
				slog.Error("config reload failed, keeping previous settings", "error", err)
				continue
			}

			if !redactEqual(cfg.Redact, last.Redact) {
				slog.Info("redaction config changed, applying",
					"fields", len(cfg.Redact.Fields), "max_depth", cfg.Redact.MaxDepth)
				if targets.OnRedactChange != nil {
					targets.OnRedactChange(cfg.Redact)
				}
			}
			if cfg.Retention.Window != last.Retention.Window {
				slog.Info("retention window changed, applying",
					"window", time.Duration(cfg.Retention.Window).String())
				if targets.OnRetentionChange != nil {
					targets.OnRetentionChange(time.Duration(cfg.Retention.Window))
				}
			}
			last = cfg

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			slog.Error("config watcher error", "error", err)

		case <-w.done:
			return
		}
	}
}

// Close stops the watcher goroutine and releases the underlying fsnotify
// watcher. Safe to call multiple times.
func (w *Watcher) Close() error {
	select {
	case <-w.done:
		// Already closed.
		return nil
	default:
		close(w.done)
	}
	return w.fsWatcher.Close()
}

func redactEqual(a, b RedactConfig) bool {
	if a.Marker != b.Marker || a.MaxDepth != b.MaxDepth || len(a.Fields) != len(b.Fields) {
		return false
	}
	for i := range a.Fields {
		if a.Fields[i] != b.Fields[i] {
			return false
		}
	}
	return true
}
