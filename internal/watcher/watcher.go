// Package watcher re-triggers discovery when the MCP configuration file
// changes on disk. Events are debounced and editor artifacts (swap and
// backup files) are filtered out.
package watcher

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"

	"github.com/deanluus/mcpscan/internal/logger"
)

type Config struct {
	// Path is the configuration file to watch.
	Path     string
	Debounce time.Duration
	// Ignore are doublestar patterns matched against event base names.
	Ignore []string
}

func DefaultConfig(path string) Config {
	return Config{
		Path:     path,
		Debounce: 300 * time.Millisecond,
		Ignore: []string{
			"*.swp",
			"*.swx",
			"*~",
			".#*",
			"4913", // vim's write-permission probe
		},
	}
}

type Watcher struct {
	cfg       Config
	fsWatcher *fsnotify.Watcher
	debouncer *Debouncer
	onChange  func()
	log       *slog.Logger
}

// New watches the parent directory of cfg.Path, since editors replace
// files rather than writing in place and in-place watches go stale.
func New(cfg Config, onChange func()) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "create watcher")
	}

	w := &Watcher{
		cfg:       cfg,
		fsWatcher: fsWatcher,
		onChange:  onChange,
		log:       logger.ForComponent("watcher"),
	}
	w.debouncer = NewDebouncer(cfg.Debounce, func([]string) { onChange() })

	dir := filepath.Dir(cfg.Path)
	if err := fsWatcher.Add(dir); err != nil {
		fsWatcher.Close()
		return nil, errors.Wrapf(err, "watch %s", dir)
	}

	return w, nil
}

// Run processes events until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.Close()

	target, err := filepath.Abs(w.cfg.Path)
	if err != nil {
		return errors.Wrap(err, "resolve watch path")
	}

	w.log.Info("watching configuration", "path", target)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event, target) {
				continue
			}
			w.log.Debug("config changed", "path", event.Name, "op", event.Op.String())
			w.debouncer.Add(event.Name)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", "error", err)
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event, target string) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return false
	}

	name := filepath.Base(event.Name)
	for _, pattern := range w.cfg.Ignore {
		if ok, _ := doublestar.Match(pattern, name); ok {
			return false
		}
	}

	abs, err := filepath.Abs(event.Name)
	if err != nil {
		return false
	}
	return abs == target
}

func (w *Watcher) Close() error {
	w.debouncer.Stop()
	return w.fsWatcher.Close()
}
