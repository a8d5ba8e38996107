package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Event is a reload of the watched config file. Exactly one of Config and
// Err is set.
type Event struct {
	Path   string
	Config *Config
	Err    error
}

// Watcher reloads a config file when it changes on disk.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	events   chan Event
	debounce time.Duration
	overlays []func(*Config)
}

// NewWatcher creates a watcher for the config file at path. The parent
// directory is watched so that editors replacing the file by rename are
// picked up. Overlays are applied to every reloaded config as in Resolve.
func NewWatcher(path string, overlays ...func(*Config)) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving config path: %w", err)
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	return &Watcher{
		path:     abs,
		watcher:  fsWatcher,
		events:   make(chan Event, 4),
		debounce: 250 * time.Millisecond,
		overlays: overlays,
	}, nil
}

// Events returns the channel that receives reload events. It is closed
// when the watcher stops.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Start begins watching. The watcher stops when ctx is done or Stop is
// called.
func (w *Watcher) Start(ctx context.Context) error {
	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	go w.run(ctx)
	return nil
}

// Stop closes the underlying fsnotify watcher.
func (w *Watcher) Stop() error {
	return w.watcher.Close()
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.events)

	var pending time.Time
	ticker := time.NewTicker(w.debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				pending = time.Now()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.emit(ctx, Event{Path: w.path, Err: err})

		case <-ticker.C:
			if pending.IsZero() || time.Since(pending) < w.debounce {
				continue
			}
			pending = time.Time{}
			w.emit(ctx, w.reload())
		}
	}
}

func (w *Watcher) reload() Event {
	cfg, err := Load(w.path)
	if err == nil {
		for _, overlay := range w.overlays {
			overlay(cfg)
		}
		err = cfg.finish()
	}
	if err != nil {
		return Event{Path: w.path, Err: fmt.Errorf("reloading %s: %w", w.path, err)}
	}
	return Event{Path: w.path, Config: cfg}
}

func (w *Watcher) emit(ctx context.Context, ev Event) {
	select {
	case w.events <- ev:
	case <-ctx.Done():
	}
}
