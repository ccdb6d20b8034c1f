// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Watcher polls configuration files for modification and reloads on
// change. serve uses it to retune the quality loop without a restart.
type Watcher struct {
	mu        sync.RWMutex
	paths     []string
	interval  time.Duration
	modTimes  map[string]time.Time
	config    *Config
	listeners []func(*Config)
	stopCh    chan struct{}
	doneCh    chan struct{}
	logger    *slog.Logger
}

// WatcherOption configures the watcher.
type WatcherOption func(*Watcher)

// WithWatchInterval sets the polling interval.
func WithWatchInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithWatchLogger sets the watcher logger.
func WithWatchLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// NewWatcher loads the configuration once and prepares to watch the
// given paths. The first path is the file passed to Load on reload.
func NewWatcher(paths []string, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		paths:    paths,
		interval: time.Second,
		modTimes: make(map[string]time.Time),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}

	for _, path := range paths {
		if info, err := os.Stat(path); err == nil {
			w.modTimes[path] = info.ModTime()
		}
	}

	cfg, err := w.load()
	if err != nil {
		return nil, err
	}
	w.config = cfg
	return w, nil
}

// OnChange registers a callback invoked after each successful reload.
func (w *Watcher) OnChange(fn func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listeners = append(w.listeners, fn)
}

// Config returns the most recently loaded configuration.
func (w *Watcher) Config() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.config
}

// Start begins polling until ctx is canceled or Stop is called.
func (w *Watcher) Start(ctx context.Context) {
	go w.watch(ctx)
}

// Stop halts polling and waits for the watch goroutine to exit.
func (w *Watcher) Stop() {
	close(w.stopCh)
	<-w.doneCh
}

func (w *Watcher) watch(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			if w.changed() {
				w.reload()
			}
		}
	}
}

// changed reports whether any watched file has a newer mtime than last
// seen. Missing files are skipped; they may re-appear later.
func (w *Watcher) changed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	dirty := false
	for _, path := range w.paths {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		last, seen := w.modTimes[path]
		if !seen || info.ModTime().After(last) {
			w.modTimes[path] = info.ModTime()
			dirty = true
		}
	}
	return dirty
}

func (w *Watcher) reload() {
	cfg, err := w.load()
	if err != nil {
		w.logger.Error("config reload failed", "error", err)
		return
	}

	w.mu.Lock()
	w.config = cfg
	listeners := make([]func(*Config), len(w.listeners))
	copy(listeners, w.listeners)
	w.mu.Unlock()

	w.logger.Info("config reloaded", "paths", len(w.paths))
	for _, fn := range listeners {
		fn(cfg)
	}
}

// load reads the primary path, or defaults when the file is absent (it
// may not have been created yet, or was removed mid-run).
func (w *Watcher) load() (*Config, error) {
	if len(w.paths) > 0 {
		if _, err := os.Stat(w.paths[0]); err == nil {
			return Load(w.paths[0])
		}
	}
	return Load("")
}

// WatchConfig builds a watcher for configPath plus any profile overlays
// sitting next to it (config.dev.yaml and friends) and starts it.
func WatchConfig(ctx context.Context, configPath string, opts ...WatcherOption) (*Watcher, *Config, error) {
	var paths []string
	if configPath != "" {
		paths = append(paths, configPath)

		ext := filepath.Ext(configPath)
		stem := configPath[:len(configPath)-len(ext)]
		for _, profile := range []string{"dev", "prod", "staging", "local"} {
			overlay := stem + "." + profile + ext
			if _, err := os.Stat(overlay); err == nil {
				paths = append(paths, overlay)
			}
		}
	}

	w, err := NewWatcher(paths, opts...)
	if err != nil {
		return nil, nil, err
	}
	w.Start(ctx)
	return w, w.Config(), nil
}
