package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Watcher keeps a config file loaded and reapplies it when its contents
// change. A file that fails to parse or validate never replaces the current
// config.
type Watcher struct {
	path     string
	interval time.Duration
	environ  map[string]string
	onChange func(ConfigDiff, *Config)

	mu      sync.Mutex
	current *Config
	loaded  fileState // file behind current
}

// fileState identifies one version of the file on disk.
type fileState struct {
	mod time.Time
	sum [sha256.Size]byte
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets how often the file is checked. Defaults to 5s.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithEnvironment replaces the process environment used for the overlay.
func WithEnvironment(environ map[string]string) WatcherOption {
	return func(w *Watcher) { w.environ = environ }
}

// Watch loads the config at path and checks it for changes until ctx is done.
// onChange may be nil; it runs on the watching goroutine after each reload
// whose [ConfigDiff] reports a change.
func Watch(ctx context.Context, path string, onChange func(ConfigDiff, *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{path: path, interval: 5 * time.Second, onChange: onChange}
	for _, opt := range opts {
		opt(w)
	}

	cfg, st, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	w.current, w.loaded = cfg, st

	go w.run(ctx)
	return w, nil
}

// Current returns the config from the last successful load.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Reload reads the file now and applies it if the bytes differ from the last
// successful load. On error the current config is kept.
func (w *Watcher) Reload() (ConfigDiff, error) {
	cfg, st, err := w.read()
	if err != nil {
		return ConfigDiff{}, err
	}

	w.mu.Lock()
	old := w.current
	same := st.sum == w.loaded.sum
	w.loaded = st
	if !same {
		w.current = cfg
	}
	w.mu.Unlock()
	if same {
		return ConfigDiff{}, nil
	}

	d := Diff(old, cfg)
	if !d.Changed() {
		return d, nil
	}
	slog.Info("config: reloaded", "path", w.path, "log_level", d.LogLevelChanged, "bot", d.BotChanged)
	if len(d.RestartRequired) > 0 {
		slog.Warn("config: changes take effect after a restart", "sections", d.RestartRequired)
	}
	if w.onChange != nil {
		w.onChange(d, cfg)
	}
	return d, nil
}

func (w *Watcher) run(ctx context.Context) {
	t := time.NewTicker(w.interval)
	defer t.Stop()

	// rejected is the mod time of a version that failed to load, so it is
	// reported once rather than on every tick.
	var rejected time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}

		info, err := os.Stat(w.path)
		if err != nil {
			slog.Debug("config: stat", "path", w.path, "err", err)
			continue
		}
		mod := info.ModTime()
		w.mu.Lock()
		unchanged := mod.Equal(w.loaded.mod)
		w.mu.Unlock()
		if unchanged || mod.Equal(rejected) {
			continue
		}

		if _, err := w.Reload(); err != nil {
			rejected = mod
			slog.Warn("config: keeping previous config", "path", w.path, "err", err)
		}
	}
}

func (w *Watcher) read() (*Config, fileState, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return nil, fileState{}, err
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, fileState{}, err
	}
	cfg, err := parse(bytes.NewReader(data), w.environ)
	if err != nil {
		return nil, fileState{}, err
	}
	return cfg, fileState{mod: info.ModTime(), sum: sha256.Sum256(data)}, nil
}
