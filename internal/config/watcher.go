package config

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Watcher polls the config file and reports edits through a callback, so
// volume, language, and footer changes apply without a restart. It compares
// content hashes, not just timestamps: [SaveVolume] rewrites the same file,
// and a rewrite that changes nothing must not trigger a reload.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(old, new *Config)

	current  atomic.Pointer[Config]
	stop     chan struct{}
	stopOnce sync.Once

	mu   sync.Mutex
	seen fingerprint
}

// fingerprint identifies one observed state of the config file.
type fingerprint struct {
	mtime time.Time
	sum   [sha256.Size]byte
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. The default is 10 seconds.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher loads the config file once, then polls it in a background
// goroutine until [Watcher.Stop]. The initial load failing is an error;
// later load failures keep the previous config and log a warning.
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: 10 * time.Second,
		onChange: onChange,
		stop:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, fp, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	w.current.Store(cfg)
	w.seen = fp

	go w.run()
	return w, nil
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config {
	return w.current.Load()
}

// Stop ends the polling goroutine. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
}

func (w *Watcher) run() {
	tick := time.NewTicker(w.interval)
	defer tick.Stop()
	for {
		select {
		case <-w.stop:
			return
		case <-tick.C:
			w.scan()
		}
	}
}

// scan reloads the file when it looks modified and publishes the new config
// when its content actually differs and parses cleanly.
func (w *Watcher) scan() {
	info, err := os.Stat(w.path)
	if err != nil {
		slog.Warn("config watcher: stat failed", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	unchanged := info.ModTime().Equal(w.seen.mtime)
	w.mu.Unlock()
	if unchanged {
		return
	}

	cfg, fp, err := w.read()
	if err != nil {
		slog.Warn("config watcher: reload failed, keeping previous config",
			"path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	sameContent := fp.sum == w.seen.sum
	w.seen = fp
	w.mu.Unlock()
	if sameContent {
		// Rewritten with identical content, e.g. a redundant volume save.
		return
	}

	old := w.current.Swap(cfg)
	slog.Info("config watcher: configuration reloaded", "path", w.path)
	if w.onChange != nil {
		w.onChange(old, cfg)
	}
}

// read loads and validates the file and fingerprints the bytes it parsed.
func (w *Watcher) read() (*Config, fingerprint, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return nil, fingerprint{}, err
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, fingerprint{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fingerprint{}, err
	}
	return cfg, fingerprint{mtime: info.ModTime(), sum: sha256.Sum256(data)}, nil
}
