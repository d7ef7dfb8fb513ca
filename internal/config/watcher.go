package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// OverlayWatcher watches the blocklist and redaction overlay files named in
// a Config's OverlaysConfig and re-applies them on every debounced edit.
// Skill sandbox policies are never watched here: they are immutable for the
// lifetime of a mounted skill, by design.
type OverlayWatcher struct {
	cfg      *Config
	logger   *slog.Logger
	debounce time.Duration
	onReload func(path string, err error)

	watcher    *fsnotify.Watcher
	running    atomic.Bool
	reloadChan chan string

	mu    sync.Mutex
	stats WatcherStats
}

// WatcherStats tracks reload outcomes for diagnostics.
type WatcherStats struct {
	ReloadsTotal   int64
	ReloadsSuccess int64
	ReloadsFailed  int64
	LastReload     time.Time
	LastError      string
}

// WatcherOptions configures NewOverlayWatcher.
type WatcherOptions struct {
	Debounce time.Duration
	Logger   *slog.Logger
	// OnReload, if set, is called after every reload attempt (err is nil on
	// success).
	OnReload func(path string, err error)
}

// NewOverlayWatcher builds a watcher over cfg's overlay files. Call Start to
// begin watching; cfg.ApplyOverlays should be called once before Start so
// the process starts with the overlays already applied.
func NewOverlayWatcher(cfg *Config, opts WatcherOptions) *OverlayWatcher {
	debounce := opts.Debounce
	if debounce == 0 {
		debounce = 100 * time.Millisecond
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &OverlayWatcher{
		cfg:        cfg,
		logger:     logger,
		debounce:   debounce,
		onReload:   opts.OnReload,
		reloadChan: make(chan string, 16),
	}
}

// watchedPaths returns the configured overlay paths, skipping empty ones.
func (w *OverlayWatcher) watchedPaths() []string {
	var paths []string
	if w.cfg.Overlays.BlocklistPatternsPath != "" {
		paths = append(paths, w.cfg.Overlays.BlocklistPatternsPath)
	}
	if w.cfg.Overlays.RedactionPatternsPath != "" {
		paths = append(paths, w.cfg.Overlays.RedactionPatternsPath)
	}
	return paths
}

// Start begins watching the configured overlay files. It is a no-op
// returning nil if neither overlay path is configured.
func (w *OverlayWatcher) Start(ctx context.Context) error {
	paths := w.watchedPaths()
	if len(paths) == 0 {
		return nil
	}
	if !w.running.CompareAndSwap(false, true) {
		return fmt.Errorf("overlay watcher already running")
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		w.running.Store(false)
		return fmt.Errorf("creating watcher: %w", err)
	}
	w.watcher = fw

	// fsnotify watches directories, not individual files, so editors that
	// replace-by-rename still surface an event.
	dirs := map[string]struct{}{}
	for _, p := range paths {
		dirs[filepath.Dir(p)] = struct{}{}
	}
	for dir := range dirs {
		if err := fw.Add(dir); err != nil {
			fw.Close()
			w.running.Store(false)
			return fmt.Errorf("watching %s: %w", dir, err)
		}
	}

	watched := map[string]struct{}{}
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			abs = p
		}
		watched[abs] = struct{}{}
	}

	go w.processEvents(ctx, watched)
	go w.processReloads(ctx)
	return nil
}

func (w *OverlayWatcher) processEvents(ctx context.Context, watched map[string]struct{}) {
	pending := make(map[string]time.Time)
	ticker := time.NewTicker(25 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			abs, err := filepath.Abs(event.Name)
			if err != nil {
				abs = event.Name
			}
			if _, ok := watched[abs]; !ok {
				continue
			}
			pending[abs] = time.Now()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("overlay watcher error", "error", err)

		case <-ticker.C:
			now := time.Now()
			for path, last := range pending {
				if now.Sub(last) >= w.debounce {
					delete(pending, path)
					select {
					case w.reloadChan <- path:
					default:
						w.logger.Warn("overlay reload channel full, dropping reload", "path", path)
					}
				}
			}

		case <-ctx.Done():
			return
		}
	}
}

func (w *OverlayWatcher) processReloads(ctx context.Context) {
	for {
		select {
		case <-w.reloadChan:
			w.reload()
		case <-ctx.Done():
			return
		}
	}
}

// reload re-applies both overlays. The overlay data model doesn't
// distinguish which file changed worth special-casing: re-applying both is
// cheap and keeps the two overlays consistent with each other.
func (w *OverlayWatcher) reload() {
	w.mu.Lock()
	w.stats.ReloadsTotal++
	w.mu.Unlock()

	err := w.cfg.ApplyOverlays()

	w.mu.Lock()
	if err != nil {
		w.stats.ReloadsFailed++
		w.stats.LastError = err.Error()
	} else {
		w.stats.ReloadsSuccess++
		w.stats.LastReload = time.Now()
	}
	w.mu.Unlock()

	if err != nil {
		w.logger.Warn("overlay reload failed, keeping previous overlay", "error", err)
	} else {
		w.logger.Info("overlay reload applied")
	}
	if w.onReload != nil {
		w.onReload("", err)
	}
}

// Stop stops the watcher. Safe to call even if Start was never called.
func (w *OverlayWatcher) Stop() error {
	if !w.running.CompareAndSwap(true, false) {
		return nil
	}
	if w.watcher != nil {
		return w.watcher.Close()
	}
	return nil
}

// Stats returns a snapshot of reload statistics.
func (w *OverlayWatcher) Stats() WatcherStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}
