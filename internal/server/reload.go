package server

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ReloadDebounce is the quiet period after the last write before reloading.
const ReloadDebounce = 500 * time.Millisecond

// Reloadable is re-read when its backing file changes.
type Reloadable interface {
	ReloadPolicy() error
}

// Reloader watches the policy file and triggers hot-reload.
type Reloader struct {
	watcher *fsnotify.Watcher
	target  Reloadable
	logger  *zap.Logger
	files   map[string]bool
}

// NewReloader watches the directories holding paths, so editors that replace
// the file on save are still seen. Empty paths are skipped.
func NewReloader(target Reloadable, paths []string, logger *zap.Logger) (*Reloader, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	files := make(map[string]bool)
	for _, p := range paths {
		if p == "" {
			continue
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			watcher.Close()
			return nil, fmt.Errorf("failed to resolve %q: %w", p, err)
		}
		dir := filepath.Dir(abs)
		if _, err := os.Stat(dir); err != nil {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			return nil, fmt.Errorf("failed to watch %q: %w", dir, err)
		}
		files[abs] = true
	}

	return &Reloader{watcher: watcher, target: target, logger: logger, files: files}, nil
}

// Run watches for file changes and reloads. Blocks until ctx is cancelled.
func (r *Reloader) Run(ctx context.Context) error {
	defer r.watcher.Close()

	var debounce *time.Timer
	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case event, ok := <-r.watcher.Events:
			if !ok {
				return nil
			}
			if !r.files[filepath.Clean(event.Name)] {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(ReloadDebounce, r.reload)
			}

		case err, ok := <-r.watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("file watcher error", zap.Error(err))
		}
	}
}

func (r *Reloader) reload() {
	if err := r.target.ReloadPolicy(); err != nil {
		r.logger.Error("hot-reload failed, keeping previous policy", zap.Error(err))
		return
	}
	r.logger.Info("hot-reload: policy reloaded")
}
