package ingest

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

type WatchConfig struct {
	Root        string        // inbox directory; watched non-recursively
	Exclude     []string      // directories under Root whose events are ignored (archives)
	InitialScan bool          // if true, emit files already in Root (mtime order) before live events
	Debounce    time.Duration // coalesce rapid create/write/rename bursts per path
	Logger      *slog.Logger
}

// StartWatcher emits the paths of supported, regular, non-hidden files that appear in
// cfg.Root. Both channels close when ctx is cancelled.
func StartWatcher(ctx context.Context, cfg WatchConfig) (<-chan string, <-chan error, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Root == "" {
		logger.Error("watcher.start.failed", "error", "no root provided")
		return nil, nil, errors.New("no root provided")
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, nil, err
	}
	excluded := make(map[string]struct{}, len(cfg.Exclude))
	for _, d := range cfg.Exclude {
		if abs, err := filepath.Abs(d); err == nil {
			excluded[abs] = struct{}{}
		}
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Error("watcher.create.failed", "error", err)
		return nil, nil, err
	}
	if err := w.Add(root); err != nil {
		logger.Error("watcher.add.failed", "root", root, "error", err)
		_ = w.Close()
		return nil, nil, err
	}

	evCh := make(chan string, 256)
	errCh := make(chan error, 1)

	var initial []string
	if cfg.InitialScan {
		initial, _, err = ScanDirectory(root)
		if err != nil {
			_ = w.Close()
			return nil, nil, err
		}
	}

	go func() {
		defer close(evCh)
		defer close(errCh)
		defer func() {
			if err := w.Close(); err != nil {
				logger.Warn("watcher.close.failed", "error", err)
			}
		}()

		emit := func(p string) bool {
			select {
			case evCh <- p:
				return true
			case <-ctx.Done():
				return false
			}
		}
		for _, p := range initial {
			if !emit(p) {
				return
			}
		}

		// order keeps arrival order within a debounce window; seen dedups it
		var order []string
		seen := map[string]struct{}{}
		timer := time.NewTimer(time.Hour)
		timer.Stop()
		defer timer.Stop()

		flush := func() bool {
			batch := order
			order = nil
			clear(seen)
			for _, p := range batch {
				if !eligible(p) {
					continue
				}
				if !emit(p) {
					return false
				}
			}
			return true
		}

		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-w.Events:
				if !ok {
					return
				}
				if e.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
					continue
				}
				if _, skip := excluded[filepath.Clean(e.Name)]; skip || filepath.Dir(filepath.Clean(e.Name)) != root {
					continue
				}
				if !candidate(e.Name) {
					continue
				}
				if _, dup := seen[e.Name]; !dup {
					seen[e.Name] = struct{}{}
					order = append(order, e.Name)
				}
				if cfg.Debounce > 0 {
					timer.Reset(cfg.Debounce)
				} else if !flush() {
					return
				}
			case <-timer.C:
				if !flush() {
					return
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Error("watcher.error", "error", err)
				select {
				case errCh <- err:
				default:
				}
			}
		}
	}()

	return evCh, errCh, nil
}

// eligible is checked at emit time: renames fire for the old name too, and
// the archiver's own moves leave nothing behind.
func eligible(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.Mode().IsRegular()
}
