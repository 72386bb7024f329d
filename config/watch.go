// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/gogpu/ambient/internal/logx"
)

// DefaultDebounce coalesces the bursts of events editors produce on save.
const DefaultDebounce = 100 * time.Millisecond

// Watcher reloads a config file when it changes.
//
// The parent directory is watched rather than the file, so saves that
// replace the file (write to a temporary name, then rename) are seen.
type Watcher struct {
	path     string
	debounce time.Duration
	log      *slog.Logger
}

// NewWatcher creates a watcher for the file at path.
func NewWatcher(path string, log *slog.Logger) *Watcher {
	return &Watcher{path: filepath.Clean(path), debounce: DefaultDebounce, log: logx.Or(log)}
}

// Run calls onChange with every successfully reloaded configuration until
// ctx is done. A file that fails to parse is logged and ignored, keeping
// the previous configuration in effect.
func (w *Watcher) Run(ctx context.Context, onChange func(Config)) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: watch: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("config: watch %s: %w", w.path, err)
	}
	w.log.Debug("config: watching", "path", w.path)

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				w.log.Warn("config: watch overflow, reloading", "path", w.path)
				w.reload(onChange)
				continue
			}
			w.log.Warn("config: watch error", "error", err)

		case <-fire:
			fire = nil
			w.reload(onChange)
		}
	}
}

func (w *Watcher) reload(onChange func(Config)) {
	c, err := Load(w.path)
	if err != nil {
		w.log.Warn("config: reload failed, keeping previous", "error", err)
		return
	}
	w.log.Info("config: reloaded", "path", w.path)
	onChange(c)
}
