// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package cache persists published images on disk so a restart can show
// something immediately, before the first new image is generated.
package cache

import (
	"errors"
	"fmt"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gogpu/ambient/bitmap"
	"github.com/gogpu/ambient/internal/logx"
)

// DefaultMaxFiles is the number of images kept by default.
const DefaultMaxFiles = 64

// filePrefix marks files written by Store. Only those are pruned.
const filePrefix = "ambient-"

// ErrNoPath is returned by Open for an empty directory path.
var ErrNoPath = errors.New("cache: no directory")

// Option configures a Dir.
type Option func(*Dir)

// WithMaxFiles bounds the number of stored images; older ones are deleted.
// Zero or negative disables pruning.
func WithMaxFiles(n int) Option {
	return func(d *Dir) { d.maxFiles = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dir) { d.log = logx.Or(l) }
}

// Dir is an image cache directory. Load and Store may be called from any
// goroutine; Store is atomic with respect to readers.
type Dir struct {
	path     string
	maxFiles int
	log      *slog.Logger
	now      func() time.Time
}

// Open creates the directory if needed.
func Open(path string, opts ...Option) (*Dir, error) {
	if path == "" {
		return nil, ErrNoPath
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}
	d := &Dir{path: path, maxFiles: DefaultMaxFiles, log: logx.Nop(), now: time.Now}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Path returns the directory path.
func (d *Dir) Path() string { return d.path }

type entry struct {
	path string
	mod  time.Time
}

// files lists the image files in the directory, newest first.
func (d *Dir) files() ([]entry, error) {
	des, err := os.ReadDir(d.path)
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}
	var out []entry
	for _, de := range des {
		if !de.Type().IsRegular() || strings.HasPrefix(de.Name(), ".") {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		path := filepath.Join(d.path, de.Name())
		if _, err := bitmap.SniffFile(path); err != nil {
			continue
		}
		out = append(out, entry{path: path, mod: info.ModTime()})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].mod.Equal(out[j].mod) {
			return out[i].mod.After(out[j].mod)
		}
		return out[i].path > out[j].path
	})
	return out, nil
}

// Load decodes up to limit images, newest first. A limit of zero or less
// loads everything. Files that fail to decode are skipped and logged.
// The caller owns the returned handles.
func (d *Dir) Load(limit int) ([]*bitmap.Handle, error) {
	files, err := d.files()
	if err != nil {
		return nil, err
	}
	var out []*bitmap.Handle
	for _, f := range files {
		if limit > 0 && len(out) >= limit {
			break
		}
		h, err := bitmap.Load(f.path)
		if err != nil {
			d.log.Warn("cache: skipping unreadable image", "path", f.path, "error", err)
			continue
		}
		out = append(out, h)
	}
	d.log.Debug("cache: loaded", "dir", d.path, "images", len(out))
	return out, nil
}

// Store writes h as a PNG. The file is written under a temporary name and
// renamed into place, so Load never sees a partial image.
func (d *Dir) Store(h *bitmap.Handle) error {
	if h == nil {
		return nil
	}
	tmp, err := os.CreateTemp(d.path, ".tmp-*.png")
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := png.Encode(tmp, h.Image()); err != nil {
		tmp.Close()
		return fmt.Errorf("cache: encode: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("cache: %w", err)
	}

	name := fmt.Sprintf("%s%d-%d.png", filePrefix, d.now().UnixNano(), h.ID())
	if err := os.Rename(tmp.Name(), filepath.Join(d.path, name)); err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	d.prune()
	return nil
}

// prune deletes the oldest stored files beyond maxFiles.
func (d *Dir) prune() {
	if d.maxFiles <= 0 {
		return
	}
	files, err := d.files()
	if err != nil {
		return
	}
	kept := 0
	for _, f := range files {
		if !strings.HasPrefix(filepath.Base(f.path), filePrefix) {
			continue
		}
		if kept++; kept <= d.maxFiles {
			continue
		}
		if err := os.Remove(f.path); err != nil {
			d.log.Warn("cache: prune failed", "path", f.path, "error", err)
		}
	}
}
