// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package producer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gogpu/ambient/bitmap"
	"github.com/gogpu/ambient/clock"
)

// ErrNoImages is returned by a DirSource whose directory holds no images.
var ErrNoImages = errors.New("producer: no images in directory")

// Source produces new images. Generate may take seconds and must return
// promptly once ctx is done.
type Source interface {
	Generate(ctx context.Context) (image.Image, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context) (image.Image, error)

// Generate calls f.
func (f SourceFunc) Generate(ctx context.Context) (image.Image, error) { return f(ctx) }

// DirSource cycles through the images in a directory, standing in for a
// slow generator. The directory is rescanned after every full cycle, so
// images dropped into it are picked up.
type DirSource struct {
	Dir   string
	Delay time.Duration // simulated generation time per image
	Clock clock.Clock

	mu    sync.Mutex
	files []string
	next  int
}

// Generate waits Delay, then decodes the next image of the cycle.
// Unreadable files are skipped.
func (s *DirSource) Generate(ctx context.Context) (image.Image, error) {
	clk := s.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	if err := clk.Sleep(ctx, s.Delay); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for attempts := 0; ; attempts++ {
		if s.next >= len(s.files) {
			files, err := ScanDir(s.Dir)
			if err != nil {
				return nil, err
			}
			s.files, s.next = files, 0
		}
		if len(s.files) == 0 || attempts > len(s.files) {
			return nil, fmt.Errorf("%w: %s", ErrNoImages, s.Dir)
		}
		path := s.files[s.next]
		s.next++
		h, err := bitmap.Load(path)
		if err != nil {
			continue
		}
		img := h.RGBA()
		h.Release()
		return img, nil
	}
}

// ScanDir returns the image files directly inside dir, sorted by name.
// Files are recognised by content, not extension.
func ScanDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("producer: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if _, err := bitmap.SniffFile(path); err == nil {
			files = append(files, path)
		}
	}
	sort.Strings(files)
	return files, nil
}
