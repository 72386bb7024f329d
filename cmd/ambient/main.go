// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Command ambient runs the compositor on a directory of images.
//
//	ambient -config ambient.toml
//	ambient -source ./images -backend software -snapshots ./frames -duration 30s
//	ambient -print-config > ambient.toml
//
// Slider changes in the config file apply while running.
package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"image/png"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gogpu/ambient"
	_ "github.com/gogpu/ambient/backend/native"
	_ "github.com/gogpu/ambient/backend/software"
	"github.com/gogpu/ambient/config"
)

func main() {
	var (
		configPath  = flag.String("config", "", "TOML config file (watched for slider changes)")
		backendName = flag.String("backend", "", "compositor backend: native or software (default: best available)")
		source      = flag.String("source", "", "image directory (overrides the config)")
		width       = flag.Int("width", 0, "output width (overrides the config)")
		height      = flag.Int("height", 0, "output height (overrides the config)")
		snapshots   = flag.String("snapshots", "", "write every n-th presented frame as PNG into this directory")
		every       = flag.Int("every", 90, "snapshot interval in frames")
		duration    = flag.Duration("duration", 0, "stop after this long (0 runs until interrupted)")
		statsEvery  = flag.Duration("stats", 10*time.Second, "stats log interval (0 disables)")
		printConfig = flag.Bool("print-config", false, "print the default config and exit")
	)
	flag.Parse()

	if *printConfig {
		if err := config.Default().Write(os.Stdout); err != nil {
			log.Fatal(err)
		}
		return
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			log.Fatal(err)
		}
	}
	if *backendName != "" {
		cfg.Backend = *backendName
	}
	if *source != "" {
		cfg.Producer.Source = *source
	}
	if *width > 0 {
		cfg.Width = *width
	}
	if *height > 0 {
		cfg.Height = *height
	}

	logger := ambient.NewLogger(cfg.Log, os.Stderr)
	ambient.SetLogger(logger)

	var opts []ambient.Option
	if *snapshots != "" {
		w, err := newSnapshotWriter(*snapshots, *every)
		if err != nil {
			log.Fatal(err)
		}
		opts = append(opts, ambient.WithPresenter(w.present))
	}

	e, err := ambient.New(cfg, opts...)
	if err != nil {
		log.Fatalf("ambient: %v", err)
	}
	defer e.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	if *configPath != "" {
		go func() {
			if err := e.Watch(ctx, *configPath); err != nil {
				logger.Warn("config watch stopped", "error", err)
			}
		}()
	}
	if *statsEvery > 0 {
		go logStats(ctx, e, logger, *statsEvery)
	}

	if err := e.Run(ctx); err != nil {
		e.Close()
		log.Fatalf("ambient: %v", err)
	}
	s := e.Stats()
	logger.Info("stopped", "presented", s.Loop.Presented, "transitions", s.Loop.Transitions,
		"generated", s.Producer.Generated)
}

func logStats(ctx context.Context, e *ambient.Engine, logger *slog.Logger, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s := e.Stats()
			logger.Info("stats",
				"presented", s.Loop.Presented,
				"skipped", s.Loop.Skipped,
				"late", s.Loop.LateFrames,
				"errors", s.Loop.Errors,
				"uploads", s.Loop.Uploads,
				"resident", s.Loop.Resident,
				"evictions", s.Loop.ResidencyEvictions,
				"queued", s.Producer.Queued,
				"published", s.Producer.Published)
		}
	}
}

// snapshotWriter saves every n-th frame. It runs on the loop goroutine, so
// encoding time counts against the frame budget; keep n large.
type snapshotWriter struct {
	dir   string
	every uint64
	n     atomic.Uint64
}

func newSnapshotWriter(dir string, every int) (*snapshotWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &snapshotWriter{dir: dir, every: uint64(max(every, 1))}, nil
}

func (w *snapshotWriter) present(frame *image.RGBA) error {
	n := w.n.Add(1)
	if (n-1)%w.every != 0 {
		return nil
	}
	f, err := os.Create(filepath.Join(w.dir, fmt.Sprintf("frame-%08d.png", n)))
	if err != nil {
		return err
	}
	if err := png.Encode(f, frame); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
