// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package ambient is a real-time compositing core for ambient installations.
//
// # Overview
//
// Background workers produce still images slowly, seconds apart. A render
// loop presents an evolving scene at 60 to 90 Hz indefinitely and never
// waits for them: it crossfades between images, overlays short-lived
// directional echoes, feeds the previous frame back as a decaying trail and
// modulates color, all driven by a few sliders in [0, 1].
//
// # Quick Start
//
//	cfg, err := config.Load("ambient.toml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	e, err := ambient.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer e.Close()
//	go e.Watch(ctx, "ambient.toml") // live slider changes
//	err = e.Run(ctx)
//
// Backends register themselves on import:
//
//	import (
//	    _ "github.com/gogpu/ambient/backend/native"
//	    _ "github.com/gogpu/ambient/backend/software"
//	)
//
// # Architecture
//
// The library is organized into:
//   - slot: the single point of exchange between producer and loop
//   - producer: bounded generation queue and publisher
//   - compositor: the render loop, its device abstraction and resources
//   - ghost, transition, uniforms: per-frame state, pure and clock-driven
//   - backend/native, backend/software: GPU and CPU devices
//   - upscale, saliency, cache, config: collaborators around the loop
//
// # Logging
//
// Nothing is logged by default. See [SetLogger].
package ambient

// Version is the current version of the library.
const Version = "0.1.0"
