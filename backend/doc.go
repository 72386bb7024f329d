// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package backend selects the compositor device at runtime.
//
// Device packages register a factory from their init function:
//
//	import _ "github.com/gogpu/ambient/backend/software"
//	import _ "github.com/gogpu/ambient/backend/native"
//
// # Backend Selection
//
// Use Open to request a device by name, or OpenDefault to take the best
// available one:
//
//	dev, name, err := backend.OpenDefault(backend.Options{Width: 1280, Height: 720})
//
// OpenDefault tries backends in priority order (native, then software) and
// falls back to the next one when a factory fails, for example on a machine
// without a usable GPU.
package backend
