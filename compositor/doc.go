// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package compositor implements the real-time render loop.
//
// A Loop owns every piece of per-frame state: the transition tracker, the
// ghost tap pool, texture residency, the feedback texture pair and the queue
// of in-flight submissions. It talks to the outside world through exactly two
// shared objects, the image slot it polls and the ParamStore it reads once
// per tick, so it needs no locking of its own.
//
// Each tick runs, in order:
//
//  1. poll the slot generation and start a transition on new content
//  2. compute the uniform frame
//  3. update the ghost taps
//  4. upload the current, previous and aux images if their identity changed
//  5. encode one composite pass into the output texture
//  6. copy the output into the feedback write texture and swap roles
//  7. present
//
// Run adds a scheduler yield and a drift-corrected sleep to the frame budget
// after every tick.
//
// Drawing is delegated to a Device. The backend/software and backend/native
// packages provide CPU and GPU implementations.
//
// # Failures
//
// Missing images, an unsized surface and textures that were never uploaded
// skip the tick and are retried on the next one. A failed upload is logged
// and the previously bound texture stays in use. Encode, submit and present
// errors are logged and counted; the loop keeps running. Only New can fail
// for good.
package compositor
