// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package compositor

import (
	"log/slog"
	"time"
)

// DefaultMaxInFlight bounds the submissions the GPU may be working on.
const DefaultMaxInFlight = 3

type pendingSubmission struct {
	sub    Submission
	serial uint64
}

// inflight is the FIFO of submitted frames. Every submission gets a serial;
// completed is the highest serial known to be finished, which lets evicted
// resources be destroyed safely.
type inflight struct {
	limit     int
	queue     []pendingSubmission
	submitted uint64
	completed uint64
	log       *slog.Logger
}

func newInflight(limit int, log *slog.Logger) *inflight {
	if limit < 1 {
		limit = DefaultMaxInFlight
	}
	return &inflight{limit: limit, queue: make([]pendingSubmission, 0, limit), log: log}
}

func (f *inflight) push(sub Submission) {
	f.submitted++
	f.queue = append(f.queue, pendingSubmission{sub: sub, serial: f.submitted})
}

func (f *inflight) len() int { return len(f.queue) }

// poll retires finished submissions from the front without blocking.
func (f *inflight) poll() {
	for len(f.queue) > 0 {
		done, err := f.queue[0].sub.Wait(0)
		if err != nil {
			f.log.Warn("compositor: submission failed", "serial", f.queue[0].serial, "error", err)
		} else if !done {
			return
		}
		f.retireOldest()
	}
}

// reserve makes room for one more submission, waiting up to timeout for the
// oldest one if the limit is reached. It reports whether it had to wait and
// whether room is available.
func (f *inflight) reserve(timeout time.Duration) (waited, ok bool) {
	f.poll()
	if len(f.queue) < f.limit {
		return false, true
	}
	done, err := f.queue[0].sub.Wait(timeout)
	if err != nil {
		f.log.Warn("compositor: submission failed", "serial", f.queue[0].serial, "error", err)
		f.retireOldest()
		return true, true
	}
	if !done {
		return true, false
	}
	f.retireOldest()
	return true, true
}

// drain waits for every submission, giving each up to timeout. Submissions
// that do not finish in time are abandoned.
func (f *inflight) drain(timeout time.Duration) {
	for len(f.queue) > 0 {
		done, err := f.queue[0].sub.Wait(timeout)
		if err != nil || !done {
			f.log.Warn("compositor: abandoning unfinished submission",
				"serial", f.queue[0].serial, "error", err)
		}
		f.retireOldest()
	}
	f.completed = f.submitted
}

func (f *inflight) retireOldest() {
	p := f.queue[0]
	p.sub.Release()
	f.completed = p.serial
	copy(f.queue, f.queue[1:])
	f.queue[len(f.queue)-1] = pendingSubmission{}
	f.queue = f.queue[:len(f.queue)-1]
}
