// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package compositor

import (
	"context"
	"time"

	"github.com/gogpu/ambient/clock"
)

// DefaultFrameRate is the target presentation rate in Hz.
const DefaultFrameRate = 90

// maxBehindFrames is how many budgets the loop may lag before the pacer
// gives up catching up and re-anchors on the current time.
const maxBehindFrames = 3

// pacer sleeps out the remainder of each frame budget. Deadlines advance by
// exactly one budget per frame so sleep overshoot does not accumulate.
type pacer struct {
	clock  clock.Clock
	budget time.Duration
	next   time.Time
}

func newPacer(c clock.Clock, frameRate float64) *pacer {
	if frameRate <= 0 {
		frameRate = DefaultFrameRate
	}
	return &pacer{
		clock:  c,
		budget: time.Duration(float64(time.Second) / frameRate),
	}
}

func (p *pacer) reset() {
	p.next = p.clock.Now().Add(p.budget)
}

// wait sleeps until the current deadline and schedules the next one. It
// reports whether the frame was late enough to force a re-anchor.
func (p *pacer) wait(ctx context.Context) (late bool, err error) {
	if p.next.IsZero() {
		p.reset()
	}
	if d := p.next.Sub(p.clock.Now()); d > 0 {
		if err := p.clock.Sleep(ctx, d); err != nil {
			return false, err
		}
	}
	p.next = p.next.Add(p.budget)

	now := p.clock.Now()
	if now.Sub(p.next) > maxBehindFrames*p.budget {
		p.next = now.Add(p.budget)
		return true, nil
	}
	return false, nil
}
