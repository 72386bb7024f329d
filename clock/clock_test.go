// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package clock

import (
	"context"
	"testing"
	"time"
)

func TestMockAdvance(t *testing.T) {
	start := time.Unix(1000, 0)
	m := NewMock(start)
	if !m.Now().Equal(start) {
		t.Fatalf("Now() = %v, want %v", m.Now(), start)
	}
	m.Advance(750 * time.Millisecond)
	if got := m.Now().Sub(start); got != 750*time.Millisecond {
		t.Errorf("elapsed = %v, want 750ms", got)
	}
	m.Set(start)
	if !m.Now().Equal(start) {
		t.Errorf("Set did not reset time")
	}
}

func TestRealMonotonic(t *testing.T) {
	var c Clock = Real{}
	a := c.Now()
	b := c.Now()
	if b.Before(a) {
		t.Errorf("real clock went backwards: %v then %v", a, b)
	}
}

func TestMockSleepAdvances(t *testing.T) {
	start := time.Unix(0, 0)
	m := NewMock(start)
	if err := m.Sleep(context.Background(), 11*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if got := m.Now().Sub(start); got != 11*time.Millisecond {
		t.Errorf("elapsed = %v, want 11ms", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := m.Sleep(ctx, time.Second); err == nil {
		t.Error("Sleep on a cancelled context should fail")
	}
	if got := m.Now().Sub(start); got != 11*time.Millisecond {
		t.Error("cancelled Sleep must not advance the clock")
	}
}

func TestRealSleepCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	begin := time.Now()
	if err := (Real{}).Sleep(ctx, time.Hour); err == nil {
		t.Error("expected context error")
	}
	if time.Since(begin) > time.Second {
		t.Error("cancelled Sleep blocked")
	}
}
