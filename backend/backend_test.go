// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package backend

import (
	"errors"
	"slices"
	"testing"

	"github.com/gogpu/ambient/bitmap"
	"github.com/gogpu/ambient/compositor"
)

type stubDevice struct{ name string }

func (stubDevice) NewTexture(compositor.TextureDesc) (compositor.Texture, error) {
	return nil, errors.New("stub")
}
func (stubDevice) Upload(compositor.Texture, *bitmap.Handle) error { return nil }
func (stubDevice) Begin() (compositor.Encoder, error)              { return nil, errors.New("stub") }
func (stubDevice) Present(compositor.Texture) error                { return nil }
func (stubDevice) SurfaceSize() (int, int)                          { return 0, 0 }
func (stubDevice) Destroy()                                         {}

func register(t *testing.T, name string, f Factory) {
	t.Helper()
	Register(name, f)
	t.Cleanup(func() { Unregister(name) })
}

func TestOpenUnknown(t *testing.T) {
	if _, err := Open("no-such-backend", Options{}); !errors.Is(err, ErrBackendNotAvailable) {
		t.Errorf("err = %v, want ErrBackendNotAvailable", err)
	}
}

func TestOpenDefaultPriority(t *testing.T) {
	register(t, Software, func(Options) (compositor.Device, error) { return stubDevice{Software}, nil })
	register(t, Native, func(Options) (compositor.Device, error) { return stubDevice{Native}, nil })

	dev, name, err := OpenDefault(Options{})
	if err != nil {
		t.Fatal(err)
	}
	if name != Native || dev.(stubDevice).name != Native {
		t.Errorf("OpenDefault picked %q, want %q", name, Native)
	}
}

func TestOpenDefaultFallsBack(t *testing.T) {
	gpuErr := errors.New("no adapter")
	register(t, Native, func(Options) (compositor.Device, error) { return nil, gpuErr })
	register(t, Software, func(Options) (compositor.Device, error) { return stubDevice{Software}, nil })

	_, name, err := OpenDefault(Options{})
	if err != nil || name != Software {
		t.Fatalf("OpenDefault = %q, %v; want software fallback", name, err)
	}

	Unregister(Software)
	_, _, err = OpenDefault(Options{})
	if !errors.Is(err, ErrBackendNotAvailable) || !errors.Is(err, gpuErr) {
		t.Errorf("err = %v, want both ErrBackendNotAvailable and the factory error", err)
	}
}

func TestAvailableOrder(t *testing.T) {
	register(t, "zeta", func(Options) (compositor.Device, error) { return stubDevice{}, nil })
	register(t, Software, func(Options) (compositor.Device, error) { return stubDevice{}, nil })
	register(t, Native, func(Options) (compositor.Device, error) { return stubDevice{}, nil })

	got := Available()
	want := []string{Native, Software, "zeta"}
	if !slices.Equal(got, want) {
		t.Errorf("Available() = %v, want %v", got, want)
	}
	if !IsRegistered("zeta") || IsRegistered("omega") {
		t.Error("IsRegistered mismatch")
	}
}
