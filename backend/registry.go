// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package backend

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/gogpu/ambient/compositor"
	"github.com/gogpu/ambient/internal/logx"
)

// registry holds registered backends.
var (
	registryMu sync.RWMutex
	factories  = make(map[string]Factory)
	// Priority order for OpenDefault (first that opens wins).
	priority = []string{Native, Software}
)

// Register registers a backend factory with the given name.
// This is typically called from init() functions in backend packages.
// If a backend with the same name is already registered, it is replaced.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	factories[name] = f
}

// Unregister removes a backend from the registry.
// This is useful for testing.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(factories, name)
}

// Available returns the registered backend names in priority order,
// followed by any others sorted by name.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return orderedLocked()
}

// IsRegistered reports whether a backend with the given name is registered.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := factories[name]
	return ok
}

// Open opens the named backend.
func Open(name string, opts Options) (compositor.Device, error) {
	registryMu.RLock()
	f, ok := factories[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrBackendNotAvailable, name)
	}
	dev, err := f(opts)
	if err != nil {
		return nil, fmt.Errorf("backend %s: %w", name, err)
	}
	return dev, nil
}

// OpenDefault opens the best backend that succeeds and returns its name.
// If every backend fails the error joins all failures.
func OpenDefault(opts Options) (compositor.Device, string, error) {
	log := logx.Or(opts.Logger)

	registryMu.RLock()
	names := orderedLocked()
	registryMu.RUnlock()

	var errs []error
	for _, name := range names {
		dev, err := Open(name, opts)
		if err == nil {
			log.Info("backend: selected", "backend", name)
			return dev, name, nil
		}
		log.Warn("backend: unavailable, trying next", "backend", name, "error", err)
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil, "", ErrBackendNotAvailable
	}
	return nil, "", errors.Join(append([]error{ErrBackendNotAvailable}, errs...)...)
}

func orderedLocked() []string {
	names := make([]string, 0, len(factories))
	for _, name := range priority {
		if _, ok := factories[name]; ok {
			names = append(names, name)
		}
	}
	var rest []string
	for name := range factories {
		if !slices.Contains(priority, name) {
			rest = append(rest, name)
		}
	}
	slices.Sort(rest)
	return append(names, rest...)
}
