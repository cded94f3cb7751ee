package gpucore

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
)

// Factory opens a device of a registered backend.
type Factory func() (Device, error)

var (
	registryMu sync.RWMutex
	factories  = make(map[string]Factory)
)

// Register makes a backend available by name. It is typically called from
// init() in backend packages:
//
//	func init() {
//	    gpucore.Register("noop", openNoop)
//	}
//
// Register panics if factory is nil or the name is already registered.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if factory == nil {
		panic("gpucore: Register factory is nil")
	}
	if _, dup := factories[name]; dup {
		panic("gpucore: Register called twice for " + name)
	}
	factories[name] = factory
}

// Unregister removes a backend. Used by tests.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(factories, name)
}

// Open opens a device of the named backend.
func Open(name string) (Device, error) {
	registryMu.RLock()
	factory, ok := factories[name]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("gpucore: unknown backend %q (forgotten import?)", name)
	}
	dev, err := factory()
	if err != nil {
		return nil, fmt.Errorf("gpucore: open %s: %w", name, err)
	}
	return dev, nil
}

// Backends returns the registered backend names, sorted.
func Backends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Priority is the order OpenDefault tries backends in: hardware first,
// then the device-less backends.
var Priority = []string{"vulkan", "noop", "trace"}

// OpenDefault opens the first backend of Priority that is registered and
// opens successfully, then any other registered backend. The errors of
// every failed attempt are joined.
func OpenDefault() (Device, error) {
	tried := make(map[string]bool)
	var errs []error
	for _, name := range append(slices.Clone(Priority), Backends()...) {
		if tried[name] {
			continue
		}
		tried[name] = true
		registryMu.RLock()
		_, ok := factories[name]
		registryMu.RUnlock()
		if !ok {
			continue
		}
		dev, err := Open(name)
		if err == nil {
			return dev, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil, errors.New("gpucore: no backend registered")
	}
	return nil, errors.Join(errs...)
}
