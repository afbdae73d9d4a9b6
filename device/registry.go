package device

import (
	"fmt"
	"sort"
	"sync"

	"temctl/config"
)

// Factory constructs a driver from the process configuration.
type Factory func(cfg config.Config) (Microscope, error)

var (
	factoriesMu sync.RWMutex
	factories   = map[string]Factory{}
)

// Register makes a driver available by name. Drivers call it from init.
// Registering the same name twice panics.
func Register(name string, factory Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	if factory == nil {
		panic("device: Register factory is nil")
	}
	if _, dup := factories[name]; dup {
		panic("device: Register called twice for " + name)
	}
	factories[name] = factory
}

// New instantiates the driver registered under name.
func New(name string, cfg config.Config) (Microscope, error) {
	factoriesMu.RLock()
	factory, ok := factories[name]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no such microscope: %q", name)
	}
	return factory(cfg)
}

// Registered reports whether name has a driver.
func Registered(name string) bool {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	_, ok := factories[name]
	return ok
}

// Names lists registered drivers, sorted.
func Names() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// OperationsOf returns the operation set of the named device type without
// instantiating it, so no hardware or network is touched.
func OperationsOf(name string) ([]Operation, error) {
	if !Registered(name) {
		return nil, fmt.Errorf("no such microscope: %q", name)
	}
	return Operations, nil
}
