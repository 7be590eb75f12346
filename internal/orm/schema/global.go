package schema

import (
	"fmt"
	"sync"
	"sync/atomic"
)

var (
	// global holds the process-wide registry once Init has published it
	global atomic.Pointer[Registry]
	initMu sync.Mutex
)

// Init builds the process-wide registry. populate registers entities into a fresh
// registry, which is then frozen and published. Init may succeed only once per
// process; ResetForTesting undoes it.
func Init(defaultMode RepresentationMode, populate func(*Registry) error) error {
	initMu.Lock()
	defer initMu.Unlock()

	if global.Load() != nil {
		return ErrAlreadyInitialized
	}

	reg := NewRegistry(defaultMode)
	if populate != nil {
		if err := populate(reg); err != nil {
			return fmt.Errorf("populate entity registry: %w", err)
		}
	}
	if err := reg.Freeze(); err != nil {
		return fmt.Errorf("freeze entity registry: %w", err)
	}

	global.Store(reg)
	return nil
}

// Default returns the process-wide registry published by Init
func Default() (*Registry, error) {
	reg := global.Load()
	if reg == nil {
		return nil, ErrNotInitialized
	}
	return reg, nil
}

// ResetForTesting discards the process-wide registry so Init can run again
func ResetForTesting() {
	initMu.Lock()
	defer initMu.Unlock()
	global.Store(nil)
}
