// Package nscache makes device numbers meaningful across mount
// namespaces: it memoizes one mountinfo parse per namespace, cooks device
// numbers back to what the wider system sees, and names anonymous
// (zero-major) filesystems by their device minor.
package nscache

import "sync"

// NodevRegistry maps a device minor to a filesystem name for devices
// whose major is zero. Write-once per key: the first registration wins
// and later ones are dropped.
type NodevRegistry struct {
	mu    *sync.Mutex
	names map[uint32]string
}

func NewNodevRegistry() *NodevRegistry {
	return &NodevRegistry{names: make(map[uint32]string)}
}

// NewConcurrentNodevRegistry locks every operation, for the parallel
// scan mode.
func NewConcurrentNodevRegistry() *NodevRegistry {
	r := NewNodevRegistry()
	r.mu = &sync.Mutex{}
	return r
}

func (r *NodevRegistry) lock() func() {
	if r.mu == nil {
		return func() {}
	}
	r.mu.Lock()
	return r.mu.Unlock
}

// Add registers a filesystem name for a minor unless one is already
// known.
func (r *NodevRegistry) Add(minor uint32, filesystem string) {
	defer r.lock()()
	if _, ok := r.names[minor]; ok {
		return
	}
	r.names[minor] = filesystem
}

// NodevFilesystem resolves a minor to its filesystem name.
func (r *NodevRegistry) NodevFilesystem(minor uint32) (string, bool) {
	defer r.lock()()
	fs, ok := r.names[minor]
	return fs, ok
}
