// Package spill stores arrays evicted from memory by the simulation memory
// policy. Stores are transient: Close removes everything they wrote.
package spill

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/legisim/legisim/sim/periods"
	"github.com/legisim/legisim/sim/vector"
)

// Backend names a Store implementation.
type Backend string

const (
	BackendFS     Backend = "fs"
	BackendBadger Backend = "badger"
)

// validBackends maps accepted backend strings.
var validBackends = map[Backend]bool{
	BackendFS:     true,
	BackendBadger: true,
	"":            true, // empty defaults to fs
}

// IsValidBackend returns true if the given string is a recognized backend.
func IsValidBackend(s string) bool { return validBackends[Backend(s)] }

// ErrNotStored is returned by Get for a key that was never written.
var ErrNotStored = errors.New("not stored")

// Store holds one binary blob per (variable, period).
type Store interface {
	Put(variable string, period periods.Period, arr vector.Array) error
	Get(variable string, period periods.Period, enum *vector.EnumType) (vector.Array, error)
	Delete(variable string, period periods.Period) error
	Close() error
}

// Open creates a store of the given backend in a fresh subdirectory of base,
// so that concurrent simulations never share files.
func Open(backend Backend, base string) (Store, error) {
	dir := filepath.Join(base, uuid.NewString())
	switch backend {
	case BackendFS, "":
		return NewFSStore(dir)
	case BackendBadger:
		return OpenBadger(BadgerConfig{Path: dir})
	}
	return nil, fmt.Errorf("unknown spill backend %q", backend)
}

func key(variable string, period periods.Period) string {
	return variable + "/" + period.String()
}
