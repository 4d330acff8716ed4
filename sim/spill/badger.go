package spill

import (
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"

	"github.com/legisim/legisim/sim/periods"
	"github.com/legisim/legisim/sim/vector"
)

// BadgerConfig configures the embedded key-value backend.
type BadgerConfig struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string
	// InMemory keeps the database off disk; used by tests.
	InMemory bool
}

// BadgerStore keeps spilled arrays in a BadgerDB keyed "variable/period".
type BadgerStore struct {
	db   *badger.DB
	path string
}

// OpenBadger opens a fresh database. Writes are not synced: the data does
// not outlive the simulation.
func OpenBadger(cfg BadgerConfig) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create spill directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(false).WithNumVersionsToKeep(1).WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	s := &BadgerStore{db: db}
	if !cfg.InMemory {
		s.path = cfg.Path
	}
	return s, nil
}

func (s *BadgerStore) Put(variable string, period periods.Period, arr vector.Array) error {
	data, err := vector.MarshalBinary(arr)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key(variable, period)), data)
	})
}

func (s *BadgerStore) Get(variable string, period periods.Period, enum *vector.EnumType) (vector.Array, error) {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key(variable, period)))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%s: %w", key(variable, period), ErrNotStored)
	}
	if err != nil {
		return nil, err
	}
	return vector.UnmarshalBinary(data, enum)
}

func (s *BadgerStore) Delete(variable string, period periods.Period) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key(variable, period)))
	})
}

// Close closes the database and removes its directory.
func (s *BadgerStore) Close() error {
	if err := s.db.Close(); err != nil {
		return err
	}
	if s.path != "" {
		return os.RemoveAll(s.path)
	}
	return nil
}
