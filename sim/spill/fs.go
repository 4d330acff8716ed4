package spill

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/legisim/legisim/sim/periods"
	"github.com/legisim/legisim/sim/vector"
)

// FSStore writes {root}/{variable}/{period}.bin files.
// Not safe for concurrent writers on the same key.
type FSStore struct {
	root string
}

// NewFSStore returns a filesystem store rooted at root, creating it if needed.
func NewFSStore(root string) (*FSStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create spill directory %s: %w", root, err)
	}
	return &FSStore{root: root}, nil
}

// Root is the directory the store writes under.
func (s *FSStore) Root() string { return s.root }

func (s *FSStore) pathFor(variable string, period periods.Period) (string, error) {
	if variable == "" || strings.ContainsAny(variable, `/\`) || strings.Contains(variable, "..") {
		return "", fmt.Errorf("invalid variable name %q", variable)
	}
	return filepath.Join(s.root, variable, period.String()+".bin"), nil
}

func (s *FSStore) Put(variable string, period periods.Period, arr vector.Array) error {
	path, err := s.pathFor(variable, period)
	if err != nil {
		return err
	}
	data, err := vector.MarshalBinary(arr)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	// atomically move into place
	return os.Rename(tmp.Name(), path)
}

func (s *FSStore) Get(variable string, period periods.Period, enum *vector.EnumType) (vector.Array, error) {
	path, err := s.pathFor(variable, period)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", key(variable, period), ErrNotStored)
	}
	if err != nil {
		return nil, err
	}
	return vector.UnmarshalBinary(data, enum)
}

func (s *FSStore) Delete(variable string, period periods.Period) error {
	path, err := s.pathFor(variable, period)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Close removes the whole spill directory.
func (s *FSStore) Close() error {
	return os.RemoveAll(s.root)
}
