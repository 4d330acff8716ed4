package sim

import (
	"os"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"github.com/legisim/legisim/sim/spill"
)

// memoryPolicy decides, at put time, whether an array stays in memory, goes
// to the spill store, or is not stored at all.
type memoryPolicy struct {
	cfg      *MemoryConfig
	priority map[string]bool
	drop     map[string]bool
	probe    spill.Probe
	store    spill.Store
	spilled  map[string]bool // variables already reported as spilled
}

func newMemoryPolicy(cfg *MemoryConfig) *memoryPolicy {
	m := &memoryPolicy{
		cfg:      cfg,
		priority: make(map[string]bool),
		drop:     make(map[string]bool),
		spilled:  make(map[string]bool),
	}
	if cfg == nil {
		return m
	}
	for _, v := range cfg.PriorityVariables {
		m.priority[v] = true
	}
	for _, v := range cfg.VariablesToDrop {
		m.drop[v] = true
	}
	probe, err := spill.NewProcProbe()
	if err != nil {
		logrus.Warnf("memory policy disabled: %v", err)
		return m
	}
	m.probe = probe
	return m
}

// dropped reports whether values of variable are never stored.
func (m *memoryPolicy) dropped(variable string) bool { return m.drop[variable] }

// shouldSpill reports whether a new array of variable goes to disk.
func (m *memoryPolicy) shouldSpill(variable string) bool {
	if m.cfg == nil || m.probe == nil || m.priority[variable] {
		return false
	}
	occupation, err := m.probe.Occupation()
	if err != nil {
		logrus.Debugf("memory probe: %v", err)
		return false
	}
	if occupation <= m.cfg.MaxMemoryOccupation {
		return false
	}
	if !m.spilled[variable] {
		m.spilled[variable] = true
		logrus.Warnf("memory occupation %.2f above %.2f: spilling %q to disk", occupation, m.cfg.MaxMemoryOccupation, variable)
	}
	return true
}

// spillStore opens the per-simulation store on first use.
func (m *memoryPolicy) spillStore() (spill.Store, error) {
	if m.store != nil {
		return m.store, nil
	}
	base := m.cfg.SpillDir
	if base == "" {
		base = os.TempDir()
	}
	store, err := spill.Open(spill.Backend(m.cfg.Backend), base)
	if err != nil {
		return nil, err
	}
	m.store = store
	return store, nil
}

func (m *memoryPolicy) close() error {
	if m.store == nil {
		return nil
	}
	err := m.store.Close()
	m.store = nil
	return err
}

func logSpill(variable string, nbytes int) {
	logrus.Debugf("spilled %s of %q", humanize.Bytes(uint64(nbytes)), variable)
}
