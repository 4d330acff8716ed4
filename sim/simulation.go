package sim

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/legisim/legisim/sim/periods"
	"github.com/legisim/legisim/sim/spill"
	"github.com/legisim/legisim/sim/trace"
	"github.com/legisim/legisim/sim/vector"
)

// Simulation evaluates variables of a TaxBenefitSystem over fixed
// populations. A Simulation is single-threaded: run independent
// simulations in parallel, never one simulation from several goroutines.
type Simulation struct {
	System  *TaxBenefitSystem
	Persons *Population
	Tracer  *trace.Tracer

	populations    []*Population // persons first, then groups in declaration order
	byKey          map[string]*Population
	maxSpiralLoops int
	cacheBlacklist map[string]bool
	memory         *memoryPolicy
}

// New builds a simulation. Every group entity of the system needs a
// population whose members cover the persons.
func New(system *TaxBenefitSystem, cfg SimulationConfig, persons *Population, groups ...*Population) (*Simulation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if persons == nil || persons.Entity.Key != system.PersonEntity().Key {
		return nil, fmt.Errorf("simulation needs a population of %s", system.PersonEntity().Plural)
	}
	s := &Simulation{
		System:         system,
		Persons:        persons,
		Tracer:         trace.New(trace.Level(cfg.Trace)),
		byKey:          make(map[string]*Population),
		maxSpiralLoops: cfg.spiralLoops(),
		cacheBlacklist: make(map[string]bool),
		memory:         newMemoryPolicy(cfg.Memory),
	}
	for _, name := range cfg.CacheBlacklist {
		s.cacheBlacklist[name] = true
	}
	persons.sim = s
	s.populations = append(s.populations, persons)
	s.byKey[persons.Entity.Key] = persons

	for _, g := range groups {
		if _, err := system.Entity(g.Entity.Key); err != nil {
			return nil, err
		}
		if _, dup := s.byKey[g.Entity.Key]; dup {
			return nil, fmt.Errorf("two populations of %s", g.Entity.Plural)
		}
		if len(g.MembersEntityID) != persons.Count {
			return nil, fmt.Errorf("%s: %w", g.Entity.Plural, &vector.LengthError{Expected: persons.Count, Got: len(g.MembersEntityID)})
		}
		g.sim = s
		g.persons = persons
		s.byKey[g.Entity.Key] = g
	}
	for _, e := range system.GroupEntities() {
		g, ok := s.byKey[e.Key]
		if !ok {
			return nil, fmt.Errorf("simulation has no population of %s", e.Plural)
		}
		s.populations = append(s.populations, g)
	}
	return s, nil
}

// SetMemoryProbe replaces the resident-memory probe of the memory policy.
func (s *Simulation) SetMemoryProbe(p spill.Probe) { s.memory.probe = p }

// Populations lists the populations, persons first.
func (s *Simulation) Populations() []*Population {
	return append([]*Population(nil), s.populations...)
}

// Population returns the population of entity key.
func (s *Simulation) Population(key string) (*Population, error) {
	p, ok := s.byKey[key]
	if !ok {
		return nil, fmt.Errorf("unknown entity %q", key)
	}
	return p, nil
}

// PopulationByPlural returns the population of the entity with that plural.
func (s *Simulation) PopulationByPlural(plural string) (*Population, error) {
	for _, p := range s.populations {
		if p.Entity.Plural == plural {
			return p, nil
		}
	}
	return nil, fmt.Errorf("unknown entity plural %q", plural)
}

// Holder returns the holder of a variable in its entity's population.
func (s *Simulation) Holder(name string) (*Holder, error) {
	v, err := s.System.Variable(name)
	if err != nil {
		return nil, err
	}
	pop, err := s.Population(v.Entity.Key)
	if err != nil {
		return nil, err
	}
	return pop.Holder(name)
}

// Calculate computes variable name over period for every entity of its
// population.
func (s *Simulation) Calculate(name string, period periods.Period) (vector.Array, error) {
	v, pop, err := s.lookup(name)
	if err != nil {
		return nil, err
	}
	return s.calculate(v, pop, period)
}

// CalculateAdd sums the variable over the definition periods tiling period.
func (s *Simulation) CalculateAdd(name string, period periods.Period) (vector.Array, error) {
	v, pop, err := s.lookup(name)
	if err != nil {
		return nil, err
	}
	return s.traced(v, period, func() (vector.Array, error) { return s.calculateAdd(v, pop, period) })
}

// CalculateDivide splits the value of the definition period containing
// period proportionally to period's length.
func (s *Simulation) CalculateDivide(name string, period periods.Period) (vector.Array, error) {
	v, pop, err := s.lookup(name)
	if err != nil {
		return nil, err
	}
	return s.traced(v, period, func() (vector.Array, error) { return s.calculateDivide(v, pop, period) })
}

// SetInput stores an input value, applying the variable's set_input policy.
func (s *Simulation) SetInput(name string, period periods.Period, arr vector.Array) error {
	h, err := s.Holder(name)
	if err != nil {
		return err
	}
	return h.SetInput(period, arr)
}

// GetArray returns the stored array without computing anything; nil when
// unknown.
func (s *Simulation) GetArray(name string, period periods.Period) (vector.Array, error) {
	h, err := s.Holder(name)
	if err != nil {
		return nil, err
	}
	return h.Get(period)
}

// DeleteArrays forgets the arrays of name inside period, or all of them
// when period is nil.
func (s *Simulation) DeleteArrays(name string, period *periods.Period) error {
	h, err := s.Holder(name)
	if err != nil {
		return err
	}
	return h.Delete(period)
}

// KnownPeriods lists the periods for which name has a stored array.
func (s *Simulation) KnownPeriods(name string) ([]periods.Period, error) {
	h, err := s.Holder(name)
	if err != nil {
		return nil, err
	}
	return h.KnownPeriods(), nil
}

// SimulationMemoryUsage aggregates holder footprints.
type SimulationMemoryUsage struct {
	TotalNbBytes int                    `json:"total_nb_bytes"`
	ByVariable   map[string]MemoryUsage `json:"by_variable"`
}

// MemoryUsage reports the footprint of every holder created so far, or of
// the named variables only.
func (s *Simulation) MemoryUsage(variables ...string) SimulationMemoryUsage {
	want := make(map[string]bool, len(variables))
	for _, v := range variables {
		want[v] = true
	}
	out := SimulationMemoryUsage{ByVariable: make(map[string]MemoryUsage)}
	for _, p := range s.populations {
		for name, h := range p.holders {
			if len(want) > 0 && !want[name] {
				continue
			}
			u := h.MemoryUsage()
			out.ByVariable[name] = u
			out.TotalNbBytes += u.TotalNbBytes
		}
	}
	return out
}

// HolderNames lists the variables with a holder, sorted.
func (s *Simulation) HolderNames() []string {
	var out []string
	for _, p := range s.populations {
		for name := range p.holders {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Close releases the spill store, removing its files.
func (s *Simulation) Close() error {
	if err := s.memory.close(); err != nil {
		logrus.Warnf("closing spill store: %v", err)
		return err
	}
	return nil
}

func (s *Simulation) lookup(name string) (*Variable, *Population, error) {
	v, err := s.System.Variable(name)
	if err != nil {
		return nil, nil, err
	}
	pop, err := s.Population(v.Entity.Key)
	if err != nil {
		return nil, nil, err
	}
	return v, pop, nil
}
