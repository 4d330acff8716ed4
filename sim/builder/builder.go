package builder

import (
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/legisim/legisim/sim"
	"github.com/legisim/legisim/sim/periods"
	"github.com/legisim/legisim/sim/vector"
)

// Builder builds simulations of one system.
type Builder struct {
	System *sim.TaxBenefitSystem
	Config sim.SimulationConfig
	// DefaultPeriod applies to undated values and axes without a period.
	DefaultPeriod string
}

// New returns a builder with the default simulation configuration.
func New(system *sim.TaxBenefitSystem) *Builder {
	return &Builder{System: system, Config: sim.DefaultSimulationConfig()}
}

// Request is a null input: the caller wants the value computed.
type Request struct {
	Entity   string // plural
	ID       string
	Variable string
	Period   periods.Period
	Node     *yaml.Node // the null input node
}

// Result is a built simulation together with the layout of the situation
// it came from.
type Result struct {
	Simulation *sim.Simulation
	Requests   []Request
	// Indices maps entity plural, then situation id, to the population
	// indices of that entity, one per axis cell.
	Indices map[string]map[string][]int
	Cells   int
}

// BuildYAML parses then builds a situation.
func (b *Builder) BuildYAML(data []byte) (*Result, error) {
	sit, err := Parse(b.System, data)
	if err != nil {
		return nil, err
	}
	return b.Build(sit)
}

// layout is the fully specified form every situation shape reduces to.
type layout struct {
	persons []EntityEntry
	groups  map[string][]EntityEntry // by plural
	axes    [][]Axis
}

func (b *Builder) layout(sit Situation) layout {
	l := layout{groups: make(map[string][]EntityEntry)}
	switch s := sit.(type) {
	case *FullySpecifiedEntities:
		l.persons, l.axes = s.Persons, s.Axes
		for _, g := range s.Groups {
			l.groups[g.Plural] = append(l.groups[g.Plural], g.Entities...)
		}
	case *ImplicitGroupEntities:
		l.persons, l.axes = s.Persons, s.Axes
		for _, g := range s.Groups {
			e, _ := b.System.Entity(g.Key)
			entry := g.Entry
			entry.ID = g.Key
			l.groups[e.Plural] = append(l.groups[e.Plural], entry)
		}
	case *PersonsShortForm:
		l.persons, l.axes = s.Persons, s.Axes
	case *Variables:
		l.axes = s.Axes
		person := b.System.PersonEntity()
		single := map[string]*EntityEntry{person.Plural: {ID: person.Key}}
		for _, e := range b.System.GroupEntities() {
			single[e.Plural] = &EntityEntry{ID: e.Key, Roles: []RoleEntry{{Role: e.FlattenedRoles()[0].Key, Persons: []string{person.Key}}}}
		}
		for _, entry := range s.Entries {
			v, _ := b.System.Variable(entry.Name)
			target := single[v.Entity.Plural]
			target.Variables = append(target.Variables, entry)
		}
		l.persons = []EntityEntry{*single[person.Plural]}
		for _, e := range b.System.GroupEntities() {
			l.groups[e.Plural] = []EntityEntry{*single[e.Plural]}
		}
	}
	return l
}

// Build lays the situation out in populations, replicates it along its
// axes, and stores every input. Ingestion errors are collected per path.
func (b *Builder) Build(sit Situation) (*Result, error) {
	l := b.layout(sit)
	errs := sim.NewSituationError()
	person := b.System.PersonEntity()

	personIndex := make(map[string]int, len(l.persons))
	personIDs := make([]string, 0, len(l.persons))
	for _, p := range l.persons {
		if _, dup := personIndex[p.ID]; dup {
			errs.Add(person.Plural+"/"+p.ID, &sim.DuplicatedPersonError{ID: p.ID, Group: person.Plural})
			continue
		}
		personIndex[p.ID] = len(personIDs)
		personIDs = append(personIDs, p.ID)
	}
	if len(personIDs) == 0 {
		errs.Add(person.Plural, fmt.Errorf("a situation needs at least one person"))
		return nil, errs.Err()
	}

	groups := make([]*groupLayout, 0)
	for _, e := range b.System.GroupEntities() {
		groups = append(groups, b.allocate(e, l.groups[e.Plural], personIndex, personIDs, errs))
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}

	ncells := cells(l.axes)
	persons, err := sim.NewPersonPopulation(person, replicateIDs(personIDs, ncells))
	if err != nil {
		return nil, err
	}
	var pops []*sim.Population
	for _, g := range groups {
		pop, err := g.population(ncells)
		if err != nil {
			errs.Add(g.entity.Plural, err)
			continue
		}
		pops = append(pops, pop)
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}
	s, err := sim.New(b.System, b.Config, persons, pops...)
	if err != nil {
		return nil, err
	}

	res := &Result{Simulation: s, Indices: make(map[string]map[string][]int), Cells: ncells}
	in := newInputs()
	b.collect(in, res, person.Plural, l.persons, personIndex, len(personIDs), ncells, errs)
	for _, g := range groups {
		b.collect(in, res, g.entity.Plural, g.entries, g.index, len(g.ids), ncells, errs)
	}
	b.applyAxes(in, res, l.axes, len(personIDs), groups, errs)
	in.flush(s, errs)
	if err := errs.Err(); err != nil {
		_ = s.Close()
		return nil, err
	}
	logrus.Infof("built simulation: %d %s, %d axis cells", persons.Count, person.Plural, ncells)
	return res, nil
}

// groupLayout is the membership of one group entity before replication.
type groupLayout struct {
	entity  *sim.Entity
	entries []EntityEntry
	ids     []string
	index   map[string]int
	members []int
	roles   []*sim.Role
}

// allocate places persons in the groups of entity e. Persons in no group
// get a group of their own, bearing the first role.
func (b *Builder) allocate(e *sim.Entity, entries []EntityEntry, personIndex map[string]int, personIDs []string, errs *sim.SituationError) *groupLayout {
	g := &groupLayout{
		entity:  e,
		index:   make(map[string]int),
		members: make([]int, len(personIDs)),
		roles:   make([]*sim.Role, len(personIDs)),
	}
	for i := range g.members {
		g.members[i] = -1
	}
	for _, entry := range entries {
		gi := len(g.ids)
		g.index[entry.ID] = gi
		g.ids = append(g.ids, entry.ID)
		g.entries = append(g.entries, entry)
		for _, re := range entry.Roles {
			path := e.Plural + "/" + entry.ID + "/" + re.Role
			role, err := e.Role(re.Role)
			if err != nil {
				errs.Add(path, err)
				continue
			}
			if role.Max > 0 && len(re.Persons) > role.Max {
				errs.Add(path, &sim.TooManyPersonsInRoleError{Role: role.Key, Max: role.Max, Group: entry.ID})
				continue
			}
			for k, id := range re.Persons {
				pi, ok := personIndex[id]
				if !ok {
					errs.Add(path, &sim.UnknownPersonError{ID: id, Role: re.Role})
					continue
				}
				if g.members[pi] >= 0 {
					errs.Add(path, &sim.DuplicatedPersonError{ID: id, Group: e.Plural})
					continue
				}
				g.members[pi] = gi
				g.roles[pi] = role
				if len(role.Subroles) > 0 {
					g.roles[pi] = role.Subroles[k]
				}
			}
		}
	}
	first := e.FlattenedRoles()[0]
	for pi, gi := range g.members {
		if gi >= 0 {
			continue
		}
		id := personIDs[pi]
		g.index[id] = len(g.ids)
		g.members[pi] = len(g.ids)
		g.roles[pi] = first
		g.ids = append(g.ids, id)
		g.entries = append(g.entries, EntityEntry{ID: id})
	}
	return g
}

// population replicates the group layout ncells times.
func (g *groupLayout) population(ncells int) (*sim.Population, error) {
	n := len(g.members)
	members := make([]int, 0, n*ncells)
	roles := make([]*sim.Role, 0, n*ncells)
	for r := 0; r < ncells; r++ {
		for i := 0; i < n; i++ {
			members = append(members, g.members[i]+r*len(g.ids))
			roles = append(roles, g.roles[i])
		}
	}
	return sim.NewGroupPopulation(g.entity, replicateIDs(g.ids, ncells), members, roles)
}

// replicateIDs suffixes ids with the cell number when there are several
// cells.
func replicateIDs(ids []string, ncells int) []string {
	if ncells == 1 {
		return ids
	}
	out := make([]string, 0, len(ids)*ncells)
	for r := 0; r < ncells; r++ {
		for _, id := range ids {
			out = append(out, id+strconv.Itoa(r))
		}
	}
	return out
}

// === Inputs ===

type inputKey struct {
	variable string
	period   periods.Period
}

type inputBuffer struct {
	path   string
	values map[int]any
}

// inputs collects values per (variable, period) before they are stored
// as whole arrays.
type inputs struct {
	order []inputKey
	byKey map[inputKey]*inputBuffer
}

func newInputs() *inputs { return &inputs{byKey: make(map[inputKey]*inputBuffer)} }

func (in *inputs) set(variable string, period periods.Period, index int, value any, path string) {
	k := inputKey{variable, period}
	buf, ok := in.byKey[k]
	if !ok {
		buf = &inputBuffer{path: path, values: make(map[int]any)}
		in.byKey[k] = buf
		in.order = append(in.order, k)
	}
	buf.values[index] = value
}

func (in *inputs) flush(s *sim.Simulation, errs *sim.SituationError) {
	for _, k := range in.order {
		buf := in.byKey[k]
		v, err := s.System.Variable(k.variable)
		if err != nil {
			errs.Add(buf.path, err)
			continue
		}
		pop, err := s.Population(v.Entity.Key)
		if err != nil {
			errs.Add(buf.path, err)
			continue
		}
		arr := v.DefaultArray(pop.Count)
		failed := false
		for i, value := range buf.values {
			if err := vector.Set(arr, i, value); err != nil {
				errs.Add(buf.path, &sim.VariableValueError{Variable: k.variable, Err: err})
				failed = true
				break
			}
		}
		if failed {
			continue
		}
		if err := s.SetInput(k.variable, k.period, arr); err != nil {
			errs.Add(buf.path, err)
		}
	}
}

func (b *Builder) period(literal string) (periods.Period, error) {
	if literal == "" {
		literal = b.DefaultPeriod
	}
	if literal == "" {
		return periods.Period{}, fmt.Errorf("%w: no period given and no default period", sim.ErrInvalidPeriodFormat)
	}
	return periods.Parse(literal)
}

// collect buffers the values of entries and records null values as
// requests.
func (b *Builder) collect(in *inputs, res *Result, plural string, entries []EntityEntry, index map[string]int, count, ncells int, errs *sim.SituationError) {
	ids := make(map[string][]int, len(entries))
	res.Indices[plural] = ids
	for _, entry := range entries {
		local := index[entry.ID]
		for r := 0; r < ncells; r++ {
			ids[entry.ID] = append(ids[entry.ID], r*count+local)
		}
		for _, ve := range entry.Variables {
			path := plural + "/" + entry.ID + "/" + ve.Name
			var dated []DatedEntry
			switch v := ve.Value.(type) {
			case PureValue:
				dated = []DatedEntry{{Value: v}}
			case DatedValue:
				dated = v.Entries
			}
			for _, d := range dated {
				at := path
				if d.Period != "" {
					at += "/" + d.Period
				}
				period, err := b.period(d.Period)
				if err != nil {
					errs.Add(at, err)
					continue
				}
				if d.Value.Null {
					res.Requests = append(res.Requests, Request{Entity: plural, ID: entry.ID, Variable: ve.Name, Period: period, Node: d.Value.Node})
					continue
				}
				if d.Value.Vector && len(d.Value.Scalars) != ncells {
					errs.Add(at, &sim.VariableValueError{Variable: ve.Name, Err: &vector.LengthError{Expected: ncells, Got: len(d.Value.Scalars)}})
					continue
				}
				for r := 0; r < ncells; r++ {
					value := d.Value.Scalars[0]
					if d.Value.Vector {
						value = d.Value.Scalars[r]
					}
					in.set(ve.Name, period, r*count+local, value, at)
				}
			}
		}
	}
}

// applyAxes writes the swept values, overriding inputs of the same
// variable, entity and period.
func (b *Builder) applyAxes(in *inputs, res *Result, groups [][]Axis, npersons int, layouts []*groupLayout, errs *sim.SituationError) {
	counts := map[string]int{b.System.PersonEntity().Key: npersons}
	for _, g := range layouts {
		counts[g.entity.Key] = len(g.ids)
	}
	for r := 0; r < res.Cells; r++ {
		pos := position(groups, r)
		for gi, group := range groups {
			for ai, a := range group {
				path := fmt.Sprintf("%s/%d/%d", axesKey, gi, ai)
				v, err := b.System.Variable(a.Name)
				if err != nil {
					errs.Add(path, err)
					continue
				}
				n := counts[v.Entity.Key]
				if a.Index >= n {
					errs.Add(path, fmt.Errorf("axis index %d out of range: the situation has %d %s", a.Index, n, v.Entity.Plural))
					continue
				}
				period, err := b.period(a.Period)
				if err != nil {
					errs.Add(path, err)
					continue
				}
				in.set(a.Name, period, r*n+a.Index, a.Values()[pos[gi]], path)
			}
		}
	}
}
