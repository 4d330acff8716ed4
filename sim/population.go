package sim

import (
	"fmt"
	"math"

	"github.com/legisim/legisim/sim/periods"
	"github.com/legisim/legisim/sim/vector"
)

// Population is the run-time state of every entity of one kind.
type Population struct {
	Entity *Entity
	Count  int
	IDs    []string

	// Group populations only: one entry per person.
	MembersEntityID []int
	MembersRole     []*Role
	MembersPosition []int

	sim     *Simulation
	persons *Population
	holders map[string]*Holder
	index   map[string]int
}

// NewPersonPopulation builds the person population.
func NewPersonPopulation(entity *Entity, ids []string) (*Population, error) {
	if !entity.IsPerson {
		return nil, fmt.Errorf("entity %q is not the person entity", entity.Key)
	}
	p := newPopulation(entity, ids)
	if len(p.index) != len(ids) {
		for i, id := range ids {
			if p.index[id] != i {
				return nil, &DuplicatedPersonError{ID: id, Group: entity.Plural}
			}
		}
	}
	return p, nil
}

// NewGroupPopulation builds a group population. members[i] is the group
// index of person i and roles[i] its role.
func NewGroupPopulation(entity *Entity, ids []string, members []int, roles []*Role) (*Population, error) {
	if entity.IsPerson {
		return nil, fmt.Errorf("entity %q is the person entity", entity.Key)
	}
	if len(members) != len(roles) {
		return nil, &vector.LengthError{Expected: len(members), Got: len(roles)}
	}
	p := newPopulation(entity, ids)
	if len(p.index) != len(ids) {
		return nil, fmt.Errorf("%s: duplicated id", entity.Plural)
	}
	p.MembersEntityID = append([]int(nil), members...)
	p.MembersRole = append([]*Role(nil), roles...)
	p.MembersPosition = make([]int, len(members))

	sizes := make([]int, p.Count)
	type slot struct {
		group int
		role  string
	}
	perRole := make(map[slot]int)
	for i, g := range members {
		if g < 0 || g >= p.Count {
			return nil, fmt.Errorf("%s: person %d belongs to group %d out of range [0, %d)", entity.Plural, i, g, p.Count)
		}
		r := roles[i]
		if r == nil {
			return nil, fmt.Errorf("%s: person %d has no role", entity.Plural, i)
		}
		if _, err := entity.Role(r.Key); err != nil {
			return nil, err
		}
		p.MembersPosition[i] = sizes[g]
		sizes[g]++
		for _, counted := range []*Role{r, r.Parent} {
			if counted == nil || counted.Max == 0 {
				continue
			}
			k := slot{g, counted.Key}
			perRole[k]++
			if perRole[k] > counted.Max {
				return nil, &TooManyPersonsInRoleError{Role: counted.Key, Max: counted.Max, Group: ids[g]}
			}
		}
	}
	for g, n := range sizes {
		if n == 0 {
			return nil, fmt.Errorf("%s: group %q has no member", entity.Plural, ids[g])
		}
	}
	return p, nil
}

func newPopulation(entity *Entity, ids []string) *Population {
	p := &Population{
		Entity:  entity,
		Count:   len(ids),
		IDs:     append([]string(nil), ids...),
		holders: make(map[string]*Holder),
		index:   make(map[string]int, len(ids)),
	}
	for i, id := range ids {
		if _, dup := p.index[id]; !dup {
			p.index[id] = i
		}
	}
	return p
}

// Simulation is the simulation the population belongs to.
func (p *Population) Simulation() *Simulation { return p.sim }

// Persons is the person population; a person population returns itself.
func (p *Population) Persons() *Population {
	if p.Entity.IsPerson {
		return p
	}
	return p.persons
}

// IndexOf returns the position of id, or -1.
func (p *Population) IndexOf(id string) int {
	if i, ok := p.index[id]; ok {
		return i
	}
	return -1
}

// Holder returns the store of variable name, creating it on first use.
func (p *Population) Holder(name string) (*Holder, error) {
	if h, ok := p.holders[name]; ok {
		return h, nil
	}
	v, err := p.sim.System.Variable(name)
	if err != nil {
		return nil, err
	}
	if v.Entity.Key != p.Entity.Key {
		return nil, fmt.Errorf("variable %q is defined for %s, not %s", name, v.Entity.Plural, p.Entity.Plural)
	}
	h := newHolder(v, p)
	p.holders[name] = h
	return h, nil
}

// Calculate computes a variable of this population's entity.
func (p *Population) Calculate(name string, period periods.Period) (vector.Array, error) {
	v, err := p.sim.System.Variable(name)
	if err != nil {
		return nil, err
	}
	if v.Entity.Key != p.Entity.Key {
		return nil, fmt.Errorf("variable %q is defined for %s, not %s; use Members or Group", name, v.Entity.Plural, p.Entity.Plural)
	}
	return p.sim.calculate(v, p, period)
}

// Floats computes a numeric variable as float64.
func (p *Population) Floats(name string, period periods.Period) (vector.Floats, error) {
	arr, err := p.Calculate(name, period)
	if err != nil {
		return nil, err
	}
	return vector.ToFloats(arr)
}

// Bools computes a boolean variable.
func (p *Population) Bools(name string, period periods.Period) (vector.Bools, error) {
	arr, err := p.Calculate(name, period)
	if err != nil {
		return nil, err
	}
	b, ok := arr.(vector.Bools)
	if !ok {
		return nil, &vector.TypeError{Expected: vector.Bool, Got: string(arr.DType())}
	}
	return b, nil
}

// Enum computes an enum variable.
func (p *Population) Enum(name string, period periods.Period) (vector.EnumArray, error) {
	arr, err := p.Calculate(name, period)
	if err != nil {
		return vector.EnumArray{}, err
	}
	e, ok := arr.(vector.EnumArray)
	if !ok {
		return vector.EnumArray{}, &vector.TypeError{Expected: vector.Enum, Got: string(arr.DType())}
	}
	return e, nil
}

// === Person → group ===

// Group returns the population of the group entity key.
func (p *Population) Group(key string) (*Population, error) {
	return p.sim.Population(key)
}

// GroupValue computes a group variable and projects it on every member.
func (p *Population) GroupValue(groupKey, name string, period periods.Period) (vector.Array, error) {
	g, err := p.Group(groupKey)
	if err != nil {
		return nil, err
	}
	arr, err := g.Calculate(name, period)
	if err != nil {
		return nil, err
	}
	return g.Project(arr), nil
}

// HasRole reports, per person, whether the person bears role in groupKey.
func (p *Population) HasRole(groupKey string, role *Role) (vector.Bools, error) {
	g, err := p.Group(groupKey)
	if err != nil {
		return nil, err
	}
	return g.MembersHasRole(role), nil
}

// ValueFromPartner returns, for each person bearing role, the value of the
// other person of the same group bearing it. role must allow two persons.
func (p *Population) ValueFromPartner(arr vector.Array, groupKey string, role *Role) (vector.Array, error) {
	g, err := p.Group(groupKey)
	if err != nil {
		return nil, err
	}
	if role.Max != 2 {
		return nil, fmt.Errorf("value from partner needs a role of exactly two persons, %q allows %d", role.Key, role.Max)
	}
	out := vector.Zeros(arr.DType(), enumOf(arr), arr.Len())
	first := make([]int, g.Count)
	second := make([]int, g.Count)
	for i := range first {
		first[i], second[i] = -1, -1
	}
	for i, gi := range g.MembersEntityID {
		if !g.MembersRole[i].Is(role.Key) {
			continue
		}
		if first[gi] < 0 {
			first[gi] = i
		} else {
			second[gi] = i
		}
	}
	idx := make([]int, arr.Len())
	has := make([]bool, arr.Len())
	for gi := range first {
		if first[gi] >= 0 && second[gi] >= 0 {
			idx[first[gi]], has[first[gi]] = second[gi], true
			idx[second[gi]], has[second[gi]] = first[gi], true
		}
	}
	gathered := vector.Gather(arr, idx)
	for i := range has {
		if has[i] {
			vector.Copy(out, i, gathered, i)
		}
	}
	return out, nil
}

// === Group → persons ===

// Members computes a person variable for every member of the groups.
func (p *Population) Members(name string, period periods.Period) (vector.Array, error) {
	return p.Persons().Calculate(name, period)
}

// MembersFloats computes a numeric person variable as float64.
func (p *Population) MembersFloats(name string, period periods.Period) (vector.Floats, error) {
	return p.Persons().Floats(name, period)
}

// MembersHasRole reports, per person, whether the person bears role.
func (p *Population) MembersHasRole(role *Role) vector.Bools {
	out := make(vector.Bools, len(p.MembersRole))
	for i, r := range p.MembersRole {
		out[i] = r == role || r.Parent == role
	}
	return out
}

func (p *Population) matches(i int, roles []*Role) bool {
	if len(roles) == 0 {
		return true
	}
	r := p.MembersRole[i]
	for _, want := range roles {
		if r == want || r.Parent == want {
			return true
		}
	}
	return false
}

// Project broadcasts a group-level array to the members of each group.
func (p *Population) Project(arr vector.Array) vector.Array {
	return vector.Gather(arr, p.MembersEntityID)
}

// Sum adds person values per group, optionally only for the given roles.
func (p *Population) Sum(arr vector.Floats, roles ...*Role) vector.Floats {
	out := make(vector.Floats, p.Count)
	for i, g := range p.MembersEntityID {
		if p.matches(i, roles) {
			out[g] += arr[i]
		}
	}
	return out
}

// Any reports per group whether some matching member is true.
func (p *Population) Any(arr vector.Bools, roles ...*Role) vector.Bools {
	out := make(vector.Bools, p.Count)
	for i, g := range p.MembersEntityID {
		if p.matches(i, roles) && arr[i] {
			out[g] = true
		}
	}
	return out
}

// All reports per group whether every matching member is true.
func (p *Population) All(arr vector.Bools, roles ...*Role) vector.Bools {
	out := make(vector.Bools, p.Count)
	for g := range out {
		out[g] = true
	}
	for i, g := range p.MembersEntityID {
		if p.matches(i, roles) && !arr[i] {
			out[g] = false
		}
	}
	return out
}

// Max is the per-group maximum over matching members; 0 when none match.
func (p *Population) Max(arr vector.Floats, roles ...*Role) vector.Floats {
	return p.reduce(arr, roles, math.Inf(-1), math.Max)
}

// Min is the per-group minimum over matching members; 0 when none match.
func (p *Population) Min(arr vector.Floats, roles ...*Role) vector.Floats {
	return p.reduce(arr, roles, math.Inf(1), math.Min)
}

func (p *Population) reduce(arr vector.Floats, roles []*Role, neutral float64, f func(a, b float64) float64) vector.Floats {
	out := vector.Fill(p.Count, neutral)
	for i, g := range p.MembersEntityID {
		if p.matches(i, roles) {
			out[g] = f(out[g], arr[i])
		}
	}
	for g, v := range out {
		if v == neutral {
			out[g] = 0
		}
	}
	return out
}

// NbPersons counts matching members per group.
func (p *Population) NbPersons(roles ...*Role) vector.Ints {
	out := make(vector.Ints, p.Count)
	for i, g := range p.MembersEntityID {
		if p.matches(i, roles) {
			out[g]++
		}
	}
	return out
}

// ValueFromPerson returns, per group, the value of the member bearing role,
// or the zero value when nobody does. role must be single-person.
func (p *Population) ValueFromPerson(arr vector.Array, role *Role) (vector.Array, error) {
	if role.Max != 1 {
		return nil, fmt.Errorf("value from person needs a single-person role, %q allows %d", role.Key, role.Max)
	}
	return p.pick(arr, func(i int) bool { return p.matches(i, []*Role{role}) }), nil
}

// ValueFromFirstPerson returns, per group, the value of its first member.
func (p *Population) ValueFromFirstPerson(arr vector.Array) vector.Array {
	return p.pick(arr, func(i int) bool { return p.MembersPosition[i] == 0 })
}

func (p *Population) pick(arr vector.Array, chosen func(i int) bool) vector.Array {
	out := vector.Zeros(arr.DType(), enumOf(arr), p.Count)
	for i, g := range p.MembersEntityID {
		if chosen(i) {
			vector.Copy(out, g, arr, i)
		}
	}
	return out
}

func enumOf(arr vector.Array) *vector.EnumType {
	if e, ok := arr.(vector.EnumArray); ok {
		return e.Enum
	}
	return nil
}
