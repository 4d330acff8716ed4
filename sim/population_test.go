package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/legisim/legisim/sim/periods"
	"github.com/legisim/legisim/sim/vector"
)

// twoHouseholds puts ann and bob (parents) with kid in h1, and cid alone in h2.
func twoHouseholds(t *testing.T, f *fixture) *Simulation {
	t.Helper()
	persons, err := NewPersonPopulation(f.person, []string{"ann", "bob", "kid", "cid"})
	require.NoError(t, err)
	first, second := f.parent.Subroles[0], f.parent.Subroles[1]
	households, err := NewGroupPopulation(f.household, []string{"h1", "h2"},
		[]int{0, 0, 0, 1},
		[]*Role{first, second, f.child, first})
	require.NoError(t, err)
	s, err := New(f.system, DefaultSimulationConfig(), persons, households)
	require.NoError(t, err)
	return s
}

func TestPopulation_GroupReductions(t *testing.T) {
	f := newFixture(t)
	s := twoHouseholds(t, f)
	h, err := s.Population("household")
	require.NoError(t, err)
	salary := vector.Floats{3000, 1000, 0, 2500}

	assert.Equal(t, vector.Floats{4000, 2500}, h.Sum(salary))
	assert.Equal(t, vector.Floats{4000, 2500}, h.Sum(salary, f.parent))
	assert.Equal(t, vector.Floats{0, 0}, h.Sum(salary, f.child))
	assert.Equal(t, vector.Floats{3000, 2500}, h.Max(salary))
	assert.Equal(t, vector.Floats{0, 2500}, h.Min(salary))
	assert.Equal(t, vector.Floats{0, 0}, h.Max(salary, f.child))
	assert.Equal(t, vector.Ints{3, 1}, h.NbPersons())
	assert.Equal(t, vector.Ints{2, 1}, h.NbPersons(f.parent))

	working := salary.Gt(0)
	assert.Equal(t, vector.Bools{true, true}, h.Any(working))
	assert.Equal(t, vector.Bools{false, true}, h.All(working))
	assert.Equal(t, vector.Bools{true, true}, h.All(working, f.parent))
}

func TestPopulation_ProjectAndValueFromPerson(t *testing.T) {
	f := newFixture(t)
	s := twoHouseholds(t, f)
	h, err := s.Population("household")
	require.NoError(t, err)

	assert.Equal(t, vector.Floats{10, 10, 10, 20}, h.Project(vector.Floats{10, 20}))

	age := vector.Floats{40, 38, 5, 70}
	got, err := h.ValueFromPerson(age, f.parent.Subroles[1])
	require.NoError(t, err)
	assert.Equal(t, vector.Floats{38, 0}, got)
	assert.Equal(t, vector.Floats{40, 70}, h.ValueFromFirstPerson(age))

	_, err = h.ValueFromPerson(age, f.child)
	assert.Error(t, err, "child is not a single-person role")
}

func TestPopulation_ValueFromPartner(t *testing.T) {
	f := newFixture(t)
	s := twoHouseholds(t, f)

	got, err := s.Persons.ValueFromPartner(vector.Floats{3000, 1000, 0, 2500}, "household", f.parent)

	require.NoError(t, err)
	assert.Equal(t, vector.Floats{1000, 3000, 0, 0}, got)
}

func TestPopulation_ValueFromFirstPerson_Enum(t *testing.T) {
	f := newFixture(t)
	s := twoHouseholds(t, f)
	h, err := s.Population("household")
	require.NoError(t, err)
	status := vector.NewEnum("status", "tenant", "owner")
	arr, err := status.Encode([]string{"owner", "tenant", "tenant", "owner"})
	require.NoError(t, err)

	got := h.ValueFromFirstPerson(arr)

	assert.Equal(t, []string{"owner", "owner"}, status.Decode(got.(vector.EnumArray)))
}

func TestPopulation_GroupValueAndHasRole(t *testing.T) {
	f := newFixture(t)
	s := twoHouseholds(t, f)
	require.NoError(t, s.SetInput("rent", periods.MonthOf(2017, 1), vector.Floats{900, 400}))

	got, err := s.Persons.GroupValue("household", "rent", periods.MonthOf(2017, 1))
	require.NoError(t, err)
	assert.Equal(t, vector.Floats{900, 900, 900, 400}, got)

	isChild, err := s.Persons.HasRole("household", f.child)
	require.NoError(t, err)
	assert.Equal(t, vector.Bools{false, false, true, false}, isChild)

	isParent, err := s.Persons.HasRole("household", f.parent)
	require.NoError(t, err)
	assert.Equal(t, vector.Bools{true, true, false, true}, isParent)
}

func TestPopulation_PositionsFollowPersonOrder(t *testing.T) {
	f := newFixture(t)
	s := twoHouseholds(t, f)
	h, err := s.Population("household")
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1, 2, 0}, h.MembersPosition)
	assert.Equal(t, 1, h.IndexOf("h2"))
	assert.Equal(t, -1, h.IndexOf("h3"))
	assert.Same(t, s.Persons, h.Persons())
}

func TestPopulation_CalculateWrongEntity(t *testing.T) {
	f := newFixture(t)
	s := twoHouseholds(t, f)

	_, err := s.Persons.Calculate("rent", periods.MonthOf(2017, 1))

	assert.ErrorContains(t, err, "households")
}

func TestNewGroupPopulation_TooManyPersonsInRole(t *testing.T) {
	f := newFixture(t)
	first := f.parent.Subroles[0]

	_, err := NewGroupPopulation(f.household, []string{"h1"}, []int{0, 0}, []*Role{first, first})

	var tooMany *TooManyPersonsInRoleError
	require.ErrorAs(t, err, &tooMany)
	assert.Equal(t, "first_parent", tooMany.Role)
	assert.Equal(t, 1, tooMany.Max)
}

func TestNewGroupPopulation_InvalidInputs(t *testing.T) {
	f := newFixture(t)
	stranger := &Role{Key: "stranger"}

	_, err := NewGroupPopulation(f.household, []string{"h1"}, []int{0}, []*Role{stranger})
	assert.ErrorIs(t, err, ErrInvalidRole)

	_, err = NewGroupPopulation(f.household, []string{"h1"}, []int{1}, []*Role{f.child})
	assert.ErrorContains(t, err, "out of range")

	_, err = NewGroupPopulation(f.household, []string{"h1", "h2"}, []int{0}, []*Role{f.child})
	assert.ErrorContains(t, err, "no member")
}

func TestNewPersonPopulation_DuplicatedID(t *testing.T) {
	f := newFixture(t)

	_, err := NewPersonPopulation(f.person, []string{"ann", "bob", "ann"})

	assert.ErrorIs(t, err, ErrDuplicatedPerson)
}
