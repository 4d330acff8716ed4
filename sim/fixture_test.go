package sim

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/legisim/legisim/sim/parameters"
	"github.com/legisim/legisim/sim/periods"
	"github.com/legisim/legisim/sim/vector"
)

const fixtureParameters = `
benefits:
  basic_income:
    values:
      2015-12-01: 600
taxes:
  income_tax_rate:
    values:
      2012-01-01: 0.15
      2018-01-01: 0.2
`

// fixture is a small legislation: persons living in households, a handful
// of monthly and yearly variables.
type fixture struct {
	system    *TaxBenefitSystem
	person    *Entity
	household *Entity
	parent    *Role
	child     *Role
	calls     map[string]int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{calls: make(map[string]int)}
	f.parent = &Role{Key: "parent", Plural: "parents", Subroles: []*Role{{Key: "first_parent"}, {Key: "second_parent"}}}
	f.child = &Role{Key: "child", Plural: "children"}
	f.person = NewPersonEntity("person", "persons", "Person", "")
	f.household = NewGroupEntity("household", "households", "Household", "", f.parent, f.child)

	system, err := NewTaxBenefitSystem("fixture", f.person, f.household)
	require.NoError(t, err)
	tree, err := parameters.ParseTree([]byte(fixtureParameters))
	require.NoError(t, err)
	system.Parameters = tree
	f.system = system

	count := func(name string) {
		f.calls[name]++
	}
	vars := []*Variable{
		{Name: "salary", ValueType: vector.Float, Entity: f.person, DefinitionPeriod: periods.Month, SetInput: SetInputDivide},
		{Name: "yearly_income", ValueType: vector.Float, Entity: f.person, DefinitionPeriod: periods.Year},
		{Name: "yearly_days_off", ValueType: vector.Int, Entity: f.person, DefinitionPeriod: periods.Year},
		{Name: "savings", ValueType: vector.Float, Entity: f.person, DefinitionPeriod: periods.Year, NonAdditive: true},
		{Name: "is_student", ValueType: vector.Bool, Entity: f.person, DefinitionPeriod: periods.Month, SetInput: SetInputDispatch},
		{Name: "birth", ValueType: vector.Date, Entity: f.person, DefinitionPeriod: periods.Eternity},
		{Name: "rent", ValueType: vector.Float, Entity: f.household, DefinitionPeriod: periods.Month},
		(&Variable{Name: "basic_income", ValueType: vector.Float, Entity: f.person, DefinitionPeriod: periods.Month}).
			AddFormula(periods.NewInstant(2016, 12, 1), func(pop *Population, period periods.Period, params *parameters.View) (vector.Array, error) {
				count("basic_income")
				amount, err := params.Float("benefits.basic_income")
				if err != nil {
					return nil, err
				}
				return vector.Fill(pop.Count, amount), nil
			}),
		(&Variable{Name: "income_tax", ValueType: vector.Float, Entity: f.person, DefinitionPeriod: periods.Month}).
			AddFormula(periods.Instant{}, func(pop *Population, period periods.Period, params *parameters.View) (vector.Array, error) {
				count("income_tax")
				salary, err := pop.Floats("salary", period)
				if err != nil {
					return nil, err
				}
				rate, err := params.Float("taxes.income_tax_rate")
				if err != nil {
					return nil, err
				}
				return salary.Scale(rate), nil
			}),
		(&Variable{Name: "household_salary", ValueType: vector.Float, Entity: f.household, DefinitionPeriod: periods.Month}).
			AddFormula(periods.Instant{}, func(pop *Population, period periods.Period, params *parameters.View) (vector.Array, error) {
				salaries, err := pop.MembersFloats("salary", period)
				if err != nil {
					return nil, err
				}
				return pop.Sum(salaries), nil
			}),
		(&Variable{Name: "self_reference", ValueType: vector.Float, Entity: f.person, DefinitionPeriod: periods.Month}).
			AddFormula(periods.Instant{}, func(pop *Population, period periods.Period, params *parameters.View) (vector.Array, error) {
				return pop.Calculate("self_reference", period)
			}),
		(&Variable{Name: "wrong_length", ValueType: vector.Float, Entity: f.person, DefinitionPeriod: periods.Month}).
			AddFormula(periods.Instant{}, func(pop *Population, period periods.Period, params *parameters.View) (vector.Array, error) {
				return vector.Floats{1, 2, 3, 4, 5}, nil
			}),
	}
	require.NoError(t, system.AddVariables(vars...))
	return f
}

// simulate builds a simulation of one household holding the given persons,
// the first two as parents and the others as children.
func (f *fixture) simulate(t *testing.T, cfg SimulationConfig, ids ...string) *Simulation {
	t.Helper()
	persons, err := NewPersonPopulation(f.person, ids)
	require.NoError(t, err)
	members := make([]int, len(ids))
	roles := make([]*Role, len(ids))
	for i := range ids {
		switch i {
		case 0:
			roles[i] = f.parent.Subroles[0]
		case 1:
			roles[i] = f.parent.Subroles[1]
		default:
			roles[i] = f.child
		}
	}
	households, err := NewGroupPopulation(f.household, []string{"h1"}, members, roles)
	require.NoError(t, err)
	s, err := New(f.system, cfg, persons, households)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// floatsOf takes a Calculate result and returns it as float64 values.
func floatsOf(t *testing.T) func(vector.Array, error) []float64 {
	return func(arr vector.Array, err error) []float64 {
		t.Helper()
		require.NoError(t, err)
		out, err := vector.ToFloats(arr)
		require.NoError(t, err)
		return out
	}
}
