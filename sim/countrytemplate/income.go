package countrytemplate

import (
	"github.com/legisim/legisim/sim"
	"github.com/legisim/legisim/sim/parameters"
	"github.com/legisim/legisim/sim/periods"
	"github.com/legisim/legisim/sim/vector"
)

func income() []*sim.Variable {
	salary := &sim.Variable{
		Name:             "salary",
		ValueType:        vector.Float,
		Entity:           Person,
		DefinitionPeriod: periods.Month,
		SetInput:         sim.SetInputDivide,
		Label:            "Salary",
		Reference:        []string{"https://law.gov.example/salary"},
		Unit:             "currency",
	}
	pension := &sim.Variable{
		Name:             "pension",
		ValueType:        vector.Float,
		Entity:           Person,
		DefinitionPeriod: periods.Month,
		SetInput:         sim.SetInputDivide,
		Label:            "Pension for the elderly",
		Unit:             "currency",
	}
	disposable := (&sim.Variable{
		Name:             "disposable_income",
		ValueType:        vector.Float,
		Entity:           Person,
		DefinitionPeriod: periods.Month,
		Label:            "Actual amount available to the person at the end of the month",
		Unit:             "currency",
	}).AddFormula(periods.Instant{}, disposableIncome)

	householdIncome := (&sim.Variable{
		Name:             "household_income",
		ValueType:        vector.Float,
		Entity:           Household,
		DefinitionPeriod: periods.Month,
		Label:            "The sum of the salaries of those living in a household",
		Unit:             "currency",
	}).AddFormula(periods.Instant{}, func(pop *sim.Population, period periods.Period, _ *parameters.View) (vector.Array, error) {
		salaries, err := pop.MembersFloats("salary", period)
		if err != nil {
			return nil, err
		}
		return pop.Sum(salaries), nil
	})

	return []*sim.Variable{salary, pension, disposable, householdIncome}
}

func disposableIncome(pop *sim.Population, period periods.Period, _ *parameters.View) (vector.Array, error) {
	return combine(pop, period, []term{
		{"salary", 1},
		{"pension", 1},
		{"basic_income", 1},
		{"income_tax", -1},
		{"social_security_contribution", -1},
	})
}

type term struct {
	variable string
	weight   float64
}

// combine returns the weighted sum of person variables.
func combine(pop *sim.Population, period periods.Period, terms []term) (vector.Floats, error) {
	total := make(vector.Floats, pop.Count)
	for _, t := range terms {
		values, err := pop.Floats(t.variable, period)
		if err != nil {
			return nil, err
		}
		total = total.Add(values.Scale(t.weight))
	}
	return total, nil
}
