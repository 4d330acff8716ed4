package countrytemplate

import (
	"github.com/legisim/legisim/sim"
	"github.com/legisim/legisim/sim/parameters"
	"github.com/legisim/legisim/sim/periods"
	"github.com/legisim/legisim/sim/vector"
)

func taxes() []*sim.Variable {
	incomeTax := (&sim.Variable{
		Name:             "income_tax",
		ValueType:        vector.Float,
		Entity:           Person,
		DefinitionPeriod: periods.Month,
		Label:            "Income tax",
		Reference:        []string{"https://law.gov.example/income_tax"},
		Unit:             "currency",
	}).AddFormula(periods.Instant{}, func(pop *sim.Population, period periods.Period, params *parameters.View) (vector.Array, error) {
		salary, err := pop.Floats("salary", period)
		if err != nil {
			return nil, err
		}
		rate, err := params.Float("taxes.income_tax_rate")
		if err != nil {
			return nil, err
		}
		return salary.Scale(rate), nil
	})

	contribution := (&sim.Variable{
		Name:             "social_security_contribution",
		ValueType:        vector.Float,
		Entity:           Person,
		DefinitionPeriod: periods.Month,
		Label:            "Progressive contribution paid on salaries to finance social security",
		Reference:        []string{"https://law.gov.example/social_security_contribution"},
		Unit:             "currency",
	}).AddFormula(periods.Instant{}, func(pop *sim.Population, period periods.Period, params *parameters.View) (vector.Array, error) {
		salary, err := pop.Floats("salary", period)
		if err != nil {
			return nil, err
		}
		scale, err := params.Marginal("taxes.social_security_contribution")
		if err != nil {
			return nil, err
		}
		return scale.Calc(salary), nil
	})

	totalTaxes := (&sim.Variable{
		Name:             "total_taxes",
		ValueType:        vector.Float,
		Entity:           Person,
		DefinitionPeriod: periods.Month,
		Label:            "Sum of the taxes paid by a person",
		Unit:             "currency",
	}).AddFormula(periods.Instant{}, func(pop *sim.Population, period periods.Period, _ *parameters.View) (vector.Array, error) {
		income, err := pop.Floats("income_tax", period)
		if err != nil {
			return nil, err
		}
		social, err := pop.Floats("social_security_contribution", period)
		if err != nil {
			return nil, err
		}
		housing, err := pop.GroupValue("household", "housing_tax", period.ThisYear())
		if err != nil {
			return nil, err
		}
		h, err := vector.ToFloats(housing)
		if err != nil {
			return nil, err
		}
		return income.Add(social).Add(h.Scale(1.0 / 12)), nil
	})

	return []*sim.Variable{incomeTax, contribution, totalTaxes}
}
