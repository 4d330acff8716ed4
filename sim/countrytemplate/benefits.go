package countrytemplate

import (
	"github.com/legisim/legisim/sim"
	"github.com/legisim/legisim/sim/parameters"
	"github.com/legisim/legisim/sim/periods"
	"github.com/legisim/legisim/sim/vector"
)

func benefits() []*sim.Variable {
	basicIncome := (&sim.Variable{
		Name:             "basic_income",
		ValueType:        vector.Float,
		Entity:           Person,
		DefinitionPeriod: periods.Month,
		Label:            "Basic income provided to adults",
		Reference:        []string{"https://law.gov.example/basic_income"},
		Unit:             "currency",
	}).
		AddFormulaWithSource(periods.NewInstant(2015, 12, 1), basicIncomeUnemployed, "benefits.basic_income, only without salary").
		AddFormulaWithSource(periods.NewInstant(2016, 12, 1), basicIncomeAdults, "benefits.basic_income")

	housingAllowance := (&sim.Variable{
		Name:             "housing_allowance",
		ValueType:        vector.Float,
		Entity:           Household,
		DefinitionPeriod: periods.Month,
		EndDate:          periods.NewInstant(2016, 11, 30),
		Label:            "Housing allowance",
		Reference:        []string{"https://law.gov.example/housing_allowance"},
		Unit:             "currency",
	}).AddFormula(periods.NewInstant(1980, 1, 1), func(pop *sim.Population, period periods.Period, params *parameters.View) (vector.Array, error) {
		rent, err := pop.Floats("rent", period)
		if err != nil {
			return nil, err
		}
		status, err := pop.Enum("housing_occupancy_status", period)
		if err != nil {
			return nil, err
		}
		share, err := params.Float("benefits.housing_allowance")
		if err != nil {
			return nil, err
		}
		return rent.Scale(share).Mask(status.Is("tenant")), nil
	})

	parentingAllowance := (&sim.Variable{
		Name:             "parenting_allowance",
		ValueType:        vector.Float,
		Entity:           Household,
		DefinitionPeriod: periods.Month,
		Label:            "Allowance for low income people with children to care for",
		Unit:             "currency",
	}).AddFormula(periods.Instant{}, parentingAllowanceFormula)

	totalBenefits := (&sim.Variable{
		Name:             "total_benefits",
		ValueType:        vector.Float,
		Entity:           Person,
		DefinitionPeriod: periods.Month,
		Label:            "Sum of the benefits perceived by a person",
		Unit:             "currency",
	}).AddFormula(periods.Instant{}, func(pop *sim.Population, period periods.Period, _ *parameters.View) (vector.Array, error) {
		basic, err := pop.Floats("basic_income", period)
		if err != nil {
			return nil, err
		}
		housing, err := pop.GroupValue("household", "housing_allowance", period)
		if err != nil {
			return nil, err
		}
		h, err := vector.ToFloats(housing)
		if err != nil {
			return nil, err
		}
		return basic.Add(h), nil
	})

	return []*sim.Variable{basicIncome, housingAllowance, parentingAllowance, totalBenefits}
}

func adults(pop *sim.Population, period periods.Period, params *parameters.View) (vector.Bools, error) {
	majority, err := params.Float("general.age_of_majority")
	if err != nil {
		return nil, err
	}
	arr, err := pop.Calculate("age", period)
	if err != nil {
		return nil, err
	}
	ages, err := vector.ToFloats(arr)
	if err != nil {
		return nil, err
	}
	return ages.Gte(majority), nil
}

// basicIncomeUnemployed pays adults without salary.
func basicIncomeUnemployed(pop *sim.Population, period periods.Period, params *parameters.View) (vector.Array, error) {
	eligible, err := adults(pop, period, params)
	if err != nil {
		return nil, err
	}
	salary, err := pop.Floats("salary", period)
	if err != nil {
		return nil, err
	}
	amount, err := params.Float("benefits.basic_income")
	if err != nil {
		return nil, err
	}
	return eligible.And(salary.Eq(0)).Floats().Scale(amount), nil
}

// basicIncomeAdults pays every adult.
func basicIncomeAdults(pop *sim.Population, period periods.Period, params *parameters.View) (vector.Array, error) {
	eligible, err := adults(pop, period, params)
	if err != nil {
		return nil, err
	}
	amount, err := params.Float("benefits.basic_income")
	if err != nil {
		return nil, err
	}
	return eligible.Floats().Scale(amount), nil
}

// parentingAllowanceFormula pays single parents of a child under 8 whose
// household income does not exceed the threshold.
func parentingAllowanceFormula(pop *sim.Population, period periods.Period, params *parameters.View) (vector.Array, error) {
	income, err := pop.Floats("household_income", period)
	if err != nil {
		return nil, err
	}
	threshold, err := params.Float("benefits.parenting_allowance.income_threshold")
	if err != nil {
		return nil, err
	}
	amount, err := params.Float("benefits.parenting_allowance.amount")
	if err != nil {
		return nil, err
	}
	arr, err := pop.Members("age", period)
	if err != nil {
		return nil, err
	}
	ages, err := vector.ToFloats(arr)
	if err != nil {
		return nil, err
	}
	singleParent := pop.NbPersons(Parent).Floats().Eq(1)
	youngChild := pop.Any(ages.Lt(8), Child)
	eligible := income.Lte(threshold).And(singleParent).And(youngChild)
	return eligible.Floats().Scale(amount), nil
}
