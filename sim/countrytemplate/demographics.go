package countrytemplate

import (
	"github.com/legisim/legisim/sim"
	"github.com/legisim/legisim/sim/parameters"
	"github.com/legisim/legisim/sim/periods"
	"github.com/legisim/legisim/sim/vector"
)

func demographics() []*sim.Variable {
	birth := &sim.Variable{
		Name:             "birth",
		ValueType:        vector.Date,
		Entity:           Person,
		DefinitionPeriod: periods.Eternity,
		Default:          "1970-01-01",
		Label:            "Birth date",
		Reference:        []string{"https://en.wiktionary.org/wiki/birthdate"},
	}

	age := (&sim.Variable{
		Name:             "age",
		ValueType:        vector.Int,
		Entity:           Person,
		DefinitionPeriod: periods.Month,
		Label:            "Person's age (in years)",
		Unit:             "year",
	}).AddFormula(periods.Instant{}, ageFormula)

	return []*sim.Variable{birth, age}
}

// ageFormula counts full years between the birth date and the period start.
func ageFormula(pop *sim.Population, period periods.Period, _ *parameters.View) (vector.Array, error) {
	arr, err := pop.Calculate("birth", period)
	if err != nil {
		return nil, err
	}
	births, ok := arr.(vector.Dates)
	if !ok {
		return nil, &vector.TypeError{Expected: vector.Date, Got: string(arr.DType())}
	}
	at := period.Start
	out := make(vector.Ints, len(births))
	for i, b := range births {
		years := at.Year - b.Year
		if at.Month < b.Month || (at.Month == b.Month && at.Day < b.Day) {
			years--
		}
		out[i] = int64(years)
	}
	return out, nil
}
