package countrytemplate

import (
	"github.com/legisim/legisim/sim"
	"github.com/legisim/legisim/sim/parameters"
	"github.com/legisim/legisim/sim/periods"
	"github.com/legisim/legisim/sim/vector"
)

// HousingOccupancyStatus is the legal relation of a household to its home.
var HousingOccupancyStatus = vector.NewEnum("housing_occupancy_status", "owner", "tenant", "free_lodger", "homeless")

func housing() []*sim.Variable {
	size := &sim.Variable{
		Name:             "accommodation_size",
		ValueType:        vector.Float,
		Entity:           Household,
		DefinitionPeriod: periods.Month,
		Label:            "Size of the accommodation, in square meters",
		Unit:             "m2",
	}
	rent := &sim.Variable{
		Name:             "rent",
		ValueType:        vector.Float,
		Entity:           Household,
		DefinitionPeriod: periods.Month,
		Label:            "Rent paid by the household",
		Unit:             "currency",
	}
	status := &sim.Variable{
		Name:             "housing_occupancy_status",
		ValueType:        vector.Enum,
		Enum:             HousingOccupancyStatus,
		Entity:           Household,
		DefinitionPeriod: periods.Month,
		Default:          "tenant",
		Label:            "Legal housing situation of the household concerning their main residence",
	}

	housingTax := (&sim.Variable{
		Name:             "housing_tax",
		ValueType:        vector.Float,
		Entity:           Household,
		DefinitionPeriod: periods.Year,
		NonAdditive:      true,
		Label:            "Tax paid by each household proportionally to the size of its accommodation",
		Reference:        []string{"https://law.gov.example/housing_tax"},
		Unit:             "currency",
	}).AddFormula(periods.Instant{}, housingTaxFormula)

	return []*sim.Variable{size, rent, status, housingTax}
}

// housingTaxFormula taxes the accommodation as of January. Homeless
// households pay nothing.
func housingTaxFormula(pop *sim.Population, period periods.Period, params *parameters.View) (vector.Array, error) {
	january := period.FirstMonth()
	size, err := pop.Floats("accommodation_size", january)
	if err != nil {
		return nil, err
	}
	status, err := pop.Enum("housing_occupancy_status", january)
	if err != nil {
		return nil, err
	}
	rate, err := params.Float("taxes.housing_tax.rate")
	if err != nil {
		return nil, err
	}
	minimal, err := params.Float("taxes.housing_tax.minimal_amount")
	if err != nil {
		return nil, err
	}
	return size.Scale(rate).Max(minimal).Mask(status.Is("homeless").Not()), nil
}
