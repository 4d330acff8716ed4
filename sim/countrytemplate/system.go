package countrytemplate

import (
	"embed"
	"fmt"

	"github.com/legisim/legisim/sim"
	"github.com/legisim/legisim/sim/parameters"
	"github.com/legisim/legisim/sim/periods"
	"github.com/legisim/legisim/sim/vector"
)

//go:embed parameters
var parameterFS embed.FS

// Name identifies the template system.
const Name = "country-template"

// New assembles the template system with its parameters and reforms.
func New() (*sim.TaxBenefitSystem, error) {
	s, err := sim.NewTaxBenefitSystem(Name, Person, Household)
	if err != nil {
		return nil, err
	}
	tree, err := parameters.LoadFS(parameterFS, "parameters")
	if err != nil {
		return nil, fmt.Errorf("loading %s parameters: %w", Name, err)
	}
	s.Parameters = tree

	var vars []*sim.Variable
	for _, group := range [][]*sim.Variable{demographics(), income(), taxes(), benefits(), housing()} {
		vars = append(vars, group...)
	}
	if err := s.AddVariables(vars...); err != nil {
		return nil, err
	}
	for _, r := range Reforms() {
		s.RegisterReform(r)
	}
	return s, nil
}

// Reforms are the named variants shipped with the template.
func Reforms() []sim.Reform {
	return []sim.Reform{
		{
			Name:        "removal_basic_income",
			Description: "Remove the basic income",
			Apply: func(s *sim.TaxBenefitSystem) error {
				return s.NeutralizeVariable("basic_income")
			},
		},
		{
			Name:        "increase_basic_income",
			Description: "Raise the basic income to 700 from 2017",
			Apply: func(s *sim.TaxBenefitSystem) error {
				return s.UpdateParameter("benefits.basic_income", periods.NewInstant(2017, 1, 1), nil, 700.0)
			},
		},
		{
			Name:        "flat_social_security_contribution",
			Description: "Replace the contribution scale by a flat 10% rate",
			Apply: func(s *sim.TaxBenefitSystem) error {
				return s.UpdateVariable(flatContribution())
			},
		},
	}
}

// flatContribution redeclares social_security_contribution as 10% of the
// salary.
func flatContribution() *sim.Variable {
	return (&sim.Variable{
		Name:             "social_security_contribution",
		ValueType:        vector.Float,
		Entity:           Person,
		DefinitionPeriod: periods.Month,
		Label:            "Flat contribution paid on salaries",
		Unit:             "currency",
	}).AddFormula(periods.Instant{}, func(pop *sim.Population, period periods.Period, _ *parameters.View) (vector.Array, error) {
		salary, err := pop.Floats("salary", period)
		if err != nil {
			return nil, err
		}
		return salary.Scale(0.1), nil
	})
}
