package countrytemplate_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/legisim/legisim/sim"
	"github.com/legisim/legisim/sim/builder"
	"github.com/legisim/legisim/sim/countrytemplate"
	"github.com/legisim/legisim/sim/internal/testutil"
	"github.com/legisim/legisim/sim/periods"
	"github.com/legisim/legisim/sim/vector"
)

func build(t *testing.T, system *sim.TaxBenefitSystem, situation string) *builder.Result {
	t.Helper()
	res, err := builder.New(system).BuildYAML([]byte(situation))
	require.NoError(t, err)
	t.Cleanup(func() { _ = res.Simulation.Close() })
	return res
}

func newSystem(t *testing.T) *sim.TaxBenefitSystem {
	t.Helper()
	s, err := countrytemplate.New()
	require.NoError(t, err)
	return s
}

func calc(t *testing.T, s *sim.Simulation, name, period string) vector.Floats {
	t.Helper()
	arr, err := s.Calculate(name, periods.MustParse(period))
	require.NoError(t, err)
	out, err := vector.ToFloats(arr)
	require.NoError(t, err)
	return out
}

func TestNew_LoadsEmbeddedParameters(t *testing.T) {
	s := newSystem(t)

	rate, err := s.Parameters.At(periods.NewInstant(2017, 1, 1)).Float("taxes.income_tax_rate")
	require.NoError(t, err)
	assert.Equal(t, 0.15, rate)

	_, err = s.Parameters.At(periods.NewInstant(2017, 1, 1)).Float("benefits.housing_allowance")
	assert.ErrorIs(t, err, sim.ErrParameterNotActive)
}

func TestNew_RegistersEveryVariable(t *testing.T) {
	s := newSystem(t)
	for _, name := range []string{
		"birth", "age", "salary", "pension", "basic_income", "income_tax",
		"social_security_contribution", "disposable_income", "accommodation_size", "rent",
		"housing_occupancy_status", "housing_tax", "housing_allowance", "household_income",
		"parenting_allowance", "total_benefits", "total_taxes",
	} {
		_, err := s.Variable(name)
		assert.NoError(t, err, name)
	}
}

func TestBasicIndividual(t *testing.T) {
	// GIVEN bill, born in 1980 and earning 2000 in December 2017
	res := build(t, newSystem(t), `
persons:
  bill:
    birth:
      2017-12: "1980-01-01"
    salary:
      2017-12: 2000
`)

	// THEN the basic income, the income tax and the age follow the legislation
	assert.Equal(t, vector.Floats{600}, calc(t, res.Simulation, "basic_income", "2017-12"))
	testutil.AssertFloatsEqual(t, "income_tax", []float64{300}, calc(t, res.Simulation, "income_tax", "2017-12"), 1e-12)
	assert.Equal(t, vector.Floats{37}, calc(t, res.Simulation, "age", "2017-12"))
}

func TestSalary_YearlyInputIsDividedOverMonths(t *testing.T) {
	res := build(t, newSystem(t), `
persons:
  bill:
    salary:
      2017: 24000
`)

	assert.Equal(t, vector.Floats{2000}, calc(t, res.Simulation, "salary", "2017-07"))
}

func TestSocialSecurityContribution_MarginalRateScale(t *testing.T) {
	// GIVEN a monthly salary of 15000 crossing the three brackets
	res := build(t, newSystem(t), `
persons:
  bill:
    salary:
      2017-01: 15000
`)

	// THEN 0.02·6000 + 0.06·6400 + 0.12·2600
	got := calc(t, res.Simulation, "social_security_contribution", "2017-01")
	testutil.AssertFloatsEqual(t, "social_security_contribution", []float64{816}, got, 1e-12)
}

func TestHousingTax_YearlyStock(t *testing.T) {
	// GIVEN one household of two adults living in 300 square meters
	res := build(t, newSystem(t), `
persons:
  ann:
    salary:
      2017-01: 1000
  bob:
    salary:
      2017-01: 1000
households:
  home:
    parents: [ann, bob]
    accommodation_size:
      2017-01: 300
`)

	// WHEN the tax is requested for the year, then for a month
	got := calc(t, res.Simulation, "housing_tax", "2017")
	_, err := res.Simulation.Calculate("housing_tax", periods.MonthOf(2017, 6))

	// THEN the year yields size × rate and the month is refused
	assert.Equal(t, vector.Floats{3000}, got)
	assert.ErrorIs(t, err, sim.ErrPeriodMismatch)
}

func TestHousingTax_MinimalAmountAndHomeless(t *testing.T) {
	res := build(t, newSystem(t), `
persons:
  ann: {}
  bob: {}
households:
  small:
    parents: [ann]
    accommodation_size:
      2017-01: 10
  street:
    parents: [bob]
    housing_occupancy_status:
      2017-01: homeless
`)

	assert.Equal(t, vector.Floats{200, 0}, calc(t, res.Simulation, "housing_tax", "2017"))
}

func TestAxes_SweepSalary(t *testing.T) {
	// GIVEN Javier alone in a household and a salary axis of two steps
	res := build(t, newSystem(t), `
persons:
  Javier:
    salary:
      2018-11: 2000
households:
  home:
    parents: [Javier]
axes:
  - - count: 2
      name: salary
      min: 0
      max: 3000
      period: 2018-11
`)

	// THEN the situation is replicated and the axis overrides the input
	persons, err := res.Simulation.Population("person")
	require.NoError(t, err)
	assert.Equal(t, 2, persons.Count)
	assert.Equal(t, vector.Floats{0, 3000}, calc(t, res.Simulation, "salary", "2018-11"))
}

func TestBasicIncome_SummedOverYear(t *testing.T) {
	// GIVEN an adult without salary
	res := build(t, newSystem(t), `
persons:
  bill:
    birth:
      2017-01: "1980-01-01"
`)

	// WHEN the monthly benefit is requested over 2017
	got := calc(t, res.Simulation, "basic_income", "2017")

	// THEN the twelve months are added up
	assert.Equal(t, vector.Floats{7200}, got)
}

func TestBasicIncome_FirstFormulaExcludesEarners(t *testing.T) {
	res := build(t, newSystem(t), `
persons:
  worker:
    salary:
      2016-06: 1000
  idle: {}
`)

	assert.Equal(t, vector.Floats{0, 600}, calc(t, res.Simulation, "basic_income", "2016-06"))
}

func TestHousingAllowance_StopsAfterEndDate(t *testing.T) {
	res := build(t, newSystem(t), `
persons:
  ann: {}
households:
  home:
    parents: [ann]
    rent:
      2016-01: 1000
      2017-01: 1000
`)

	assert.Equal(t, vector.Floats{250}, calc(t, res.Simulation, "housing_allowance", "2016-01"))
	assert.Equal(t, vector.Floats{0}, calc(t, res.Simulation, "housing_allowance", "2017-01"))
}

func TestParentingAllowance_SingleParentWithYoungChild(t *testing.T) {
	// GIVEN a single parent without income and a couple, each with a young child
	res := build(t, newSystem(t), `
persons:
  mum:
    birth:
      2017-01: "1980-01-01"
  kid:
    birth:
      2017-01: "2014-01-01"
  p1: {}
  p2: {}
  kid2:
    birth:
      2017-01: "2014-01-01"
households:
  single:
    parents: [mum]
    children: [kid]
  couple:
    parents: [p1, p2]
    children: [kid2]
`)

	assert.Equal(t, vector.Floats{600, 0}, calc(t, res.Simulation, "parenting_allowance", "2017-01"))
}

func TestTotalTaxes_IncludesMonthlyShareOfHousingTax(t *testing.T) {
	res := build(t, newSystem(t), `
persons:
  ann:
    salary:
      2017-01: 1000
households:
  home:
    parents: [ann]
    accommodation_size:
      2017-01: 120
`)

	// income tax 150, contribution 20, housing tax 1200 / 12
	got := calc(t, res.Simulation, "total_taxes", "2017-01")
	testutil.AssertFloatsEqual(t, "total_taxes", []float64{270}, got, 1e-12)
}

func TestReforms(t *testing.T) {
	situation := `
persons:
  bill:
    birth:
      2017-01: "1980-01-01"
    salary:
      2017-01: 1000
`
	tests := []struct {
		name     string
		reform   string
		variable string
		want     float64
	}{
		{name: "removal of the basic income", reform: "removal_basic_income", variable: "basic_income", want: 0},
		{name: "increase of the basic income", reform: "increase_basic_income", variable: "basic_income", want: 700},
		{name: "flat contribution", reform: "flat_social_security_contribution", variable: "social_security_contribution", want: 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := newSystem(t)
			reformed, err := base.ApplyReforms(tt.reform)
			require.NoError(t, err)

			res := build(t, reformed, situation)
			got := calc(t, res.Simulation, tt.variable, "2017-01")
			testutil.AssertFloatsEqual(t, tt.variable, []float64{tt.want}, got, 1e-12)
			assert.Equal(t, []string{tt.reform}, reformed.AppliedReforms())
		})
	}
}
