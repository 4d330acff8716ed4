package sim

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/legisim/legisim/sim/internal/testutil"
	"github.com/legisim/legisim/sim/periods"
	"github.com/legisim/legisim/sim/trace"
	"github.com/legisim/legisim/sim/vector"
)

func TestCalculate_FormulaReadsParameterInForce(t *testing.T) {
	f := newFixture(t)
	s := f.simulate(t, DefaultSimulationConfig(), "bill")

	got := floatsOf(t)(s.Calculate("basic_income", periods.MonthOf(2017, 12)))
	assert.Equal(t, []float64{600}, got)
}

func TestCalculate_BeforeFirstFormula_ReturnsDefault(t *testing.T) {
	// GIVEN basic_income has a formula from 2016-12 only
	f := newFixture(t)
	s := f.simulate(t, DefaultSimulationConfig(), "bill", "bob")

	// WHEN it is requested for 2016-06
	got := floatsOf(t)(s.Calculate("basic_income", periods.MonthOf(2016, 6)))

	// THEN the default value is returned without running any formula
	assert.Equal(t, []float64{0, 0}, got)
	assert.Zero(t, f.calls["basic_income"])
}

func TestCalculate_FormulaUsesInputs(t *testing.T) {
	f := newFixture(t)
	s := f.simulate(t, DefaultSimulationConfig(), "bill", "bob")
	require.NoError(t, s.SetInput("salary", periods.MonthOf(2017, 12), vector.Floats{2000, 1000}))
	require.NoError(t, s.SetInput("salary", periods.MonthOf(2018, 1), vector.Floats{2000, 1000}))

	testutil.AssertFloatsEqual(t, "income_tax@2017-12", []float64{300, 150}, floatsOf(t)(s.Calculate("income_tax", periods.MonthOf(2017, 12))), 1e-12)
	testutil.AssertFloatsEqual(t, "income_tax@2018-01", []float64{400, 200}, floatsOf(t)(s.Calculate("income_tax", periods.MonthOf(2018, 1))), 1e-12)
}

func TestCalculate_SecondCallIsMemoized(t *testing.T) {
	// GIVEN a fully traced simulation
	f := newFixture(t)
	cfg := DefaultSimulationConfig()
	cfg.Trace = string(trace.LevelFull)
	s := f.simulate(t, cfg, "bill")
	require.NoError(t, s.SetInput("salary", periods.MonthOf(2017, 1), vector.Floats{1000}))

	// WHEN income_tax is requested twice
	first, err := s.Calculate("income_tax", periods.MonthOf(2017, 1))
	require.NoError(t, err)
	second, err := s.Calculate("income_tax", periods.MonthOf(2017, 1))
	require.NoError(t, err)

	// THEN the formula ran once and the second frame has no dependency
	assert.True(t, vector.Equal(first, second))
	assert.Equal(t, 1, f.calls["income_tax"])
	require.Len(t, s.Tracer.Roots, 2)
	assert.Len(t, s.Tracer.Roots[0].Children, 1)
	assert.Empty(t, s.Tracer.Roots[1].Children)
	assert.Equal(t, 2, s.Tracer.NbRequests("income_tax"))
	require.Len(t, s.Tracer.Roots[0].Parameters, 1)
	assert.Equal(t, "taxes.income_tax_rate", s.Tracer.Roots[0].Parameters[0].Path)
}

func TestCalculate_YearOfMonthlyVariable_SumsMonths(t *testing.T) {
	// GIVEN a different salary for every month of 2017
	f := newFixture(t)
	s := f.simulate(t, DefaultSimulationConfig(), "bill")
	want := 0.0
	for m := 1; m <= 12; m++ {
		require.NoError(t, s.SetInput("salary", periods.MonthOf(2017, m), vector.Floats{float64(100 * m)}))
		want += float64(100 * m)
	}

	// WHEN the year and a quarter are requested
	year := floatsOf(t)(s.Calculate("salary", periods.YearOf(2017)))
	quarter := floatsOf(t)(s.Calculate("salary", periods.New(periods.Month, periods.NewInstant(2017, 1, 1), 3)))

	// THEN they are the sums of their months
	assert.Equal(t, []float64{want}, year)
	assert.Equal(t, []float64{600}, quarter)

	// AND the aggregate is not cached
	known, err := s.KnownPeriods("salary")
	require.NoError(t, err)
	assert.Len(t, known, 12)
}

func TestCalculate_MonthOfYearlyVariable_DividesByTwelve(t *testing.T) {
	f := newFixture(t)
	s := f.simulate(t, DefaultSimulationConfig(), "bill", "bob")
	require.NoError(t, s.SetInput("yearly_income", periods.YearOf(2017), vector.Floats{12000, 6000}))

	year := floatsOf(t)(s.Calculate("yearly_income", periods.YearOf(2017)))
	for m := 1; m <= 12; m++ {
		month := floatsOf(t)(s.Calculate("yearly_income", periods.MonthOf(2017, m)))
		for i := range year {
			testutil.AssertFloat64Equal(t, "12·month == year", year[i], 12*month[i], 1e-12)
		}
	}
	quarter := floatsOf(t)(s.CalculateDivide("yearly_income", periods.New(periods.Month, periods.NewInstant(2017, 4, 1), 3)))
	assert.Equal(t, []float64{3000, 1500}, quarter)
}

func TestCalculate_MonthOfYearlyIntVariable_KeepsFractions(t *testing.T) {
	f := newFixture(t)
	s := f.simulate(t, DefaultSimulationConfig(), "bill")
	require.NoError(t, s.SetInput("yearly_days_off", periods.YearOf(2017), vector.Ints{100}))

	// WHEN a month of an int yearly variable is requested
	month := floatsOf(t)(s.Calculate("yearly_days_off", periods.MonthOf(2017, 3)))

	// THEN twelve months still add up to the year
	testutil.AssertFloat64Equal(t, "12·month == year", 100, 12*month[0], 1e-9)
}

func TestCalculate_NonAdditiveVariable_RejectsOtherPeriods(t *testing.T) {
	f := newFixture(t)
	s := f.simulate(t, DefaultSimulationConfig(), "bill")
	require.NoError(t, s.SetInput("savings", periods.YearOf(2017), vector.Floats{5000}))

	_, err := s.Calculate("savings", periods.MonthOf(2017, 6))
	assert.ErrorIs(t, err, ErrPeriodMismatch)

	_, err = s.Calculate("savings", periods.New(periods.Year, periods.NewInstant(2017, 1, 1), 2))
	assert.ErrorIs(t, err, ErrPeriodMismatch)

	got := floatsOf(t)(s.Calculate("savings", periods.YearOf(2017)))
	assert.Equal(t, []float64{5000}, got)
}

func TestCalculate_BoolOverYear_PeriodMismatch(t *testing.T) {
	f := newFixture(t)
	s := f.simulate(t, DefaultSimulationConfig(), "bill")

	_, err := s.Calculate("is_student", periods.YearOf(2017))

	var mismatch *PeriodMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "is_student", mismatch.Variable)
}

func TestCalculate_WeekOfMonthlyVariable_Incompatible(t *testing.T) {
	f := newFixture(t)
	s := f.simulate(t, DefaultSimulationConfig(), "bill")

	_, err := s.Calculate("salary", periods.MustParse("2017-W01"))

	var incompatible *IncompatiblePeriodError
	require.ErrorAs(t, err, &incompatible)
	assert.ErrorIs(t, err, ErrIncompatiblePeriod)
	assert.Contains(t, err.Error(), "ThisYear")
}

func TestCalculate_UnknownVariable(t *testing.T) {
	f := newFixture(t)
	s := f.simulate(t, DefaultSimulationConfig(), "bill")

	_, err := s.Calculate("nope", periods.MonthOf(2017, 1))

	assert.ErrorIs(t, err, ErrVariableNotFound)
	assert.Contains(t, err.Error(), `"nope"`)
}

func TestCalculate_SelfReference_SpiralDetected(t *testing.T) {
	f := newFixture(t)
	cfg := DefaultSimulationConfig()
	cfg.Trace = string(trace.LevelFull)
	s := f.simulate(t, cfg, "bill")

	_, err := s.Calculate("self_reference", periods.MonthOf(2017, 1))

	var spiral *SpiralError
	require.ErrorAs(t, err, &spiral)
	assert.Equal(t, []string{"self_reference<2017-01>", "self_reference<2017-01>"}, spiral.Cycle)
	assert.Zero(t, s.Tracer.Depth(), "stack must unwind after a failure")
	require.Len(t, s.Tracer.Roots, 1)
	assert.True(t, s.Tracer.Roots[0].Failed())

	// AND nothing was cached for the failed computation
	known, err := s.KnownPeriods("self_reference")
	require.NoError(t, err)
	assert.Empty(t, known)
}

func TestCalculate_SpiralBoundIsConfigurable(t *testing.T) {
	f := newFixture(t)
	cfg := DefaultSimulationConfig()
	cfg.MaxSpiralLoops = 3
	s := f.simulate(t, cfg, "bill")

	_, err := s.Calculate("self_reference", periods.MonthOf(2017, 1))

	var spiral *SpiralError
	require.ErrorAs(t, err, &spiral)
	assert.Len(t, spiral.Cycle, 4)
}

func TestCalculate_FormulaWrongLength_LengthMismatch(t *testing.T) {
	f := newFixture(t)
	s := f.simulate(t, DefaultSimulationConfig(), "bill", "bob")

	_, err := s.Calculate("wrong_length", periods.MonthOf(2017, 1))

	assert.ErrorIs(t, err, ErrLengthMismatch)
	assert.Contains(t, err.Error(), "wrong_length")
}

func TestCalculate_NeutralizedVariable_ReturnsDefault(t *testing.T) {
	f := newFixture(t)
	neutral := f.system.Clone()
	require.NoError(t, neutral.NeutralizeVariable("basic_income"))
	f.system = neutral
	s := f.simulate(t, DefaultSimulationConfig(), "bill")

	got := floatsOf(t)(s.Calculate("basic_income", periods.MonthOf(2017, 1)))

	assert.Equal(t, []float64{0}, got)
	assert.Zero(t, f.calls["basic_income"])
}

func TestCalculate_GroupFormulaAggregatesMembers(t *testing.T) {
	f := newFixture(t)
	s := f.simulate(t, DefaultSimulationConfig(), "bill", "bob", "kid")
	require.NoError(t, s.SetInput("salary", periods.MonthOf(2017, 1), vector.Floats{2000, 1000, 0}))

	got := floatsOf(t)(s.Calculate("household_salary", periods.MonthOf(2017, 1)))

	assert.Equal(t, []float64{3000}, got)
}

func TestCalculate_CacheBlacklist_RecomputesEveryTime(t *testing.T) {
	f := newFixture(t)
	cfg := DefaultSimulationConfig()
	cfg.CacheBlacklist = []string{"basic_income"}
	s := f.simulate(t, cfg, "bill")

	_, err := s.Calculate("basic_income", periods.MonthOf(2017, 1))
	require.NoError(t, err)
	_, err = s.Calculate("basic_income", periods.MonthOf(2017, 1))
	require.NoError(t, err)

	assert.Equal(t, 2, f.calls["basic_income"])
	arr, err := s.GetArray("basic_income", periods.MonthOf(2017, 1))
	require.NoError(t, err)
	assert.Nil(t, arr)
}

func TestCalculate_ReformedSystem_LeavesOriginalUntouched(t *testing.T) {
	// GIVEN a reform raising the basic income from 2017
	f := newFixture(t)
	reform := Reform{Name: "raise", Apply: func(s *TaxBenefitSystem) error {
		return s.UpdateParameter("benefits.basic_income", periods.NewInstant(2017, 1, 1), nil, 700)
	}}
	reformed, err := f.system.ApplyReform(reform)
	require.NoError(t, err)

	// WHEN both systems compute the same period
	base := f.simulate(t, DefaultSimulationConfig(), "bill")
	f.system = reformed
	alt := f.simulate(t, DefaultSimulationConfig(), "bill")

	// THEN only the reformed one sees the new amount
	assert.Equal(t, []float64{600}, floatsOf(t)(base.Calculate("basic_income", periods.MonthOf(2017, 6))))
	assert.Equal(t, []float64{700}, floatsOf(t)(alt.Calculate("basic_income", periods.MonthOf(2017, 6))))
	assert.Equal(t, []string{"raise"}, reformed.AppliedReforms())
}

func TestCalculate_ErrorsAreDistinguishable(t *testing.T) {
	err := error(&SpiralError{Cycle: []string{"a<2017>", "a<2017>"}})
	assert.True(t, errors.Is(err, ErrSpiralDetected))
	assert.False(t, errors.Is(err, ErrPeriodMismatch))
	assert.Equal(t, "spiral detected: a<2017> -> a<2017>", err.Error())
}
