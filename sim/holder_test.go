package sim

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/legisim/legisim/sim/periods"
	"github.com/legisim/legisim/sim/spill"
	"github.com/legisim/legisim/sim/vector"
)

func TestHolder_PutThenGet_ThenDeleteContainingPeriod(t *testing.T) {
	f := newFixture(t)
	s := f.simulate(t, DefaultSimulationConfig(), "bill", "bob")
	h, err := s.Holder("salary")
	require.NoError(t, err)
	jan, feb := periods.MonthOf(2017, 1), periods.MonthOf(2018, 2)

	require.NoError(t, h.Put(jan, vector.Floats{1, 2}))
	require.NoError(t, h.Put(feb, vector.Floats{3, 4}))
	got, err := h.Get(jan)
	require.NoError(t, err)
	assert.Equal(t, vector.Floats{1, 2}, got)

	// WHEN 2017 is deleted
	year := periods.YearOf(2017)
	require.NoError(t, h.Delete(&year))

	// THEN only the months inside it are gone
	got, err = h.Get(jan)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, []periods.Period{feb}, h.KnownPeriods())

	require.NoError(t, h.Delete(nil))
	assert.Empty(t, h.KnownPeriods())
}

func TestHolder_Put_ChecksLengthAndType(t *testing.T) {
	f := newFixture(t)
	s := f.simulate(t, DefaultSimulationConfig(), "bill", "bob")
	h, err := s.Holder("salary")
	require.NoError(t, err)
	jan := periods.MonthOf(2017, 1)

	assert.ErrorIs(t, h.Put(jan, vector.Floats{1, 2, 3}), ErrLengthMismatch)
	assert.ErrorIs(t, h.Put(jan, vector.Bools{true, false}), ErrTypeMismatch)

	// int widens to float
	require.NoError(t, h.Put(jan, vector.Ints{5, 6}))
	got, err := h.Get(jan)
	require.NoError(t, err)
	assert.Equal(t, vector.Floats{5, 6}, got)

	// a single value is broadcast
	require.NoError(t, h.Put(jan, vector.Floats{7}))
	got, err = h.Get(jan)
	require.NoError(t, err)
	assert.Equal(t, vector.Floats{7, 7}, got)
}

func TestHolder_Put_RejectsOtherThanDefinitionPeriod(t *testing.T) {
	f := newFixture(t)
	s := f.simulate(t, DefaultSimulationConfig(), "bill")
	h, err := s.Holder("salary")
	require.NoError(t, err)

	err = h.Put(periods.YearOf(2017), vector.Floats{1})

	assert.ErrorIs(t, err, ErrPeriodMismatch)
}

func TestHolder_EternityVariable_OneSlot(t *testing.T) {
	f := newFixture(t)
	s := f.simulate(t, DefaultSimulationConfig(), "bill")
	birth := vector.Dates{periods.NewInstant(1980, 1, 1)}

	require.NoError(t, s.SetInput("birth", periods.MonthOf(2017, 12), birth))

	for _, p := range []periods.Period{periods.YearOf(1990), periods.MonthOf(2017, 12), periods.EternityPeriod} {
		got, err := s.GetArray("birth", p)
		require.NoError(t, err)
		assert.Equal(t, birth, got, p.String())
	}
	got, err := s.Calculate("birth", periods.YearOf(2030))
	require.NoError(t, err)
	assert.Equal(t, birth, got)
}

func TestHolder_SetInputNone_RejectsYearForMonthly(t *testing.T) {
	f := newFixture(t)
	s := f.simulate(t, DefaultSimulationConfig(), "bill")

	err := s.SetInput("rent", periods.YearOf(2017), vector.Floats{1200})

	var mismatch *PeriodMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Contains(t, err.Error(), "2017-01")
}

func TestHolder_SetInputDivide_SpreadsOverMonths(t *testing.T) {
	f := newFixture(t)
	s := f.simulate(t, DefaultSimulationConfig(), "bill")

	require.NoError(t, s.SetInput("salary", periods.YearOf(2017), vector.Floats{24000}))

	got := floatsOf(t)(s.Calculate("salary", periods.MonthOf(2017, 7)))
	assert.Equal(t, []float64{2000}, got)
	known, err := s.KnownPeriods("salary")
	require.NoError(t, err)
	assert.Len(t, known, 12)
}

func TestHolder_SetInputDivide_KeepsKnownMonths(t *testing.T) {
	// GIVEN January already known
	f := newFixture(t)
	s := f.simulate(t, DefaultSimulationConfig(), "bill")
	require.NoError(t, s.SetInput("salary", periods.MonthOf(2017, 1), vector.Floats{5000}))

	// WHEN the year total is given
	require.NoError(t, s.SetInput("salary", periods.YearOf(2017), vector.Floats{27000}))

	// THEN January is kept and the rest is split over the other months
	assert.Equal(t, []float64{5000}, floatsOf(t)(s.Calculate("salary", periods.MonthOf(2017, 1))))
	assert.Equal(t, []float64{2000}, floatsOf(t)(s.Calculate("salary", periods.MonthOf(2017, 2))))
	assert.Equal(t, []float64{27000}, floatsOf(t)(s.Calculate("salary", periods.YearOf(2017))))
}

func TestHolder_SetInputDispatch_CopiesToEveryMonth(t *testing.T) {
	f := newFixture(t)
	s := f.simulate(t, DefaultSimulationConfig(), "bill", "bob")

	require.NoError(t, s.SetInput("is_student", periods.YearOf(2017), vector.Bools{true, false}))

	for m := 1; m <= 12; m++ {
		got, err := s.GetArray("is_student", periods.MonthOf(2017, m))
		require.NoError(t, err)
		assert.Equal(t, vector.Bools{true, false}, got)
	}
}

func TestHolder_MemoryUsage(t *testing.T) {
	f := newFixture(t)
	s := f.simulate(t, DefaultSimulationConfig(), "bill", "bob")
	require.NoError(t, s.SetInput("salary", periods.YearOf(2017), vector.Floats{12, 24}))

	usage := s.MemoryUsage("salary")

	u := usage.ByVariable["salary"]
	assert.Equal(t, 12, u.NbArrays)
	assert.Equal(t, 2, u.NbCellsByArray)
	assert.Equal(t, 8, u.CellSize)
	assert.Equal(t, 12*2*8, u.TotalNbBytes)
	assert.Equal(t, u.TotalNbBytes, usage.TotalNbBytes)
}

func memoryConfig(t *testing.T, backend spill.Backend) SimulationConfig {
	cfg := DefaultSimulationConfig()
	cfg.Memory = &MemoryConfig{
		MaxMemoryOccupation: 0.5,
		PriorityVariables:   []string{"rent"},
		VariablesToDrop:     []string{"yearly_income"},
		SpillDir:            t.TempDir(),
		Backend:             string(backend),
	}
	return cfg
}

func TestMemoryPolicy_SpillsAboveOccupation(t *testing.T) {
	for _, backend := range []spill.Backend{spill.BackendFS, spill.BackendBadger} {
		t.Run(string(backend), func(t *testing.T) {
			// GIVEN a process reported at 90% of physical memory
			f := newFixture(t)
			cfg := memoryConfig(t, backend)
			s := f.simulate(t, cfg, "bill", "bob")
			s.SetMemoryProbe(spill.ProbeFunc(func() (float64, error) { return 0.9, nil }))

			// WHEN a non-priority variable is stored
			jan := periods.MonthOf(2017, 1)
			require.NoError(t, s.SetInput("salary", jan, vector.Floats{1000, 2000}))

			// THEN it lives on disk and reads back unchanged
			u := s.MemoryUsage("salary").ByVariable["salary"]
			assert.Equal(t, 0, u.NbArrays)
			assert.Equal(t, 1, u.NbArraysOnDisk)
			got, err := s.GetArray("salary", jan)
			require.NoError(t, err)
			assert.Equal(t, vector.Floats{1000, 2000}, got)
			assert.Equal(t, []float64{150, 300}, floatsOf(t)(s.Calculate("income_tax", jan)))

			// AND deleting it removes it from disk too
			require.NoError(t, s.DeleteArrays("salary", nil))
			got, err = s.GetArray("salary", jan)
			require.NoError(t, err)
			assert.Nil(t, got)
		})
	}
}

func TestMemoryPolicy_FSLayout_RemovedOnClose(t *testing.T) {
	f := newFixture(t)
	cfg := memoryConfig(t, spill.BackendFS)
	s := f.simulate(t, cfg, "bill")
	s.SetMemoryProbe(spill.ProbeFunc(func() (float64, error) { return 0.9, nil }))
	require.NoError(t, s.SetInput("salary", periods.MonthOf(2017, 1), vector.Floats{1000}))

	matches, err := filepath.Glob(filepath.Join(cfg.Memory.SpillDir, "*", "salary", "2017-01.bin"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	require.NoError(t, s.Close())
	_, err = os.Stat(matches[0])
	assert.True(t, os.IsNotExist(err))
}

func TestMemoryPolicy_StaleSpillRemovedWhenBackInMemory(t *testing.T) {
	// GIVEN a value spilled to disk under memory pressure
	f := newFixture(t)
	cfg := memoryConfig(t, spill.BackendFS)
	s := f.simulate(t, cfg, "bill")
	occupation := 0.9
	s.SetMemoryProbe(spill.ProbeFunc(func() (float64, error) { return occupation, nil }))
	jan := periods.MonthOf(2017, 1)
	require.NoError(t, s.SetInput("salary", jan, vector.Floats{1000}))
	matches, err := filepath.Glob(filepath.Join(cfg.Memory.SpillDir, "*", "salary", "2017-01.bin"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	// WHEN pressure drops and the period is stored again
	occupation = 0.1
	require.NoError(t, s.SetInput("salary", jan, vector.Floats{2000}))

	// THEN the value lives in memory and the disk copy is gone
	u := s.MemoryUsage("salary").ByVariable["salary"]
	assert.Equal(t, 1, u.NbArrays)
	assert.Equal(t, 0, u.NbArraysOnDisk)
	_, err = os.Stat(matches[0])
	assert.True(t, os.IsNotExist(err))
}

func TestMemoryPolicy_StaleSpillDeleteFailure_Warns(t *testing.T) {
	f := newFixture(t)
	cfg := memoryConfig(t, spill.BackendFS)
	s := f.simulate(t, cfg, "bill")
	occupation := 0.9
	s.SetMemoryProbe(spill.ProbeFunc(func() (float64, error) { return occupation, nil }))
	jan := periods.MonthOf(2017, 1)
	require.NoError(t, s.SetInput("salary", jan, vector.Floats{1000}))
	matches, err := filepath.Glob(filepath.Join(cfg.Memory.SpillDir, "*", "salary", "2017-01.bin"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	// a non-empty directory in place of the spilled file cannot be removed
	require.NoError(t, os.Remove(matches[0]))
	require.NoError(t, os.MkdirAll(filepath.Join(matches[0], "blocker"), 0o755))
	hook := logtest.NewGlobal()
	t.Cleanup(func() { logrus.StandardLogger().ReplaceHooks(make(logrus.LevelHooks)) })

	occupation = 0.1
	require.NoError(t, s.SetInput("salary", jan, vector.Floats{2000}))

	got, err := s.GetArray("salary", jan)
	require.NoError(t, err)
	assert.Equal(t, vector.Floats{2000}, got)
	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && strings.Contains(e.Message, "stale spilled") {
			warned = true
		}
	}
	assert.True(t, warned, "the failed delete is logged")
}

func TestMemoryPolicy_PriorityAndDroppedVariables(t *testing.T) {
	f := newFixture(t)
	s := f.simulate(t, memoryConfig(t, spill.BackendFS), "bill")
	s.SetMemoryProbe(spill.ProbeFunc(func() (float64, error) { return 0.9, nil }))

	// priority variables stay in memory
	require.NoError(t, s.SetInput("rent", periods.MonthOf(2017, 1), vector.Floats{800}))
	u := s.MemoryUsage("rent").ByVariable["rent"]
	assert.Equal(t, 1, u.NbArrays)
	assert.Zero(t, u.NbArraysOnDisk)

	// dropped variables are never stored
	require.NoError(t, s.SetInput("yearly_income", periods.YearOf(2017), vector.Floats{1}))
	got, err := s.GetArray("yearly_income", periods.YearOf(2017))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryPolicy_BelowOccupation_KeepsInMemory(t *testing.T) {
	f := newFixture(t)
	s := f.simulate(t, memoryConfig(t, spill.BackendFS), "bill")
	s.SetMemoryProbe(spill.ProbeFunc(func() (float64, error) { return 0.1, nil }))

	require.NoError(t, s.SetInput("salary", periods.MonthOf(2017, 1), vector.Floats{1000}))

	u := s.MemoryUsage("salary").ByVariable["salary"]
	assert.Equal(t, 1, u.NbArrays)
	assert.Zero(t, u.NbArraysOnDisk)
}
