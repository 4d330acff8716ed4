package parameters

import (
	"errors"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/legisim/legisim/sim/periods"
	"github.com/legisim/legisim/sim/vector"
)

const treeYAML = `
description: root
taxes:
  income_tax_rate:
    description: Income tax rate
    unit: /1
    values:
      2012-01-01:
        value: 0.15
  social_security_contribution:
    description: Social security contribution scale
    brackets:
      - threshold:
          2013-01-01:
            value: 0
        rate:
          2013-01-01:
            value: 0.02
      - threshold:
          2013-01-01:
            value: 6000
        rate:
          2013-01-01:
            value: 0.06
      - threshold:
          2013-01-01:
            value: 12400
        rate:
          2013-01-01:
            value: 0.12
benefits:
  basic_income:
    values:
      2015-12-01: 600
      2017-01-01: 700
      2019-01-01: ~
  ceiling:
    default: 42
    values:
      2020-01-01: 50
  flag:
    values:
      2010-01-01: true
`

func loadTestTree(t *testing.T) *Tree {
	t.Helper()
	tree, err := ParseTree([]byte(treeYAML))
	require.NoError(t, err)
	return tree
}

func day(y, m, d int) periods.Instant { return periods.NewInstant(y, m, d) }

func TestMarginalRateScale_Calc_SumsBracketSlices(t *testing.T) {
	// GIVEN the social-security scale at 2017
	tree := loadTestTree(t)
	scale, err := tree.At(day(2017, 1, 1)).Marginal("taxes.social_security_contribution")
	require.NoError(t, err)

	// WHEN evaluated on 15000
	got := scale.Calc(vector.Floats{15000, 0, 3000})

	// THEN 0.02*6000 + 0.06*6400 + 0.12*2600 = 816
	assert.InDelta(t, 816, got[0], 1e-9)
	assert.Equal(t, 0.0, got[1])
	assert.InDelta(t, 60, got[2], 1e-9)
}

func TestMarginalRateScale_AverageRate(t *testing.T) {
	s := NewMarginalRateScale("s")
	s.AddBracket(0, 0.1)
	s.AddBracket(100, 0.3)
	got := s.AverageRate(vector.Floats{200, 0, -5})
	assert.InDelta(t, 0.2, got[0], 1e-12)
	assert.Equal(t, 0.0, got[1])
	assert.Equal(t, 0.0, got[2])
}

func TestMarginalRateScale_Inverse_RecoversGross(t *testing.T) {
	// GIVEN a scale with a zero-rate first slice
	s := NewMarginalRateScale("s")
	s.AddBracket(1000, 0.1)
	s.AddBracket(5000, 0.3)
	s.AddBracket(20000, 0.45)

	inv, err := s.Inverse()
	require.NoError(t, err)

	// WHEN net income is fed to the inverse
	for _, x := range []float64{0, 500, 1000, 3000, 5000, 12345.67, 20000, 1e6} {
		net := x - s.CalcOne(x)

		// THEN the gross income is recovered
		assert.InDelta(t, x, inv.CalcOne(net), 1e-6*max(1, x), "gross %v", x)
	}
}

func TestMarginalRateScale_Inverse_RateAtLeastOne_Fails(t *testing.T) {
	s := NewMarginalRateScale("s")
	s.AddBracket(0, 1)
	_, err := s.Inverse()
	assert.Error(t, err)
}

func TestMarginalRateScale_Combine_SumsOverlappingRates(t *testing.T) {
	a := NewMarginalRateScale("a")
	a.AddBracket(0, 0.1)
	a.AddBracket(100, 0.2)
	b := NewMarginalRateScale("b")
	b.AddBracket(50, 0.05)

	c := a.Combine(b)

	assert.Equal(t, []float64{0, 50, 100}, c.Thresholds)
	assert.InDeltaSlice(t, []float64{0.1, 0.15, 0.25}, c.Rates, 1e-12)
	for _, x := range []float64{20, 75, 300} {
		assert.InDelta(t, a.CalcOne(x)+b.CalcOne(x), c.CalcOne(x), 1e-9)
	}
}

func TestMarginalRateScale_Multiply(t *testing.T) {
	s := NewMarginalRateScale("s")
	s.AddBracket(0, 0.1)
	s.AddBracket(100, 0.2)

	assert.Equal(t, []float64{0, 200}, s.MultiplyThresholds(2).Thresholds)
	assert.InDeltaSlice(t, []float64{0.05, 0.1}, s.MultiplyRates(0.5).Rates, 1e-12)
	assert.Equal(t, []float64{0, 100}, s.Thresholds, "original untouched")
}

func TestSingleAmountScale_Calc(t *testing.T) {
	s := &SingleAmountScale{}
	s.AddBracket(10, 100)
	s.AddBracket(0, 50)
	assert.Equal(t, vector.Floats{0, 50, 100, 100}, s.Calc(vector.Floats{-1, 0, 10, 99}))
}

func TestView_ResolvesGreatestStepNotAfterInstant(t *testing.T) {
	tree := loadTestTree(t)

	tests := []struct {
		instant periods.Instant
		want    float64
	}{
		{day(2015, 12, 1), 600},
		{day(2016, 6, 30), 600},
		{day(2017, 1, 1), 700},
		{day(2018, 12, 31), 700},
	}
	for _, tt := range tests {
		got, err := tree.At(tt.instant).Float("benefits.basic_income")
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.instant.String())
	}
}

func TestView_StoppedLeaf_NotActive(t *testing.T) {
	tree := loadTestTree(t)

	_, err := tree.At(day(2019, 6, 1)).Float("benefits.basic_income")
	assert.True(t, errors.Is(err, ErrParameterNotActive))

	_, err = tree.At(day(2000, 1, 1)).Float("benefits.basic_income")
	assert.True(t, errors.Is(err, ErrParameterNotActive), "no step and no default")
}

func TestView_DeclaredDefaultBeforeFirstStep(t *testing.T) {
	tree := loadTestTree(t)

	before, err := tree.At(day(2019, 1, 1)).Float("benefits.ceiling")
	require.NoError(t, err)
	after, err := tree.At(day(2020, 1, 1)).Float("benefits.ceiling")
	require.NoError(t, err)

	assert.Equal(t, 42.0, before)
	assert.Equal(t, 50.0, after)
}

func TestView_MonotoneBetweenSteps(t *testing.T) {
	// GIVEN two instants with no step in between
	tree := loadTestTree(t)
	t1, t2 := day(2017, 2, 1), day(2018, 11, 30)

	// THEN every leaf reads the same at both
	for _, leaf := range tree.Leaves() {
		v1, err1 := tree.At(t1).Get(leaf.Path)
		v2, err2 := tree.At(t2).Get(leaf.Path)
		assert.Equal(t, err1 == nil, err2 == nil, leaf.Path)
		assert.Equal(t, v1, v2, leaf.Path)
	}
}

func TestView_UnknownPath_NotFound(t *testing.T) {
	_, err := loadTestTree(t).At(day(2017, 1, 1)).Float("taxes.nope")
	assert.True(t, errors.Is(err, ErrParameterNotFound))
}

func TestView_Observe_ReportsReads(t *testing.T) {
	var seen []string
	view := loadTestTree(t).At(day(2017, 1, 1)).Observe(func(path string, instant periods.Instant, value any) {
		seen = append(seen, path+"<"+instant.String()+">")
	})

	_, err := view.Float("taxes.income_tax_rate")
	require.NoError(t, err)
	ok, err := view.Bool("benefits.flag")
	require.NoError(t, err)

	assert.True(t, ok)
	assert.Equal(t, []string{"taxes.income_tax_rate<2017-01-01>", "benefits.flag<2017-01-01>"}, seen)
}

func TestTree_Leaves_DeclarationOrder(t *testing.T) {
	var paths []string
	for _, l := range loadTestTree(t).Leaves() {
		paths = append(paths, l.Path)
	}
	assert.Equal(t, []string{
		"taxes.income_tax_rate", "taxes.social_security_contribution",
		"benefits.basic_income", "benefits.ceiling", "benefits.flag",
	}, paths)
}

func TestTree_Update_ReturnsNewTreeAndKeepsLaterValues(t *testing.T) {
	// GIVEN a reform raising basic income during 2017 only
	tree := loadTestTree(t)
	stop := day(2017, 12, 31)

	// WHEN applied
	reformed, err := tree.Update("benefits.basic_income", day(2017, 6, 1), &stop, 900)
	require.NoError(t, err)

	// THEN the reformed tree changes inside the window only
	read := func(tr *Tree, i periods.Instant) float64 {
		v, err := tr.At(i).Float("benefits.basic_income")
		require.NoError(t, err)
		return v
	}
	assert.Equal(t, 700.0, read(reformed, day(2017, 5, 31)))
	assert.Equal(t, 900.0, read(reformed, day(2017, 6, 1)))
	assert.Equal(t, 900.0, read(reformed, day(2017, 12, 31)))
	assert.Equal(t, 700.0, read(reformed, day(2018, 1, 1)))
	_, err = reformed.At(day(2019, 2, 1)).Float("benefits.basic_income")
	assert.True(t, errors.Is(err, ErrParameterNotActive), "later stop preserved")

	// AND the original tree is untouched
	assert.Equal(t, 700.0, read(tree, day(2017, 6, 1)))
}

func TestTree_Update_ScaleBracket(t *testing.T) {
	tree := loadTestTree(t)

	reformed, err := tree.Update("taxes.social_security_contribution.brackets[2].rate", day(2018, 1, 1), nil, 0.2)
	require.NoError(t, err)

	scale, err := reformed.At(day(2018, 1, 1)).Marginal("taxes.social_security_contribution")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.02, 0.06, 0.2}, scale.Rates)
}

func TestTree_Update_NotALeaf_Fails(t *testing.T) {
	_, err := loadTestTree(t).Update("taxes", day(2018, 1, 1), nil, 1)
	assert.Error(t, err)
}

func TestLoadFS_DirectoryLayout(t *testing.T) {
	// GIVEN a directory with an index and nested files
	fsys := fstest.MapFS{
		"params/index.yaml":                 {Data: []byte("description: Country parameters\n")},
		"params/taxes/index.yaml":           {Data: []byte("description: Taxes\n")},
		"params/taxes/income_tax_rate.yaml": {Data: []byte("values:\n  2012-01-01:\n    value: 0.15\n")},
		"params/benefits/basic_income.yaml": {Data: []byte("values:\n  2015-12-01:\n    value: 600\n")},
		"params/benefits/README.md":         {Data: []byte("ignored")},
		"params/benefits/housing/rate.yaml": {Data: []byte("values:\n  2010-01-01: 10\n")},
	}

	// WHEN loaded
	tree, err := LoadFS(fsys, "params")
	require.NoError(t, err)

	// THEN files become leaves under their directories
	assert.Equal(t, "Country parameters", tree.Root().Description())
	v, err := tree.At(day(2017, 1, 1)).Float("benefits.housing.rate")
	require.NoError(t, err)
	assert.Equal(t, 10.0, v)
	node, err := tree.Get("taxes.income_tax_rate")
	require.NoError(t, err)
	assert.Equal(t, "taxes.income_tax_rate", node.Name())
	assert.Len(t, tree.Leaves(), 3)
}

func TestParse_InvalidDate_Fails(t *testing.T) {
	_, err := Parse("p", []byte("values:\n  2017-13-01: 1\n"))
	assert.True(t, errors.Is(err, periods.ErrInvalidPeriodFormat))
}
