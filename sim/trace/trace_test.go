package trace

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/legisim/legisim/sim/periods"
	"github.com/legisim/legisim/sim/vector"
)

var dec = periods.MonthOf(2017, 12)

func TestTracer_Full_BuildsTreeInCallOrder(t *testing.T) {
	// GIVEN a full tracer
	tr := New(LevelFull)

	// WHEN a frame calls two children
	tr.Enter("disposable_income", dec)
	tr.Enter("salary", dec)
	tr.Exit(vector.Floats{2000}, nil)
	tr.Enter("income_tax", dec)
	tr.RecordParameter("taxes.income_tax_rate", dec.Start, 0.15)
	tr.Exit(vector.Floats{300}, nil)
	tr.Exit(vector.Floats{1700}, nil)

	// THEN the root holds both children in order
	require.Len(t, tr.Roots, 1)
	root := tr.Roots[0]
	assert.Equal(t, "disposable_income<2017-12>", root.Key())
	require.Len(t, root.Children, 2)
	assert.Equal(t, "salary<2017-12>", root.Children[0].Key())
	assert.Equal(t, "income_tax<2017-12>", root.Children[1].Key())
	assert.Equal(t, vector.Floats{1700}, root.Value)
	require.Len(t, root.Children[1].Parameters, 1)
	assert.Equal(t, "taxes.income_tax_rate<2017-12-01>", root.Children[1].Parameters[0].Key())
	assert.Equal(t, 0, tr.Depth())
}

func TestTracer_None_KeepsOnlyStack(t *testing.T) {
	tr := New(LevelNone)

	tr.Enter("salary", dec)
	assert.Equal(t, []string{"salary<2017-12>"}, tr.Stack())
	tr.RecordParameter("p", dec.Start, 1.0)
	tr.Exit(vector.Floats{1}, nil)

	assert.Empty(t, tr.Roots)
	assert.Equal(t, 1, tr.NbRequests("salary"))
}

func TestTracer_ActiveAndCycle(t *testing.T) {
	// GIVEN a stack that re-enters the same key
	tr := New(LevelNone)
	tr.Enter("a", dec)
	tr.Enter("b", dec)

	// THEN the in-progress count and the cycle name the loop
	assert.Equal(t, 1, tr.Active("a", dec))
	assert.Equal(t, 0, tr.Active("c", dec))
	assert.Equal(t, []string{"a<2017-12>", "b<2017-12>", "a<2017-12>"}, tr.Cycle("a", dec))

	tr.Exit(nil, nil)
	tr.Exit(nil, nil)
	assert.Equal(t, 0, tr.Active("a", dec))
}

func TestTracer_FailedFrame_RecordsError(t *testing.T) {
	tr := New(LevelFull)
	boom := errors.New("boom")

	tr.Enter("a", dec)
	tr.Exit(vector.Floats{1}, boom)

	require.Len(t, tr.Roots, 1)
	assert.True(t, tr.Roots[0].Failed())
	assert.Nil(t, tr.Roots[0].Value)
}

func TestTracer_Exit_OnEmptyStack_NoPanic(t *testing.T) {
	tr := New(LevelFull)
	assert.NotPanics(t, func() { tr.Exit(nil, nil) })
}

func TestFlatTrace_KeysDependenciesAndParameters(t *testing.T) {
	// GIVEN a traced calculation where salary is requested twice
	tr := New(LevelFull)
	tr.Enter("income_tax", dec)
	tr.Enter("salary", dec)
	tr.Exit(vector.Floats{2000}, nil)
	tr.RecordParameter("taxes.income_tax_rate", dec.Start, 0.15)
	tr.Exit(vector.Floats{300}, nil)
	tr.Enter("salary", dec)
	tr.Exit(vector.Floats{2000}, nil)

	// WHEN flattened
	flat := tr.FlatTrace()

	// THEN each key appears once with its dependencies and parameters
	require.Len(t, flat, 2)
	tax := flat["income_tax<2017-12>"]
	assert.Equal(t, []string{"salary<2017-12>"}, tax.Dependencies)
	assert.Equal(t, map[string]any{"taxes.income_tax_rate<2017-12-01>": 0.15}, tax.Parameters)
	assert.Equal(t, []any{300.0}, tax.Value)
	assert.Empty(t, flat["salary<2017-12>"].Dependencies)
	assert.Equal(t, 2, tr.NbRequests("salary"))
}

func TestSerialize_EnumAndDate(t *testing.T) {
	enum := vector.NewEnum("status", "tenant", "owner")
	assert.Equal(t, []any{"owner", "tenant"}, Serialize(vector.EnumArray{Enum: enum, Codes: []int16{1, 0}}))
	assert.Equal(t, []any{"1980-01-01"}, Serialize(vector.Dates{periods.NewInstant(1980, 1, 1)}))
	assert.Nil(t, Serialize(nil))
}

func TestComputationLog_IndentsChildren(t *testing.T) {
	tr := New(LevelFull)
	tr.Enter("a", dec)
	tr.Enter("b", dec)
	tr.Exit(vector.Floats{1, 3}, nil)
	tr.Exit(vector.Floats{2, 4}, nil)

	assert.Equal(t, []string{"a<2017-12> >> [2 4]", "  b<2017-12> >> [1 3]"}, tr.ComputationLog(false, 0))
	assert.Equal(t, []string{"a<2017-12> >> {avg: 3, max: 4, min: 2}"}, tr.ComputationLog(true, 1))
}

func TestIsValidLevel(t *testing.T) {
	tests := []struct {
		level string
		valid bool
	}{
		{"none", true},
		{"full", true},
		{"", true}, // empty defaults to none
		{"decisions", false},
		{"FULL", false}, // case-sensitive
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			assert.Equal(t, tt.valid, IsValidLevel(tt.level))
		})
	}
}
