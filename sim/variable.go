package sim

import (
	"fmt"
	"sort"

	"github.com/legisim/legisim/sim/parameters"
	"github.com/legisim/legisim/sim/periods"
	"github.com/legisim/legisim/sim/vector"
)

// SetInputPolicy decides how an input given for a period other than the
// definition period is stored.
type SetInputPolicy string

const (
	// SetInputNone stores inputs for exactly one definition period only.
	SetInputNone SetInputPolicy = "none"
	// SetInputContemporary behaves like SetInputNone.
	SetInputContemporary SetInputPolicy = "contemporary"
	// SetInputDivide spreads an input evenly over the definition periods it covers.
	SetInputDivide SetInputPolicy = "divide"
	// SetInputDispatch copies an input unchanged to every covered definition period.
	SetInputDispatch SetInputPolicy = "dispatch"
)

// validSetInputPolicies maps accepted policy strings.
var validSetInputPolicies = map[SetInputPolicy]bool{
	"":                   true, // empty defaults to none
	SetInputNone:         true,
	SetInputContemporary: true,
	SetInputDivide:       true,
	SetInputDispatch:     true,
}

// Formula computes one variable for every entity of pop over period. It may
// call pop.Calculate for other variables.
type Formula func(pop *Population, period periods.Period, params *parameters.View) (vector.Array, error)

// DatedFormula is a formula applicable from Start on.
type DatedFormula struct {
	Start   periods.Instant
	Formula Formula
	Source  string // reference shown by the API
}

// Variable declares a named quantity.
type Variable struct {
	Name             string
	ValueType        vector.DType
	Enum             *vector.EnumType // for vector.Enum
	Entity           *Entity
	DefinitionPeriod periods.Unit
	Default          any // nil means the zero value of ValueType
	EndDate          periods.Instant
	SetInput         SetInputPolicy
	Label            string
	Reference        []string
	Unit             string
	NonAdditive      bool // stock quantity: cannot be summed or divided over time
	NoCache          bool
	Neutralized      bool
	formulas         []DatedFormula // ascending by Start
}

// AddFormula binds f from start on. A zero start means "since always".
func (v *Variable) AddFormula(start periods.Instant, f Formula) *Variable {
	return v.AddFormulaWithSource(start, f, "")
}

// AddFormulaWithSource binds f with a source reference.
func (v *Variable) AddFormulaWithSource(start periods.Instant, f Formula, source string) *Variable {
	v.formulas = append(v.formulas, DatedFormula{Start: start, Formula: f, Source: source})
	sort.SliceStable(v.formulas, func(i, j int) bool { return v.formulas[i].Start.Before(v.formulas[j].Start) })
	return v
}

// Formulas returns the dated formulas in ascending start order.
func (v *Variable) Formulas() []DatedFormula { return append([]DatedFormula(nil), v.formulas...) }

// Cacheable reports whether computed values are memoized.
func (v *Variable) Cacheable() bool { return !v.NoCache }

// Formula returns the formula with the greatest start not after period's
// start, or nil when none applies or period starts after EndDate. Eternity
// variables use their earliest formula.
func (v *Variable) Formula(period periods.Period) Formula {
	if len(v.formulas) == 0 {
		return nil
	}
	if v.DefinitionPeriod == periods.Eternity {
		return v.formulas[0].Formula
	}
	if !v.EndDate.IsZero() && period.Start.After(v.EndDate) {
		return nil
	}
	idx := sort.Search(len(v.formulas), func(i int) bool { return v.formulas[i].Start.After(period.Start) }) - 1
	if idx < 0 {
		return nil
	}
	return v.formulas[idx].Formula
}

// DefaultArray returns n copies of the default value.
func (v *Variable) DefaultArray(n int) vector.Array {
	arr, err := vector.Full(v.ValueType, v.Enum, n, v.Default)
	if err != nil {
		// Validate rejects unconvertible defaults.
		return vector.Zeros(v.ValueType, v.Enum, n)
	}
	return arr
}

// IsInput reports whether the variable has no formula.
func (v *Variable) IsInput() bool { return len(v.formulas) == 0 }

// Validate checks the declaration.
func (v *Variable) Validate() error {
	if v.Name == "" {
		return fmt.Errorf("variable without a name")
	}
	if !vector.IsValidDType(string(v.ValueType)) {
		return fmt.Errorf("variable %q: unknown value type %q", v.Name, v.ValueType)
	}
	if v.ValueType == vector.Enum && v.Enum == nil {
		return fmt.Errorf("variable %q: enum value type without enum", v.Name)
	}
	if v.Entity == nil {
		return fmt.Errorf("variable %q: no entity", v.Name)
	}
	switch v.DefinitionPeriod {
	case periods.Day, periods.WeekDay, periods.Week, periods.Month, periods.Year, periods.Eternity:
	default:
		return fmt.Errorf("variable %q: unknown definition period %q", v.Name, v.DefinitionPeriod)
	}
	if !validSetInputPolicies[v.SetInput] {
		return fmt.Errorf("variable %q: unknown set_input policy %q", v.Name, v.SetInput)
	}
	if v.SetInput == SetInputDivide && (!v.ValueType.Additive() || v.DefinitionPeriod == periods.Eternity) {
		return fmt.Errorf("variable %q: set_input divide needs a numeric, non-eternal variable", v.Name)
	}
	if v.Default != nil {
		if _, err := vector.Scalar(v.ValueType, v.Enum, v.Default); err != nil {
			return fmt.Errorf("variable %q: default value: %w", v.Name, err)
		}
	}
	return nil
}

// clone copies the declaration; formulas are shared.
func (v *Variable) clone() *Variable {
	c := *v
	c.formulas = append([]DatedFormula(nil), v.formulas...)
	c.Reference = append([]string(nil), v.Reference...)
	return &c
}
