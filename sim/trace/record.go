// Package trace records the tree of (variable, period) computations made by a
// simulation. It depends only on the period and vector packages.
package trace

import (
	"fmt"
	"time"

	"github.com/legisim/legisim/sim/periods"
	"github.com/legisim/legisim/sim/vector"
)

// ParameterRead captures one parameter access made by a formula.
type ParameterRead struct {
	Path    string
	Instant periods.Instant
	Value   any
}

// Key renders the read as "path<instant>".
func (r ParameterRead) Key() string {
	return fmt.Sprintf("%s<%s>", r.Path, r.Instant)
}

// Frame captures a single Calculate invocation.
type Frame struct {
	Variable   string
	Period     periods.Period
	Value      vector.Array    // nil while in progress or on failure
	Children   []*Frame        // in call order
	Parameters []ParameterRead // in read order
	Duration   time.Duration
	Err        error
	start      time.Time
}

// Key renders the frame as "variable<period>".
func Key(variable string, period periods.Period) string {
	return fmt.Sprintf("%s<%s>", variable, period)
}

// Key renders the frame as "variable<period>".
func (f *Frame) Key() string { return Key(f.Variable, f.Period) }

// Failed reports whether the computation returned an error.
func (f *Frame) Failed() bool { return f.Err != nil }
