package sim

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/legisim/legisim/sim/parameters"
	"github.com/legisim/legisim/sim/periods"
	"github.com/legisim/legisim/sim/vector"
)

// Error kinds. Every typed error below unwraps to one of these, so callers
// test with errors.Is.
var (
	ErrVariableNotFound     = errors.New("variable not found")
	ErrParameterNotFound    = parameters.ErrParameterNotFound
	ErrParameterNotActive   = parameters.ErrParameterNotActive
	ErrInvalidPeriodFormat  = periods.ErrInvalidPeriodFormat
	ErrIncompatiblePeriod   = errors.New("incompatible period")
	ErrPeriodMismatch       = errors.New("period mismatch")
	ErrLengthMismatch       = vector.ErrLengthMismatch
	ErrTypeMismatch         = vector.ErrTypeMismatch
	ErrUnknownPerson        = errors.New("unknown person")
	ErrDuplicatedPerson     = errors.New("duplicated person")
	ErrInvalidRole          = errors.New("invalid role")
	ErrTooManyPersonsInRole = errors.New("too many persons in role")
	ErrSituationParse       = errors.New("invalid situation")
	ErrSpiralDetected       = errors.New("spiral detected")
)

// VariableNotFoundError names a variable absent from the system.
type VariableNotFoundError struct {
	Name string
}

func (e *VariableNotFoundError) Error() string {
	return fmt.Sprintf("you tried to calculate or to set a value for variable %q, but it was not found in the loaded tax and benefit system", e.Name)
}

func (e *VariableNotFoundError) Unwrap() error { return ErrVariableNotFound }

// IncompatiblePeriodError reports a period whose unit cannot be converted
// to the variable's definition period.
type IncompatiblePeriodError struct {
	Variable   string
	Requested  periods.Period
	Definition periods.Unit
	Suggestion string
}

func (e *IncompatiblePeriodError) Error() string {
	return fmt.Sprintf("unable to compute variable %q for period %s: %q is defined by %s and a %s period cannot be converted; try %s",
		e.Variable, e.Requested, e.Variable, e.Definition, e.Requested.Unit, e.Suggestion)
}

func (e *IncompatiblePeriodError) Unwrap() error { return ErrIncompatiblePeriod }

// PeriodMismatchError reports a period that does not fit a variable.
type PeriodMismatchError struct {
	Variable  string
	Requested periods.Period
	Reason    string
}

func (e *PeriodMismatchError) Error() string {
	return fmt.Sprintf("period mismatch for variable %q at %s: %s", e.Variable, e.Requested, e.Reason)
}

func (e *PeriodMismatchError) Unwrap() error { return ErrPeriodMismatch }

// VariableValueError attaches a variable name to a length or type error.
type VariableValueError struct {
	Variable string
	Err      error
}

func (e *VariableValueError) Error() string {
	return fmt.Sprintf("variable %q: %v", e.Variable, e.Err)
}

func (e *VariableValueError) Unwrap() error { return e.Err }

// UnknownPersonError reports a role list naming an undeclared person.
type UnknownPersonError struct {
	ID   string
	Role string
}

func (e *UnknownPersonError) Error() string {
	return fmt.Sprintf("%q has been declared in role %q, but has not been declared in persons", e.ID, e.Role)
}

func (e *UnknownPersonError) Unwrap() error { return ErrUnknownPerson }

// DuplicatedPersonError reports a person listed twice for the same entity kind.
type DuplicatedPersonError struct {
	ID    string
	Group string
}

func (e *DuplicatedPersonError) Error() string {
	return fmt.Sprintf("%q has been declared more than once in %s", e.ID, e.Group)
}

func (e *DuplicatedPersonError) Unwrap() error { return ErrDuplicatedPerson }

// InvalidRoleError reports a role key unknown to an entity.
type InvalidRoleError struct {
	Key    string
	Entity string
}

func (e *InvalidRoleError) Error() string {
	return fmt.Sprintf("%q is not a valid role for entity %q", e.Key, e.Entity)
}

func (e *InvalidRoleError) Unwrap() error { return ErrInvalidRole }

// TooManyPersonsInRoleError reports a role holding more persons than its max.
type TooManyPersonsInRoleError struct {
	Role  string
	Max   int
	Group string
}

func (e *TooManyPersonsInRoleError) Error() string {
	return fmt.Sprintf("there can be at most %d %s in %s", e.Max, e.Role, e.Group)
}

func (e *TooManyPersonsInRoleError) Unwrap() error { return ErrTooManyPersonsInRole }

// SpiralError names the (variable, period) keys that loop.
type SpiralError struct {
	Cycle []string
}

func (e *SpiralError) Error() string {
	return fmt.Sprintf("%s: %s", ErrSpiralDetected, strings.Join(e.Cycle, " -> "))
}

func (e *SpiralError) Unwrap() error { return ErrSpiralDetected }

// SituationError aggregates the failures found while ingesting a situation,
// keyed by path in the input tree ("persons/bill/salary").
type SituationError struct {
	Errors map[string]string
	causes []error
}

// NewSituationError returns an empty aggregate.
func NewSituationError() *SituationError {
	return &SituationError{Errors: make(map[string]string)}
}

// Add records a failure at path. The first failure per path wins.
func (e *SituationError) Add(path string, err error) {
	if _, ok := e.Errors[path]; !ok {
		e.Errors[path] = err.Error()
		e.causes = append(e.causes, err)
	}
}

// Err returns nil when nothing was recorded.
func (e *SituationError) Err() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e
}

func (e *SituationError) Error() string {
	paths := make([]string, 0, len(e.Errors))
	for p := range e.Errors {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	parts := make([]string, len(paths))
	for i, p := range paths {
		parts[i] = p + ": " + e.Errors[p]
	}
	return fmt.Sprintf("%s: %s", ErrSituationParse, strings.Join(parts, "; "))
}

// Unwrap exposes ErrSituationParse and every recorded cause.
func (e *SituationError) Unwrap() []error {
	return append([]error{ErrSituationParse}, e.causes...)
}
