// Package vector holds the homogeneous typed arrays that carry one value per
// entity of a population, with the elementwise helpers formulas are written in.
package vector

import (
	"errors"
	"fmt"

	"github.com/legisim/legisim/sim/periods"
)

// DType is the element type of an Array.
type DType string

const (
	Bool   DType = "bool"
	Int    DType = "int"
	Float  DType = "float"
	String DType = "string"
	Date   DType = "date"
	Enum   DType = "enum"
)

// validDTypes maps accepted value type names.
var validDTypes = map[DType]bool{Bool: true, Int: true, Float: true, String: true, Date: true, Enum: true}

// IsValidDType returns true if the given string is a recognized value type.
func IsValidDType(s string) bool { return validDTypes[DType(s)] }

// Additive reports whether values of d can be summed over time and divided.
func (d DType) Additive() bool { return d == Int || d == Float }

var (
	// ErrLengthMismatch is returned when an array does not match a population size.
	ErrLengthMismatch = errors.New("length mismatch")
	// ErrTypeMismatch is returned when an array or scalar cannot be coerced.
	ErrTypeMismatch = errors.New("type mismatch")
)

// LengthError reports an array of the wrong length.
type LengthError struct {
	Expected, Got int
}

func (e *LengthError) Error() string {
	return fmt.Sprintf("%s: expected %d values, got %d", ErrLengthMismatch, e.Expected, e.Got)
}

func (e *LengthError) Unwrap() error { return ErrLengthMismatch }

// TypeError reports a value that cannot be converted to the expected type.
type TypeError struct {
	Expected DType
	Got      string
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("%s: expected %s, got %s", ErrTypeMismatch, e.Expected, e.Got)
}

func (e *TypeError) Unwrap() error { return ErrTypeMismatch }

// Array is a fixed-length typed vector.
type Array interface {
	Len() int
	DType() DType
	// Value returns element i in its natural Go form (enum items as names,
	// dates as periods.Instant).
	Value(i int) any
	// Clone returns an independent copy.
	Clone() Array
}

type (
	Floats  []float64
	Ints    []int64
	Bools   []bool
	Strings []string
	Dates   []periods.Instant
)

// EnumArray stores enum items as small integer codes.
type EnumArray struct {
	Enum  *EnumType
	Codes []int16
}

func (a Floats) Len() int         { return len(a) }
func (a Floats) DType() DType     { return Float }
func (a Floats) Value(i int) any  { return a[i] }
func (a Floats) Clone() Array     { return append(Floats(nil), a...) }
func (a Ints) Len() int           { return len(a) }
func (a Ints) DType() DType       { return Int }
func (a Ints) Value(i int) any    { return a[i] }
func (a Ints) Clone() Array       { return append(Ints(nil), a...) }
func (a Bools) Len() int          { return len(a) }
func (a Bools) DType() DType      { return Bool }
func (a Bools) Value(i int) any   { return a[i] }
func (a Bools) Clone() Array      { return append(Bools(nil), a...) }
func (a Strings) Len() int        { return len(a) }
func (a Strings) DType() DType    { return String }
func (a Strings) Value(i int) any { return a[i] }
func (a Strings) Clone() Array    { return append(Strings(nil), a...) }
func (a Dates) Len() int          { return len(a) }
func (a Dates) DType() DType      { return Date }
func (a Dates) Value(i int) any   { return a[i] }
func (a Dates) Clone() Array      { return append(Dates(nil), a...) }

func (a EnumArray) Len() int        { return len(a.Codes) }
func (a EnumArray) DType() DType    { return Enum }
func (a EnumArray) Value(i int) any { return a.Enum.Name(a.Codes[i]) }
func (a EnumArray) Clone() Array {
	return EnumArray{Enum: a.Enum, Codes: append([]int16(nil), a.Codes...)}
}

// Zeros returns the zero array of dtype d. enum is required for Enum.
func Zeros(d DType, enum *EnumType, n int) Array {
	switch d {
	case Bool:
		return make(Bools, n)
	case Int:
		return make(Ints, n)
	case String:
		return make(Strings, n)
	case Date:
		return make(Dates, n)
	case Enum:
		return EnumArray{Enum: enum, Codes: make([]int16, n)}
	}
	return make(Floats, n)
}

// Full returns an array of n copies of value, converted to d.
func Full(d DType, enum *EnumType, n int, value any) (Array, error) {
	arr := Zeros(d, enum, n)
	if value == nil {
		return arr, nil
	}
	v, err := Scalar(d, enum, value)
	if err != nil {
		return nil, err
	}
	for i := 0; i < n; i++ {
		set(arr, i, v)
	}
	return arr, nil
}

// Set converts value to the array's dtype and stores it at index i.
func Set(arr Array, i int, value any) error {
	var enum *EnumType
	if e, ok := arr.(EnumArray); ok {
		enum = e.Enum
	}
	v, err := Scalar(arr.DType(), enum, value)
	if err != nil {
		return err
	}
	set(arr, i, v)
	return nil
}

// Copy stores src[j] at dst[i]. dst must have the dtype of src, as the
// arrays returned by Zeros(src.DType(), ...) do.
func Copy(dst Array, i int, src Array, j int) {
	if e, ok := src.(EnumArray); ok {
		dst.(EnumArray).Codes[i] = e.Codes[j]
		return
	}
	set(dst, i, src.Value(j))
}

// set stores an already-converted scalar.
func set(arr Array, i int, v any) {
	switch a := arr.(type) {
	case Floats:
		a[i] = v.(float64)
	case Ints:
		a[i] = v.(int64)
	case Bools:
		a[i] = v.(bool)
	case Strings:
		a[i] = v.(string)
	case Dates:
		a[i] = v.(periods.Instant)
	case EnumArray:
		a.Codes[i] = v.(int16)
	}
}

// Scalar converts a decoded scalar (YAML/JSON numbers, strings, bools) to
// the storage form of d: float64, int64, bool, string, periods.Instant, or an
// int16 enum code.
func Scalar(d DType, enum *EnumType, value any) (any, error) {
	switch d {
	case Float:
		switch v := value.(type) {
		case float64:
			return v, nil
		case float32:
			return float64(v), nil
		case int:
			return float64(v), nil
		case int64:
			return float64(v), nil
		}
	case Int:
		switch v := value.(type) {
		case int:
			return int64(v), nil
		case int64:
			return v, nil
		case float64:
			if v == float64(int64(v)) {
				return int64(v), nil
			}
		}
	case Bool:
		if v, ok := value.(bool); ok {
			return v, nil
		}
	case String:
		if v, ok := value.(string); ok {
			return v, nil
		}
	case Date:
		switch v := value.(type) {
		case periods.Instant:
			return v, nil
		case string:
			inst, err := periods.ParseInstant(v)
			if err == nil && len(v) == 10 {
				return inst, nil
			}
		}
	case Enum:
		if enum == nil {
			break
		}
		switch v := value.(type) {
		case string:
			if code, ok := enum.Code(v); ok {
				return code, nil
			}
			return nil, fmt.Errorf("%w: %q is not a member of enum %s (possible values: %v)",
				ErrTypeMismatch, v, enum.Key, enum.Items())
		case int16:
			if enum.valid(v) {
				return v, nil
			}
		case int:
			if enum.valid(int16(v)) {
				return int16(v), nil
			}
		}
	}
	return nil, &TypeError{Expected: d, Got: fmt.Sprintf("%T(%v)", value, value)}
}

// Tile repeats arr times times.
func Tile(arr Array, times int) Array {
	n := arr.Len()
	idx := make([]int, 0, n*times)
	for t := 0; t < times; t++ {
		for i := 0; i < n; i++ {
			idx = append(idx, i)
		}
	}
	return Gather(arr, idx)
}

// Gather returns the array out[k] = arr[idx[k]].
func Gather(arr Array, idx []int) Array {
	switch a := arr.(type) {
	case Floats:
		out := make(Floats, len(idx))
		for k, i := range idx {
			out[k] = a[i]
		}
		return out
	case Ints:
		out := make(Ints, len(idx))
		for k, i := range idx {
			out[k] = a[i]
		}
		return out
	case Bools:
		out := make(Bools, len(idx))
		for k, i := range idx {
			out[k] = a[i]
		}
		return out
	case Strings:
		out := make(Strings, len(idx))
		for k, i := range idx {
			out[k] = a[i]
		}
		return out
	case Dates:
		out := make(Dates, len(idx))
		for k, i := range idx {
			out[k] = a[i]
		}
		return out
	case EnumArray:
		out := EnumArray{Enum: a.Enum, Codes: make([]int16, len(idx))}
		for k, i := range idx {
			out.Codes[k] = a.Codes[i]
		}
		return out
	}
	return nil
}

// Values returns the elements of arr in their natural Go form.
func Values(arr Array) []any {
	out := make([]any, arr.Len())
	for i := range out {
		out[i] = arr.Value(i)
	}
	return out
}

// Equal reports whether two arrays have the same dtype and elements.
func Equal(a, b Array) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.DType() != b.DType() || a.Len() != b.Len() {
		return false
	}
	for i := 0; i < a.Len(); i++ {
		if a.Value(i) != b.Value(i) {
			return false
		}
	}
	return true
}
