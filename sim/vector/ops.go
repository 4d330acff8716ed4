package vector

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
)

// Coerce converts arr to dtype d. int→float widens, float→int truncates toward
// zero and logs a warning; any other change is a TypeError.
func Coerce(arr Array, d DType) (Array, error) {
	if arr.DType() == d {
		return arr, nil
	}
	switch a := arr.(type) {
	case Ints:
		if d == Float {
			return a.Floats(), nil
		}
	case Floats:
		if d == Int {
			out := make(Ints, len(a))
			lossy := false
			for i, v := range a {
				out[i] = int64(v)
				if float64(out[i]) != v {
					lossy = true
				}
			}
			if lossy {
				logrus.Warnf("float values truncated to int: %v", a.head(5))
			}
			return out, nil
		}
	}
	return nil, &TypeError{Expected: d, Got: string(arr.DType())}
}

// Broadcast stretches a length-1 array to n elements; other lengths are
// returned unchanged.
func Broadcast(arr Array, n int) Array {
	if arr.Len() != 1 || n == 1 {
		return arr
	}
	return Gather(arr, make([]int, n))
}

// ToFloats converts numeric and boolean arrays to float64 (true = 1).
func ToFloats(arr Array) (Floats, error) {
	switch a := arr.(type) {
	case Floats:
		return a, nil
	case Ints:
		return a.Floats(), nil
	case Bools:
		return a.Floats(), nil
	}
	return nil, &TypeError{Expected: Float, Got: string(arr.DType())}
}

// Add returns a+b elementwise for additive arrays of the same dtype.
func Add(a, b Array) (Array, error) {
	if a.Len() != b.Len() {
		return nil, &LengthError{Expected: a.Len(), Got: b.Len()}
	}
	switch x := a.(type) {
	case Floats:
		if y, ok := b.(Floats); ok {
			return x.Add(y), nil
		}
	case Ints:
		if y, ok := b.(Ints); ok {
			out := make(Ints, len(x))
			for i := range x {
				out[i] = x[i] + y[i]
			}
			return out, nil
		}
	}
	return nil, &TypeError{Expected: a.DType(), Got: string(b.DType())}
}

// Divide returns arr/k for additive arrays. The result is always Floats so
// that int values keep their fractional share.
func Divide(arr Array, k float64) (Array, error) {
	switch a := arr.(type) {
	case Floats:
		out := make(Floats, len(a))
		for i, v := range a {
			out[i] = v / k
		}
		return out, nil
	case Ints:
		out := make(Floats, len(a))
		for i, v := range a {
			out[i] = float64(v) / k
		}
		return out, nil
	}
	return nil, &TypeError{Expected: Float, Got: string(arr.DType())}
}

// Linspace returns n evenly spaced values from lo to hi inclusive.
func Linspace(lo, hi float64, n int) Floats {
	switch {
	case n <= 0:
		return Floats{}
	case n == 1:
		return Floats{lo}
	}
	return floats.Span(make([]float64, n), lo, hi)
}

// Where picks a[i] where cond[i] holds and b[i] elsewhere.
func Where(cond Bools, a, b Floats) Floats {
	out := make(Floats, len(cond))
	for i, c := range cond {
		if c {
			out[i] = a[i]
		} else {
			out[i] = b[i]
		}
	}
	return out
}

// Fill returns n copies of v.
func Fill(n int, v float64) Floats {
	out := make(Floats, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func (a Floats) head(n int) Floats {
	if len(a) < n {
		return a
	}
	return a[:n]
}

// Sum returns the sum of all elements.
func (a Floats) Sum() float64 { return floats.Sum(a) }

// Add returns a+b.
func (a Floats) Add(b Floats) Floats {
	return floats.AddTo(make([]float64, len(a)), a, b)
}

// Sub returns a-b.
func (a Floats) Sub(b Floats) Floats {
	return floats.SubTo(make([]float64, len(a)), a, b)
}

// Mul returns a*b elementwise.
func (a Floats) Mul(b Floats) Floats {
	return floats.MulTo(make([]float64, len(a)), a, b)
}

// Scale returns k*a.
func (a Floats) Scale(k float64) Floats {
	return floats.ScaleTo(make([]float64, len(a)), k, a)
}

// AddScalar returns a+k.
func (a Floats) AddScalar(k float64) Floats {
	out := a.Clone().(Floats)
	floats.AddConst(k, out)
	return out
}

// Mask zeroes the elements where cond is false.
func (a Floats) Mask(cond Bools) Floats {
	out := make(Floats, len(a))
	for i, v := range a {
		if cond[i] {
			out[i] = v
		}
	}
	return out
}

// Max returns max(a[i], k).
func (a Floats) Max(k float64) Floats {
	out := make(Floats, len(a))
	for i, v := range a {
		out[i] = math.Max(v, k)
	}
	return out
}

// Min returns min(a[i], k).
func (a Floats) Min(k float64) Floats {
	out := make(Floats, len(a))
	for i, v := range a {
		out[i] = math.Min(v, k)
	}
	return out
}

// Round returns a rounded half away from zero.
func (a Floats) Round() Floats {
	out := make(Floats, len(a))
	for i, v := range a {
		out[i] = math.Round(v)
	}
	return out
}

func (a Floats) compare(k float64, f func(x, k float64) bool) Bools {
	out := make(Bools, len(a))
	for i, v := range a {
		out[i] = f(v, k)
	}
	return out
}

func (a Floats) Gt(k float64) Bools  { return a.compare(k, func(x, k float64) bool { return x > k }) }
func (a Floats) Gte(k float64) Bools { return a.compare(k, func(x, k float64) bool { return x >= k }) }
func (a Floats) Lt(k float64) Bools  { return a.compare(k, func(x, k float64) bool { return x < k }) }
func (a Floats) Lte(k float64) Bools { return a.compare(k, func(x, k float64) bool { return x <= k }) }
func (a Floats) Eq(k float64) Bools  { return a.compare(k, func(x, k float64) bool { return x == k }) }

// Floats widens to float64.
func (a Ints) Floats() Floats {
	out := make(Floats, len(a))
	for i, v := range a {
		out[i] = float64(v)
	}
	return out
}

// Gte returns a[i] >= k.
func (a Ints) Gte(k int64) Bools {
	out := make(Bools, len(a))
	for i, v := range a {
		out[i] = v >= k
	}
	return out
}

// Floats maps true to 1 and false to 0.
func (a Bools) Floats() Floats {
	out := make(Floats, len(a))
	for i, v := range a {
		if v {
			out[i] = 1
		}
	}
	return out
}

// And returns a[i] && b[i].
func (a Bools) And(b Bools) Bools {
	out := make(Bools, len(a))
	for i := range a {
		out[i] = a[i] && b[i]
	}
	return out
}

// Or returns a[i] || b[i].
func (a Bools) Or(b Bools) Bools {
	out := make(Bools, len(a))
	for i := range a {
		out[i] = a[i] || b[i]
	}
	return out
}

// Not returns !a[i].
func (a Bools) Not() Bools {
	out := make(Bools, len(a))
	for i, v := range a {
		out[i] = !v
	}
	return out
}

// Any reports whether some element is true.
func (a Bools) Any() bool {
	for _, v := range a {
		if v {
			return true
		}
	}
	return false
}

// Format renders an array for logs and traces, truncated to max elements when
// max > 0.
func Format(arr Array, max int) string {
	if arr == nil {
		return "<nil>"
	}
	vals := Values(arr)
	if max > 0 && len(vals) > max {
		return fmt.Sprintf("%v…(%d more)", vals[:max], len(vals)-max)
	}
	return fmt.Sprint(vals)
}
