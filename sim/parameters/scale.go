package parameters

import (
	"fmt"
	"math"
	"sort"

	"github.com/legisim/legisim/sim/periods"
	"github.com/legisim/legisim/sim/vector"
)

// ScaleType selects how a Scale evaluates at an instant.
type ScaleType string

const (
	MarginalRate ScaleType = "marginal_rate"
	SingleAmount ScaleType = "single_amount"
)

// Bracket holds the timelines of one scale bracket. Amount is used by
// single-amount scales, Rate by marginal-rate scales.
type Bracket struct {
	Threshold *Parameter
	Rate      *Parameter
	Amount    *Parameter
}

func (b *Bracket) clone() *Bracket {
	c := &Bracket{}
	if b.Threshold != nil {
		c.Threshold = b.Threshold.clone().(*Parameter)
	}
	if b.Rate != nil {
		c.Rate = b.Rate.clone().(*Parameter)
	}
	if b.Amount != nil {
		c.Amount = b.Amount.clone().(*Parameter)
	}
	return c
}

// Scale is a time-indexed list of brackets.
type Scale struct {
	name        string
	description string
	Type        ScaleType
	Brackets    []*Bracket
}

// NewScale builds a scale node.
func NewScale(name, description string, typ ScaleType, brackets ...*Bracket) *Scale {
	return &Scale{name: name, description: description, Type: typ, Brackets: brackets}
}

func (s *Scale) Name() string        { return s.name }
func (s *Scale) Description() string { return s.description }

func (s *Scale) clone() Node {
	c := &Scale{name: s.name, description: s.description, Type: s.Type, Brackets: make([]*Bracket, len(s.Brackets))}
	for i, b := range s.Brackets {
		c.Brackets[i] = b.clone()
	}
	return c
}

// Evaluator is a scale collapsed at one instant.
type Evaluator interface {
	Calc(base vector.Floats) vector.Floats
}

// At collapses the scale. Brackets whose threshold is not active at instant
// are skipped.
func (s *Scale) At(instant periods.Instant) (Evaluator, error) {
	switch s.Type {
	case SingleAmount:
		out := &SingleAmountScale{Name: s.name}
		for _, b := range s.Brackets {
			t, ok, err := bracketValue(b.Threshold, b.Amount, instant)
			if err != nil || !ok {
				if err != nil {
					return nil, err
				}
				continue
			}
			amount, err := floatAt(b.Amount, instant)
			if err != nil {
				return nil, err
			}
			out.AddBracket(t, amount)
		}
		return out, nil
	default:
		out := NewMarginalRateScale(s.name)
		for _, b := range s.Brackets {
			t, ok, err := bracketValue(b.Threshold, b.Rate, instant)
			if err != nil || !ok {
				if err != nil {
					return nil, err
				}
				continue
			}
			rate, err := floatAt(b.Rate, instant)
			if err != nil {
				return nil, err
			}
			out.AddBracket(t, rate)
		}
		return out, nil
	}
}

func bracketValue(threshold, value *Parameter, instant periods.Instant) (float64, bool, error) {
	if threshold == nil || value == nil {
		return 0, false, fmt.Errorf("bracket without threshold or value")
	}
	t, err := floatAt(threshold, instant)
	if err != nil {
		return 0, false, nil
	}
	return t, true, nil
}

func floatAt(p *Parameter, instant periods.Instant) (float64, error) {
	v, err := p.At(instant)
	if err != nil {
		return 0, err
	}
	return toFloat(p.name, v)
}

func toFloat(path string, v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	}
	return 0, fmt.Errorf("parameter %q: %T is not a number", path, v)
}

// MarginalRateScale is a piecewise-linear tax schedule: rate i applies to the
// part of the base between threshold i and threshold i+1.
type MarginalRateScale struct {
	Name       string    `json:"name"`
	Thresholds []float64 `json:"thresholds"`
	Rates      []float64 `json:"rates"`
}

// NewMarginalRateScale builds an empty scale.
func NewMarginalRateScale(name string) *MarginalRateScale {
	return &MarginalRateScale{Name: name}
}

// AddBracket inserts a bracket keeping thresholds sorted. Rates of brackets
// sharing a threshold are summed.
func (s *MarginalRateScale) AddBracket(threshold, rate float64) {
	i := sort.SearchFloat64s(s.Thresholds, threshold)
	if i < len(s.Thresholds) && s.Thresholds[i] == threshold {
		s.Rates[i] += rate
		return
	}
	s.Thresholds = append(s.Thresholds, 0)
	s.Rates = append(s.Rates, 0)
	copy(s.Thresholds[i+1:], s.Thresholds[i:])
	copy(s.Rates[i+1:], s.Rates[i:])
	s.Thresholds[i] = threshold
	s.Rates[i] = rate
}

// CalcOne evaluates the scale on a single base.
func (s *MarginalRateScale) CalcOne(x float64) float64 {
	total := 0.0
	for i, t := range s.Thresholds {
		if x <= t {
			break
		}
		upper := math.Inf(1)
		if i+1 < len(s.Thresholds) {
			upper = s.Thresholds[i+1]
		}
		total += s.Rates[i] * (math.Min(x, upper) - t)
	}
	return total
}

// Calc evaluates the scale elementwise.
func (s *MarginalRateScale) Calc(base vector.Floats) vector.Floats {
	out := make(vector.Floats, len(base))
	for i, x := range base {
		out[i] = s.CalcOne(x)
	}
	return out
}

// AverageRate returns Calc(x)/x, or 0 where x <= 0.
func (s *MarginalRateScale) AverageRate(base vector.Floats) vector.Floats {
	out := make(vector.Floats, len(base))
	for i, x := range base {
		if x > 0 {
			out[i] = s.CalcOne(x) / x
		}
	}
	return out
}

// MarginalRate returns the rate of the bracket each base falls in.
func (s *MarginalRateScale) MarginalRate(base vector.Floats) vector.Floats {
	out := make(vector.Floats, len(base))
	for i, x := range base {
		out[i] = s.rateAt(x)
	}
	return out
}

// rateAt is the rate of the last bracket whose threshold is <= x.
func (s *MarginalRateScale) rateAt(x float64) float64 {
	i := sort.Search(len(s.Thresholds), func(i int) bool { return s.Thresholds[i] > x }) - 1
	if i < 0 {
		return 0
	}
	return s.Rates[i]
}

func (s *MarginalRateScale) copyScale(name string) *MarginalRateScale {
	return &MarginalRateScale{
		Name:       name,
		Thresholds: append([]float64(nil), s.Thresholds...),
		Rates:      append([]float64(nil), s.Rates...),
	}
}

// MultiplyThresholds returns a copy with every threshold scaled by k.
func (s *MarginalRateScale) MultiplyThresholds(k float64) *MarginalRateScale {
	out := s.copyScale(s.Name)
	for i := range out.Thresholds {
		out.Thresholds[i] *= k
	}
	return out
}

// MultiplyRates returns a copy with every rate scaled by k.
func (s *MarginalRateScale) MultiplyRates(k float64) *MarginalRateScale {
	out := s.copyScale(s.Name)
	for i := range out.Rates {
		out.Rates[i] *= k
	}
	return out
}

// Combine returns the scale whose value is s(x)+o(x): thresholds are the
// union of both and each bracket's rate is the sum of the rates in force.
func (s *MarginalRateScale) Combine(o *MarginalRateScale) *MarginalRateScale {
	out := NewMarginalRateScale(s.Name)
	union := append(append([]float64(nil), s.Thresholds...), o.Thresholds...)
	sort.Float64s(union)
	for i, t := range union {
		if i > 0 && union[i-1] == t {
			continue
		}
		out.Thresholds = append(out.Thresholds, t)
		out.Rates = append(out.Rates, s.rateAt(t)+o.rateAt(t))
	}
	return out
}

// Inverse returns the scale mapping a post-tax amount y = x - s(x) back to x.
// Every rate must be below 1 so the post-tax function is increasing.
func (s *MarginalRateScale) Inverse() (*MarginalRateScale, error) {
	out := NewMarginalRateScale(s.Name + "'")
	if len(s.Thresholds) == 0 {
		out.AddBracket(0, 1)
		return out, nil
	}
	if s.Thresholds[0] < 0 {
		return nil, fmt.Errorf("inverse of %q: negative threshold %g", s.Name, s.Thresholds[0])
	}
	if s.Thresholds[0] > 0 {
		out.AddBracket(0, 1)
	}
	for i, t := range s.Thresholds {
		r := s.Rates[i]
		if r >= 1 {
			return nil, fmt.Errorf("inverse of %q: rate %g at threshold %g is not below 1", s.Name, r, t)
		}
		out.AddBracket(t-s.CalcOne(t), 1/(1-r))
	}
	return out, nil
}

// SingleAmountScale maps a base to the amount of the bracket it falls in.
type SingleAmountScale struct {
	Name       string    `json:"name"`
	Thresholds []float64 `json:"thresholds"`
	Amounts    []float64 `json:"amounts"`
}

// AddBracket inserts a bracket keeping thresholds sorted.
func (s *SingleAmountScale) AddBracket(threshold, amount float64) {
	i := sort.SearchFloat64s(s.Thresholds, threshold)
	if i < len(s.Thresholds) && s.Thresholds[i] == threshold {
		s.Amounts[i] = amount
		return
	}
	s.Thresholds = append(s.Thresholds, 0)
	s.Amounts = append(s.Amounts, 0)
	copy(s.Thresholds[i+1:], s.Thresholds[i:])
	copy(s.Amounts[i+1:], s.Amounts[i:])
	s.Thresholds[i] = threshold
	s.Amounts[i] = amount
}

// Calc returns, for each base, the amount of the last bracket whose threshold
// is <= base, or 0 below the first threshold.
func (s *SingleAmountScale) Calc(base vector.Floats) vector.Floats {
	out := make(vector.Floats, len(base))
	for i, x := range base {
		j := sort.Search(len(s.Thresholds), func(k int) bool { return s.Thresholds[k] > x }) - 1
		if j >= 0 {
			out[i] = s.Amounts[j]
		}
	}
	return out
}
