package sim

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/legisim/legisim/sim/periods"
	"github.com/legisim/legisim/sim/vector"
)

// calculate is the engine entry point shared by Simulation.Calculate and
// Population.Calculate.
func (s *Simulation) calculate(v *Variable, pop *Population, period periods.Period) (vector.Array, error) {
	if v.DefinitionPeriod == periods.Eternity {
		period = periods.EternityPeriod
	}
	if err := checkCompatible(v, period); err != nil {
		return nil, err
	}
	if v.Neutralized {
		return v.DefaultArray(pop.Count), nil
	}
	return s.traced(v, period, func() (vector.Array, error) { return s.evaluate(v, pop, period) })
}

// traced runs fn inside a tracer frame, after the spiral check.
func (s *Simulation) traced(v *Variable, period periods.Period, fn func() (vector.Array, error)) (vector.Array, error) {
	if s.Tracer.Active(v.Name, period) >= s.maxSpiralLoops {
		return nil, &SpiralError{Cycle: s.Tracer.Cycle(v.Name, period)}
	}
	s.Tracer.Enter(v.Name, period)
	arr, err := fn()
	s.Tracer.Exit(arr, err)
	return arr, err
}

func (s *Simulation) evaluate(v *Variable, pop *Population, period periods.Period) (vector.Array, error) {
	h, err := pop.Holder(v.Name)
	if err != nil {
		return nil, err
	}
	cached, err := h.Get(period)
	if err != nil {
		return nil, err
	}
	if cached != nil {
		return cached, nil
	}

	switch {
	case period.Unit == v.DefinitionPeriod && period.Size == 1:
		return s.runFormula(v, pop, h, period)
	case period.Unit.CoarserThan(v.DefinitionPeriod) || period.Unit == v.DefinitionPeriod:
		return s.calculateAdd(v, pop, period)
	default:
		return s.calculateDivide(v, pop, period)
	}
}

func (s *Simulation) runFormula(v *Variable, pop *Population, h *Holder, period periods.Period) (vector.Array, error) {
	f := v.Formula(period)
	if f == nil {
		arr := v.DefaultArray(pop.Count)
		return arr, h.PutInCache(period, arr)
	}
	logrus.Debugf("computing %s@%s", v.Name, period)
	params := s.System.Parameters.At(period.Start).Observe(s.Tracer.RecordParameter)
	arr, err := f(pop, period, params)
	if err != nil {
		return nil, err
	}
	arr, err = h.normalize(arr)
	if err != nil {
		return nil, err
	}
	if err := h.PutInCache(period, arr); err != nil {
		return nil, err
	}
	return arr, nil
}

// calculateAdd sums the definition periods tiling period.
func (s *Simulation) calculateAdd(v *Variable, pop *Population, period periods.Period) (vector.Array, error) {
	if !v.ValueType.Additive() || v.NonAdditive {
		return nil, &PeriodMismatchError{
			Variable:  v.Name,
			Requested: period,
			Reason: fmt.Sprintf("%q is defined by %s and cannot be summed over a %s; request it for one %s, e.g. %s",
				v.Name, v.DefinitionPeriod, period.Unit, v.DefinitionPeriod, period.WithUnit(v.DefinitionPeriod)),
		}
	}
	subs, err := period.Subdivide(v.DefinitionPeriod)
	if err != nil {
		return nil, &PeriodMismatchError{Variable: v.Name, Requested: period, Reason: err.Error()}
	}
	total := vector.Zeros(v.ValueType, v.Enum, pop.Count)
	for _, sub := range subs {
		arr, err := s.calculate(v, pop, sub)
		if err != nil {
			return nil, err
		}
		if total, err = vector.Add(total, arr); err != nil {
			return nil, &VariableValueError{Variable: v.Name, Err: err}
		}
	}
	return total, nil
}

// calculateDivide computes the definition period starting with period and
// keeps the share of it that period covers.
func (s *Simulation) calculateDivide(v *Variable, pop *Population, period periods.Period) (vector.Array, error) {
	if !v.ValueType.Additive() || v.NonAdditive || v.DefinitionPeriod == periods.Eternity {
		return nil, &PeriodMismatchError{
			Variable:  v.Name,
			Requested: period,
			Reason: fmt.Sprintf("%q is defined by %s and cannot be divided into a %s; request it for %s",
				v.Name, v.DefinitionPeriod, period.Unit, period.WithUnit(v.DefinitionPeriod)),
		}
	}
	container := period.WithUnit(v.DefinitionPeriod)
	if !container.Contains(period) {
		return nil, &PeriodMismatchError{
			Variable:  v.Name,
			Requested: period,
			Reason:    fmt.Sprintf("%s spans several %ss", period, v.DefinitionPeriod),
		}
	}
	parts, err := container.Count(period.Unit)
	if err != nil {
		return nil, &PeriodMismatchError{Variable: v.Name, Requested: period, Reason: err.Error()}
	}
	arr, err := s.calculate(v, pop, container)
	if err != nil {
		return nil, err
	}
	out, err := vector.Divide(arr, float64(parts)/float64(period.Size))
	if err != nil {
		return nil, &VariableValueError{Variable: v.Name, Err: err}
	}
	return out, nil
}

// checkCompatible rejects week queries of month or day variables and month
// queries of week variables: weeks and months do not tile each other.
func checkCompatible(v *Variable, period periods.Period) error {
	def := v.DefinitionPeriod
	switch {
	case (def == periods.Month || def == periods.Day) && period.Unit == periods.Week:
		return &IncompatiblePeriodError{Variable: v.Name, Requested: period, Definition: def, Suggestion: "period.ThisYear()"}
	case (def == periods.Week || def == periods.WeekDay) && period.Unit == periods.Month:
		return &IncompatiblePeriodError{Variable: v.Name, Requested: period, Definition: def, Suggestion: "period.ThisYear() or period.FirstWeek()"}
	case def != periods.Eternity && period.Unit == periods.Eternity:
		return &PeriodMismatchError{Variable: v.Name, Requested: period, Reason: fmt.Sprintf("%q is defined by %s, not for eternity", v.Name, def)}
	}
	return nil
}
