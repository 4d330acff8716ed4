package sim

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/legisim/legisim/sim/periods"
	"github.com/legisim/legisim/sim/vector"
)

// cellSizes approximates the in-memory size of one element per dtype.
var cellSizes = map[vector.DType]int{
	vector.Bool:   1,
	vector.Int:    8,
	vector.Float:  8,
	vector.String: 16,
	vector.Date:   24,
	vector.Enum:   2,
}

// Holder stores the known arrays of one variable for one population, keyed
// by period. Arrays live in memory unless the memory policy sent them to the
// spill store.
type Holder struct {
	Variable *Variable
	pop      *Population
	memory   map[periods.Period]vector.Array
	disk     map[periods.Period]bool
}

// MemoryUsage describes what a holder keeps.
type MemoryUsage struct {
	DType          vector.DType `json:"dtype"`
	CellSize       int          `json:"cell_size"`
	NbCellsByArray int          `json:"nb_cells_by_array"`
	NbArrays       int          `json:"nb_arrays"`
	NbArraysOnDisk int          `json:"nb_arrays_on_disk"`
	TotalNbBytes   int          `json:"total_nb_bytes"`
}

func newHolder(v *Variable, pop *Population) *Holder {
	return &Holder{
		Variable: v,
		pop:      pop,
		memory:   make(map[periods.Period]vector.Array),
		disk:     make(map[periods.Period]bool),
	}
}

// Population is the population the holder belongs to.
func (h *Holder) Population() *Population { return h.pop }

// slot maps a period to its storage key. Eternity variables have one slot.
func (h *Holder) slot(period periods.Period) periods.Period {
	if h.Variable.DefinitionPeriod == periods.Eternity {
		return periods.EternityPeriod
	}
	return period
}

// Get returns the array stored for period, or nil when none is.
func (h *Holder) Get(period periods.Period) (vector.Array, error) {
	key := h.slot(period)
	if arr, ok := h.memory[key]; ok {
		return arr, nil
	}
	if !h.disk[key] {
		return nil, nil
	}
	store, err := h.pop.sim.memory.spillStore()
	if err != nil {
		return nil, err
	}
	arr, err := store.Get(h.Variable.Name, key, h.Variable.Enum)
	if err != nil {
		return nil, fmt.Errorf("reading spilled %q at %s: %w", h.Variable.Name, key, err)
	}
	return arr, nil
}

// Put stores arr for one definition period. The array must have one element
// per entity; its dtype is coerced to the variable's.
func (h *Holder) Put(period periods.Period, arr vector.Array) error {
	v := h.Variable
	key := h.slot(period)
	if key.Unit != periods.Eternity && (key.Unit != v.DefinitionPeriod || key.Size != 1) {
		return &PeriodMismatchError{
			Variable:  v.Name,
			Requested: period,
			Reason:    fmt.Sprintf("%q is defined by %s, values must be stored for one %s", v.Name, v.DefinitionPeriod, v.DefinitionPeriod),
		}
	}
	arr, err := h.normalize(arr)
	if err != nil {
		return err
	}
	policy := h.pop.sim.memory
	if policy.dropped(v.Name) {
		return nil
	}
	if policy.shouldSpill(v.Name) {
		store, err := policy.spillStore()
		if err != nil {
			return err
		}
		if err := store.Put(v.Name, key, arr); err != nil {
			return fmt.Errorf("spilling %q at %s: %w", v.Name, key, err)
		}
		logSpill(v.Name, arr.Len()*cellSizes[v.ValueType])
		delete(h.memory, key)
		h.disk[key] = true
		return nil
	}
	h.memory[key] = arr
	if h.disk[key] {
		delete(h.disk, key)
		store, err := policy.spillStore()
		if err == nil {
			err = store.Delete(v.Name, key)
		}
		if err != nil {
			logrus.Warnf("removing stale spilled %q at %s: %v", v.Name, key, err)
		}
	}
	return nil
}

// PutInCache stores a computed value unless caching is disabled for the
// variable.
func (h *Holder) PutInCache(period periods.Period, arr vector.Array) error {
	s := h.pop.sim
	name := h.Variable.Name
	if !h.Variable.Cacheable() || s.memory.dropped(name) || s.cacheBlacklist[name] || s.System.CacheBlacklist[name] {
		return nil
	}
	return h.Put(period, arr)
}

// normalize checks the length and coerces the dtype of arr.
func (h *Holder) normalize(arr vector.Array) (vector.Array, error) {
	if arr == nil {
		return nil, &VariableValueError{Variable: h.Variable.Name, Err: fmt.Errorf("%w: nil array", ErrLengthMismatch)}
	}
	arr = vector.Broadcast(arr, h.pop.Count)
	if arr.Len() != h.pop.Count {
		return nil, &VariableValueError{Variable: h.Variable.Name, Err: &vector.LengthError{Expected: h.pop.Count, Got: arr.Len()}}
	}
	out, err := vector.Coerce(arr, h.Variable.ValueType)
	if err != nil {
		return nil, &VariableValueError{Variable: h.Variable.Name, Err: err}
	}
	return out, nil
}

// Delete removes every stored array whose period lies inside period, or
// every array when period is nil.
func (h *Holder) Delete(period *periods.Period) error {
	var store interface {
		Delete(string, periods.Period) error
	}
	if len(h.disk) > 0 {
		s, err := h.pop.sim.memory.spillStore()
		if err != nil {
			return err
		}
		store = s
	}
	for k := range h.memory {
		if period == nil || period.Contains(k) {
			delete(h.memory, k)
		}
	}
	for k := range h.disk {
		if period == nil || period.Contains(k) {
			if err := store.Delete(h.Variable.Name, k); err != nil {
				return err
			}
			delete(h.disk, k)
		}
	}
	return nil
}

// SetInput stores an input given for any period, applying the variable's
// set_input policy when period is not a single definition period.
func (h *Holder) SetInput(period periods.Period, arr vector.Array) error {
	v := h.Variable
	if v.DefinitionPeriod == periods.Eternity {
		return h.Put(periods.EternityPeriod, arr)
	}
	if period.Unit == v.DefinitionPeriod && period.Size == 1 {
		return h.Put(period, arr)
	}
	switch v.SetInput {
	case SetInputDivide:
		return h.setInputDivide(period, arr)
	case SetInputDispatch:
		return h.setInputDispatch(period, arr)
	}
	return &PeriodMismatchError{
		Variable:  v.Name,
		Requested: period,
		Reason: fmt.Sprintf("%q is defined by %s and has no set_input policy spreading values over other periods; give one value per %s, e.g. %s",
			v.Name, v.DefinitionPeriod, v.DefinitionPeriod, period.WithUnit(v.DefinitionPeriod)),
	}
}

func (h *Holder) subPeriods(period periods.Period) ([]periods.Period, error) {
	subs, err := period.Subdivide(h.Variable.DefinitionPeriod)
	if err != nil {
		return nil, &PeriodMismatchError{Variable: h.Variable.Name, Requested: period, Reason: err.Error()}
	}
	return subs, nil
}

// setInputDivide spreads arr over the sub-periods that are not known yet,
// after subtracting the values of those that are.
func (h *Holder) setInputDivide(period periods.Period, arr vector.Array) error {
	subs, err := h.subPeriods(period)
	if err != nil {
		return err
	}
	arr, err = h.normalize(arr)
	if err != nil {
		return err
	}
	remaining, err := vector.ToFloats(arr)
	if err != nil {
		return &VariableValueError{Variable: h.Variable.Name, Err: err}
	}
	remaining = append(vector.Floats(nil), remaining...)
	var unknown []periods.Period
	for _, sub := range subs {
		known, err := h.Get(sub)
		if err != nil {
			return err
		}
		if known == nil {
			unknown = append(unknown, sub)
			continue
		}
		kf, err := vector.ToFloats(known)
		if err != nil {
			return err
		}
		remaining = remaining.Sub(kf)
	}
	if len(unknown) == 0 {
		return nil
	}
	share := remaining.Scale(1 / float64(len(unknown)))
	for _, sub := range unknown {
		if err := h.Put(sub, share.Clone()); err != nil {
			return err
		}
	}
	return nil
}

func (h *Holder) setInputDispatch(period periods.Period, arr vector.Array) error {
	subs, err := h.subPeriods(period)
	if err != nil {
		return err
	}
	for _, sub := range subs {
		if err := h.Put(sub, arr.Clone()); err != nil {
			return err
		}
	}
	return nil
}

// KnownPeriods lists the periods with a stored array, in memory or on disk.
func (h *Holder) KnownPeriods() []periods.Period {
	out := make([]periods.Period, 0, len(h.memory)+len(h.disk))
	for k := range h.memory {
		out = append(out, k)
	}
	for k := range h.disk {
		out = append(out, k)
	}
	periods.Sort(out)
	return out
}

// MemoryUsage reports the footprint of the arrays kept in memory.
func (h *Holder) MemoryUsage() MemoryUsage {
	cell := cellSizes[h.Variable.ValueType]
	return MemoryUsage{
		DType:          h.Variable.ValueType,
		CellSize:       cell,
		NbCellsByArray: h.pop.Count,
		NbArrays:       len(h.memory),
		NbArraysOnDisk: len(h.disk),
		TotalNbBytes:   cell * h.pop.Count * len(h.memory),
	}
}
