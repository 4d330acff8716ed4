// Package periods implements the calendar algebra used to key every value in a
// simulation: instants, units and half-open periods [start, start+size·unit).
package periods

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Unit is the calendar unit of a Period.
type Unit string

const (
	Day      Unit = "day"
	WeekDay  Unit = "weekday"
	Week     Unit = "week"
	Month    Unit = "month"
	Year     Unit = "year"
	Eternity Unit = "eternity"
)

// unitWeights orders units by coarseness. Week and month share a weight, as do
// day and weekday: neither of the pair contains the other.
var unitWeights = map[Unit]int{
	Day:      100,
	WeekDay:  100,
	Week:     200,
	Month:    200,
	Year:     300,
	Eternity: 400,
}

// IsValidUnit returns true if the given string names a unit.
func IsValidUnit(u string) bool {
	_, ok := unitWeights[Unit(u)]
	return ok
}

// Weight returns the coarseness rank of u.
func (u Unit) Weight() int { return unitWeights[u] }

// CoarserThan reports whether u is strictly coarser than o.
func (u Unit) CoarserThan(o Unit) bool { return u.Weight() > o.Weight() }

var (
	// ErrInvalidPeriodFormat is returned by Parse for unrecognized literals.
	ErrInvalidPeriodFormat = errors.New("invalid period format")
	// ErrInvalidSubdivision is returned when a period cannot be tiled by a unit.
	ErrInvalidSubdivision = errors.New("invalid period subdivision")
)

// FormatError carries the literal that failed to parse.
type FormatError struct {
	Input string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%s: %q (expected YYYY, YYYY-MM, YYYY-MM-DD, YYYY-Www, YYYY-Www-d, unit:start[:size] or ETERNITY)",
		ErrInvalidPeriodFormat, e.Input)
}

func (e *FormatError) Unwrap() error { return ErrInvalidPeriodFormat }

func formatError(s string) error { return &FormatError{Input: s} }

// Period is the half-open interval [Start, Start + Size·Unit).
// Periods are comparable and are used directly as map keys.
type Period struct {
	Unit  Unit
	Start Instant
	Size  int
}

// EternityPeriod is the canonical key of values that never change.
var EternityPeriod = Period{Unit: Eternity, Size: 1}

// New builds a period; it does not validate its arguments.
func New(unit Unit, start Instant, size int) Period {
	if unit == Eternity {
		return EternityPeriod
	}
	return Period{Unit: unit, Start: start, Size: size}
}

// YearOf returns the calendar year y.
func YearOf(y int) Period { return Period{Unit: Year, Start: Instant{y, 1, 1}, Size: 1} }

// MonthOf returns the calendar month y-m.
func MonthOf(y, m int) Period { return Period{Unit: Month, Start: Instant{y, m, 1}, Size: 1} }

// DayOf returns the single day y-m-d.
func DayOf(y, m, d int) Period { return Period{Unit: Day, Start: Instant{y, m, d}, Size: 1} }

// MustParse is Parse for literals known to be valid; it panics otherwise.
func MustParse(s string) Period {
	p, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return p
}

// End returns the first instant after the period.
func (p Period) End() Instant {
	if p.Unit == Eternity {
		return Instant{Year: 9999, Month: 12, Day: 31}
	}
	return p.Start.Offset(p.Size, p.Unit)
}

// Stop returns the last day inside the period.
func (p Period) Stop() Instant {
	if p.Unit == Eternity {
		return p.End()
	}
	return p.End().Offset(-1, Day)
}

// Days counts the days in the period.
func (p Period) Days() int { return p.Start.DaysUntil(p.End()) }

// Contains reports whether o lies entirely inside p and p's unit is at least as
// coarse as o's.
func (p Period) Contains(o Period) bool {
	if p.Unit == Eternity {
		return true
	}
	if o.Unit == Eternity {
		return false
	}
	if p.Unit.Weight() < o.Unit.Weight() {
		return false
	}
	return !o.Start.Before(p.Start) && !o.End().After(p.End())
}

// Subdivide enumerates the unit-long periods that tile p, in order.
func (p Period) Subdivide(unit Unit) ([]Period, error) {
	if unit == Eternity || p.Unit == Eternity {
		if unit == Eternity && p.Unit == Eternity {
			return []Period{EternityPeriod}, nil
		}
		return nil, fmt.Errorf("%w: cannot split %s into %s periods", ErrInvalidSubdivision, p, unit)
	}
	if unit.CoarserThan(p.Unit) {
		return nil, fmt.Errorf("%w: %s is finer than %s", ErrInvalidSubdivision, p, unit)
	}
	end := p.End()
	var out []Period
	for start := p.Start; start.Before(end); start = start.Offset(1, unit) {
		sub := Period{Unit: unit, Start: start, Size: 1}
		if sub.End().After(end) {
			return nil, fmt.Errorf("%w: %s is not a whole number of %ss", ErrInvalidSubdivision, p, unit)
		}
		out = append(out, sub)
	}
	return out, nil
}

// Count returns how many unit-long periods tile p.
func (p Period) Count(unit Unit) (int, error) {
	subs, err := p.Subdivide(unit)
	if err != nil {
		return 0, err
	}
	return len(subs), nil
}

// Offset shifts the start by n units, keeping unit and size.
func (p Period) Offset(n int, unit Unit) Period {
	if p.Unit == Eternity {
		return p
	}
	return Period{Unit: p.Unit, Start: p.Start.Offset(n, unit), Size: p.Size}
}

// LastMonths returns the n consecutive months ending just before p starts,
// as one month-unit period of size n.
func (p Period) LastMonths(n int) Period {
	start := p.Start.StartOf(Month).Offset(-n, Month)
	return Period{Unit: Month, Start: start, Size: n}
}

// FirstMonth is the month in which p starts.
func (p Period) FirstMonth() Period {
	return Period{Unit: Month, Start: p.Start.StartOf(Month), Size: 1}
}

// FirstDay is the day on which p starts.
func (p Period) FirstDay() Period {
	return Period{Unit: Day, Start: p.Start, Size: 1}
}

// FirstWeek is the ISO week containing p's start.
func (p Period) FirstWeek() Period {
	return Period{Unit: Week, Start: p.Start.StartOf(Week), Size: 1}
}

// ThisYear is the calendar year containing p's start.
func (p Period) ThisYear() Period {
	return Period{Unit: Year, Start: p.Start.StartOf(Year), Size: 1}
}

// LastYear is the calendar year before ThisYear.
func (p Period) LastYear() Period {
	return p.ThisYear().Offset(-1, Year)
}

// WithUnit returns the size-1 period of unit u starting at the start of the u
// containing p's start.
func (p Period) WithUnit(u Unit) Period {
	if u == Eternity {
		return EternityPeriod
	}
	return Period{Unit: u, Start: p.Start.StartOf(u), Size: 1}
}

// Compare orders periods by unit coarseness (coarsest first), then start, then size.
func (p Period) Compare(o Period) int {
	if wp, wo := p.Unit.Weight(), o.Unit.Weight(); wp != wo {
		return sign(wo - wp)
	}
	if c := p.Start.Compare(o.Start); c != 0 {
		return c
	}
	if c := sign(p.Size - o.Size); c != 0 {
		return c
	}
	return strings.Compare(string(p.Unit), string(o.Unit))
}

// Sort sorts periods in place using Compare.
func Sort(ps []Period) {
	sort.Slice(ps, func(i, j int) bool { return ps[i].Compare(ps[j]) < 0 })
}
