package periods

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// String returns the canonical literal of p. Parse(p.String()) == p.
func (p Period) String() string {
	if p.Unit == Eternity {
		return "ETERNITY"
	}
	start, natural := p.startLiteral()
	switch {
	case natural && p.Size == 1:
		return start
	case p.Size == 1:
		return fmt.Sprintf("%s:%s", p.Unit, start)
	default:
		return fmt.Sprintf("%s:%s:%d", p.Unit, start, p.Size)
	}
}

// startLiteral returns the shortest literal for p.Start and whether that
// literal alone parses back to a size-1 period of p.Unit.
func (p Period) startLiteral() (string, bool) {
	s := p.Start
	switch p.Unit {
	case Year:
		if s.Month == 1 && s.Day == 1 {
			return fmt.Sprintf("%04d", s.Year), true
		}
		if s.Day == 1 {
			return fmt.Sprintf("%04d-%02d", s.Year, s.Month), false
		}
	case Month:
		if s.Day == 1 {
			return fmt.Sprintf("%04d-%02d", s.Year, s.Month), true
		}
	case Day:
		return s.String(), true
	case Week:
		if s.StartOf(Week) == s {
			y, w := s.Time().ISOWeek()
			return fmt.Sprintf("%04d-W%02d", y, w), true
		}
	case WeekDay:
		y, w := s.Time().ISOWeek()
		wd := int(s.Time().Weekday())
		if wd == 0 {
			wd = 7
		}
		return fmt.Sprintf("%04d-W%02d-%d", y, w, wd), true
	}
	return s.String(), false
}

// Parse reads a period literal:
//
//	2017            year
//	2017-03         month
//	2017-03-05      day
//	2017-W09        ISO week
//	2017-W09-3      ISO weekday
//	year:2017:3     unit:start[:size], start in any of the forms above
//	ETERNITY
func Parse(s string) (Period, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "eternity") {
		return EternityPeriod, nil
	}
	if !strings.Contains(s, ":") {
		return parseStart(s)
	}
	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return Period{}, formatError(s)
	}
	unit := Unit(strings.ToLower(parts[0]))
	if !IsValidUnit(string(unit)) || unit == Eternity {
		return Period{}, formatError(s)
	}
	base, err := parseStart(parts[1])
	if err != nil {
		return Period{}, formatError(s)
	}
	if base.Unit.CoarserThan(unit) && base.Unit != Year {
		// "day:2017-03" is ambiguous about which day is meant.
		return Period{}, formatError(s)
	}
	if (unit == Week || unit == WeekDay) != (base.Unit == Week || base.Unit == WeekDay) && base.Unit != Day {
		return Period{}, formatError(s)
	}
	size := 1
	if len(parts) == 3 {
		size, err = strconv.Atoi(parts[2])
		if err != nil || size < 1 {
			return Period{}, formatError(s)
		}
	}
	return Period{Unit: unit, Start: base.Start, Size: size}, nil
}

// parseStart parses a bare literal into a size-1 period of its natural unit.
func parseStart(s string) (Period, error) {
	if idx := strings.Index(s, "-W"); idx >= 0 {
		return parseWeek(s, idx)
	}
	inst, err := ParseInstant(s)
	if err != nil {
		return Period{}, formatError(s)
	}
	switch strings.Count(s, "-") {
	case 0:
		return Period{Unit: Year, Start: inst, Size: 1}, nil
	case 1:
		return Period{Unit: Month, Start: inst, Size: 1}, nil
	default:
		return Period{Unit: Day, Start: inst, Size: 1}, nil
	}
}

func parseWeek(s string, idx int) (Period, error) {
	year, ok := digits(s[:idx], 4)
	if !ok {
		return Period{}, formatError(s)
	}
	rest := strings.Split(s[idx+2:], "-")
	if len(rest) > 2 {
		return Period{}, formatError(s)
	}
	week, ok := digits(rest[0], 2)
	if !ok || week < 1 || week > isoWeeksIn(year) {
		return Period{}, formatError(s)
	}
	monday := isoWeekMonday(year, week)
	if len(rest) == 1 {
		return Period{Unit: Week, Start: monday, Size: 1}, nil
	}
	wd, ok := digits(rest[1], 1)
	if !ok || wd < 1 || wd > 7 {
		return Period{}, formatError(s)
	}
	return Period{Unit: WeekDay, Start: monday.Offset(wd-1, Day), Size: 1}, nil
}

// isoWeekMonday returns the Monday of ISO week w of year y. January 4th always
// falls in week 1.
func isoWeekMonday(y, w int) Instant {
	jan4 := Instant{Year: y, Month: 1, Day: 4}
	return jan4.StartOf(Week).Offset(w-1, Week)
}

func isoWeeksIn(y int) int {
	_, w := time.Date(y, 12, 28, 0, 0, 0, 0, time.UTC).ISOWeek()
	return w
}
