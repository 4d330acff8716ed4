package periods

import (
	"fmt"
	"strings"
	"time"
)

// Instant is a calendar day. The zero value is the start of eternity.
type Instant struct {
	Year  int
	Month int
	Day   int
}

// NewInstant builds a normalized Instant; out-of-range components roll over
// the way time.Date does.
func NewInstant(year, month, day int) Instant {
	return fromTime(time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC))
}

func fromTime(t time.Time) Instant {
	return Instant{Year: t.Year(), Month: int(t.Month()), Day: t.Day()}
}

// Time returns the instant as midnight UTC.
func (i Instant) Time() time.Time {
	return time.Date(i.Year, time.Month(i.Month), i.Day, 0, 0, 0, 0, time.UTC)
}

// IsZero reports whether i is the eternity start.
func (i Instant) IsZero() bool { return i == Instant{} }

// Compare returns -1, 0 or +1.
func (i Instant) Compare(o Instant) int {
	switch {
	case i.Year != o.Year:
		return sign(i.Year - o.Year)
	case i.Month != o.Month:
		return sign(i.Month - o.Month)
	default:
		return sign(i.Day - o.Day)
	}
}

func (i Instant) Before(o Instant) bool { return i.Compare(o) < 0 }
func (i Instant) After(o Instant) bool  { return i.Compare(o) > 0 }

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	}
	return 0
}

// String formats the instant as YYYY-MM-DD.
func (i Instant) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", i.Year, i.Month, i.Day)
}

// Offset shifts the instant by n units. Month and year offsets clamp the day
// to the end of the target month (2017-01-31 + 1 month = 2017-02-28).
func (i Instant) Offset(n int, unit Unit) Instant {
	switch unit {
	case Day, WeekDay:
		return fromTime(i.Time().AddDate(0, 0, n))
	case Week:
		return fromTime(i.Time().AddDate(0, 0, 7*n))
	case Month:
		return i.addMonths(n)
	case Year:
		return i.addMonths(12 * n)
	}
	return i
}

func (i Instant) addMonths(n int) Instant {
	total := i.Year*12 + (i.Month - 1) + n
	year, month := total/12, total%12+1
	day := i.Day
	if last := daysIn(year, month); day > last {
		day = last
	}
	return Instant{Year: year, Month: month, Day: day}
}

func daysIn(year, month int) int {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// StartOf returns the first day of the unit containing i. Weeks start on Monday.
func (i Instant) StartOf(unit Unit) Instant {
	switch unit {
	case Year:
		return Instant{Year: i.Year, Month: 1, Day: 1}
	case Month:
		return Instant{Year: i.Year, Month: i.Month, Day: 1}
	case Week:
		wd := int(i.Time().Weekday())
		if wd == 0 {
			wd = 7
		}
		return i.Offset(1-wd, Day)
	case Eternity:
		return Instant{}
	}
	return i
}

// DaysUntil counts the days from i to o (negative when o is before i).
func (i Instant) DaysUntil(o Instant) int {
	return int(o.Time().Sub(i.Time()).Hours() / 24)
}

// ParseInstant accepts YYYY, YYYY-MM and YYYY-MM-DD; missing parts default to 1.
func ParseInstant(s string) (Instant, error) {
	parts := strings.Split(s, "-")
	if len(parts) > 3 {
		return Instant{}, formatError(s)
	}
	widths := []int{4, 2, 2}
	values := []int{0, 1, 1}
	for k, part := range parts {
		n, ok := digits(part, widths[k])
		if !ok {
			return Instant{}, formatError(s)
		}
		values[k] = n
	}
	y, m, d := values[0], values[1], values[2]
	if y < 1 || m < 1 || m > 12 || d < 1 || d > daysIn(y, m) {
		return Instant{}, formatError(s)
	}
	return Instant{Year: y, Month: m, Day: d}, nil
}

// digits parses a fixed-width run of ASCII digits.
func digits(s string, width int) (int, bool) {
	if len(s) != width {
		return 0, false
	}
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	return n, true
}
