package attendance

import (
	"strconv"
	"strings"
	"time"

	"github.com/trezcool/mahudhurio/core"
)

// Month is a calendar year & month, identified by a "YYYY-MM" month key.
type Month struct {
	Year  int
	Month time.Month
}

// ParseMonth parses a "YYYY-MM" month key.
func ParseMonth(s string) (Month, error) {
	parts := strings.Split(core.CleanString(s), "-")
	if len(parts) != 2 {
		return Month{}, ErrInvalidMonthFormat
	}
	year, err := strconv.Atoi(parts[0])
	if err != nil || year < 1 || year > 9999 {
		return Month{}, ErrInvalidMonthFormat
	}
	month, err := strconv.Atoi(parts[1])
	if err != nil || month < 1 || month > 12 {
		return Month{}, ErrInvalidMonthFormat
	}
	return Month{Year: year, Month: time.Month(month)}, nil
}

func MonthOf(d core.Date) Month {
	return Month{Year: d.Year, Month: d.Month}
}

func (m Month) String() string {
	return core.Date{Year: m.Year, Month: m.Month, Day: 1}.String()[:7]
}

// Days returns the number of days in the month, leap years included.
func (m Month) Days() int {
	// day 0 of the next month is the last day of this one
	return time.Date(m.Year, m.Month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func (m Month) First() core.Date { return core.Date{Year: m.Year, Month: m.Month, Day: 1} }
func (m Month) Last() core.Date  { return core.Date{Year: m.Year, Month: m.Month, Day: m.Days()} }

func (m Month) Next() Month {
	if m.Month == time.December {
		return Month{Year: m.Year + 1, Month: time.January}
	}
	return Month{Year: m.Year, Month: m.Month + 1}
}

func (m Month) Contains(d core.Date) bool { return d.Year == m.Year && d.Month == m.Month }

func (m Month) Before(o Month) bool {
	return m.Year < o.Year || (m.Year == o.Year && m.Month < o.Month)
}

func (m Month) After(o Month) bool { return o.Before(m) }

// Dates returns every date of the month from day 1. The current month stops at `today` (inclusive).
func (m Month) Dates(today core.Date) []core.Date {
	last := m.Days()
	if MonthOf(today) == m {
		last = today.Day
	}
	dates := make([]core.Date, 0, last)
	for day := 1; day <= last; day++ {
		dates = append(dates, core.Date{Year: m.Year, Month: m.Month, Day: day})
	}
	return dates
}

// ResolveMonth turns a "YYYY-MM" month key into the dates to process as of `today`.
// Months other than the current one, future months included, resolve to all their days.
func ResolveMonth(month string, today core.Date) ([]core.Date, error) {
	m, err := ParseMonth(month)
	if err != nil {
		return nil, err
	}
	return m.Dates(today), nil
}
