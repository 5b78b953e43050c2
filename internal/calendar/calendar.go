// Package calendar holds the trading calendar a backtest advances over.
package calendar

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

const DateFormat = "2006-01-02"

var (
	ErrEmptyCalendar    = errors.New("no trading dates in range")
	ErrIndexOutOfRange  = errors.New("calendar index out of range")
	ErrInvalidDateRange = errors.New("start date after end date")
)

// Calendar is an immutable, strictly increasing sequence of trading dates.
type Calendar struct {
	dates []time.Time
	index map[time.Time]int
}

// New builds a calendar from the trading dates within [start, end].
// Dates are truncated to UTC days; duplicates are dropped.
func New(dates []time.Time, start, end time.Time) (*Calendar, error) {
	start, end = Day(start), Day(end)
	if start.After(end) {
		return nil, fmt.Errorf("%s > %s: %w", start.Format(DateFormat), end.Format(DateFormat), ErrInvalidDateRange)
	}

	days := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		d = Day(d)
		if d.Before(start) || d.After(end) {
			continue
		}
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	c := &Calendar{
		dates: make([]time.Time, 0, len(days)),
		index: make(map[time.Time]int, len(days)),
	}
	for _, d := range days {
		if _, ok := c.index[d]; ok {
			continue
		}
		c.index[d] = len(c.dates)
		c.dates = append(c.dates, d)
	}
	if len(c.dates) == 0 {
		return nil, fmt.Errorf("%s to %s: %w", start.Format(DateFormat), end.Format(DateFormat), ErrEmptyCalendar)
	}
	return c, nil
}

// Day returns the UTC midnight of t's calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (c *Calendar) Len() int { return len(c.dates) }

func (c *Calendar) First() time.Time { return c.dates[0] }

func (c *Calendar) Last() time.Time { return c.dates[len(c.dates)-1] }

// LastIndex is the index of the last trading date.
func (c *Calendar) LastIndex() int { return len(c.dates) - 1 }

// Date returns the trading date at index i. It panics if i is out of range.
func (c *Calendar) Date(i int) time.Time { return c.dates[i] }

// Dates returns a copy of all trading dates.
func (c *Calendar) Dates() []time.Time {
	return append([]time.Time(nil), c.dates...)
}

func (c *Calendar) Contains(i int) bool { return i >= 0 && i < len(c.dates) }

// IndexOf returns the index of the trading date equal to the day of t.
func (c *Calendar) IndexOf(t time.Time) (int, bool) {
	i, ok := c.index[Day(t)]
	return i, ok
}

// IsMonthEnd reports whether index i is the last trading date of its month.
// The last calendar index counts as a month end.
func (c *Calendar) IsMonthEnd(i int) bool {
	if i == len(c.dates)-1 {
		return true
	}
	return c.dates[i].Month() != c.dates[i+1].Month() || c.dates[i].Year() != c.dates[i+1].Year()
}

// MonthsBetween returns the number of calendar months from the date at index i to
// the date at index j.
func (c *Calendar) MonthsBetween(i, j int) (int, error) {
	if !c.Contains(i) || !c.Contains(j) {
		return 0, fmt.Errorf("months between %d and %d: %w", i, j, ErrIndexOutOfRange)
	}
	a, b := c.dates[i], c.dates[j]
	return (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month()), nil
}
