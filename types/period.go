package types

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the wire and storage format for calendar dates.
const DateLayout = "2006-01-02"

// PeriodKind distinguishes the calendar unit a timesheet covers.
type PeriodKind string

const (
	PeriodMonth PeriodKind = "month"
	PeriodWeek  PeriodKind = "week"
)

// Period is the calendar span covered by one timesheet.
// Key is unique per kind: "2024-01" for months, "2024-W03" for ISO weeks.
type Period struct {
	Kind  PeriodKind `json:"kind"`
	Key   string     `json:"key"`
	Start time.Time  `json:"start"`
	End   time.Time  `json:"end"`
}

var weekKey = regexp.MustCompile(`^(\d{4})-[Ww](\d{2})$`)

// ErrInvalidPeriod is returned when a period identifier cannot be parsed.
var ErrInvalidPeriod = errors.New("invalid period")

// ParsePeriod resolves a period identifier.
//
// Accepted forms:
//
//	2024-01      calendar month
//	2024-W03     ISO week (Monday to Sunday)
//	2024-01-31   deprecated week-ending date, resolved to its month
func ParsePeriod(raw string) (Period, error) {
	raw = strings.TrimSpace(raw)
	switch {
	case len(raw) == len("2006-01"):
		month, err := time.Parse("2006-01", raw)
		if err != nil {
			return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, raw)
		}
		return MonthPeriod(month), nil
	case len(raw) == len("2006-W01") && strings.EqualFold(raw[4:6], "-W"):
		m := weekKey.FindStringSubmatch(raw)
		if m == nil {
			return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, raw)
		}
		year, _ := strconv.Atoi(m[1])
		week, _ := strconv.Atoi(m[2])
		return WeekPeriod(year, week)
	case len(raw) == len(DateLayout):
		date, err := time.Parse(DateLayout, raw)
		if err != nil {
			return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, raw)
		}
		return MonthPeriod(date), nil
	default:
		return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, raw)
	}
}

// MonthPeriod returns the calendar month containing t.
func MonthPeriod(t time.Time) Period {
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, -1)
	return Period{
		Kind:  PeriodMonth,
		Key:   start.Format("2006-01"),
		Start: start,
		End:   end,
	}
}

// WeekPeriod returns the ISO week identified by year and week number.
func WeekPeriod(year, week int) (Period, error) {
	if week < 1 || week > 53 {
		return Period{}, fmt.Errorf("%w: week %d", ErrInvalidPeriod, week)
	}
	// January 4th is always in ISO week 1.
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
	offset := (int(jan4.Weekday()) + 6) % 7
	start := jan4.AddDate(0, 0, -offset+(week-1)*7)
	if y, w := start.ISOWeek(); y != year || w != week {
		return Period{}, fmt.Errorf("%w: %d has no week %d", ErrInvalidPeriod, year, week)
	}
	return Period{
		Kind:  PeriodWeek,
		Key:   fmt.Sprintf("%04d-W%02d", year, week),
		Start: start,
		End:   start.AddDate(0, 0, 6),
	}, nil
}

// WeekPeriodOf returns the ISO week containing t.
func WeekPeriodOf(t time.Time) Period {
	year, week := t.ISOWeek()
	p, _ := WeekPeriod(year, week)
	return p
}

// Contains reports whether the calendar date of t falls inside the period.
func (p Period) Contains(t time.Time) bool {
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return !d.Before(p.Start) && !d.After(p.End)
}
