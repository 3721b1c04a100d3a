package core

import (
	"errors"
	"time"
)

// Date is a calendar date pinned to UTC midnight. The ledger never cares
// about time of day.
type Date struct {
	time.Time
}

func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar date in UTC.
func DateOf(t time.Time) Date {
	y, m, d := t.UTC().Date()
	return NewDate(y, int(m), d)
}

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	return nil
}

func (d Date) Day() int   { return d.Time.Day() }
func (d Date) Month() int { return int(d.Time.Month()) }
func (d Date) Year() int  { return d.Time.Year() }

// Before reports whether d is strictly earlier than other.
func (d Date) Before(other Date) bool {
	return d.Time.Before(other.Time)
}

func (d Date) After(other Date) bool {
	return d.Time.After(other.Time)
}

func (d Date) Equal(other Date) bool {
	return d.Time.Equal(other.Time)
}

// DaysInMonth returns the number of days in the given month.
func DaysInMonth(year, month int) int {
	// Day zero of the next month is the last day of this one.
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// OccurrenceDate computes the date a monthly rule lands on within a given
// month: the rule's day-of-month, clamped to the month's length. A rule
// scheduled for the 31st lands on the 28th, 29th or 30th of shorter months.
func OccurrenceDate(year, month, dayOfMonth int) Date {
	last := DaysInMonth(year, month)
	if dayOfMonth > last {
		dayOfMonth = last
	}
	return NewDate(year, month, dayOfMonth)
}

// NextMonth returns the (year, month) pair following the given one.
func NextMonth(year, month int) (int, int) {
	if month == 12 {
		return year + 1, 1
	}
	return year, month + 1
}

// MonthLTE reports whether (y1, m1) is the same month as or earlier than
// (y2, m2).
func MonthLTE(y1, m1, y2, m2 int) bool {
	if y1 != y2 {
		return y1 < y2
	}
	return m1 <= m2
}
