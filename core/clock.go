package core

import "time"

// Clock provides "today" to every component that reasons about
// deadlines or schedules. Engine code never reads the OS clock directly.
type Clock interface {
	// Today returns the current civil date as midnight UTC.
	Today() time.Time
}

type realClock struct{}

func NewClock() Clock { return realClock{} }

func (realClock) Today() time.Time {
	return Midnight(time.Now())
}

// FixedClock always returns the same date. For tests.
type FixedClock struct {
	Date time.Time
}

func NewFixedClock(year int, month time.Month, day int) *FixedClock {
	return &FixedClock{Date: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func (c *FixedClock) Today() time.Time { return Midnight(c.Date) }

// Advance moves the fixed date forward by n days.
func (c *FixedClock) Advance(days int) { c.Date = c.Date.AddDate(0, 0, days) }

// Midnight truncates t to its UTC civil date.
func Midnight(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
