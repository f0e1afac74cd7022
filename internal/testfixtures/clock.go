package testfixtures

import (
	"sync"
	"time"

	"github.com/example/item-scheduler/internal/recurrence"
)

// Clock is a settable time source shared by a service and the test driving
// it, so alert scans and "today" defaults can be stepped deterministically.
type Clock struct {
	mu      sync.Mutex
	current time.Time
}

// NewClock starts at start, or at ReferenceTime when start is zero.
func NewClock(start time.Time) *Clock {
	if start.IsZero() {
		start = ReferenceTime()
	}
	return &Clock{current: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// NowFunc returns Now for injection; a nil clock falls back to time.Now.
func (c *Clock) NowFunc() func() time.Time {
	if c == nil {
		return time.Now
	}
	return c.Now
}

// Advance moves the clock forward by d and returns the new instant.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
	return c.current
}

// SetWallClock moves the clock to hour:minute on date in loc.
func (c *Clock) SetWallClock(date recurrence.Date, hour, minute int, loc *time.Location) time.Time {
	at := recurrence.TimeOfDay{Hour: hour, Minute: minute}.On(date, loc)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = at
	return at
}

// Today is the calendar date the clock reads in loc.
func (c *Clock) Today(loc *time.Location) recurrence.Date {
	return recurrence.DateOf(c.Now().In(loc))
}
