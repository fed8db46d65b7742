// Package clock supplies the current instant to every date-dependent
// component. Nothing else in tally reads wall time directly.
package clock

import (
	"fmt"
	"sync"
	"time"
)

// DateKeyLayout is the calendar key format used for days and periods.
const DateKeyLayout = "2006-01-02"

// Clock produces the current instant.
type Clock interface {
	Now() time.Time
}

// System reads the real wall clock.
type System struct{}

func (System) Now() time.Time { return time.Now() }

// NowAsDateKey returns today's local calendar key according to c.
func NowAsDateKey(c Clock) string {
	return c.Now().In(time.Local).Format(DateKeyLayout)
}

// Fixed is a test clock. While pinned, Now returns the pinned instant;
// after ClearFixed it falls back to wall time.
//
// Safe for concurrent use.
type Fixed struct {
	mu     sync.Mutex
	at     time.Time
	pinned bool
}

// NewFixed returns a clock pinned to t.
func NewFixed(t time.Time) *Fixed {
	return &Fixed{at: t, pinned: true}
}

// NewFixedDate returns a clock pinned to local midnight of a YYYY-MM-DD key.
func NewFixedDate(date string) (*Fixed, error) {
	c := &Fixed{}
	if err := c.SetFixedDate(date); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Fixed) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.pinned {
		return time.Now()
	}
	return c.at
}

// SetFixed pins Now to t.
func (c *Fixed) SetFixed(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.at = t
	c.pinned = true
}

// SetFixedDate pins Now to local midnight of date. A bare date is never
// interpreted as UTC.
func (c *Fixed) SetFixedDate(date string) error {
	t, err := time.ParseInLocation(DateKeyLayout, date, time.Local)
	if err != nil {
		return fmt.Errorf("parse fixed date %q: %w", date, err)
	}
	c.SetFixed(t)
	return nil
}

// Advance moves a pinned clock forward by d. It is a no-op when unpinned.
func (c *Fixed) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pinned {
		c.at = c.at.Add(d)
	}
}

// ClearFixed unpins the clock.
func (c *Fixed) ClearFixed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pinned = false
}

// IsFixed reports whether the clock is currently pinned.
func (c *Fixed) IsFixed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pinned
}
