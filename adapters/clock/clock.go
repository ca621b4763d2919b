// Package clock provides the time source used by request timing and the
// built-in clock service.
package clock

import (
	"sync"
	"time"
)

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// Real is the wall clock.
type Real struct{}

// Now returns time.Now.
func (Real) Now() time.Time {
	return time.Now()
}

// Fake is a manually driven clock. Uptime, phase durations and log
// timestamps are pinned with it in tests.
type Fake struct {
	mu      sync.RWMutex
	current time.Time
}

// NewFake returns a Fake stopped at t.
func NewFake(t time.Time) *Fake {
	return &Fake{current: t}
}

func (f *Fake) Now() time.Time {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.current
}

// Set jumps to t.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = t
}

// Advance moves the clock by d, which may be negative.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = f.current.Add(d)
}

// Zoned reports the time of an underlying clock in a fixed location.
type Zoned struct {
	base Clock
	loc  *time.Location
}

// InZone wraps c so Now returns times in loc. A nil c uses Real, a nil loc
// uses UTC.
func InZone(c Clock, loc *time.Location) Zoned {
	if c == nil {
		c = Real{}
	}
	if loc == nil {
		loc = time.UTC
	}
	return Zoned{base: c, loc: loc}
}

// Now returns the current time in the configured location.
func (z Zoned) Now() time.Time {
	if z.base == nil {
		return time.Now().UTC()
	}
	return z.base.Now().In(z.loc)
}

// Location returns the configured location.
func (z Zoned) Location() *time.Location {
	if z.loc == nil {
		return time.UTC
	}
	return z.loc
}

// Since returns the time elapsed on c since t.
func Since(c Clock, t time.Time) time.Duration {
	return c.Now().Sub(t)
}
