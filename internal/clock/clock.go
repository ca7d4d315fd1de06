// Package clock provides the time source used by plan evaluation and the
// scheduler, plus wall-clock parsing helpers.
package clock

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/julianstephens/planmate/internal/constants"
)

// Clock reports the current time.
type Clock interface {
	Now() time.Time
}

// Real is the system clock, optionally pinned to a timezone.
type Real struct {
	Location *time.Location
}

func (r Real) Now() time.Time {
	now := time.Now()
	if r.Location != nil {
		return now.In(r.Location)
	}
	return now
}

// Zoned reads a base clock in a timezone that can change while running.
type Zoned struct {
	base Clock
	loc  atomic.Pointer[time.Location]
}

// NewZoned wraps base, or the system clock when base is nil.
func NewZoned(base Clock, loc *time.Location) *Zoned {
	if base == nil {
		base = Real{}
	}
	z := &Zoned{base: base}
	z.SetLocation(loc)
	return z
}

func (z *Zoned) Now() time.Time {
	return z.base.Now().In(z.Location())
}

func (z *Zoned) Location() *time.Location {
	return z.loc.Load()
}

// SetLocation switches the timezone; nil means time.Local.
func (z *Zoned) SetLocation(loc *time.Location) {
	if loc == nil {
		loc = time.Local
	}
	z.loc.Store(loc)
}

// Fixed is a settable clock for tests and dry runs.
type Fixed struct {
	mu sync.Mutex
	t  time.Time
}

func NewFixed(t time.Time) *Fixed {
	return &Fixed{t: t}
}

func (f *Fixed) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

// Set moves the clock to t.
func (f *Fixed) Set(t time.Time) {
	f.mu.Lock()
	f.t = t
	f.mu.Unlock()
}

// Advance moves the clock forward by d.
func (f *Fixed) Advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

// LoadLocation loads a timezone location from an IANA timezone name.
// If the timezone is "Local" or empty, it returns the system's local timezone.
func LoadLocation(timezone string) (*time.Location, error) {
	if timezone == "" || timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", timezone, err)
	}
	return loc, nil
}

// ParseMinutes parses a wall-clock "HH:MM" value into minutes after midnight.
func ParseMinutes(s string) (int, error) {
	t, err := time.Parse(constants.TimeFormat, s)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

// MinutesOf returns t's wall-clock minutes after midnight, seconds truncated.
func MinutesOf(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// ValidTime reports whether s is a well-formed "HH:MM" value.
func ValidTime(s string) bool {
	_, err := ParseMinutes(s)
	return err == nil
}
