package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Plan is a recurring, time-boxed activity the companion checks in on.
type Plan struct {
	ID          int          `json:"id" yaml:"id"`
	Day         time.Weekday `json:"day" yaml:"day"`
	Title       string       `json:"title" yaml:"title"`
	Description string       `json:"description" yaml:"description"`
	StartTime   string       `json:"start_time" yaml:"start_time"` // "HH:MM"
	EndTime     string       `json:"end_time" yaml:"end_time"`     // "HH:MM", may be earlier than StartTime for overnight windows
	IsDaily     bool         `json:"is_daily" yaml:"is_daily"`     // when set, Day is ignored
	IsCompleted bool         `json:"is_completed" yaml:"is_completed"`
}

// Window renders the plan's time range.
func (p Plan) Window() string {
	return fmt.Sprintf("%s to %s", p.StartTime, p.EndTime)
}

// Schedule renders when the plan recurs.
func (p Plan) Schedule() string {
	if p.IsDaily {
		return "daily"
	}
	return p.Day.String()
}

// WeekdayToISO maps a weekday to the stored 1 (Monday) .. 7 (Sunday) form.
func WeekdayToISO(d time.Weekday) int {
	if d == time.Sunday {
		return 7
	}
	return int(d)
}

// ISOToWeekday is the inverse of WeekdayToISO.
func ISOToWeekday(v int) (time.Weekday, bool) {
	if v < 1 || v > 7 {
		return time.Monday, false
	}
	if v == 7 {
		return time.Sunday, true
	}
	return time.Weekday(v), true
}

var weekdayNames = map[string]time.Weekday{
	"sun":       time.Sunday,
	"sunday":    time.Sunday,
	"mon":       time.Monday,
	"monday":    time.Monday,
	"tue":       time.Tuesday,
	"tuesday":   time.Tuesday,
	"wed":       time.Wednesday,
	"wednesday": time.Wednesday,
	"thu":       time.Thursday,
	"thursday":  time.Thursday,
	"fri":       time.Friday,
	"friday":    time.Friday,
	"sat":       time.Saturday,
	"saturday":  time.Saturday,
}

// ParseWeekday accepts a day name ("mon", "Monday") or its 1..7 number.
func ParseWeekday(s string) (time.Weekday, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if wd, ok := weekdayNames[s]; ok {
		return wd, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		if wd, ok := ISOToWeekday(n); ok {
			return wd, nil
		}
	}
	return time.Monday, fmt.Errorf("invalid weekday: %s", s)
}
