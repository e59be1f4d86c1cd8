// Package clock pins every civil-date comparison to a single timezone.
package clock

import (
	"time"
)

// DefaultZone is East Africa Time; it has no daylight saving.
const DefaultZone = "Africa/Nairobi"

var eat = time.FixedZone("EAT", 3*60*60)

// Clock supplies the current instant; tests inject fixed clocks.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// System returns the wall clock.
func System() Clock { return systemClock{} }

// Fixed always returns the same instant.
type Fixed time.Time

func (f Fixed) Now() time.Time { return time.Time(f) }

// Func adapts a plain function to Clock.
type Func func() time.Time

func (f Func) Now() time.Time { return f() }

// Location resolves name, falling back to a fixed EAT offset when tzdata is missing.
func Location(name string) *time.Location {
	if name == "" || name == DefaultZone {
		if loc, err := time.LoadLocation(DefaultZone); err == nil {
			return loc
		}
		return eat
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return eat
	}
	return loc
}

// EAT returns East Africa Time.
func EAT() *time.Location {
	return Location(DefaultZone)
}

// StartOfDay truncates t to midnight of its civil day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// SameDay reports whether a and b fall on the same civil day in loc.
func SameDay(a, b time.Time, loc *time.Location) bool {
	return StartOfDay(a, loc).Equal(StartOfDay(b, loc))
}

// DayBounds returns [start, end) of the civil day containing t.
func DayBounds(t time.Time, loc *time.Location) (time.Time, time.Time) {
	start := StartOfDay(t, loc)
	return start, start.AddDate(0, 0, 1)
}
