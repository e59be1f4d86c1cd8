package activities

import (
	"math"
	"time"

	"github.com/angelmondragon/chama-backend/pkg/clock"
	"github.com/angelmondragon/chama-backend/pkg/db/models"
	"github.com/angelmondragon/chama-backend/pkg/enums"
)

// Schedule is the contribution calendar of one activity, evaluated in loc.
type Schedule struct {
	interval enums.ContributionInterval
	days     int
	first    time.Time
	loc      *time.Location
}

// ScheduleFor builds the calendar for activity.
func ScheduleFor(activity *models.Activity, loc *time.Location) Schedule {
	if loc == nil {
		loc = clock.EAT()
	}
	return Schedule{
		interval: activity.Interval,
		days:     activity.IntervalDays,
		first:    clock.StartOfDay(activity.FirstContributionDate, loc),
		loc:      loc,
	}
}

// Date returns the k-th contribution date, counting the first date as 0.
func (s Schedule) Date(k int) time.Time {
	if s.interval == enums.IntervalMonthly {
		return addMonths(s.first, k)
	}
	return s.first.AddDate(0, 0, k*s.stepDays())
}

// NextDate returns the date n intervals after from.
func (s Schedule) NextDate(from time.Time, n int) time.Time {
	start := clock.StartOfDay(from, s.loc)
	if s.interval == enums.IntervalMonthly {
		return addMonths(start, n)
	}
	return start.AddDate(0, 0, n*s.stepDays())
}

// IsContributionDay reports whether day falls on a scheduled contribution date.
func (s Schedule) IsContributionDay(day time.Time) bool {
	k, ok := s.index(day)
	return ok && s.Date(k).Equal(clock.StartOfDay(day, s.loc))
}

// IsMandatoryDay reports whether members are expected to contribute on today.
// Loans requested on such a day wait for manager approval when the activity asks for it.
func (s Schedule) IsMandatoryDay(today time.Time) bool {
	return s.IsContributionDay(today)
}

// Current returns the latest contribution date on or before day, and false when
// day precedes the first contribution date.
func (s Schedule) Current(day time.Time) (time.Time, bool) {
	k, ok := s.Position(day)
	if !ok {
		return time.Time{}, false
	}
	return s.Date(k), true
}

// Position returns k such that Date(k) is the latest contribution date on or
// before day.
func (s Schedule) Position(day time.Time) (int, bool) {
	k, ok := s.index(day)
	if !ok {
		return 0, false
	}
	d := clock.StartOfDay(day, s.loc)
	for k > 0 && s.Date(k).After(d) {
		k--
	}
	return k, true
}

// index returns the position of the latest contribution date on or before day.
func (s Schedule) index(day time.Time) (int, bool) {
	d := clock.StartOfDay(day, s.loc)
	if d.Before(s.first) {
		return 0, false
	}
	if s.interval == enums.IntervalMonthly {
		months := (d.Year()-s.first.Year())*12 + int(d.Month()-s.first.Month())
		if s.Date(months).After(d) {
			months--
		}
		return months, true
	}
	elapsed := int(math.Round(d.Sub(s.first).Hours() / 24))
	return elapsed / s.stepDays(), true
}

func (s Schedule) stepDays() int {
	switch s.interval {
	case enums.IntervalDaily:
		return 1
	case enums.IntervalWeekly:
		return 7
	default:
		if s.days <= 0 {
			return 1
		}
		return s.days
	}
}

// addMonths keeps the day of month, clamping to the last day of shorter months.
func addMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	target := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, t.Location())
	last := target.AddDate(0, 1, -1).Day()
	if d > last {
		d = last
	}
	return time.Date(target.Year(), target.Month(), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}
