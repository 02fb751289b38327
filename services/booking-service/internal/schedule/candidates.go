package schedule

import (
	"fmt"
	"time"
)

// ComputeCandidates enumerates candidate booking intervals for one barber on
// one day: fixed-increment start times inside the working-hours window, each
// long enough to fit serviceDuration before the window closes, filtered by the
// policy's lead time and same-day cutoff.
//
// day selects a calendar date; only its date in the shop timezone matters.
// Returned intervals are UTC instants, in ascending start order.
func ComputeCandidates(rule WorkingHoursRule, day time.Time, serviceDuration time.Duration, policy BookingPolicy, now time.Time) ([]Interval, error) {
	if serviceDuration <= 0 {
		return nil, nil
	}

	loc := policy.Location()
	localDay := day.In(loc)
	midnight := time.Date(localDay.Year(), localDay.Month(), localDay.Day(), 0, 0, 0, 0, loc)

	localNow := now.In(loc)
	today := time.Date(localNow.Year(), localNow.Month(), localNow.Day(), 0, 0, 0, 0, loc)

	if midnight.Before(today) {
		return nil, fmt.Errorf("%w: %s is in the past", ErrInvalidDate, midnight.Format("2006-01-02"))
	}
	if policy.MaxAdvanceDays > 0 && midnight.After(today.AddDate(0, 0, policy.MaxAdvanceDays)) {
		return nil, fmt.Errorf("%w: %s is more than %d days ahead", ErrInvalidDate, midnight.Format("2006-01-02"), policy.MaxAdvanceDays)
	}

	if !rule.Active || rule.EndMinute <= rule.StartMinute {
		return nil, nil
	}

	sameDay := midnight.Equal(today)
	if sameDay && policy.SameDayCutoffMinute >= 0 {
		minuteOfDay := localNow.Hour()*60 + localNow.Minute()
		if minuteOfDay > policy.SameDayCutoffMinute {
			return nil, nil
		}
	}

	window := rule.WindowOn(midnight, loc)
	earliest := now.Add(policy.MinLeadTime)

	var out []Interval
	for t := window.Start; ; t = t.Add(policy.increment()) {
		cand := Interval{Start: t, End: t.Add(serviceDuration)}
		if !window.Contains(cand) {
			break
		}
		if t.Before(earliest) {
			continue
		}
		out = append(out, Interval{Start: cand.Start.UTC(), End: cand.End.UTC()})
	}
	return out, nil
}
