package schedule

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"
)

// RuleSource resolves a barber's recurring working hours for one weekday.
// Unknown barbers surface as an error wrapping ErrNotFound; a barber who
// simply does not work that day yields an inactive rule.
type RuleSource interface {
	WorkingHours(ctx context.Context, barberID string, weekday time.Weekday) (WorkingHoursRule, error)
}

// Roster lists the barbers eligible for "any barber" queries.
type Roster interface {
	ActiveBarberIDs(ctx context.Context) ([]string, error)
}

// SlotQuery describes one availability question.
type SlotQuery struct {
	// BarberID narrows the query to one barber. Empty means "any barber".
	BarberID string

	// Day selects the calendar date (shop timezone) to enumerate.
	Day time.Time

	// ServiceDuration is how long the requested service takes.
	ServiceDuration time.Duration

	// BufferBefore and BufferAfter are the requested service's own buffers.
	// Candidates are checked for conflicts with these applied, so a slot is
	// only offered when the prospective appointment's full blocked interval
	// is free. The returned slots carry the unexpanded times.
	BufferBefore time.Duration
	BufferAfter  time.Duration

	Policy BookingPolicy
}

// Aggregator combines candidate enumeration with conflict filtering across
// one or many barbers. Its output is deterministic: identical inputs against
// unchanged data produce an identical ordered sequence.
type Aggregator struct {
	rules   RuleSource
	checker *Checker
	roster  Roster
	clock   func() time.Time
}

func NewAggregator(rules RuleSource, checker *Checker, roster Roster) *Aggregator {
	return &Aggregator{
		rules:   rules,
		checker: checker,
		roster:  roster,
		clock:   time.Now,
	}
}

// WithClock overrides the time source. Tests use this to pin "now".
func (a *Aggregator) WithClock(clock func() time.Time) *Aggregator {
	a.clock = clock
	return a
}

// AvailableSlots returns the bookable slots for the query, sorted by start
// time and then barber ID for a stable tie-break.
func (a *Aggregator) AvailableSlots(ctx context.Context, q SlotQuery) ([]Slot, error) {
	barbers := []string{q.BarberID}
	if q.BarberID == "" {
		ids, err := a.roster.ActiveBarberIDs(ctx)
		if err != nil {
			return nil, WrapUnavailable(err)
		}
		barbers = ids
	}

	now := a.clock()
	var slots []Slot
	for _, barberID := range barbers {
		free, err := a.slotsForBarber(ctx, barberID, q, now)
		if err != nil {
			return nil, err
		}
		for _, iv := range free {
			slots = append(slots, Slot{BarberID: barberID, Start: iv.Start, End: iv.End, Available: true})
		}
	}

	sort.Slice(slots, func(i, j int) bool {
		if !slots[i].Start.Equal(slots[j].Start) {
			return slots[i].Start.Before(slots[j].Start)
		}
		return slots[i].BarberID < slots[j].BarberID
	})
	return slots, nil
}

// NextAvailable scans forward day by day, bounded by the policy's max
// advance, and returns the first bookable slot. It stops at the first
// non-empty day rather than computing the whole window.
func (a *Aggregator) NextAvailable(ctx context.Context, q SlotQuery) (Slot, error) {
	maxDays := q.Policy.MaxAdvanceDays
	if maxDays <= 0 {
		maxDays = 30
	}

	loc := q.Policy.Location()
	now := a.clock().In(loc)
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

	for d := 0; d <= maxDays; d++ {
		dq := q
		dq.Day = day.AddDate(0, 0, d)
		slots, err := a.AvailableSlots(ctx, dq)
		if err != nil {
			return Slot{}, err
		}
		if len(slots) > 0 {
			return slots[0], nil
		}
	}
	return Slot{}, fmt.Errorf("%w: no availability within %d days", ErrNotFound, maxDays)
}

func (a *Aggregator) slotsForBarber(ctx context.Context, barberID string, q SlotQuery, now time.Time) ([]Interval, error) {
	rule, err := a.rules.WorkingHours(ctx, barberID, q.Day.In(q.Policy.Location()).Weekday())
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrUnavailable) {
			return nil, err
		}
		return nil, WrapUnavailable(err)
	}
	candidates, err := ComputeCandidates(rule, q.Day, q.ServiceDuration, q.Policy, now)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	if q.BufferBefore <= 0 && q.BufferAfter <= 0 {
		return a.checker.FilterConflicts(ctx, barberID, candidates)
	}

	// Expand every candidate by the service's buffers before the single bulk
	// conflict pass. Uniform expansion keeps the sort order, so the sweep in
	// FilterConflicts stays linear, and the survivors shrink back afterwards.
	expanded := make([]Interval, len(candidates))
	for i, c := range candidates {
		expanded[i] = Interval{Start: c.Start.Add(-q.BufferBefore), End: c.End.Add(q.BufferAfter)}
	}
	free, err := a.checker.FilterConflicts(ctx, barberID, expanded)
	if err != nil {
		return nil, err
	}
	out := make([]Interval, 0, len(free))
	for _, iv := range free {
		out = append(out, Interval{Start: iv.Start.Add(q.BufferBefore), End: iv.End.Add(-q.BufferAfter)})
	}
	return out, nil
}
