package schedule

import "time"

// WorkingHoursRule is a barber's recurring weekly availability for one weekday.
// Start/end are minutes from midnight in the shop's timezone.
type WorkingHoursRule struct {
	BarberID    string
	Weekday     time.Weekday
	StartMinute int
	EndMinute   int
	Active      bool
}

// WindowOn projects the rule onto a concrete day in loc.
func (r WorkingHoursRule) WindowOn(day time.Time, loc *time.Location) Interval {
	midnight := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)
	return Interval{
		Start: midnight.Add(time.Duration(r.StartMinute) * time.Minute),
		End:   midnight.Add(time.Duration(r.EndMinute) * time.Minute),
	}
}

// BookingPolicy holds the shop-level booking rules the kernel applies. It is
// passed explicitly into each call; the kernel keeps no ambient configuration.
type BookingPolicy struct {
	// MinLeadTime is the minimum notice between now and the earliest bookable
	// slot. A slot starting at exactly now+MinLeadTime is bookable.
	MinLeadTime time.Duration

	// MaxAdvanceDays bounds how far ahead bookings are accepted. Zero or
	// negative means no bound.
	MaxAdvanceDays int

	// SameDayCutoffMinute is a minute-of-day (shop timezone) after which
	// same-day bookings close. Negative disables the cutoff.
	SameDayCutoffMinute int

	// SlotIncrement is the spacing between candidate start times.
	SlotIncrement time.Duration

	// Timezone is the shop's IANA timezone name. Empty means UTC.
	Timezone string
}

// Location resolves the policy timezone, falling back to UTC on empty or
// unknown names so slot arithmetic always has a fixed reference.
func (p BookingPolicy) Location() *time.Location {
	if p.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (p BookingPolicy) increment() time.Duration {
	if p.SlotIncrement <= 0 {
		return 15 * time.Minute
	}
	return p.SlotIncrement
}

// Status is an appointment's lifecycle state. Appointments are never hard
// deleted; cancellation and no-shows move them to non-blocking states.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusConfirmed Status = "confirmed"
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no_show"
)

// Blocks reports whether an appointment in this state occupies its interval.
func (s Status) Blocks() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusPending:
		return true
	default:
		return false
	}
}

// Appointment is the kernel's view of a booked appointment: a plain value
// constructed from storage rows at the kernel boundary.
type Appointment struct {
	ID           string
	BarberID     string
	Start        time.Time
	Duration     time.Duration
	BufferBefore time.Duration
	BufferAfter  time.Duration
	Status       Status
}

// Blocked is the effective interval the appointment occupies: the raw
// interval expanded by its before/after buffers.
func (a Appointment) Blocked() Interval {
	return Interval{
		Start: a.Start.Add(-a.BufferBefore),
		End:   a.Start.Add(a.Duration + a.BufferAfter),
	}
}

// Slot is a bookable interval for a barber. Computed, never persisted.
type Slot struct {
	BarberID  string
	Start     time.Time
	End       time.Time
	Available bool
}
