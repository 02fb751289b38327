package model

import "time"

// Appointment is the persisted appointment row. Appointments are soft-lifecycle
// only: cancellation and no-shows flip Status, rows are never deleted.
type Appointment struct {
	ID                  string
	ShopID              string
	ServiceID           string
	BarberID            string
	CustomerName        string
	CustomerEmail       string
	CustomerPhone       string
	StartTime           time.Time
	DurationMinutes     int
	BufferBeforeMinutes int
	BufferAfterMinutes  int
	Status              string
	CancelledAt         *time.Time
	CancelReason        string
	CreatedAt           time.Time
}

// EndTime is the raw appointment end, excluding buffers.
func (a Appointment) EndTime() time.Time {
	return a.StartTime.Add(time.Duration(a.DurationMinutes) * time.Minute)
}
