package outbox

// Event is the domain event envelope written to the outbox table inside the
// same transaction as the booking mutation. The Kafka topic name equals
// EventType (one event type per topic).
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// Event types published by booking-service.
const (
	EventAppointmentBooked    = "booking.appointment.booked.v1"
	EventAppointmentCancelled = "booking.appointment.cancelled.v1"
)

// Event types consumed from roster-service (slot cache invalidation).
const (
	EventWorkingHoursUpdated = "roster.working_hours.updated.v1"
	EventPolicyUpdated       = "roster.policy.updated.v1"
)
