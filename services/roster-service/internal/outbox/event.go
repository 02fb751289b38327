package outbox

// Event is the domain event envelope written to the outbox table inside the
// same transaction as the roster mutation. The Kafka topic name equals
// EventType (one event type per topic).
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// Event types published by roster-service. booking-service consumes these to
// invalidate cached slot responses.
const (
	EventWorkingHoursUpdated = "roster.working_hours.updated.v1"
	EventPolicyUpdated       = "roster.policy.updated.v1"
)
