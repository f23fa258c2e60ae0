package events

import "time"

// Event types published on the bus. The NATS subject is "events.<type>".
const (
	IngestCompleted = "ingest.completed"
	IngestFailed    = "ingest.failed"
)

// Event defines the contract for all system events.
type Event interface {
	// EventType returns the unique code for this event (e.g., "ingest.completed").
	EventType() string

	// Payload returns the data associated with the event.
	Payload() map[string]interface{}

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

type BaseEvent struct {
	Type       string
	Data       map[string]interface{}
	OccurredAt time.Time
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() map[string]interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}

// UserID returns the "user_id" payload field, empty when absent.
func UserID(e Event) string {
	uid, _ := e.Payload()["user_id"].(string)
	return uid
}
