package stream

import (
	"encoding/json"

	"memcontext-be/pkg/catalog"
)

type EventType string

const (
	EventResponse  EventType = "response"
	EventTextDone  EventType = "text_done"
	EventAdvertise EventType = "advertise"
	EventDone      EventType = "done"
	EventError     EventType = "error"
)

// Event is one frame of the chat stream. It marshals to the wire shape of its
// type, e.g. {"response": "..."} or {"done": true}.
type Event struct {
	Type    EventType
	Text    string
	Items   []catalog.Item
	Message string
}

func Response(fragment string) Event { return Event{Type: EventResponse, Text: fragment} }
func TextDone() Event                { return Event{Type: EventTextDone} }
func Advertise(items []catalog.Item) Event {
	return Event{Type: EventAdvertise, Items: items}
}
func Done() Event                { return Event{Type: EventDone} }
func Error(message string) Event { return Event{Type: EventError, Message: message} }

func (e Event) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case EventResponse:
		return json.Marshal(struct {
			Response string `json:"response"`
		}{e.Text})
	case EventTextDone:
		return []byte(`{"text_done":true}`), nil
	case EventAdvertise:
		return json.Marshal(struct {
			Advertise []catalog.Item `json:"advertise"`
		}{e.Items})
	case EventDone:
		return []byte(`{"done":true}`), nil
	default:
		return json.Marshal(struct {
			Error string `json:"error"`
		}{e.Message})
	}
}
