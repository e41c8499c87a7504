package domain

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

type EventKind string

const (
	EventIncidentCreated   EventKind = "new-incident"
	EventIncidentConfirmed EventKind = "incident-confirmed"
	EventIncidentRemoved   EventKind = "incident-removed"
)

type ConfirmedPayload struct {
	ID            uuid.UUID `json:"id"`
	Confirmations int64     `json:"confirmations"`
}

type RemovedPayload struct {
	ID uuid.UUID `json:"id"`
}

// Event is one incident lifecycle notification. Incident is set for
// EventIncidentCreated only; the other kinds carry ID (and Confirmations).
type Event struct {
	Kind          EventKind
	Incident      *Incident
	ID            uuid.UUID
	Confirmations int64
}

func NewIncidentCreated(inc Incident) Event {
	return Event{Kind: EventIncidentCreated, Incident: &inc, ID: inc.ID}
}

func NewIncidentConfirmed(id uuid.UUID, confirmations int64) Event {
	return Event{Kind: EventIncidentConfirmed, ID: id, Confirmations: confirmations}
}

func NewIncidentRemoved(id uuid.UUID) Event {
	return Event{Kind: EventIncidentRemoved, ID: id}
}

func (e Event) Payload() any {
	switch e.Kind {
	case EventIncidentCreated:
		return e.Incident
	case EventIncidentConfirmed:
		return ConfirmedPayload{ID: e.ID, Confirmations: e.Confirmations}
	default:
		return RemovedPayload{ID: e.ID}
	}
}

type eventEnvelope struct {
	Event EventKind       `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func (e Event) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(e.Payload())
	if err != nil {
		return nil, err
	}
	return json.Marshal(eventEnvelope{Event: e.Kind, Data: data})
}

func (e *Event) UnmarshalJSON(b []byte) error {
	var env eventEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return err
	}

	switch env.Event {
	case EventIncidentCreated:
		var inc Incident
		if err := json.Unmarshal(env.Data, &inc); err != nil {
			return fmt.Errorf("decode %s: %w", env.Event, err)
		}
		*e = NewIncidentCreated(inc)
	case EventIncidentConfirmed:
		var p ConfirmedPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return fmt.Errorf("decode %s: %w", env.Event, err)
		}
		*e = NewIncidentConfirmed(p.ID, p.Confirmations)
	case EventIncidentRemoved:
		var p RemovedPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return fmt.Errorf("decode %s: %w", env.Event, err)
		}
		*e = NewIncidentRemoved(p.ID)
	default:
		return fmt.Errorf("unknown event %q", env.Event)
	}
	return nil
}
