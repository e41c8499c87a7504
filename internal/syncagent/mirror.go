// Package syncagent keeps a client-side mirror of active incidents in step
// with the server's snapshot and realtime events.
package syncagent

import (
	"sort"

	"hyperlocal/internal/domain"

	"github.com/google/uuid"
)

// Mirror is treated as immutable: Reduce and Replace return fresh maps.
type Mirror map[uuid.UUID]domain.Incident

func Replace(incidents []domain.Incident) Mirror {
	m := make(Mirror, len(incidents))
	for _, inc := range incidents {
		m[inc.ID] = inc
	}
	return m
}

// Reduce applies one event. Every kind is idempotent, and confirmation
// counts only move forward so a replayed or stale event cannot lower them.
func Reduce(m Mirror, ev domain.Event) Mirror {
	switch ev.Kind {
	case domain.EventIncidentCreated:
		if ev.Incident == nil {
			return m
		}
		if _, ok := m[ev.Incident.ID]; ok {
			return m
		}
		out := m.clone(1)
		out[ev.Incident.ID] = *ev.Incident
		return out

	case domain.EventIncidentConfirmed:
		cur, ok := m[ev.ID]
		if !ok || cur.Confirmations >= ev.Confirmations {
			return m
		}
		out := m.clone(0)
		cur.Confirmations = ev.Confirmations
		out[ev.ID] = cur
		return out

	case domain.EventIncidentRemoved:
		if _, ok := m[ev.ID]; !ok {
			return m
		}
		out := m.clone(0)
		delete(out, ev.ID)
		return out
	}
	return m
}

// Incidents lists the mirror newest first.
func (m Mirror) Incidents() []domain.Incident {
	out := make([]domain.Incident, 0, len(m))
	for _, inc := range m {
		out = append(out, inc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}

func (m Mirror) clone(extra int) Mirror {
	out := make(Mirror, len(m)+extra)
	for k, v := range m {
		out[k] = v
	}
	return out
}
