// Package events publishes reconciliation outcomes for downstream audit.
// The investigation keeps only the latest difference per field; the full
// history of adjustments lives in the event stream.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType names a published event
type EventType string

const (
	TypeFieldAdjusted          EventType = "field.adjusted"
	TypeFieldBlocked           EventType = "field.blocked"
	TypeInvestigationFinalized EventType = "investigation.finalized"
)

// Event is the envelope written to the stream
type Event struct {
	ID            uuid.UUID   `json:"id"`
	Type          EventType   `json:"type"`
	ApplicationID string      `json:"applicationId"`
	SectionID     string      `json:"sectionId,omitempty"`
	FieldID       string      `json:"fieldId,omitempty"`
	Payload       interface{} `json:"payload,omitempty"`
	OccurredAt    time.Time   `json:"occurredAt"`
}

// New builds an event with a fresh id
func New(t EventType, applicationID string, payload interface{}) Event {
	return Event{
		ID:            uuid.New(),
		Type:          t,
		ApplicationID: applicationID,
		Payload:       payload,
		OccurredAt:    time.Now().UTC(),
	}
}

// ForField scopes the event to one field record
func (e Event) ForField(sectionID, fieldID string) Event {
	e.SectionID = sectionID
	e.FieldID = fieldID
	return e
}

// Publisher delivers events. Implementations must not block on the broker.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// Noop discards every event
type Noop struct{}

// Publish implements Publisher
func (Noop) Publish(context.Context, Event) error { return nil }

// Close implements Publisher
func (Noop) Close() error { return nil }

// Recorder keeps published events in memory
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Publish implements Publisher
func (r *Recorder) Publish(_ context.Context, event Event) error {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
	return nil
}

// Close implements Publisher
func (r *Recorder) Close() error { return nil }

// Events returns a copy of everything published so far
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfType filters the recorded events
func (r *Recorder) OfType(t EventType) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
