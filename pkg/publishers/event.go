package publishers

import (
	"time"

	"github.com/samvad-hq/softbase-go/internal/domain"
)

// Record change event types.
const (
	EventRecordCreated  = "record.created"
	EventRecordUpdated  = "record.updated"
	EventRecordDeleted  = "record.deleted"
	EventRecordsCleared = "records.cleared"
)

// Event represents the payload published downstream after a record mutation.
type Event struct {
	Type       string         `json:"type"`
	Key        string         `json:"key,omitempty"`
	Record     *domain.Record `json:"record,omitempty"`
	Count      int            `json:"count,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// NewRecordEvent constructs an Event describing a change to a single record.
func NewRecordEvent(typ string, rec domain.Record) Event {
	evt := Event{
		Type:       typ,
		Key:        rec.Key,
		OccurredAt: time.Now().UTC(),
	}
	if typ != EventRecordDeleted {
		evt.Record = &rec
	}
	return evt
}

// NewClearedEvent constructs an Event for a delete-all that removed count records.
func NewClearedEvent(count int) Event {
	return Event{
		Type:       EventRecordsCleared,
		Count:      count,
		OccurredAt: time.Now().UTC(),
	}
}

// attributes returns the routing metadata attached to queue and topic messages.
func (e Event) attributes() map[string]string {
	attrs := map[string]string{"event_type": e.Type}
	if e.Key != "" {
		attrs["record_key"] = e.Key
	}
	return attrs
}
