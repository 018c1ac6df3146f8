package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"tokenmeta/pkg/requestcontext"
)

// EventType names a change to a metadata object.
type EventType string

const (
	EventMetadataCreated EventType = "metadata_created"
	EventMetadataUpdated EventType = "metadata_updated"
)

// Event is emitted after a write commits. Keep it transport-agnostic so sinks
// can fan out.
type Event struct {
	ID         uuid.UUID `json:"id"`
	Type       EventType `json:"type"`
	Subject    string    `json:"subject"`
	Properties []string  `json:"properties"`
	RequestID  string    `json:"requestId,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewEvent stamps an event with a fresh id and the request-scoped id and time.
func NewEvent(ctx context.Context, typ EventType, subject string, properties []string) Event {
	if properties == nil {
		properties = []string{}
	}
	return Event{
		ID:         uuid.New(),
		Type:       typ,
		Subject:    subject,
		Properties: properties,
		RequestID:  requestcontext.RequestID(ctx),
		Timestamp:  requestcontext.Now(ctx).UTC(),
	}
}
