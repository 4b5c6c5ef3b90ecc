package audit

import (
	"context"
)

// Repository defines persistence for audit events
type Repository interface {
	SaveEvent(ctx context.Context, e *Event) error
	ListEvents(ctx context.Context, organizationID string, limit int) ([]*Event, error)
}

// Publisher forwards audit events to an external bus.
type Publisher interface {
	Publish(ctx context.Context, e *Event) error
}
