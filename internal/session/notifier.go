// Package session fans user-scoped change events out to every open client
// session of that user.
package session

import (
	"context"
	"time"
)

const (
	EventSelectionChanged = "selection.changed"
	EventProjectUpdated   = "project.updated"
	EventProjectDeleted   = "project.deleted"
	EventProjectSelected  = "project.selected"
)

// Event is one change notification delivered to a user's sessions.
type Event struct {
	Type       string    `json:"type"`
	UserID     string    `json:"userId"`
	ProjectID  string    `json:"projectId,omitempty"`
	DocumentID string    `json:"documentId,omitempty"`
	UpdatedAt  time.Time `json:"updatedAt"`
	At         time.Time `json:"at"`
}

// Notifier publishes events and hands out per-user subscriptions. Slow
// subscribers lose events rather than block publishers.
type Notifier interface {
	Publish(ctx context.Context, event Event) error
	// Subscribe returns a channel of the user's events and a cancel func that
	// closes it.
	Subscribe(ctx context.Context, userID string) (<-chan Event, func(), error)
	Close() error
}

const subscriberBuffer = 16

func stamp(event Event) Event {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	return event
}
