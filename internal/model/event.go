package model

import "time"

// EventType classifies a content mutation.
type EventType string

const (
	EventCreated   EventType = "created"
	EventUpdated   EventType = "updated"
	EventPublished EventType = "published"
	EventDeleted   EventType = "deleted"
)

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool {
	switch t {
	case EventCreated, EventUpdated, EventPublished, EventDeleted:
		return true
	}
	return false
}

// Event is an immutable record of a single content mutation. Within one
// site, timestamps are strictly increasing in append order; the timestamp
// is the sole ordering and dedup key for subscribers.
type Event struct {
	ID         string            `json:"id"`
	SiteID     string            `json:"site_id"`
	Type       EventType         `json:"event_type"`
	Collection string            `json:"collection"`
	Slug       string            `json:"slug,omitempty"`
	ItemID     string            `json:"item_id"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}
