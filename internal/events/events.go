// Package events is the NATS transport of the push channel. Each event is
// published to a site-scoped subject so subscribers can filter server-side.
package events

import (
	"context"

	"github.com/copperline/beacon/internal/model"
)

// subjectPrefix is the root of all beacon subjects.
const subjectPrefix = "content"

// Subject returns the NATS subject for one event: "content.<site>.<type>".
func Subject(siteID string, t model.EventType) string {
	return subjectPrefix + "." + siteID + "." + string(t)
}

// SiteSubject returns the wildcard subject covering every event type for a
// site, suitable for Subscribe.
func SiteSubject(siteID string) string {
	return subjectPrefix + "." + siteID + ".>"
}

// Publisher is the interface for emitting events onto the bus.
type Publisher interface {
	Publish(ctx context.Context, event *model.Event) error
	Close() error
}

// Subscriber receives events from the bus.
type Subscriber interface {
	// Subscribe delivers raw event payloads on the returned channel.
	// Call the returned cancel function to unsubscribe and close the channel.
	Subscribe(subject string) (<-chan []byte, func(), error)
	Close() error
}
