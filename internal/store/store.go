package store

import (
	"context"
	"time"

	"github.com/copperline/beacon/internal/model"
)

// Store defines the persistence interface for the distribution pipeline:
// the site registry, the time-bounded event log, and the item table backing
// the poll snapshot surface.
type Store interface {
	// Sites
	CreateSite(ctx context.Context, site *model.Site) error
	GetSite(ctx context.Context, id string) (*model.Site, error) // nil, nil when absent
	ListSites(ctx context.Context) ([]*model.Site, error)

	// Event log. AppendEvent serializes per site and enforces strictly
	// increasing timestamps within the site. ListEvents returns records
	// with timestamp strictly greater than since, most-recent-first,
	// bounded by limit. EvictEvents removes every record older than the
	// cutoff and reports how many were removed; it must be safe to run
	// concurrently with appends.
	AppendEvent(ctx context.Context, event *model.Event) error
	ListEvents(ctx context.Context, siteID string, since time.Time, limit int) ([]*model.Event, error)
	EvictEvents(ctx context.Context, cutoff time.Time) (int, error)
	AllEvents(ctx context.Context) ([]*model.Event, error)

	// Items
	UpsertItem(ctx context.Context, item *model.Item) error
	DeleteItem(ctx context.Context, siteID, itemID string) error
	ListItems(ctx context.Context, siteID string, limit int) ([]*model.Item, error)

	// Lifecycle
	Close() error
}

// DefaultEventLimit caps ListEvents when the caller passes limit <= 0.
const DefaultEventLimit = 50

// DefaultItemLimit caps ListItems when the caller passes limit <= 0.
const DefaultItemLimit = 200
