package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/copperline/beacon/internal/config"
	"github.com/copperline/beacon/internal/events"
	"github.com/copperline/beacon/internal/idgen"
	"github.com/copperline/beacon/internal/model"
	"github.com/copperline/beacon/internal/snapshot"
	"github.com/copperline/beacon/internal/store"
	"github.com/copperline/beacon/pkg/metrics"
)

// BeaconServer is the write path into the event log and the serving side of
// both delivery transports. The store is the only shared mutable state;
// everything else here is a stateless transformation over it.
type BeaconServer struct {
	store       store.Store
	publisher   events.Publisher
	hub         *sseHub
	retention   time.Duration
	windowLimit int
	logger      *slog.Logger
}

// NewBeaconServer returns a server backed by the given store and publisher.
func NewBeaconServer(s store.Store, p events.Publisher, retention time.Duration, windowLimit int, logger *slog.Logger) *BeaconServer {
	if logger == nil {
		logger = slog.Default()
	}
	if windowLimit < 1 {
		windowLimit = 10
	}
	if windowLimit > config.MaxWindowLimit {
		windowLimit = config.MaxWindowLimit
	}
	return &BeaconServer{
		store:       s,
		publisher:   p,
		hub:         newSSEHub(),
		retention:   retention,
		windowLimit: windowLimit,
		logger:      logger,
	}
}

// inputError indicates invalid caller input. The HTTP layer maps it to 400.
type inputError string

func (e inputError) Error() string { return string(e) }

// BroadcastRequest is the payload the content store sends after a mutation
// commits.
type BroadcastRequest struct {
	SiteID     string            `json:"site_id"`
	EventType  model.EventType   `json:"event_type"`
	Collection string            `json:"collection"`
	ItemID     string            `json:"item_id"`
	Slug       string            `json:"slug,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Broadcast validates the site, appends a new event record, and makes it
// immediately visible to both transports. Bus publish and push fan-out are
// best-effort; only the append can fail the call.
func (s *BeaconServer) Broadcast(ctx context.Context, req *BroadcastRequest) (*model.Event, error) {
	if req.SiteID == "" {
		metrics.BroadcastRejected.WithLabelValues("bad_input").Inc()
		return nil, inputError("site_id is required")
	}
	if !req.EventType.Valid() {
		metrics.BroadcastRejected.WithLabelValues("bad_input").Inc()
		return nil, inputError(fmt.Sprintf("unknown event_type %q", req.EventType))
	}
	if req.Collection == "" {
		metrics.BroadcastRejected.WithLabelValues("bad_input").Inc()
		return nil, inputError("collection is required")
	}
	if req.ItemID == "" {
		metrics.BroadcastRejected.WithLabelValues("bad_input").Inc()
		return nil, inputError("item_id is required")
	}

	site, err := s.store.GetSite(ctx, req.SiteID)
	if err != nil {
		return nil, fmt.Errorf("get site: %w", err)
	}
	if site == nil {
		metrics.BroadcastRejected.WithLabelValues("unknown_site").Inc()
		return nil, model.ErrUnknownSite
	}

	id, err := idgen.Generate()
	if err != nil {
		return nil, err
	}
	event := &model.Event{
		ID:         id,
		SiteID:     req.SiteID,
		Type:       req.EventType,
		Collection: req.Collection,
		Slug:       req.Slug,
		ItemID:     req.ItemID,
		Metadata:   req.Metadata,
		Timestamp:  time.Now().UTC(),
	}

	if err := s.store.AppendEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrStoreUnavailable, err)
	}
	metrics.EventsBroadcast.WithLabelValues(event.SiteID, string(event.Type)).Inc()

	// Keep the item table in step so the poll surface reflects the mutation.
	if err := s.applyItemEffect(ctx, event); err != nil {
		s.logger.Warn("item table update failed", "site_id", event.SiteID, "item_id", event.ItemID, "err", err)
	}

	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("bus publish failed", "site_id", event.SiteID, "event_id", event.ID, "err", err)
	}
	s.pushWindow(ctx, event.SiteID)

	return event, nil
}

// applyItemEffect folds the event into the site's item table. Deletes remove
// the row; everything else upserts from the event's advisory metadata.
func (s *BeaconServer) applyItemEffect(ctx context.Context, event *model.Event) error {
	if event.Type == model.EventDeleted {
		return s.store.DeleteItem(ctx, event.SiteID, event.ItemID)
	}

	item := &model.Item{
		SiteID:     event.SiteID,
		ItemID:     event.ItemID,
		Slug:       event.Slug,
		Collection: event.Collection,
		Status:     event.Metadata["status"],
		Title:      event.Metadata["title"],
		UpdatedAt:  event.Timestamp,
	}
	if item.Status == "" {
		if event.Type == model.EventPublished {
			item.Status = "published"
		} else {
			item.Status = "draft"
		}
	}
	for k, v := range event.Metadata {
		if k == "status" || k == "title" {
			continue
		}
		if item.Fields == nil {
			item.Fields = make(map[string]string)
		}
		item.Fields[k] = v
	}
	return s.store.UpsertItem(ctx, item)
}

// pushWindow re-evaluates the site's top-N window and fans it out to every
// connected push subscriber. Duplicates across deliveries are expected;
// consumers dedup by watermark.
func (s *BeaconServer) pushWindow(ctx context.Context, siteID string) {
	window, err := s.store.ListEvents(ctx, siteID, time.Time{}, config.MaxWindowLimit)
	if err != nil {
		s.logger.Warn("push window query failed", "site_id", siteID, "err", err)
		return
	}
	s.hub.broadcast(siteID, window)
}

// authorizeSite resolves the site and checks the API key.
func (s *BeaconServer) authorizeSite(ctx context.Context, siteID, apiKey string) (*model.Site, error) {
	if siteID == "" {
		return nil, inputError("site_id is required")
	}
	site, err := s.store.GetSite(ctx, siteID)
	if err != nil {
		return nil, fmt.Errorf("get site: %w", err)
	}
	if site == nil {
		return nil, model.ErrUnknownSite
	}
	if !constantTimeEqual(apiKey, site.APIKey) {
		return nil, model.ErrUnauthorized
	}
	return site, nil
}

// Poll returns the site's current snapshot: up to 200 most recently updated
// items with their content fingerprints. Stateless per call; the caller
// diffs hashes against its previous snapshot.
func (s *BeaconServer) Poll(ctx context.Context, siteID, apiKey string) ([]*model.SnapshotItem, error) {
	if _, err := s.authorizeSite(ctx, siteID, apiKey); err != nil {
		return nil, err
	}
	items, err := s.store.ListItems(ctx, siteID, store.DefaultItemLimit)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	out := make([]*model.SnapshotItem, 0, len(items))
	for _, it := range items {
		out = append(out, snapshot.ItemSnapshot(it))
	}
	return out, nil
}

// ListEvents is the catch-up query surface: records newer than since,
// most-recent-first, bounded by limit.
func (s *BeaconServer) ListEvents(ctx context.Context, siteID, apiKey string, since time.Time, limit int) ([]*model.Event, error) {
	if _, err := s.authorizeSite(ctx, siteID, apiKey); err != nil {
		return nil, err
	}
	return s.store.ListEvents(ctx, siteID, since, limit)
}

// Cleanup evicts every record older than the retention window. The cutoff
// is computed once up front so records appended during the sweep are safe.
// Idempotent at any call frequency.
func (s *BeaconServer) Cleanup(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-s.retention)
	removed, err := s.store.EvictEvents(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("evict events: %w", err)
	}
	metrics.EventsEvicted.Add(float64(removed))
	if removed > 0 {
		s.logger.Info("evicted expired events", "removed", removed, "cutoff", cutoff)
	}
	return removed, nil
}

// CreateSite registers a tenant. An empty API key is rejected because every
// delivery surface authenticates against it.
func (s *BeaconServer) CreateSite(ctx context.Context, site *model.Site) (*model.Site, error) {
	if site.ID == "" {
		return nil, inputError("site id is required")
	}
	if site.APIKey == "" {
		return nil, inputError("api_key is required")
	}
	existing, err := s.store.GetSite(ctx, site.ID)
	if err != nil {
		return nil, fmt.Errorf("get site: %w", err)
	}
	if existing != nil {
		return nil, inputError(fmt.Sprintf("site %q already exists", site.ID))
	}
	site.CreatedAt = time.Now().UTC()
	if err := s.store.CreateSite(ctx, site); err != nil {
		return nil, fmt.Errorf("create site: %w", err)
	}
	return site, nil
}

// ListSites returns all registered tenants.
func (s *BeaconServer) ListSites(ctx context.Context) ([]*model.Site, error) {
	return s.store.ListSites(ctx)
}

// IsInputError reports whether err represents invalid caller input.
func IsInputError(err error) bool {
	var ie inputError
	return errors.As(err, &ie)
}
