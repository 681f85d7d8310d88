// Package memory implements store.Store as an in-process bounded event log.
//
// Events live in per-site partitions: an append-only slice guarded by the
// partition mutex, evicted from the front by cutoff-timestamp comparison.
// There is no global lock; writers on different sites never contend.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/copperline/beacon/internal/model"
	"github.com/copperline/beacon/internal/store"
)

// MemoryStore implements store.Store without external dependencies. It is
// the default backend when no database URL is configured, and the
// authoritative reference for the log's ordering and eviction semantics.
type MemoryStore struct {
	mu    sync.RWMutex
	sites map[string]*model.Site
	parts map[string]*partition
}

// partition holds one site's slice of the log plus its item table.
// events is ordered by ascending timestamp; appends clamp the clock so the
// order invariant survives wall-clock regression.
type partition struct {
	mu     sync.Mutex
	events []*model.Event
	items  map[string]*model.Item
}

// Compile-time check that MemoryStore implements store.Store.
var _ store.Store = (*MemoryStore)(nil)

func New() *MemoryStore {
	return &MemoryStore{
		sites: make(map[string]*model.Site),
		parts: make(map[string]*partition),
	}
}

func (s *MemoryStore) Close() error { return nil }

// --- Sites ---

func (s *MemoryStore) CreateSite(_ context.Context, site *model.Site) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *site
	s.sites[site.ID] = &clone
	return nil
}

func (s *MemoryStore) GetSite(_ context.Context, id string) (*model.Site, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	site, ok := s.sites[id]
	if !ok {
		return nil, nil
	}
	clone := *site
	return &clone, nil
}

func (s *MemoryStore) ListSites(_ context.Context) ([]*model.Site, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sites := make([]*model.Site, 0, len(s.sites))
	for _, site := range s.sites {
		clone := *site
		sites = append(sites, &clone)
	}
	sort.Slice(sites, func(i, j int) bool { return sites[i].ID < sites[j].ID })
	return sites, nil
}

// partition returns the site's partition, creating it on first use.
func (s *MemoryStore) partition(siteID string) *partition {
	s.mu.RLock()
	p, ok := s.parts[siteID]
	s.mu.RUnlock()
	if ok {
		return p
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok = s.parts[siteID]; ok {
		return p
	}
	p = &partition{items: make(map[string]*model.Item)}
	s.parts[siteID] = p
	return p
}

// --- Events ---

// AppendEvent appends the event to its site's partition. If the event's
// timestamp does not advance past the partition's newest record (clock
// skew, same-nanosecond appends), it is bumped one nanosecond past it so
// that timestamps stay strictly increasing within the site.
func (s *MemoryStore) AppendEvent(_ context.Context, event *model.Event) error {
	p := s.partition(event.SiteID)
	p.mu.Lock()
	defer p.mu.Unlock()

	if n := len(p.events); n > 0 {
		last := p.events[n-1].Timestamp
		if !event.Timestamp.After(last) {
			event.Timestamp = last.Add(time.Nanosecond)
		}
	}
	clone := *event
	p.events = append(p.events, &clone)
	return nil
}

func (s *MemoryStore) ListEvents(_ context.Context, siteID string, since time.Time, limit int) ([]*model.Event, error) {
	if limit <= 0 {
		limit = store.DefaultEventLimit
	}
	p := s.partition(siteID)
	p.mu.Lock()
	defer p.mu.Unlock()

	// Walk newest to oldest; the slice is ascending by timestamp.
	var out []*model.Event
	for i := len(p.events) - 1; i >= 0 && len(out) < limit; i-- {
		ev := p.events[i]
		if !ev.Timestamp.After(since) {
			break
		}
		clone := *ev
		out = append(out, &clone)
	}
	return out, nil
}

// EvictEvents removes every record with timestamp before the cutoff. The
// cutoff is fixed by the caller at sweep start, so records appended while
// the sweep runs are never at risk.
func (s *MemoryStore) EvictEvents(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.RLock()
	parts := make([]*partition, 0, len(s.parts))
	for _, p := range s.parts {
		parts = append(parts, p)
	}
	s.mu.RUnlock()

	removed := 0
	for _, p := range parts {
		p.mu.Lock()
		// Events are ascending, so the survivors form a suffix.
		i := sort.Search(len(p.events), func(i int) bool {
			return !p.events[i].Timestamp.Before(cutoff)
		})
		if i > 0 {
			removed += i
			p.events = append([]*model.Event(nil), p.events[i:]...)
		}
		p.mu.Unlock()
	}
	return removed, nil
}

func (s *MemoryStore) AllEvents(_ context.Context) ([]*model.Event, error) {
	s.mu.RLock()
	siteIDs := make([]string, 0, len(s.parts))
	for id := range s.parts {
		siteIDs = append(siteIDs, id)
	}
	s.mu.RUnlock()
	sort.Strings(siteIDs)

	var out []*model.Event
	for _, id := range siteIDs {
		p := s.partition(id)
		p.mu.Lock()
		for _, ev := range p.events {
			clone := *ev
			out = append(out, &clone)
		}
		p.mu.Unlock()
	}
	return out, nil
}

// --- Items ---

func (s *MemoryStore) UpsertItem(_ context.Context, item *model.Item) error {
	p := s.partition(item.SiteID)
	p.mu.Lock()
	defer p.mu.Unlock()
	clone := *item
	if item.Fields != nil {
		clone.Fields = make(map[string]string, len(item.Fields))
		for k, v := range item.Fields {
			clone.Fields[k] = v
		}
	}
	p.items[item.ItemID] = &clone
	return nil
}

func (s *MemoryStore) DeleteItem(_ context.Context, siteID, itemID string) error {
	p := s.partition(siteID)
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.items, itemID)
	return nil
}

// ListItems returns up to limit items, most recently updated first.
func (s *MemoryStore) ListItems(_ context.Context, siteID string, limit int) ([]*model.Item, error) {
	if limit <= 0 {
		limit = store.DefaultItemLimit
	}
	p := s.partition(siteID)
	p.mu.Lock()
	items := make([]*model.Item, 0, len(p.items))
	for _, it := range p.items {
		clone := *it
		items = append(items, &clone)
	}
	p.mu.Unlock()

	sort.Slice(items, func(i, j int) bool {
		if !items[i].UpdatedAt.Equal(items[j].UpdatedAt) {
			return items[i].UpdatedAt.After(items[j].UpdatedAt)
		}
		return items[i].ItemID < items[j].ItemID
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}
