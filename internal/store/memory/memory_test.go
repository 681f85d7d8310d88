package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/copperline/beacon/internal/model"
)

func testEvent(siteID, itemID string, ts time.Time) *model.Event {
	return &model.Event{
		ID:         "ev-" + itemID,
		SiteID:     siteID,
		Type:       model.EventUpdated,
		Collection: "blog",
		ItemID:     itemID,
		Timestamp:  ts,
	}
}

func TestAppendAndList(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Now().UTC()

	for i := 0; i < 5; i++ {
		ev := testEvent("site-1", fmt.Sprintf("item-%d", i), base.Add(time.Duration(i)*time.Second))
		if err := s.AppendEvent(ctx, ev); err != nil {
			t.Fatalf("AppendEvent: %v", err)
		}
	}

	evts, err := s.ListEvents(ctx, "site-1", time.Time{}, 3)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(evts) != 3 {
		t.Fatalf("expected 3 events, got %d", len(evts))
	}
	// Most-recent-first.
	if evts[0].ItemID != "item-4" || evts[2].ItemID != "item-2" {
		t.Errorf("unexpected window order: %s .. %s", evts[0].ItemID, evts[2].ItemID)
	}
}

func TestListEventsSinceIsExclusive(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Now().UTC()

	for i := 0; i < 3; i++ {
		ev := testEvent("site-1", fmt.Sprintf("item-%d", i), base.Add(time.Duration(i)*time.Second))
		if err := s.AppendEvent(ctx, ev); err != nil {
			t.Fatalf("AppendEvent: %v", err)
		}
	}

	// since equal to item-1's timestamp must return only item-2.
	evts, err := s.ListEvents(ctx, "site-1", base.Add(time.Second), 50)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(evts) != 1 || evts[0].ItemID != "item-2" {
		t.Fatalf("expected exactly item-2, got %v", evts)
	}
}

func TestAppendBumpsStalledClock(t *testing.T) {
	s := New()
	ctx := context.Background()
	ts := time.Now().UTC()

	for i := 0; i < 3; i++ {
		// Same timestamp each time: the store must keep per-site order
		// strictly increasing anyway.
		if err := s.AppendEvent(ctx, testEvent("site-1", fmt.Sprintf("item-%d", i), ts)); err != nil {
			t.Fatalf("AppendEvent: %v", err)
		}
	}

	evts, err := s.ListEvents(ctx, "site-1", time.Time{}, 50)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(evts) != 3 {
		t.Fatalf("expected 3 events, got %d", len(evts))
	}
	for i := 0; i < len(evts)-1; i++ {
		if !evts[i].Timestamp.After(evts[i+1].Timestamp) {
			t.Errorf("timestamps not strictly increasing: %v vs %v", evts[i].Timestamp, evts[i+1].Timestamp)
		}
	}
}

func TestSiteIsolation(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now().UTC()

	if err := s.AppendEvent(ctx, testEvent("site-1", "a", now)); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}
	if err := s.AppendEvent(ctx, testEvent("site-2", "b", now)); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}

	evts, err := s.ListEvents(ctx, "site-1", time.Time{}, 50)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(evts) != 1 || evts[0].ItemID != "a" {
		t.Fatalf("expected only site-1's event, got %v", evts)
	}
}

func TestEvictEvents(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Now().UTC()

	for i := 0; i < 10; i++ {
		if err := s.AppendEvent(ctx, testEvent("site-1", fmt.Sprintf("item-%d", i), base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("AppendEvent: %v", err)
		}
	}

	cutoff := base.Add(5 * time.Minute)
	removed, err := s.EvictEvents(ctx, cutoff)
	if err != nil {
		t.Fatalf("EvictEvents: %v", err)
	}
	if removed != 5 {
		t.Fatalf("expected 5 removed, got %d", removed)
	}

	evts, err := s.ListEvents(ctx, "site-1", time.Time{}, 50)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	for _, ev := range evts {
		if ev.Timestamp.Before(cutoff) {
			t.Errorf("event %s older than cutoff survived eviction", ev.ItemID)
		}
	}
	if len(evts) != 5 {
		t.Errorf("expected 5 survivors, got %d", len(evts))
	}

	// Idempotent.
	removed, err = s.EvictEvents(ctx, cutoff)
	if err != nil {
		t.Fatalf("EvictEvents: %v", err)
	}
	if removed != 0 {
		t.Errorf("second eviction removed %d, want 0", removed)
	}
}

func TestEvictEventsConcurrentWithAppends(t *testing.T) {
	s := New()
	ctx := context.Background()
	cutoff := time.Now().UTC()

	var wg sync.WaitGroup
	// Writers append records strictly newer than the cutoff while the
	// eviction pass runs; none of them may be removed.
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				ev := testEvent(fmt.Sprintf("site-%d", w), fmt.Sprintf("item-%d", i), cutoff.Add(time.Duration(i+1)*time.Millisecond))
				if err := s.AppendEvent(ctx, ev); err != nil {
					t.Errorf("AppendEvent: %v", err)
					return
				}
			}
		}(w)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			if _, err := s.EvictEvents(ctx, cutoff); err != nil {
				t.Errorf("EvictEvents: %v", err)
				return
			}
		}
	}()
	wg.Wait()

	for w := 0; w < 4; w++ {
		evts, err := s.ListEvents(ctx, fmt.Sprintf("site-%d", w), time.Time{}, 200)
		if err != nil {
			t.Fatalf("ListEvents: %v", err)
		}
		if len(evts) != 100 {
			t.Errorf("site-%d: expected 100 surviving events, got %d", w, len(evts))
		}
	}
}

func TestItemUpsertListDelete(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now().UTC()

	for i := 0; i < 3; i++ {
		item := &model.Item{
			SiteID:     "site-1",
			ItemID:     fmt.Sprintf("item-%d", i),
			Collection: "blog",
			Status:     "published",
			UpdatedAt:  now.Add(time.Duration(i) * time.Second),
		}
		if err := s.UpsertItem(ctx, item); err != nil {
			t.Fatalf("UpsertItem: %v", err)
		}
	}

	items, err := s.ListItems(ctx, "site-1", 2)
	if err != nil {
		t.Fatalf("ListItems: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].ItemID != "item-2" {
		t.Errorf("expected most recently updated first, got %s", items[0].ItemID)
	}

	if err := s.DeleteItem(ctx, "site-1", "item-2"); err != nil {
		t.Fatalf("DeleteItem: %v", err)
	}
	items, err = s.ListItems(ctx, "site-1", 50)
	if err != nil {
		t.Fatalf("ListItems: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items after delete, got %d", len(items))
	}
	for _, it := range items {
		if it.ItemID == "item-2" {
			t.Error("deleted item still listed")
		}
	}
}

func TestSites(t *testing.T) {
	s := New()
	ctx := context.Background()

	got, err := s.GetSite(ctx, "nope")
	if err != nil {
		t.Fatalf("GetSite: %v", err)
	}
	if got != nil {
		t.Fatal("expected nil for unknown site")
	}

	site := &model.Site{ID: "site-1", APIKey: "key-1", CreatedAt: time.Now().UTC()}
	if err := s.CreateSite(ctx, site); err != nil {
		t.Fatalf("CreateSite: %v", err)
	}
	got, err = s.GetSite(ctx, "site-1")
	if err != nil {
		t.Fatalf("GetSite: %v", err)
	}
	if got == nil || got.APIKey != "key-1" {
		t.Fatalf("unexpected site: %+v", got)
	}
}
