package server

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/copperline/beacon/internal/model"
)

func testWindow(n int) []*model.Event {
	base := time.Now().UTC()
	out := make([]*model.Event, n)
	for i := 0; i < n; i++ {
		// Newest first, as the store's query surface returns.
		out[i] = &model.Event{
			ID:         "ev-test",
			SiteID:     "site-1",
			Type:       model.EventUpdated,
			Collection: "blog",
			ItemID:     "item",
			Timestamp:  base.Add(-time.Duration(i) * time.Second),
		}
	}
	return out
}

func TestHubBroadcastReachesSiteSubscribers(t *testing.T) {
	hub := newSSEHub()
	a := hub.subscribe("site-1", 10)
	b := hub.subscribe("site-1", 10)
	other := hub.subscribe("site-2", 10)
	defer hub.unsubscribe(a)
	defer hub.unsubscribe(b)
	defer hub.unsubscribe(other)

	hub.broadcast("site-1", testWindow(3))

	for _, c := range []*sseClient{a, b} {
		select {
		case w := <-c.ch:
			if len(w) != 3 {
				t.Fatalf("window size = %d, want 3", len(w))
			}
		default:
			t.Fatal("subscriber did not receive the window")
		}
	}
	select {
	case <-other.ch:
		t.Fatal("window leaked to another site's subscriber")
	default:
	}
}

func TestHubTrimsToClientLimit(t *testing.T) {
	hub := newSSEHub()
	c := hub.subscribe("site-1", 2)
	defer hub.unsubscribe(c)

	hub.broadcast("site-1", testWindow(5))

	w := <-c.ch
	if len(w) != 2 {
		t.Fatalf("window size = %d, want 2", len(w))
	}
	// The trim keeps the newest records.
	if w[0].Timestamp.Before(w[1].Timestamp) {
		t.Fatal("trimmed window lost newest-first ordering")
	}
}

func TestHubDropsWhenClientIsSlow(t *testing.T) {
	hub := newSSEHub()
	c := hub.subscribe("site-1", 10)
	defer hub.unsubscribe(c)

	// Fill the client's buffer, then verify the extra delivery is dropped
	// rather than blocking the broadcaster.
	for i := 0; i < cap(c.ch)+3; i++ {
		hub.broadcast("site-1", testWindow(1))
	}
	if got := len(c.ch); got != cap(c.ch) {
		t.Fatalf("buffered windows = %d, want %d", got, cap(c.ch))
	}
}

func TestHubUnsubscribeStopsDelivery(t *testing.T) {
	hub := newSSEHub()
	c := hub.subscribe("site-1", 10)
	hub.unsubscribe(c)
	hub.unsubscribe(c) // idempotent

	hub.broadcast("site-1", testWindow(1))
	select {
	case <-c.ch:
		t.Fatal("unsubscribed client received a window")
	default:
	}
}

func TestWriteSSEWindowFormat(t *testing.T) {
	rec := httptest.NewRecorder()
	window := testWindow(2)
	writeSSEWindow(rec, window)

	body := rec.Body.String()
	lines := strings.Split(strings.TrimRight(body, "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected id/event/data lines, got %q", body)
	}
	if !strings.HasPrefix(lines[0], "id:") {
		t.Fatalf("missing id line: %q", lines[0])
	}
	if lines[1] != "event:window" {
		t.Fatalf("event line = %q", lines[1])
	}
	if !strings.HasPrefix(lines[2], "data:[") {
		t.Fatalf("data line = %q", lines[2])
	}
	if !strings.HasSuffix(body, "\n\n") {
		t.Fatal("event not terminated by a blank line")
	}
}

func TestWriteSSEWindowEmpty(t *testing.T) {
	rec := httptest.NewRecorder()
	writeSSEWindow(rec, nil)
	body := rec.Body.String()
	if strings.Contains(body, "id:") {
		t.Fatal("empty window should carry no id")
	}
	if !strings.Contains(body, "data:null") && !strings.Contains(body, "data:[]") {
		t.Fatalf("unexpected empty window payload: %q", body)
	}
}
