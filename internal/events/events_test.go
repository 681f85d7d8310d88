package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"

	"github.com/copperline/beacon/internal/model"
)

func startTestNATS(t *testing.T) string {
	t.Helper()
	opts := &natsserver.Options{Host: "127.0.0.1", Port: -1}
	srv, err := natsserver.NewServer(opts)
	if err != nil {
		t.Fatalf("starting embedded NATS: %v", err)
	}
	srv.Start()
	t.Cleanup(srv.Shutdown)
	if !srv.ReadyForConnections(5 * time.Second) {
		t.Fatal("embedded NATS not ready")
	}
	return srv.ClientURL()
}

func TestSubjectNaming(t *testing.T) {
	if got := Subject("site-1", model.EventPublished); got != "content.site-1.published" {
		t.Errorf("Subject = %q", got)
	}
	if got := SiteSubject("site-1"); got != "content.site-1.>" {
		t.Errorf("SiteSubject = %q", got)
	}
}

func TestNoopPublisher(t *testing.T) {
	var _ Publisher = (*NoopPublisher)(nil)
	pub := &NoopPublisher{}
	if err := pub.Publish(context.Background(), &model.Event{}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := pub.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestNATSPublisherImplementsPublisher(t *testing.T) {
	var _ Publisher = (*NATSPublisher)(nil)
}

func TestNATSRoundTrip(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	defer pub.Close()

	sub, err := NewNATSSubscriber(url)
	if err != nil {
		t.Fatalf("creating subscriber: %v", err)
	}
	defer sub.Close()

	ch, cancel, err := sub.Subscribe(SiteSubject("site-1"))
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	defer cancel()

	event := &model.Event{
		ID:         "ev-nats1",
		SiteID:     "site-1",
		Type:       model.EventPublished,
		Collection: "blog",
		ItemID:     "post-1",
		Timestamp:  time.Now().UTC(),
	}
	if err := pub.Publish(context.Background(), event); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	pub.conn.Flush()

	select {
	case data := <-ch:
		var got model.Event
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got.ID != event.ID || got.Type != event.Type {
			t.Errorf("received %+v, want %+v", got, event)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published event")
	}
}

func TestNATSSiteIsolation(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	defer pub.Close()

	sub, err := NewNATSSubscriber(url)
	if err != nil {
		t.Fatalf("creating subscriber: %v", err)
	}
	defer sub.Close()

	ch, cancel, err := sub.Subscribe(SiteSubject("site-a"))
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	defer cancel()

	other := &model.Event{ID: "ev-other", SiteID: "site-b", Type: model.EventCreated, Collection: "blog", ItemID: "x"}
	if err := pub.Publish(context.Background(), other); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	pub.conn.Flush()

	select {
	case data := <-ch:
		t.Fatalf("received another site's event: %s", data)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestSubscriberCancelClosesChannel(t *testing.T) {
	url := startTestNATS(t)

	sub, err := NewNATSSubscriber(url)
	if err != nil {
		t.Fatalf("creating subscriber: %v", err)
	}
	defer sub.Close()

	ch, cancel, err := sub.Subscribe(SiteSubject("site-1"))
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	cancel()
	cancel() // safe to call twice

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected closed channel after cancel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
}
