// Package subscriber implements the consuming side of the pipeline: a
// long-lived watcher that maintains a watermark of the last-seen event
// time, consumes the push channel with reconnect/backoff, falls back to
// polling when push is unavailable, and hands each new event to a
// dispatcher exactly once.
package subscriber

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/copperline/beacon/internal/client"
	"github.com/copperline/beacon/internal/events"
	"github.com/copperline/beacon/internal/model"
)

// State is the subscriber's connection lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StatePollingFallback
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StatePollingFallback:
		return "polling_fallback"
	}
	return "unknown"
}

// Dispatcher receives each newly observed event. Dispatch must not block;
// delivery-notification and cache-invalidation are decoupled failure
// domains.
type Dispatcher interface {
	Dispatch(ctx context.Context, event *model.Event)
}

// Options configures a Subscriber. Zero values get defaults.
type Options struct {
	SiteID       string
	APIKey       string
	WindowLimit  int           // records per push window (default 10)
	PollInterval time.Duration // polling fallback cadence (default 5s)
	// MaxConnectFailures is the number of consecutive failed connection
	// attempts before the subscriber abandons push for polling fallback
	// (exited only by restart). Default 5.
	MaxConnectFailures int
	// Bus, when set, is consumed in preference to the SSE push channel.
	// Events arrive individually on the site's subjects; losing the bus
	// falls back to SSE push, then polling.
	Bus events.Subscriber
}

// Subscriber consumes the push channel for one site. Run blocks until ctx
// is cancelled; cancellation releases the stream and all background work.
type Subscriber struct {
	client   *client.Client
	opts     Options
	dispatch Dispatcher
	backoff  *Backoff
	logger   *slog.Logger

	state     State
	watermark time.Time
	seen      map[string]seenItem // keyed by item_id, polling mode only
}

// seenItem remembers enough of a snapshot entry to classify later diffs and
// to compute paths for an inferred delete.
type seenItem struct {
	hash       string
	collection string
	slug       string
}

// New creates a subscriber for one site against the given beacon client.
func New(c *client.Client, opts Options, dispatch Dispatcher, logger *slog.Logger) *Subscriber {
	if opts.WindowLimit <= 0 {
		opts.WindowLimit = 10
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.MaxConnectFailures <= 0 {
		opts.MaxConnectFailures = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Subscriber{
		client:   c,
		opts:     opts,
		dispatch: dispatch,
		backoff:  NewBackoff(time.Second, time.Minute, 2.0),
		logger:   logger.With("site_id", opts.SiteID),
		state:    StateDisconnected,
		seen:     make(map[string]seenItem),
	}
}

// State returns the current lifecycle state. Racy by nature; intended for
// logging and tests, not control flow.
func (s *Subscriber) State() State { return s.state }

// Watermark returns the timestamp below which all events are considered
// already processed.
func (s *Subscriber) Watermark() time.Time { return s.watermark }

// Run consumes events until ctx is cancelled. A configured bus subscription
// is tried first; losing it demotes to the SSE push channel. Transport
// errors there trigger capped exponential backoff; crossing the failure
// threshold switches to polling fallback for the remainder of the process
// lifetime.
func (s *Subscriber) Run(ctx context.Context) error {
	if s.opts.Bus != nil {
		err := s.runBus(ctx)
		if ctx.Err() != nil {
			s.state = StateDisconnected
			return ctx.Err()
		}
		s.logger.Warn("bus subscription lost, using push channel", "err", err)
	}

	failures := 0
	for {
		if ctx.Err() != nil {
			s.state = StateDisconnected
			return ctx.Err()
		}

		s.state = StateConnecting
		ch, cancel, err := s.client.Stream(ctx, s.opts.SiteID, s.opts.APIKey, s.opts.WindowLimit)
		if err != nil {
			if code := client.StatusCode(err); code == 401 || code == 404 {
				// Credential or site errors are not transport errors; no
				// amount of reconnecting fixes them.
				s.state = StateDisconnected
				return err
			}
			failures++
			s.logger.Warn("push connect failed", "attempt", failures, "err", err)
			if failures >= s.opts.MaxConnectFailures {
				s.logger.Warn("push unavailable, entering polling fallback")
				return s.runPolling(ctx)
			}
			s.state = StateReconnecting
			if !s.sleep(ctx, s.backoff.Next()) {
				return ctx.Err()
			}
			continue
		}

		failures = 0
		s.backoff.Reset()
		s.state = StateConnected
		s.logger.Info("push channel connected")

		s.consume(ctx, ch)
		cancel()

		if ctx.Err() != nil {
			s.state = StateDisconnected
			return ctx.Err()
		}
		s.state = StateReconnecting
		s.logger.Warn("push channel lost, reconnecting")
		if !s.sleep(ctx, s.backoff.Next()) {
			return ctx.Err()
		}
	}
}

// consume drains windows until the channel closes or ctx is cancelled.
func (s *Subscriber) consume(ctx context.Context, ch <-chan []*model.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case window, ok := <-ch:
			if !ok {
				return
			}
			s.processWindow(ctx, window)
		}
	}
}

// runBus consumes single-event payloads from the site's bus subjects until
// ctx is cancelled or the subscription is lost. The same watermark rule as
// the push channel applies, so a later SSE window redelivering a bus-seen
// event is not dispatched twice.
func (s *Subscriber) runBus(ctx context.Context) error {
	ch, cancel, err := s.opts.Bus.Subscribe(events.SiteSubject(s.opts.SiteID))
	if err != nil {
		return err
	}
	defer cancel()

	s.state = StateConnected
	s.logger.Info("bus subscription active")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-ch:
			if !ok {
				return errors.New("bus subscription closed")
			}
			var ev model.Event
			if err := json.Unmarshal(data, &ev); err != nil {
				s.logger.Warn("discarding malformed bus payload", "err", err)
				continue
			}
			if !ev.Timestamp.After(s.watermark) {
				continue
			}
			s.dispatch.Dispatch(ctx, &ev)
			s.watermark = ev.Timestamp
		}
	}
}

// processWindow dispatches every record beyond the watermark, oldest first,
// then advances the watermark to the max timestamp seen. The watermark
// advances even if a dispatch fails downstream; re-dispatching is never
// attempted for a record at or below it.
func (s *Subscriber) processWindow(ctx context.Context, window []*model.Event) {
	if len(window) == 0 {
		return
	}
	// Windows arrive most-recent-first; dispatch in event order.
	events := make([]*model.Event, len(window))
	copy(events, window)
	sort.Slice(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})

	for _, ev := range events {
		if !ev.Timestamp.After(s.watermark) {
			continue // already delivered, window overlap is expected
		}
		s.dispatch.Dispatch(ctx, ev)
		s.watermark = ev.Timestamp
	}
}

// runPolling is the stateless fallback: snapshot the site's fingerprints on
// an interval and synthesize events from hash diffs. Event types are
// inferred (new hash = created, changed = updated, gone = deleted), an
// approximation documented on the poll surface.
func (s *Subscriber) runPolling(ctx context.Context) error {
	s.state = StatePollingFallback

	// Prime the seen map so startup does not replay the entire site as
	// freshly created items.
	if snap, err := s.client.Poll(ctx, s.opts.SiteID, s.opts.APIKey); err == nil {
		for _, it := range snap.Items {
			s.seen[it.ItemID] = seenItem{hash: it.ContentHash, collection: it.Collection, slug: it.Slug}
		}
	}

	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.state = StateDisconnected
			return ctx.Err()
		case <-ticker.C:
		}

		snap, err := s.client.Poll(ctx, s.opts.SiteID, s.opts.APIKey)
		if err != nil {
			if ctx.Err() != nil {
				s.state = StateDisconnected
				return ctx.Err()
			}
			s.logger.Warn("poll failed", "err", err)
			continue
		}

		for _, ev := range s.diffSnapshot(snap.Items) {
			s.dispatch.Dispatch(ctx, ev)
			if ev.Timestamp.After(s.watermark) {
				s.watermark = ev.Timestamp
			}
		}
	}
}

// diffSnapshot compares the snapshot against the seen map and synthesizes
// one event per changed item. It updates the seen map in place.
func (s *Subscriber) diffSnapshot(items []*model.SnapshotItem) []*model.Event {
	var changed []*model.Event
	now := time.Now().UTC()
	current := make(map[string]struct{}, len(items))

	for _, it := range items {
		current[it.ItemID] = struct{}{}
		prev, ok := s.seen[it.ItemID]
		if ok && prev.hash == it.ContentHash {
			continue
		}
		evType := model.EventUpdated
		if !ok {
			evType = model.EventCreated
		}
		s.seen[it.ItemID] = seenItem{hash: it.ContentHash, collection: it.Collection, slug: it.Slug}
		changed = append(changed, &model.Event{
			SiteID:     s.opts.SiteID,
			Type:       evType,
			Collection: it.Collection,
			Slug:       it.Slug,
			ItemID:     it.ItemID,
			Timestamp:  it.UpdatedAt,
		})
	}

	for itemID, prev := range s.seen {
		if _, ok := current[itemID]; !ok {
			delete(s.seen, itemID)
			changed = append(changed, &model.Event{
				SiteID:     s.opts.SiteID,
				Type:       model.EventDeleted,
				Collection: prev.collection,
				Slug:       prev.slug,
				ItemID:     itemID,
				Timestamp:  now,
			})
		}
	}
	return changed
}

// sleep waits for d or until ctx is done; reports whether the full wait
// elapsed.
func (s *Subscriber) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
