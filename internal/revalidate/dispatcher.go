// Package revalidate drives best-effort cache invalidation callbacks into a
// subscriber application. Dispatch never blocks the event loop that feeds
// it, and failures never propagate: a stale path self-heals on the next
// mutation event that touches it.
package revalidate

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/copperline/beacon/internal/model"
	"github.com/copperline/beacon/pkg/metrics"
)

// attemptDelays spaces retries of one callback. Index 0 is the first
// attempt.
var attemptDelays = []time.Duration{0, time.Second, 5 * time.Second}

// Options configures a Dispatcher. Zero values get the reference defaults.
type Options struct {
	// SettleDelay absorbs read-after-write lag in the content path the
	// revalidation target queries.
	SettleDelay time.Duration
	// CallTimeout bounds each individual HTTP callback.
	CallTimeout time.Duration
	// MaxAttempts bounds retries per path (including the first attempt).
	MaxAttempts int
	// Parallel bounds how many paths of one event are dispatched at once.
	Parallel int
	// ExtraPaths are invalidated on every event in addition to the
	// computed set (e.g. "/feed.xml").
	ExtraPaths []string
}

// Dispatcher issues revalidation callbacks to one subscriber application.
type Dispatcher struct {
	baseURL string
	opts    Options
	client  *http.Client
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// New creates a Dispatcher targeting the subscriber application at baseURL
// (its /api/revalidate endpoint).
func New(baseURL string, opts Options, logger *slog.Logger) *Dispatcher {
	if opts.SettleDelay == 0 {
		opts.SettleDelay = 2 * time.Second
	}
	if opts.CallTimeout == 0 {
		opts.CallTimeout = 5 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	if opts.MaxAttempts > len(attemptDelays) {
		opts.MaxAttempts = len(attemptDelays)
	}
	if opts.Parallel <= 0 {
		opts.Parallel = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		baseURL: baseURL,
		opts:    opts,
		client:  &http.Client{},
		logger:  logger,
	}
}

// Dispatch computes the event's affected paths and invalidates them in the
// background. Fire-and-forget: the caller's loop is never stalled by slow
// or failing callbacks.
func (d *Dispatcher) Dispatch(ctx context.Context, event *model.Event) {
	paths := append(Paths(event), d.opts.ExtraPaths...)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.run(ctx, event, paths)
	}()
}

// Wait blocks until all in-flight dispatches finish. Called on shutdown.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) run(ctx context.Context, event *model.Event, paths []string) {
	// Settling delay before the first callback.
	select {
	case <-time.After(d.opts.SettleDelay):
	case <-ctx.Done():
		return
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(d.opts.Parallel)
	for _, path := range paths {
		g.Go(func() error {
			if err := d.revalidatePath(ctx, path); err != nil {
				d.logger.Warn("revalidation failed",
					"site_id", event.SiteID,
					"event_id", event.ID,
					"path", path,
					"err", err,
				)
			}
			// Failures are soft: never cancel the sibling paths.
			return nil
		})
	}
	_ = g.Wait()
}

// revalidatePath POSTs one path to the subscriber's revalidation endpoint,
// retrying up to MaxAttempts with the fixed delay table. Any 2xx is
// success; everything else (including timeout) is a soft failure.
func (d *Dispatcher) revalidatePath(ctx context.Context, path string) error {
	var lastErr error
	for attempt := 0; attempt < d.opts.MaxAttempts; attempt++ {
		if delay := attemptDelays[attempt]; delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		start := time.Now()
		err := d.callOnce(ctx, path)
		metrics.RevalidateDuration.Observe(time.Since(start).Seconds())
		if err == nil {
			metrics.RevalidateCalls.WithLabelValues("ok").Inc()
			return nil
		}
		metrics.RevalidateCalls.WithLabelValues("error").Inc()
		lastErr = err
		if ctx.Err() != nil {
			return lastErr
		}
	}
	return lastErr
}

func (d *Dispatcher) callOnce(ctx context.Context, path string) error {
	callCtx, cancel := context.WithTimeout(ctx, d.opts.CallTimeout)
	defer cancel()

	target := d.baseURL + "/api/revalidate?path=" + url.QueryEscape(path)
	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, target, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("revalidate call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("revalidate call: status %d", resp.StatusCode)
	}
	return nil
}
