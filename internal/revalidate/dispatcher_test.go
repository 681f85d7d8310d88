package revalidate

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/copperline/beacon/internal/model"
)

// revalidateTarget records POSTs to /api/revalidate.
type revalidateTarget struct {
	mu    sync.Mutex
	paths []string
	// failuresLeft makes the handler return 500 until it reaches zero.
	failuresLeft int
}

func (rt *revalidateTarget) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rt.mu.Lock()
		defer rt.mu.Unlock()
		if rt.failuresLeft > 0 {
			rt.failuresLeft--
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		rt.paths = append(rt.paths, r.URL.Query().Get("path"))
		w.WriteHeader(http.StatusOK)
	})
}

func (rt *revalidateTarget) seen() []string {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return append([]string(nil), rt.paths...)
}

func TestDispatchHitsEveryPath(t *testing.T) {
	target := &revalidateTarget{}
	ts := httptest.NewServer(target.handler())
	defer ts.Close()

	d := New(ts.URL, Options{SettleDelay: time.Millisecond, CallTimeout: time.Second}, nil)
	d.Dispatch(context.Background(), &model.Event{SiteID: "site-1", Collection: "blog", Slug: "hello"})
	d.Wait()

	seen := target.seen()
	want := map[string]bool{"/": true, "/blog": true, "/blog/hello": true, "/sitemap.xml": true}
	if len(seen) != len(want) {
		t.Fatalf("expected %d calls, got %d: %v", len(want), len(seen), seen)
	}
	for _, p := range seen {
		if !want[p] {
			t.Errorf("unexpected path %q", p)
		}
	}
}

func TestDispatchExtraPaths(t *testing.T) {
	target := &revalidateTarget{}
	ts := httptest.NewServer(target.handler())
	defer ts.Close()

	d := New(ts.URL, Options{SettleDelay: time.Millisecond, CallTimeout: time.Second, ExtraPaths: []string{"/feed.xml"}}, nil)
	d.Dispatch(context.Background(), &model.Event{Collection: "pages"})
	d.Wait()

	found := false
	for _, p := range target.seen() {
		if p == "/feed.xml" {
			found = true
		}
	}
	if !found {
		t.Fatal("extra path was never revalidated")
	}
}

func TestDispatchRetriesSoftFailures(t *testing.T) {
	target := &revalidateTarget{failuresLeft: 3}
	ts := httptest.NewServer(target.handler())
	defer ts.Close()

	d := New(ts.URL, Options{SettleDelay: time.Millisecond, CallTimeout: time.Second, MaxAttempts: 2}, nil)
	// Shorten the retry table for the test.
	old := attemptDelays
	attemptDelays = []time.Duration{0, time.Millisecond, time.Millisecond}
	defer func() { attemptDelays = old }()

	d.Dispatch(context.Background(), &model.Event{Collection: "pages"})
	d.Wait()

	// 3 paths, 3 initial failures spread across them, each retried once:
	// all 3 must eventually land.
	if got := len(target.seen()); got != 3 {
		t.Fatalf("expected 3 successful revalidations after retries, got %d", got)
	}
}

func TestDispatchDoesNotBlockCaller(t *testing.T) {
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer ts.Close()

	d := New(ts.URL, Options{SettleDelay: time.Millisecond, CallTimeout: 5 * time.Second}, nil)

	done := make(chan struct{})
	go func() {
		d.Dispatch(context.Background(), &model.Event{Collection: "blog"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Dispatch blocked on a slow target")
	}
	close(release)
	d.Wait()
}

func TestDispatchCancelledContext(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no call expected after cancellation")
	}))
	defer ts.Close()

	d := New(ts.URL, Options{SettleDelay: time.Hour, CallTimeout: time.Second}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	d.Dispatch(ctx, &model.Event{Collection: "blog"})
	cancel()
	d.Wait()
}
