package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsBroadcast tracks accepted broadcasts by site and event type.
	EventsBroadcast = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "beacon_events_broadcast_total",
		Help: "Total number of content events accepted by the broadcaster",
	}, []string{"site_id", "event_type"})

	// BroadcastRejected counts rejected broadcasts (unknown site, bad input).
	BroadcastRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "beacon_broadcast_rejected_total",
		Help: "Total number of broadcast requests rejected before append",
	}, []string{"reason"})

	// PushClients is the number of currently connected push subscribers.
	PushClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "beacon_push_clients",
		Help: "Current number of connected push channel subscribers",
	})

	// WindowsDelivered counts top-N windows fanned out to push subscribers.
	WindowsDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "beacon_push_windows_delivered_total",
		Help: "Total number of event windows delivered on the push channel",
	})

	// WindowsDropped counts windows dropped because a subscriber was slow.
	WindowsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "beacon_push_windows_dropped_total",
		Help: "Total number of event windows dropped for slow subscribers",
	})

	// PollRequests counts poll snapshot requests by outcome.
	PollRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "beacon_poll_requests_total",
		Help: "Total number of poll snapshot requests",
	}, []string{"status"})

	// RevalidateCalls counts revalidation callbacks by outcome.
	RevalidateCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "beacon_revalidate_calls_total",
		Help: "Total number of revalidation callbacks issued",
	}, []string{"status"})

	// RevalidateDuration measures revalidation callback latency.
	RevalidateDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "beacon_revalidate_duration_seconds",
		Help:    "Duration of revalidation callbacks in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// EventsEvicted counts records removed by the sweeper.
	EventsEvicted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "beacon_events_evicted_total",
		Help: "Total number of event records evicted past the retention window",
	})
)
