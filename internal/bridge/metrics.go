package bridge

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Event kinds used as label values.
const (
	kindLocation         = "location"
	kindProviderEnabled  = "provider_enabled"
	kindProviderDisabled = "provider_disabled"
	kindPermissionDenied = "permission_denied"
	kindPermissionGrant  = "permission_granted"
	kindBatchFlushed     = "batch_flushed"
)

// Drop reasons.
const (
	dropFilteredProvider = "filtered_provider"
	dropAfterStop        = "after_stop"
)

var (
	// EventsForwarded counts events handed to the native consumer, by kind.
	EventsForwarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "location_bridge_events_forwarded_total",
		Help: "Total number of events forwarded across the native boundary, by kind.",
	}, []string{"kind"})

	// EventsDropped counts host events that never reached the consumer.
	EventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "location_bridge_events_dropped_total",
		Help: "Total number of host events not forwarded, by reason.",
	}, []string{"reason"})

	// BatchFlushes counts batched-delivery completions observed from the host.
	BatchFlushes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "location_bridge_batch_flushes_total",
		Help: "Total number of batch flush completions reported by the host.",
	})

	// NativeFailures counts native entry points that panicked.
	NativeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "location_bridge_native_failures_total",
		Help: "Total number of native entry point failures, by kind.",
	}, []string{"kind"})

	// RegistrationFailures counts failed host registrations, by reason.
	RegistrationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "location_bridge_registration_failures_total",
		Help: "Total number of failed subscription registrations, by reason (denied/error/rejected).",
	}, []string{"reason"})

	// SubscriptionActive is 1 while a host registration is live.
	SubscriptionActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "location_bridge_subscription_active",
		Help: "Whether a host location subscription is currently registered.",
	})
)
