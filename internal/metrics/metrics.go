package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "icgw"

// Message outcomes recorded by the pollers.
const (
	OutcomeDelivered = "delivered"
	OutcomeDropped   = "dropped"
	OutcomeMalformed = "malformed"
)

var (
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions_active",
		Help:      "WebSocket sessions currently connected to the gateway",
	})

	Handshakes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "handshakes_total",
		Help:      "Handshake attempts by result",
	}, []string{"result"})

	RelayCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "relay_calls_total",
		Help:      "Client messages relayed to canisters by result",
	}, []string{"result"})

	PollersActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "pollers_active",
		Help:      "Canister pollers running in this process",
	})

	PollDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "poll_duration_seconds",
		Help:      "Latency of ws_get_messages calls",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
	}, []string{"canister"})

	PollErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "poll_errors_total",
		Help:      "Failed ws_get_messages calls",
	}, []string{"canister"})

	Messages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_total",
		Help:      "Outbound canister messages by outcome",
	}, []string{"canister", "outcome"})

	StoreErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "store_errors_total",
		Help:      "Session store failures by operation",
	}, []string{"op"})
)
