package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Relay metrics, registered on the default prometheus registry and exposed
// through the router's /metrics endpoint.
var (
	relayStreamsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_streams_total",
		Help: "Relayed upstream streams by outcome",
	}, []string{"outcome"})

	relayBytesForwarded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_forwarded_bytes_total",
		Help: "Raw bytes forwarded from upstream to clients",
	})

	relayPersistenceFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_persistence_failures_total",
		Help: "Assistant messages that completed streaming but failed to persist",
	})

	cleanupDeletedSessions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "session_cleanup_deleted_total",
		Help: "Sessions removed by the inactivity sweep",
	})
)

// Stream outcomes
const (
	outcomeCompleted    = "completed"
	outcomeSetupFailed  = "setup_failed"
	outcomeStreamFailed = "stream_failed"
	outcomeClientGone   = "client_gone"
)
