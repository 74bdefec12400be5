// Package obs holds the shared observability surface: zap logger construction
// and the Prometheus collectors for the write/read/key paths.
package obs

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	// EventsAppended counts events committed to the event store.
	EventsAppended = promauto.NewCounter(prometheus.CounterOpts{
		Name: "conduit_events_appended_total",
		Help: "Events appended to the event store.",
	})

	// AppendConflicts counts optimistic concurrency conflicts surfaced to callers.
	AppendConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "conduit_append_conflicts_total",
		Help: "Appends rejected by the optimistic concurrency check.",
	})

	// StreamsLoaded counts event stream reads.
	StreamsLoaded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "conduit_streams_loaded_total",
		Help: "Event streams loaded from the event store.",
	})

	// DecryptDenied counts key resolutions that ended in "no key".
	DecryptDenied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "conduit_decrypt_denied_total",
		Help: "Decryption key resolutions denied (expired grant, wrong grantee, unknown context).",
	})

	// GrantsCreated counts share grants created.
	GrantsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "conduit_share_grants_created_total",
		Help: "Share grants created.",
	})

	// GrantsRevoked counts share grants revoked explicitly.
	GrantsRevoked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "conduit_share_grants_revoked_total",
		Help: "Share grants revoked.",
	})

	// GrantsSwept counts expired share grants removed by the cleanup sweep.
	GrantsSwept = promauto.NewCounter(prometheus.CounterOpts{
		Name: "conduit_share_grants_swept_total",
		Help: "Expired share grants deleted by the sweeper.",
	})
)

// NewLogger builds the process logger. dev switches to the human-readable
// development config.
func NewLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// Handler exposes the default Prometheus registry.
func Handler() http.Handler { return promhttp.Handler() }
