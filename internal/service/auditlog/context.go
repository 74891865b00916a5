package auditlog

import (
	"context"

	"github.com/vaultmesh/backup-sentinel/internal/domain/audit"
)

type contextKey int

const (
	correlationKey contextKey = iota
	actorKey
	networkKey
)

// WithCorrelationID attaches a correlation ID that subsequent Record
// calls stamp onto events that do not carry one.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey, id)
}

// CorrelationIDFromContext returns the ambient correlation ID, or "".
func CorrelationIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey).(string)
	return id
}

// WithActor attaches the acting principal for subsequent Record calls.
func WithActor(ctx context.Context, actor audit.Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFromContext returns the ambient actor, zero when unset.
func ActorFromContext(ctx context.Context) audit.Actor {
	actor, _ := ctx.Value(actorKey).(audit.Actor)
	return actor
}

// WithNetwork attaches request network details for subsequent Record
// calls.
func WithNetwork(ctx context.Context, network audit.Network) context.Context {
	return context.WithValue(ctx, networkKey, network)
}

// NetworkFromContext returns the ambient network details, zero when
// unset.
func NetworkFromContext(ctx context.Context) audit.Network {
	network, _ := ctx.Value(networkKey).(audit.Network)
	return network
}

// ClearAmbient shadows any ambient correlation, actor and network
// values, for callers that reuse a request context beyond the scope
// those values describe.
func ClearAmbient(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, correlationKey, "")
	ctx = context.WithValue(ctx, actorKey, audit.Actor{})
	return context.WithValue(ctx, networkKey, audit.Network{})
}

// applyAmbient fills event fields left empty by the caller from the
// ambient request context. Explicitly set fields win.
func applyAmbient(ctx context.Context, event *audit.Event) {
	if event.CorrelationID == "" {
		event.CorrelationID = CorrelationIDFromContext(ctx)
	}
	if event.Actor == (audit.Actor{}) {
		event.Actor = ActorFromContext(ctx)
	}
	if event.Network == (audit.Network{}) {
		event.Network = NetworkFromContext(ctx)
	}
}
