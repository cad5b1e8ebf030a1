package storage

import "context"

type actorKey struct{}

// WithActor returns a context whose storage operations are audited as
// performed by actorID.
func WithActor(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorKey{}, actorID)
}

// ActorFromContext returns the actor set by WithActor, or "".
func ActorFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(actorKey{}).(string); ok {
		return v
	}
	return ""
}
