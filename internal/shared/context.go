package shared

import "context"

type actorContextKey struct{}

// ContextWithActor stores the administrative actor id in context.
func ContextWithActor(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actorID)
}

// ActorFromContext extracts the administrative actor id from context.
// Returns the empty string when no actor has been established.
func ActorFromContext(ctx context.Context) string {
	actor, _ := ctx.Value(actorContextKey{}).(string)
	return actor
}
