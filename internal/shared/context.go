package shared

import "context"

// Actor identifies the authenticated caller as asserted by the fronting
// proxy. Authentication itself happens upstream; this service only mirrors
// the identity it is handed.
type Actor struct {
	ID     string
	Groups []string
}

type actorContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context. The boolean is false
// when no actor was attached to the request.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	if !ok || actor.ID == "" {
		return Actor{}, false
	}
	return actor, true
}
