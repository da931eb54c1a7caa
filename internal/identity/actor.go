package identity

import "context"

// Actor identifies the authenticated caller of an operation. It is
// passed explicitly into every operation that makes an authorization
// decision; nothing in the engines reads ambient request state.
type Actor struct {
	// Identity is the stable external identity reference.
	Identity string

	// Role is the access tier at the time the request was authenticated.
	Role Role
}

// IsAdmin reports whether the actor holds the admin tier.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

type contextKey string

const contextKeyActor contextKey = "actor"

// WithActor stores the actor on the context for the request lifecycle.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, contextKeyActor, actor)
}

// ActorFrom extracts the actor from the context.
func ActorFrom(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(contextKeyActor).(Actor)
	return actor, ok
}
