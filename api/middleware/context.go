package middleware

import "context"

type actorKey struct{}

type actor struct {
	id    string
	role  string
	email string
}

func actorFrom(ctx context.Context) actor {
	if ctx == nil {
		return actor{}
	}
	a, _ := ctx.Value(actorKey{}).(actor)
	return a
}

func ActorIDFromContext(ctx context.Context) string { return actorFrom(ctx).id }

func RoleFromContext(ctx context.Context) string { return actorFrom(ctx).role }

// ActorEmailFromContext is empty when the token carried no email claim.
func ActorEmailFromContext(ctx context.Context) string { return actorFrom(ctx).email }

// WithActor sets the authenticated actor. Handlers and tests that build
// contexts by hand use it too.
func WithActor(ctx context.Context, actorID, role string) context.Context {
	return withActor(ctx, actor{id: actorID, role: role})
}

func withActor(ctx context.Context, a actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, actorKey{}, a)
}
