package api

import (
	"context"
	"time"

	"github.com/pawsaarthi/rescue-api/lifecycle"
)

// QueryTimeout is the default timeout for database queries
const QueryTimeout = 10 * time.Second

// WithQueryTimeout creates a context with query timeout
func WithQueryTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, QueryTimeout)
}

type actorKey struct{}

// WithActor stores the authenticated actor in ctx
func WithActor(ctx context.Context, a lifecycle.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFrom returns the authenticated actor stored by the auth middleware
func ActorFrom(ctx context.Context) (lifecycle.Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(lifecycle.Actor)
	return a, ok
}
