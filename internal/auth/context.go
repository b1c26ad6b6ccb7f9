package auth

import "context"

type contextKey struct{}

// WithIdentity attaches the verified user to the request context. The identity
// travels with the request explicitly; there is no shared mutable slot.
func WithIdentity(ctx context.Context, user User) context.Context {
	return context.WithValue(ctx, contextKey{}, user)
}

// IdentityFrom returns the verified user placed by the middleware.
func IdentityFrom(ctx context.Context) (User, bool) {
	user, ok := ctx.Value(contextKey{}).(User)
	return user, ok
}
