package auth

import (
	"context"

	"github.com/google/uuid"
)

// UserContext identifies the requester for the lifetime of one request.
// Institutional users reference concepts by local id; federated users
// reference them by universal id.
type UserContext struct {
	// Subject is the stable user identifier, e.g. "ndobb@uw.edu".
	Subject string
	// Issuer is the institution the token was minted by.
	Issuer string
	// IsInstitutional is true when the user belongs to this deployment
	// rather than a federated partner.
	IsInstitutional bool
	// Identified sessions may see raw identifiers; de-identified sessions
	// only ever see obfuscated counts.
	Identified bool
	// SessionNonce scopes unsaved cohorts to a login session.
	SessionNonce uuid.UUID
}

// UserID returns the cache ownership key for this user.
func (u *UserContext) UserID() string {
	return u.Subject + "@" + u.Issuer
}

type contextKey string

const userContextKey contextKey = "leaf_user"

// WithUser returns a context carrying the user.
func WithUser(ctx context.Context, u *UserContext) context.Context {
	return context.WithValue(ctx, userContextKey, u)
}

// UserFromContext returns the user stored by the auth middleware, or nil.
func UserFromContext(ctx context.Context) *UserContext {
	u, _ := ctx.Value(userContextKey).(*UserContext)
	return u
}
