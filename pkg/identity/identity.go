// Package identity carries the authenticated actor through request
// context. Authentication itself is an external collaborator: this
// package trusts the identity headers it is handed and enforces role
// gates only where the engine requires them.
package identity

import (
	"context"
	"net/http"
	"strings"
)

// actorCtxKey is an unexported type used as the context key for Actor.
type actorCtxKey struct{}

// Actor represents the authenticated user performing an operation.
type Actor struct {
	User  string
	Roles []string
}

// Role names gated by the engine. Only calibration release and customer
// return are role-checked; everything else trusts the upstream authorizer.
const (
	RoleCalibrationRelease = "calibration-release"
	RoleCustomerReturns    = "customer-returns"
)

// HasRole reports whether the actor carries the given role.
func (a Actor) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// WithActor returns a new context with the given Actor attached.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorCtxKey{}, a)
}

// ActorFromContext retrieves the Actor from the context.
// Returns the zero value and false if no actor is set.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorCtxKey{}).(Actor)
	return a, ok
}

// UserFromContext returns the actor's user name, or "anonymous".
func UserFromContext(ctx context.Context) string {
	if a, ok := ActorFromContext(ctx); ok && a.User != "" {
		return a.User
	}
	return "anonymous"
}

// Middleware returns HTTP middleware that extracts the actor from
// X-Remote-User and X-Remote-Group headers and stores it in the request
// context. If X-Remote-User is missing, the user defaults to "anonymous".
// X-Remote-Group is comma-separated.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := strings.TrimSpace(r.Header.Get("X-Remote-User"))
			if user == "" {
				user = "anonymous"
			}

			var roles []string
			groupHeader := strings.TrimSpace(r.Header.Get("X-Remote-Group"))
			if groupHeader != "" {
				for _, g := range strings.Split(groupHeader, ",") {
					g = strings.TrimSpace(g)
					if g != "" {
						roles = append(roles, g)
					}
				}
			}

			actor := Actor{User: user, Roles: roles}
			ctx := WithActor(r.Context(), actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole returns true when the context actor carries the role.
// Callers turn a false into a 403.
func RequireRole(ctx context.Context, role string) bool {
	a, ok := ActorFromContext(ctx)
	return ok && a.HasRole(role)
}
