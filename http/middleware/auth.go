package middleware

import (
	"context"
	"net/http"
	"strings"

	"learning-platform/http/response"
	"learning-platform/models"
)

// Authenticator resolves a bearer token to the calling principal.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (models.Principal, error)
}

type principalKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p models.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal stored by RequireAuth.
func PrincipalFrom(ctx context.Context) (models.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(models.Principal)
	return p, ok && p != nil
}

// RequireAuth rejects requests without a valid "Authorization: Bearer" token
// and stores the resolved principal in the request context.
func RequireAuth(auth Authenticator) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				response.ErrorResponse(w, http.StatusUnauthorized, "Authentication credentials were not provided.")
				return
			}
			principal, err := auth.Authenticate(r.Context(), token)
			if err != nil {
				response.FromError(w, err)
				return
			}
			next(w, r.WithContext(WithPrincipal(r.Context(), principal)))
		}
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
