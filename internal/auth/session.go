package auth

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/ownerportal/internal/apperr"
	httpx "github.com/wolfeidau/ownerportal/internal/http"
	"github.com/wolfeidau/ownerportal/internal/models"
)

// SessionCookieName is the cookie holding the opaque session ID.
const SessionCookieName = "_session"

// SessionResolver validates an opaque session token server-side and returns
// the principal with its role as currently stored.
type SessionResolver interface {
	ValidateSession(ctx context.Context, token string) (*models.Principal, error)
}

// SessionMiddleware resolves the session cookie and stores the principal in
// the request context. Requests without a valid session get a 401.
// Identity never comes from headers or the body.
func SessionMiddleware(resolver SessionResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				httpx.WriteError(w, r, apperr.ErrUnauthenticated, "")
				return
			}

			principal, err := resolver.ValidateSession(r.Context(), cookie.Value)
			if err != nil {
				httpx.WriteError(w, r, err, httpx.GenericMessage(apperr.HTTPStatus(err)))
				return
			}

			ctx := WithPrincipal(r.Context(), principal)
			ctx = zerolog.Ctx(ctx).With().Str("user_id", principal.ID.String()).Logger().WithContext(ctx)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
