package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"chat-relay/internal/identity"
)

type contextKey string

const IdentityKey contextKey = "identity"

// ResumeParam is the query parameter a browser client uses to present its
// resume token, since it cannot set headers on a websocket upgrade.
const ResumeParam = "resume"

// TokenValidator decouples the middleware from the identity service.
type TokenValidator interface {
	ValidateToken(tokenString string) (identity.Identity, error)
}

type IdentityMiddleware struct {
	validator TokenValidator
	log       *slog.Logger
}

func NewIdentityMiddleware(v TokenValidator, log *slog.Logger) *IdentityMiddleware {
	return &IdentityMiddleware{validator: v, log: log}
}

// Handle resolves the caller's identity from a resume token and injects it
// into the request context. A missing or invalid token yields a fresh
// identity: the relay does not authenticate.
func (im *IdentityMiddleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := identity.New()

		if tokenString := tokenFromRequest(r); tokenString != "" {
			resumed, err := im.validator.ValidateToken(tokenString)
			if err != nil {
				im.log.Debug("Ignoring resume token", "error", err, "remote", r.RemoteAddr)
			} else {
				id = resumed
			}
		}

		ctx := context.WithValue(r.Context(), IdentityKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func IdentityFromContext(ctx context.Context) (identity.Identity, bool) {
	id, ok := ctx.Value(IdentityKey).(identity.Identity)
	return id, ok && !id.IsZero()
}

func tokenFromRequest(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
	}
	return r.URL.Query().Get(ResumeParam)
}
