package rest

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dataguard/gdpr-engine/internal/domain/errors"
)

// Claims carries the operator identity inside API tokens.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Role  string `json:"role,omitempty"`
}

// Actor returns the authenticated operator's email, or empty when the
// request carried no token (public endpoints).
func Actor(ctx context.Context) string {
	actor, _ := ctx.Value(contextKeyActor).(string)
	return actor
}

// authMiddleware validates the Bearer token and stores the operator identity
// in the request context. Audit trails read it through Actor.
func (h *Handlers) authMiddleware(secret []byte) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, err := bearerToken(r)
			if err != nil {
				h.writeError(w, r, err)
				return
			}

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, errors.NewUnauthorizedError("unexpected signing method")
				}
				return secret, nil
			})
			if err != nil || !token.Valid {
				h.writeError(w, r, errors.NewUnauthorizedError("invalid or expired token"))
				return
			}

			actor := claims.Email
			if actor == "" {
				actor = claims.Subject
			}
			if actor == "" {
				h.writeError(w, r, errors.NewUnauthorizedError("token carries no identity"))
				return
			}

			ctx := context.WithValue(r.Context(), contextKeyActor, actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", errors.NewUnauthorizedError("missing authorization header")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.NewUnauthorizedError("authorization header must be a Bearer token")
	}
	return parts[1], nil
}
