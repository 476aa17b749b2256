package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/fulmenhq/gofulmen/errors"

	"github.com/lingualens/lingualens/internal/auth"
)

type claimsContextKey string

const ClaimsContextKey claimsContextKey = "auth_claims"

// BearerAuth rejects requests without a valid HS256 bearer token.
func BearerAuth(signer *auth.Signer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				unauthorized(w, r, "Missing authorization header")
				return
			}

			scheme, token, ok := strings.Cut(header, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
				unauthorized(w, r, "Invalid authorization header format")
				return
			}

			claims, err := signer.Validate(strings.TrimSpace(token))
			if err != nil {
				unauthorized(w, r, "Invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetClaims returns the authenticated claims, if any.
func GetClaims(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(ClaimsContextKey).(*auth.Claims)
	return claims, ok
}

func unauthorized(w http.ResponseWriter, r *http.Request, message string) {
	envelope := errors.NewErrorEnvelope("UNAUTHORIZED", message).
		WithCorrelationID(GetRequestID(r.Context()))
	w.Header().Set("WWW-Authenticate", `Bearer realm="lingualens"`)
	writeErrorResponse(w, envelope, http.StatusUnauthorized)
}
