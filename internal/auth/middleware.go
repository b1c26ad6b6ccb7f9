package auth

import (
	"errors"
	"net/http"

	"github.com/getsentry/sentry-go"
)

// Middleware guards a protected endpoint: it verifies the access token and
// passes the resolved user down via the request context.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := v.VerifyRequest(r)
		if err != nil {
			WriteAuthError(w, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), user)))
	})
}

// WriteAuthError maps the error taxonomy onto HTTP responses. Expired and
// mismatched tokens stay distinguishable so clients know whether to refresh or
// to re-login; a struggling store is never reported as a credential failure.
func WriteAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrTokenMissing):
		writeError(w, http.StatusUnauthorized, "missing authorization token")
	case errors.Is(err, ErrTokenExpired):
		writeError(w, http.StatusUnauthorized, "token expired")
	case errors.Is(err, ErrTokenInvalid):
		writeError(w, http.StatusUnauthorized, "invalid token")
	case errors.Is(err, ErrTokenMismatch):
		writeError(w, http.StatusUnauthorized, "refresh token is no longer valid")
	case errors.Is(err, ErrAccountNotFound):
		writeError(w, http.StatusUnauthorized, "account not found")
	case errors.Is(err, ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, ErrStoreUnavailable):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, "service temporarily unavailable")
	default:
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
