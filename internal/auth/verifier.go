package auth

import (
	"context"
	"net/http"
	"strings"
)

const (
	AccessCookieName  = "access_token"
	RefreshCookieName = "refresh_token"
)

// Verifier resolves a presented access token to an identity. Access tokens are
// stateless: validity is signature + expiry, plus a store lookup to handle
// accounts deleted after issuance.
type Verifier struct {
	store IdentityStore
	codec *Codec
}

func NewVerifier(store IdentityStore, codec *Codec) *Verifier {
	return &Verifier{store: store, codec: codec}
}

func (v *Verifier) Verify(ctx context.Context, rawAccessToken string) (User, error) {
	claims, err := v.codec.Verify(rawAccessToken, ClassAccess)
	if err != nil {
		return User{}, err
	}

	identity, err := v.store.FindByID(ctx, claims.Subject)
	if err != nil {
		return User{}, err
	}

	return identity.Public(), nil
}

// VerifyRequest extracts the access token from the cookie or the Authorization
// header and verifies it.
func (v *Verifier) VerifyRequest(r *http.Request) (User, error) {
	raw, err := AccessTokenFromRequest(r)
	if err != nil {
		return User{}, err
	}
	return v.Verify(r.Context(), raw)
}

// AccessTokenFromRequest prefers the cookie transport and falls back to an
// Authorization: Bearer header.
func AccessTokenFromRequest(r *http.Request) (string, error) {
	if cookie, err := r.Cookie(AccessCookieName); err == nil {
		if value := strings.TrimSpace(cookie.Value); value != "" {
			return value, nil
		}
	}

	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			if value := strings.TrimSpace(parts[1]); value != "" {
				return value, nil
			}
		}
	}

	return "", ErrTokenMissing
}

// RefreshTokenFromRequest prefers the cookie transport and falls back to the
// value parsed from the request body.
func RefreshTokenFromRequest(r *http.Request, bodyValue string) string {
	if cookie, err := r.Cookie(RefreshCookieName); err == nil {
		if value := strings.TrimSpace(cookie.Value); value != "" {
			return value
		}
	}
	return strings.TrimSpace(bodyValue)
}
