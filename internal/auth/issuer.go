package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Issuer produces a fresh (access, refresh) pair for an identity. Persisting
// the refresh value is the caller's job so login and rotation share the same
// persistence step.
type Issuer struct {
	codec *Codec
}

func NewIssuer(codec *Codec) *Issuer {
	return &Issuer{codec: codec}
}

func (i *Issuer) Issue(identity Identity) (TokenPair, error) {
	if identity.ID == "" || identity.Username == "" || identity.Email == "" || identity.FullName == "" {
		return TokenPair{}, fmt.Errorf("%w: identity is missing a required claim field", ErrIssuance)
	}

	access, err := i.codec.Sign(Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: identity.ID},
		Username:         identity.Username,
		Email:            identity.Email,
		FullName:         identity.FullName,
	}, ClassAccess)
	if err != nil {
		return TokenPair{}, fmt.Errorf("%w: %v", ErrIssuance, err)
	}

	// The refresh token carries only the identity id.
	refresh, err := i.codec.Sign(Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: identity.ID},
	}, ClassRefresh)
	if err != nil {
		return TokenPair{}, fmt.Errorf("%w: %v", ErrIssuance, err)
	}

	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(i.codec.TTL(ClassAccess).Seconds()),
	}, nil
}
