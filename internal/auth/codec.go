package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Class selects which secret and TTL a token is signed with. Access and refresh
// tokens use distinct secrets so compromising one class does not compromise the
// other.
type Class string

const (
	ClassAccess  Class = "access"
	ClassRefresh Class = "refresh"
)

type Claims struct {
	jwt.RegisteredClaims
	TokenType string `json:"typ"`
	Username  string `json:"username,omitempty"`
	Email     string `json:"email,omitempty"`
	FullName  string `json:"fullname,omitempty"`
}

type CodecConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// Codec signs and verifies both token classes with HS256.
type Codec struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

func NewCodec(cfg CodecConfig) *Codec {
	return &Codec{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
	}
}

func (c *Codec) TTL(class Class) time.Duration {
	if class == ClassRefresh {
		return c.refreshTTL
	}
	return c.accessTTL
}

// Sign stamps the claims with the class, issued-at, expiry and a unique token
// id, then signs them. The token id guarantees two issuances within the same
// second still produce distinct token values.
func (c *Codec) Sign(claims Claims, class Class) (string, error) {
	secret, err := c.secretFor(class)
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	claims.TokenType = string(class)
	claims.ID = uuid.NewString()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(c.TTL(class)))

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", class, err)
	}

	return signed, nil
}

// Verify checks the signature before trusting anything embedded in the token.
// Signature, structural and wrong-class failures all surface as ErrTokenInvalid
// so callers cannot probe which check failed; expiry is reported separately and
// only for tokens that passed the signature check.
func (c *Codec) Verify(raw string, class Class) (Claims, error) {
	secret, err := c.secretFor(class)
	if err != nil {
		return Claims{}, err
	}

	var claims Claims
	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) && !errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, ErrTokenInvalid
	}
	if !token.Valid || claims.TokenType != string(class) || claims.Subject == "" {
		return Claims{}, ErrTokenInvalid
	}

	return claims, nil
}

func (c *Codec) secretFor(class Class) ([]byte, error) {
	switch class {
	case ClassAccess:
		return c.accessSecret, nil
	case ClassRefresh:
		return c.refreshSecret, nil
	default:
		return nil, fmt.Errorf("%w: unknown token class %q", ErrIssuance, class)
	}
}
