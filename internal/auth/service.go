package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// IdentityStore is the persistence boundary for identities and their single
// active refresh credential. CompareAndSwapRefreshToken must be truly atomic
// (a single conditional write), not check-then-write; it is the only
// synchronization point for the contended credential field. Absence of a
// session is a distinct state, never an empty string.
type IdentityStore interface {
	FindByIdentifier(ctx context.Context, usernameOrEmail string) (Identity, error)
	FindByID(ctx context.Context, id string) (Identity, error)
	SetRefreshToken(ctx context.Context, id, value string, expiresAt time.Time) error
	CompareAndSwapRefreshToken(ctx context.Context, id, expectedOld, newValue string, expiresAt time.Time) (bool, error)
	ClearRefreshToken(ctx context.Context, id string) error
}

// dummyHash keeps the unknown-identifier path as expensive as a real bcrypt
// comparison so login latency does not reveal whether the identifier exists.
var dummyHash = []byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy")

type Service struct {
	store  IdentityStore
	codec  *Codec
	issuer *Issuer
}

func NewService(store IdentityStore, codec *Codec, issuer *Issuer) *Service {
	return &Service{store: store, codec: codec, issuer: issuer}
}

// Login verifies the password and issues a fresh token pair, overwriting any
// previously stored refresh credential. Unknown identifier and wrong password
// are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, identifier, password string) (User, TokenPair, error) {
	identifier = strings.TrimSpace(strings.ToLower(identifier))
	password = strings.TrimSpace(password)
	if identifier == "" || password == "" {
		return User{}, TokenPair{}, ErrInvalidCredentials
	}

	identity, err := s.store.FindByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			return User{}, TokenPair{}, ErrInvalidCredentials
		}
		return User{}, TokenPair{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(identity.PasswordHash), []byte(password)); err != nil {
		return User{}, TokenPair{}, ErrInvalidCredentials
	}

	pair, err := s.issuer.Issue(identity)
	if err != nil {
		return User{}, TokenPair{}, err
	}

	expiresAt := time.Now().UTC().Add(s.codec.TTL(ClassRefresh))
	if err := s.store.SetRefreshToken(ctx, identity.ID, pair.RefreshToken, expiresAt); err != nil {
		return User{}, TokenPair{}, err
	}

	return identity.Public(), pair, nil
}

// Rotate exchanges a currently-valid refresh token for a new pair. The
// presented token must match the stored value exactly, and the store write is
// conditioned on that same value still being current: of two concurrent
// rotations, exactly one wins and the loser gets ErrTokenMismatch, the same
// rejection a replayed or revoked token gets.
func (s *Service) Rotate(ctx context.Context, presented string) (TokenPair, error) {
	presented = strings.TrimSpace(presented)
	if presented == "" {
		return TokenPair{}, ErrTokenMissing
	}

	claims, err := s.codec.Verify(presented, ClassRefresh)
	if err != nil {
		return TokenPair{}, err
	}

	identity, err := s.store.FindByID(ctx, claims.Subject)
	if err != nil {
		return TokenPair{}, err
	}

	if identity.RefreshToken == nil ||
		subtle.ConstantTimeCompare([]byte(*identity.RefreshToken), []byte(presented)) != 1 {
		return TokenPair{}, ErrTokenMismatch
	}

	pair, err := s.issuer.Issue(identity)
	if err != nil {
		return TokenPair{}, err
	}

	expiresAt := time.Now().UTC().Add(s.codec.TTL(ClassRefresh))
	swapped, err := s.store.CompareAndSwapRefreshToken(ctx, identity.ID, presented, pair.RefreshToken, expiresAt)
	if err != nil {
		return TokenPair{}, err
	}
	if !swapped {
		return TokenPair{}, ErrTokenMismatch
	}

	return pair, nil
}

// Revoke ends the session server-side by clearing the stored refresh
// credential. Revoking an already-revoked identity is a no-op success.
func (s *Service) Revoke(ctx context.Context, identityID string) error {
	return s.store.ClearRefreshToken(ctx, identityID)
}

// CheckPassword compares a presented plaintext against a stored bcrypt hash.
// bcrypt's comparison does not short-circuit on the first mismatching byte.
func CheckPassword(hash, plain string) error {
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) != nil {
		return ErrInvalidCredentials
	}
	return nil
}
