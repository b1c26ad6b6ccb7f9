package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// memStore is an in-memory IdentityStore with the same atomicity guarantees
// the contract demands from the real one.
type memStore struct {
	mu    sync.Mutex
	users map[string]*Identity
	err   error
}

func newMemStore() *memStore {
	return &memStore{users: make(map[string]*Identity)}
}

func (m *memStore) add(identity Identity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[identity.ID] = &identity
}

func (m *memStore) remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, id)
}

func (m *memStore) storedRefresh(id string) *string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		return u.RefreshToken
	}
	return nil
}

func (m *memStore) FindByIdentifier(ctx context.Context, usernameOrEmail string) (Identity, error) {
	if m.err != nil {
		return Identity{}, m.err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == usernameOrEmail || u.Email == usernameOrEmail {
			return *u, nil
		}
	}
	return Identity{}, ErrAccountNotFound
}

func (m *memStore) FindByID(ctx context.Context, id string) (Identity, error) {
	if m.err != nil {
		return Identity{}, m.err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		return *u, nil
	}
	return Identity{}, ErrAccountNotFound
}

func (m *memStore) SetRefreshToken(ctx context.Context, id, value string, expiresAt time.Time) error {
	if m.err != nil {
		return m.err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrAccountNotFound
	}
	u.RefreshToken = &value
	u.RefreshExpiresAt = &expiresAt
	return nil
}

func (m *memStore) CompareAndSwapRefreshToken(ctx context.Context, id, expectedOld, newValue string, expiresAt time.Time) (bool, error) {
	if m.err != nil {
		return false, m.err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return false, nil
	}
	if u.RefreshToken == nil || *u.RefreshToken != expectedOld {
		return false, nil
	}
	u.RefreshToken = &newValue
	u.RefreshExpiresAt = &expiresAt
	return true, nil
}

func (m *memStore) ClearRefreshToken(ctx context.Context, id string) error {
	if m.err != nil {
		return m.err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		u.RefreshToken = nil
		u.RefreshExpiresAt = nil
	}
	return nil
}

func newTestCodec() *Codec {
	return NewCodec(CodecConfig{
		AccessSecret:  "access-secret-for-tests",
		RefreshSecret: "refresh-secret-for-tests",
		AccessTTL:     5 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
	})
}

const alicePassword = "correct-horse-battery"

func newAlice(t *testing.T) Identity {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(alicePassword), bcrypt.MinCost)
	require.NoError(t, err)

	now := time.Now().UTC()
	return Identity{
		ID:           "0191c2a8-0000-7000-8000-000000000001",
		Username:     "alice",
		Email:        "alice@example.com",
		FullName:     "Alice Example",
		AvatarURL:    "https://cdn.example.com/alice.png",
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func newTestService(t *testing.T) (*Service, *memStore, *Codec) {
	t.Helper()

	store := newMemStore()
	codec := newTestCodec()
	return NewService(store, codec, NewIssuer(codec)), store, codec
}
