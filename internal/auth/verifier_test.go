package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyDeletedAccount(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	codec := newTestCodec()
	verifier := NewVerifier(store, codec)

	alice := newAlice(t)
	store.add(alice)

	pair, err := NewIssuer(codec).Issue(alice)
	require.NoError(t, err)

	store.remove(alice.ID)

	_, err = verifier.Verify(context.Background(), pair.AccessToken)
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestVerifyReturnsSanitizedView(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	codec := newTestCodec()
	verifier := NewVerifier(store, codec)

	alice := newAlice(t)
	refresh := "stored-refresh-value"
	alice.RefreshToken = &refresh
	store.add(alice)

	pair, err := NewIssuer(codec).Issue(alice)
	require.NoError(t, err)

	user, err := verifier.Verify(context.Background(), pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, user.ID)
	assert.Equal(t, alice.Username, user.Username)
	assert.Equal(t, alice.Email, user.Email)
	assert.Equal(t, alice.FullName, user.FullName)
}

func TestAccessTokenFromRequest(t *testing.T) {
	t.Parallel()

	t.Run("cookie", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.AddCookie(&http.Cookie{Name: AccessCookieName, Value: "from-cookie"})

		raw, err := AccessTokenFromRequest(r)
		require.NoError(t, err)
		assert.Equal(t, "from-cookie", raw)
	})

	t.Run("bearer header", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", "Bearer from-header")

		raw, err := AccessTokenFromRequest(r)
		require.NoError(t, err)
		assert.Equal(t, "from-header", raw)
	})

	t.Run("cookie wins over header", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.AddCookie(&http.Cookie{Name: AccessCookieName, Value: "from-cookie"})
		r.Header.Set("Authorization", "Bearer from-header")

		raw, err := AccessTokenFromRequest(r)
		require.NoError(t, err)
		assert.Equal(t, "from-cookie", raw)
	})

	t.Run("absent from both", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)

		_, err := AccessTokenFromRequest(r)
		assert.ErrorIs(t, err, ErrTokenMissing)
	})

	t.Run("malformed header scheme", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")

		_, err := AccessTokenFromRequest(r)
		assert.ErrorIs(t, err, ErrTokenMissing)
	})
}

func TestRefreshTokenFromRequest(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodPost, "/", nil)
	r.AddCookie(&http.Cookie{Name: RefreshCookieName, Value: "from-cookie"})
	assert.Equal(t, "from-cookie", RefreshTokenFromRequest(r, "from-body"))

	r = httptest.NewRequest(http.MethodPost, "/", nil)
	assert.Equal(t, "from-body", RefreshTokenFromRequest(r, "from-body"))

	r = httptest.NewRequest(http.MethodPost, "/", nil)
	assert.Empty(t, RefreshTokenFromRequest(r, "  "))
}
