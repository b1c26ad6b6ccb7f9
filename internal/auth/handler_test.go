package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(t *testing.T) (*Handler, *Verifier, *memStore) {
	t.Helper()

	store := newMemStore()
	codec := newTestCodec()
	service := NewService(store, codec, NewIssuer(codec))
	return NewHandler(service, codec), NewVerifier(store, codec), store
}

func cookieByName(t *testing.T, res *http.Response, name string) *http.Cookie {
	t.Helper()
	for _, cookie := range res.Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	t.Fatalf("cookie %q not set", name)
	return nil
}

func TestLoginHandlerSetsCookiesAndBody(t *testing.T) {
	t.Parallel()

	handler, _, store := newTestHandler(t)
	store.add(newAlice(t))

	r := httptest.NewRequest(http.MethodPost, "/auth/login",
		strings.NewReader(`{"username":"alice","password":"`+alicePassword+`"}`))
	w := httptest.NewRecorder()
	handler.Login(w, r)

	res := w.Result()
	require.Equal(t, http.StatusOK, res.StatusCode)

	access := cookieByName(t, res, AccessCookieName)
	assert.True(t, access.HttpOnly)
	assert.True(t, access.Secure)
	assert.Equal(t, http.SameSiteStrictMode, access.SameSite)
	assert.NotEmpty(t, access.Value)

	refresh := cookieByName(t, res, RefreshCookieName)
	assert.True(t, refresh.HttpOnly)
	assert.NotEmpty(t, refresh.Value)

	var body loginResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	assert.Equal(t, "alice", body.User.Username)
	assert.Equal(t, access.Value, body.AccessToken)
	assert.Equal(t, refresh.Value, body.RefreshToken)
}

func TestLoginHandlerUniformRejection(t *testing.T) {
	t.Parallel()

	handler, _, store := newTestHandler(t)
	store.add(newAlice(t))

	for _, payload := range []string{
		`{"username":"alice","password":"wrong-password"}`,
		`{"username":"mallory","password":"` + alicePassword + `"}`,
	} {
		r := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(payload))
		w := httptest.NewRecorder()
		handler.Login(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "invalid credentials")
	}
}

func TestRefreshHandlerRotatesViaCookie(t *testing.T) {
	t.Parallel()

	handler, _, store := newTestHandler(t)
	store.add(newAlice(t))

	login := httptest.NewRequest(http.MethodPost, "/auth/login",
		strings.NewReader(`{"username":"alice","password":"`+alicePassword+`"}`))
	loginRec := httptest.NewRecorder()
	handler.Login(loginRec, login)
	require.Equal(t, http.StatusOK, loginRec.Code)
	oldRefresh := cookieByName(t, loginRec.Result(), RefreshCookieName)

	refresh := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	refresh.AddCookie(oldRefresh)
	refreshRec := httptest.NewRecorder()
	handler.Refresh(refreshRec, refresh)
	require.Equal(t, http.StatusOK, refreshRec.Code)

	var pair TokenPair
	require.NoError(t, json.NewDecoder(refreshRec.Body).Decode(&pair))
	assert.NotEqual(t, oldRefresh.Value, pair.RefreshToken)

	// replaying the superseded cookie is rejected
	replay := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	replay.AddCookie(oldRefresh)
	replayRec := httptest.NewRecorder()
	handler.Refresh(replayRec, replay)
	assert.Equal(t, http.StatusUnauthorized, replayRec.Code)
	assert.Contains(t, replayRec.Body.String(), "no longer valid")
}

func TestRefreshHandlerBodyFallback(t *testing.T) {
	t.Parallel()

	handler, _, store := newTestHandler(t)
	store.add(newAlice(t))

	login := httptest.NewRequest(http.MethodPost, "/auth/login",
		strings.NewReader(`{"username":"alice","password":"`+alicePassword+`"}`))
	loginRec := httptest.NewRecorder()
	handler.Login(loginRec, login)
	require.Equal(t, http.StatusOK, loginRec.Code)

	var issued loginResponse
	require.NoError(t, json.NewDecoder(loginRec.Body).Decode(&issued))

	refresh := httptest.NewRequest(http.MethodPost, "/auth/refresh",
		strings.NewReader(`{"refresh_token":"`+issued.RefreshToken+`"}`))
	refreshRec := httptest.NewRecorder()
	handler.Refresh(refreshRec, refresh)
	assert.Equal(t, http.StatusOK, refreshRec.Code)
}

func TestRefreshHandlerMissingToken(t *testing.T) {
	t.Parallel()

	handler, _, _ := newTestHandler(t)

	r := httptest.NewRequest(http.MethodPost, "/auth/refresh", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	handler.Refresh(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "missing authorization token")
}

func TestLogoutRevokesSession(t *testing.T) {
	t.Parallel()

	handler, verifier, store := newTestHandler(t)
	alice := newAlice(t)
	store.add(alice)

	login := httptest.NewRequest(http.MethodPost, "/auth/login",
		strings.NewReader(`{"username":"alice","password":"`+alicePassword+`"}`))
	loginRec := httptest.NewRecorder()
	handler.Login(loginRec, login)
	require.Equal(t, http.StatusOK, loginRec.Code)
	res := loginRec.Result()

	logout := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	logout.AddCookie(cookieByName(t, res, AccessCookieName))
	logoutRec := httptest.NewRecorder()
	verifier.Middleware(http.HandlerFunc(handler.Logout)).ServeHTTP(logoutRec, logout)
	require.Equal(t, http.StatusNoContent, logoutRec.Code)

	// cookies cleared
	for _, cookie := range logoutRec.Result().Cookies() {
		assert.Empty(t, cookie.Value)
		assert.Negative(t, cookie.MaxAge)
	}

	assert.Nil(t, store.storedRefresh(alice.ID))

	// the revoked refresh token can no longer be rotated
	rotate := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	rotate.AddCookie(cookieByName(t, res, RefreshCookieName))
	rotateRec := httptest.NewRecorder()
	handler.Refresh(rotateRec, rotate)
	assert.Equal(t, http.StatusUnauthorized, rotateRec.Code)
}

func TestMiddlewarePassesIdentityDownstream(t *testing.T) {
	t.Parallel()

	handler, verifier, store := newTestHandler(t)
	alice := newAlice(t)
	store.add(alice)

	login := httptest.NewRequest(http.MethodPost, "/auth/login",
		strings.NewReader(`{"username":"alice","password":"`+alicePassword+`"}`))
	loginRec := httptest.NewRecorder()
	handler.Login(loginRec, login)
	require.Equal(t, http.StatusOK, loginRec.Code)

	var seen User
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := IdentityFrom(r.Context())
		require.True(t, ok)
		seen = user
	})

	r := httptest.NewRequest(http.MethodGet, "/users/me", nil)
	r.AddCookie(cookieByName(t, loginRec.Result(), AccessCookieName))
	w := httptest.NewRecorder()
	verifier.Middleware(next).ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, alice.ID, seen.ID)
}

func TestMiddlewareRejectsStoreOutageAsRetryable(t *testing.T) {
	t.Parallel()

	handler, verifier, store := newTestHandler(t)
	store.add(newAlice(t))

	login := httptest.NewRequest(http.MethodPost, "/auth/login",
		strings.NewReader(`{"username":"alice","password":"`+alicePassword+`"}`))
	loginRec := httptest.NewRecorder()
	handler.Login(loginRec, login)
	require.Equal(t, http.StatusOK, loginRec.Code)

	store.err = fmt.Errorf("%w: %v", ErrStoreUnavailable, context.DeadlineExceeded)

	r := httptest.NewRequest(http.MethodGet, "/users/me", nil)
	r.AddCookie(cookieByName(t, loginRec.Result(), AccessCookieName))
	w := httptest.NewRecorder()
	verifier.Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).ServeHTTP(w, r)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}
