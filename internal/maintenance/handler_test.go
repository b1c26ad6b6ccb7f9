package maintenance

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vidtube/internal/observability"
)

type stubCleaner struct {
	sessions    int64
	history     int64
	sessionsErr error
	calls       int
}

func (s *stubCleaner) ExpireStaleSessions(ctx context.Context, batchSize int) (int64, error) {
	s.calls++
	return s.sessions, s.sessionsErr
}

func (s *stubCleaner) PruneWatchHistory(ctx context.Context, retention time.Duration, batchSize int) (int64, error) {
	s.calls++
	return s.history, nil
}

func newTestCleanup(cleaner *stubCleaner, secret string) *CleanupHandler {
	logger := observability.NewLogger("maintenance-test")
	return NewCleanupHandler(cleaner, cleaner, logger, secret, 90*24*time.Hour, 500)
}

func TestCleanupRunsBothPasses(t *testing.T) {
	t.Parallel()

	cleaner := &stubCleaner{sessions: 3, history: 12}
	handler := newTestCleanup(cleaner, "cron-secret")

	r := httptest.NewRequest(http.MethodPost, "/maintenance/cleanup", nil)
	r.Header.Set("Authorization", "Bearer cron-secret")
	w := httptest.NewRecorder()
	handler.Handle(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, cleaner.calls)
	assert.Contains(t, w.Body.String(), `"expired_sessions":3`)
	assert.Contains(t, w.Body.String(), `"pruned_watch_history":12`)
}

func TestCleanupRequiresSecret(t *testing.T) {
	t.Parallel()

	cleaner := &stubCleaner{}
	handler := newTestCleanup(cleaner, "cron-secret")

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong secret", "Bearer not-it"},
		{"wrong scheme", "Basic cron-secret"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/maintenance/cleanup", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			handler.Handle(w, r)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
	assert.Zero(t, cleaner.calls)
}

func TestCleanupHiddenWithoutConfiguredSecret(t *testing.T) {
	t.Parallel()

	handler := newTestCleanup(&stubCleaner{}, "")

	r := httptest.NewRequest(http.MethodPost, "/maintenance/cleanup", nil)
	r.Header.Set("Authorization", "Bearer anything")
	w := httptest.NewRecorder()
	handler.Handle(w, r)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCleanupSessionFailureStopsPass(t *testing.T) {
	t.Parallel()

	cleaner := &stubCleaner{sessionsErr: fmt.Errorf("db down")}
	handler := newTestCleanup(cleaner, "cron-secret")

	r := httptest.NewRequest(http.MethodPost, "/maintenance/cleanup", nil)
	r.Header.Set("Authorization", "Bearer cron-secret")
	w := httptest.NewRecorder()
	handler.Handle(w, r)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, 1, cleaner.calls)
}
