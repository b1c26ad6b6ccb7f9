package maintenance

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"vidtube/internal/observability"
)

// Sessions expires refresh credentials whose retention window has passed.
type Sessions interface {
	ExpireStaleSessions(ctx context.Context, batchSize int) (int64, error)
}

// History prunes old watch-history rows.
type History interface {
	PruneWatchHistory(ctx context.Context, retention time.Duration, batchSize int) (int64, error)
}

type CleanupHandler struct {
	sessions         Sessions
	history          History
	logger           *observability.Logger
	cronSecret       string
	historyRetention time.Duration
	batchSize        int
}

func NewCleanupHandler(
	sessions Sessions,
	history History,
	logger *observability.Logger,
	cronSecret string,
	historyRetention time.Duration,
	batchSize int,
) *CleanupHandler {
	return &CleanupHandler{
		sessions:         sessions,
		history:          history,
		logger:           logger,
		cronSecret:       strings.TrimSpace(cronSecret),
		historyRetention: historyRetention,
		batchSize:        batchSize,
	}
}

// Handle runs the cleanup pass. The endpoint is hidden unless a cron secret is
// configured and presented as a bearer token.
func (h *CleanupHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.cronSecret == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	header := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) != h.cronSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	expiredSessions, err := h.sessions.ExpireStaleSessions(r.Context(), h.batchSize)
	if err != nil {
		h.logger.Error("session_cleanup_failed", map[string]any{"error": err.Error()})
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "cleanup failed"})
		return
	}

	prunedHistory, err := h.history.PruneWatchHistory(r.Context(), h.historyRetention, h.batchSize)
	if err != nil {
		h.logger.Error("history_cleanup_failed", map[string]any{"error": err.Error()})
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "cleanup failed"})
		return
	}

	h.logger.Info("cleanup_completed", map[string]any{
		"expired_sessions":     expiredSessions,
		"pruned_watch_history": prunedHistory,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"status":               "ok",
		"expired_sessions":     expiredSessions,
		"pruned_watch_history": prunedHistory,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
