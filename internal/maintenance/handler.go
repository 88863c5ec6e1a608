package maintenance

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"workspace-auth/internal/auth"
	"workspace-auth/internal/observability"
)

type Cleaner interface {
	CleanupStaleAuthData(ctx context.Context, refreshRetention, ipRetention time.Duration, batchSize int) (auth.CleanupResult, error)
}

type CleanupHandler struct {
	cleaner          Cleaner
	logger           *observability.Logger
	cronSecret       string
	refreshRetention time.Duration
	ipRetention      time.Duration
	batchSize        int
}

func NewCleanupHandler(
	cleaner Cleaner,
	logger *observability.Logger,
	cronSecret string,
	refreshRetention time.Duration,
	ipRetention time.Duration,
	batchSize int,
) *CleanupHandler {
	return &CleanupHandler{
		cleaner:          cleaner,
		logger:           logger,
		cronSecret:       strings.TrimSpace(cronSecret),
		refreshRetention: refreshRetention,
		ipRetention:      ipRetention,
		batchSize:        batchSize,
	}
}

// Handle hides itself behind 404 until CRON_SECRET is configured.
func (h *CleanupHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.cronSecret == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) != h.cronSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	result, err := h.cleaner.CleanupStaleAuthData(r.Context(), h.refreshRetention, h.ipRetention, h.batchSize)
	if err != nil {
		h.logger.Error("auth_cleanup_failed", map[string]any{"error": err.Error()})
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "cleanup failed"})
		return
	}

	h.logger.Info("auth_cleanup_completed", map[string]any{
		"deleted_refresh_tokens": result.DeletedRefreshTokens,
		"deleted_ip_limits":      result.DeletedIPLimits,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"result": result,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
