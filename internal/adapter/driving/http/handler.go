// Package httphandler is the HTTP driving adapter serving the local REST API
// consumed by the menubar frontend and the control CLI.
package httphandler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/cmalloy/gitbar/internal/application"
	"github.com/cmalloy/gitbar/internal/domain/port/driven"
)

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	engine *application.Engine
	logger *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(engine *application.Engine, logger *slog.Logger) *Handler {
	return &Handler{
		engine: engine,
		logger: logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with logging and recovery middleware.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/snapshot", h.GetSnapshot)
	mux.HandleFunc("GET /api/v1/prs/muted", h.ListMutedPRs)
	mux.HandleFunc("POST /api/v1/prs/{id}/mute", h.MutePR)
	mux.HandleFunc("POST /api/v1/prs/{id}/unmute", h.UnmutePR)
	mux.HandleFunc("POST /api/v1/notifications/{id}/clear", h.ClearNotification)
	mux.HandleFunc("POST /api/v1/notifications/clear", h.ClearAllNotifications)
	mux.HandleFunc("POST /api/v1/refresh", h.Refresh)
	mux.HandleFunc("PUT /api/v1/settings/{key}", h.UpdateSetting)
	mux.HandleFunc("GET /api/v1/health", h.Health)

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)

	return wrapped
}

// GetSnapshot returns the current view of pull requests and notifications.
// By default the view is filtered by the user's display settings; pass
// ?complete=true for the unfiltered state.
func (h *Handler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	complete := r.URL.Query().Get("complete") == "true"

	snap := h.engine.GetSnapshot(r.Context(), complete)

	writeJSON(w, http.StatusOK, toSnapshotResponse(snap))
}

// ListMutedPRs returns all muted pull requests regardless of display filters.
func (h *Handler) ListMutedPRs(w http.ResponseWriter, r *http.Request) {
	muted := h.engine.MutedPullRequests()

	resp := make([]PRResponse, 0, len(muted))
	for _, pr := range muted {
		resp = append(resp, toPRResponse(pr, false, false))
	}

	writeJSON(w, http.StatusOK, resp)
}

// MutePR marks a pull request muted.
func (h *Handler) MutePR(w http.ResponseWriter, r *http.Request) {
	h.setMuted(w, r, true)
}

// UnmutePR removes the muted mark from a pull request.
func (h *Handler) UnmutePR(w http.ResponseWriter, r *http.Request) {
	h.setMuted(w, r, false)
}

func (h *Handler) setMuted(w http.ResponseWriter, r *http.Request, muted bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid pull request id")
		return
	}

	if muted {
		err = h.engine.Mute(r.Context(), id)
	} else {
		err = h.engine.Unmute(r.Context(), id)
	}

	if err != nil {
		if errors.Is(err, driven.ErrNotFound) {
			writeError(w, http.StatusNotFound, "pull request not found")
			return
		}
		h.logger.Error("failed to update mute state", "id", id, "muted", muted, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ClearNotification marks a single notification cleared.
func (h *Handler) ClearNotification(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid notification id")
		return
	}

	if err := h.engine.ClearNotification(r.Context(), id); err != nil {
		if errors.Is(err, driven.ErrNotFound) {
			writeError(w, http.StatusNotFound, "notification not found")
			return
		}
		h.logger.Error("failed to clear notification", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ClearAllNotifications marks every notification cleared.
func (h *Handler) ClearAllNotifications(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.ClearAllNotifications(r.Context()); err != nil {
		h.logger.Error("failed to clear notifications", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Refresh runs a full refresh cycle synchronously. Returns 409 when a cycle
// is already in flight.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Refresh(r.Context()); err != nil {
		if errors.Is(err, application.ErrRefreshInProgress) {
			writeError(w, http.StatusConflict, "refresh already in progress")
			return
		}
		h.logger.Error("manual refresh failed", "error", err)
		writeError(w, http.StatusInternalServerError, "refresh failed")
		return
	}

	writeJSON(w, http.StatusOK, RefreshResponse{
		LastRefresh: formatTime(h.engine.LastRefresh()),
	})
}

// UpdateSetting sets a named display or notification setting.
func (h *Handler) UpdateSetting(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	var req SettingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.engine.UpdateSetting(r.Context(), key, req.Value); err != nil {
		if errors.Is(err, application.ErrUnknownSetting) || errors.Is(err, application.ErrInvalidSettingValue) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("failed to update setting", "key", key, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Health returns the daemon's health along with the remote API quota.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:      "ok",
		LastRefresh: formatTime(h.engine.LastRefresh()),
		Time:        time.Now().UTC().Format(time.RFC3339),
	}
	if rl, err := h.engine.RateLimit(r.Context()); err != nil {
		h.logger.Warn("failed to fetch rate limit", "error", err)
	} else {
		resp.RateLimit = &RateLimitResponse{
			Limit:     rl.Limit,
			Remaining: rl.Remaining,
			Reset:     formatTime(rl.Reset),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
