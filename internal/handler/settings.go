package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/nestlinghq/nestling/internal/badge"
	"github.com/nestlinghq/nestling/internal/store"
)

// SettingsHandler exposes the admin-tunable settings: badge workflow knobs
// and media object storage. The change callbacks push updated values into
// the running services, so edits apply without a restart.
type SettingsHandler struct {
	settings      *store.SettingsStore
	onBadgeChange func()
	onS3Change    func()
	logger        *slog.Logger
}

func NewSettingsHandler(settings *store.SettingsStore, onBadgeChange, onS3Change func(), logger *slog.Logger) *SettingsHandler {
	return &SettingsHandler{
		settings:      settings,
		onBadgeChange: onBadgeChange,
		onS3Change:    onS3Change,
		logger:        logger,
	}
}

func (h *SettingsHandler) GetBadge(w http.ResponseWriter, r *http.Request) {
	settings, err := h.settings.GetBadgeSettings()
	if err != nil {
		h.logger.Error("get badge settings", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get settings")
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (h *SettingsHandler) UpdateBadge(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DailyLimit  *int    `json:"daily_limit"`
		RateScope   *string `json:"rate_scope"`
		TrustedUIDs *string `json:"trusted_uids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if req.DailyLimit != nil {
		if *req.DailyLimit < 1 {
			writeError(w, http.StatusBadRequest, "daily_limit must be at least 1")
			return
		}
		if err := h.settings.Set("badge_daily_limit", strconv.Itoa(*req.DailyLimit)); err != nil {
			h.logger.Error("set setting", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to update settings")
			return
		}
	}
	if req.RateScope != nil {
		scope := badge.RateScope(*req.RateScope)
		if scope != badge.RateScopeSubmitter && scope != badge.RateScopePerBaby {
			writeError(w, http.StatusBadRequest, "rate_scope must be submitter or per-baby")
			return
		}
		if err := h.settings.Set("badge_rate_scope", string(scope)); err != nil {
			h.logger.Error("set setting", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to update settings")
			return
		}
	}
	if req.TrustedUIDs != nil {
		if err := h.settings.Set("badge_trusted_uids", *req.TrustedUIDs); err != nil {
			h.logger.Error("set setting", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to update settings")
			return
		}
	}
	if h.onBadgeChange != nil {
		h.onBadgeChange()
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SettingsHandler) GetS3(w http.ResponseWriter, r *http.Request) {
	settings, err := h.settings.GetMediaSettings()
	if err != nil {
		h.logger.Error("get media settings", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get settings")
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (h *SettingsHandler) UpdateS3(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Endpoint string `json:"endpoint"`
		Bucket   string `json:"bucket"`
		Region   string `json:"region"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	for key, value := range map[string]string{
		"media_s3_endpoint": req.Endpoint,
		"media_s3_bucket":   req.Bucket,
		"media_s3_region":   req.Region,
	} {
		if err := h.settings.Set(key, value); err != nil {
			h.logger.Error("set setting", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to update settings")
			return
		}
	}
	if h.onS3Change != nil {
		h.onS3Change()
	}
	w.WriteHeader(http.StatusNoContent)
}
