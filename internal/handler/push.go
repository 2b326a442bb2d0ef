package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/nestlinghq/nestling/internal/auth"
	"github.com/nestlinghq/nestling/internal/model"
	"github.com/nestlinghq/nestling/internal/push"
	"github.com/nestlinghq/nestling/internal/store"
)

var notificationTypes = []string{
	model.NotifTypeBadgeVerified,
	model.NotifTypeBadgePending,
	model.NotifTypeInviteAccepted,
	model.NotifTypeFamilyChanged,
}

type PushHandler struct {
	push    *store.PushStore
	service *push.Service
	logger  *slog.Logger
}

func NewPushHandler(pushStore *store.PushStore, service *push.Service, logger *slog.Logger) *PushHandler {
	return &PushHandler{push: pushStore, service: service, logger: logger}
}

func (h *PushHandler) GetVAPIDKey(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"key": h.service.VAPIDPublicKey()})
}

func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Endpoint   string `json:"endpoint"`
		P256dhKey  string `json:"p256dh_key"`
		AuthKey    string `json:"auth_key"`
		DeviceName string `json:"device_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Endpoint == "" || req.P256dhKey == "" || req.AuthKey == "" {
		writeError(w, http.StatusBadRequest, "endpoint, p256dh_key, and auth_key are required")
		return
	}

	sub, err := h.push.Subscribe(auth.UserID(r.Context()), req.Endpoint, req.P256dhKey, req.AuthKey, req.DeviceName)
	if err != nil {
		h.logger.Error("subscribe", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to subscribe")
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

func (h *PushHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	subs, err := h.push.ListByUser(auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("list subscriptions", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list subscriptions")
		return
	}
	for _, sub := range subs {
		if sub.ID == id {
			if err := h.push.Delete(id); err != nil {
				h.logger.Error("delete subscription", "error", err)
				writeError(w, http.StatusInternalServerError, "failed to unsubscribe")
				return
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	writeError(w, http.StatusNotFound, "subscription not found")
}

func (h *PushHandler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := h.push.ListByUser(auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("list subscriptions", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list subscriptions")
		return
	}
	if subs == nil {
		subs = []model.PushSubscription{}
	}
	writeJSON(w, http.StatusOK, subs)
}

// GetPreferences returns every notification type with its enabled state.
// Types without a stored row default to enabled.
func (h *PushHandler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	stored, err := h.push.ListPreferences(userID)
	if err != nil {
		h.logger.Error("list preferences", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list preferences")
		return
	}

	byType := make(map[string]bool, len(stored))
	for _, p := range stored {
		byType[p.NotificationType] = p.Enabled
	}

	prefs := make(map[string]bool, len(notificationTypes))
	for _, nt := range notificationTypes {
		enabled, ok := byType[nt]
		if !ok {
			enabled = true
		}
		prefs[nt] = enabled
	}
	writeJSON(w, http.StatusOK, prefs)
}

func (h *PushHandler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	var req map[string]bool
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	userID := auth.UserID(r.Context())
	for _, nt := range notificationTypes {
		enabled, ok := req[nt]
		if !ok {
			continue
		}
		if err := h.push.SetPreference(userID, nt, enabled); err != nil {
			h.logger.Error("set preference", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to update preferences")
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// TestNotification sends a test push to all of the user's devices.
func (h *PushHandler) TestNotification(w http.ResponseWriter, r *http.Request) {
	subs, err := h.push.ListByUser(auth.UserID(r.Context()))
	if err != nil || len(subs) == 0 {
		writeError(w, http.StatusBadRequest, "no push subscriptions registered")
		return
	}

	payload := push.Payload{Title: "Nestling", Body: "Push notifications are working.", Tag: "test"}
	sent := 0
	for _, sub := range subs {
		if err := h.service.Send(&sub, payload); err != nil {
			h.logger.Error("send test push", "error", err)
			continue
		}
		sent++
	}
	writeJSON(w, http.StatusOK, map[string]int{"sent": sent})
}
