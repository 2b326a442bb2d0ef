package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/nestlinghq/nestling/internal/auth"
	"github.com/nestlinghq/nestling/internal/middleware"
	"github.com/nestlinghq/nestling/internal/store"
)

// AuthHandler exchanges an upstream-verified identity for a session cookie.
// Identity verification (password, OAuth, OIDC) happens at the edge; this
// service only maps verified uids to local users.
type AuthHandler struct {
	users    *store.UserStore
	sessions *store.SessionStore
	secure   bool
	logger   *slog.Logger
}

func NewAuthHandler(users *store.UserStore, sessions *store.SessionStore, secure bool, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{users: users, sessions: sessions, secure: secure, logger: logger}
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UID   string `json:"uid"`
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	req.UID = strings.TrimSpace(req.UID)
	req.Email = strings.TrimSpace(req.Email)
	if req.UID == "" || req.Email == "" {
		writeError(w, http.StatusBadRequest, "uid and email are required")
		return
	}

	user, err := h.users.GetByUID(req.UID)
	if err != nil {
		h.logger.Error("get user", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if user == nil {
		user, err = h.users.Create(req.UID, req.Email, req.Name)
		if err != nil {
			h.logger.Error("create user", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
	}

	sess, err := h.sessions.Create(user.ID)
	if err != nil {
		h.logger.Error("create session", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    sess.Token,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  sess.ExpiresAt,
	})
	writeJSON(w, http.StatusOK, user)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if ac, ok := auth.FromContext(r.Context()); ok {
		if err := h.sessions.Delete(ac.SessionID); err != nil {
			h.logger.Error("delete session", "error", err)
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.GetByID(auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("get user", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if user == nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, user)
}
