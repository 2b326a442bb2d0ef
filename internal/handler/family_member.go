package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/nestlinghq/nestling/internal/auth"
	"github.com/nestlinghq/nestling/internal/family"
	"github.com/nestlinghq/nestling/internal/model"
	"github.com/nestlinghq/nestling/internal/push"
	ws "github.com/nestlinghq/nestling/internal/websocket"
)

type FamilyMemberHandler struct {
	families *family.Service
	hub      *ws.Hub
	notifier *push.Notifier
	logger   *slog.Logger
}

func NewFamilyMemberHandler(families *family.Service, hub *ws.Hub, notifier *push.Notifier, logger *slog.Logger) *FamilyMemberHandler {
	return &FamilyMemberHandler{families: families, hub: hub, notifier: notifier, logger: logger}
}

func (h *FamilyMemberHandler) List(w http.ResponseWriter, r *http.Request) {
	babyID, err := parseIDParam(r, "baby_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid baby id")
		return
	}

	members, err := h.families.ListMembers(auth.UserID(r.Context()), babyID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if members == nil {
		members = []model.FamilyMember{}
	}
	writeJSON(w, http.StatusOK, members)
}

// Permissions returns a member's effective capability set, defaults resolved.
func (h *FamilyMemberHandler) Permissions(w http.ResponseWriter, r *http.Request) {
	babyID, err := parseIDParam(r, "baby_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid baby id")
		return
	}
	userID, err := parseIDParam(r, "user_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	// The actor must belong to the family to inspect anyone's permissions.
	if _, err := h.families.Member(babyID, auth.UserID(r.Context())); err != nil {
		writeServiceError(w, family.ErrPermissionDenied)
		return
	}

	member, err := h.families.Member(babyID, userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":     member.UserID,
		"relation":    member.Relation,
		"is_primary":  member.IsPrimary,
		"explicit":    len(member.Permissions) > 0,
		"permissions": family.Effective(member),
	})
}

func (h *FamilyMemberHandler) Add(w http.ResponseWriter, r *http.Request) {
	babyID, err := parseIDParam(r, "baby_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid baby id")
		return
	}

	var req struct {
		UserID      int64              `json:"user_id"`
		Relation    string             `json:"relation"`
		DisplayName string             `json:"display_name"`
		IsPrimary   bool               `json:"is_primary"`
		Permissions []model.Permission `json:"permissions"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	actorID := auth.UserID(r.Context())
	member, err := h.families.AddMember(actorID, babyID, req.UserID, model.Relation(req.Relation), req.DisplayName, req.IsPrimary, req.Permissions)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	h.broadcast(babyID, ws.NewMessage("family_member", "added", member.ID, map[string]any{"baby_id": babyID}))
	h.notifier.NotifyFamilyChanged(req.UserID, babyID, "You were added to a family")
	writeJSON(w, http.StatusCreated, member)
}

func (h *FamilyMemberHandler) Update(w http.ResponseWriter, r *http.Request) {
	babyID, err := parseIDParam(r, "baby_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid baby id")
		return
	}
	userID, err := parseIDParam(r, "user_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	// Pointer fields distinguish omitted from explicitly set, and a present
	// but null permissions field means "reset to relation defaults".
	var req struct {
		Relation    *model.Relation     `json:"relation"`
		DisplayName *string             `json:"display_name"`
		IsPrimary   *bool               `json:"is_primary"`
		Permissions *[]model.Permission `json:"permissions"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	member, err := h.families.UpdateMember(auth.UserID(r.Context()), babyID, userID, family.UpdateMemberParams{
		Relation:    req.Relation,
		DisplayName: req.DisplayName,
		IsPrimary:   req.IsPrimary,
		Permissions: req.Permissions,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	h.broadcast(babyID, ws.NewMessage("family_member", "updated", member.ID, map[string]any{"baby_id": babyID}))
	writeJSON(w, http.StatusOK, member)
}

func (h *FamilyMemberHandler) Remove(w http.ResponseWriter, r *http.Request) {
	babyID, err := parseIDParam(r, "baby_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid baby id")
		return
	}
	userID, err := parseIDParam(r, "user_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	if err := h.families.RemoveMember(auth.UserID(r.Context()), babyID, userID); err != nil {
		writeServiceError(w, err)
		return
	}

	h.broadcast(babyID, ws.NewMessage("family_member", "removed", userID, map[string]any{"baby_id": babyID}))
	h.notifier.NotifyFamilyChanged(userID, babyID, "You were removed from a family")
	w.WriteHeader(http.StatusNoContent)
}

func (h *FamilyMemberHandler) broadcast(babyID int64, msg ws.Message) {
	ids, err := h.families.MemberUserIDs(babyID)
	if err != nil {
		h.logger.Error("list member ids", "error", err)
		return
	}
	h.hub.SendToUsers(ids, msg)
}
