package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/nestlinghq/nestling/internal/auth"
	"github.com/nestlinghq/nestling/internal/email"
	"github.com/nestlinghq/nestling/internal/family"
	"github.com/nestlinghq/nestling/internal/model"
	"github.com/nestlinghq/nestling/internal/push"
	"github.com/nestlinghq/nestling/internal/store"
)

type InvitationHandler struct {
	invitations *store.InvitationStore
	users       *store.UserStore
	babies      *store.BabyStore
	families    *family.Service
	mailer      *email.Client
	notifier    *push.Notifier
	logger      *slog.Logger
}

func NewInvitationHandler(invitations *store.InvitationStore, users *store.UserStore, babies *store.BabyStore, families *family.Service, mailer *email.Client, notifier *push.Notifier, logger *slog.Logger) *InvitationHandler {
	return &InvitationHandler{
		invitations: invitations,
		users:       users,
		babies:      babies,
		families:    families,
		mailer:      mailer,
		notifier:    notifier,
		logger:      logger,
	}
}

// Create issues an invitation code for an email address. The actor must hold
// manage-family for the baby.
func (h *InvitationHandler) Create(w http.ResponseWriter, r *http.Request) {
	babyID, err := parseIDParam(r, "baby_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid baby id")
		return
	}

	var req struct {
		Email       string             `json:"email"`
		Relation    string             `json:"relation"`
		Permissions []model.Permission `json:"permissions"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		writeError(w, http.StatusBadRequest, "a valid email is required")
		return
	}
	relation := model.Relation(req.Relation)
	if !relation.Valid() {
		writeError(w, http.StatusBadRequest, "unknown relation type")
		return
	}

	actorID := auth.UserID(r.Context())
	actor, err := h.families.Member(babyID, actorID)
	if err != nil {
		writeServiceError(w, family.ErrPermissionDenied)
		return
	}
	if !family.CanPerform(actor, model.PermManageFamily) {
		writeServiceError(w, family.ErrPermissionDenied)
		return
	}

	inv, code, err := h.invitations.Create(req.Email, babyID, relation, req.Permissions, actorID)
	if err != nil {
		h.logger.Error("create invitation", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create invitation")
		return
	}

	if h.mailer.Configured() {
		inviter, _ := h.users.GetByID(actorID)
		baby, _ := h.babies.GetByID(babyID)
		inviterName, babyName := "A caregiver", "a baby"
		if inviter != nil {
			inviterName = inviter.Name
		}
		if baby != nil {
			babyName = baby.Name
		}
		if err := h.mailer.SendInviteCode(req.Email, inviterName, babyName, code); err != nil {
			h.logger.Error("send invitation email", "error", err)
		}
	}

	writeJSON(w, http.StatusCreated, inv)
}

// Accept redeems an invitation code for the authenticated user. A wrong code
// burns one of the invitation's five attempts.
func (h *InvitationHandler) Accept(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	user, err := h.users.GetByID(auth.UserID(r.Context()))
	if err != nil || user == nil {
		writeError(w, http.StatusInternalServerError, "failed to load user")
		return
	}

	inv, err := h.invitations.Redeem(user.Email, strings.TrimSpace(req.Code))
	if err != nil {
		h.logger.Error("redeem invitation", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to redeem invitation")
		return
	}
	if inv == nil {
		writeError(w, http.StatusForbidden, "invalid or expired invitation code")
		return
	}

	member, err := h.families.Enroll(inv.BabyID, user.ID, inv.Relation, inv.Permissions, inv.InvitedBy)
	if err != nil {
		h.logger.Error("enroll member", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to join family")
		return
	}

	if inv.InvitedBy != nil {
		h.notifier.NotifyInviteAccepted(*inv.InvitedBy, inv.BabyID, user.Name)
	}
	writeJSON(w, http.StatusOK, member)
}
