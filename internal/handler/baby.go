package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/nestlinghq/nestling/internal/auth"
	"github.com/nestlinghq/nestling/internal/family"
	"github.com/nestlinghq/nestling/internal/model"
	"github.com/nestlinghq/nestling/internal/store"
	ws "github.com/nestlinghq/nestling/internal/websocket"
)

type BabyHandler struct {
	babies   *store.BabyStore
	families *family.Service
	hub      *ws.Hub
	logger   *slog.Logger
}

func NewBabyHandler(babies *store.BabyStore, families *family.Service, hub *ws.Hub, logger *slog.Logger) *BabyHandler {
	return &BabyHandler{babies: babies, families: families, hub: hub, logger: logger}
}

// parseDate accepts a YYYY-MM-DD date string, returning nil for empty input.
func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (h *BabyHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name      string `json:"name"`
		BirthDate string `json:"birth_date"`
		DueDate   string `json:"due_date"`
		Gender    string `json:"gender"`
		Relation  string `json:"relation"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	birthDate, err := parseDate(req.BirthDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "birth_date must be YYYY-MM-DD")
		return
	}
	dueDate, err := parseDate(req.DueDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "due_date must be YYYY-MM-DD")
		return
	}

	baby, err := h.families.CreateBaby(auth.UserID(r.Context()), req.Name, birthDate, dueDate, req.Gender, model.Relation(req.Relation))
	if err != nil {
		h.logError("create baby", err)
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, baby)
}

func (h *BabyHandler) List(w http.ResponseWriter, r *http.Request) {
	babies, err := h.babies.ListForUser(auth.UserID(r.Context()))
	if err != nil {
		h.logError("list babies", err)
		writeError(w, http.StatusInternalServerError, "failed to list babies")
		return
	}
	if babies == nil {
		babies = []model.Baby{}
	}
	writeJSON(w, http.StatusOK, babies)
}

func (h *BabyHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	if _, err := h.families.Member(id, auth.UserID(r.Context())); err != nil {
		writeServiceError(w, family.ErrNotFound)
		return
	}

	baby, err := h.babies.GetByID(id)
	if err != nil {
		h.logError("get baby", err)
		writeError(w, http.StatusInternalServerError, "failed to get baby")
		return
	}
	if baby == nil {
		writeError(w, http.StatusNotFound, "baby not found")
		return
	}
	writeJSON(w, http.StatusOK, baby)
}

func (h *BabyHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	if err := h.requirePermission(r, id, model.PermEdit); err != nil {
		writeServiceError(w, err)
		return
	}

	existing, err := h.babies.GetByID(id)
	if err != nil || existing == nil {
		writeError(w, http.StatusNotFound, "baby not found")
		return
	}

	var req struct {
		Name      string `json:"name"`
		BirthDate string `json:"birth_date"`
		DueDate   string `json:"due_date"`
		Gender    string `json:"gender"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		req.Name = existing.Name
	}
	birthDate, err := parseDate(req.BirthDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "birth_date must be YYYY-MM-DD")
		return
	}
	if birthDate == nil {
		birthDate = existing.BirthDate
	}
	dueDate, err := parseDate(req.DueDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "due_date must be YYYY-MM-DD")
		return
	}
	if dueDate == nil {
		dueDate = existing.DueDate
	}
	if req.Gender == "" {
		req.Gender = existing.Gender
	}

	baby, err := h.babies.Update(id, req.Name, birthDate, dueDate, req.Gender)
	if err != nil {
		h.logError("update baby", err)
		writeError(w, http.StatusInternalServerError, "failed to update baby")
		return
	}

	h.notifyFamily(id, ws.NewMessage("baby", "updated", id, nil))
	writeJSON(w, http.StatusOK, baby)
}

func (h *BabyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	if err := h.requirePermission(r, id, model.PermDelete); err != nil {
		writeServiceError(w, err)
		return
	}

	h.notifyFamily(id, ws.NewMessage("baby", "deleted", id, nil))
	if err := h.babies.Delete(id); err != nil {
		h.logError("delete baby", err)
		writeError(w, http.StatusInternalServerError, "failed to delete baby")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *BabyHandler) requirePermission(r *http.Request, babyID int64, perm model.Permission) error {
	member, err := h.families.Member(babyID, auth.UserID(r.Context()))
	if err != nil {
		return err
	}
	if !family.CanPerform(member, perm) {
		return family.ErrPermissionDenied
	}
	return nil
}

// notifyFamily pushes a realtime message to every member of the baby's family.
func (h *BabyHandler) notifyFamily(babyID int64, msg ws.Message) {
	members, err := h.families.MemberUserIDs(babyID)
	if err != nil {
		h.logError("list member ids", err)
		return
	}
	h.hub.SendToUsers(members, msg)
}

func (h *BabyHandler) logError(msg string, err error) {
	h.logger.Error(msg, "error", err)
}
