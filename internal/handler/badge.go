package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nestlinghq/nestling/internal/auth"
	"github.com/nestlinghq/nestling/internal/badge"
	"github.com/nestlinghq/nestling/internal/family"
	"github.com/nestlinghq/nestling/internal/model"
	"github.com/nestlinghq/nestling/internal/store"
)

type BadgeHandler struct {
	badges      *store.BadgeStore
	collections *badge.Service
	families    *family.Service
	logger      *slog.Logger
}

func NewBadgeHandler(badges *store.BadgeStore, collections *badge.Service, families *family.Service, logger *slog.Logger) *BadgeHandler {
	return &BadgeHandler{badges: badges, collections: collections, families: families, logger: logger}
}

func (h *BadgeHandler) ListBadges(w http.ResponseWriter, r *http.Request) {
	category := model.BadgeCategory(r.URL.Query().Get("category"))
	if category != "" && !category.Valid() {
		writeError(w, http.StatusBadRequest, "unknown category")
		return
	}

	badges, err := h.badges.ListActive(category)
	if err != nil {
		h.logger.Error("list badges", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list badges")
		return
	}
	if badges == nil {
		badges = []model.Badge{}
	}
	writeJSON(w, http.StatusOK, badges)
}

func (h *BadgeHandler) CreateBadge(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title        string `json:"title"`
		Description  string `json:"description"`
		Category     string `json:"category"`
		Difficulty   string `json:"difficulty"`
		MinAgeMonths *int   `json:"min_age_months"`
		MaxAgeMonths *int   `json:"max_age_months"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	category := model.BadgeCategory(req.Category)
	if !category.Valid() {
		writeError(w, http.StatusBadRequest, "unknown category")
		return
	}
	difficulty := model.BadgeDifficulty(req.Difficulty)
	if !difficulty.Valid() {
		writeError(w, http.StatusBadRequest, "unknown difficulty")
		return
	}

	b, err := h.badges.Create(req.Title, req.Description, category, difficulty, req.MinAgeMonths, req.MaxAgeMonths, true)
	if err != nil {
		h.logger.Error("create badge", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create badge")
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

// parseCompletedAt accepts RFC 3339 or a bare date.
func parseCompletedAt(s string) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, true
	}
	return time.Time{}, false
}

func (h *BadgeHandler) Submit(w http.ResponseWriter, r *http.Request) {
	babyID, err := parseIDParam(r, "baby_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid baby id")
		return
	}

	var req struct {
		BadgeID     int64            `json:"badge_id"`
		CompletedAt string           `json:"completed_at"`
		Note        string           `json:"note"`
		Media       []model.MediaRef `json:"media"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	completedAt, ok := parseCompletedAt(req.CompletedAt)
	if !ok {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "invalid date", "field": "completed_at"})
		return
	}

	c, err := h.collections.Submit(badge.SubmitParams{
		BabyID:      babyID,
		BadgeID:     req.BadgeID,
		SubmittedBy: auth.UserID(r.Context()),
		CompletedAt: completedAt,
		Note:        req.Note,
		Media:       req.Media,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *BadgeHandler) ListByBaby(w http.ResponseWriter, r *http.Request) {
	babyID, err := parseIDParam(r, "baby_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid baby id")
		return
	}

	status := model.VerificationStatus(r.URL.Query().Get("status"))
	collections, err := h.collections.ListByBaby(auth.UserID(r.Context()), babyID, status)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if collections == nil {
		collections = []model.BadgeCollection{}
	}
	writeJSON(w, http.StatusOK, collections)
}

func (h *BadgeHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	c, err := h.collections.Get(id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	// Visible to the baby's family and to moderators.
	if !auth.IsModerator(r.Context()) {
		if _, err := h.families.Member(c.BabyID, auth.UserID(r.Context())); err != nil {
			writeServiceError(w, badge.ErrPermissionDenied)
			return
		}
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *BadgeHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	var req struct {
		Note  string           `json:"note"`
		Media []model.MediaRef `json:"media"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	c, err := h.collections.Update(id, auth.UserID(r.Context()), req.Note, req.Media)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *BadgeHandler) Verify(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	var req struct {
		Action string `json:"action"`
		Note   string `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	c, err := h.collections.Verify(id, badge.Action(req.Action), auth.UserID(r.Context()), req.Note)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *BadgeHandler) BatchVerify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs    []int64 `json:"ids"`
		Action string  `json:"action"`
		Note   string  `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "ids are required")
		return
	}

	result, err := h.collections.BatchVerify(req.IDs, badge.Action(req.Action), auth.UserID(r.Context()), req.Note)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *BadgeHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}

	pending, err := h.collections.ListPending(auth.UserID(r.Context()), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if pending == nil {
		pending = []model.BadgeCollection{}
	}
	writeJSON(w, http.StatusOK, pending)
}
