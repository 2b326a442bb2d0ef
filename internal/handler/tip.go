package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/nestlinghq/nestling/internal/model"
	"github.com/nestlinghq/nestling/internal/store"
	"github.com/nestlinghq/nestling/internal/tips"
)

type TipHandler struct {
	tips   *tips.Service
	logger *slog.Logger
}

func NewTipHandler(svc *tips.Service, logger *slog.Logger) *TipHandler {
	return &TipHandler{tips: svc, logger: logger}
}

func tipFilterFromQuery(r *http.Request) (store.TipFilter, int, int) {
	q := r.URL.Query()
	f := store.TipFilter{
		Category:  q.Get("category"),
		Trending:  q.Get("trending") == "true",
		Important: q.Get("important") == "true",
	}
	if v := q.Get("week"); v != "" {
		if week, err := strconv.Atoi(v); err == nil {
			f.Week = &week
		}
	}

	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	return f, page, limit
}

func (h *TipHandler) List(w http.ResponseWriter, r *http.Request) {
	f, page, limit := tipFilterFromQuery(r)

	result, err := h.tips.Query(f, page, limit)
	if err != nil {
		h.logger.Error("query tips", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to query tips")
		return
	}
	if result == nil {
		result = []model.Tip{}
	}
	writeJSON(w, http.StatusOK, result)
}

// LoadMore fetches the next page of a listing. Concurrent loads for the same
// listing are rejected with 409 so clients retry rather than race.
func (h *TipHandler) LoadMore(w http.ResponseWriter, r *http.Request) {
	f, page, limit := tipFilterFromQuery(r)
	if page < 2 {
		writeError(w, http.StatusBadRequest, "page must be 2 or greater")
		return
	}

	result, err := h.tips.LoadMore(f, page, limit)
	if err != nil {
		if errors.Is(err, tips.ErrLoadInFlight) {
			writeError(w, http.StatusConflict, "a page load for this listing is already in progress")
			return
		}
		h.logger.Error("load more tips", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load tips")
		return
	}
	if result == nil {
		result = []model.Tip{}
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *TipHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title         string `json:"title"`
		Body          string `json:"body"`
		Category      string `json:"category"`
		Week          *int   `json:"week"`
		Important     bool   `json:"important"`
		TrendingScore int    `json:"trending_score"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" || req.Body == "" {
		writeError(w, http.StatusBadRequest, "title and body are required")
		return
	}
	if req.Week != nil && (*req.Week < 1 || *req.Week > 42) {
		writeError(w, http.StatusBadRequest, "week must be between 1 and 42")
		return
	}

	tip, err := h.tips.Create(req.Title, req.Body, req.Category, req.Week, req.Important, req.TrendingScore)
	if err != nil {
		h.logger.Error("create tip", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create tip")
		return
	}
	writeJSON(w, http.StatusCreated, tip)
}
