package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/nestlinghq/nestling/internal/badge"
	"github.com/nestlinghq/nestling/internal/family"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func parseIDParam(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(r.PathValue(name), 10, 64)
}

// writeServiceError maps the service error taxonomy onto HTTP statuses.
// Validation failures are 422, authorization failures 403, state conflicts
// 409, and rate limiting 429.
func writeServiceError(w http.ResponseWriter, err error) {
	var fve *family.ValidationError
	var bve *badge.ValidationError
	switch {
	case errors.As(err, &fve):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": fve.Msg, "field": fve.Field})
	case errors.As(err, &bve):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": bve.Msg, "field": bve.Field})
	case errors.Is(err, family.ErrPermissionDenied), errors.Is(err, badge.ErrPermissionDenied):
		writeError(w, http.StatusForbidden, "permission denied")
	case errors.Is(err, family.ErrNotFound), errors.Is(err, badge.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, family.ErrLastPrimaryCaregiver):
		writeError(w, http.StatusConflict, "a baby must keep at least one primary caregiver")
	case errors.Is(err, badge.ErrAlreadyFinalized):
		writeError(w, http.StatusConflict, "submission already finalized")
	case errors.Is(err, badge.ErrRateLimitExceeded):
		writeError(w, http.StatusTooManyRequests, "daily submission limit exceeded")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
