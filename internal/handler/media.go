package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/nestlinghq/nestling/internal/auth"
	"github.com/nestlinghq/nestling/internal/badge"
	"github.com/nestlinghq/nestling/internal/family"
	"github.com/nestlinghq/nestling/internal/media"
	"github.com/nestlinghq/nestling/internal/model"
)

type MediaHandler struct {
	storage  *media.Storage
	families *family.Service
	logger   *slog.Logger
}

func NewMediaHandler(storage *media.Storage, families *family.Service, logger *slog.Logger) *MediaHandler {
	return &MediaHandler{storage: storage, families: families, logger: logger}
}

// Upload stores one evidence file and returns the object key to reference in
// a submission. Requires upload-media for the baby.
func (h *MediaHandler) Upload(w http.ResponseWriter, r *http.Request) {
	babyID, err := parseIDParam(r, "baby_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid baby id")
		return
	}

	member, err := h.families.Member(babyID, auth.UserID(r.Context()))
	if err != nil {
		writeServiceError(w, family.ErrPermissionDenied)
		return
	}
	if !family.CanPerform(member, model.PermUploadMedia) {
		writeServiceError(w, family.ErrPermissionDenied)
		return
	}

	if !h.storage.Configured() {
		writeError(w, http.StatusServiceUnavailable, "media storage not configured")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if !badge.AllowedMediaTypes[contentType] {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "unsupported media type", "field": "media"})
		return
	}
	if header.Size > badge.MaxMediaBytes {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "file exceeds 10MB", "field": "media"})
		return
	}

	key, err := h.storage.Upload(r.Context(), babyID, contentType, header.Size, file)
	if err != nil {
		if errors.Is(err, media.ErrNotConfigured) {
			writeError(w, http.StatusServiceUnavailable, "media storage not configured")
			return
		}
		h.logger.Error("upload media", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to upload media")
		return
	}

	writeJSON(w, http.StatusCreated, model.MediaRef{
		ObjectKey:   key,
		ContentType: contentType,
		SizeBytes:   header.Size,
	})
}

// Download streams an evidence object to a member of the baby's family.
func (h *MediaHandler) Download(w http.ResponseWriter, r *http.Request) {
	babyID, err := parseIDParam(r, "baby_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid baby id")
		return
	}

	if !auth.IsModerator(r.Context()) {
		if _, err := h.families.Member(babyID, auth.UserID(r.Context())); err != nil {
			writeServiceError(w, family.ErrPermissionDenied)
			return
		}
	}

	key := r.URL.Query().Get("key")
	if key == "" {
		writeError(w, http.StatusBadRequest, "key is required")
		return
	}

	body, contentType, err := h.storage.Download(r.Context(), key)
	if err != nil {
		h.logger.Error("download media", "error", err)
		writeError(w, http.StatusNotFound, "object not found")
		return
	}
	defer body.Close()

	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	if _, err := io.Copy(w, body); err != nil {
		h.logger.Error("stream media", "error", err)
	}
}
