package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"server/internal/middleware"
	"server/internal/storage"
)

// maxUploadBytes caps a single garment or model photo upload.
const maxUploadBytes = 15 << 20

var allowedUploadTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

type signUploadRequest struct {
	ContentType string `json:"content_type"`
	Filename    string `json:"filename,omitempty"`
}

type signUploadResponse struct {
	Key       string `json:"key"`
	UploadURL string `json:"upload_url"`
	ExpiresIn int    `json:"expires_in"`
}

// SignUpload mints a storage key under the caller's session and returns a
// signed URL the client PUTs the image bytes to.
func (a *App) SignUpload(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.SessionIDFromContext(r.Context())

	var body signUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	ext, ok := allowedUploadTypes[strings.ToLower(body.ContentType)]
	if !ok {
		a.error(w, http.StatusBadRequest, "bad_request", "content_type must be image/jpeg, image/png or image/webp")
		return
	}

	key := fmt.Sprintf("uploads/%s/%s%s", sessionID, uuid.NewString(), ext)
	uploadURL, err := a.Store.SignedUploadURL(r.Context(), key, body.ContentType, a.Cfg.UploadURLExpiry)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to sign upload url")
		return
	}

	a.json(w, http.StatusOK, signUploadResponse{
		Key:       key,
		UploadURL: uploadURL,
		ExpiresIn: int(a.Cfg.UploadURLExpiry.Seconds()),
	})
}

// DirectUpload accepts image bytes for a previously signed key. It backs the
// local filesystem store, which has no external endpoint to PUT against.
func (a *App) DirectUpload(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if !strings.HasPrefix(key, "uploads/") {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid upload key")
		return
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxUploadBytes+1))
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "failed to read body")
		return
	}
	if len(data) == 0 {
		a.error(w, http.StatusBadRequest, "bad_request", "empty body")
		return
	}
	if len(data) > maxUploadBytes {
		a.error(w, http.StatusRequestEntityTooLarge, "too_large", "upload exceeds 15 MiB")
		return
	}

	savedKey, err := a.Store.Save(r.Context(), key, data)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to store upload")
		return
	}
	a.json(w, http.StatusOK, map[string]string{"key": savedKey})
}

// ServeFile streams a stored object. Only the local backend routes download
// URLs through here; the supabase backend signs URLs against its own host.
func (a *App) ServeFile(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	data, err := a.Store.Load(r.Context(), key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "file not found")
			return
		}
		a.error(w, http.StatusInternalServerError, "internal", "failed to load file")
		return
	}

	ctype := mime.TypeByExtension(path.Ext(key))
	if ctype == "" {
		ctype = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ctype)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	_, _ = w.Write(data)
}
