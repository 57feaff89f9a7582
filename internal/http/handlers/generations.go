package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"server/internal/domain"
	"server/internal/middleware"
	"server/pkg/zip"
)

type createGenerationRequest struct {
	IdempotencyKey string             `json:"idempotency_key,omitempty"`
	ProductType    string             `json:"product_type,omitempty"`
	GarmentImages  []string           `json:"garment_images"`
	ModelParams    domain.ModelParams `json:"model_params"`
	Scene          domain.SceneParams `json:"scene"`
	Output         outputParams       `json:"output"`
}

type outputParams struct {
	Count int `json:"count"`
}

type generationCreatedResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type outputImage struct {
	ImageURL       string `json:"image_url"`
	VariationIndex int    `json:"variation_index"`
	Width          int    `json:"width,omitempty"`
	Height         int    `json:"height,omitempty"`
}

// CreateGeneration validates a submission, persists the queued request and
// enqueues the worker job. Submissions reusing an idempotency key return the
// original record when the parameters match byte for byte, and 409 otherwise.
func (a *App) CreateGeneration(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.SessionIDFromContext(r.Context())

	var body createGenerationRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if len(body.GarmentImages) < domain.MinGarmentImages {
		a.error(w, http.StatusBadRequest, "bad_request", "at least one garment image is required")
		return
	}
	if len(body.GarmentImages) > domain.MaxGarmentImages {
		a.error(w, http.StatusBadRequest, "bad_request", "maximum 5 garment images allowed")
		return
	}
	if msg := validateParams(body.ModelParams, body.Scene); msg != "" {
		a.error(w, http.StatusBadRequest, "bad_request", msg)
		return
	}

	modelParams := body.ModelParams
	if body.ProductType != "" {
		modelParams.ProductType = body.ProductType
	}

	key := strings.TrimSpace(body.IdempotencyKey)
	if key != "" {
		existing, err := a.Generations.GetByIdempotencyKey(r.Context(), key)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusInternalServerError, "internal", "failed to check idempotency key")
			return
		}
		if existing != nil {
			if !sameParameters(existing, body.GarmentImages, modelParams, body.Scene) {
				a.error(w, http.StatusConflict, "conflict", "idempotency key already used with different parameters")
				return
			}
			a.json(w, http.StatusCreated, generationCreatedResponse{ID: existing.ID, Status: string(existing.Status)})
			return
		}
	}

	req := &domain.GenerationRequest{
		ID:              domain.NewGenerationID(),
		SessionID:       sessionID,
		Status:          domain.GenerationStatusQueued,
		GarmentKeys:     body.GarmentImages,
		ModelParams:     modelParams,
		SceneParams:     body.Scene,
		OutputCount:     3,
		TemplateVersion: domain.DefaultTemplateVersion,
		IdempotencyKey:  key,
	}
	if err := a.Generations.Create(r.Context(), req); err != nil {
		if errors.Is(err, domain.ErrIdempotencyConflict) {
			a.error(w, http.StatusConflict, "conflict", "idempotency key already used with different parameters")
			return
		}
		a.error(w, http.StatusInternalServerError, "internal", "failed to create generation")
		return
	}

	// Enqueue failure is tolerated: the request stays queued and the worker
	// sweep will pick it up.
	if err := a.Jobs.Enqueue(r.Context(), req.ID); err != nil {
		a.Logger.Warn().Err(err).Str("request_id", req.ID).Msg("api: enqueue failed, relying on sweep")
	}

	a.json(w, http.StatusCreated, generationCreatedResponse{ID: req.ID, Status: string(req.Status)})
}

// GenerationStatus reports the current state of a request.
func (a *App) GenerationStatus(w http.ResponseWriter, r *http.Request) {
	gen, ok := a.loadForSession(w, r)
	if !ok {
		return
	}
	resp := map[string]any{
		"id":                      gen.ID,
		"status":                  gen.Status,
		"created_at":              gen.CreatedAt,
		"prompt_template_version": gen.TemplateVersion,
		"cost_estimate":           map[string]int{"credits": 1},
	}
	if gen.ErrorMessage != "" {
		resp["error_message"] = gen.ErrorMessage
	}
	a.json(w, http.StatusOK, resp)
}

// GenerationOutputs returns the produced images of a succeeded request with
// signed download URLs. A failed request carries only its error message.
func (a *App) GenerationOutputs(w http.ResponseWriter, r *http.Request) {
	gen, ok := a.loadForSession(w, r)
	if !ok {
		return
	}

	outputs := []outputImage{}
	if gen.Status == domain.GenerationStatusSucceeded {
		rows, err := a.Generations.ListOutputs(r.Context(), gen.ID)
		if err != nil {
			a.error(w, http.StatusInternalServerError, "internal", "failed to load outputs")
			return
		}
		for _, out := range rows {
			url, err := a.Store.SignedDownloadURL(r.Context(), out.StorageKey, a.Cfg.OutputURLExpiry)
			if err != nil {
				a.error(w, http.StatusInternalServerError, "internal", "failed to sign output url")
				return
			}
			outputs = append(outputs, outputImage{
				ImageURL:       url,
				VariationIndex: out.VariationIndex,
				Width:          out.Width,
				Height:         out.Height,
			})
		}
	}

	resp := map[string]any{
		"id":      gen.ID,
		"status":  gen.Status,
		"outputs": outputs,
	}
	if gen.ErrorMessage != "" {
		resp["error_message"] = gen.ErrorMessage
	}
	if usage, err := a.Generations.GetUsage(r.Context(), gen.ID); err == nil {
		resp["cost_usd"] = usage.EstimatedUSD
	}
	a.json(w, http.StatusOK, resp)
}

// DownloadOutputs streams all images of a succeeded request as one zip
// archive, named after the request.
func (a *App) DownloadOutputs(w http.ResponseWriter, r *http.Request) {
	gen, ok := a.loadForSession(w, r)
	if !ok {
		return
	}
	if gen.Status != domain.GenerationStatusSucceeded {
		a.error(w, http.StatusConflict, "conflict", "generation has no outputs yet")
		return
	}

	rows, err := a.Generations.ListOutputs(r.Context(), gen.ID)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to load outputs")
		return
	}

	files := make([]zip.File, 0, len(rows))
	for _, out := range rows {
		data, err := a.Store.Load(r.Context(), out.StorageKey)
		if err != nil {
			a.error(w, http.StatusInternalServerError, "internal", "failed to load output image")
			return
		}
		files = append(files, zip.File{
			Name: fmt.Sprintf("variation_%d.jpg", out.VariationIndex),
			Data: data,
		})
	}
	archive, err := zip.Archive(files)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to build archive")
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", gen.ID+".zip"))
	_, _ = w.Write(archive)
}

// DeleteGeneration removes a request with its rows and stored image bytes.
// Rows go first, children before parent; object removal afterwards is
// idempotent best-effort.
func (a *App) DeleteGeneration(w http.ResponseWriter, r *http.Request) {
	gen, ok := a.loadForSession(w, r)
	if !ok {
		return
	}

	outputs, err := a.Generations.ListOutputs(r.Context(), gen.ID)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to load outputs")
		return
	}
	if err := a.Generations.Delete(r.Context(), gen.ID); err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to delete generation")
		return
	}

	for _, out := range outputs {
		if err := a.Store.Delete(r.Context(), out.StorageKey); err != nil {
			a.Logger.Warn().Err(err).Str("key", out.StorageKey).Msg("api: delete output object failed")
		}
	}
	for _, key := range gen.GarmentKeys {
		if err := a.Store.Delete(r.Context(), key); err != nil {
			a.Logger.Warn().Err(err).Str("key", key).Msg("api: delete garment object failed")
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

func (a *App) loadForSession(w http.ResponseWriter, r *http.Request) (*domain.GenerationRequest, bool) {
	genID := chi.URLParam(r, "id")
	gen, err := a.Generations.GetByID(r.Context(), genID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "generation not found")
		} else {
			a.error(w, http.StatusInternalServerError, "internal", "failed to load generation")
		}
		return nil, false
	}
	if gen.SessionID != middleware.SessionIDFromContext(r.Context()) {
		a.error(w, http.StatusNotFound, "not_found", "generation not found")
		return nil, false
	}
	return gen, true
}

func validateParams(model domain.ModelParams, scene domain.SceneParams) string {
	if model.ModelPhotoKey == "" {
		switch {
		case model.AgeRange == "":
			return "model_params.age_range is required"
		case model.Gender == "":
			return "model_params.gender_presentation is required"
		case model.SkinTone == "":
			return "model_params.skin_tone is required"
		case model.BodyType == "":
			return "model_params.body_type is required"
		}
	}
	switch {
	case scene.Environment == "":
		return "scene.environment is required"
	case scene.PosePreset == "":
		return "scene.pose_preset is required"
	case scene.Framing == "":
		return "scene.framing is required"
	}
	return ""
}

// sameParameters compares the canonical JSON of the parameter set pinned by
// an idempotency key against a new submission.
func sameParameters(existing *domain.GenerationRequest, garments []string, model domain.ModelParams, scene domain.SceneParams) bool {
	type paramSet struct {
		Garments []string           `json:"garments"`
		Model    domain.ModelParams `json:"model"`
		Scene    domain.SceneParams `json:"scene"`
	}
	prev, err1 := json.Marshal(paramSet{existing.GarmentKeys, existing.ModelParams, existing.SceneParams})
	next, err2 := json.Marshal(paramSet{garments, model, scene})
	return err1 == nil && err2 == nil && bytes.Equal(prev, next)
}
