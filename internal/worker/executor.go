package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"time"

	"server/internal/domain"
	"server/internal/imagegen"
	"server/internal/infra"
	"server/internal/prompt"
	"server/internal/storage"
)

const (
	// ProviderName is recorded on every usage row.
	ProviderName = "google_gemini"
	// EstimatedCostPerBatchUSD is the fixed cost estimate per variation batch.
	EstimatedCostPerBatchUSD = 0.02

	// DefaultStaleAfter is the window after which a running request is
	// presumed abandoned and safe to restart.
	DefaultStaleAfter = 5 * time.Minute
)

// Executor runs one generation request end to end: claim, load inputs,
// assemble the prompt, drive the variation batch, persist artifacts, and set
// the terminal status. The terminal state is always written before Execute
// returns; no failure escapes the job boundary.
type Executor struct {
	repo       domain.GenerationRepository
	store      storage.Store
	assembler  *prompt.Assembler
	runner     *imagegen.Runner
	logger     infra.Logger
	staleAfter time.Duration
}

// NewExecutor wires an Executor. staleAfter <= 0 selects DefaultStaleAfter.
func NewExecutor(repo domain.GenerationRepository, store storage.Store, assembler *prompt.Assembler, runner *imagegen.Runner, logger infra.Logger, staleAfter time.Duration) *Executor {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &Executor{
		repo:       repo,
		store:      store,
		assembler:  assembler,
		runner:     runner,
		logger:     logger,
		staleAfter: staleAfter,
	}
}

// Execute processes the generation request with the given id. Redelivery of
// an id already being worked on is a no-op; a stale running request restarts
// from the beginning.
func (e *Executor) Execute(ctx context.Context, requestID string) (err error) {
	req, err := e.repo.ClaimForRun(ctx, requestID, e.staleAfter)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			e.logger.Error().Str("request_id", requestID).Msg("worker: generation request not found")
			return nil
		case errors.Is(err, domain.ErrAlreadyClaimed):
			e.logger.Info().Str("request_id", requestID).Msg("worker: request already claimed or terminal, skipping")
			return nil
		default:
			return fmt.Errorf("claim request %s: %w", requestID, err)
		}
	}

	defer func() {
		if p := recover(); p != nil {
			err = e.fail(ctx, requestID, fmt.Sprintf("unhandled error: %v", p))
		}
	}()

	garments := make([][]byte, 0, len(req.GarmentKeys))
	for _, key := range req.GarmentKeys {
		data, loadErr := e.store.Load(ctx, key)
		if loadErr != nil {
			if errors.Is(loadErr, storage.ErrNotFound) {
				return e.fail(ctx, requestID, fmt.Sprintf("garment image not found: %s", key))
			}
			return e.fail(ctx, requestID, fmt.Sprintf("load garment image %s: %v", key, loadErr))
		}
		garments = append(garments, data)
	}
	if len(garments) == 0 {
		return e.fail(ctx, requestID, "no garment images could be loaded")
	}

	promptText, asmErr := e.assembler.Assemble(req.ModelParams, req.SceneParams, req.TemplateVersion)
	if asmErr != nil {
		return e.fail(ctx, requestID, fmt.Sprintf("prompt assembly failed: %v", asmErr))
	}

	var modelPhoto []byte
	if key := req.ModelParams.ModelPhotoKey; key != "" {
		data, loadErr := e.store.Load(ctx, key)
		switch {
		case loadErr == nil:
			modelPhoto = data
		case errors.Is(loadErr, storage.ErrNotFound):
			// Non-fatal: fall back to the preset-based description.
			e.logger.Warn().Str("request_id", requestID).Str("key", key).Msg("worker: model photo not found, proceeding without it")
		default:
			return e.fail(ctx, requestID, fmt.Sprintf("load model photo %s: %v", key, loadErr))
		}
	}

	e.logger.Info().
		Str("request_id", requestID).
		Int("garment_images", len(garments)).
		Bool("model_photo", modelPhoto != nil).
		Int("prompt_len", len(promptText)).
		Msg("worker: starting variation batch")

	batch, genErr := e.runner.Run(ctx, promptText, garments, modelPhoto)
	if genErr != nil {
		return e.fail(ctx, requestID, fmt.Sprintf("image generation failed: %v", genErr))
	}

	outputs := make([]domain.GenerationOutput, 0, len(batch.Images))
	for i, img := range batch.Images {
		key := fmt.Sprintf("outputs/%s/variation_%d.jpg", requestID, i)
		savedKey, saveErr := e.store.Save(ctx, key, img)
		if saveErr != nil {
			return e.fail(ctx, requestID, fmt.Sprintf("store output image %d: %v", i, saveErr))
		}
		width, height := imageDimensions(img)
		outputs = append(outputs, domain.GenerationOutput{
			ID:             domain.NewID(),
			RequestID:      requestID,
			StorageKey:     savedKey,
			VariationIndex: i,
			Width:          width,
			Height:         height,
		})
	}

	usage := domain.UsageCost{
		ID:           domain.NewID(),
		RequestID:    requestID,
		Provider:     ProviderName,
		ModelName:    batch.ModelName,
		InputTokens:  batch.InputTokens,
		OutputTokens: batch.OutputTokens,
		EstimatedUSD: EstimatedCostPerBatchUSD,
		DurationMS:   batch.DurationMS,
	}

	if commitErr := e.repo.MarkSucceeded(ctx, requestID, outputs, usage); commitErr != nil {
		return e.fail(ctx, requestID, fmt.Sprintf("persist results: %v", commitErr))
	}

	e.logger.Info().
		Str("request_id", requestID).
		Int("images", len(outputs)).
		Int64("duration_ms", batch.DurationMS).
		Msg("worker: generation succeeded")
	return nil
}

// fail records the terminal failed state. The returned error reports the
// cause for the worker log; the state transition itself never propagates.
func (e *Executor) fail(ctx context.Context, requestID, msg string) error {
	e.logger.Error().Str("request_id", requestID).Str("cause", msg).Msg("worker: generation failed")
	if err := e.repo.MarkFailed(ctx, requestID, msg); err != nil {
		e.logger.Error().Err(err).Str("request_id", requestID).Msg("worker: failed to record failure state")
	}
	return fmt.Errorf("generation %s failed: %s", requestID, msg)
}

// imageDimensions extracts pixel dimensions best-effort; unreadable images
// yield zeros and the columns stay null.
func imageDimensions(data []byte) (int, int) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0
	}
	return cfg.Width, cfg.Height
}
