package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"server/internal/domain"
	"server/internal/infra"
	"server/internal/sqlinline"
)

// GenerationRepositoryPG implements domain.GenerationRepository.
type GenerationRepositoryPG struct {
	db *infra.SQLRunner
}

// NewGenerationRepository creates a generation repository backed by PostgreSQL.
func NewGenerationRepository(db *infra.SQLRunner) *GenerationRepositoryPG {
	return &GenerationRepositoryPG{db: db}
}

// Create inserts a new request record.
func (r *GenerationRepositoryPG) Create(ctx context.Context, req *domain.GenerationRequest) error {
	garmentKeys, err := json.Marshal(req.GarmentKeys)
	if err != nil {
		return fmt.Errorf("marshal garment keys: %w", err)
	}
	modelParams, err := json.Marshal(req.ModelParams)
	if err != nil {
		return fmt.Errorf("marshal model params: %w", err)
	}
	sceneParams, err := json.Marshal(req.SceneParams)
	if err != nil {
		return fmt.Errorf("marshal scene params: %w", err)
	}

	_, err = r.db.Exec(ctx, sqlinline.QInsertGenerationRequest,
		req.ID,
		req.SessionID,
		req.Status,
		garmentKeys,
		modelParams,
		sceneParams,
		req.OutputCount,
		req.TemplateVersion,
		req.IdempotencyKey,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrIdempotencyConflict
		}
		return err
	}
	return nil
}

// GetByID fetches a request by its identifier.
func (r *GenerationRepositoryPG) GetByID(ctx context.Context, id string) (*domain.GenerationRequest, error) {
	return r.scanRequest(r.db.QueryRow(ctx, sqlinline.QGetGenerationByID, id))
}

// GetByIdempotencyKey fetches the request previously created with key.
func (r *GenerationRepositoryPG) GetByIdempotencyKey(ctx context.Context, key string) (*domain.GenerationRequest, error) {
	return r.scanRequest(r.db.QueryRow(ctx, sqlinline.QGetGenerationByIdempotencyKey, key))
}

// ClaimForRun transitions the request to running in a single conditional
// update. The request is claimable when queued, or when a previous run went
// stale (running with updated_at older than staleAfter). A fresh running row
// means a concurrent duplicate dispatch; the caller must exit without side
// effects.
func (r *GenerationRepositoryPG) ClaimForRun(ctx context.Context, id string, staleAfter time.Duration) (*domain.GenerationRequest, error) {
	req, err := r.scanRequest(r.db.QueryRow(ctx, sqlinline.QClaimGenerationForRun, id, staleAfter.Seconds()))
	if err == nil {
		return req, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	// Distinguish an absent request from one already claimed or terminal.
	if _, getErr := r.GetByID(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, domain.ErrAlreadyClaimed
}

// MarkSucceeded writes output rows, the usage row, and the succeeded status in
// one transaction. Readers see nothing until the commit.
func (r *GenerationRepositoryPG) MarkSucceeded(ctx context.Context, id string, outputs []domain.GenerationOutput, usage domain.UsageCost) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, out := range outputs {
		if _, err := tx.Exec(ctx, sqlinline.QInsertGenerationOutput,
			out.ID, id, out.StorageKey, out.VariationIndex, out.Width, out.Height); err != nil {
			return fmt.Errorf("insert output %d: %w", out.VariationIndex, err)
		}
	}

	if _, err := tx.Exec(ctx, sqlinline.QInsertUsageCost,
		usage.ID, id, usage.Provider, usage.ModelName,
		usage.InputTokens, usage.OutputTokens, usage.EstimatedUSD, usage.DurationMS); err != nil {
		return fmt.Errorf("insert usage: %w", err)
	}

	tag, err := tx.Exec(ctx, sqlinline.QMarkGenerationSucceeded, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("request %s is no longer running", id)
	}

	return tx.Commit(ctx)
}

// MarkFailed records the terminal failed state with its cause.
func (r *GenerationRepositoryPG) MarkFailed(ctx context.Context, id string, errMsg string) error {
	_, err := r.db.Exec(ctx, sqlinline.QMarkGenerationFailed, id, errMsg)
	return err
}

// ListOutputs returns the outputs of a request in variation order.
func (r *GenerationRepositoryPG) ListOutputs(ctx context.Context, requestID string) ([]domain.GenerationOutput, error) {
	rows, err := r.db.Query(ctx, sqlinline.QListGenerationOutputs, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var outputs []domain.GenerationOutput
	for rows.Next() {
		var out domain.GenerationOutput
		if err := rows.Scan(&out.ID, &out.RequestID, &out.StorageKey, &out.VariationIndex, &out.Width, &out.Height, &out.CreatedAt); err != nil {
			return nil, err
		}
		outputs = append(outputs, out)
	}
	return outputs, rows.Err()
}

// GetUsage returns the usage row for a request, or ErrNotFound.
func (r *GenerationRepositoryPG) GetUsage(ctx context.Context, requestID string) (*domain.UsageCost, error) {
	row := r.db.QueryRow(ctx, sqlinline.QGetUsageCost, requestID)
	var usage domain.UsageCost
	if err := row.Scan(&usage.ID, &usage.RequestID, &usage.Provider, &usage.ModelName,
		&usage.InputTokens, &usage.OutputTokens, &usage.EstimatedUSD, &usage.DurationMS, &usage.RecordedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &usage, nil
}

// ListBySession returns a page of requests for a session, newest first, and
// the total count.
func (r *GenerationRepositoryPG) ListBySession(ctx context.Context, sessionID string, limit, offset int) ([]domain.GenerationRequest, int, error) {
	var total int
	if err := r.db.QueryRow(ctx, sqlinline.QCountGenerationsBySession, sessionID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.Query(ctx, sqlinline.QListGenerationsBySession, sessionID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var requests []domain.GenerationRequest
	for rows.Next() {
		req, err := scanGeneration(rows)
		if err != nil {
			return nil, 0, err
		}
		requests = append(requests, *req)
	}
	return requests, total, rows.Err()
}

// Delete removes the request with its outputs and usage row, children first.
func (r *GenerationRepositoryPG) Delete(ctx context.Context, id string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, sqlinline.QDeleteUsageCostByRequest, id); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, sqlinline.QDeleteGenerationOutputsByRequest, id); err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, sqlinline.QDeleteGenerationRequest, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return tx.Commit(ctx)
}

// ListStale returns ids of requests presumed abandoned: still queued, or
// running with no update within staleAfter.
func (r *GenerationRepositoryPG) ListStale(ctx context.Context, staleAfter time.Duration, limit int) ([]string, error) {
	rows, err := r.db.Query(ctx, sqlinline.QListStaleGenerations, staleAfter.Seconds(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *GenerationRepositoryPG) scanRequest(row pgx.Row) (*domain.GenerationRequest, error) {
	req, err := scanGeneration(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return req, nil
}

func scanGeneration(row rowScanner) (*domain.GenerationRequest, error) {
	var req domain.GenerationRequest
	var garmentKeys, modelParams, sceneParams []byte
	if err := row.Scan(
		&req.ID,
		&req.SessionID,
		&req.Status,
		&garmentKeys,
		&modelParams,
		&sceneParams,
		&req.OutputCount,
		&req.TemplateVersion,
		&req.IdempotencyKey,
		&req.ErrorMessage,
		&req.CreatedAt,
		&req.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(garmentKeys, &req.GarmentKeys); err != nil {
		return nil, fmt.Errorf("unmarshal garment keys: %w", err)
	}
	if err := json.Unmarshal(modelParams, &req.ModelParams); err != nil {
		return nil, fmt.Errorf("unmarshal model params: %w", err)
	}
	if err := json.Unmarshal(sceneParams, &req.SceneParams); err != nil {
		return nil, fmt.Errorf("unmarshal scene params: %w", err)
	}
	return &req, nil
}

var _ domain.GenerationRepository = (*GenerationRepositoryPG)(nil)
