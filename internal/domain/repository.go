package domain

import (
	"context"
	"time"
)

// GenerationRepository defines persistence for generation requests and the
// rows they own.
type GenerationRepository interface {
	// Create inserts a new request. A unique-key violation on the idempotency
	// key surfaces as ErrIdempotencyConflict so callers can re-check the
	// existing row.
	Create(ctx context.Context, req *GenerationRequest) error
	GetByID(ctx context.Context, id string) (*GenerationRequest, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*GenerationRequest, error)

	// ClaimForRun atomically transitions the request to running. It succeeds
	// when the request is queued, or running with an updated_at older than
	// staleAfter. Any other state returns ErrAlreadyClaimed.
	ClaimForRun(ctx context.Context, id string, staleAfter time.Duration) (*GenerationRequest, error)

	// MarkSucceeded writes the output rows, the usage row, and the succeeded
	// status in one transaction. Nothing becomes visible to readers until the
	// transaction commits.
	MarkSucceeded(ctx context.Context, id string, outputs []GenerationOutput, usage UsageCost) error
	MarkFailed(ctx context.Context, id string, errMsg string) error

	ListOutputs(ctx context.Context, requestID string) ([]GenerationOutput, error)
	GetUsage(ctx context.Context, requestID string) (*UsageCost, error)
	ListBySession(ctx context.Context, sessionID string, limit, offset int) ([]GenerationRequest, int, error)

	// Delete removes the request and its owned rows, children before parent.
	Delete(ctx context.Context, id string) error

	// ListStale returns ids of requests stuck in queued or stale running
	// states, used by the worker sweep to re-enqueue abandoned work.
	ListStale(ctx context.Context, staleAfter time.Duration, limit int) ([]string, error)
}
