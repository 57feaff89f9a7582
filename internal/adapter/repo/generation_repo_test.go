package repo

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"server/internal/domain"
	"server/internal/infra"
)

// scriptedConn is an infra.DBConn double. QueryRow hands out the scripted
// rows in order and records every statement it receives, after the runner has
// stripped the audit marker.
type scriptedConn struct {
	rows    []scriptedRow
	queries []recordedQuery
}

type recordedQuery struct {
	sql  string
	args []any
}

func (c *scriptedConn) QueryRow(_ context.Context, query string, args ...any) pgx.Row {
	c.queries = append(c.queries, recordedQuery{sql: query, args: args})
	if len(c.rows) == 0 {
		return scriptedRow{err: pgx.ErrNoRows}
	}
	row := c.rows[0]
	c.rows = c.rows[1:]
	return row
}

func (c *scriptedConn) Exec(_ context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	c.queries = append(c.queries, recordedQuery{sql: query, args: args})
	return pgconn.CommandTag{}, nil
}

func (c *scriptedConn) Query(_ context.Context, query string, args ...any) (pgx.Rows, error) {
	c.queries = append(c.queries, recordedQuery{sql: query, args: args})
	return nil, pgx.ErrNoRows
}

func (c *scriptedConn) Begin(_ context.Context) (pgx.Tx, error) {
	return nil, errors.New("transactions not scripted")
}

// scriptedRow plays back one generation_request row in the column order the
// select and returning clauses share.
type scriptedRow struct {
	err error
	req domain.GenerationRequest
}

func (r scriptedRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	garments, err := json.Marshal(r.req.GarmentKeys)
	if err != nil {
		return err
	}
	model, err := json.Marshal(r.req.ModelParams)
	if err != nil {
		return err
	}
	scene, err := json.Marshal(r.req.SceneParams)
	if err != nil {
		return err
	}
	*dest[0].(*string) = r.req.ID
	*dest[1].(*string) = r.req.SessionID
	*dest[2].(*domain.GenerationStatus) = r.req.Status
	*dest[3].(*[]byte) = garments
	*dest[4].(*[]byte) = model
	*dest[5].(*[]byte) = scene
	*dest[6].(*int) = r.req.OutputCount
	*dest[7].(*string) = r.req.TemplateVersion
	*dest[8].(*string) = r.req.IdempotencyKey
	*dest[9].(*string) = r.req.ErrorMessage
	*dest[10].(*time.Time) = r.req.CreatedAt
	*dest[11].(*time.Time) = r.req.UpdatedAt
	return nil
}

func newScriptedRepo(rows ...scriptedRow) (*GenerationRepositoryPG, *scriptedConn) {
	conn := &scriptedConn{rows: rows}
	return NewGenerationRepository(infra.NewSQLRunner(conn, zerolog.New(io.Discard))), conn
}

func claimedRequest(id string, status domain.GenerationStatus) domain.GenerationRequest {
	now := time.Now().UTC().Truncate(time.Second)
	return domain.GenerationRequest{
		ID:              id,
		SessionID:       "11111111-2222-3333-4444-555555555555",
		Status:          status,
		GarmentKeys:     []string{"uploads/s/front.jpg"},
		ModelParams:     domain.ModelParams{AgeRange: "25-34", Gender: "female", SkinTone: "medium", BodyType: "athletic"},
		SceneParams:     domain.SceneParams{Environment: "studio_white", PosePreset: "standing_front", Framing: "full_body"},
		OutputCount:     3,
		TemplateVersion: domain.DefaultTemplateVersion,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func TestClaimForRunClaimsEligibleRow(t *testing.T) {
	want := claimedRequest("gen_01", domain.GenerationStatusRunning)
	repo, conn := newScriptedRepo(scriptedRow{req: want})

	got, err := repo.ClaimForRun(context.Background(), "gen_01", 5*time.Minute)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, domain.GenerationStatusRunning, got.Status)
	assert.Equal(t, want.GarmentKeys, got.GarmentKeys)
	assert.Equal(t, want.SceneParams, got.SceneParams)

	require.Len(t, conn.queries, 1)
	sql := conn.queries[0].sql
	assert.NotContains(t, sql, "--sql", "audit marker must be stripped before the database sees the statement")
	assert.Contains(t, sql, "set status = 'running'")
	assert.Contains(t, sql, "status = 'queued'")
	assert.Contains(t, sql, "status = 'running' and updated_at < now() - make_interval(secs => $2)")
	assert.Equal(t, []any{"gen_01", (5 * time.Minute).Seconds()}, conn.queries[0].args)
}

func TestClaimForRunFreshRunningRow(t *testing.T) {
	// The conditional update matches nothing, and the follow-up lookup finds
	// the row held by another worker.
	repo, conn := newScriptedRepo(
		scriptedRow{err: pgx.ErrNoRows},
		scriptedRow{req: claimedRequest("gen_02", domain.GenerationStatusRunning)},
	)

	got, err := repo.ClaimForRun(context.Background(), "gen_02", 5*time.Minute)
	require.ErrorIs(t, err, domain.ErrAlreadyClaimed)
	assert.Nil(t, got)
	require.Len(t, conn.queries, 2)
	assert.Contains(t, conn.queries[1].sql, "where id = $1")
}

func TestClaimForRunMissingRequest(t *testing.T) {
	repo, _ := newScriptedRepo(
		scriptedRow{err: pgx.ErrNoRows},
		scriptedRow{err: pgx.ErrNoRows},
	)

	got, err := repo.ClaimForRun(context.Background(), "gen_absent", 5*time.Minute)
	require.ErrorIs(t, err, domain.ErrNotFound)
	assert.Nil(t, got)
}

func TestClaimForRunPropagatesQueryError(t *testing.T) {
	dbErr := errors.New("connection reset")
	repo, conn := newScriptedRepo(scriptedRow{err: dbErr})

	got, err := repo.ClaimForRun(context.Background(), "gen_03", 5*time.Minute)
	require.ErrorIs(t, err, dbErr)
	assert.Nil(t, got)
	assert.Len(t, conn.queries, 1, "a database failure must not be mistaken for a claim conflict")
}

func TestClaimForRunTerminalRow(t *testing.T) {
	// A succeeded row is not claimable; the conditional matches nothing and
	// the lookup reports the conflict.
	repo, _ := newScriptedRepo(
		scriptedRow{err: pgx.ErrNoRows},
		scriptedRow{req: claimedRequest("gen_04", domain.GenerationStatusSucceeded)},
	)

	_, err := repo.ClaimForRun(context.Background(), "gen_04", 5*time.Minute)
	require.ErrorIs(t, err, domain.ErrAlreadyClaimed)
}

func TestListStaleUsesThresholdSeconds(t *testing.T) {
	repo, conn := newScriptedRepo()

	_, err := repo.ListStale(context.Background(), 5*time.Minute, 20)
	require.Error(t, err) // the double backs Query with no rows

	require.Len(t, conn.queries, 1)
	sql := conn.queries[0].sql
	assert.NotContains(t, sql, "--sql")
	assert.Contains(t, sql, "status = 'queued' and updated_at < now() - make_interval(secs => $1)")
	assert.Contains(t, sql, "status = 'running' and updated_at < now() - make_interval(secs => $1)")
	assert.Equal(t, []any{(5 * time.Minute).Seconds(), 20}, conn.queries[0].args)
}
