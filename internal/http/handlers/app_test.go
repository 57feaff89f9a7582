package handlers_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path"
	"sort"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"server/internal/domain"
	"server/internal/http/handlers"
	"server/internal/http/httpapi"
	"server/internal/infra"
	"server/internal/middleware"
	"server/internal/storage"
)

// memRepo is an in-memory domain.GenerationRepository for handler tests.
type memRepo struct {
	domain.GenerationRepository

	requests map[string]*domain.GenerationRequest
	outputs  map[string][]domain.GenerationOutput
	usage    map[string]*domain.UsageCost

	createErr error
	created   []string
}

func newMemRepo() *memRepo {
	return &memRepo{
		requests: make(map[string]*domain.GenerationRequest),
		outputs:  make(map[string][]domain.GenerationOutput),
		usage:    make(map[string]*domain.UsageCost),
	}
}

func (m *memRepo) Create(_ context.Context, req *domain.GenerationRequest) error {
	if m.createErr != nil {
		return m.createErr
	}
	cp := *req
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	m.requests[req.ID] = &cp
	m.created = append(m.created, req.ID)
	return nil
}

func (m *memRepo) GetByID(_ context.Context, id string) (*domain.GenerationRequest, error) {
	req, ok := m.requests[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return req, nil
}

func (m *memRepo) GetByIdempotencyKey(_ context.Context, key string) (*domain.GenerationRequest, error) {
	for _, req := range m.requests {
		if req.IdempotencyKey == key {
			return req, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memRepo) ListOutputs(_ context.Context, requestID string) ([]domain.GenerationOutput, error) {
	return m.outputs[requestID], nil
}

func (m *memRepo) GetUsage(_ context.Context, requestID string) (*domain.UsageCost, error) {
	u, ok := m.usage[requestID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return u, nil
}

func (m *memRepo) ListBySession(_ context.Context, sessionID string, limit, offset int) ([]domain.GenerationRequest, int, error) {
	var all []domain.GenerationRequest
	for _, req := range m.requests {
		if req.SessionID == sessionID {
			all = append(all, *req)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := len(all)
	if offset > len(all) {
		offset = len(all)
	}
	all = all[offset:]
	if limit < len(all) {
		all = all[:limit]
	}
	return all, total, nil
}

func (m *memRepo) Delete(_ context.Context, id string) error {
	if _, ok := m.requests[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.requests, id)
	delete(m.outputs, id)
	delete(m.usage, id)
	return nil
}

// memStore is an in-memory storage.Store.
type memStore struct {
	objects map[string][]byte
	deleted []string
}

func newMemStore() *memStore {
	return &memStore{objects: make(map[string][]byte)}
}

func (m *memStore) Save(_ context.Context, key string, data []byte) (string, error) {
	key = path.Clean(key)
	m.objects[key] = data
	return key, nil
}

func (m *memStore) Load(_ context.Context, key string) ([]byte, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return data, nil
}

func (m *memStore) Delete(_ context.Context, key string) error {
	delete(m.objects, key)
	m.deleted = append(m.deleted, key)
	return nil
}

func (m *memStore) SignedDownloadURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return "http://files.test/" + key, nil
}

func (m *memStore) SignedUploadURL(_ context.Context, key, _ string, _ time.Duration) (string, error) {
	return "http://upload.test/" + key, nil
}

var _ storage.Store = (*memStore)(nil)

// memQueue records enqueued ids.
type memQueue struct {
	ids []string
	err error
}

func (m *memQueue) Enqueue(_ context.Context, requestID string) error {
	if m.err != nil {
		return m.err
	}
	m.ids = append(m.ids, requestID)
	return nil
}

type testEnv struct {
	repo    *memRepo
	store   *memStore
	jobs    *memQueue
	handler http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	repo := newMemRepo()
	store := newMemStore()
	jobs := &memQueue{}
	cfg := &infra.Config{
		AppEnv:          "test",
		Port:            "8080",
		UploadURLExpiry: 15 * time.Minute,
		OutputURLExpiry: time.Hour,
	}
	logger := infra.Logger(zerolog.New(io.Discard))
	app := handlers.NewApp(repo, store, jobs, logger, cfg)
	return &testEnv{repo: repo, store: store, jobs: jobs, handler: httpapi.NewRouter(app)}
}

func (e *testEnv) do(t *testing.T, method, target, sessionID string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if sessionID != "" {
		req.Header.Set(middleware.SessionHeader, sessionID)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

var errBoom = errors.New("boom")
