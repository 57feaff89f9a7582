package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"server/internal/domain"
	"server/internal/infra"
	"server/internal/storage"
)

// Enqueuer dispatches a created generation request to the worker queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, requestID string) error
}

// App bundles the dependencies shared by all HTTP handlers.
type App struct {
	Generations domain.GenerationRepository
	Store       storage.Store
	Jobs        Enqueuer
	Logger      infra.Logger
	Cfg         *infra.Config
}

func NewApp(generations domain.GenerationRepository, store storage.Store, jobs Enqueuer, logger infra.Logger, cfg *infra.Config) *App {
	return &App{
		Generations: generations,
		Store:       store,
		Jobs:        jobs,
		Logger:      logger,
		Cfg:         cfg,
	}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, map[string]string{"error": code, "message": message})
}
