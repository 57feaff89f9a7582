package storage

import (
	"fmt"
	"path/filepath"

	"server/internal/infra"
)

// New selects the configured storage backend.
func New(cfg *infra.Config) (Store, error) {
	switch cfg.StorageBackend {
	case "", "local":
		basePath := cfg.StoragePath
		if !filepath.IsAbs(basePath) {
			if abs, err := filepath.Abs(basePath); err == nil {
				basePath = abs
			}
		}
		return NewFileStore(basePath, cfg.StorageBaseURL, "/v1/uploads/direct")
	case "supabase":
		return NewSupabaseStore(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.SupabaseUploadBucket, cfg.SupabaseOutputBucket)
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", cfg.StorageBackend)
	}
}
