package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	storagego "github.com/supabase-community/storage-go"
)

// SupabaseStore persists objects in Supabase object storage. Uploaded garment
// photos and generated outputs live in separate buckets, selected by key
// prefix the same way the path layout separates them on disk.
type SupabaseStore struct {
	client       *storagego.Client
	baseURL      string
	uploadBucket string
	outputBucket string
}

// NewSupabaseStore builds a store talking to the storage API of the given
// Supabase project. serviceKey must be the service-role key; signed URL
// issuance is not available to anon keys.
func NewSupabaseStore(projectURL, serviceKey, uploadBucket, outputBucket string) (*SupabaseStore, error) {
	projectURL = strings.TrimRight(strings.TrimSpace(projectURL), "/")
	if projectURL == "" || strings.TrimSpace(serviceKey) == "" {
		return nil, fmt.Errorf("storage: supabase url and service key are required")
	}
	return &SupabaseStore{
		client:       storagego.NewClient(projectURL+"/storage/v1", serviceKey, nil),
		baseURL:      projectURL,
		uploadBucket: uploadBucket,
		outputBucket: outputBucket,
	}, nil
}

func (s *SupabaseStore) bucketFor(key string) string {
	if strings.HasPrefix(key, "uploads/") {
		return s.uploadBucket
	}
	return s.outputBucket
}

func (s *SupabaseStore) Save(ctx context.Context, key string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	contentType := contentTypeForKey(cleanKey)
	upsert := true
	_, err = s.client.UploadFile(s.bucketFor(cleanKey), cleanKey, bytes.NewReader(data), storagego.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	})
	if err != nil {
		return "", fmt.Errorf("storage: supabase upload: %w", err)
	}
	return cleanKey, nil
}

func (s *SupabaseStore) Load(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return nil, err
	}
	data, err := s.client.DownloadFile(s.bucketFor(cleanKey), cleanKey)
	if err != nil {
		if strings.Contains(err.Error(), "404") || strings.Contains(strings.ToLower(err.Error()), "not found") {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("storage: supabase download: %w", err)
	}
	return data, nil
}

func (s *SupabaseStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return err
	}
	if _, err := s.client.RemoveFile(s.bucketFor(cleanKey), []string{cleanKey}); err != nil {
		// Removing an absent object is a no-op.
		if strings.Contains(err.Error(), "404") || strings.Contains(strings.ToLower(err.Error()), "not found") {
			return nil
		}
		return fmt.Errorf("storage: supabase remove: %w", err)
	}
	return nil
}

func (s *SupabaseStore) SignedDownloadURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	resp, err := s.client.CreateSignedUrl(s.bucketFor(cleanKey), cleanKey, int(ttl.Seconds()))
	if err != nil {
		return "", fmt.Errorf("storage: supabase signed download url: %w", err)
	}
	return s.absoluteURL(resp.SignedURL), nil
}

func (s *SupabaseStore) SignedUploadURL(ctx context.Context, key, _ string, _ time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	resp, err := s.client.CreateSignedUploadUrl(s.bucketFor(cleanKey), cleanKey)
	if err != nil {
		return "", fmt.Errorf("storage: supabase signed upload url: %w", err)
	}
	return s.absoluteURL(resp.Url), nil
}

func (s *SupabaseStore) absoluteURL(u string) string {
	if strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
		return u
	}
	return s.baseURL + "/storage/v1" + "/" + strings.TrimLeft(u, "/")
}

func contentTypeForKey(key string) string {
	switch {
	case strings.HasSuffix(key, ".png"):
		return "image/png"
	case strings.HasSuffix(key, ".webp"):
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

var _ Store = (*SupabaseStore)(nil)
