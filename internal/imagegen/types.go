package imagegen

import (
	"context"

	"server/internal/providers/genai"
)

// Caller is the single-call generation capability driven once per variation.
type Caller interface {
	Generate(ctx context.Context, prompt string, images [][]byte) (*genai.Result, error)
	Model() string
}

// BatchResult is the all-or-nothing outcome of a variation batch. Images are
// ordered by variation index. Token totals are summed across calls and nil
// when no call reported usage.
type BatchResult struct {
	Images       [][]byte
	InputTokens  *int
	OutputTokens *int
	ModelName    string
	DurationMS   int64
}
