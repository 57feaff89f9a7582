package imagegen

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"server/internal/infra"
	"server/internal/providers/genai"
)

const (
	defaultMaxRetries     = 2
	defaultBaseBackoff    = 2 * time.Second
	defaultRateLimitDelay = 10 * time.Second
)

// BatchOptions configures a Runner.
type BatchOptions struct {
	Caller     Caller
	MaxRetries int
	// BaseBackoff is the first delay after a generic transient failure;
	// RateLimitBackoff after a 429. Both double per attempt.
	BaseBackoff      time.Duration
	RateLimitBackoff time.Duration
	Logger           *infra.Logger
	// Sleep is swappable for tests; defaults to time.Sleep.
	Sleep func(time.Duration)
}

// Runner drives one generation call per variation, retrying transient
// failures with exponential backoff. A variation that exhausts its retries
// fails the whole batch; partial variation sets are never returned.
type Runner struct {
	caller           Caller
	maxRetries       int
	baseBackoff      time.Duration
	rateLimitBackoff time.Duration
	logger           *infra.Logger
	sleep            func(time.Duration)
}

// NewRunner builds a Runner, filling in defaults for unset options.
func NewRunner(opts BatchOptions) *Runner {
	r := &Runner{
		caller:           opts.Caller,
		maxRetries:       opts.MaxRetries,
		baseBackoff:      opts.BaseBackoff,
		rateLimitBackoff: opts.RateLimitBackoff,
		logger:           opts.Logger,
		sleep:            opts.Sleep,
	}
	if r.maxRetries <= 0 {
		r.maxRetries = defaultMaxRetries
	}
	if r.baseBackoff <= 0 {
		r.baseBackoff = defaultBaseBackoff
	}
	if r.rateLimitBackoff <= 0 {
		r.rateLimitBackoff = defaultRateLimitDelay
	}
	if r.sleep == nil {
		r.sleep = time.Sleep
	}
	if r.logger == nil {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		r.logger = &l
	}
	return r
}

// Run generates the full variation batch. garments are the reference photos
// of the garment; modelPhoto, when non-nil, is appended as an additional
// conditioning image. The reported duration covers the whole batch including
// backoff sleeps.
func (r *Runner) Run(ctx context.Context, prompt string, garments [][]byte, modelPhoto []byte) (*BatchResult, error) {
	images := garments
	if len(modelPhoto) > 0 {
		images = append(append([][]byte(nil), garments...), modelPhoto)
	}

	start := time.Now()
	result := &BatchResult{
		Images:    make([][]byte, 0, VariationCount),
		ModelName: r.caller.Model(),
	}
	var inputTokens, outputTokens int
	var sawInput, sawOutput bool

	for variation := 0; variation < VariationCount; variation++ {
		variationPrompt := fmt.Sprintf("%s\n\nCAMERA ANGLE: %s", prompt, AngleInstruction(variation))

		call, err := r.runVariation(ctx, variation, variationPrompt, images)
		if err != nil {
			return nil, err
		}

		result.Images = append(result.Images, call.Image)
		if call.ModelName != "" {
			result.ModelName = call.ModelName
		}
		if call.InputTokens != nil {
			inputTokens += *call.InputTokens
			sawInput = true
		}
		if call.OutputTokens != nil {
			outputTokens += *call.OutputTokens
			sawOutput = true
		}
	}

	if sawInput {
		result.InputTokens = &inputTokens
	}
	if sawOutput {
		result.OutputTokens = &outputTokens
	}
	result.DurationMS = time.Since(start).Milliseconds()
	return result, nil
}

func (r *Runner) runVariation(ctx context.Context, variation int, prompt string, images [][]byte) (*genai.Result, error) {
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		call, err := r.caller.Generate(ctx, prompt, images)
		if err == nil {
			return call, nil
		}
		lastErr = err

		if !genai.IsRetryable(err) {
			return nil, fmt.Errorf("variation %d: %w", variation, err)
		}
		if attempt == r.maxRetries {
			break
		}

		delay := r.backoff(genai.ClassOf(err), attempt)
		r.logger.Warn().
			Err(err).
			Int("variation", variation).
			Int("attempt", attempt+1).
			Dur("backoff", delay).
			Msg("imagegen: transient failure, retrying")
		r.sleep(delay)
	}
	return nil, fmt.Errorf("variation %d failed after %d attempts: %w", variation, r.maxRetries+1, lastErr)
}

func (r *Runner) backoff(class genai.Classification, attempt int) time.Duration {
	base := r.baseBackoff
	if class == genai.ClassRateLimited {
		base = r.rateLimitBackoff
	}
	return base << attempt
}
