package genai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"server/internal/infra"
)

// Options controls how the Gemini client is configured.
type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Client is a lightweight facade over the Gemini generateContent REST API.
// Each call renders exactly one output image from a prompt plus inline
// reference images. Failures carry a retry classification so callers can
// branch on the tag instead of parsing messages.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *infra.Logger
}

// Result is the outcome of one successful generation call. Token counts are
// nil when the provider omits usage metadata.
type Result struct {
	Image        []byte
	MIMEType     string
	InputTokens  *int
	OutputTokens *int
	ModelName    string
	DurationMS   int64
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts,omitempty"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

type geminiGenerationConfig struct {
	CandidateCount   int    `json:"candidateCount,omitempty"`
	ResponseMimeType string `json:"responseMimeType,omitempty"`
}

type geminiGenerateContentRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
}

type geminiUsageMetadata struct {
	PromptTokenCount     *int `json:"promptTokenCount,omitempty"`
	CandidatesTokenCount *int `json:"candidatesTokenCount,omitempty"`
}

type geminiGenerateContentResponse struct {
	Candidates    []geminiCandidate    `json:"candidates"`
	UsageMetadata *geminiUsageMetadata `json:"usageMetadata,omitempty"`
}

type geminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error"`
}

// NewClient constructs a Gemini client with sane defaults. Callers may provide
// a nil HTTP client; a reusable one with a generous timeout will be created.
func NewClient(opts Options) (*Client, error) {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 120 * time.Second}
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}

	model := opts.Model
	if model == "" {
		model = "gemini-2.0-flash-exp-image-generation"
	}

	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}

	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		model:      model,
		httpClient: client,
		logger:     logger,
	}, nil
}

// Model returns the configured Gemini model identifier.
func (c *Client) Model() string {
	return c.model
}

// Generate issues one generateContent call: all reference images as inline
// parts, then the prompt text, asking for a single jpeg candidate. The first
// inline image part of the response is the rendered variation.
func (c *Client) Generate(ctx context.Context, prompt string, images [][]byte) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.apiKey == "" {
		return nil, Fatal(fmt.Errorf("gemini api key is not configured"))
	}

	parts := make([]geminiPart, 0, len(images)+1)
	for _, img := range images {
		parts = append(parts, geminiPart{InlineData: &geminiInlineData{
			MimeType: "image/jpeg",
			Data:     base64.StdEncoding.EncodeToString(img),
		}})
	}
	parts = append(parts, geminiPart{Text: prompt})

	payload := geminiGenerateContentRequest{
		Contents: []geminiContent{{Role: "user", Parts: parts}},
		GenerationConfig: &geminiGenerationConfig{
			CandidateCount:   1,
			ResponseMimeType: "image/jpeg",
		},
	}

	start := time.Now()
	var response geminiGenerateContentResponse
	if err := c.invoke(ctx, fmt.Sprintf("/models/%s:generateContent", url.PathEscape(c.model)), payload, &response); err != nil {
		return nil, err
	}
	elapsed := time.Since(start).Milliseconds()

	image, mime := firstInlineImage(response)
	if len(image) == 0 {
		// A well-formed response without image data is worth another attempt.
		return nil, Retryable(fmt.Errorf("gemini returned no image data"))
	}

	result := &Result{
		Image:      image,
		MIMEType:   mime,
		ModelName:  c.model,
		DurationMS: elapsed,
	}
	if response.UsageMetadata != nil {
		result.InputTokens = response.UsageMetadata.PromptTokenCount
		result.OutputTokens = response.UsageMetadata.CandidatesTokenCount
	}

	c.logger.Debug().
		Str("model", c.model).
		Int64("duration_ms", elapsed).
		Int("image_bytes", len(image)).
		Msg("genai: generated image")

	return result, nil
}

func (c *Client) invoke(ctx context.Context, path string, payload any, out any) error {
	endpoint := c.baseURL + path
	body, err := json.Marshal(payload)
	if err != nil {
		return Fatal(fmt.Errorf("marshal request: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Fatal(fmt.Errorf("create request: %w", err))
	}
	q := req.URL.Query()
	q.Set("key", c.apiKey)
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Network-level failures are transient until proven otherwise.
		return Retryable(fmt.Errorf("invoke gemini: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return c.classifyHTTPError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return Fatal(fmt.Errorf("decode gemini response: %w", err))
	}
	return nil
}

func (c *Client) classifyHTTPError(resp *http.Response) error {
	msg := fmt.Sprintf("gemini status %d", resp.StatusCode)
	var apiErr geminiErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error.Message != "" {
		msg = fmt.Sprintf("gemini status %d: %s", resp.StatusCode, apiErr.Error.Message)
	} else if data, _ := io.ReadAll(resp.Body); len(data) > 0 {
		msg = fmt.Sprintf("gemini status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return RateLimited(fmt.Errorf("%s", msg))
	case resp.StatusCode >= http.StatusInternalServerError:
		return Retryable(fmt.Errorf("%s", msg))
	default:
		// Remaining 4xx (bad request, auth) will not improve on retry.
		return Fatal(fmt.Errorf("%s", msg))
	}
}

func firstInlineImage(resp geminiGenerateContentResponse) ([]byte, string) {
	for _, candidate := range resp.Candidates {
		for _, part := range candidate.Content.Parts {
			if part.InlineData == nil || part.InlineData.Data == "" {
				continue
			}
			data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
			if err != nil || len(data) == 0 {
				continue
			}
			mime := part.InlineData.MimeType
			if mime == "" {
				mime = "image/jpeg"
			}
			return data, mime
		}
	}
	return nil, ""
}
