package imagegen

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"server/internal/providers/genai"
)

// stubCaller scripts one outcome per call, in order.
type stubCaller struct {
	results []*genai.Result
	errs    []error
	prompts []string
	calls   int
}

func (s *stubCaller) Generate(_ context.Context, prompt string, _ [][]byte) (*genai.Result, error) {
	i := s.calls
	s.calls++
	s.prompts = append(s.prompts, prompt)
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	if i < len(s.results) && s.results[i] != nil {
		return s.results[i], nil
	}
	return &genai.Result{Image: []byte{byte(i)}, ModelName: "stub-model"}, nil
}

func (s *stubCaller) Model() string { return "stub-model" }

func intPtr(v int) *int { return &v }

func newTestRunner(caller Caller, sleeps *[]time.Duration) *Runner {
	return NewRunner(BatchOptions{
		Caller:           caller,
		MaxRetries:       2,
		BaseBackoff:      2 * time.Second,
		RateLimitBackoff: 10 * time.Second,
		Sleep: func(d time.Duration) {
			if sleeps != nil {
				*sleeps = append(*sleeps, d)
			}
		},
	})
}

func TestRunProducesAllVariations(t *testing.T) {
	caller := &stubCaller{}
	runner := newTestRunner(caller, nil)

	res, err := runner.Run(context.Background(), "base prompt", [][]byte{{0xAA}}, nil)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(res.Images) != VariationCount {
		t.Fatalf("got %d images, want %d", len(res.Images), VariationCount)
	}
	if caller.calls != VariationCount {
		t.Fatalf("caller invoked %d times, want %d", caller.calls, VariationCount)
	}
	for i, prompt := range caller.prompts {
		if !strings.HasPrefix(prompt, "base prompt") {
			t.Errorf("prompt %d lost the base prompt", i)
		}
		if !strings.Contains(prompt, "CAMERA ANGLE: "+AngleInstruction(i)) {
			t.Errorf("prompt %d missing angle instruction", i)
		}
		if !strings.Contains(prompt, "face") {
			t.Errorf("prompt %d does not pin the face visible", i)
		}
	}
}

func TestRunRetriesTransientFailureWithBackoff(t *testing.T) {
	caller := &stubCaller{
		errs: []error{
			genai.Retryable(errors.New("flaky")),
			genai.Retryable(errors.New("flaky again")),
		},
	}
	var sleeps []time.Duration
	runner := newTestRunner(caller, &sleeps)

	res, err := runner.Run(context.Background(), "p", nil, nil)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(res.Images) != VariationCount {
		t.Fatalf("got %d images, want %d", len(res.Images), VariationCount)
	}
	// Two transient failures on variation 0: 2s then 4s.
	want := []time.Duration{2 * time.Second, 4 * time.Second}
	if len(sleeps) != len(want) {
		t.Fatalf("recorded sleeps %v, want %v", sleeps, want)
	}
	for i := range want {
		if sleeps[i] != want[i] {
			t.Errorf("sleep %d = %v, want %v", i, sleeps[i], want[i])
		}
	}
}

func TestRunRateLimitUsesLongerBackoff(t *testing.T) {
	caller := &stubCaller{
		errs: []error{genai.RateLimited(errors.New("429"))},
	}
	var sleeps []time.Duration
	runner := newTestRunner(caller, &sleeps)

	if _, err := runner.Run(context.Background(), "p", nil, nil); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(sleeps) != 1 || sleeps[0] != 10*time.Second {
		t.Fatalf("recorded sleeps %v, want [10s]", sleeps)
	}
}

func TestRunFatalErrorFailsImmediately(t *testing.T) {
	caller := &stubCaller{
		errs: []error{genai.Fatal(errors.New("bad request"))},
	}
	var sleeps []time.Duration
	runner := newTestRunner(caller, &sleeps)

	_, err := runner.Run(context.Background(), "p", nil, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if caller.calls != 1 {
		t.Errorf("fatal failure retried: %d calls", caller.calls)
	}
	if len(sleeps) != 0 {
		t.Errorf("fatal failure slept: %v", sleeps)
	}
	if !strings.Contains(err.Error(), "variation 0") {
		t.Errorf("error does not name the variation: %v", err)
	}
}

func TestRunExhaustedRetriesFailsBatch(t *testing.T) {
	var errs []error
	for i := 0; i < 3; i++ {
		errs = append(errs, genai.Retryable(fmt.Errorf("transient %d", i)))
	}
	caller := &stubCaller{errs: errs}
	var sleeps []time.Duration
	runner := newTestRunner(caller, &sleeps)

	_, err := runner.Run(context.Background(), "p", nil, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if caller.calls != 3 {
		t.Errorf("caller invoked %d times, want 3 (1 + 2 retries)", caller.calls)
	}
	if !strings.Contains(err.Error(), "failed after 3 attempts") {
		t.Errorf("error = %v", err)
	}
}

func TestRunSumsTokenUsage(t *testing.T) {
	caller := &stubCaller{
		results: []*genai.Result{
			{Image: []byte{0}, InputTokens: intPtr(10), OutputTokens: intPtr(100)},
			{Image: []byte{1}, InputTokens: intPtr(20)},
			{Image: []byte{2}, InputTokens: intPtr(30), OutputTokens: intPtr(300)},
		},
	}
	runner := newTestRunner(caller, nil)

	res, err := runner.Run(context.Background(), "p", nil, nil)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if res.InputTokens == nil || *res.InputTokens != 60 {
		t.Errorf("InputTokens = %v, want 60", res.InputTokens)
	}
	if res.OutputTokens == nil || *res.OutputTokens != 400 {
		t.Errorf("OutputTokens = %v, want 400", res.OutputTokens)
	}
}

func TestRunNoUsageReportedLeavesTotalsNil(t *testing.T) {
	caller := &stubCaller{}
	runner := newTestRunner(caller, nil)

	res, err := runner.Run(context.Background(), "p", nil, nil)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if res.InputTokens != nil || res.OutputTokens != nil {
		t.Error("token totals should be nil when no call reported usage")
	}
}

func TestRunCancelledContextStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	caller := &stubCaller{}
	runner := newTestRunner(caller, nil)

	if _, err := runner.Run(ctx, "p", nil, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if caller.calls != 0 {
		t.Errorf("caller invoked after cancellation: %d calls", caller.calls)
	}
}
