package assistant

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/arogyasahayak/sahayak/internal/persona"
	"github.com/arogyasahayak/sahayak/internal/providers"
)

type scriptedCall struct {
	content string
	err     error
}

// fakeProvider replays a scripted sequence of outcomes; the last entry
// repeats once the script runs out. It records every request it sees.
type fakeProvider struct {
	name    string
	script  []scriptedCall
	calls   int
	prompts []string
}

func (f *fakeProvider) Name() string    { return f.name }
func (f *fakeProvider) Available() bool { return true }

func (f *fakeProvider) Complete(_ context.Context, req providers.CompletionRequest) (providers.CompletionResponse, error) {
	idx := f.calls
	if idx >= len(f.script) {
		idx = len(f.script) - 1
	}
	f.calls++
	f.prompts = append(f.prompts, req.SystemPrompt)

	step := f.script[idx]
	if step.err != nil {
		return providers.CompletionResponse{}, step.err
	}
	return providers.CompletionResponse{Content: step.content, Provider: f.name}, nil
}

func apiErr(status int, body string) error {
	return &providers.APIError{Provider: "fake", Status: status, Body: body}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestClient(stack providers.Stack, opts Options) (*Client, *[]time.Duration) {
	c := New(stack, persona.NewRegistry("en"), opts, testLogger())
	var sleeps []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}
	return c, &sleeps
}

func userSays(text string) Request {
	return Request{
		Messages: []providers.Message{{Role: providers.RoleUser, Content: text}},
		Persona:  persona.General,
		Language: "en",
	}
}

func TestPrimarySuccessSkipsFallback(t *testing.T) {
	primary := &fakeProvider{name: "primary", script: []scriptedCall{{content: "**Drink** water"}}}
	fallback := &fakeProvider{name: "fb-1", script: []scriptedCall{{content: "unused"}}}

	c, _ := newTestClient(providers.Stack{Primary: primary, Fallbacks: []providers.Provider{fallback}}, Options{})

	res, err := c.Complete(context.Background(), userSays("hydration?"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.OK() {
		t.Fatalf("expected OK, got %s", res.Status)
	}
	if res.Content != "Drink water" {
		t.Errorf("content not cleaned: %q", res.Content)
	}
	if primary.calls != 1 {
		t.Errorf("primary calls = %d, want 1", primary.calls)
	}
	if fallback.calls != 0 {
		t.Errorf("fallback must not be called on primary success, got %d calls", fallback.calls)
	}
}

func TestPrimaryFailureFallsBack(t *testing.T) {
	primary := &fakeProvider{name: "primary", script: []scriptedCall{{err: apiErr(500, "boom")}}}
	fallback := &fakeProvider{name: "fb-1", script: []scriptedCall{{content: "from fallback"}}}

	c, _ := newTestClient(providers.Stack{Primary: primary, Fallbacks: []providers.Provider{fallback}}, Options{})

	res, err := c.Complete(context.Background(), userSays("hi"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Content != "from fallback" {
		t.Errorf("expected fallback content, got %q", res.Content)
	}
	if primary.calls != 1 {
		t.Errorf("primary retried: %d calls, want single shot", primary.calls)
	}
}

func TestPrimaryEmptyBodyFallsBack(t *testing.T) {
	primary := &fakeProvider{name: "primary", script: []scriptedCall{{content: "   "}}}
	fallback := &fakeProvider{name: "fb-1", script: []scriptedCall{{content: "real answer"}}}

	c, _ := newTestClient(providers.Stack{Primary: primary, Fallbacks: []providers.Provider{fallback}}, Options{})

	res, _ := c.Complete(context.Background(), userSays("hi"))
	if res.Content != "real answer" {
		t.Errorf("empty primary body should fall back, got %q", res.Content)
	}
}

func TestFallbackOrdering(t *testing.T) {
	primary := &fakeProvider{name: "primary", script: []scriptedCall{{err: apiErr(500, "down")}}}
	fb1 := &fakeProvider{name: "fb-1", script: []scriptedCall{{err: apiErr(500, "down")}}}
	fb2 := &fakeProvider{name: "fb-2", script: []scriptedCall{{err: apiErr(500, "down")}}}
	fb3 := &fakeProvider{name: "fb-3", script: []scriptedCall{{content: "**finally**"}}}

	stack := providers.Stack{
		Primary:   primary,
		Fallbacks: []providers.Provider{fb1, fb2, fb3},
	}
	c, _ := newTestClient(stack, Options{MaxRetries: 2})

	res, err := c.Complete(context.Background(), userSays("hi"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Content != "finally" {
		t.Errorf("expected cleaned success from last model, got %q", res.Content)
	}
	if res.Model != "fb-3" {
		t.Errorf("result model = %q, want fb-3", res.Model)
	}
	if fb1.calls != 2 || fb2.calls != 2 {
		t.Errorf("earlier models must exhaust their retries in order: fb1=%d fb2=%d, want 2 each", fb1.calls, fb2.calls)
	}
	if fb3.calls != 1 {
		t.Errorf("fb3 calls = %d, want 1", fb3.calls)
	}
}

func TestBillingTerminalOnPrimary(t *testing.T) {
	primary := &fakeProvider{name: "primary", script: []scriptedCall{{err: apiErr(http.StatusPaymentRequired, "payment required")}}}
	fallback := &fakeProvider{name: "fb-1", script: []scriptedCall{{content: "unused"}}}

	c, _ := newTestClient(providers.Stack{Primary: primary, Fallbacks: []providers.Provider{fallback}}, Options{})

	res, err := c.Complete(context.Background(), userSays("hi"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != StatusBillingExhausted {
		t.Fatalf("status = %s, want billing_exhausted", res.Status)
	}
	if res.Text() != MsgBillingExhausted {
		t.Errorf("rendered text = %q", res.Text())
	}
	if fallback.calls != 0 {
		t.Errorf("billing exhaustion must stop all further attempts, fallback called %d times", fallback.calls)
	}
}

func TestBillingTerminalOnFallback(t *testing.T) {
	fb1 := &fakeProvider{name: "fb-1", script: []scriptedCall{{err: apiErr(http.StatusPaymentRequired, "payment required")}}}
	fb2 := &fakeProvider{name: "fb-2", script: []scriptedCall{{content: "unused"}}}

	c, _ := newTestClient(providers.Stack{Fallbacks: []providers.Provider{fb1, fb2}}, Options{})

	res, _ := c.Complete(context.Background(), userSays("hi"))
	if res.Status != StatusBillingExhausted {
		t.Fatalf("status = %s, want billing_exhausted", res.Status)
	}
	if fb1.calls != 1 || fb2.calls != 0 {
		t.Errorf("attempt counts fb1=%d fb2=%d, want 1 and 0", fb1.calls, fb2.calls)
	}
}

func TestDailyQuotaTerminal(t *testing.T) {
	fb := &fakeProvider{name: "fb-1", script: []scriptedCall{
		{err: apiErr(http.StatusTooManyRequests, `{"error":"free-models-per-day limit exceeded"}`)},
	}}

	c, sleeps := newTestClient(providers.Stack{Fallbacks: []providers.Provider{fb}}, Options{QuotaMarker: "free-models-per-day"})

	res, _ := c.Complete(context.Background(), userSays("hi"))
	if res.Status != StatusDailyQuotaExceeded {
		t.Fatalf("status = %s, want daily_quota_exceeded", res.Status)
	}
	if res.Text() != MsgDailyQuotaExceeded {
		t.Errorf("rendered text = %q", res.Text())
	}
	if fb.calls != 1 {
		t.Errorf("daily quota must be terminal, got %d calls", fb.calls)
	}
	if len(*sleeps) != 0 {
		t.Errorf("no backoff expected on daily quota, slept %v", *sleeps)
	}
}

func TestRateLimitBackoffSequence(t *testing.T) {
	fb := &fakeProvider{name: "fb-1", script: []scriptedCall{
		{err: apiErr(http.StatusTooManyRequests, "slow down")},
	}}

	c, sleeps := newTestClient(providers.Stack{Fallbacks: []providers.Provider{fb}}, Options{MaxRetries: 4, QuotaMarker: "free-models-per-day"})

	res, err := c.Complete(context.Background(), userSays("hi"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != StatusHighDemand {
		t.Fatalf("status = %s, want high_demand", res.Status)
	}
	if fb.calls != 4 {
		t.Errorf("calls = %d, want 4", fb.calls)
	}

	// Interleaved waits: rate-limit backoff after each 429 plus the
	// general retry backoff before each re-attempt. The final attempt
	// returns the high-demand literal without sleeping again.
	want := []time.Duration{
		5 * time.Second,  // rate-limit after attempt 0
		2 * time.Second,  // retry backoff before attempt 1
		10 * time.Second, // rate-limit after attempt 1
		4 * time.Second,  // retry backoff before attempt 2
		20 * time.Second, // rate-limit after attempt 2
		8 * time.Second,  // retry backoff before attempt 3
	}
	got := *sleeps
	if len(got) != len(want) {
		t.Fatalf("sleep count = %d (%v), want %d", len(got), got, len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sleep[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestRateLimitBackoffCap(t *testing.T) {
	prev := time.Duration(0)
	for attempt := 0; attempt < 10; attempt++ {
		d := rateLimitBackoff(attempt)
		if d < prev {
			t.Errorf("backoff decreased at attempt %d: %v < %v", attempt, d, prev)
		}
		if d > 30*time.Second {
			t.Errorf("backoff exceeds cap at attempt %d: %v", attempt, d)
		}
		prev = d
	}
	if got := rateLimitBackoff(3); got != 30*time.Second {
		t.Errorf("rateLimitBackoff(3) = %v, want capped 30s", got)
	}
}

func TestExhaustionCountsAttempts(t *testing.T) {
	primary := &fakeProvider{name: "primary", script: []scriptedCall{{err: apiErr(500, "down")}}}
	fb1 := &fakeProvider{name: "fb-1", script: []scriptedCall{{err: apiErr(500, "down")}}}
	fb2 := &fakeProvider{name: "fb-2", script: []scriptedCall{{err: apiErr(500, "down")}}}

	stack := providers.Stack{Primary: primary, Fallbacks: []providers.Provider{fb1, fb2}}
	c, _ := newTestClient(stack, Options{MaxRetries: 3})

	res, err := c.Complete(context.Background(), userSays("hi"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != StatusExhausted {
		t.Fatalf("status = %s, want exhausted", res.Status)
	}
	if res.Text() != MsgExhausted {
		t.Errorf("rendered text = %q", res.Text())
	}
	if primary.calls != 1 {
		t.Errorf("primary calls = %d, want 1", primary.calls)
	}
	if fb1.calls != 3 || fb2.calls != 3 {
		t.Errorf("fallback attempts fb1=%d fb2=%d, want maxRetries=3 each", fb1.calls, fb2.calls)
	}
}

func TestUpstreamUnavailableMovesToNextModel(t *testing.T) {
	fb1 := &fakeProvider{name: "fb-1", script: []scriptedCall{{err: apiErr(http.StatusServiceUnavailable, "maintenance")}}}
	fb2 := &fakeProvider{name: "fb-2", script: []scriptedCall{{content: "ok"}}}

	c, _ := newTestClient(providers.Stack{Fallbacks: []providers.Provider{fb1, fb2}}, Options{MaxRetries: 2})

	res, _ := c.Complete(context.Background(), userSays("hi"))
	if res.Content != "ok" {
		t.Fatalf("expected success from second model, got %s %q", res.Status, res.Content)
	}
	if fb1.calls != 2 {
		t.Errorf("fb1 calls = %d, want full retry budget before moving on", fb1.calls)
	}
}

func TestEmptySuccessBodyIsTerminal(t *testing.T) {
	fb1 := &fakeProvider{name: "fb-1", script: []scriptedCall{{content: ""}}}
	fb2 := &fakeProvider{name: "fb-2", script: []scriptedCall{{content: "unused"}}}

	c, _ := newTestClient(providers.Stack{Fallbacks: []providers.Provider{fb1, fb2}}, Options{})

	res, _ := c.Complete(context.Background(), userSays("hi"))
	if res.Status != StatusUnprocessable {
		t.Fatalf("status = %s, want unprocessable", res.Status)
	}
	if res.Text() != MsgUnprocessable {
		t.Errorf("rendered text = %q", res.Text())
	}
	if fb2.calls != 0 {
		t.Errorf("empty body is terminal, second model called %d times", fb2.calls)
	}
}

func TestNetworkErrorRetriesThenNextModel(t *testing.T) {
	fb1 := &fakeProvider{name: "fb-1", script: []scriptedCall{{err: errors.New("dial tcp: connection refused")}}}
	fb2 := &fakeProvider{name: "fb-2", script: []scriptedCall{{content: "recovered"}}}

	c, _ := newTestClient(providers.Stack{Fallbacks: []providers.Provider{fb1, fb2}}, Options{MaxRetries: 2})

	res, _ := c.Complete(context.Background(), userSays("hi"))
	if res.Content != "recovered" {
		t.Fatalf("expected recovery on next model, got %s %q", res.Status, res.Content)
	}
	if fb1.calls != 2 {
		t.Errorf("fb1 calls = %d, want 2", fb1.calls)
	}
}

func TestLanguageDirectiveReachesProvider(t *testing.T) {
	fb := &fakeProvider{name: "fb-1", script: []scriptedCall{{content: "ok"}}}
	c, _ := newTestClient(providers.Stack{Fallbacks: []providers.Provider{fb}}, Options{})

	req := userSays("வணக்கம்")
	req.Language = "ta"
	if _, err := c.Complete(context.Background(), req); err != nil {
		t.Fatal(err)
	}

	if len(fb.prompts) != 1 {
		t.Fatalf("prompts recorded = %d", len(fb.prompts))
	}
	if !strings.Contains(fb.prompts[0], "Tamil") {
		t.Errorf("system prompt missing Tamil directive: %q", fb.prompts[0])
	}

	fb2 := &fakeProvider{name: "fb-1", script: []scriptedCall{{content: "ok"}}}
	c2, _ := newTestClient(providers.Stack{Fallbacks: []providers.Provider{fb2}}, Options{})
	if _, err := c2.Complete(context.Background(), userSays("hello")); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(fb2.prompts[0], "Respond ONLY in") {
		t.Errorf("default language must not carry a directive: %q", fb2.prompts[0])
	}
}

func TestContextCancellationAbortsRetryLoop(t *testing.T) {
	fb := &fakeProvider{name: "fb-1", script: []scriptedCall{{err: apiErr(http.StatusTooManyRequests, "slow down")}}}

	c := New(providers.Stack{Fallbacks: []providers.Provider{fb}}, persona.NewRegistry("en"), Options{MaxRetries: 5}, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	c.sleep = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}

	res, err := c.Complete(ctx, userSays("hi"))
	if err == nil {
		t.Fatal("expected context error")
	}
	if res.Status != StatusExhausted {
		t.Errorf("status = %s, want exhausted", res.Status)
	}
	if fb.calls != 1 {
		t.Errorf("calls after cancellation = %d, want 1", fb.calls)
	}
}
