// Package assistant implements the resilient completion client: one
// primary provider tried once, then an ordered list of fallback models
// with bounded per-model retries, deterministic backoff, and rate-limit
// aware waiting. Raw provider failures never escape to callers; every
// outcome is a Result.
package assistant

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/arogyasahayak/sahayak/internal/persona"
	"github.com/arogyasahayak/sahayak/internal/providers"
	"github.com/arogyasahayak/sahayak/internal/textclean"
)

const (
	defaultMaxRetries = 3

	// Rate-limit backoff grows from this base and never exceeds the cap.
	rateLimitBase = 5000 * time.Millisecond
	rateLimitCap  = 30000 * time.Millisecond
)

// sleepFunc waits for d or until ctx is done. Injected in tests.
type sleepFunc func(ctx context.Context, d time.Duration) error

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Options configure a Client beyond its provider stack.
type Options struct {
	MaxRetries  int     // per fallback model (default 3)
	Temperature float64 // forwarded to providers
	MaxTokens   int     // forwarded to providers
	QuotaMarker string  // substring of a 429 body signaling the daily cap
}

// Client produces completions over a fixed-priority provider stack. It is
// stateless across calls and safe for concurrent use.
type Client struct {
	stack       providers.Stack
	registry    *persona.Registry
	maxRetries  int
	temperature float64
	maxTokens   int
	quotaMarker string
	logger      *slog.Logger
	sleep       sleepFunc
}

func New(stack providers.Stack, registry *persona.Registry, opts Options, logger *slog.Logger) *Client {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	return &Client{
		stack:       stack,
		registry:    registry,
		maxRetries:  opts.MaxRetries,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
		quotaMarker: opts.QuotaMarker,
		logger:      logger,
		sleep:       sleepCtx,
	}
}

// Request is one completion call. Messages are oldest first; the caller
// appends the new user turn before calling. An empty message list is
// passed through to the provider unchanged.
type Request struct {
	Messages       []providers.Message
	Persona        persona.Kind
	Language       string
	MaxRetries     int // overrides the client default when > 0
	SessionContext map[string]any
}

// Complete runs the full attempt matrix and always produces a Result.
// The returned error is non-nil only when ctx was canceled or its
// deadline passed; provider failures are folded into the Result.
func (c *Client) Complete(ctx context.Context, req Request) (Result, error) {
	systemPrompt := c.registry.SystemPrompt(req.Persona, req.Language, req.SessionContext)

	preq := providers.CompletionRequest{
		SystemPrompt: systemPrompt,
		Messages:     req.Messages,
		Temperature:  c.temperature,
		MaxTokens:    c.maxTokens,
	}

	maxRetries := req.MaxRetries
	if maxRetries <= 0 {
		maxRetries = c.maxRetries
	}

	// Tier 1: primary provider, single shot. Anything short of a usable
	// body moves on to the fallback tier, except billing exhaustion,
	// which is terminal wherever it appears.
	if p := c.stack.Primary; p != nil && p.Available() {
		resp, err := p.Complete(ctx, preq)
		switch {
		case err == nil && strings.TrimSpace(resp.Content) != "":
			return Result{Status: StatusOK, Content: textclean.Clean(resp.Content), Model: resp.Provider}, nil
		case err == nil:
			c.logger.Warn("primary returned empty body, falling back", "provider", p.Name())
		default:
			if apiErr, ok := providers.AsAPIError(err); ok && apiErr.Status == http.StatusPaymentRequired {
				c.logger.Error("primary billing limit reached", "provider", p.Name())
				return Result{Status: StatusBillingExhausted}, nil
			}
			c.logger.Warn("primary failed, falling back",
				"provider", p.Name(),
				"error", err,
				"reason", providers.Classify(err).String(),
			)
		}
		if ctx.Err() != nil {
			return Result{Status: StatusExhausted}, ctx.Err()
		}
	}

	// Tier 2: fallback models, fixed order, maxRetries attempts each.
	for mi, p := range c.stack.Fallbacks {
		lastModel := mi == len(c.stack.Fallbacks)-1

		for attempt := 0; attempt < maxRetries; attempt++ {
			lastAttempt := attempt == maxRetries-1

			if attempt > 0 {
				if err := c.sleep(ctx, time.Duration(1<<attempt)*time.Second); err != nil {
					return Result{Status: StatusExhausted}, err
				}
			}

			resp, err := p.Complete(ctx, preq)
			if err == nil {
				if strings.TrimSpace(resp.Content) == "" {
					c.logger.Warn("fallback returned empty body", "model", p.Name())
					return Result{Status: StatusUnprocessable}, nil
				}
				return Result{Status: StatusOK, Content: textclean.Clean(resp.Content), Model: resp.Provider}, nil
			}

			if ctx.Err() != nil {
				return Result{Status: StatusExhausted}, ctx.Err()
			}

			apiErr, ok := providers.AsAPIError(err)
			if !ok {
				c.logger.Warn("fallback request failed",
					"model", p.Name(),
					"attempt", attempt,
					"error", err,
				)
				continue
			}

			switch apiErr.Status {
			case http.StatusPaymentRequired:
				c.logger.Error("fallback billing limit reached", "model", p.Name())
				return Result{Status: StatusBillingExhausted}, nil

			case http.StatusTooManyRequests:
				if c.quotaMarker != "" && strings.Contains(apiErr.Body, c.quotaMarker) {
					c.logger.Warn("daily quota exhausted", "model", p.Name())
					return Result{Status: StatusDailyQuotaExceeded}, nil
				}
				// A 429 without the quota marker may mean the provider
				// changed its error text; log so the drift is visible.
				c.logger.Warn("rate limited without quota marker",
					"model", p.Name(),
					"attempt", attempt,
					"body", apiErr.Body,
				)
				if lastAttempt && lastModel {
					return Result{Status: StatusHighDemand}, nil
				}
				if err := c.sleep(ctx, rateLimitBackoff(attempt)); err != nil {
					return Result{Status: StatusExhausted}, err
				}

			case http.StatusBadGateway, http.StatusServiceUnavailable:
				c.logger.Warn("fallback model unavailable",
					"model", p.Name(),
					"attempt", attempt,
					"status", apiErr.Status,
				)
				if lastAttempt {
					// Exhausted retries here; the next model takes over.
					continue
				}

			default:
				c.logger.Warn("fallback request failed",
					"model", p.Name(),
					"attempt", attempt,
					"status", apiErr.Status,
				)
			}
		}
	}

	c.logger.Error("all providers exhausted")
	return Result{Status: StatusExhausted}, nil
}

// rateLimitBackoff is the deliberate wait after a transient 429 on the
// given attempt index: 5000·2^attempt ms, capped at 30 s. Deterministic
// and unjittered so retry timing stays predictable.
func rateLimitBackoff(attempt int) time.Duration {
	d := rateLimitBase * time.Duration(1<<attempt)
	if d > rateLimitCap {
		return rateLimitCap
	}
	return d
}
