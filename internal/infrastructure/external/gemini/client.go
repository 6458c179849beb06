package gemini

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/sppzpp/reportcard-hub/internal/domain/shared"
	"github.com/sppzpp/reportcard-hub/pkg/circuitbreaker"
	"github.com/sppzpp/reportcard-hub/pkg/logger"
	"github.com/sppzpp/reportcard-hub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ClientConfig contains configuration for the Gemini API client.
type ClientConfig struct {
	// BaseURL is the REST endpoint, e.g. https://generativelanguage.googleapis.com
	BaseURL string

	// LiveBaseURL is the host of the live API; empty means BaseURL. An http(s)
	// base is dialed as wss, a ws:// base is dialed as is.
	LiveBaseURL string

	// APIVersion defaults to v1beta
	APIVersion string

	// APIKey is sent as x-goog-api-key
	APIKey string

	// Timeout bounds a single non-streaming request
	Timeout time.Duration

	// MaxRetries is the number of attempts per call, the first one included
	MaxRetries int

	// RetryDelay is the first backoff step; zero keeps the preset
	RetryDelay time.Duration

	// Circuit breaker settings
	CircuitBreakerThreshold int
	CircuitBreakerTimeout   time.Duration

	// RateLimiterConfig for client-side quota protection
	RateLimiterConfig RateLimiterConfig

	// HTTPClient overrides the default transport (tests)
	HTTPClient *http.Client

	Logger *logger.Logger
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(baseURL, apiKey string) ClientConfig {
	return ClientConfig{
		BaseURL:                 baseURL,
		APIKey:                  apiKey,
		APIVersion:              "v1beta",
		Timeout:                 60 * time.Second,
		MaxRetries:              3,
		CircuitBreakerThreshold: 3,
		CircuitBreakerTimeout:   45 * time.Second,
		RateLimiterConfig:       DefaultRateLimiterConfig(),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client wraps the genai SDK with the circuit breaker, retries and the
// client-side rate limiter. It is safe for concurrent use.
type Client struct {
	config      ClientConfig
	api         *genai.Client // nil without an API key
	live        *genai.Client
	initErr     error
	log         *logger.Logger
	rateLimiter *RateLimiter
	breaker     *circuitbreaker.CircuitBreaker
	retrier     *retry.Retrier
}

// NewClient creates a new Gemini API client. Without an API key every call
// fails with shared.ErrGeminiNotConfigured.
func NewClient(config ClientConfig) *Client {
	if config.Logger == nil {
		config.Logger = logger.Nop()
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	if config.APIVersion == "" {
		config.APIVersion = "v1beta"
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	config.LiveBaseURL = strings.TrimRight(config.LiveBaseURL, "/")
	if config.LiveBaseURL == "" {
		config.LiveBaseURL = config.BaseURL
	}

	log := config.Logger.With(logger.Component("gemini"))

	c := &Client{
		config:      config,
		log:         log,
		rateLimiter: NewRateLimiter(config.RateLimiterConfig),
	}

	// Пустой ключ SDK берёт из GEMINI_API_KEY/GOOGLE_API_KEY, поэтому без
	// ключа клиент не создаётся вовсе.
	if config.APIKey != "" {
		c.api, c.initErr = c.newSDKClient(config.BaseURL)
		if c.initErr == nil {
			c.live, c.initErr = c.newSDKClient(config.LiveBaseURL)
		}
		if c.initErr != nil {
			log.Error("gemini client init failed", logger.Err(c.initErr))
		}
	}

	c.breaker = circuitbreaker.GeminiBreaker(
		func(name string, from, to circuitbreaker.State) {
			log.Warn("circuit breaker state changed",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()))
		},
		circuitbreaker.WithFailureThreshold(config.CircuitBreakerThreshold),
		circuitbreaker.WithTimeout(config.CircuitBreakerTimeout),
		circuitbreaker.WithIsFailure(isBreakerFailure),
	)

	c.retrier = retry.GeminiRetrier(
		shared.IsRetryable,
		retry.WithMaxAttempts(config.MaxRetries),
		retry.WithInitialDelay(config.RetryDelay),
		retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
			log.Warn("retrying gemini request",
				logger.Int("attempt", attempt),
				logger.Duration("delay", delay),
				logger.Err(err))
		}),
	)

	return c
}

// newSDKClient builds a genai client for one base URL. Deadlines come from
// the call context, so the HTTP client has no timeout of its own.
func (c *Client) newSDKClient(baseURL string) (*genai.Client, error) {
	httpClient := c.config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	opts := genai.HTTPOptions{APIVersion: c.config.APIVersion}
	if baseURL != "" {
		opts.BaseURL = baseURL + "/"
	}
	return genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:      c.config.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  httpClient,
		HTTPOptions: opts,
	})
}

// Configured reports whether an API key is set.
func (c *Client) Configured() bool {
	return c.config.APIKey != ""
}

func (c *Client) ready() error {
	switch {
	case !c.Configured():
		return shared.ErrGeminiNotConfigured
	case c.initErr != nil:
		return shared.WrapError("gemini", "Configure", shared.ErrInvalidState, "gemini client init failed", c.initErr)
	}
	return nil
}

// isBreakerFailure counts only provider-side failures. A rejected request or
// a caller that went away says nothing about the provider's health.
func isBreakerFailure(err error) bool {
	return circuitbreaker.IgnoreCanceled(err) && shared.IsExternalService(err) &&
		!errors.Is(err, shared.ErrRateLimited) && !isRejected(err)
}

// ══════════════════════════════════════════════════════════════════════════════
// GENERATE CONTENT
// ══════════════════════════════════════════════════════════════════════════════

// GenerateContent calls Models.GenerateContent.
func (c *Client) GenerateContent(ctx context.Context, model string, req *Request) (*genai.GenerateContentResponse, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	start := time.Now()
	var resp *genai.GenerateContentResponse
	err := c.guard(ctx, func(ctx context.Context) error {
		r, err := c.api.Models.GenerateContent(ctx, model, req.Contents, req.Config)
		if err != nil {
			return c.classify(ctx, "GenerateContent", err)
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := checkResponse(resp); err != nil {
		return nil, err
	}

	c.log.Debug("gemini content generated",
		logger.Model(model),
		logger.Latency(time.Since(start)),
		logger.Int("chars", len(resp.Text())))
	return resp, nil
}

// GenerateJSON calls GenerateContent and decodes the first candidate's text
// into v. The request should set ResponseMIMEType to application/json.
func (c *Client) GenerateJSON(ctx context.Context, model string, req *Request, v any) error {
	resp, err := c.GenerateContent(ctx, model, req)
	if err != nil {
		return err
	}
	return DecodeJSON(resp.Text(), v)
}

// StreamGenerateContent calls Models.GenerateContentStream and hands each
// non-empty text chunk to onChunk in order. It returns the concatenated text,
// also on failure. Attempts are retried only until the first chunk was
// delivered; after that a failure is returned as is.
func (c *Client) StreamGenerateContent(ctx context.Context, model string, req *Request, onChunk func(string) error) (string, error) {
	if err := c.ready(); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, 2*c.config.Timeout)
	defer cancel()

	const op = "StreamGenerateContent"
	var full strings.Builder
	err := c.guard(ctx, func(ctx context.Context) error {
		finished := false
		for resp, err := range c.api.Models.GenerateContentStream(ctx, model, req.Contents, req.Config) {
			if err != nil {
				err = c.classify(ctx, op, err)
				if full.Len() > 0 {
					return retry.Permanent(err)
				}
				return err
			}
			if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != "" {
				return retry.Permanent(blockedError(string(fb.BlockReason)))
			}
			if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != "" {
				finished = true
			}
			chunk := resp.Text()
			if chunk == "" {
				continue
			}
			full.WriteString(chunk)
			if err := onChunk(chunk); err != nil {
				return retry.Permanent(err)
			}
		}

		// SDK только логирует обрыв тела, поэтому обрыв виден по отсутствию finishReason.
		if err := ctx.Err(); err != nil {
			return retry.Permanent(classifyTransport(ctx, op, err))
		}
		switch {
		case full.Len() == 0:
			return retry.Permanent(shared.WrapError("gemini", op, shared.ErrGeminiInvalidResponse,
				"stream ended without text", nil))
		case !finished:
			return retry.Permanent(shared.WrapError("gemini", op, shared.ErrGeminiUnavailable,
				"stream ended before a finish reason", nil))
		}
		return nil
	})
	return full.String(), err
}

// ══════════════════════════════════════════════════════════════════════════════
// GUARD AND ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// guard runs fn behind the circuit breaker, with retries and the rate limiter.
func (c *Client) guard(ctx context.Context, fn func(context.Context) error) error {
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.retrier.Do(ctx, func(ctx context.Context) error {
			if err := c.rateLimiter.Wait(ctx); err != nil {
				var rl *RateLimitError
				if errors.As(err, &rl) {
					// Waiting again would only repeat the same wait.
					return retry.Permanent(shared.WrapError("gemini", "Request", shared.ErrGeminiRateLimited,
						"client-side quota exhausted", err))
				}
				return retry.Permanent(err)
			}
			return fn(ctx)
		})
	})
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
		return shared.WrapError("gemini", "Request", shared.ErrGeminiUnavailable, "circuit breaker is open", err)
	}
	return err
}

// classify maps an SDK error: provider answers by status code, everything
// else as a transport failure.
func (c *Client) classify(ctx context.Context, op string, err error) error {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return classifyTransport(ctx, op, err)
	}

	mapped := c.apiError(op, apiErr)
	c.log.Warn("gemini request failed",
		logger.Operation(op),
		logger.Int("status", apiErr.Code),
		logger.Err(mapped))
	return mapped
}

// apiError maps a provider error answer to a domain error.
func (c *Client) apiError(op string, apiErr genai.APIError) error {
	switch code := apiErr.Code; {
	case code == http.StatusTooManyRequests:
		delay := retryDelay(apiErr.Details)
		c.rateLimiter.RecordRateLimitHit(delay)
		err := shared.WrapError("gemini", op, shared.ErrGeminiRateLimited, "rate limited by provider", apiErr)
		if delay > 0 {
			return retry.After(err, delay)
		}
		return err
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return shared.WrapError("gemini", op, shared.ErrGeminiTimeout, "provider timed out", apiErr)
	case code >= 500:
		return shared.WrapError("gemini", op, shared.ErrGeminiUnavailable, "provider error", apiErr)
	default:
		return &rejectedError{err: shared.WrapError("gemini", op, shared.ErrExternalService, "request rejected", apiErr)}
	}
}

// rejectedError marks a 4xx answer: the request itself is wrong and neither
// retrying nor opening the breaker helps.
type rejectedError struct{ err error }

func (e *rejectedError) Error() string { return e.err.Error() }
func (e *rejectedError) Unwrap() error { return e.err }

func isRejected(err error) bool {
	var r *rejectedError
	return errors.As(err, &r)
}

// classifyTransport maps network and context errors.
func classifyTransport(ctx context.Context, op string, err error) error {
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return retry.Permanent(err)
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return shared.WrapError("gemini", op, shared.ErrGeminiTimeout, "request timed out", err)
	}
	var de *shared.DomainError
	if errors.As(err, &de) {
		return err
	}
	return shared.WrapError("gemini", op, shared.ErrGeminiUnavailable, "transport error", err)
}

// retryDelay reads the RetryInfo detail of a 429 answer ("32s").
func retryDelay(details []map[string]any) time.Duration {
	for _, d := range details {
		s, _ := d["retryDelay"].(string)
		if s == "" {
			continue
		}
		if v, err := time.ParseDuration(s); err == nil && v > 0 {
			return v
		}
	}
	return 0
}

func checkResponse(resp *genai.GenerateContentResponse) error {
	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != "" {
		return blockedError(string(fb.BlockReason))
	}
	if strings.TrimSpace(resp.Text()) == "" {
		var reason genai.FinishReason
		if len(resp.Candidates) > 0 {
			reason = resp.Candidates[0].FinishReason
		}
		return shared.WrapError("gemini", "GenerateContent", shared.ErrGeminiInvalidResponse,
			"empty candidate", fmt.Errorf("finish reason %q", reason))
	}
	return nil
}

func blockedError(reason string) error {
	return shared.WrapError("gemini", "GenerateContent", shared.ErrGeminiInvalidResponse,
		"prompt blocked", fmt.Errorf("block reason %q", reason))
}

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH AND STATUS
// ══════════════════════════════════════════════════════════════════════════════

// ClientStatus is a snapshot for health endpoints.
type ClientStatus struct {
	Configured     bool              `json:"configured"`
	CircuitBreaker string            `json:"circuit_breaker"`
	Failures       int               `json:"consecutive_failures"`
	OpenedAt       *time.Time        `json:"opened_at,omitempty"`
	RateLimiter    RateLimiterStatus `json:"rate_limiter"`
}

// Status returns the current status of the client.
func (c *Client) Status() ClientStatus {
	snap := c.breaker.Snapshot()
	st := ClientStatus{
		Configured:     c.Configured() && c.initErr == nil,
		CircuitBreaker: snap.State.String(),
		Failures:       snap.ConsecutiveFailures,
		RateLimiter:    c.rateLimiter.Status(),
	}
	if snap.State != circuitbreaker.StateClosed && !snap.OpenedAt.IsZero() {
		st.OpenedAt = &snap.OpenedAt
	}
	return st
}

// Reset resets the rate limiter and circuit breaker.
func (c *Client) Reset() {
	c.rateLimiter.Reset()
	c.breaker.Reset()
}
