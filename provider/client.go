// Package provider implements the subscription provider client used by
// reconciliation and webhook verification. Transient failures are retried
// with bounded exponential backoff; the distinguished not_found outcome and
// auth failures are never retried.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-membership/core"
	"github.com/goliatone/go-membership/ratelimit"
	"github.com/goliatone/go-membership/secrets"
)

const (
	defaultRequestTimeout  = 10 * time.Second
	defaultMaxAttempts     = 3
	defaultInitialBackoff  = 500 * time.Millisecond
	defaultMaxBackoff      = 10 * time.Second
	defaultResponseLimit   = 1 << 20 // 1 MiB
)

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RateLimitPolicy paces subscription lookups. *ratelimit.AdaptivePolicy
// satisfies it.
type RateLimitPolicy interface {
	BeforeCall(ctx context.Context, key ratelimit.Key) error
	AfterCall(ctx context.Context, key ratelimit.Key, meta ratelimit.ResponseMeta) error
}

type BackoffScheduler interface {
	NextDelay(attempt int) time.Duration
}

type ExponentialBackoffScheduler struct {
	Initial time.Duration
	Max     time.Duration
}

func (s ExponentialBackoffScheduler) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	initial := s.Initial
	if initial <= 0 {
		initial = defaultInitialBackoff
	}
	max := s.Max
	if max <= 0 {
		max = defaultMaxBackoff
	}

	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

type Config struct {
	BaseURL        string
	APIKey         string
	RequestTimeout time.Duration
	MaxAttempts    int
}

// Client talks to the payment provider's subscription API. Every lookup is
// bounded: a per-request timeout plus at most MaxAttempts tries.
type Client struct {
	config  Config
	client  HTTPDoer
	logger  glog.Logger
	backoff BackoffScheduler
	limits  RateLimitPolicy
	cipher  secrets.Cipher

	// sleep is swapped out in tests so retries do not wall-clock wait.
	sleep func(ctx context.Context, delay time.Duration) error
}

type Option func(*Client)

func WithHTTPClient(client HTTPDoer) Option {
	return func(c *Client) {
		if client != nil {
			c.client = client
		}
	}
}

func WithLogger(logger glog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithBackoffScheduler(scheduler BackoffScheduler) Option {
	return func(c *Client) {
		if scheduler != nil {
			c.backoff = scheduler
		}
	}
}

func WithRateLimitPolicy(policy RateLimitPolicy) Option {
	return func(c *Client) {
		if policy != nil {
			c.limits = policy
		}
	}
}

// WithSecretCipher lets Config.APIKey carry a secrets envelope instead of a
// plaintext key. Resolution happens once, at construction.
func WithSecretCipher(cipher secrets.Cipher) Option {
	return func(c *Client) {
		if cipher != nil {
			c.cipher = cipher
		}
	}
}

func NewClient(cfg Config, options ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("provider: base url is required")
	}
	if _, err := url.Parse(strings.TrimSpace(cfg.BaseURL)); err != nil {
		return nil, fmt.Errorf("provider: invalid base url: %w", err)
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = defaultMaxAttempts
	}

	client := &Client{
		config:  cfg,
		client:  &http.Client{Timeout: cfg.RequestTimeout},
		backoff: ExponentialBackoffScheduler{},
		sleep:   sleepWithContext,
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(client)
	}
	client.logger = glog.Ensure(client.logger)

	apiKey, err := secrets.ResolveString(context.Background(), client.cipher, client.config.APIKey)
	if err != nil {
		return nil, fmt.Errorf("provider: resolve api key: %w", err)
	}
	client.config.APIKey = apiKey
	return client, nil
}

type subscriptionPayload struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type errorPayload struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// GetSubscription fetches the provider's view of one subscription. Transient
// failures (timeouts, 5xx, 429) are retried with exponential backoff up to
// MaxAttempts; not_found and auth failures return immediately.
func (c *Client) GetSubscription(ctx context.Context, subscriptionID string) (core.ExternalSubscription, error) {
	if c == nil {
		return core.ExternalSubscription{}, fmt.Errorf("provider: client is not configured")
	}
	subscriptionID = strings.TrimSpace(subscriptionID)
	if subscriptionID == "" {
		return core.ExternalSubscription{}, fmt.Errorf("provider: subscription id is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var lastErr error
	for attempt := 1; attempt <= c.config.MaxAttempts; attempt++ {
		subscription, err := c.fetchSubscription(ctx, subscriptionID)
		if err == nil {
			return subscription, nil
		}
		lastErr = err

		if !isTransient(err) {
			return core.ExternalSubscription{}, err
		}
		if attempt == c.config.MaxAttempts {
			break
		}

		delay := c.backoff.NextDelay(attempt)
		// The provider's own retry hint beats the blind backoff schedule.
		var throttled ratelimit.ThrottledError
		if errors.As(err, &throttled) && throttled.RetryAfter > 0 {
			delay = throttled.RetryAfter
		}
		c.logger.Warn("provider lookup retry",
			"subscription_id", subscriptionID,
			"attempt", attempt,
			"delay_ms", delay.Milliseconds(),
			"error", err.Error(),
		)
		if sleepErr := c.sleep(ctx, delay); sleepErr != nil {
			return core.ExternalSubscription{}, core.NewProviderError(
				core.ProviderErrorCodeTimeout,
				"subscription lookup canceled while backing off",
				sleepErr,
			)
		}
	}
	return core.ExternalSubscription{}, lastErr
}

func (c *Client) fetchSubscription(ctx context.Context, subscriptionID string) (core.ExternalSubscription, error) {
	if c.limits != nil {
		if err := c.limits.BeforeCall(ctx, subscriptionBucket()); err != nil {
			var throttled ratelimit.ThrottledError
			if errors.As(err, &throttled) {
				return core.ExternalSubscription{}, core.NewProviderError(
					core.ProviderErrorCodeUnavailable,
					"subscription lookup throttled",
					throttled,
				)
			}
			// A broken limit store must not take lookups down with it.
			c.logger.Warn("rate limit check failed, proceeding",
				"subscription_id", subscriptionID,
				"error", err.Error(),
			)
		}
	}

	requestCtx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	endpoint := strings.TrimRight(strings.TrimSpace(c.config.BaseURL), "/") +
		"/subscriptions/" + url.PathEscape(subscriptionID)

	req, err := http.NewRequestWithContext(requestCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return core.ExternalSubscription{}, core.NewProviderError(
			core.ProviderErrorCodeInternal,
			"create subscription request",
			err,
		)
	}
	req.Header.Set("Accept", "application/json")
	if key := strings.TrimSpace(c.config.APIKey); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	res, err := c.client.Do(req)
	if err != nil {
		code := core.ProviderErrorCodeUnavailable
		if errors.Is(err, context.DeadlineExceeded) || requestCtx.Err() != nil {
			code = core.ProviderErrorCodeTimeout
		}
		return core.ExternalSubscription{}, core.NewProviderError(code, "execute subscription request", err)
	}
	defer res.Body.Close()

	c.recordResponse(ctx, subscriptionID, res)

	body, err := io.ReadAll(io.LimitReader(res.Body, defaultResponseLimit))
	if err != nil {
		return core.ExternalSubscription{}, core.NewProviderError(
			core.ProviderErrorCodeUnavailable,
			"read subscription response",
			err,
		)
	}

	switch {
	case res.StatusCode == http.StatusOK:
		var payload subscriptionPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			return core.ExternalSubscription{}, core.NewProviderError(
				core.ProviderErrorCodeInternal,
				"decode subscription response",
				err,
			)
		}
		return core.ExternalSubscription{
			ID:     strings.TrimSpace(payload.ID),
			Status: strings.TrimSpace(strings.ToLower(payload.Status)),
		}, nil
	case res.StatusCode == http.StatusNotFound:
		return core.ExternalSubscription{}, core.NewProviderError(
			core.ProviderErrorCodeNotFound,
			fmt.Sprintf("subscription %s not found", subscriptionID),
			nil,
		)
	case res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden:
		return core.ExternalSubscription{}, core.NewProviderError(
			core.ProviderErrorCodeUnauthorized,
			decodeErrorMessage(body, "subscription request rejected"),
			nil,
		)
	case res.StatusCode == http.StatusRequestTimeout:
		return core.ExternalSubscription{}, core.NewProviderError(
			core.ProviderErrorCodeTimeout,
			decodeErrorMessage(body, "subscription request timed out"),
			nil,
		)
	case res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= http.StatusInternalServerError:
		return core.ExternalSubscription{}, core.NewProviderError(
			core.ProviderErrorCodeUnavailable,
			decodeErrorMessage(body, fmt.Sprintf("provider returned status %d", res.StatusCode)),
			nil,
		)
	default:
		return core.ExternalSubscription{}, core.NewProviderError(
			core.ProviderErrorCodeInternal,
			fmt.Sprintf("unexpected provider status %d", res.StatusCode),
			nil,
		)
	}
}

// recordResponse feeds limit headers back into the pacing policy.
func (c *Client) recordResponse(ctx context.Context, subscriptionID string, res *http.Response) {
	if c.limits == nil || res == nil {
		return
	}
	headers := make(map[string]string, len(res.Header))
	for name := range res.Header {
		headers[name] = res.Header.Get(name)
	}
	err := c.limits.AfterCall(ctx, subscriptionBucket(), ratelimit.ResponseMeta{
		StatusCode: res.StatusCode,
		Headers:    headers,
	})
	if err != nil {
		c.logger.Warn("rate limit bookkeeping failed",
			"subscription_id", subscriptionID,
			"error", err.Error(),
		)
	}
}

func subscriptionBucket() ratelimit.Key {
	return ratelimit.Key{Provider: "payments", Bucket: "subscriptions"}
}

func decodeErrorMessage(body []byte, fallback string) string {
	var payload errorPayload
	if err := json.Unmarshal(body, &payload); err == nil {
		if msg := strings.TrimSpace(payload.Error.Message); msg != "" {
			return msg
		}
	}
	return fallback
}

// isTransient gates the retry loop: only timeouts and availability failures
// qualify. not_found is a business outcome and unauthorized will not heal on
// its own.
func isTransient(err error) bool {
	switch core.ProviderErrorCode(err) {
	case core.ProviderErrorCodeTimeout, core.ProviderErrorCodeUnavailable:
		return true
	}
	return false
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var (
	_ core.SubscriptionProviderClient = (*Client)(nil)
	_ RateLimitPolicy                 = (*ratelimit.AdaptivePolicy)(nil)
)
