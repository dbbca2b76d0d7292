package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"ResearchRadar/internal/ports"
)

// Options tunes the client's pacing and retry behaviour.
type Options struct {
	// MinInterval is the minimum gap between provider calls, shared by
	// every caller of this client.
	MinInterval time.Duration
	// MaxAttempts bounds retries of a single query.
	MaxAttempts int
	// BaseDelay seeds the backoff for generic failures.
	BaseDelay time.Duration
	// RateLimitDelay seeds the backoff when the provider reports a
	// rate-limit refusal.
	RateLimitDelay time.Duration
	// Cooldown is inserted before the next batch query after a
	// rate-limit failure.
	Cooldown time.Duration
}

// DefaultOptions paces calls at roughly one every 1.5 seconds.
func DefaultOptions() Options {
	return Options{
		MinInterval:    1500 * time.Millisecond,
		MaxAttempts:    3,
		BaseDelay:      2 * time.Second,
		RateLimitDelay: 10 * time.Second,
		Cooldown:       5 * time.Second,
	}
}

// Client wraps a search provider with a shared inter-call rate limiter
// and exponential-backoff retries. All provider traffic, regardless of
// which project drives it, serializes through one limiter.
type Client struct {
	provider ports.SearchProvider
	limiter  *rate.Limiter
	opts     Options
	logger   *slog.Logger
}

// NewClient builds the rate-limited wrapper.
func NewClient(provider ports.SearchProvider, opts Options, logger *slog.Logger) *Client {
	if opts.MinInterval <= 0 {
		opts.MinInterval = DefaultOptions().MinInterval
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	return &Client{
		provider: provider,
		limiter:  rate.NewLimiter(rate.Every(opts.MinInterval), 1),
		opts:     opts,
		logger:   logger,
	}
}

// Name reports the wrapped provider's name.
func (c *Client) Name() string {
	return c.provider.Name()
}

// Search issues one query, waiting out the shared inter-call interval
// before each attempt and backing off between failures. A rate-limit
// classified failure uses a longer backoff base than a generic one.
func (c *Client) Search(ctx context.Context, query string, filters ports.SearchFilters) ([]ports.SearchResult, error) {
	var lastErr error

	for attempt := 1; attempt <= c.opts.MaxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}

		results, err := c.provider.Search(ctx, query, filters)
		if err == nil {
			return results, nil
		}
		lastErr = err

		if attempt == c.opts.MaxAttempts {
			break
		}

		delay := c.backoffDelay(err, attempt)
		c.warn("search attempt failed",
			"query", query,
			"attempt", attempt,
			"delay_ms", delay.Milliseconds(),
			"error", err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	return nil, fmt.Errorf("search %q after %d attempts: %w", query, c.opts.MaxAttempts, lastErr)
}

// SearchMultiple runs queries sequentially, keyed by query text. One
// query's permanent failure does not abort the batch; a rate-limited
// failure additionally cools down before the next query is issued.
func (c *Client) SearchMultiple(ctx context.Context, queries []string, filters ports.SearchFilters) (map[string][]ports.SearchResult, error) {
	results := make(map[string][]ports.SearchResult, len(queries))

	for i, query := range queries {
		hits, err := c.Search(ctx, query, filters)
		if err != nil {
			if ctx.Err() != nil {
				return results, ctx.Err()
			}

			c.warn("query failed permanently, continuing batch", "query", query, "error", err)

			if errors.Is(err, ports.ErrRateLimited) && i < len(queries)-1 && c.opts.Cooldown > 0 {
				select {
				case <-ctx.Done():
					return results, ctx.Err()
				case <-time.After(c.opts.Cooldown):
				}
			}
			continue
		}
		results[query] = hits
	}

	return results, nil
}

func (c *Client) backoffDelay(err error, attempt int) time.Duration {
	base := c.opts.BaseDelay
	if errors.Is(err, ports.ErrRateLimited) {
		base = c.opts.RateLimitDelay
	}
	if base <= 0 {
		base = time.Second
	}

	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
	}
	if delay > 60*time.Second {
		delay = 60 * time.Second
	}
	return delay
}

func (c *Client) warn(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Warn(msg, args...)
	}
}
