package llm

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"net"
	"time"

	"golang.org/x/time/rate"
)

// Options bounds every call made through a Client.
type Options struct {
	// MaxRetries is the number of extra attempts for transient failures.
	MaxRetries int
	// RequestTimeout bounds a single backend call. A timeout is a transient failure.
	RequestTimeout time.Duration

	// RateLimitRPS is a global limit across all callers. Set to <=0 to disable.
	RateLimitRPS float64

	// BackoffInitial is the initial sleep before retrying a transient failure.
	BackoffInitial time.Duration
	// BackoffMax caps exponential backoff.
	BackoffMax time.Duration
	// BackoffJitterFrac applies +/- jitter to backoff sleeps (0.2 = +/-20%).
	BackoffJitterFrac float64
}

func (o Options) withDefaults() Options {
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 30 * time.Second
	}
	if o.BackoffInitial <= 0 {
		o.BackoffInitial = 200 * time.Millisecond
	}
	if o.BackoffMax <= 0 {
		o.BackoffMax = 2 * time.Second
	}
	if o.BackoffJitterFrac < 0 {
		o.BackoffJitterFrac = 0
	}
	return o
}

// Client wraps a backend with a global rate limit, a per-call timeout and
// bounded retry of transient failures. It is safe for concurrent use.
type Client struct {
	next    Generator
	opts    Options
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewClient wraps next with the call policy in opts.
func NewClient(next Generator, opts Options, logger *slog.Logger) *Client {
	opts = opts.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		next:   next,
		opts:   opts,
		logger: logger,
	}
	if opts.RateLimitRPS > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimitRPS), 1)
	}
	return c
}

// Generate calls the backend, retrying transient failures with backoff.
func (c *Client) Generate(ctx context.Context, p Prompt) (string, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return "", err
			}
		}

		reqCtx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout)
		start := time.Now()
		out, err := c.next.Generate(reqCtx, p)
		cancel()
		if err == nil {
			c.logger.Debug("generation complete",
				"purpose", p.Purpose,
				"attempt", attempt+1,
				"duration", time.Since(start).Round(time.Millisecond))
			return out, nil
		}
		lastErr = err

		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !retryable(err) || attempt >= c.opts.MaxRetries {
			return "", lastErr
		}

		sleep := backoffSleep(c.opts.BackoffInitial, c.opts.BackoffMax, c.opts.BackoffJitterFrac, attempt)
		c.logger.Debug("generation failed, retrying",
			"purpose", p.Purpose,
			"attempt", attempt+1,
			"max_retries", c.opts.MaxRetries,
			"backoff", sleep,
			"error", err)

		t := time.NewTimer(sleep)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return "", ctx.Err()
		}
	}
}

func retryable(err error) bool {
	if err == nil {
		return false
	}
	if IsTransient(err) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return false
}

func backoffSleep(initial, max time.Duration, jitterFrac float64, attempt int) time.Duration {
	sleep := initial
	for i := 0; i < attempt && sleep < max; i++ {
		sleep *= 2
		if sleep > max {
			sleep = max
			break
		}
	}
	if jitterFrac <= 0 {
		return sleep
	}
	j := 1 + (rand.Float64()*2-1)*jitterFrac
	return time.Duration(float64(sleep) * j)
}
