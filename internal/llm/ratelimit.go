package llm

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// RateLimited spaces outbound calls to a provider so a burst of dropped files
// does not trip vendor throttling.
type RateLimited struct {
	next    Provider
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewRateLimited wraps p with a limiter of perMinute requests. perMinute <= 0 returns p unchanged.
func NewRateLimited(p Provider, perMinute int, logger *slog.Logger) Provider {
	if perMinute <= 0 {
		return p
	}
	if logger == nil {
		logger = slog.Default()
	}
	every := time.Minute / time.Duration(perMinute)
	return &RateLimited{next: p, limiter: rate.NewLimiter(rate.Every(every), 1), logger: logger}
}

func (r *RateLimited) Name() string { return r.next.Name() }

// Extract waits for a token; if the context would expire first the call is reported as rate_limit.
func (r *RateLimited) Extract(ctx context.Context, doc Document, categories []string) Result {
	start := time.Now()
	if err := r.limiter.Wait(ctx); err != nil {
		r.logger.Warn("llm.ratelimit.wait_failed", "provider", r.next.Name(), "error", err)
		return Failed(r.next.Name(), &ExtractionError{Kind: KindRateLimit, Message: "local rate limit exceeded", Cause: err})
	}
	if waited := time.Since(start); waited > 100*time.Millisecond {
		r.logger.Debug("llm.ratelimit.waited", "provider", r.next.Name(), "waited_ms", waited.Milliseconds())
	}
	return r.next.Extract(ctx, doc, categories)
}
