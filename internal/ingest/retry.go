package ingest

import (
	"time"

	"github.com/joseph-ayodele/bookkeeper/internal/llm"
	"github.com/joseph-ayodele/bookkeeper/internal/pipeline"
)

// RetryPolicy decides whether a failed document is tried again before it is archived
// for review. The zero value (and MaxAttempts 1) never retries.
type RetryPolicy struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	RetryRateLimit bool
	RetryNetwork   bool
}

// ShouldRetry reports whether attempt (1-based, already made) may be followed by another.
func (p RetryPolicy) ShouldRetry(perr *pipeline.ProcessingError, attempt int) bool {
	if perr == nil || attempt >= p.MaxAttempts {
		return false
	}
	switch perr.Kind {
	case llm.KindRateLimit:
		return p.RetryRateLimit
	case llm.KindNetwork:
		return p.RetryNetwork
	default:
		return false
	}
}

// Delay is exponential from BaseDelay, capped at MaxDelay. A vendor hint wins when longer.
func (p RetryPolicy) Delay(attempt int, hint time.Duration) time.Duration {
	d := p.BaseDelay
	if d <= 0 {
		d = time.Second
	}
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			break
		}
	}
	if hint > d {
		d = hint
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}
