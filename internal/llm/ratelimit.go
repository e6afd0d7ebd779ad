package llm

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// ProviderLimiter is one provider's pair of token buckets: requests-per-
// minute and (if the provider enforces one) tokens-per-minute. Mutated
// under rate.Limiter's own short critical section — never held across an
// external call (§5 lock-ordering rule).
type ProviderLimiter struct {
	requests *rate.Limiter
	tokens   *rate.Limiter
}

// NewProviderLimiter builds a limiter from requests-per-minute and
// tokens-per-minute ceilings. tokensPerMinute of 0 disables token-bucket
// enforcement (some providers only rate-limit requests).
func NewProviderLimiter(requestsPerMinute int, tokensPerMinute int) *ProviderLimiter {
	l := &ProviderLimiter{
		requests: rate.NewLimiter(perMinute(requestsPerMinute), burstFor(requestsPerMinute)),
	}
	if tokensPerMinute > 0 {
		l.tokens = rate.NewLimiter(perMinute(tokensPerMinute), burstFor(tokensPerMinute))
	}
	return l
}

func perMinute(n int) rate.Limit {
	if n <= 0 {
		return rate.Inf
	}
	return rate.Limit(float64(n) / 60.0)
}

func burstFor(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}

// Wait blocks until both buckets admit the request. When ctx has a deadline
// a bucket cannot meet, that bucket's wait fails at once with the rate
// package's own error, not context.DeadlineExceeded. A request slot already
// taken is not returned when the token bucket then fails.
func (l *ProviderLimiter) Wait(ctx context.Context, estimatedTokens int) error {
	if err := l.requests.Wait(ctx); err != nil {
		return err
	}
	if l.tokens == nil || estimatedTokens <= 0 {
		return nil
	}
	return l.tokens.WaitN(ctx, estimatedTokens)
}

// WaitDeadline is a convenience wrapper that derives a bounded context from
// the caller's remaining budget before delegating to Wait.
func (l *ProviderLimiter) WaitDeadline(ctx context.Context, deadline time.Time, estimatedTokens int) error {
	boundedCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()
	return l.Wait(boundedCtx, estimatedTokens)
}
