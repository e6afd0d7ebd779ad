package llm

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/luissimon96/migration-validation-voe/internal/domain/voe"
	"github.com/luissimon96/migration-validation-voe/internal/fingerprint"
	"github.com/luissimon96/migration-validation-voe/internal/pkg/logger"
)

const (
	retryBaseDelay = 250 * time.Millisecond
	retryMaxDelay  = 4 * time.Second
	defaultRetries = 3
)

// Dispatcher is C2: provider ordering with failover, per-provider rate
// limiting, retry with full-jitter backoff, circuit breakers, a
// cache-before-dispatch path at low temperature, budget accounting, and
// single-flight suppression of duplicate calls within a stage.
type Dispatcher struct {
	log *logger.Logger

	providers []Provider
	breakers  map[string]*CircuitBreaker
	limiters  map[string]*ProviderLimiter

	cache      *fingerprint.Cache
	flight     singleflight.Group
	maxRetries int
}

// ProviderConfig pairs a Provider with its rate-limit ceilings. Order in
// the slice passed to NewDispatcher is the failover order.
type ProviderConfig struct {
	Provider          Provider
	RequestsPerMinute int
	TokensPerMinute   int
}

func NewDispatcher(log *logger.Logger, configs []ProviderConfig, cache *fingerprint.Cache) *Dispatcher {
	d := &Dispatcher{
		log:        log.With("service", "LLMDispatcher"),
		breakers:   make(map[string]*CircuitBreaker, len(configs)),
		limiters:   make(map[string]*ProviderLimiter, len(configs)),
		cache:      cache,
		maxRetries: defaultRetries,
	}
	for _, c := range configs {
		d.providers = append(d.providers, c.Provider)
		d.breakers[c.Provider.Name()] = NewCircuitBreaker()
		d.limiters[c.Provider.Name()] = NewProviderLimiter(c.RequestsPerMinute, c.TokensPerMinute)
	}
	return d
}

// Ask dispatches one LLM Envelope. ctx's deadline, if set, is the hard
// deadline the call must respect (rate-limit waits, retries, and the
// single-flight wait all share it). budget may be nil to skip accounting
// (used by components that run outside a session, e.g. CLI dry-runs).
func (d *Dispatcher) Ask(ctx context.Context, req Request, budget *Budget) (Response, error) {
	if req.Temperature == TemperatureLow {
		if hit, ok := d.lookupCache(ctx, req); ok {
			return hit, nil
		}
	}

	key := dedupeKey(req)
	result, err, _ := d.flight.Do(key, func() (interface{}, error) {
		return d.dispatchWithFailover(ctx, req, budget)
	})
	if err != nil {
		return Response{}, err
	}
	resp := result.(Response)

	if req.Temperature == TemperatureLow && !resp.CacheHit {
		d.storeCache(ctx, req, resp)
	}
	return resp, nil
}

// ProviderHealth reports each configured provider's circuit breaker state,
// keyed by provider name. Used by the health endpoint to surface degraded
// LLM backends without calling out to them.
func (d *Dispatcher) ProviderHealth() map[string]bool {
	health := make(map[string]bool, len(d.breakers))
	for name, b := range d.breakers {
		health[name] = !b.IsOpen()
	}
	return health
}

func (d *Dispatcher) lookupCache(ctx context.Context, req Request) (Response, bool) {
	if d.cache == nil {
		return Response{}, false
	}
	hash := fingerprint.LLMRequest(req.Model, req.SystemPrompt, req.UserPrompt, canonicalizeContext(req.Context), req.Temperature)
	val, ok := d.cache.Get(ctx, fingerprint.NamespaceLLM, hash)
	if !ok {
		return Response{}, false
	}
	return Response{Content: val, CacheHit: true}, true
}

func (d *Dispatcher) storeCache(ctx context.Context, req Request, resp Response) {
	if d.cache == nil {
		return
	}
	hash := fingerprint.LLMRequest(req.Model, req.SystemPrompt, req.UserPrompt, canonicalizeContext(req.Context), req.Temperature)
	d.cache.Put(ctx, fingerprint.NamespaceLLM, hash, resp.Content)
}

func dedupeKey(req Request) string {
	return fingerprint.LLMRequest(req.Model, req.SystemPrompt, req.UserPrompt, canonicalizeContext(req.Context), req.Temperature)
}

func canonicalizeContext(ctx map[string]any) string {
	if len(ctx) == 0 {
		return ""
	}
	var b strings.Builder
	for _, k := range sortedKeys(ctx) {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(toCanonicalString(ctx[k]))
		b.WriteByte(';')
	}
	return b.String()
}

func (d *Dispatcher) dispatchWithFailover(ctx context.Context, req Request, budget *Budget) (Response, error) {
	if budget != nil && !budget.Reserve(req.MaxTokens, 0) {
		return Response{}, voe.NewTaxonomyError(voe.ErrorKindBudgetExhausted, "budget-exhausted", 0, voe.ErrBudgetExhausted)
	}

	var lastErr error
	tried := 0
	for _, p := range d.providers {
		if req.Model != "" && !p.HostsModel(req.Model) {
			continue
		}
		breaker := d.breakers[p.Name()]
		allowed, _ := breaker.Allow()
		if !allowed {
			continue
		}
		tried++

		resp, err := d.callWithRetry(ctx, p, req)
		if err == nil {
			breaker.Report(true)
			if budget != nil {
				budget.Commit(resp.TokensUsed, int(resp.EstimatedCost*100))
			}
			return resp, nil
		}

		breaker.Report(false)

		var nonRecoverable *NonRecoverableError
		if errors.As(err, &nonRecoverable) {
			return Response{}, err
		}
		lastErr = err
	}

	if tried == 0 {
		return Response{}, voe.NewTaxonomyError(voe.ErrorKindProviderUnavailable, "provider-unavailable", 0, voe.ErrCircuitOpen)
	}
	if lastErr == nil {
		lastErr = voe.ErrProviderUnavailable
	}
	return Response{}, voe.NewTaxonomyError(voe.ErrorKindProviderUnavailable, "provider-unavailable", 0, lastErr)
}

func (d *Dispatcher) callWithRetry(ctx context.Context, p Provider, req Request) (Response, error) {
	limiter := d.limiters[p.Name()]

	var lastErr error
	for attempt := 0; attempt <= d.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return Response{}, ctx.Err()
		}

		if limiter != nil {
			if deadline, ok := ctx.Deadline(); ok {
				if err := limiter.WaitDeadline(ctx, deadline, req.MaxTokens); err != nil {
					return Response{}, voe.NewTaxonomyError(voe.ErrorKindDeadlineExceeded, "deadline-exceeded", 0, err)
				}
			} else if err := limiter.Wait(ctx, req.MaxTokens); err != nil {
				return Response{}, err
			}
		}

		resp, err := p.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !IsRecoverable(err) {
			return Response{}, err
		}
		if attempt == d.maxRetries {
			break
		}

		delay := fullJitterBackoff(attempt)
		select {
		case <-ctx.Done():
			return Response{}, ctx.Err()
		case <-time.After(delay):
		}
	}
	return Response{}, lastErr
}

// fullJitterBackoff returns a random delay in [0, min(cap, base*2^attempt)),
// the "full jitter" strategy: starts at 250ms, caps at 4s.
func fullJitterBackoff(attempt int) time.Duration {
	backoff := retryBaseDelay << attempt
	if backoff > retryMaxDelay || backoff <= 0 {
		backoff = retryMaxDelay
	}
	return time.Duration(rand.Int63n(int64(backoff)))
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}

func toCanonicalString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(v)
	}
}
