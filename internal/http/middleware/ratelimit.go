package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/luissimon96/migration-validation-voe/internal/http/response"
	"github.com/luissimon96/migration-validation-voe/internal/pkg/ctxutil"
)

// EndpointClass names one of the distinct rate-limit buckets a request
// falls into. Limits are enforced per (tenant, class) pair so one noisy
// tenant never exhausts another's budget.
type EndpointClass string

const (
	ClassAuth       EndpointClass = "auth"
	ClassUpload     EndpointClass = "upload"
	ClassValidation EndpointClass = "validation"
	ClassAPIGeneral EndpointClass = "api_general"
	ClassDownload   EndpointClass = "download"
)

// classLimits mirrors the original's RateLimitConfig table: auth (5/min),
// upload (10/5min), validation (20/hour), api_general (100/min),
// download (50/5min).
var classLimits = map[EndpointClass]struct {
	requests int
	window   time.Duration
}{
	ClassAuth:       {requests: 5, window: time.Minute},
	ClassUpload:     {requests: 10, window: 5 * time.Minute},
	ClassValidation: {requests: 20, window: time.Hour},
	ClassAPIGeneral: {requests: 100, window: time.Minute},
	ClassDownload:   {requests: 50, window: 5 * time.Minute},
}

// RateLimiter keys a rate.Limiter per (tenant, class), creating one lazily
// on first use and reusing it for the process lifetime.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{limiters: make(map[string]*rate.Limiter)}
}

func (rl *RateLimiter) limiterFor(tenantID string, class EndpointClass) *rate.Limiter {
	key := tenantID + "|" + string(class)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if l, ok := rl.limiters[key]; ok {
		return l
	}
	cfg := classLimits[class]
	l := rate.NewLimiter(rate.Every(cfg.window/time.Duration(cfg.requests)), cfg.requests)
	rl.limiters[key] = l
	return l
}

// Limit returns gin middleware enforcing class's ceiling for the
// requesting tenant (or a shared "" tenant bucket for unauthenticated
// requests, e.g. login attempts).
func (rl *RateLimiter) Limit(class EndpointClass) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := ""
		if rd := ctxutil.GetRequestData(c.Request.Context()); rd != nil {
			tenantID = rd.TenantID
		}
		limiter := rl.limiterFor(tenantID, class)
		if !limiter.Allow() {
			response.RespondError(c, http.StatusTooManyRequests, "rate_limited", errRateLimited(class))
			c.Abort()
			return
		}
		c.Next()
	}
}

type rateLimitedError struct {
	class EndpointClass
}

func (e rateLimitedError) Error() string {
	return "rate limit exceeded for " + string(e.class)
}

func errRateLimited(class EndpointClass) error {
	return rateLimitedError{class: class}
}
