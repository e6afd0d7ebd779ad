package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestRateLimiterAllowsRequestsWithinBurst(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter()

	r := gin.New()
	r.Use(rl.Limit(ClassAuth))
	r.POST("/login", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < classLimits[ClassAuth].requests; i++ {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/login", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200 within burst, got %d", i, rec.Code)
		}
	}
}

func TestRateLimiterRejectsOnceBurstIsExhausted(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter()

	r := gin.New()
	r.Use(rl.Limit(ClassAuth))
	r.POST("/login", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < classLimits[ClassAuth].requests; i++ {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/login", nil))
	}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/login", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 once the burst is exhausted, got %d", rec.Code)
	}
}

func TestRateLimiterKeepsSeparateBucketsPerTenant(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter()

	limiterA := rl.limiterFor("tenant-a", ClassAuth)
	for i := 0; i < classLimits[ClassAuth].requests; i++ {
		if !limiterA.Allow() {
			t.Fatalf("tenant-a request %d unexpectedly throttled", i)
		}
	}
	if limiterA.Allow() {
		t.Fatalf("expected tenant-a to be exhausted")
	}

	limiterB := rl.limiterFor("tenant-b", ClassAuth)
	if !limiterB.Allow() {
		t.Fatalf("expected tenant-b to have its own untouched bucket")
	}
}
