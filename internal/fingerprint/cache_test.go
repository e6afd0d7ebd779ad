package fingerprint

import (
	"context"
	"testing"

	"github.com/luissimon96/migration-validation-voe/internal/pkg/logger"
)

func cacheTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(log.Sync)
	return log
}

func TestPingIsANoOpWithoutARedisClient(t *testing.T) {
	c := NewCache(cacheTestLogger(t), nil)
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("expected a nil-backed cache to report healthy, got %v", err)
	}
}
