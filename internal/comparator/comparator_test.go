package comparator

import (
	"testing"

	"github.com/luissimon96/migration-validation-voe/internal/pkg/logger"
)

func testComparator(t *testing.T) *Comparator {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(log.Sync)
	return NewComparator(log, nil, "", nil)
}
