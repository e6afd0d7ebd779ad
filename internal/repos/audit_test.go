package repos

import (
	"context"
	"testing"

	"github.com/luissimon96/migration-validation-voe/internal/domain/voe"
)

func TestAuditLogAppendAndListByTenant(t *testing.T) {
	db := repoTestDB(t)
	repo := NewAuditLogRepo(db, repoTestLogger(t))
	ctx := context.Background()

	if err := repo.Append(ctx, nil, &voe.AuditLog{TenantID: "tenant-a", Action: "auth.api-key", Outcome: "success"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := repo.Append(ctx, nil, &voe.AuditLog{TenantID: "tenant-b", Action: "auth.bearer", Outcome: "failure"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	entries, err := repo.ListByTenant(ctx, nil, "tenant-a")
	if err != nil {
		t.Fatalf("ListByTenant: %v", err)
	}
	if len(entries) != 1 || entries[0].Action != "auth.api-key" {
		t.Fatalf("expected one tenant-scoped entry, got %+v", entries)
	}
}
