package comparator

import (
	"context"
	"testing"

	"github.com/luissimon96/migration-validation-voe/internal/domain/voe"
)

func TestCompareFunctionsIdentityMatch(t *testing.T) {
	c := testComparator(t)
	source := []voe.BackendFunction{
		{ID: "1", Name: "CreateUser", Parameters: []voe.Parameter{{Name: "name", Type: "string"}}, ReturnType: "User"},
	}
	target := []voe.BackendFunction{
		{ID: "1", Name: "CreateUser", Parameters: []voe.Parameter{{Name: "name", Type: "varchar"}}, ReturnType: "User"},
	}

	res, err := c.compareFunctions(context.Background(), source, target, voe.ScopeFull)
	if err != nil {
		t.Fatalf("compareFunctions: %v", err)
	}
	if len(res.Discrepancies) != 0 {
		t.Fatalf("expected no discrepancies for an equivalent parameter type, got %+v", res.Discrepancies)
	}
	if res.Score != 1.0 {
		t.Fatalf("expected a perfect score, got %v", res.Score)
	}
}

func TestCompareFunctionsSignatureMismatchIsCritical(t *testing.T) {
	c := testComparator(t)
	source := []voe.BackendFunction{
		{ID: "1", Name: "CreateUser", Parameters: []voe.Parameter{{Name: "name", Type: "string"}}},
	}
	target := []voe.BackendFunction{
		{ID: "1", Name: "CreateUser", Parameters: []voe.Parameter{{Name: "name", Type: "string"}, {Name: "age", Type: "int"}}},
	}

	res, err := c.compareFunctions(context.Background(), source, target, voe.ScopeFull)
	if err != nil {
		t.Fatalf("compareFunctions: %v", err)
	}
	if len(res.Discrepancies) != 1 {
		t.Fatalf("expected exactly one discrepancy, got %+v", res.Discrepancies)
	}
	if res.Discrepancies[0].Severity != voe.SeverityCritical {
		t.Fatalf("expected critical severity, got %v", res.Discrepancies[0].Severity)
	}
}

func TestCompareFunctionsUIScopeCapsCriticalToWarning(t *testing.T) {
	c := testComparator(t)
	source := []voe.BackendFunction{{ID: "1", Name: "Render", ReturnType: "string"}}
	target := []voe.BackendFunction{{ID: "1", Name: "Render", ReturnType: "int"}}

	res, err := c.compareFunctions(context.Background(), source, target, voe.ScopeUI)
	if err != nil {
		t.Fatalf("compareFunctions: %v", err)
	}
	if len(res.Discrepancies) != 1 {
		t.Fatalf("expected exactly one discrepancy, got %+v", res.Discrepancies)
	}
	if res.Discrepancies[0].Severity == voe.SeverityCritical {
		t.Fatalf("expected UI scope to cap critical severity, got %v", res.Discrepancies[0].Severity)
	}
}

func TestCompareFunctionsMissingAndAdditional(t *testing.T) {
	c := testComparator(t)
	source := []voe.BackendFunction{{ID: "1", Name: "DeprecatedHelper"}}
	target := []voe.BackendFunction{{ID: "2", Name: "NewHelper"}}

	res, err := c.compareFunctions(context.Background(), source, target, voe.ScopeFull)
	if err != nil {
		t.Fatalf("compareFunctions: %v", err)
	}
	if len(res.Discrepancies) != 2 {
		t.Fatalf("expected one missing and one additional discrepancy, got %+v", res.Discrepancies)
	}
	var kinds []voe.DiscrepancyKind
	for _, d := range res.Discrepancies {
		kinds = append(kinds, d.Kind)
	}
	if !containsKind(kinds, voe.DiscrepancyKindMissing) || !containsKind(kinds, voe.DiscrepancyKindAdditional) {
		t.Fatalf("expected missing and additional kinds, got %v", kinds)
	}
}

func containsKind(kinds []voe.DiscrepancyKind, want voe.DiscrepancyKind) bool {
	for _, k := range kinds {
		if k == want {
			return true
		}
	}
	return false
}
