package comparator

import (
	"context"
	"testing"

	"github.com/luissimon96/migration-validation-voe/internal/domain/voe"
)

func TestNormalizePathPatternFoldsVariableSyntax(t *testing.T) {
	if normalizePathPattern("/users/{id}") != normalizePathPattern("/users/:id") {
		t.Fatalf("expected brace and colon path-variable syntax to normalize identically")
	}
}

func TestCompareEndpointsMissingMethodIsCritical(t *testing.T) {
	c := testComparator(t)
	source := []voe.APIEndpoint{{ID: "1", Path: "/users/{id}", Methods: []string{"GET", "DELETE"}}}
	target := []voe.APIEndpoint{{ID: "1", Path: "/users/:id", Methods: []string{"GET"}}}

	res, err := c.compareEndpoints(context.Background(), source, target, voe.ScopeFull)
	if err != nil {
		t.Fatalf("compareEndpoints: %v", err)
	}
	if len(res.Discrepancies) != 1 {
		t.Fatalf("expected one discrepancy, got %+v", res.Discrepancies)
	}
	if res.Discrepancies[0].Severity != voe.SeverityCritical {
		t.Fatalf("expected a missing method to be critical, got %v", res.Discrepancies[0].Severity)
	}
}

func TestCompareEndpointsExtraMethodIsWarning(t *testing.T) {
	c := testComparator(t)
	source := []voe.APIEndpoint{{ID: "1", Path: "/users", Methods: []string{"GET"}}}
	target := []voe.APIEndpoint{{ID: "1", Path: "/users", Methods: []string{"GET", "POST"}}}

	res, err := c.compareEndpoints(context.Background(), source, target, voe.ScopeFull)
	if err != nil {
		t.Fatalf("compareEndpoints: %v", err)
	}
	if len(res.Discrepancies) != 1 || res.Discrepancies[0].Severity != voe.SeverityWarning {
		t.Fatalf("expected a single warning-severity discrepancy, got %+v", res.Discrepancies)
	}
}

func TestCompareEndpointsUnmatchedPathsBecomeMissingAndAdditional(t *testing.T) {
	c := testComparator(t)
	source := []voe.APIEndpoint{{ID: "1", Path: "/legacy"}}
	target := []voe.APIEndpoint{{ID: "2", Path: "/v2/resource"}}

	res, err := c.compareEndpoints(context.Background(), source, target, voe.ScopeFull)
	if err != nil {
		t.Fatalf("compareEndpoints: %v", err)
	}
	if len(res.Discrepancies) != 2 {
		t.Fatalf("expected one missing and one additional discrepancy, got %+v", res.Discrepancies)
	}
}
