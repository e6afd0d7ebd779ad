package comparator

import (
	"context"
	"testing"

	"github.com/luissimon96/migration-validation-voe/internal/domain/voe"
)

func TestCompareUIElementsKindMismatchCappedUnderUIScope(t *testing.T) {
	c := testComparator(t)
	source := []voe.UIElement{{ID: "1", Kind: "button", Text: "Submit"}}
	target := []voe.UIElement{{ID: "1", Kind: "label", Text: "Submit"}}

	res, err := c.compareUIElements(context.Background(), source, target, voe.ScopeUI)
	if err != nil {
		t.Fatalf("compareUIElements: %v", err)
	}
	if len(res.Discrepancies) != 1 {
		t.Fatalf("expected one discrepancy, got %+v", res.Discrepancies)
	}
	if res.Discrepancies[0].Severity == voe.SeverityCritical {
		t.Fatalf("expected UI scope to cap the kind-mismatch severity below critical, got %v", res.Discrepancies[0].Severity)
	}
}

func TestCompareUIElementsSignificantAttributeChangeIsWarning(t *testing.T) {
	c := testComparator(t)
	source := []voe.UIElement{{ID: "1", Kind: "button", Text: "Submit"}}
	target := []voe.UIElement{{ID: "1", Kind: "button", Text: "Submit"}}
	// identity pairs on text, so keep the text equal and change a
	// significant attribute instead.
	source[0].Attributes = map[string]string{"id": "submit-btn"}
	target[0].Attributes = map[string]string{"id": "submit-button"}

	res, err := c.compareUIElements(context.Background(), source, target, voe.ScopeUI)
	if err != nil {
		t.Fatalf("compareUIElements: %v", err)
	}
	if len(res.Discrepancies) != 1 {
		t.Fatalf("expected one attribute discrepancy, got %+v", res.Discrepancies)
	}
	if res.Discrepancies[0].Severity != voe.SeverityWarning {
		t.Fatalf("expected a significant attribute change to be a warning, got %v", res.Discrepancies[0].Severity)
	}
}

func TestCompareUIElementsNonSignificantAttributeIsInfo(t *testing.T) {
	c := testComparator(t)
	source := []voe.UIElement{{ID: "1", Kind: "button", Text: "Submit", Attributes: map[string]string{"color": "blue"}}}
	target := []voe.UIElement{{ID: "1", Kind: "button", Text: "Submit", Attributes: map[string]string{"color": "green"}}}

	res, err := c.compareUIElements(context.Background(), source, target, voe.ScopeUI)
	if err != nil {
		t.Fatalf("compareUIElements: %v", err)
	}
	if len(res.Discrepancies) != 1 || res.Discrepancies[0].Severity != voe.SeverityInfo {
		t.Fatalf("expected a single info-severity discrepancy, got %+v", res.Discrepancies)
	}
}
