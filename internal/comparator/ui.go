package comparator

import (
	"context"
	"fmt"

	"github.com/luissimon96/migration-validation-voe/internal/domain/voe"
)

var textualKinds = map[voe.UIElementKind]bool{
	"button": true,
	"label":  true,
	"text":   true,
	"link":   true,
}

// compareUIElements pairs on text identity (the element ID when the text is
// empty) since screenshot-derived elements carry no stable name — the
// Vision adapter's OCR text is the closest thing to one. Kind is not part
// of the identity; it is compared once a pair is formed. Kind mismatches are proposed critical; under UI
// scope severityFor's scope-wide cap brings that down to warning like
// every other UI-scope finding, so the "kind must match" rule from §4.4.2
// and the "no critical under UI scope" rule from §4.4.3 don't actually
// conflict — the latter is a ceiling on the former, not an exception to it.
func (c *Comparator) compareUIElements(ctx context.Context, source, target []voe.UIElement, scope voe.ValidationScope) (CategoryResult, error) {
	sourceCands := identityCandidates(len(source), func(i int) string { return uiIdentity(source[i]) })
	targetCands := identityCandidates(len(target), func(i int) string { return uiIdentity(target[i]) })
	pairs, unpairedSource, unpairedTarget := pairByIdentityAndSignature(sourceCands, targetCands)

	semanticPairs, err := semanticPair(ctx, c, source, target, unpairedSource, unpairedTarget, func(e voe.UIElement) string { return uiLabel(e) })
	if err != nil {
		return CategoryResult{}, err
	}
	pairs = append(pairs, semanticPairs...)
	pairedSource, pairedTarget := markPaired(pairs, len(source), len(target))

	var discrepancies []Discrepancy
	for _, p := range pairs {
		discrepancies = append(discrepancies, compareUIElementPair(scope, source[p.sourceIndex], target[p.targetIndex])...)
	}

	unpairedCount := 0
	for i, e := range source {
		if pairedSource[i] {
			continue
		}
		unpairedCount++
		discrepancies = append(discrepancies, missingDiscrepancy(scope, "ui_element", uiLabel(e)))
	}
	for i, e := range target {
		if pairedTarget[i] {
			continue
		}
		unpairedCount++
		discrepancies = append(discrepancies, additionalDiscrepancy(scope, "ui_element", uiLabel(e)))
	}

	total := len(pairs) + unpairedCount
	return CategoryResult{
		Category:      CategoryUIElements,
		Score:         categoryScore(total, discrepancies),
		Discrepancies: discrepancies,
	}, nil
}

func compareUIElementPair(scope voe.ValidationScope, s, t voe.UIElement) []Discrepancy {
	var ds []Discrepancy

	if s.Kind != t.Kind {
		ds = append(ds, Discrepancy{
			Kind:          voe.DiscrepancyKindSemanticDrift,
			Severity:      severityFor(scope, voe.SeverityCritical, voe.DiscrepancyKindSemanticDrift),
			Description:   fmt.Sprintf("element %q changed kind from %s to %s", uiLabel(s), s.Kind, t.Kind),
			SourceElement: uiLabel(s),
			TargetElement: uiLabel(t),
			Confidence:    1.0,
			Component:     "ui_element",
		})
	}

	if textualKinds[s.Kind] && s.Text != t.Text {
		ds = append(ds, Discrepancy{
			Kind:          voe.DiscrepancyKindSemanticDrift,
			Severity:      severityFor(scope, voe.SeverityWarning, voe.DiscrepancyKindSemanticDrift),
			Description:   fmt.Sprintf("element text changed from %q to %q", s.Text, t.Text),
			SourceElement: uiLabel(s),
			TargetElement: uiLabel(t),
			Confidence:    0.8,
			Component:     "ui_element",
		})
	}

	ds = append(ds, compareUIAttributes(scope, s, t)...)
	return ds
}

var significantAttributes = map[string]bool{
	"required": true,
	"name":     true,
	"id":       true,
}

func compareUIAttributes(scope voe.ValidationScope, s, t voe.UIElement) []Discrepancy {
	var ds []Discrepancy
	for k, sv := range s.Attributes {
		tv, ok := t.Attributes[k]
		if ok && tv == sv {
			continue
		}
		sev := voe.SeverityInfo
		if significantAttributes[k] {
			sev = voe.SeverityWarning
		}
		desc := fmt.Sprintf("attribute %q removed from %s", k, uiLabel(t))
		if ok {
			desc = fmt.Sprintf("attribute %q changed from %q to %q on %s", k, sv, tv, uiLabel(t))
		}
		ds = append(ds, Discrepancy{
			Kind:          voe.DiscrepancyKindSemanticDrift,
			Severity:      severityFor(scope, sev, voe.DiscrepancyKindSemanticDrift),
			Description:   desc,
			SourceElement: uiLabel(s),
			TargetElement: uiLabel(t),
			Confidence:    0.7,
			Component:     "ui_element_attribute",
		})
	}
	for k := range t.Attributes {
		if _, ok := s.Attributes[k]; ok {
			continue
		}
		sev := voe.SeverityInfo
		if significantAttributes[k] {
			sev = voe.SeverityWarning
		}
		ds = append(ds, Discrepancy{
			Kind:          voe.DiscrepancyKindAdditional,
			Severity:      severityFor(scope, sev, voe.DiscrepancyKindAdditional),
			Description:   fmt.Sprintf("attribute %q added on %s", k, uiLabel(t)),
			SourceElement: uiLabel(s),
			TargetElement: uiLabel(t),
			Confidence:    0.7,
			Component:     "ui_element_attribute",
		})
	}
	return ds
}

// uiIdentity deliberately omits Kind: pairing must succeed across a kind
// change (a button turned into a label) for compareUIElementPair's "kind
// must match" rule to ever have a pair to flag in the first place.
func uiIdentity(e voe.UIElement) string {
	if e.Text != "" {
		return identityKey(e.Text)
	}
	return identityKey(e.ID)
}

func uiLabel(e voe.UIElement) string {
	if e.Text != "" {
		return string(e.Kind) + " " + e.Text
	}
	return string(e.Kind) + " " + e.ID
}
