package comparator

import (
	"context"
	"fmt"

	"github.com/luissimon96/migration-validation-voe/internal/domain/voe"
)

// compareDataStructures skips §4.4.1's signature layer — it's function-
// specific — but still runs the identity layer followed by the LLM
// semantic-match layer, since struct/class/table renames across a
// migration are exactly the kind of drift that layer exists to catch.
func (c *Comparator) compareDataStructures(ctx context.Context, source, target []voe.DataStructure, scope voe.ValidationScope) (CategoryResult, error) {
	sourceCands := identityCandidates(len(source), func(i int) string { return source[i].Name })
	targetCands := identityCandidates(len(target), func(i int) string { return target[i].Name })
	pairs, unpairedSource, unpairedTarget := pairByIdentityAndSignature(sourceCands, targetCands)

	semanticPairs, err := semanticPair(ctx, c, source, target, unpairedSource, unpairedTarget, func(d voe.DataStructure) string { return d.Name })
	if err != nil {
		return CategoryResult{}, err
	}
	pairs = append(pairs, semanticPairs...)
	pairedSource, pairedTarget := markPaired(pairs, len(source), len(target))

	var discrepancies []Discrepancy
	for _, p := range pairs {
		discrepancies = append(discrepancies, compareFields(scope, source[p.sourceIndex], target[p.targetIndex])...)
	}

	unpairedCount := 0
	for i, s := range source {
		if pairedSource[i] {
			continue
		}
		unpairedCount++
		discrepancies = append(discrepancies, missingDiscrepancy(scope, "data_structure", s.Name))
	}
	for i, t := range target {
		if pairedTarget[i] {
			continue
		}
		unpairedCount++
		discrepancies = append(discrepancies, additionalDiscrepancy(scope, "data_structure", t.Name))
	}

	total := len(pairs) + unpairedCount
	return CategoryResult{
		Category:      CategoryDataStructures,
		Score:         categoryScore(total, discrepancies),
		Discrepancies: discrepancies,
	}, nil
}

// compareFields implements §4.4.2's "data fields" rule: name, type,
// required-flag and constraint-set equivalence, each with its own
// severity, applied per identity-paired field.
func compareFields(scope voe.ValidationScope, s, t voe.DataStructure) []Discrepancy {
	sourceCands := identityCandidates(len(s.Fields), func(i int) string { return s.Fields[i].Name })
	targetCands := identityCandidates(len(t.Fields), func(i int) string { return t.Fields[i].Name })
	pairs, unpairedSource, unpairedTarget := pairByIdentityAndSignature(sourceCands, targetCands)

	var ds []Discrepancy
	for _, p := range pairs {
		sf, tf := s.Fields[p.sourceIndex], t.Fields[p.targetIndex]
		label := s.Name + "." + sf.Name

		if normalizeType(sf.Type) != normalizeType(tf.Type) {
			sev := voe.SeverityCritical
			if isNumericWideningPair(sf.Type, tf.Type) {
				sev = voe.SeverityWarning
			}
			ds = append(ds, Discrepancy{
				Kind:          voe.DiscrepancyKindSignatureMismatch,
				Severity:      severityFor(scope, sev, voe.DiscrepancyKindSignatureMismatch),
				Description:   fmt.Sprintf("field %s type %q vs %q", label, sf.Type, tf.Type),
				SourceElement: label,
				TargetElement: t.Name + "." + tf.Name,
				Confidence:    1.0,
				Component:     "data_field",
			})
		}

		if !sf.Required && tf.Required {
			ds = append(ds, Discrepancy{
				Kind:          voe.DiscrepancyKindSignatureMismatch,
				Severity:      severityFor(scope, voe.SeverityCritical, voe.DiscrepancyKindSignatureMismatch),
				Description:   fmt.Sprintf("field %s became required in the target", label),
				SourceElement: label,
				TargetElement: t.Name + "." + tf.Name,
				Confidence:    1.0,
				Component:     "data_field",
			})
		} else if sf.Required && !tf.Required {
			ds = append(ds, Discrepancy{
				Kind:          voe.DiscrepancyKindSemanticDrift,
				Severity:      severityFor(scope, voe.SeverityWarning, voe.DiscrepancyKindSemanticDrift),
				Description:   fmt.Sprintf("field %s is no longer required in the target", label),
				SourceElement: label,
				TargetElement: t.Name + "." + tf.Name,
				Confidence:    1.0,
				Component:     "data_field",
			})
		}

		ds = append(ds, compareConstraints(scope, label, t.Name+"."+tf.Name, sf.Constraints, tf.Constraints)...)
	}

	for _, cand := range unpairedSource {
		f := s.Fields[cand.index]
		ds = append(ds, missingDiscrepancy(scope, "data_field", s.Name+"."+f.Name))
	}
	for _, cand := range unpairedTarget {
		f := t.Fields[cand.index]
		ds = append(ds, additionalDiscrepancy(scope, "data_field", t.Name+"."+f.Name))
	}
	return ds
}

func compareConstraints(scope voe.ValidationScope, sourceLabel, targetLabel string, source, target []string) []Discrepancy {
	targetSet := make(map[string]bool, len(target))
	for _, c := range target {
		targetSet[c] = true
	}
	sourceSet := make(map[string]bool, len(source))
	for _, c := range source {
		sourceSet[c] = true
	}

	var ds []Discrepancy
	for _, c := range source {
		if !targetSet[c] {
			ds = append(ds, Discrepancy{
				Kind:          voe.DiscrepancyKindMissing,
				Severity:      severityFor(scope, voe.SeverityWarning, voe.DiscrepancyKindMissing),
				Description:   fmt.Sprintf("constraint %q dropped from %s", c, targetLabel),
				SourceElement: sourceLabel,
				TargetElement: targetLabel,
				Confidence:    1.0,
				Component:     "data_field_constraint",
			})
		}
	}
	for _, c := range target {
		if !sourceSet[c] {
			ds = append(ds, Discrepancy{
				Kind:          voe.DiscrepancyKindAdditional,
				Severity:      severityFor(scope, voe.SeverityInfo, voe.DiscrepancyKindAdditional),
				Description:   fmt.Sprintf("constraint %q added to %s", c, targetLabel),
				SourceElement: sourceLabel,
				TargetElement: targetLabel,
				Confidence:    1.0,
				Component:     "data_field_constraint",
			})
		}
	}
	return ds
}

func identityCandidates(n int, nameOf func(int) string) []candidate {
	out := make([]candidate, n)
	for i := 0; i < n; i++ {
		out[i] = candidate{index: i, identity: identityKey(nameOf(i))}
	}
	return out
}
