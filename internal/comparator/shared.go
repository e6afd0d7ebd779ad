package comparator

import (
	"context"

	"github.com/luissimon96/migration-validation-voe/internal/domain/voe"
)

// semanticPair runs §4.4.1 layer 3 over whatever layers 1-2 left unpaired.
// nameOf extracts the comparable name for one element of any category;
// the returned pairs are already translated back into indexes on the
// original source/target slices.
func semanticPair[T any](ctx context.Context, c *Comparator, source, target []T, unpairedSource, unpairedTarget []candidate, nameOf func(T) string) ([]pair, error) {
	if len(unpairedSource) == 0 || len(unpairedTarget) == 0 {
		return nil, nil
	}

	sourceNames := make([]string, len(unpairedSource))
	for i, cand := range unpairedSource {
		sourceNames[i] = nameOf(source[cand.index])
	}
	targetNames := make([]string, len(unpairedTarget))
	for i, cand := range unpairedTarget {
		targetNames[i] = nameOf(target[cand.index])
	}

	localPairs, err := c.matcher.Match(ctx, sourceNames, targetNames)
	if err != nil {
		return nil, err
	}

	pairs := make([]pair, 0, len(localPairs))
	for _, p := range localPairs {
		pairs = append(pairs, pair{
			sourceIndex: unpairedSource[p.sourceIndex].index,
			targetIndex: unpairedTarget[p.targetIndex].index,
		})
	}
	return pairs, nil
}

// markPaired expands a pair list into full-length membership flags over
// the original source/target slices, for computing unpaired remainders.
func markPaired(pairs []pair, sourceLen, targetLen int) (pairedSource, pairedTarget []bool) {
	pairedSource = make([]bool, sourceLen)
	pairedTarget = make([]bool, targetLen)
	for _, p := range pairs {
		pairedSource[p.sourceIndex] = true
		pairedTarget[p.targetIndex] = true
	}
	return pairedSource, pairedTarget
}

func missingDiscrepancy(scope voe.ValidationScope, kind, name string) Discrepancy {
	return Discrepancy{
		Kind:          voe.DiscrepancyKindMissing,
		Severity:      severityFor(scope, voe.SeverityCritical, voe.DiscrepancyKindMissing),
		Description:   kind + " " + name + " is present in the source but missing from the target",
		SourceElement: name,
		Confidence:    1.0,
		Component:     kind,
	}
}

func additionalDiscrepancy(scope voe.ValidationScope, kind, name string) Discrepancy {
	return Discrepancy{
		Kind:          voe.DiscrepancyKindAdditional,
		Severity:      severityFor(scope, voe.SeverityInfo, voe.DiscrepancyKindAdditional),
		Description:   kind + " " + name + " appears in the target with no source counterpart",
		TargetElement: name,
		Confidence:    1.0,
		Component:     kind,
	}
}
