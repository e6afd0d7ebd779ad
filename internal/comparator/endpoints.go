package comparator

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/luissimon96/migration-validation-voe/internal/domain/voe"
)

var pathVariable = regexp.MustCompile(`(\{[^/]+\}|:[A-Za-z0-9_]+)`)

// normalizePathPattern folds a route's path-variable syntax onto a single
// placeholder so "/users/{id}" and "/users/:id" compare equal, independent
// of framework-specific routing conventions.
func normalizePathPattern(path string) string {
	path = pathVariable.ReplaceAllString(path, ":var")
	path = strings.TrimSuffix(path, "/")
	if path == "" {
		path = "/"
	}
	return strings.ToLower(path)
}

func (c *Comparator) compareEndpoints(ctx context.Context, source, target []voe.APIEndpoint, scope voe.ValidationScope) (CategoryResult, error) {
	sourceCands := identityCandidates(len(source), func(i int) string { return normalizePathPattern(source[i].Path) })
	targetCands := identityCandidates(len(target), func(i int) string { return normalizePathPattern(target[i].Path) })
	pairs, unpairedSource, unpairedTarget := pairByIdentityAndSignature(sourceCands, targetCands)

	semanticPairs, err := semanticPair(ctx, c, source, target, unpairedSource, unpairedTarget, func(e voe.APIEndpoint) string { return e.Path })
	if err != nil {
		return CategoryResult{}, err
	}
	pairs = append(pairs, semanticPairs...)
	pairedSource, pairedTarget := markPaired(pairs, len(source), len(target))

	var discrepancies []Discrepancy
	for _, p := range pairs {
		discrepancies = append(discrepancies, compareEndpointPair(scope, source[p.sourceIndex], target[p.targetIndex])...)
	}

	unpairedCount := 0
	for i, e := range source {
		if pairedSource[i] {
			continue
		}
		unpairedCount++
		discrepancies = append(discrepancies, missingDiscrepancy(scope, "endpoint", e.Path))
	}
	for i, e := range target {
		if pairedTarget[i] {
			continue
		}
		unpairedCount++
		discrepancies = append(discrepancies, additionalDiscrepancy(scope, "endpoint", e.Path))
	}

	total := len(pairs) + unpairedCount
	return CategoryResult{
		Category:      CategoryEndpoints,
		Score:         categoryScore(total, discrepancies),
		Discrepancies: discrepancies,
	}, nil
}

// compareEndpointPair implements §4.4.2's endpoint rule: the paired
// endpoints already match on path pattern, so what remains is method-set
// equivalence (a missing method is critical, an extra method is a warning)
// and an informational note when the reported handler name drifted.
func compareEndpointPair(scope voe.ValidationScope, s, t voe.APIEndpoint) []Discrepancy {
	var ds []Discrepancy

	sourceMethods := methodSet(s.Methods)
	targetMethods := methodSet(t.Methods)
	for m := range sourceMethods {
		if !targetMethods[m] {
			ds = append(ds, Discrepancy{
				Kind:          voe.DiscrepancyKindMissing,
				Severity:      severityFor(scope, voe.SeverityCritical, voe.DiscrepancyKindMissing),
				Description:   fmt.Sprintf("%s no longer supports method %s", t.Path, m),
				SourceElement: s.Path,
				TargetElement: t.Path,
				Confidence:    1.0,
				Component:     "endpoint",
			})
		}
	}
	for m := range targetMethods {
		if !sourceMethods[m] {
			ds = append(ds, Discrepancy{
				Kind:          voe.DiscrepancyKindAdditional,
				Severity:      severityFor(scope, voe.SeverityWarning, voe.DiscrepancyKindAdditional),
				Description:   fmt.Sprintf("%s gained method %s", t.Path, m),
				SourceElement: s.Path,
				TargetElement: t.Path,
				Confidence:    1.0,
				Component:     "endpoint",
			})
		}
	}

	if s.Handler != "" && t.Handler != "" && identityKey(s.Handler) != identityKey(t.Handler) {
		ds = append(ds, Discrepancy{
			Kind:          voe.DiscrepancyKindSemanticDrift,
			Severity:      severityFor(scope, voe.SeverityInfo, voe.DiscrepancyKindSemanticDrift),
			Description:   fmt.Sprintf("%s handler renamed from %q to %q", t.Path, s.Handler, t.Handler),
			SourceElement: s.Handler,
			TargetElement: t.Handler,
			Confidence:    0.6,
			Component:     "endpoint",
		})
	}

	return ds
}

func methodSet(methods []string) map[string]bool {
	out := make(map[string]bool, len(methods))
	for _, m := range methods {
		out[strings.ToUpper(m)] = true
	}
	return out
}

