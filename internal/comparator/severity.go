package comparator

import "github.com/luissimon96/migration-validation-voe/internal/domain/voe"

// severityFor applies §4.4.3: a category/change-kind gets the severity
// its comparison rule names in §4.4.2, except two scope-wide overrides —
// UI scope never produces "critical", and data-structure/business-rules
// scope always treats type mismatches and missing elements as "critical"
// regardless of what the per-rule severity would otherwise be.
func severityFor(scope voe.ValidationScope, proposed voe.DiscrepancySeverity, kind voe.DiscrepancyKind) voe.DiscrepancySeverity {
	if scope == voe.ScopeUI && proposed == voe.SeverityCritical {
		return voe.SeverityWarning
	}
	if (scope == voe.ScopeDataStructure || scope == voe.ScopeBusinessRules) &&
		(kind == voe.DiscrepancyKindMissing || kind == voe.DiscrepancyKindSignatureMismatch) {
		return voe.SeverityCritical
	}
	return proposed
}

// severityWeight is the discrepancy mass one finding contributes to the
// §4.4.4 partial fidelity formula's numerator.
func severityWeight(s voe.DiscrepancySeverity) float64 {
	switch s {
	case voe.SeverityCritical:
		return 1.0
	case voe.SeverityWarning:
		return 0.5
	case voe.SeverityInfo:
		return 0.1
	default:
		return 0
	}
}
