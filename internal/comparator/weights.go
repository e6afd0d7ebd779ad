package comparator

import "github.com/luissimon96/migration-validation-voe/internal/domain/voe"

// Category names the four static comparison categories plus the
// behavioral stage, as columns in the §4.6 weight table.
type Category string

const (
	CategoryBackendFunctions Category = "backend_functions"
	CategoryDataStructures   Category = "data_structures"
	CategoryEndpoints        Category = "endpoints"
	CategoryUIElements       Category = "ui_elements"
	CategoryBehavioral       Category = "behavioral"
)

// ScopeWeights is one row of the §4.6 category weight table: how much
// each category contributes to the scope's blended score. The Behavioral
// entry is not read anywhere: staticWeights drops it, since the Semantic
// Comparator (C4) never produces a behavioral score itself, and the
// Fidelity Synthesizer (C6) blends the two stages with its own
// StageWeights.
type ScopeWeights map[Category]float64

// Weights returns the §4.6 weight row for scope, unknown scopes default
// to "full".
func Weights(scope voe.ValidationScope) ScopeWeights {
	if w, ok := scopeWeights[scope]; ok {
		return w
	}
	return scopeWeights[voe.ScopeFull]
}

var scopeWeights = map[voe.ValidationScope]ScopeWeights{
	voe.ScopeUI: {
		CategoryUIElements: 1.0,
	},
	voe.ScopeDataStructure: {
		CategoryBackendFunctions: 0.1,
		CategoryDataStructures:   0.9,
	},
	voe.ScopeBackendLogic: {
		CategoryBackendFunctions: 0.6,
		CategoryDataStructures:   0.2,
		CategoryEndpoints:        0.2,
	},
	voe.ScopeAPI: {
		CategoryBackendFunctions: 0.2,
		CategoryDataStructures:   0.1,
		CategoryEndpoints:        0.7,
	},
	voe.ScopeBusinessRules: {
		CategoryBackendFunctions: 0.5,
		CategoryDataStructures:   0.2,
		CategoryEndpoints:        0.1,
		CategoryBehavioral:       0.2,
	},
	voe.ScopeBehavioral: {
		CategoryBehavioral: 1.0,
	},
	voe.ScopeFull: {
		CategoryBackendFunctions: 0.25,
		CategoryDataStructures:   0.15,
		CategoryEndpoints:        0.2,
		CategoryUIElements:       0.1,
		CategoryBehavioral:       0.3,
	},
}

// staticWeights drops the Behavioral column and renormalizes the rest to
// sum to 1, since the Comparator only ever scores the four static
// categories — the behavioral weight is the Synthesizer's concern.
func staticWeights(scope voe.ValidationScope) map[Category]float64 {
	full := Weights(scope)
	out := make(map[Category]float64, len(full))
	var total float64
	for cat, w := range full {
		if cat == CategoryBehavioral {
			continue
		}
		out[cat] = w
		total += w
	}
	if total == 0 {
		return out
	}
	for cat := range out {
		out[cat] /= total
	}
	return out
}
