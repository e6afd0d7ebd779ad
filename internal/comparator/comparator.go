package comparator

import (
	"context"

	"github.com/luissimon96/migration-validation-voe/internal/domain/voe"
	"github.com/luissimon96/migration-validation-voe/internal/llm"
	"github.com/luissimon96/migration-validation-voe/internal/pkg/logger"
)

// Discrepancy is a category comparison's output, independent of
// persistence — the caller attaches SessionID/ResultID/CreatedAt when it
// turns this into a voe.ValidationDiscrepancy row.
type Discrepancy struct {
	Kind           voe.DiscrepancyKind
	Severity       voe.DiscrepancySeverity
	Description    string
	SourceElement  string
	TargetElement  string
	Confidence     float64
	Recommendation string
	Component      string
}

// CategoryResult is one active category's contribution to the static
// stage: its unweighted [0,1] score (§4.4.4), its §4.6 weight, and the
// discrepancies it found.
type CategoryResult struct {
	Category      Category
	Score         float64
	Weight        float64
	Discrepancies []Discrepancy
}

// Result is C4's full output: compare(source, target, scope) → Result.
type Result struct {
	Score      float64
	Categories []CategoryResult
}

// Comparator is C4: it runs the active sub-procedures for a scope,
// weights their scores per §4.6, and merges their discrepancies.
type Comparator struct {
	log        *logger.Logger
	dispatcher *llm.Dispatcher
	model      string
	budget     *llm.Budget
	matcher    *SemanticMatcher
}

func NewComparator(log *logger.Logger, dispatcher *llm.Dispatcher, model string, budget *llm.Budget) *Comparator {
	return &Comparator{
		log:        log.With("service", "SemanticComparator"),
		dispatcher: dispatcher,
		model:      model,
		budget:     budget,
		matcher:    NewSemanticMatcher(dispatcher, model, budget),
	}
}

// Compare runs §4.4: pairing + element comparison for every category
// active under scope, then the §4.4.4 weighted static score.
func (c *Comparator) Compare(ctx context.Context, source, target voe.Representation, scope voe.ValidationScope) (Result, error) {
	weights := staticWeights(scope)

	var categories []CategoryResult
	if w := weights[CategoryBackendFunctions]; w > 0 {
		res, err := c.compareFunctions(ctx, source.Functions, target.Functions, scope)
		if err != nil {
			return Result{}, err
		}
		res.Weight = w
		categories = append(categories, res)
	}
	if w := weights[CategoryDataStructures]; w > 0 {
		res, err := c.compareDataStructures(ctx, source.DataStructures, target.DataStructures, scope)
		if err != nil {
			return Result{}, err
		}
		res.Weight = w
		categories = append(categories, res)
	}
	if w := weights[CategoryEndpoints]; w > 0 {
		res, err := c.compareEndpoints(ctx, source.Endpoints, target.Endpoints, scope)
		if err != nil {
			return Result{}, err
		}
		res.Weight = w
		categories = append(categories, res)
	}
	if w := weights[CategoryUIElements]; w > 0 {
		res, err := c.compareUIElements(ctx, source.UIElements, target.UIElements, scope)
		if err != nil {
			return Result{}, err
		}
		res.Weight = w
		categories = append(categories, res)
	}

	return Result{Score: blendScore(categories), Categories: categories}, nil
}

// blendScore implements the weighted average across active categories
// that closes out §4.4.4 ("the static stage score is a weighted average
// across active categories"). Weights were already renormalized to sum
// to 1 by staticWeights, so this is a plain weighted sum.
func blendScore(categories []CategoryResult) float64 {
	if len(categories) == 0 {
		return 1.0
	}
	var sum float64
	for _, cat := range categories {
		sum += cat.Score * cat.Weight
	}
	return roundScore(sum)
}

func roundScore(v float64) float64 {
	const scale = 10000.0
	return float64(int(v*scale+0.5)) / scale
}
