package comparator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/luissimon96/migration-validation-voe/internal/domain/voe"
	"github.com/luissimon96/migration-validation-voe/internal/llm"
)

func (c *Comparator) compareFunctions(ctx context.Context, source, target []voe.BackendFunction, scope voe.ValidationScope) (CategoryResult, error) {
	sourceCands := functionCandidates(source)
	targetCands := functionCandidates(target)

	pairs, unpairedSource, unpairedTarget := pairByIdentityAndSignature(sourceCands, targetCands)

	semanticPairs, err := semanticPair(ctx, c, source, target, unpairedSource, unpairedTarget, func(f voe.BackendFunction) string { return f.Name })
	if err != nil {
		return CategoryResult{}, err
	}
	pairs = append(pairs, semanticPairs...)
	pairedSource, pairedTarget := markPaired(pairs, len(source), len(target))

	var discrepancies []Discrepancy
	for _, p := range pairs {
		ds, err := c.compareFunctionPair(ctx, source[p.sourceIndex], target[p.targetIndex], scope)
		if err != nil {
			return CategoryResult{}, err
		}
		discrepancies = append(discrepancies, ds...)
	}
	unpairedCount := 0
	for i, f := range source {
		if pairedSource[i] {
			continue
		}
		unpairedCount++
		discrepancies = append(discrepancies, missingDiscrepancy(scope, "function", f.Name))
	}
	for i, f := range target {
		if pairedTarget[i] {
			continue
		}
		unpairedCount++
		discrepancies = append(discrepancies, additionalDiscrepancy(scope, "function", f.Name))
	}

	total := len(pairs) + unpairedCount
	return CategoryResult{
		Category:      CategoryBackendFunctions,
		Score:         categoryScore(total, discrepancies),
		Discrepancies: discrepancies,
	}, nil
}

func functionCandidates(fns []voe.BackendFunction) []candidate {
	out := make([]candidate, len(fns))
	for i, f := range fns {
		paramTypes := make([]string, len(f.Parameters))
		for j, p := range f.Parameters {
			paramTypes[j] = p.Type
		}
		out[i] = candidate{index: i, identity: identityKey(f.Name), signature: signatureKey(paramTypes)}
	}
	return out
}

func (c *Comparator) compareFunctionPair(ctx context.Context, s, t voe.BackendFunction, scope voe.ValidationScope) ([]Discrepancy, error) {
	var ds []Discrepancy

	if !paramsEquivalent(s.Parameters, t.Parameters) {
		ds = append(ds, Discrepancy{
			Kind:          voe.DiscrepancyKindSignatureMismatch,
			Severity:      severityFor(scope, voe.SeverityCritical, voe.DiscrepancyKindSignatureMismatch),
			Description:   fmt.Sprintf("parameter list of %q differs from %q", s.Name, t.Name),
			SourceElement: s.Name,
			TargetElement: t.Name,
			Confidence:    1.0,
			Component:     "backend_function",
		})
	}

	if normalizeType(s.ReturnType) != normalizeType(t.ReturnType) && !isNumericWideningPair(s.ReturnType, t.ReturnType) {
		sev := voe.SeverityCritical
		if scope == voe.ScopeUI {
			sev = voe.SeverityWarning
		}
		ds = append(ds, Discrepancy{
			Kind:          voe.DiscrepancyKindSignatureMismatch,
			Severity:      severityFor(scope, sev, voe.DiscrepancyKindSignatureMismatch),
			Description:   fmt.Sprintf("return type %q vs %q", s.ReturnType, t.ReturnType),
			SourceElement: s.Name,
			TargetElement: t.Name,
			Confidence:    1.0,
			Component:     "backend_function",
		})
	}

	if s.BusinessLogic != "" || t.BusinessLogic != "" {
		similarity, diagnosis, err := c.businessLogicSimilarity(ctx, s.BusinessLogic, t.BusinessLogic)
		if err != nil {
			return nil, err
		}
		if similarity < 0.7 {
			sev := voe.SeverityCritical
			if scope == voe.ScopeUI {
				sev = voe.SeverityWarning
			}
			ds = append(ds, Discrepancy{
				Kind:          voe.DiscrepancyKindSemanticDrift,
				Severity:      severityFor(scope, sev, voe.DiscrepancyKindSemanticDrift),
				Description:   diagnosis,
				SourceElement: s.Name,
				TargetElement: t.Name,
				Confidence:    similarity,
				Component:     "backend_function",
			})
		}
	}

	return ds, nil
}

func paramsEquivalent(a, b []voe.Parameter) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if normalizeType(a[i].Type) != normalizeType(b[i].Type) && !isNumericWideningPair(a[i].Type, b[i].Type) {
			return false
		}
	}
	return true
}

const businessLogicSystemPrompt = `You compare the business logic summaries of two functions from a source and target implementation of the same system after a migration. Respond only with the requested JSON: a similarity score in [0,1] and a one-sentence diagnosis of the most significant behavioral difference, if any.`

var businessLogicSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"similarity": map[string]any{"type": "number"},
		"diagnosis":  map[string]any{"type": "string"},
	},
}

func (c *Comparator) businessLogicSimilarity(ctx context.Context, source, target string) (float64, string, error) {
	if c.dispatcher == nil {
		return 1.0, "", nil
	}
	resp, err := c.dispatcher.Ask(ctx, llm.Request{
		Model:        c.model,
		SystemPrompt: businessLogicSystemPrompt,
		UserPrompt:   fmt.Sprintf("Source: %s\nTarget: %s", source, target),
		MaxTokens:    512,
		Temperature:  llm.TemperatureLow,
		SchemaName:   "business_logic_similarity",
		Schema:       businessLogicSchema,
	}, c.budget)
	if err != nil {
		return 0, "", err
	}
	var parsed struct {
		Similarity float64 `json:"similarity"`
		Diagnosis  string  `json:"diagnosis"`
	}
	if err := json.Unmarshal([]byte(resp.Content), &parsed); err != nil {
		return 0, "", fmt.Errorf("comparator: unparseable business-logic response: %w", err)
	}
	return parsed.Similarity, parsed.Diagnosis, nil
}
