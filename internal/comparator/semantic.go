package comparator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/luissimon96/migration-validation-voe/internal/llm"
)

// SemanticMatchThreshold is the §4.4.1 layer-3 acceptance threshold:
// suggested pairs scoring at or above this are accepted as renamed-
// element pairs; below it they remain unpaired.
const SemanticMatchThreshold = 0.55

const pairingSystemPrompt = `You pair renamed elements across a code migration. Given two lists of element names (source and target), suggest which source elements correspond to which target elements despite renaming. Respond only with the requested JSON: a list of {source_index, target_index, similarity} where similarity is in [0,1]. Omit a source element entirely if you find no plausible match.`

var pairingSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"pairs": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"source_index": map[string]any{"type": "integer"},
					"target_index": map[string]any{"type": "integer"},
					"similarity":   map[string]any{"type": "number"},
				},
			},
		},
	},
}

// SemanticMatcher runs §4.4.1 layer 3: the remaining unpaired elements on
// both sides are batched and submitted to the Dispatcher for a similarity-
// scored pairing suggestion.
type SemanticMatcher struct {
	dispatcher *llm.Dispatcher
	model      string
	budget     *llm.Budget
}

func NewSemanticMatcher(dispatcher *llm.Dispatcher, model string, budget *llm.Budget) *SemanticMatcher {
	return &SemanticMatcher{dispatcher: dispatcher, model: model, budget: budget}
}

// Match proposes pairs between sourceNames and targetNames (each indexed
// as in the candidate slices passed by the caller). Pairs below
// SemanticMatchThreshold are discarded before returning.
func (m *SemanticMatcher) Match(ctx context.Context, sourceNames, targetNames []string) ([]pair, error) {
	if len(sourceNames) == 0 || len(targetNames) == 0 {
		return nil, nil
	}
	if m == nil || m.dispatcher == nil {
		return nil, nil
	}

	prompt := fmt.Sprintf("Source elements: %s\nTarget elements: %s", jsonList(sourceNames), jsonList(targetNames))
	resp, err := m.dispatcher.Ask(ctx, llm.Request{
		Model:        m.model,
		SystemPrompt: pairingSystemPrompt,
		UserPrompt:   prompt,
		MaxTokens:    1024,
		Temperature:  llm.TemperatureLow,
		SchemaName:   "pairing",
		Schema:       pairingSchema,
	}, m.budget)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Pairs []struct {
			SourceIndex int     `json:"source_index"`
			TargetIndex int     `json:"target_index"`
			Similarity  float64 `json:"similarity"`
		} `json:"pairs"`
	}
	if err := json.Unmarshal([]byte(resp.Content), &parsed); err != nil {
		return nil, fmt.Errorf("comparator: unparseable semantic-match response: %w", err)
	}

	var pairs []pair
	usedSource := make(map[int]bool)
	usedTarget := make(map[int]bool)
	for _, p := range parsed.Pairs {
		if p.Similarity < SemanticMatchThreshold {
			continue
		}
		if p.SourceIndex < 0 || p.SourceIndex >= len(sourceNames) || p.TargetIndex < 0 || p.TargetIndex >= len(targetNames) {
			continue
		}
		if usedSource[p.SourceIndex] || usedTarget[p.TargetIndex] {
			continue
		}
		usedSource[p.SourceIndex] = true
		usedTarget[p.TargetIndex] = true
		pairs = append(pairs, pair{sourceIndex: p.SourceIndex, targetIndex: p.TargetIndex})
	}
	return pairs, nil
}

func jsonList(items []string) string {
	b, _ := json.Marshal(items)
	return string(b)
}
