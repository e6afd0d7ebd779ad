package analysis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/luissimon96/migration-validation-voe/internal/domain/voe"
	"github.com/luissimon96/migration-validation-voe/internal/llm"
)

const codeAnalysisSystemPrompt = `You extract a structural representation of one source file for a migration-validation tool. Respond only with the requested JSON: the functions, data structures, and API endpoints declared in the file. Be literal; do not invent elements that are not in the file.`

var codeAnalysisSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"functions": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name":            map[string]any{"type": "string"},
					"parameters":      map[string]any{"type": "array", "items": map[string]any{"type": "object"}},
					"return_type":     map[string]any{"type": "string"},
					"http_method":     map[string]any{"type": "string"},
					"route":           map[string]any{"type": "string"},
					"business_logic":  map[string]any{"type": "string"},
					"complexity":      map[string]any{"type": "string", "enum": []string{"low", "medium", "high"}},
				},
			},
		},
		"data_structures": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name":   map[string]any{"type": "string"},
					"kind":   map[string]any{"type": "string"},
					"fields": map[string]any{"type": "array", "items": map[string]any{"type": "object"}},
				},
			},
		},
		"endpoints": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path":    map[string]any{"type": "string"},
					"methods": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					"handler": map[string]any{"type": "string"},
				},
			},
		},
	},
}

// LLMCodeAnalyzer is the catch-all CodeAnalyzer: it supports every
// language by asking the Dispatcher to extract structure from the raw
// file text. Used whenever no language-specific analyzer (currently only
// GoASTAnalyzer) claims a file.
type LLMCodeAnalyzer struct {
	dispatcher *llm.Dispatcher
	model      string
	budget     *llm.Budget
}

func NewLLMCodeAnalyzer(dispatcher *llm.Dispatcher, model string, budget *llm.Budget) *LLMCodeAnalyzer {
	return &LLMCodeAnalyzer{dispatcher: dispatcher, model: model, budget: budget}
}

func (a *LLMCodeAnalyzer) Name() string { return "llm" }

func (a *LLMCodeAnalyzer) SupportsLanguage(language string) bool { return true }

func (a *LLMCodeAnalyzer) AnalyzeFile(ctx context.Context, file voe.InputFile, content []byte) (voe.Representation, error) {
	resp, err := a.dispatcher.Ask(ctx, llm.Request{
		Model:        a.model,
		SystemPrompt: codeAnalysisSystemPrompt,
		UserPrompt:   fmt.Sprintf("File: %s\nLanguage: %s\n\n%s", file.Path, file.Language, string(content)),
		Context:      map[string]any{"file": file.Path, "language": file.Language},
		MaxTokens:    4096,
		Temperature:  llm.TemperatureLow,
		SchemaName:   "code_analysis",
		Schema:       codeAnalysisSchema,
	}, a.budget)
	if err != nil {
		return voe.Representation{}, err
	}

	var parsed struct {
		Functions []struct {
			Name          string           `json:"name"`
			Parameters    []voe.Parameter  `json:"parameters"`
			ReturnType    string           `json:"return_type"`
			HTTPMethod    string           `json:"http_method"`
			Route         string           `json:"route"`
			BusinessLogic string           `json:"business_logic"`
			Complexity    string           `json:"complexity"`
		} `json:"functions"`
		DataStructures []struct {
			Name   string     `json:"name"`
			Kind   string     `json:"kind"`
			Fields []voe.Field `json:"fields"`
		} `json:"data_structures"`
		Endpoints []struct {
			Path    string   `json:"path"`
			Methods []string `json:"methods"`
			Handler string   `json:"handler"`
		} `json:"endpoints"`
	}
	if err := json.Unmarshal([]byte(resp.Content), &parsed); err != nil {
		return voe.Representation{}, fmt.Errorf("analysis: unparseable llm response for %s: %w", file.Path, err)
	}

	var rep voe.Representation
	for i, f := range parsed.Functions {
		rep.Functions = append(rep.Functions, voe.BackendFunction{
			ID:             fmt.Sprintf("%s#%d", file.Path, i),
			Name:           f.Name,
			Parameters:     f.Parameters,
			ReturnType:     f.ReturnType,
			HTTPMethod:     f.HTTPMethod,
			Route:          f.Route,
			BusinessLogic:  f.BusinessLogic,
			Complexity:     voe.ComplexityBand(f.Complexity),
			SourceFile:      file.Path,
			AnalysisMethod: "llm",
		})
	}
	for i, d := range parsed.DataStructures {
		rep.DataStructures = append(rep.DataStructures, voe.DataStructure{
			ID:             fmt.Sprintf("%s#%d", file.Path, i),
			Name:           d.Name,
			Kind:           voe.DataStructureKind(d.Kind),
			Fields:         d.Fields,
			AnalysisMethod: "llm",
		})
	}
	for i, e := range parsed.Endpoints {
		rep.Endpoints = append(rep.Endpoints, voe.APIEndpoint{
			ID:             fmt.Sprintf("%s#%d", file.Path, i),
			Path:           e.Path,
			Methods:        e.Methods,
			Handler:        e.Handler,
			AnalysisMethod: "llm",
		})
	}
	return rep, nil
}
