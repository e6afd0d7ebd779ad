package synthesizer

import (
	"testing"

	"github.com/luissimon96/migration-validation-voe/internal/behavioral"
	"github.com/luissimon96/migration-validation-voe/internal/comparator"
	"github.com/luissimon96/migration-validation-voe/internal/domain/voe"
)

func TestSynthesizeStaticOnlyUsesFullWeight(t *testing.T) {
	static := StageInput{Result: &comparator.Result{Score: 0.97}}
	result := Synthesize(static, BehavioralInput{}, nil)

	if result.Score != 0.97 {
		t.Fatalf("expected the static score alone when no behavioral stage ran, got %v", result.Score)
	}
	if result.Status != voe.OverallApproved {
		t.Fatalf("expected approved status, got %s", result.Status)
	}
}

func TestSynthesizeBlendsBothStagesWithDefaultWeights(t *testing.T) {
	static := StageInput{Result: &comparator.Result{Score: 1.0}}
	behav := BehavioralInput{Result: &behavioral.Result{Score: 0.5}}
	result := Synthesize(static, behav, nil)

	// 0.6*1.0 + 0.4*0.5 = 0.8
	if result.Score != 0.8 {
		t.Fatalf("expected blended score 0.8, got %v", result.Score)
	}
	if result.Status != voe.OverallApprovedWithWarnings {
		t.Fatalf("expected approved-with-warnings at the 0.80 boundary, got %s", result.Status)
	}
}

func TestSynthesizeCriticalDiscrepancyForcesRejectedEvenAtHighScore(t *testing.T) {
	static := StageInput{Result: &comparator.Result{
		Score: 0.99,
		Categories: []comparator.CategoryResult{{
			Category: comparator.CategoryEndpoints,
			Discrepancies: []comparator.Discrepancy{
				{Severity: voe.SeverityCritical, Description: "missing endpoint"},
			},
		}},
	}}
	result := Synthesize(static, BehavioralInput{}, nil)

	if result.Status != voe.OverallRejected {
		t.Fatalf("expected a critical discrepancy to force rejected regardless of score, got %s", result.Status)
	}
}

func TestSynthesizeErroredStageWithApprovedSurvivorIsApprovedWithWarnings(t *testing.T) {
	static := StageInput{Result: &comparator.Result{Score: 0.98}}
	behav := BehavioralInput{Result: &behavioral.Result{Score: 0}, Err: true}
	result := Synthesize(static, behav, nil)

	if result.Status != voe.OverallApprovedWithWarnings {
		t.Fatalf("expected approved-with-warnings when the surviving stage is approved, got %s", result.Status)
	}
	if result.ErrorNote == "" {
		t.Fatalf("expected an error annotation")
	}
}

func TestSynthesizeErroredStageWithNoApprovedSurvivorIsRejected(t *testing.T) {
	static := StageInput{Result: &comparator.Result{Score: 0.6}}
	behav := BehavioralInput{Result: &behavioral.Result{Score: 0}, Err: true}
	result := Synthesize(static, behav, nil)

	if result.Status != voe.OverallRejected {
		t.Fatalf("expected rejected when no surviving stage is approved, got %s", result.Status)
	}
}

func TestSynthesizeCustomWeightsOverrideDefaults(t *testing.T) {
	static := StageInput{Result: &comparator.Result{Score: 1.0}}
	behav := BehavioralInput{Result: &behavioral.Result{Score: 0}}
	result := Synthesize(static, behav, &StageWeights{Static: 0.9, Behavioral: 0.1})

	if result.Score != 0.9 {
		t.Fatalf("expected the override weights to apply, got %v", result.Score)
	}
}
