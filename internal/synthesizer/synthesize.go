// Package synthesizer implements the Fidelity Synthesizer: it merges the
// Semantic Comparator's static result with the Behavioral Stage Runner's
// result (when one ran) into the single UnifiedResult a session reports.
package synthesizer

import (
	"github.com/luissimon96/migration-validation-voe/internal/behavioral"
	"github.com/luissimon96/migration-validation-voe/internal/comparator"
	"github.com/luissimon96/migration-validation-voe/internal/domain/voe"
)

const (
	defaultStaticWeight     = 0.6
	defaultBehavioralWeight = 0.4

	approvedThreshold           = 0.95
	approvedWithWarningsThreshold = 0.80
)

// StageWeights overrides the default 0.6/0.4 static/behavioral blend.
type StageWeights struct {
	Static     float64
	Behavioral float64
}

// StageInput is one stage's contribution to synthesis. Err marks a stage
// that ran but produced no salvageable score — distinct from a nil Result,
// which means the stage never ran at all (e.g. scope excluded it).
type StageInput struct {
	Result *comparator.Result
	Err    bool
}

// BehavioralInput mirrors StageInput for the behavioral side, which carries
// its own result shape.
type BehavioralInput struct {
	Result *behavioral.Result
	Err    bool
}

// UnifiedResult is synthesize's output: §4.6's UnifiedResult.
type UnifiedResult struct {
	Score         float64
	Status        voe.OverallStatus
	Discrepancies []comparator.Discrepancy
	ErrorNote     string
}

// Synthesize implements §4.6: synthesize(static?, behavioral?, scope,
// weights?) → UnifiedResult.
func Synthesize(static StageInput, behav BehavioralInput, weights *StageWeights) UnifiedResult {
	w := resolveWeights(static, behav, weights)

	var score float64
	var discrepancies []comparator.Discrepancy
	var hasCritical bool

	if static.Result != nil && !static.Err {
		score += w.Static * static.Result.Score
		for _, cat := range static.Result.Categories {
			discrepancies = append(discrepancies, cat.Discrepancies...)
			for _, d := range cat.Discrepancies {
				if d.Severity == voe.SeverityCritical {
					hasCritical = true
				}
			}
		}
	}
	if behav.Result != nil && !behav.Err {
		score += w.Behavioral * behav.Result.Score
		for _, s := range behav.Result.Scenarios {
			discrepancies = append(discrepancies, s.Discrepancies...)
			for _, d := range s.Discrepancies {
				if d.Severity == voe.SeverityCritical {
					hasCritical = true
				}
			}
		}
	}
	score = roundScore(score)

	staticOK := static.Result != nil && !static.Err
	behavioralOK := behav.Result != nil && !behav.Err
	staticRan := static.Result != nil
	behavioralRan := behav.Result != nil

	// §4.6: "Any stage in error with no salvageable score degrades status
	// to rejected unless the other stage is approved; in that case the
	// overall is approved-with-warnings with an error annotation."
	anyErrored := (staticRan && static.Err) || (behavioralRan && behav.Err)
	if anyErrored {
		otherApproved := (staticOK && projectStatus(static.Result.Score, hasCriticalIn(static.Result)) == voe.OverallApproved) ||
			(behavioralOK && projectStatus(behav.Result.Score, hasCriticalInBehavioral(behav.Result)) == voe.OverallApproved)
		if otherApproved {
			return UnifiedResult{
				Score:         score,
				Status:        voe.OverallApprovedWithWarnings,
				Discrepancies: discrepancies,
				ErrorNote:     "one stage errored; status derived from the surviving stage",
			}
		}
		return UnifiedResult{
			Score:         score,
			Status:        voe.OverallRejected,
			Discrepancies: discrepancies,
			ErrorNote:     "one or more stages errored with no salvageable score",
		}
	}

	return UnifiedResult{
		Score:         score,
		Status:        projectStatus(score, hasCritical),
		Discrepancies: discrepancies,
	}
}

func projectStatus(score float64, hasCritical bool) voe.OverallStatus {
	switch {
	case score >= approvedThreshold && !hasCritical:
		return voe.OverallApproved
	case score >= approvedWithWarningsThreshold && !hasCritical:
		return voe.OverallApprovedWithWarnings
	default:
		return voe.OverallRejected
	}
}

func hasCriticalIn(r *comparator.Result) bool {
	for _, cat := range r.Categories {
		for _, d := range cat.Discrepancies {
			if d.Severity == voe.SeverityCritical {
				return true
			}
		}
	}
	return false
}

func hasCriticalInBehavioral(r *behavioral.Result) bool {
	for _, s := range r.Scenarios {
		for _, d := range s.Discrepancies {
			if d.Severity == voe.SeverityCritical {
				return true
			}
		}
	}
	return false
}

// resolveWeights applies the caller's override when given, otherwise the
// §4.6 default 0.6/0.4 split, renormalized to whichever stage actually ran
// when only one did — a session scoped to "ui" never runs a behavioral
// stage at all, and that absence must not silently halve its score.
func resolveWeights(static StageInput, behav BehavioralInput, override *StageWeights) StageWeights {
	w := StageWeights{Static: defaultStaticWeight, Behavioral: defaultBehavioralWeight}
	if override != nil {
		w = *override
	}

	staticActive := static.Result != nil && !static.Err
	behavioralActive := behav.Result != nil && !behav.Err

	switch {
	case staticActive && behavioralActive:
		return w
	case staticActive:
		return StageWeights{Static: 1.0, Behavioral: 0}
	case behavioralActive:
		return StageWeights{Static: 0, Behavioral: 1.0}
	default:
		return StageWeights{}
	}
}

func roundScore(v float64) float64 {
	const scale = 10000.0
	return float64(int(v*scale+0.5)) / scale
}
