package behavioral

import (
	"context"
	"fmt"
	"time"

	"github.com/luissimon96/migration-validation-voe/internal/comparator"
	"github.com/luissimon96/migration-validation-voe/internal/domain/voe"
	"github.com/luissimon96/migration-validation-voe/internal/pkg/logger"
)

// criticalPenalty is §4.5 step 4's "0.2 penalty per critical divergence".
const criticalPenalty = 0.2

// timingDivergenceFactor is the "timing differences beyond a 2x factor"
// threshold from §4.5 step 3's info-severity rule.
const timingDivergenceFactor = 2.0

// ScenarioResult is one scenario's outcome: the pairwise trace comparison,
// its score, and the raw traces for persistence as a BehavioralTestResult.
type ScenarioResult struct {
	Scenario      voe.BehavioralScenario
	Status        voe.BehavioralExecutionStatus
	Score         float64
	SourceTrace   []TraceStep
	TargetTrace   []TraceStep
	Discrepancies []comparator.Discrepancy
	Error         string
}

// Result is C5's full output: §4.5's probe(...) → BehavioralStageResult.
type Result struct {
	Score     float64
	Scenarios []ScenarioResult
}

// Runner is C5: it drives one Prober through every configured scenario,
// sequentially per side (browser-backed probers are expensive to run
// concurrently) but with the source/target pair for a given scenario run
// in parallel, per §4.5's parallelism note.
type Runner struct {
	log    *logger.Logger
	prober Prober
}

func NewRunner(log *logger.Logger, prober Prober) *Runner {
	return &Runner{log: log.With("service", "BehavioralStageRunner"), prober: prober}
}

func (r *Runner) Probe(ctx context.Context, sourceURL, targetURL string, scenarios []voe.BehavioralScenario, creds *voe.BehavioralCredentials, timeout time.Duration) Result {
	results := make([]ScenarioResult, 0, len(scenarios))
	for _, scenario := range scenarios {
		results = append(results, r.runScenario(ctx, sourceURL, targetURL, scenario, creds, timeout))
	}
	return Result{Score: meanScore(results), Scenarios: results}
}

func (r *Runner) runScenario(ctx context.Context, sourceURL, targetURL string, scenario voe.BehavioralScenario, creds *voe.BehavioralCredentials, defaultTimeout time.Duration) ScenarioResult {
	deadline := defaultTimeout
	if scenario.TimeoutSeconds > 0 {
		deadline = time.Duration(scenario.TimeoutSeconds) * time.Second
	}
	scenarioCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	type traceOutcome struct {
		trace []TraceStep
		err   error
	}
	sourceCh := make(chan traceOutcome, 1)
	targetCh := make(chan traceOutcome, 1)

	go func() {
		trace, err := r.prober.Run(scenarioCtx, sourceURL, scenario, creds)
		sourceCh <- traceOutcome{trace: trace, err: err}
	}()
	go func() {
		trace, err := r.prober.Run(scenarioCtx, targetURL, scenario, creds)
		targetCh <- traceOutcome{trace: trace, err: err}
	}()

	source := <-sourceCh
	target := <-targetCh

	if scenarioCtx.Err() != nil {
		r.log.Warn("behavioral scenario timed out", "scenario", scenario.Name)
		return ScenarioResult{
			Scenario: scenario,
			Status:   voe.BehavioralExecutionError,
			Score:    0,
			Error:    "scenario deadline exceeded",
			Discrepancies: []comparator.Discrepancy{{
				Kind:        voe.DiscrepancyKindBehaviorMismatch,
				Severity:    voe.SeverityCritical,
				Description: fmt.Sprintf("scenario %q exceeded its deadline", scenario.Name),
				Component:   "behavioral_scenario",
				Confidence:  1.0,
			}},
		}
	}

	if source.err != nil || target.err != nil {
		r.log.Warn("behavioral scenario probe error", "scenario", scenario.Name, "source_err", source.err, "target_err", target.err)
		return ScenarioResult{
			Scenario:    scenario,
			Status:      voe.BehavioralExecutionError,
			Score:       0,
			SourceTrace: source.trace,
			TargetTrace: target.trace,
			Error:       proberErrorMessage(source.err, target.err),
			Discrepancies: []comparator.Discrepancy{{
				Kind:        voe.DiscrepancyKindBehaviorMismatch,
				Severity:    voe.SeverityCritical,
				Description: fmt.Sprintf("scenario %q failed to run on one or both sides: %s", scenario.Name, proberErrorMessage(source.err, target.err)),
				Component:   "behavioral_scenario",
				Confidence:  1.0,
			}},
		}
	}

	matched, discrepancies, criticalCount := compareTraces(scenario.Name, source.trace, target.trace)
	score := scenarioScore(matched, len(source.trace), criticalCount)

	status := voe.BehavioralExecutionMatched
	if len(discrepancies) > 0 {
		status = voe.BehavioralExecutionMismatched
	}

	return ScenarioResult{
		Scenario:      scenario,
		Status:        status,
		Score:         score,
		SourceTrace:   source.trace,
		TargetTrace:   target.trace,
		Discrepancies: discrepancies,
	}
}

// compareTraces implements §4.5 step 3: pairwise comparison of each step's
// outcome and state fingerprint, with severity assigned per the rule's
// three bands.
func compareTraces(scenarioName string, source, target []TraceStep) (matched int, discrepancies []comparator.Discrepancy, criticalCount int) {
	n := len(source)
	if len(target) < n {
		n = len(target)
	}

	for i := 0; i < n; i++ {
		s, t := source[i], target[i]
		if s.Outcome == t.Outcome && s.StateFingerprint == t.StateFingerprint {
			matched++
			if !isTimingDivergence(s.Duration, t.Duration) {
				continue
			}
		}

		sev, desc := classifyStepDivergence(scenarioName, i, s, t)
		if sev == voe.SeverityCritical {
			criticalCount++
		}
		discrepancies = append(discrepancies, comparator.Discrepancy{
			Kind:          voe.DiscrepancyKindBehaviorMismatch,
			Severity:      sev,
			Description:   desc,
			SourceElement: s.Selector,
			TargetElement: t.Selector,
			Confidence:    1.0,
			Component:     "behavioral_step",
		})
	}

	if len(target) != len(source) {
		discrepancies = append(discrepancies, comparator.Discrepancy{
			Kind:        voe.DiscrepancyKindBehaviorMismatch,
			Severity:    voe.SeverityCritical,
			Description: fmt.Sprintf("scenario %q produced %d steps on the source and %d on the target", scenarioName, len(source), len(target)),
			Component:   "behavioral_step",
			Confidence:  1.0,
		})
		criticalCount++
	}

	return matched, discrepancies, criticalCount
}

func classifyStepDivergence(scenarioName string, index int, s, t TraceStep) (voe.DiscrepancySeverity, string) {
	if s.StateFingerprint != t.StateFingerprint {
		return voe.SeverityCritical, fmt.Sprintf("scenario %q step %d navigated to a different state (source=%s target=%s)", scenarioName, index, s.StateFingerprint, t.StateFingerprint)
	}
	if s.Outcome != t.Outcome {
		return voe.SeverityCritical, fmt.Sprintf("scenario %q step %d outcome diverged: %q vs %q", scenarioName, index, s.Outcome, t.Outcome)
	}
	if isTimingDivergence(s.Duration, t.Duration) {
		return voe.SeverityInfo, fmt.Sprintf("scenario %q step %d timing diverged: %s vs %s", scenarioName, index, s.Duration, t.Duration)
	}
	return voe.SeverityWarning, fmt.Sprintf("scenario %q step %d message content diverged with matching state", scenarioName, index)
}

func isTimingDivergence(a, b time.Duration) bool {
	if a <= 0 || b <= 0 {
		return false
	}
	ratio := float64(a) / float64(b)
	if ratio < 1 {
		ratio = 1 / ratio
	}
	return ratio >= timingDivergenceFactor
}

// scenarioScore implements §4.5 step 4.
func scenarioScore(matched, total, criticalCount int) float64 {
	if total == 0 {
		return 1.0
	}
	score := float64(matched)/float64(total) - criticalPenalty*float64(criticalCount)
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score
}

func meanScore(results []ScenarioResult) float64 {
	if len(results) == 0 {
		return 1.0
	}
	var sum float64
	for _, r := range results {
		sum += r.Score
	}
	return sum / float64(len(results))
}

func proberErrorMessage(source, target error) string {
	switch {
	case source != nil && target != nil:
		return fmt.Sprintf("source: %v; target: %v", source, target)
	case source != nil:
		return fmt.Sprintf("source: %v", source)
	case target != nil:
		return fmt.Sprintf("target: %v", target)
	default:
		return ""
	}
}
