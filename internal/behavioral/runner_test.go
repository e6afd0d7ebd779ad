package behavioral

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/luissimon96/migration-validation-voe/internal/domain/voe"
	"github.com/luissimon96/migration-validation-voe/internal/pkg/logger"
)

type fakeProber struct {
	bySide map[string][]TraceStep
	err    map[string]error
	delay  time.Duration
}

func (p *fakeProber) Run(ctx context.Context, baseURL string, scenario voe.BehavioralScenario, creds *voe.BehavioralCredentials) ([]TraceStep, error) {
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err, ok := p.err[baseURL]; ok {
		return nil, err
	}
	return p.bySide[baseURL], nil
}

func runnerTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(log.Sync)
	return log
}

func TestProbeMatchingTracesScoreFullMarks(t *testing.T) {
	trace := []TraceStep{
		{Outcome: "status:200", StateFingerprint: "aaaa"},
		{Outcome: "status:201", StateFingerprint: "bbbb"},
	}
	prober := &fakeProber{bySide: map[string][]TraceStep{
		"http://source": trace,
		"http://target": trace,
	}}
	r := NewRunner(runnerTestLogger(t), prober)

	result := r.Probe(context.Background(), "http://source", "http://target",
		[]voe.BehavioralScenario{{Name: "login", Steps: []string{"POST /login", "GET /dashboard"}}},
		nil, 5*time.Second)

	if result.Score != 1.0 {
		t.Fatalf("expected a perfect score for identical traces, got %v", result.Score)
	}
	if len(result.Scenarios) != 1 || result.Scenarios[0].Status != voe.BehavioralExecutionMatched {
		t.Fatalf("expected scenario status matched, got %+v", result.Scenarios)
	}
}

func TestProbeStateDivergenceIsCriticalAndPenalized(t *testing.T) {
	source := []TraceStep{
		{Outcome: "status:200", StateFingerprint: "aaaa"},
		{Outcome: "status:200", StateFingerprint: "bbbb"},
	}
	target := []TraceStep{
		{Outcome: "status:200", StateFingerprint: "aaaa"},
		{Outcome: "status:200", StateFingerprint: "cccc"},
	}
	prober := &fakeProber{bySide: map[string][]TraceStep{
		"http://source": source,
		"http://target": target,
	}}
	r := NewRunner(runnerTestLogger(t), prober)

	result := r.Probe(context.Background(), "http://source", "http://target",
		[]voe.BehavioralScenario{{Name: "checkout", Steps: []string{"POST /cart", "POST /checkout"}}},
		nil, 5*time.Second)

	scenario := result.Scenarios[0]
	if scenario.Status != voe.BehavioralExecutionMismatched {
		t.Fatalf("expected mismatched status, got %s", scenario.Status)
	}
	// matched=1/2 - 0.2*1critical = 0.3
	if scenario.Score < 0.29 || scenario.Score > 0.31 {
		t.Fatalf("expected score near 0.3, got %v", scenario.Score)
	}
	foundCritical := false
	for _, d := range scenario.Discrepancies {
		if d.Severity == voe.SeverityCritical {
			foundCritical = true
		}
	}
	if !foundCritical {
		t.Fatalf("expected a critical discrepancy for the state divergence, got %+v", scenario.Discrepancies)
	}
}

func TestProbeTimingOnlyDivergenceIsInfoNotCritical(t *testing.T) {
	source := []TraceStep{{Outcome: "status:200", StateFingerprint: "aaaa", Duration: 10 * time.Millisecond}}
	target := []TraceStep{{Outcome: "status:200", StateFingerprint: "aaaa", Duration: 100 * time.Millisecond}}
	prober := &fakeProber{bySide: map[string][]TraceStep{
		"http://source": source,
		"http://target": target,
	}}
	r := NewRunner(runnerTestLogger(t), prober)

	result := r.Probe(context.Background(), "http://source", "http://target",
		[]voe.BehavioralScenario{{Name: "search", Steps: []string{"GET /search"}}},
		nil, 5*time.Second)

	scenario := result.Scenarios[0]
	if len(scenario.Discrepancies) != 1 || scenario.Discrepancies[0].Severity != voe.SeverityInfo {
		t.Fatalf("expected a single info discrepancy for timing-only divergence, got %+v", scenario.Discrepancies)
	}
}

func TestProbeProberErrorScoresZeroWithoutAbortingOtherScenarios(t *testing.T) {
	okTrace := []TraceStep{{Outcome: "status:200", StateFingerprint: "aaaa"}}
	prober := &fakeProber{
		bySide: map[string][]TraceStep{
			"http://source": okTrace,
			"http://target": okTrace,
		},
		err: map[string]error{},
	}
	r := NewRunner(runnerTestLogger(t), prober)

	failing := &fakeProber{err: map[string]error{"http://source": errors.New("connection refused")}}
	r2 := NewRunner(runnerTestLogger(t), failing)

	scenarios := []voe.BehavioralScenario{{Name: "login", Steps: []string{"GET /login"}}}

	okResult := r.Probe(context.Background(), "http://source", "http://target", scenarios, nil, 5*time.Second)
	if okResult.Scenarios[0].Status != voe.BehavioralExecutionMatched {
		t.Fatalf("expected the healthy runner to succeed, got %+v", okResult.Scenarios[0])
	}

	badResult := r2.Probe(context.Background(), "http://source", "http://target", scenarios, nil, 5*time.Second)
	if badResult.Scenarios[0].Status != voe.BehavioralExecutionError || badResult.Scenarios[0].Score != 0 {
		t.Fatalf("expected a zero-scored error scenario, got %+v", badResult.Scenarios[0])
	}
}

func TestProbeMultipleScenariosAverageTheirScores(t *testing.T) {
	perfect := []TraceStep{{Outcome: "status:200", StateFingerprint: "aaaa"}}
	prober := &fakeProber{bySide: map[string][]TraceStep{
		"http://source": perfect,
		"http://target": perfect,
	}}
	failing := &fakeProber{err: map[string]error{"http://source": errors.New("boom")}}

	scenarios := []voe.BehavioralScenario{
		{Name: "one", Steps: []string{"GET /a"}},
		{Name: "two", Steps: []string{"GET /b"}},
	}

	// Probe always applies one prober to all scenarios, so a mixed outcome
	// cannot be produced in one call; instead check the average at both
	// ends: two matching scenarios average to 1.0, two erroring ones to 0.
	r := NewRunner(runnerTestLogger(t), prober)
	good := r.Probe(context.Background(), "http://source", "http://target", scenarios, nil, 5*time.Second)
	if good.Score != 1.0 {
		t.Fatalf("expected a perfect average across two matching scenarios, got %v", good.Score)
	}

	rf := NewRunner(runnerTestLogger(t), failing)
	bad := rf.Probe(context.Background(), "http://source", "http://target", scenarios, nil, 5*time.Second)
	if bad.Score != 0 {
		t.Fatalf("expected a zero average when every scenario errors, got %v", bad.Score)
	}
}

func TestProbeScenarioTimeoutRecordsCriticalDiscrepancy(t *testing.T) {
	slow := &fakeProber{delay: 50 * time.Millisecond}
	r := NewRunner(runnerTestLogger(t), slow)

	result := r.Probe(context.Background(), "http://source", "http://target",
		[]voe.BehavioralScenario{{Name: "slow", Steps: []string{"GET /slow"}, TimeoutSeconds: 0}},
		nil, 5*time.Millisecond)

	scenario := result.Scenarios[0]
	if scenario.Status != voe.BehavioralExecutionError || scenario.Score != 0 {
		t.Fatalf("expected a timed-out scenario to error with score 0, got %+v", scenario)
	}
}
