package analysis

import (
	"context"
	"fmt"
	"testing"

	"github.com/luissimon96/migration-validation-voe/internal/domain/voe"
	"github.com/luissimon96/migration-validation-voe/internal/pkg/logger"
)

type fakeContentStore struct {
	content map[string][]byte
}

func (s *fakeContentStore) Fetch(ctx context.Context, ref string) ([]byte, error) {
	b, ok := s.content[ref]
	if !ok {
		return nil, fmt.Errorf("no content for %s", ref)
	}
	return b, nil
}

type fakeCodeAnalyzer struct {
	fail map[string]bool
}

func (a *fakeCodeAnalyzer) Name() string                          { return "fake" }
func (a *fakeCodeAnalyzer) SupportsLanguage(language string) bool { return true }
func (a *fakeCodeAnalyzer) AnalyzeFile(ctx context.Context, file voe.InputFile, content []byte) (voe.Representation, error) {
	if a.fail[file.Path] {
		return voe.Representation{}, fmt.Errorf("boom: %s", file.Path)
	}
	return voe.Representation{Functions: []voe.BackendFunction{{ID: file.Path, Name: file.Path}}}, nil
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

func TestRunnerMergesFilesInInputOrder(t *testing.T) {
	store := &fakeContentStore{content: map[string][]byte{
		"a.py": []byte("a"),
		"b.py": []byte("b"),
		"c.py": []byte("c"),
	}}
	r := NewRunner(runnerTestLogger(t), []CodeAnalyzer{&fakeCodeAnalyzer{}}, nil, store, nil)

	bundle := voe.InputBundle{Files: []voe.InputFile{
		{Path: "a.py", ContentRef: "a.py", Language: "python"},
		{Path: "b.py", ContentRef: "b.py", Language: "python"},
		{Path: "c.py", ContentRef: "c.py", Language: "python"},
	}}

	rep, err := r.Analyze(context.Background(), "source", bundle, voe.ScopeFull)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(rep.Functions) != 3 {
		t.Fatalf("expected 3 functions, got %d", len(rep.Functions))
	}
	for i, want := range []string{"a.py", "b.py", "c.py"} {
		if rep.Functions[i].Name != want {
			t.Fatalf("expected order-preserving merge, position %d got %q want %q", i, rep.Functions[i].Name, want)
		}
	}
}

func TestRunnerTreatsPartialFailureAsOk(t *testing.T) {
	store := &fakeContentStore{content: map[string][]byte{
		"a.py": []byte("a"),
		"b.py": []byte("b"),
	}}
	analyzer := &fakeCodeAnalyzer{fail: map[string]bool{"a.py": true}}
	r := NewRunner(runnerTestLogger(t), []CodeAnalyzer{analyzer}, nil, store, nil)

	bundle := voe.InputBundle{Files: []voe.InputFile{
		{Path: "a.py", ContentRef: "a.py", Language: "python"},
		{Path: "b.py", ContentRef: "b.py", Language: "python"},
	}}

	rep, err := r.Analyze(context.Background(), "source", bundle, voe.ScopeFull)
	if err != nil {
		t.Fatalf("expected partial failure to not abort the stage: %v", err)
	}
	if len(rep.Functions) != 1 || rep.Functions[0].Name != "b.py" {
		t.Fatalf("expected only b.py's result to survive, got %+v", rep.Functions)
	}
}

func TestRunnerAbortsWhenEveryFileFails(t *testing.T) {
	store := &fakeContentStore{content: map[string][]byte{"a.py": []byte("a")}}
	analyzer := &fakeCodeAnalyzer{fail: map[string]bool{"a.py": true}}
	r := NewRunner(runnerTestLogger(t), []CodeAnalyzer{analyzer}, nil, store, nil)

	bundle := voe.InputBundle{Files: []voe.InputFile{{Path: "a.py", ContentRef: "a.py", Language: "python"}}}

	_, err := r.Analyze(context.Background(), "source", bundle, voe.ScopeFull)
	if err == nil {
		t.Fatalf("expected an error when every file fails")
	}
}
