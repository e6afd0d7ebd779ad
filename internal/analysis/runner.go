package analysis

import (
	"context"
	"fmt"
	"sync"

	"github.com/luissimon96/migration-validation-voe/internal/domain/voe"
	"github.com/luissimon96/migration-validation-voe/internal/fingerprint"
	"github.com/luissimon96/migration-validation-voe/internal/pkg/logger"
)

// DefaultConcurrency bounds the number of adapter invocations in flight
// per side of one analysis, independent of the Scheduler's own worker
// pool (that pool bounds sessions, this bounds files within a session).
const DefaultConcurrency = 4

// Runner is C3: it partitions an InputBundle by artifact kind, consults
// the analysis cache per file/image, invokes the first CodeAnalyzer that
// supports a file's language (or the LLM catch-all), invokes the
// VisualAnalyzer for screenshots, and merges partial representations by
// concatenation in input order.
type Runner struct {
	log *logger.Logger

	codeAnalyzers  []CodeAnalyzer
	visualAnalyzer VisualAnalyzer
	store          ContentStore
	cache          *fingerprint.Cache

	concurrency int
}

func NewRunner(log *logger.Logger, codeAnalyzers []CodeAnalyzer, visualAnalyzer VisualAnalyzer, store ContentStore, cache *fingerprint.Cache) *Runner {
	return &Runner{
		log:            log.With("service", "AnalysisRunner"),
		codeAnalyzers:  codeAnalyzers,
		visualAnalyzer: visualAnalyzer,
		store:          store,
		cache:          cache,
		concurrency:    DefaultConcurrency,
	}
}

// fileOutcome pairs one file's index (to preserve input order on merge)
// with its analysis result or error.
type fileOutcome struct {
	index int
	rep   voe.Representation
	err   error
}

// Analyze runs C3's algorithm for one side of a session. scope only
// affects which downstream comparator categories matter; C3 itself
// analyzes everything in the bundle regardless of scope.
func (r *Runner) Analyze(ctx context.Context, side string, bundle voe.InputBundle, scope voe.ValidationScope) (voe.Representation, error) {
	fileResults := r.runBounded(ctx, len(bundle.Files), func(i int) fileOutcome {
		rep, err := r.analyzeCodeFile(ctx, bundle.Files[i])
		return fileOutcome{index: i, rep: rep, err: err}
	})
	imageResults := r.runBounded(ctx, len(bundle.Screenshots), func(i int) fileOutcome {
		rep, err := r.analyzeScreenshot(ctx, bundle.Screenshots[i])
		return fileOutcome{index: i, rep: rep, err: err}
	})

	var merged voe.Representation
	failures := 0

	for _, outcome := range fileResults {
		if outcome.err != nil {
			failures++
			r.log.Warn("code file analysis failed", "side", side, "file", bundle.Files[outcome.index].Path, "error", outcome.err)
			continue
		}
		merged.Functions = append(merged.Functions, outcome.rep.Functions...)
		merged.DataStructures = append(merged.DataStructures, outcome.rep.DataStructures...)
		merged.Endpoints = append(merged.Endpoints, outcome.rep.Endpoints...)
	}
	for _, outcome := range imageResults {
		if outcome.err != nil {
			failures++
			r.log.Warn("screenshot analysis failed", "side", side, "file", bundle.Screenshots[outcome.index].Path, "error", outcome.err)
			continue
		}
		merged.UIElements = append(merged.UIElements, outcome.rep.UIElements...)
	}

	total := len(bundle.Files) + len(bundle.Screenshots)
	if total > 0 && failures == total {
		return merged, fmt.Errorf("analysis: every artifact on side %q failed", side)
	}
	return merged, nil
}

// runBounded invokes work(i) for i in [0,n) with at most r.concurrency
// goroutines in flight, and returns results ordered by i.
func (r *Runner) runBounded(ctx context.Context, n int, work func(i int) fileOutcome) []fileOutcome {
	if n == 0 {
		return nil
	}
	limit := r.concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	results := make([]fileOutcome, n)
	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = work(i)
		}(i)
	}
	wg.Wait()
	return results
}

func (r *Runner) analyzeCodeFile(ctx context.Context, file voe.InputFile) (voe.Representation, error) {
	content, err := r.store.Fetch(ctx, file.ContentRef)
	if err != nil {
		return voe.Representation{}, fmt.Errorf("fetch %s: %w", file.Path, err)
	}

	hash := fingerprint.File(file.Path, file.Language, string(content))
	if r.cache != nil {
		if cached, ok := r.cache.Get(ctx, fingerprint.NamespaceAnalysis, hash); ok {
			var rep voe.Representation
			if err := decodeRepresentation(cached, &rep); err == nil {
				return rep, nil
			}
		}
	}

	analyzer := r.selectCodeAnalyzer(file.Language)
	rep, err := analyzer.AnalyzeFile(ctx, file, content)
	if err != nil {
		return voe.Representation{}, err
	}

	if r.cache != nil {
		if encoded, err := encodeRepresentation(rep); err == nil {
			r.cache.Put(ctx, fingerprint.NamespaceAnalysis, hash, encoded)
		}
	}
	return rep, nil
}

func (r *Runner) analyzeScreenshot(ctx context.Context, file voe.InputFile) (voe.Representation, error) {
	if r.visualAnalyzer == nil {
		return voe.Representation{}, fmt.Errorf("no visual analyzer configured")
	}
	content, err := r.store.Fetch(ctx, file.ContentRef)
	if err != nil {
		return voe.Representation{}, fmt.Errorf("fetch %s: %w", file.Path, err)
	}

	hash := fingerprint.Image(file.Path, string(content))
	if r.cache != nil {
		if cached, ok := r.cache.Get(ctx, fingerprint.NamespaceAnalysis, hash); ok {
			var rep voe.Representation
			if err := decodeRepresentation(cached, &rep); err == nil {
				return rep, nil
			}
		}
	}

	rep, err := r.visualAnalyzer.AnalyzeImage(ctx, file.Path, content)
	if err != nil {
		return voe.Representation{}, err
	}

	if r.cache != nil {
		if encoded, err := encodeRepresentation(rep); err == nil {
			r.cache.Put(ctx, fingerprint.NamespaceAnalysis, hash, encoded)
		}
	}
	return rep, nil
}

// selectCodeAnalyzer picks the first registered analyzer that claims the
// language, falling back to the last-registered analyzer (the LLM
// catch-all, by convention registered last) if none claim it explicitly.
func (r *Runner) selectCodeAnalyzer(language string) CodeAnalyzer {
	for _, a := range r.codeAnalyzers {
		if a.SupportsLanguage(language) {
			return a
		}
	}
	return r.codeAnalyzers[len(r.codeAnalyzers)-1]
}
