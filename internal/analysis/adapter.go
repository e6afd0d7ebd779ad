package analysis

import (
	"context"

	"github.com/luissimon96/migration-validation-voe/internal/domain/voe"
)

// CodeAnalyzer extracts an abstract Representation from one source file.
// Implementations are language-scoped; the Runner asks each registered
// analyzer whether it can handle a file's language before invoking it.
// content is the file's already-resolved bytes (the Runner fetches them
// once via a ContentStore, both to fingerprint and to analyze).
type CodeAnalyzer interface {
	Name() string
	SupportsLanguage(language string) bool
	AnalyzeFile(ctx context.Context, file voe.InputFile, content []byte) (voe.Representation, error)
}

// VisualAnalyzer extracts UI elements from one screenshot.
type VisualAnalyzer interface {
	Name() string
	AnalyzeImage(ctx context.Context, path string, content []byte) (voe.Representation, error)
}

// ContentStore resolves an InputFile/screenshot's content reference
// (an object-store key or local path) to bytes. The Runner fetches
// content exactly once per artifact, before both fingerprinting and
// analysis.
type ContentStore interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}
