package analysis

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// LocalContentStore resolves InputFile.ContentRef as a path relative to a
// base directory. cmd/main.go roots it at UPLOAD_DIR, the directory the
// validate handlers save uploaded files into, so the upload-relative refs
// they record resolve here.
type LocalContentStore struct {
	baseDir string
}

func NewLocalContentStore(baseDir string) *LocalContentStore {
	return &LocalContentStore{baseDir: baseDir}
}

func (s *LocalContentStore) Fetch(ctx context.Context, ref string) ([]byte, error) {
	if ref == "" {
		return nil, fmt.Errorf("content store: empty reference")
	}
	path := ref
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.baseDir, ref)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("content store: read %s: %w", ref, err)
	}
	return b, nil
}
