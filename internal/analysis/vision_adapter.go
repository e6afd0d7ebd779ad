package analysis

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/luissimon96/migration-validation-voe/internal/clients/gcp"
	"github.com/luissimon96/migration-validation-voe/internal/domain/voe"
)

// VisionAnalyzer is the VisualAnalyzer adapter backed by Google Cloud
// Vision OCR. It turns recovered text segments into UIElements, guessing
// a kind from simple textual cues (a real layout model is out of scope;
// the Comparator only needs a kind/text/attributes triple per element).
type VisionAnalyzer struct {
	vision gcp.Vision
}

func NewVisionAnalyzer(vision gcp.Vision) *VisionAnalyzer {
	return &VisionAnalyzer{vision: vision}
}

func (a *VisionAnalyzer) Name() string { return "vision-model" }

func (a *VisionAnalyzer) AnalyzeImage(ctx context.Context, path string, content []byte) (voe.Representation, error) {
	result, err := a.vision.OCRImageBytes(ctx, content, mimeTypeFromPath(path))
	if err != nil {
		return voe.Representation{}, fmt.Errorf("vision analyzer: %w", err)
	}

	var rep voe.Representation
	for i, seg := range result.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		for _, line := range strings.Split(text, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			rep.UIElements = append(rep.UIElements, voe.UIElement{
				ID:             fmt.Sprintf("%s#%d#%d", path, i, len(rep.UIElements)),
				Kind:           guessUIKind(line),
				Text:           line,
				AnalysisMethod: "vision-model",
			})
		}
	}
	return rep, nil
}

var (
	buttonWords = regexp.MustCompile(`(?i)^(submit|save|cancel|ok|delete|confirm|sign in|log in|log out|next|back|continue)$`)
)

func guessUIKind(text string) voe.UIElementKind {
	switch {
	case buttonWords.MatchString(strings.TrimSpace(text)):
		return "button"
	case strings.HasSuffix(text, ":"):
		return "label"
	default:
		return "text"
	}
}

func mimeTypeFromPath(path string) string {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".png"):
		return "image/png"
	case strings.HasSuffix(lower, ".jpg"), strings.HasSuffix(lower, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(lower, ".webp"):
		return "image/webp"
	default:
		return "image/png"
	}
}
