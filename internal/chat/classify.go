package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/fpang/video-summarizer/internal/assets"
	"github.com/fpang/video-summarizer/internal/catalog"
	"github.com/fpang/video-summarizer/internal/jsonutil"
	"github.com/rs/zerolog/log"
)

// Classification is the category and audience rating inferred from a summary.
type Classification struct {
	Category    string              `json:"category"`
	Suitability catalog.Suitability `json:"suitability"`
}

type classificationResponse struct {
	Category    string `json:"category"`
	Suitability string `json:"suitability"`
}

// Classifier rates a video from its summary.
type Classifier struct {
	gen Generator
}

// NewClassifier returns a Classifier that asks gen for a JSON verdict.
func NewClassifier(gen Generator) *Classifier {
	return &Classifier{gen: gen}
}

// Classify asks the model for a category and suitability. The suitability
// must be one of the catalog levels; a blank category is rejected.
func (c *Classifier) Classify(ctx context.Context, videoName, summary string) (Classification, error) {
	if strings.TrimSpace(summary) == "" {
		return Classification{}, fmt.Errorf("classify %s: empty summary", videoName)
	}

	prompt := assets.RenderClassifyPrompt(assets.ClassifyData{
		VideoName:     videoName,
		Summary:       summary,
		Categories:    catalog.Categories,
		Suitabilities: catalog.SuitabilityStrings(),
	})

	text, err := c.gen.Generate(ctx, Request{
		Operation: "classify",
		Text:      prompt,
		JSON:      true,
	})
	if err != nil {
		return Classification{}, err
	}

	resp, err := jsonutil.ParseJSON[classificationResponse](text)
	if err != nil {
		return Classification{}, fmt.Errorf("parse classification: %w", err)
	}

	category := strings.TrimSpace(resp.Category)
	if category == "" {
		return Classification{}, fmt.Errorf("classification for %s has no category", videoName)
	}
	suitability, err := catalog.ParseSuitability(resp.Suitability)
	if err != nil {
		return Classification{}, fmt.Errorf("classification for %s: %w", videoName, err)
	}

	log.Debug().
		Str("video", videoName).
		Str("category", category).
		Str("suitability", string(suitability)).
		Msg("Video classified")
	return Classification{Category: category, Suitability: suitability}, nil
}
