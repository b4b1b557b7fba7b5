package chat

import (
	"fmt"
	"strings"

	"github.com/fpang/video-summarizer/internal/assets"
)

// SummaryInstruction returns the text sent alongside a video. A blank
// custom prompt selects the default description instruction; otherwise the
// custom prompt is used verbatim with the no-preamble rule appended.
func SummaryInstruction(custom string) string {
	if strings.TrimSpace(custom) == "" {
		return strings.TrimSpace(assets.SummaryDefaultPrompt)
	}
	return custom + " " + strings.TrimSpace(assets.SummarySuffix)
}

// Summary types offered by the prompt builder.
const (
	SummaryShort = "short"
	SummaryFull  = "full"
)

// PromptOptions are the choices a user can make instead of writing a prompt.
type PromptOptions struct {
	// Type is SummaryShort or SummaryFull.
	Type string `json:"type,omitempty"`

	// DurationMinutes is the target reading length; 0 means unspecified.
	DurationMinutes int `json:"durationMinutes,omitempty"`

	// Age requests a suitability check: 1-18 checks "under Age", above 18
	// checks for a general adult audience, 0 skips it.
	Age int `json:"age,omitempty"`

	Language       string `json:"language,omitempty"`
	BulletPoints   bool   `json:"bulletPoints,omitempty"`
	HarmfulWords   bool   `json:"harmfulWords,omitempty"`
	HarmfulVisuals bool   `json:"harmfulVisuals,omitempty"`
}

// BuildCustomPrompt turns PromptOptions into a prompt. Options that are
// unset contribute nothing; all-zero options yield an empty prompt.
func BuildCustomPrompt(o PromptOptions) string {
	var parts []string

	switch strings.ToLower(o.Type) {
	case SummaryShort:
		parts = append(parts, "Generate a short summary of the given video.")
	case SummaryFull:
		parts = append(parts, "Generate a full explanation of the given video.")
	}

	if o.DurationMinutes > 0 {
		parts = append(parts, fmt.Sprintf("The summary should be in %d minute(s).", o.DurationMinutes))
	}

	if lang := strings.TrimSpace(o.Language); lang != "" {
		parts = append(parts, fmt.Sprintf("Write the summary in %s language.", lang))
	}

	switch {
	case o.Age > 18:
		parts = append(parts, "Evaluate whether the video content (audio & visuals) is appropriate for a general adult audience.")
	case o.Age > 0:
		parts = append(parts, fmt.Sprintf("Evaluate whether the video content (audio & visuals) is appropriate for viewers under %d years old.", o.Age))
	}

	if o.BulletPoints {
		parts = append(parts, "Present the summary in well-structured bullet points, covering aspects such as video language, category (movie, song, cartoon), and tone.")
	}
	if o.HarmfulWords {
		parts = append(parts, "Identify and highlight any harmful, offensive, or inappropriate words in the transcript.")
	}
	if o.HarmfulVisuals {
		parts = append(parts, "Analyze and mention if the video contains harmful, violent, or inappropriate visuals.")
	}

	return strings.Join(parts, " ")
}
