package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fpang/video-summarizer/internal/metrics"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

// NewGeminiClient creates a Gemini API client for the given key.
func NewGeminiClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return client, nil
}

// Gemini generates text with a Gemini model. Small media is sent as inline
// blobs; media given only by path is uploaded through the Files API.
type Gemini struct {
	client       *genai.Client
	files        fileService
	model        string
	pollInterval time.Duration
}

// NewGemini returns a Generator backed by the given client and model.
func NewGemini(client *genai.Client, model string) *Gemini {
	if model == "" {
		model = ModelGemini25Flash
	}
	g := &Gemini{client: client, model: model, pollInterval: filePollInterval}
	if client != nil {
		g.files = client.Files
	}
	return g
}

// Generate sends the request and returns the response text. A reply with
// no text is returned as "" unless Gemini blocked it.
func (g *Gemini) Generate(ctx context.Context, req Request) (string, error) {
	media, cleanup, err := g.mediaParts(ctx, req.Operation, req.Media)
	if err != nil {
		return "", err
	}
	defer cleanup()
	contents := geminiContents(req, media)

	config := &genai.GenerateContentConfig{}
	if req.SystemInstruction != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.SystemInstruction}},
		}
	}
	if req.JSON {
		config.ResponseMIMEType = "application/json"
	}

	log.Debug().
		Str("model", g.model).
		Str("operation", req.Operation).
		Int("history_turns", len(req.History)).
		Int("media_parts", len(req.Media)).
		Int("prompt_length", len(req.Text)).
		Msg("Starting Gemini API call")

	callStart := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	elapsed := time.Since(callStart)

	recordModelCall(providerGoogle, req.Operation, elapsed, err)

	if err != nil {
		log.Error().Err(err).Str("operation", req.Operation).Dur("duration", elapsed).Msg("Gemini API call failed")
		return "", classifyError(providerGoogle, req.Operation, err)
	}

	text := ""
	if resp != nil {
		text = strings.TrimSpace(resp.Text())
	}
	if text == "" {
		if reason, blocked := blockReason(resp); blocked {
			return "", &ModelError{
				Kind:      KindEmpty,
				Provider:  providerGoogle,
				Operation: req.Operation,
				Message:   "response blocked (" + reason + ")",
			}
		}
		log.Warn().Str("operation", req.Operation).Dur("duration", elapsed).Msg("Gemini returned no text")
		return "", nil
	}

	log.Debug().
		Str("operation", req.Operation).
		Int("response_length", len(text)).
		Dur("duration", elapsed).
		Msg("Gemini API response received")
	return text, nil
}

// blockReason reports whether Gemini withheld the reply for safety,
// recitation or policy reasons.
func blockReason(resp *genai.GenerateContentResponse) (string, bool) {
	if resp == nil {
		return "", false
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return string(resp.PromptFeedback.BlockReason), true
	}
	for _, c := range resp.Candidates {
		switch c.FinishReason {
		case genai.FinishReasonSafety, genai.FinishReasonRecitation, genai.FinishReasonBlocklist,
			genai.FinishReasonProhibitedContent, genai.FinishReasonSPII:
			return string(c.FinishReason), true
		}
	}
	return "", false
}

func geminiContents(req Request, media []*genai.Part) []*genai.Content {
	contents := make([]*genai.Content, 0, len(req.History)+1)
	for _, m := range req.History {
		role := "user"
		if m.Role == RoleAssistant {
			role = "model"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: m.Content}},
		})
	}

	parts := make([]*genai.Part, 0, len(media)+1)
	parts = append(parts, media...)
	if req.Text != "" {
		parts = append(parts, &genai.Part{Text: req.Text})
	}
	return append(contents, &genai.Content{Role: "user", Parts: parts})
}

// GeminiEmbedder embeds text with a Gemini embedding model.
type GeminiEmbedder struct {
	client *genai.Client
	model  string
	dim    int
}

// NewGeminiEmbedder returns an Embedder producing vectors of dim dimensions.
func NewGeminiEmbedder(client *genai.Client, model string, dim int) *GeminiEmbedder {
	if model == "" {
		model = ModelGeminiEmbedding
	}
	return &GeminiEmbedder{client: client, model: model, dim: dim}
}

// Dimensions returns the configured vector size.
func (e *GeminiEmbedder) Dimensions() int {
	return e.dim
}

// Embed returns one vector per text.
func (e *GeminiEmbedder) Embed(ctx context.Context, texts []string, task EmbedTask) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = &genai.Content{Parts: []*genai.Part{{Text: t}}}
	}

	taskType := "RETRIEVAL_DOCUMENT"
	if task == EmbedQuery {
		taskType = "RETRIEVAL_QUERY"
	}
	config := &genai.EmbedContentConfig{TaskType: taskType}
	if e.dim > 0 {
		config.OutputDimensionality = genai.Ptr(int32(e.dim))
	}

	callStart := time.Now()
	resp, err := e.client.Models.EmbedContent(ctx, e.model, contents, config)
	recordModelCall(providerGoogle, "embed", time.Since(callStart), err)
	if err != nil {
		return nil, classifyError(providerGoogle, "embed", err)
	}
	if resp == nil || len(resp.Embeddings) != len(texts) {
		return nil, &ModelError{
			Kind:      KindEmpty,
			Provider:  providerGoogle,
			Operation: "embed",
			Message:   fmt.Sprintf("expected %d embeddings", len(texts)),
		}
	}

	vectors := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		vectors[i] = emb.Values
	}
	return vectors, nil
}

func recordModelCall(provider, op string, elapsed time.Duration, err error) {
	result := "success"
	if err != nil {
		result = classifyError(provider, op, err).Kind.String()
	}
	metrics.New(metrics.Namespace).
		Dimension("Provider", provider).
		Dimension("Operation", op).
		Dimension("Result", result).
		Metric("ModelLatencyMs", float64(elapsed.Milliseconds()), metrics.UnitMilliseconds).
		Count("ModelCalls").
		Flush()
}
