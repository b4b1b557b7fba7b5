package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"
)

// NewOpenAIClient creates an OpenAI client. baseURL may be empty.
func NewOpenAIClient(apiKey, baseURL string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return openai.NewClientWithConfig(cfg)
}

// OpenAI generates text with an OpenAI chat model. It cannot take video.
type OpenAI struct {
	client *openai.Client
	model  string
}

// NewOpenAI returns a Generator backed by the given client and model.
func NewOpenAI(client *openai.Client, model string) *OpenAI {
	if model == "" {
		model = ModelGPT4oMini
	}
	return &OpenAI{client: client, model: model}
}

// Generate sends the request as a chat completion.
func (o *OpenAI) Generate(ctx context.Context, req Request) (string, error) {
	if len(req.Media) > 0 {
		return "", &ModelError{
			Kind:      KindUnsupported,
			Provider:  providerOpenAI,
			Operation: req.Operation,
			Message:   "chat completions do not accept video input",
		}
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.History)+2)
	if req.SystemInstruction != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemInstruction,
		})
	}
	for _, m := range req.History {
		role := openai.ChatMessageRoleUser
		if m.Role == RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Text,
	})

	completion := openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: messages,
	}
	if req.JSON {
		completion.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	log.Debug().
		Str("model", o.model).
		Str("operation", req.Operation).
		Int("messages", len(messages)).
		Msg("Starting OpenAI API call")

	callStart := time.Now()
	resp, err := o.client.CreateChatCompletion(ctx, completion)
	elapsed := time.Since(callStart)
	recordModelCall(providerOpenAI, req.Operation, elapsed, err)
	if err != nil {
		log.Error().Err(err).Str("operation", req.Operation).Dur("duration", elapsed).Msg("OpenAI API call failed")
		return "", classifyError(providerOpenAI, req.Operation, err)
	}

	if len(resp.Choices) == 0 {
		return "", &ModelError{
			Kind:      KindEmpty,
			Provider:  providerOpenAI,
			Operation: req.Operation,
			Message:   "model returned no choices",
		}
	}
	choice := resp.Choices[0]
	if choice.FinishReason == openai.FinishReasonContentFilter {
		return "", &ModelError{
			Kind:      KindEmpty,
			Provider:  providerOpenAI,
			Operation: req.Operation,
			Message:   "response blocked (content_filter)",
		}
	}

	text := strings.TrimSpace(choice.Message.Content)
	if text == "" {
		log.Warn().Str("operation", req.Operation).Dur("duration", elapsed).Msg("OpenAI returned no text")
		return "", nil
	}
	log.Debug().
		Str("operation", req.Operation).
		Int("response_length", len(text)).
		Dur("duration", elapsed).
		Msg("OpenAI API response received")
	return text, nil
}

// OpenAIEmbedder embeds text with an OpenAI embedding model.
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
	dim    int
}

// NewOpenAIEmbedder returns an Embedder producing vectors of dim dimensions.
func NewOpenAIEmbedder(client *openai.Client, model string, dim int) *OpenAIEmbedder {
	if model == "" {
		model = ModelTextEmbedding3Small
	}
	return &OpenAIEmbedder{client: client, model: model, dim: dim}
}

// Dimensions returns the configured vector size.
func (e *OpenAIEmbedder) Dimensions() int {
	return e.dim
}

// Embed returns one vector per text. OpenAI embeddings are task-agnostic.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string, _ EmbedTask) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	req := openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: texts,
	}
	if e.dim > 0 {
		req.Dimensions = e.dim
	}

	callStart := time.Now()
	resp, err := e.client.CreateEmbeddings(ctx, req)
	recordModelCall(providerOpenAI, "embed", time.Since(callStart), err)
	if err != nil {
		return nil, classifyError(providerOpenAI, "embed", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, &ModelError{
			Kind:      KindEmpty,
			Provider:  providerOpenAI,
			Operation: "embed",
			Message:   fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(resp.Data)),
		}
	}

	vectors := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			continue
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}
