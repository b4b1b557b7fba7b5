// Package chat talks to the generative and embedding models behind the
// summarizer. Gemini is the default provider; OpenAI is available for
// text-only work and embeddings.
package chat

import "context"

// Message roles stored in conversation history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a conversation.
type Message struct {
	Role    string `json:"role" dynamodbav:"role"`
	Content string `json:"content" dynamodbav:"content"`
}

// Media is a video or image part of a request. Data is sent inline; when
// Data is nil the file at Path is uploaded to the provider first.
type Media struct {
	MIMEType string
	Data     []byte
	Path     string
}

// Request is a single model invocation. Media parts precede Text in the
// final user turn.
type Request struct {
	Operation         string // labels the call in logs and metrics
	SystemInstruction string
	History           []Message
	Text              string
	Media             []Media

	// JSON asks the model for a JSON object response.
	JSON bool
}

// Generator produces text from a Request.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// EmbedTask tells the embedding model how the vectors will be used.
type EmbedTask int

const (
	EmbedDocument EmbedTask = iota
	EmbedQuery
)

// Embedder turns texts into vectors, one per input, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string, task EmbedTask) ([][]float32, error)
	Dimensions() int
}
