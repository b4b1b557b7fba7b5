package chat

// Gemini model IDs.
//
// | Model Name            | API Model ID          | Use Case                      |
// |-----------------------|-----------------------|-------------------------------|
// | Gemini 2.5 Pro        | gemini-2.5-pro        | Long videos, careful answers  |
// | Gemini 2.5 Flash      | gemini-2.5-flash      | Default, video understanding  |
// | Gemini 2.5 Flash-Lite | gemini-2.5-flash-lite | Classification, lowest cost   |
// | Gemini Embedding      | gemini-embedding-001  | Summary chunk embeddings      |
const (
	ModelGemini25Pro       = "gemini-2.5-pro"
	ModelGemini25Flash     = "gemini-2.5-flash"
	ModelGemini25FlashLite = "gemini-2.5-flash-lite"
	ModelGeminiEmbedding   = "gemini-embedding-001"
)

// OpenAI model IDs.
const (
	ModelGPT4oMini           = "gpt-4o-mini"
	ModelTextEmbedding3Small = "text-embedding-3-small"
)

const (
	providerGoogle = "google"
	providerOpenAI = "openai"
)
