package ai

import "context"

// ModelMetrics accumulates usage numbers across embedding requests.
type ModelMetrics struct {
	InputTokens int   `json:"input_tokens"`
	TotalTokens int   `json:"total_tokens"`
	DurationMs  int64 `json:"duration_ms"`
}

// EmbeddingClient is the interface the storage layer uses to turn
// citation text into vectors. Implementations live in the ollama and
// openai subpackages; which one is active is decided by AI_ADAPTER at
// startup.
type EmbeddingClient interface {
	GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error)
	GenerateEmbeddings(ctx context.Context, inputs [][]byte) ([][]float32, error)

	ResetMetrics()
	GetMetrics() ModelMetrics
}
