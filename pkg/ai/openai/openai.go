package openai

import (
	"sync"

	"github.com/citemesh/backend/pkg/ai"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"golang.org/x/sync/semaphore"
)

// EmbeddingOpenAIClient implements ai.EmbeddingClient against any
// OpenAI-compatible embedding endpoint.
type EmbeddingOpenAIClient struct {
	embeddingModel string
	embeddingURL   string
	embeddingKey   string
	timeoutMin     int64

	embeddingLock *semaphore.Weighted

	metricsLock sync.Mutex
	metrics     ai.ModelMetrics

	EmbeddingClient *openai.Client
}

// NewEmbeddingOpenAIClientParams defines the configuration for creating
// a new EmbeddingOpenAIClient. EmbeddingURL and EmbeddingKey configure
// the endpoint; an empty URL means the OpenAI default.
type NewEmbeddingOpenAIClientParams struct {
	EmbeddingModel string

	EmbeddingURL string
	EmbeddingKey string

	MaxConcurrentRequests int64
	TimeoutMin            int64
}

// NewEmbeddingOpenAIClient creates and returns a new embedding client
// configured with the provided parameters.
func NewEmbeddingOpenAIClient(
	params NewEmbeddingOpenAIClientParams,
) *EmbeddingOpenAIClient {
	maxConcurrent := params.MaxConcurrentRequests
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	timeoutMin := params.TimeoutMin
	if timeoutMin <= 0 {
		timeoutMin = 5
	}

	return &EmbeddingOpenAIClient{
		embeddingModel: params.EmbeddingModel,
		embeddingURL:   params.EmbeddingURL,
		embeddingKey:   params.EmbeddingKey,
		timeoutMin:     timeoutMin,

		embeddingLock: semaphore.NewWeighted(maxConcurrent),

		metricsLock: sync.Mutex{},
		metrics:     ai.ModelMetrics{},

		EmbeddingClient: newOpenaiClient(params.EmbeddingURL, params.EmbeddingKey),
	}
}

func newOpenaiClient(
	baseURL string,
	apiKey string,
) *openai.Client {
	if apiKey == "" {
		return nil
	}
	options := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}

	if baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}

	client := openai.NewClient(options...)

	return &client
}

func (c *EmbeddingOpenAIClient) modifyMetrics(m ai.ModelMetrics) {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()

	c.metrics.InputTokens += m.InputTokens
	c.metrics.TotalTokens += m.TotalTokens
	c.metrics.DurationMs += m.DurationMs
}

// GetMetrics returns the metrics accumulated since the last reset.
func (c *EmbeddingOpenAIClient) GetMetrics() ai.ModelMetrics {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	return c.metrics
}

// ResetMetrics zeroes the accumulated metrics.
func (c *EmbeddingOpenAIClient) ResetMetrics() {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	c.metrics = ai.ModelMetrics{}
}
