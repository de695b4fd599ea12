package ollama

import (
	"context"
	"strings"
	"time"

	"github.com/citemesh/backend/internal/util"
	"github.com/citemesh/backend/pkg/ai"

	"github.com/ollama/ollama/api"
	"golang.org/x/sync/errgroup"
)

const (
	defaultDimensions = 1536
	defaultMaxTokens  = 8000
)

// GenerateEmbedding creates a vector embedding for the given input text
// using the configured embedding model on Ollama.
//
// Empty input returns a zero vector of the configured dimensionality so
// that callers can keep positional alignment without special-casing.
func (c *EmbeddingOllamaClient) GenerateEmbedding(
	ctx context.Context,
	input []byte,
) ([]float32, error) {
	dim := int(util.GetEnvNumeric("AI_EMBED_DIM", defaultDimensions))
	if len(input) == 0 || len(strings.TrimSpace(string(input))) == 0 {
		return make([]float32, dim), nil
	}

	maxTokens := int(util.GetEnvNumeric("AI_EMBED_MAX_TOKENS", defaultMaxTokens))
	text := ai.TruncateTokens(string(input), maxTokens)

	rCtx, cancel := context.WithTimeout(ctx, time.Minute*time.Duration(c.timeoutMin))
	defer cancel()

	req := &api.EmbedRequest{
		Model: c.embeddingModel,
		Input: text,
	}

	if err := c.reqLock.Acquire(rCtx, 1); err != nil {
		return nil, err
	}
	defer c.reqLock.Release(1)

	res, err := c.Client.Embed(rCtx, req)
	if err != nil {
		return nil, err
	}

	c.modifyMetrics(ai.ModelMetrics{
		InputTokens: res.PromptEvalCount,
		TotalTokens: res.PromptEvalCount,
		DurationMs:  res.TotalDuration.Milliseconds(),
	})

	out := make([]float32, 0, dim)
	for _, v := range res.Embeddings {
		for _, val := range v {
			if len(out) >= dim {
				break
			}
			out = append(out, float32(val))
		}
	}
	if len(out) < dim {
		padded := make([]float32, dim)
		copy(padded, out)
		out = padded
	}
	return out, nil
}

// GenerateEmbeddings embeds each input concurrently, preserving input
// order. The client's semaphore bounds actual parallelism.
func (c *EmbeddingOllamaClient) GenerateEmbeddings(
	ctx context.Context,
	inputs [][]byte,
) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(inputs))
	eg, ectx := errgroup.WithContext(ctx)
	for i := range inputs {
		idx := i
		input := inputs[i]
		eg.Go(func() error {
			vec, err := c.GenerateEmbedding(ectx, input)
			if err != nil {
				return err
			}
			out[idx] = vec
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
