package ollama

import (
	"net/http"
	"net/url"
	"sync"

	"github.com/citemesh/backend/pkg/ai"

	"github.com/ollama/ollama/api"
	"golang.org/x/sync/semaphore"
)

// EmbeddingOllamaClient implements ai.EmbeddingClient against an Ollama
// server, local or remote.
type EmbeddingOllamaClient struct {
	embeddingModel string
	timeoutMin     int64

	reqLock *semaphore.Weighted

	metricsLock sync.Mutex
	metrics     ai.ModelMetrics

	baseURL    *url.URL
	apiKey     string
	httpClient *http.Client

	Client *api.Client
}

// NewEmbeddingOllamaClientParams contains configuration options for
// creating a new EmbeddingOllamaClient.
type NewEmbeddingOllamaClientParams struct {
	EmbeddingModel string

	BaseURL string
	ApiKey  string

	MaxConcurrentRequests int64
	TimeoutMin            int64
}

type headerTransport struct {
	headers map[string]string
	rt      http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// clone so original request isn't modified
	r := req.Clone(req.Context())
	for k, v := range t.headers {
		// don't overwrite if already set
		if r.Header.Get(k) == "" {
			r.Header.Set(k, v)
		}
	}
	return t.rt.RoundTrip(r)
}

// NewEmbeddingOllamaClient creates an Ollama-backed embedding client.
// It connects to the server at BaseURL (or the Ollama default when
// empty) and limits in-flight requests with a weighted semaphore.
func NewEmbeddingOllamaClient(
	params NewEmbeddingOllamaClientParams,
) (*EmbeddingOllamaClient, error) {
	var (
		u   *url.URL
		err error
	)

	if params.BaseURL != "" {
		u, err = url.Parse(params.BaseURL)
		if err != nil {
			return nil, err
		}
	}

	httpClient := &http.Client{
		Transport: &headerTransport{
			headers: map[string]string{
				"Authorization": "Bearer " + params.ApiKey,
			},
			rt: http.DefaultTransport,
		},
	}

	cli := api.NewClient(u, httpClient)

	maxConcurrent := params.MaxConcurrentRequests
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	timeoutMin := params.TimeoutMin
	if timeoutMin <= 0 {
		timeoutMin = 5
	}

	return &EmbeddingOllamaClient{
		embeddingModel: params.EmbeddingModel,
		timeoutMin:     timeoutMin,

		reqLock: semaphore.NewWeighted(maxConcurrent),

		metricsLock: sync.Mutex{},
		metrics:     ai.ModelMetrics{},

		baseURL:    u,
		apiKey:     params.ApiKey,
		httpClient: httpClient,

		Client: cli,
	}, nil
}
