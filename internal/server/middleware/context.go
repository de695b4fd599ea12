package middleware

import (
	"github.com/MicahParks/keyfunc/v3"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/labstack/echo/v4"
	"github.com/rabbitmq/amqp091-go"

	"github.com/citemesh/backend/internal/util"
	"github.com/citemesh/backend/pkg/ai"
	oai "github.com/citemesh/backend/pkg/ai/ollama"
	gai "github.com/citemesh/backend/pkg/ai/openai"
	"github.com/citemesh/backend/pkg/logger"
	"github.com/citemesh/backend/pkg/store"
)

type AppUser struct {
	UserID      int64
	Role        string
	Permissions []string
}

type App struct {
	Citations      store.CitationRepository
	Graph          store.EntityGraphRepository
	Queue          *amqp091.Channel
	Key            *keyfunc.Keyfunc
	S3             *s3.Client
	AiClient       ai.EmbeddingClient
	MasterAPIKey   string
	MasterUserID   int64
	MasterUserRole string
}

type AppContext struct {
	echo.Context
	App  *App
	User *AppUser
}

// NewEmbeddingClient builds the embedding backend selected by
// AI_ADAPTER. The worker does the same switch on its side.
func NewEmbeddingClient() ai.EmbeddingClient {
	adapter := util.GetEnv("AI_ADAPTER")

	switch adapter {
	case "ollama":
		client, err := oai.NewEmbeddingOllamaClient(oai.NewEmbeddingOllamaClientParams{
			EmbeddingModel: util.GetEnv("AI_EMBED_MODEL"),

			BaseURL: util.GetEnv("AI_EMBED_URL"),
			ApiKey:  util.GetEnv("AI_EMBED_KEY"),

			MaxConcurrentRequests: int64(util.GetEnvNumeric("AI_PARALLEL_REQ", 4)),
		})
		if err != nil {
			logger.Fatal("Failed to create Ollama client", "err", err)
		}
		return client
	default:
		return gai.NewEmbeddingOpenAIClient(gai.NewEmbeddingOpenAIClientParams{
			EmbeddingModel: util.GetEnv("AI_EMBED_MODEL"),

			EmbeddingURL: util.GetEnv("AI_EMBED_URL"),
			EmbeddingKey: util.GetEnv("AI_EMBED_KEY"),

			MaxConcurrentRequests: int64(util.GetEnvNumeric("AI_PARALLEL_REQ", 4)),
		})
	}
}

func AppContextMiddleware(app *App) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc := &AppContext{c, app, nil}
			return next(cc)
		}
	}
}
