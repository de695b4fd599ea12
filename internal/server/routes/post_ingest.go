package routes

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/citemesh/backend/internal/queue"
	"github.com/citemesh/backend/internal/server/middleware"
	"github.com/citemesh/backend/pkg/ai"
)

// PublishIngestHandler enqueues an extraction payload for the worker.
// The payload is parsed tolerantly up front so obviously broken
// messages never reach the queue.
func PublishIngestHandler(c echo.Context) error {
	type publishIngestResponse struct {
		Message string `json:"message"`
	}

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, publishIngestResponse{
			Message: "Invalid request body",
		})
	}

	var payload queue.ExtractionPayload
	if err := ai.UnmarshalFlexible(string(body), &payload); err != nil {
		return c.JSON(http.StatusBadRequest, publishIngestResponse{
			Message: "Invalid extraction payload",
		})
	}

	ch := c.(*middleware.AppContext).App.Queue
	if err := queue.PublishFIFO(ch, queue.IngestQueue, body); err != nil {
		return c.JSON(http.StatusInternalServerError, publishIngestResponse{
			Message: "Failed to enqueue payload",
		})
	}

	return c.JSON(http.StatusAccepted, publishIngestResponse{
		Message: "Payload enqueued",
	})
}
