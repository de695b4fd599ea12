package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/citemesh/backend/internal/queue"
)

// GetIngestSchemaHandler returns the JSON schema of the extraction
// payload so producers can validate before publishing.
func GetIngestSchemaHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, queue.PayloadSchema())
}
