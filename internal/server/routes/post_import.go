package routes

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/citemesh/backend/internal/server/middleware"
	"github.com/citemesh/backend/pkg/export"
)

// ImportHandler replays a dump into the catalog. Only JSON dumps
// round-trip; other formats are rejected with a validation error.
// Per-record failures are reported as warnings, not a failed request.
func ImportHandler(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App
	exporter := export.NewExporter(app.Citations)

	result, err := exporter.Import(ctx, body, c.QueryParam("format"))
	if err != nil {
		return errorJSON(c, err)
	}

	return c.JSON(http.StatusOK, result)
}
