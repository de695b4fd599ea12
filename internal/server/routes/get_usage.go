package routes

import (
	"net/http"

	_ "github.com/go-playground/validator"
	"github.com/labstack/echo/v4"

	"github.com/citemesh/backend/internal/server/middleware"
	"github.com/citemesh/backend/pkg/usage"
)

// GetUsageHandler returns the usage summary for a citation. The count
// comes from the event log, not the cached counter.
func GetUsageHandler(c echo.Context) error {
	type getUsageParams struct {
		Key string `param:"key" validate:"required"`
	}

	params := new(getUsageParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App
	tracker := usage.NewTracker(app.Citations)

	summary, err := tracker.GetUsage(ctx, params.Key)
	if err != nil {
		return errorJSON(c, err)
	}

	return c.JSON(http.StatusOK, summary)
}
