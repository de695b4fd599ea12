package routes

import (
	"net/http"

	_ "github.com/go-playground/validator"
	"github.com/labstack/echo/v4"

	"github.com/citemesh/backend/internal/server/middleware"
	"github.com/citemesh/backend/pkg/usage"
)

// TrackUsageHandler records one downstream use of a citation.
func TrackUsageHandler(c echo.Context) error {
	type trackUsageParams struct {
		Key string `param:"key" validate:"required"`
	}

	type trackUsageBody struct {
		Context    string  `json:"context"`
		Section    string  `json:"section"`
		Confidence float64 `json:"confidence"`
	}

	type trackUsageResponse struct {
		Message string `json:"message"`
		Tracked bool   `json:"tracked"`
	}

	params := new(trackUsageParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, trackUsageResponse{
			Message: "Invalid request params",
		})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, trackUsageResponse{
			Message: "Invalid request params",
		})
	}

	data := new(trackUsageBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, trackUsageResponse{
			Message: "Invalid request body",
		})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App
	tracker := usage.NewTracker(app.Citations)

	tracked, err := tracker.Track(ctx, usage.TrackParams{
		CitationKey: params.Key,
		Context:     data.Context,
		Section:     data.Section,
		Confidence:  data.Confidence,
	})
	if err != nil {
		return errorJSON(c, err)
	}
	if !tracked {
		return c.JSON(http.StatusNotFound, trackUsageResponse{
			Message: "Unknown citation key",
		})
	}

	return c.JSON(http.StatusOK, trackUsageResponse{
		Message: "Usage recorded",
		Tracked: true,
	})
}
