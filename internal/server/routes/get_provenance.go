package routes

import (
	"net/http"

	_ "github.com/go-playground/validator"
	"github.com/labstack/echo/v4"

	"github.com/citemesh/backend/internal/server/middleware"
	"github.com/citemesh/backend/pkg/provenance"
)

// GetEntityProvenanceHandler resolves an entity's supporting citations
// and their summary.
func GetEntityProvenanceHandler(c echo.Context) error {
	type getProvenanceParams struct {
		ID string `param:"id" validate:"required"`
	}

	params := new(getProvenanceParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App
	linker := provenance.NewLinker(app.Citations, app.Graph)

	report, err := linker.QueryEntityProvenance(ctx, params.ID)
	if err != nil {
		return errorJSON(c, err)
	}

	return c.JSON(http.StatusOK, report)
}

// GetCitationImpactHandler summarizes how much of the graph a citation
// supports.
func GetCitationImpactHandler(c echo.Context) error {
	type getImpactParams struct {
		Key string `param:"key" validate:"required"`
	}

	params := new(getImpactParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	impact, err := app.Graph.CitationImpact(ctx, params.Key)
	if err != nil {
		return errorJSON(c, err)
	}

	return c.JSON(http.StatusOK, impact)
}
