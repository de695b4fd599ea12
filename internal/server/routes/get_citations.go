package routes

import (
	"net/http"

	_ "github.com/go-playground/validator"
	"github.com/labstack/echo/v4"

	"github.com/citemesh/backend/internal/server/middleware"
	"github.com/citemesh/backend/pkg/store"
)

// GetCitationHandler returns a single citation by key.
func GetCitationHandler(c echo.Context) error {
	type getCitationParams struct {
		Key string `param:"key" validate:"required"`
	}

	params := new(getCitationParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}

	ctx := c.Request().Context()
	citations := c.(*middleware.AppContext).App.Citations

	citation, err := citations.Get(ctx, params.Key)
	if err != nil {
		return errorJSON(c, err)
	}

	return c.JSON(http.StatusOK, citation)
}

// GetCitationsHandler lists the catalog, optionally restricted to used
// or unused citations.
func GetCitationsHandler(c echo.Context) error {
	ctx := c.Request().Context()
	citations := c.(*middleware.AppContext).App.Citations

	switch c.QueryParam("filter") {
	case "used":
		list, err := citations.Used(ctx)
		if err != nil {
			return errorJSON(c, err)
		}
		return c.JSON(http.StatusOK, list)
	case "unused":
		list, err := citations.Unused(ctx)
		if err != nil {
			return errorJSON(c, err)
		}
		return c.JSON(http.StatusOK, list)
	case "", "all":
		list, err := citations.All(ctx)
		if err != nil {
			return errorJSON(c, err)
		}
		return c.JSON(http.StatusOK, list)
	}

	return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid filter"})
}

// SearchCitationsHandler ranks citations against a free-text query.
func SearchCitationsHandler(c echo.Context) error {
	type searchCitationsQuery struct {
		Query    string `query:"q" validate:"required"`
		YearFrom int    `query:"year_from"`
		YearTo   int    `query:"year_to"`
		Journal  string `query:"journal"`
		UsedOnly bool   `query:"used_only"`
		Limit    int    `query:"limit"`
	}

	params := new(searchCitationsQuery)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}

	ctx := c.Request().Context()
	citations := c.(*middleware.AppContext).App.Citations

	results, err := citations.Search(ctx, params.Query, store.SearchFilter{
		YearFrom: params.YearFrom,
		YearTo:   params.YearTo,
		Journal:  params.Journal,
		UsedOnly: params.UsedOnly,
		Limit:    params.Limit,
	})
	if err != nil {
		return errorJSON(c, err)
	}

	return c.JSON(http.StatusOK, results)
}

// GetCitationStatsHandler returns the catalog-level summary.
func GetCitationStatsHandler(c echo.Context) error {
	ctx := c.Request().Context()
	citations := c.(*middleware.AppContext).App.Citations

	stats, err := citations.Stats(ctx)
	if err != nil {
		return errorJSON(c, err)
	}

	return c.JSON(http.StatusOK, stats)
}
