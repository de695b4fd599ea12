package routes

import (
	"net/http"

	_ "github.com/go-playground/validator"
	"github.com/labstack/echo/v4"

	"github.com/citemesh/backend/internal/server/middleware"
	"github.com/citemesh/backend/pkg/bibliography"
)

// GetBibliographyHandler renders the catalog as formatted entries in
// the requested style.
func GetBibliographyHandler(c echo.Context) error {
	type getBibliographyQuery struct {
		Style    string `query:"style" validate:"required"`
		UsedOnly bool   `query:"used_only"`
		SortBy   string `query:"sort_by"`
	}

	type getBibliographyResponse struct {
		Style   string   `json:"style"`
		Entries []string `json:"entries"`
	}

	params := new(getBibliographyQuery)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App
	formatter := bibliography.NewFormatter(app.Citations)

	entries, err := formatter.GenerateBibliography(ctx, bibliography.Config{
		Style:    params.Style,
		UsedOnly: params.UsedOnly,
		SortBy:   params.SortBy,
	})
	if err != nil {
		return errorJSON(c, err)
	}

	return c.JSON(http.StatusOK, getBibliographyResponse{
		Style:   params.Style,
		Entries: entries,
	})
}

// GetInTextCitationHandler renders the in-text marker for one citation.
func GetInTextCitationHandler(c echo.Context) error {
	type getInTextQuery struct {
		Key   string `param:"key" validate:"required"`
		Style string `query:"style" validate:"required"`
		Page  string `query:"page"`
	}

	type getInTextResponse struct {
		Key      string `json:"key"`
		Style    string `json:"style"`
		Citation string `json:"citation"`
	}

	params := new(getInTextQuery)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App
	formatter := bibliography.NewFormatter(app.Citations)

	rendered, err := formatter.InTextCitation(ctx, params.Key, params.Style, params.Page)
	if err != nil {
		return errorJSON(c, err)
	}

	return c.JSON(http.StatusOK, getInTextResponse{
		Key:      params.Key,
		Style:    params.Style,
		Citation: rendered,
	})
}
