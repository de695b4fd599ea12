package routes

import (
	"net/http"

	_ "github.com/go-playground/validator"
	"github.com/labstack/echo/v4"

	"github.com/citemesh/backend/internal/server/middleware"
	"github.com/citemesh/backend/pkg/common"
)

// AddCitationHandler stores a citation, merging into an existing record
// when the (title, authors, year) identity already exists.
func AddCitationHandler(c echo.Context) error {
	type addCitationBody struct {
		Title           string   `json:"title" validate:"required"`
		Authors         []string `json:"authors"`
		Year            int      `json:"year"`
		Journal         string   `json:"journal"`
		DOI             string   `json:"doi"`
		URL             string   `json:"url"`
		Abstract        string   `json:"abstract"`
		DocumentPath    string   `json:"document_path"`
		SourceLocations []string `json:"source_locations"`
		Confidence      float64  `json:"confidence"`
	}

	type addCitationResponse struct {
		Message string `json:"message"`
		Key     string `json:"key,omitempty"`
		Merged  bool   `json:"merged"`
	}

	data := new(addCitationBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, addCitationResponse{
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, addCitationResponse{
			Message: "Invalid request body",
		})
	}

	ctx := c.Request().Context()
	citations := c.(*middleware.AppContext).App.Citations

	key, merged, err := citations.AddOrMerge(ctx, common.Citation{
		Title:           data.Title,
		Authors:         data.Authors,
		Year:            data.Year,
		Journal:         data.Journal,
		DOI:             data.DOI,
		URL:             data.URL,
		Abstract:        data.Abstract,
		DocumentPath:    data.DocumentPath,
		SourceLocations: data.SourceLocations,
		Confidence:      data.Confidence,
	})
	if err != nil {
		return errorJSON(c, err)
	}

	return c.JSON(http.StatusOK, addCitationResponse{
		Message: "Citation stored",
		Key:     key,
		Merged:  merged,
	})
}
