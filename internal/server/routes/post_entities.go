package routes

import (
	"net/http"

	_ "github.com/go-playground/validator"
	"github.com/labstack/echo/v4"

	"github.com/citemesh/backend/internal/server/middleware"
	"github.com/citemesh/backend/pkg/common"
	"github.com/citemesh/backend/pkg/provenance"
)

// CreateEntityHandler stores an entity together with its supporting
// citations: citations first, then the entity, then the back
// references. Citation failures are counted, not fatal.
func CreateEntityHandler(c echo.Context) error {
	type entityBody struct {
		ID         string         `json:"id" validate:"required"`
		Type       string         `json:"type" validate:"required"`
		Name       string         `json:"name" validate:"required"`
		Properties map[string]any `json:"properties"`
		Confidence float64        `json:"confidence"`
	}

	type citationBody struct {
		Title      string   `json:"title"`
		Authors    []string `json:"authors"`
		Year       int      `json:"year"`
		Journal    string   `json:"journal"`
		DOI        string   `json:"doi"`
		URL        string   `json:"url"`
		Confidence float64  `json:"confidence"`
	}

	type createEntityBody struct {
		Entity    entityBody     `json:"entity" validate:"required"`
		Citations []citationBody `json:"citations"`
	}

	type createEntityResponse struct {
		Message string                   `json:"message"`
		Result  *provenance.CreateResult `json:"result,omitempty"`
	}

	data := new(createEntityBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, createEntityResponse{
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, createEntityResponse{
			Message: "Invalid request body",
		})
	}

	citations := make([]common.Citation, 0, len(data.Citations))
	for _, cit := range data.Citations {
		citations = append(citations, common.Citation{
			Title:      cit.Title,
			Authors:    cit.Authors,
			Year:       cit.Year,
			Journal:    cit.Journal,
			DOI:        cit.DOI,
			URL:        cit.URL,
			Confidence: cit.Confidence,
		})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App
	linker := provenance.NewLinker(app.Citations, app.Graph)

	result, err := linker.CreateEntityWithProvenance(ctx, common.Entity{
		ID:         data.Entity.ID,
		Type:       data.Entity.Type,
		Name:       data.Entity.Name,
		Properties: data.Entity.Properties,
		Confidence: data.Entity.Confidence,
	}, citations)
	if err != nil {
		return errorJSON(c, err)
	}

	return c.JSON(http.StatusOK, createEntityResponse{
		Message: "Entity stored",
		Result:  result,
	})
}
