package routes

import (
	"net/http"

	_ "github.com/go-playground/validator"
	"github.com/labstack/echo/v4"

	"github.com/citemesh/backend/internal/server/middleware"
	"github.com/citemesh/backend/pkg/common"
	"github.com/citemesh/backend/pkg/provenance"
)

// LinkEntitiesHandler associates existing entities with existing
// citations. Links against unknown entities are skipped and the
// successful count is returned.
func LinkEntitiesHandler(c echo.Context) error {
	type linkBody struct {
		EntityID    string  `json:"entity_id" validate:"required"`
		CitationKey string  `json:"citation_key" validate:"required"`
		Context     string  `json:"context"`
		Confidence  float64 `json:"confidence"`
	}

	type linkEntitiesBody struct {
		Links []linkBody `json:"links" validate:"required"`
	}

	type linkEntitiesResponse struct {
		Message   string `json:"message"`
		Linked    int    `json:"linked"`
		Requested int    `json:"requested"`
	}

	data := new(linkEntitiesBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, linkEntitiesResponse{
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, linkEntitiesResponse{
			Message: "Invalid request body",
		})
	}

	links := make([]common.Link, 0, len(data.Links))
	for _, l := range data.Links {
		links = append(links, common.Link{
			EntityID:    l.EntityID,
			CitationKey: l.CitationKey,
			Context:     l.Context,
			Confidence:  l.Confidence,
		})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App
	linker := provenance.NewLinker(app.Citations, app.Graph)

	linked, err := linker.LinkEntitiesToCitations(ctx, links)
	if err != nil {
		return errorJSON(c, err)
	}

	return c.JSON(http.StatusOK, linkEntitiesResponse{
		Message:   "Links stored",
		Linked:    linked,
		Requested: len(links),
	})
}
