package routes

import (
	"net/http"

	_ "github.com/go-playground/validator"
	"github.com/labstack/echo/v4"

	"github.com/citemesh/backend/internal/server/middleware"
	"github.com/citemesh/backend/internal/storage"
	"github.com/citemesh/backend/pkg/export"
)

// ExportHandler renders the catalog in the requested format. With
// upload=true the artifact goes to S3 and a presigned download link is
// returned instead of the payload.
func ExportHandler(c echo.Context) error {
	type exportQuery struct {
		Format string `query:"format" validate:"required,oneof=json bibtex csv"`
		Upload bool   `query:"upload"`
	}

	type exportUploadResponse struct {
		Message string `json:"message"`
		Key     string `json:"key"`
		URL     string `json:"url"`
	}

	params := new(exportQuery)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App
	exporter := export.NewExporter(app.Citations)

	data, contentType, err := exporter.Export(ctx, params.Format)
	if err != nil {
		return errorJSON(c, err)
	}

	if !params.Upload {
		return c.Blob(http.StatusOK, contentType, data)
	}

	key, err := storage.PutExport(ctx, app.S3, params.Format, data, contentType)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to upload export"})
	}

	url, err := storage.GenerateDownloadLink(ctx, app.S3, key)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to generate download link"})
	}

	return c.JSON(http.StatusOK, exportUploadResponse{
		Message: "Export uploaded",
		Key:     key,
		URL:     url,
	})
}
