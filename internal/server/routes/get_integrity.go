package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/citemesh/backend/internal/server/middleware"
	"github.com/citemesh/backend/pkg/audit"
)

// GetIntegrityReportHandler walks the catalog and reports every
// inconsistency without changing anything.
func GetIntegrityReportHandler(c echo.Context) error {
	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App
	auditor := audit.NewAuditor(app.Citations, app.Graph)

	report, err := auditor.GetIntegrityReport(ctx)
	if err != nil {
		return errorJSON(c, err)
	}

	return c.JSON(http.StatusOK, report)
}

// GetIntegrityHealthHandler classifies the current integrity report.
func GetIntegrityHealthHandler(c echo.Context) error {
	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App
	auditor := audit.NewAuditor(app.Citations, app.Graph)

	health, err := auditor.GetHealthCheck(ctx)
	if err != nil {
		return errorJSON(c, err)
	}

	return c.JSON(http.StatusOK, health)
}
