package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/citemesh/backend/internal/server/middleware"
	"github.com/citemesh/backend/pkg/audit"
)

// RepairIntegrityHandler removes orphaned usage events and recomputes
// the cached usage counters. Repairs only run on explicit request,
// never as a side effect of the report.
func RepairIntegrityHandler(c echo.Context) error {
	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App
	auditor := audit.NewAuditor(app.Citations, app.Graph)

	result, err := auditor.RepairDataIntegrity(ctx)
	if err != nil {
		return errorJSON(c, err)
	}

	return c.JSON(http.StatusOK, result)
}
