package server

import (
	"github.com/labstack/echo/v4"

	"github.com/citemesh/backend/internal/server/middleware"
	"github.com/citemesh/backend/internal/server/routes"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	apiRoutes := e.Group("/api", middleware.AuthMiddleware)

	// Citation catalog routes
	apiRoutes.POST("/citations", routes.AddCitationHandler, middleware.RequirePermission("citation.create"))
	apiRoutes.GET("/citations", routes.GetCitationsHandler, middleware.RequirePermission("citation.view"))
	apiRoutes.GET("/citations/search", routes.SearchCitationsHandler, middleware.RequirePermission("citation.view"))
	apiRoutes.GET("/citations/stats", routes.GetCitationStatsHandler, middleware.RequirePermission("citation.view"))
	apiRoutes.GET("/citations/:key", routes.GetCitationHandler, middleware.RequirePermission("citation.view"))

	// Usage tracking routes
	apiRoutes.POST("/citations/:key/usage", routes.TrackUsageHandler, middleware.RequirePermission("citation.track"))
	apiRoutes.GET("/citations/:key/usage", routes.GetUsageHandler, middleware.RequirePermission("citation.view"))

	// Bibliography routes
	apiRoutes.GET("/bibliography", routes.GetBibliographyHandler, middleware.RequirePermission("citation.view"))
	apiRoutes.GET("/citations/:key/intext", routes.GetInTextCitationHandler, middleware.RequirePermission("citation.view"))

	// Entity graph routes
	apiRoutes.POST("/entities", routes.CreateEntityHandler, middleware.RequirePermission("entity.create"))
	apiRoutes.POST("/links", routes.LinkEntitiesHandler, middleware.RequirePermission("entity.link"))
	apiRoutes.GET("/entities/:id/provenance", routes.GetEntityProvenanceHandler, middleware.RequirePermission("entity.view"))
	apiRoutes.GET("/citations/:key/impact", routes.GetCitationImpactHandler, middleware.RequirePermission("entity.view"))

	// Export / import routes
	apiRoutes.GET("/export", routes.ExportHandler, middleware.RequirePermission("citation.export"))
	apiRoutes.POST("/import", routes.ImportHandler, middleware.RequirePermission("citation.import"))

	// Integrity routes
	apiRoutes.GET("/integrity", routes.GetIntegrityReportHandler, middleware.RequirePermission("integrity.view"))
	apiRoutes.GET("/integrity/health", routes.GetIntegrityHealthHandler, middleware.RequirePermission("integrity.view"))
	apiRoutes.POST("/integrity/repair", routes.RepairIntegrityHandler, middleware.RequirePermission("integrity.repair"))

	// Ingest routes
	apiRoutes.POST("/ingest", routes.PublishIngestHandler, middleware.RequirePermission("ingest.publish"))
	apiRoutes.GET("/ingest/schema", routes.GetIngestSchemaHandler, middleware.RequirePermission("ingest.publish"))
}
