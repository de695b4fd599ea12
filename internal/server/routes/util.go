package routes

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/citemesh/backend/pkg/common"
)

// errorJSON maps the error taxonomy onto HTTP statuses: validation
// failures are the client's fault, unknown keys are 404, everything
// else is a server error.
func errorJSON(c echo.Context, err error) error {
	switch {
	case common.IsValidation(err):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, common.ErrNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Not found"})
	default:
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}
}
