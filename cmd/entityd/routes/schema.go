package routes

import (
	"github.com/labstack/echo/v4"
	"github.com/recordstack/entitystore/cmd/entityd/container"
	"github.com/recordstack/entitystore/cmd/entityd/handlers"
)

// RegisterSchemaRoutes registers entity definition routes
func RegisterSchemaRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewSchemaHandler(c)

	schemas := e.Group("/api/v1/schemas")
	{
		schemas.GET("/:objType", h.GetSchema)
		schemas.PUT("/:objType", h.SaveSchema)
	}
}
