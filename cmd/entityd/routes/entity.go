package routes

import (
	"github.com/labstack/echo/v4"
	"github.com/recordstack/entitystore/cmd/entityd/container"
	"github.com/recordstack/entitystore/cmd/entityd/handlers"
)

// RegisterEntityRoutes registers entity CRUD routes
func RegisterEntityRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewEntityHandler(c)

	entities := e.Group("/api/v1/entities")
	{
		entities.GET("/guid/:guid", h.GetEntityByGUID)
		entities.GET("/:objType/uname/*", h.GetEntityByUname)
		entities.GET("/:objType/:id", h.GetEntity)
		entities.GET("/:objType/:id/revisions", h.GetRevisions)
		entities.GET("/:objType/:id/activity", h.GetActivity)
		entities.POST("/:objType", h.SaveEntity)
		entities.PATCH("/:objType/:id", h.PatchEntity)
		entities.DELETE("/:objType/:id", h.DeleteEntity)
	}
}
