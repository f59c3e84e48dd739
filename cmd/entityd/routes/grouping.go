package routes

import (
	"github.com/labstack/echo/v4"
	"github.com/recordstack/entitystore/cmd/entityd/container"
	"github.com/recordstack/entitystore/cmd/entityd/handlers"
)

// RegisterGroupingRoutes registers grouping routes
func RegisterGroupingRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewGroupingHandler(c)

	groups := e.Group("/api/v1/groupings")
	{
		groups.GET("/:objType/:fieldName", h.ListGroups)
		groups.POST("/:objType/:fieldName", h.SaveGroup)
		groups.DELETE("/:objType/:fieldName/:groupID", h.DeleteGroup)
	}
}
