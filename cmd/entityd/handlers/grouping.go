package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/recordstack/entitystore/cmd/entityd/container"
	"github.com/recordstack/entitystore/pkg/groupings"
)

// GroupingHandler handles grouping (label/category) requests
type GroupingHandler struct {
	container *container.Container
}

// NewGroupingHandler creates a new grouping handler
func NewGroupingHandler(c *container.Container) *GroupingHandler {
	return &GroupingHandler{container: c}
}

// ListGroups lists the groups for an object type field
// GET /api/v1/groupings/:objType/:fieldName
func (h *GroupingHandler) ListGroups(c echo.Context) error {
	objType := c.Param("objType")
	fieldName := c.Param("fieldName")
	userGUID := c.QueryParam("user_guid")

	set, err := h.container.GroupingRepo.Get(c.Request().Context(), objType, fieldName, userGUID)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"obj_type":   set.ObjType,
		"field_name": set.FieldName,
		"groups":     set.All(),
	})
}

// SaveGroup creates or updates a group
// POST /api/v1/groupings/:objType/:fieldName
func (h *GroupingHandler) SaveGroup(c echo.Context) error {
	objType := c.Param("objType")
	fieldName := c.Param("fieldName")
	userGUID := c.QueryParam("user_guid")

	var group groupings.Group
	if err := c.Bind(&group); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid request body",
		})
	}
	if group.ID == "" || group.Name == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "group id and name are required",
		})
	}

	err := h.container.GroupingRepo.Save(c.Request().Context(), objType, fieldName, userGUID, &group)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, &group)
}

// DeleteGroup removes a group
// DELETE /api/v1/groupings/:objType/:fieldName/:groupID
func (h *GroupingHandler) DeleteGroup(c echo.Context) error {
	objType := c.Param("objType")
	fieldName := c.Param("fieldName")
	groupID := c.Param("groupID")
	userGUID := c.QueryParam("user_guid")

	err := h.container.GroupingRepo.Delete(c.Request().Context(), objType, fieldName, userGUID, groupID)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"deleted": true,
	})
}
