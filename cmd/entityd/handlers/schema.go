package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/recordstack/entitystore/cmd/entityd/container"
	"github.com/recordstack/entitystore/pkg/definition"
)

// SchemaHandler handles entity definition requests
type SchemaHandler struct {
	container *container.Container
}

// NewSchemaHandler creates a new schema handler
func NewSchemaHandler(c *container.Container) *SchemaHandler {
	return &SchemaHandler{container: c}
}

// GetSchema returns the current definition for an object type
// GET /api/v1/schemas/:objType
func (h *SchemaHandler) GetSchema(c echo.Context) error {
	objType := c.Param("objType")

	def, err := h.container.Definitions.Get(c.Request().Context(), objType)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{
			"error": err.Error(),
		})
	}

	return c.JSON(http.StatusOK, def)
}

// SaveSchema stores a definition and bumps its revision. Running
// processes pick up the new revision through stale-write recovery.
// PUT /api/v1/schemas/:objType
func (h *SchemaHandler) SaveSchema(c echo.Context) error {
	objType := c.Param("objType")
	ctx := c.Request().Context()

	var def definition.EntityDefinition
	if err := c.Bind(&def); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid definition body",
		})
	}
	def.ObjType = objType

	stored, err := h.container.SchemaRepo.GetRevision(ctx, objType)
	if err != nil {
		return writeError(c, err)
	}
	def.Revision = stored + 1

	// System fields are always present regardless of what the caller sent
	full := definition.NewDefinition(def.ObjType, def.Fields...)
	full.Title = def.Title
	full.UnameSettings = def.UnameSettings
	full.ParentField = def.ParentField
	full.IsPrivate = def.IsPrivate
	full.StoreRevisions = def.StoreRevisions
	full.RecurRules = def.RecurRules
	full.Aggregates = def.Aggregates
	full.Constraints = def.Constraints
	full.Revision = def.Revision

	if err := h.container.SchemaRepo.Save(ctx, full); err != nil {
		return writeError(c, err)
	}
	h.container.Definitions.Register(full)

	return c.JSON(http.StatusOK, map[string]any{
		"obj_type": full.ObjType,
		"revision": full.Revision,
	})
}
