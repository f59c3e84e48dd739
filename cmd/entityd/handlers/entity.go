package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/labstack/echo/v4"
	"github.com/recordstack/entitystore/cmd/entityd/container"
	"github.com/recordstack/entitystore/pkg/entity"
)

// EntityHandler handles entity CRUD requests
type EntityHandler struct {
	container *container.Container
}

// NewEntityHandler creates a new entity handler
func NewEntityHandler(c *container.Container) *EntityHandler {
	return &EntityHandler{container: c}
}

// GetEntity retrieves an entity by id or global id
// GET /api/v1/entities/:objType/:id
func (h *EntityHandler) GetEntity(c echo.Context) error {
	objType := c.Param("objType")
	id := c.Param("id")

	ent, err := h.container.Loader.Get(c.Request().Context(), objType, id)
	if err != nil {
		return writeError(c, err)
	}
	if ent == nil {
		return c.JSON(http.StatusNotFound, map[string]string{
			"error": "entity not found",
		})
	}

	return c.JSON(http.StatusOK, ent.ToArray())
}

// GetEntityByGUID retrieves an entity by global id alone
// GET /api/v1/entities/guid/:guid
func (h *EntityHandler) GetEntityByGUID(c echo.Context) error {
	guid := c.Param("guid")

	ent, err := h.container.Loader.GetByGUID(c.Request().Context(), guid)
	if err != nil {
		return writeError(c, err)
	}
	if ent == nil {
		return c.JSON(http.StatusNotFound, map[string]string{
			"error": "entity not found",
		})
	}

	return c.JSON(http.StatusOK, ent.ToArray())
}

// GetEntityByUname resolves a unique name path to an entity
// GET /api/v1/entities/:objType/uname/*
func (h *EntityHandler) GetEntityByUname(c echo.Context) error {
	objType := c.Param("objType")
	unamePath := c.Param("*")

	ent, err := h.container.Mapper.GetByUniqueName(c.Request().Context(), objType, unamePath)
	if err != nil {
		return writeError(c, err)
	}
	if ent == nil {
		return c.JSON(http.StatusNotFound, map[string]string{
			"error": "entity not found",
		})
	}

	return c.JSON(http.StatusOK, ent.ToArray())
}

// SaveEntity creates or updates an entity from a field document.
// A body carrying entity_id updates the stored entity, otherwise a new
// one is created.
// POST /api/v1/entities/:objType
func (h *EntityHandler) SaveEntity(c echo.Context) error {
	objType := c.Param("objType")
	ctx := c.Request().Context()

	var fields map[string]any
	if err := c.Bind(&fields); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid request body",
		})
	}

	ent, created, err := h.loadOrCreate(c, objType, fields)
	if err != nil {
		return writeError(c, err)
	}
	if ent == nil {
		return c.JSON(http.StatusNotFound, map[string]string{
			"error": "entity not found",
		})
	}

	if err := ent.FromArray(fields, true); err != nil {
		return writeError(c, err)
	}

	guid, err := h.container.Loader.Save(ctx, ent, userID(c))
	if err != nil {
		return writeError(c, err)
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	return c.JSON(status, map[string]any{
		"entity_id": guid,
		"entity":    ent.ToArray(),
	})
}

// PatchEntity applies an RFC 7386 merge patch to a stored entity
// PATCH /api/v1/entities/:objType/:id
func (h *EntityHandler) PatchEntity(c echo.Context) error {
	objType := c.Param("objType")
	id := c.Param("id")
	ctx := c.Request().Context()

	patch, err := readBody(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid request body",
		})
	}

	ent, err := h.container.Loader.Get(ctx, objType, id)
	if err != nil {
		return writeError(c, err)
	}
	if ent == nil {
		return c.JSON(http.StatusNotFound, map[string]string{
			"error": "entity not found",
		})
	}

	current, err := json.Marshal(ent.ToArray())
	if err != nil {
		return writeError(c, err)
	}

	merged, err := jsonpatch.MergePatch(current, patch)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid merge patch: " + err.Error(),
		})
	}

	var fields map[string]any
	if err := json.Unmarshal(merged, &fields); err != nil {
		return writeError(c, err)
	}

	// The merged result is a full document, absent fields were removed
	// by the patch
	if err := ent.FromArray(fields, false); err != nil {
		return writeError(c, err)
	}

	guid, err := h.container.Loader.Save(ctx, ent, userID(c))
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"entity_id": guid,
		"entity":    ent.ToArray(),
	})
}

// DeleteEntity archives an entity, or purges it with ?hard=1
// DELETE /api/v1/entities/:objType/:id
func (h *EntityHandler) DeleteEntity(c echo.Context) error {
	objType := c.Param("objType")
	id := c.Param("id")
	ctx := c.Request().Context()

	hard, _ := strconv.ParseBool(c.QueryParam("hard"))

	ent, err := h.container.Loader.Get(ctx, objType, id)
	if err != nil {
		return writeError(c, err)
	}
	if ent == nil {
		return c.JSON(http.StatusNotFound, map[string]string{
			"error": "entity not found",
		})
	}

	if err := h.container.Loader.Delete(ctx, ent, hard, userID(c)); err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"deleted": true,
		"hard":    hard,
	})
}

// GetRevisions lists stored revision snapshots for an entity
// GET /api/v1/entities/:objType/:id/revisions
func (h *EntityHandler) GetRevisions(c echo.Context) error {
	objType := c.Param("objType")
	id := c.Param("id")

	revisions, err := h.container.EntityRepo.GetRevisions(c.Request().Context(), objType, id)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"revisions": revisions,
	})
}

// GetActivity lists the activity trail for an entity
// GET /api/v1/entities/:objType/:id/activity
func (h *EntityHandler) GetActivity(c echo.Context) error {
	objType := c.Param("objType")
	id := c.Param("id")

	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	records, err := h.container.ActivityRepo.ListByEntity(c.Request().Context(), objType, id, limit)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"activity": records,
	})
}

// loadOrCreate resolves the save target: stored entity when the body
// names one, a fresh entity otherwise
func (h *EntityHandler) loadOrCreate(c echo.Context, objType string, fields map[string]any) (*entity.Entity, bool, error) {
	ctx := c.Request().Context()

	if id, ok := fields["entity_id"].(string); ok && id != "" {
		ent, err := h.container.Loader.Get(ctx, objType, id)
		return ent, false, err
	}

	ent, err := h.container.Loader.Create(ctx, objType)
	return ent, true, err
}

// userID extracts the acting user from the request
func userID(c echo.Context) string {
	return c.Request().Header.Get("X-User-ID")
}

// readBody drains the raw request body
func readBody(c echo.Context) ([]byte, error) {
	var raw json.RawMessage
	if err := json.NewDecoder(c.Request().Body).Decode(&raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// writeError maps domain errors to HTTP responses
func writeError(c echo.Context, err error) error {
	var vErr *entity.ValidationError
	if errors.As(err, &vErr) {
		return c.JSON(http.StatusBadRequest, map[string]any{
			"error":      "validation failed",
			"obj_type":   vErr.ObjType,
			"violations": vErr.Violations,
		})
	}

	if errors.Is(err, entity.ErrInvalidArgument) {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
	}

	return c.JSON(http.StatusInternalServerError, map[string]string{
		"error": err.Error(),
	})
}
