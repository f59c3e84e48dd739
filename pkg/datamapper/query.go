package datamapper

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/recordstack/entitystore/pkg/entity"
)

// GetByID fetches an entity by id, following the moved-entity map on
// a miss. A miss with no redirect returns (nil, nil).
func (m *DataMapper) GetByID(ctx context.Context, objType, id string) (*entity.Entity, error) {
	ent, err := m.store.FetchByID(ctx, objType, id)
	if errors.Is(err, entity.ErrNotFound) {
		movedTo, merr := m.CheckEntityHasMoved(ctx, objType, id)
		if merr != nil {
			return nil, merr
		}
		if movedTo == "" {
			return nil, nil
		}
		ent, err = m.store.FetchByID(ctx, objType, movedTo)
		if errors.Is(err, entity.ErrNotFound) {
			return nil, nil
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s/%s: %w", objType, id, err)
	}

	if err := m.loadRecurrence(ctx, ent); err != nil {
		return nil, err
	}
	ent.ResetDirty()
	return ent, nil
}

// GetByGUID fetches an entity by its global id, returning (nil, nil)
// on a miss
func (m *DataMapper) GetByGUID(ctx context.Context, guid string) (*entity.Entity, error) {
	ent, err := m.store.FetchByGUID(ctx, guid)
	if errors.Is(err, entity.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch entity %s: %w", guid, err)
	}

	if err := m.loadRecurrence(ctx, ent); err != nil {
		return nil, err
	}
	ent.ResetDirty()
	return ent, nil
}

// GetByUniqueName resolves a uname, or a /-separated uname path when
// the definition declares a parent field. Returns (nil, nil) when any
// segment misses.
func (m *DataMapper) GetByUniqueName(ctx context.Context, objType, unamePath string) (*entity.Entity, error) {
	def, err := m.defs.Get(ctx, objType)
	if err != nil {
		return nil, err
	}

	segments := strings.Split(strings.Trim(unamePath, "/"), "/")
	parentID := ""

	var ent *entity.Entity
	for _, segment := range segments {
		if segment == "" {
			continue
		}
		filters := map[string]any{"uname": segment}
		if def.ParentField != "" && parentID != "" {
			filters[def.ParentField] = parentID
		}

		matches, err := m.store.QueryByFieldValues(ctx, objType, filters)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve uname %q: %w", segment, err)
		}
		if len(matches) == 0 {
			return nil, nil
		}
		ent = matches[0]
		parentID = ent.EntityID()
	}

	if ent == nil {
		return nil, nil
	}
	if err := m.loadRecurrence(ctx, ent); err != nil {
		return nil, err
	}
	ent.ResetDirty()
	return ent, nil
}

// CheckEntityHasMoved resolves the redirect for a superseded id,
// caching successful resolutions per process. Returns "" when the id
// was never moved.
func (m *DataMapper) CheckEntityHasMoved(ctx context.Context, objType, oldID string) (string, error) {
	key := objType + "/" + oldID
	if newID, ok := m.movedCache[key]; ok {
		return newID, nil
	}

	newID, err := m.store.GetMovedTo(ctx, objType, oldID)
	if err != nil {
		return "", fmt.Errorf("failed to check moved entity %s: %w", key, err)
	}
	if newID != "" {
		m.movedCache[key] = newID
	}
	return newID, nil
}

// loadRecurrence attaches the series pattern when the schema declares
// recurrence fields and the entity references one
func (m *DataMapper) loadRecurrence(ctx context.Context, ent *entity.Entity) error {
	def := ent.Definition()
	if def.RecurRules == nil {
		return nil
	}
	recurID := ent.GetValueString(def.RecurRules.FieldRecurID)
	if recurID == "" {
		return nil
	}

	pattern, err := m.recurrence.Get(ctx, recurID)
	if err != nil && !errors.Is(err, entity.ErrNotFound) {
		return fmt.Errorf("failed to load recurrence pattern %s: %w", recurID, err)
	}
	ent.Recurrence = pattern
	return nil
}
