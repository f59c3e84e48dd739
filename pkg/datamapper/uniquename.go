package datamapper

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/recordstack/entitystore/pkg/entity"
)

// setUniqueName derives and verifies the entity's uname. The slug
// comes from the last template field; on collision within the template
// namespace a distinguishing suffix is appended.
func (m *DataMapper) setUniqueName(ctx context.Context, ent *entity.Entity) error {
	def := ent.Definition()

	slug := ent.UName()
	if slug == "" {
		slug = entity.Slugify(ent.GetValueString(def.UnameSourceField()))
	}
	if slug == "" {
		return nil
	}

	unique, err := m.VerifyUniqueName(ctx, ent, slug)
	if err != nil {
		return err
	}
	if !unique {
		suffix := ent.ID()
		if suffix == "" {
			suffix = uuid.NewString()[:8]
		}
		slug = slug + "-" + suffix
	}

	return ent.SetValue("uname", slug)
}

// VerifyUniqueName reports whether no other entity holds the given
// uname within the unique-name template's namespace
func (m *DataMapper) VerifyUniqueName(ctx context.Context, ent *entity.Entity, uname string) (bool, error) {
	def := ent.Definition()

	filters := map[string]any{"uname": uname}
	for _, segment := range def.UnameNamespaceFields() {
		filters[segment] = ent.GetValue(segment)
	}

	matches, err := m.store.QueryByFieldValues(ctx, ent.ObjType(), filters)
	if err != nil {
		return false, fmt.Errorf("failed to verify unique name %q: %w", uname, err)
	}

	for _, match := range matches {
		// the entity's own row never counts as a collision
		if ent.EntityID() != "" && match.EntityID() == ent.EntityID() {
			continue
		}
		return false, nil
	}
	return true, nil
}
