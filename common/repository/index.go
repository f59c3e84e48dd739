package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/recordstack/entitystore/common/db"
	"github.com/recordstack/entitystore/pkg/entity"
)

// IndexRepository keeps the query index table in step with entity
// storage. It implements the mapper's Index contract.
type IndexRepository struct {
	db      *db.DB
	account string
}

// NewIndexRepository creates an index repository scoped to one account
func NewIndexRepository(database *db.DB, account string) *IndexRepository {
	return &IndexRepository{db: database, account: account}
}

// Save upserts the entity's current state into the index
func (r *IndexRepository) Save(ctx context.Context, ent *entity.Entity) error {
	payload, err := json.Marshal(ent.ToArray())
	if err != nil {
		return fmt.Errorf("failed to serialize entity for index: %w", err)
	}

	query := `
		INSERT INTO entity_index (account, object_type, entity_id, f_deleted, field_data)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (account, entity_id) DO UPDATE SET
			object_type = EXCLUDED.object_type,
			f_deleted = EXCLUDED.f_deleted,
			field_data = EXCLUDED.field_data
	`
	_, err = r.db.Exec(ctx, query, r.account, ent.ObjType(), ent.EntityID(), ent.IsDeleted(), payload)
	if err != nil {
		return fmt.Errorf("failed to index entity: %w", err)
	}
	return nil
}

// Remove deletes the entity from the index
func (r *IndexRepository) Remove(ctx context.Context, ent *entity.Entity) error {
	query := `
		DELETE FROM entity_index
		WHERE account = $1 AND entity_id = $2
	`
	if _, err := r.db.Exec(ctx, query, r.account, ent.EntityID()); err != nil {
		return fmt.Errorf("failed to remove entity from index: %w", err)
	}
	return nil
}
