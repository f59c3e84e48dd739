package repository

import (
	"context"
	"fmt"

	"github.com/recordstack/entitystore/common/db"
	"github.com/recordstack/entitystore/pkg/activity"
)

// ActivityRepository is the append-only store behind the activity log
type ActivityRepository struct {
	db      *db.DB
	account string
}

// NewActivityRepository creates an activity repository scoped to one
// account
func NewActivityRepository(database *db.DB, account string) *ActivityRepository {
	return &ActivityRepository{db: database, account: account}
}

// Insert appends one activity record
func (r *ActivityRepository) Insert(ctx context.Context, rec *activity.Record) error {
	query := `
		INSERT INTO entity_activity (account, user_id, verb, object_type, entity_id, name, description, ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.Exec(
		ctx,
		query,
		r.account,
		rec.UserID,
		rec.Verb,
		rec.ObjType,
		rec.EntityID,
		rec.Name,
		rec.Description,
		rec.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert activity record: %w", err)
	}
	return nil
}

// ListByEntity returns the most recent activity for an entity
func (r *ActivityRepository) ListByEntity(ctx context.Context, objType, entityID string, limit int) ([]*activity.Record, error) {
	query := `
		SELECT user_id, verb, object_type, entity_id, name, description, ts
		FROM entity_activity
		WHERE account = $1 AND object_type = $2 AND entity_id = $3
		ORDER BY ts DESC
		LIMIT $4
	`
	rows, err := r.db.Query(ctx, query, r.account, objType, entityID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity: %w", err)
	}
	defer rows.Close()

	var out []*activity.Record
	for rows.Next() {
		rec := &activity.Record{}
		err := rows.Scan(
			&rec.UserID,
			&rec.Verb,
			&rec.ObjType,
			&rec.EntityID,
			&rec.Name,
			&rec.Description,
			&rec.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan activity record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
