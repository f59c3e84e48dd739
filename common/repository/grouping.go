package repository

import (
	"context"
	"fmt"

	"github.com/recordstack/entitystore/common/db"
	"github.com/recordstack/entitystore/pkg/groupings"
)

// GroupingRepository stores grouping sets. It implements the
// groupings.Loader contract the mapper resolves labels through.
type GroupingRepository struct {
	db      *db.DB
	account string
}

// NewGroupingRepository creates a grouping repository scoped to one
// account
func NewGroupingRepository(database *db.DB, account string) *GroupingRepository {
	return &GroupingRepository{db: database, account: account}
}

// Get loads the grouping set for an object type field. userGUID is
// empty unless the object type is private.
func (r *GroupingRepository) Get(ctx context.Context, objType, fieldName, userGUID string) (*groupings.Groupings, error) {
	query := `
		SELECT group_id, name, color, sort_order, commit_id
		FROM entity_group
		WHERE account = $1 AND object_type = $2 AND field_name = $3 AND user_guid = $4
		ORDER BY sort_order, name
	`
	rows, err := r.db.Query(ctx, query, r.account, objType, fieldName, userGUID)
	if err != nil {
		return nil, fmt.Errorf("failed to load groupings for %s.%s: %w", objType, fieldName, err)
	}
	defer rows.Close()

	set := groupings.New(objType, fieldName, userGUID)
	for rows.Next() {
		group := &groupings.Group{}
		if err := rows.Scan(&group.ID, &group.Name, &group.Color, &group.SortOrder, &group.CommitID); err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		set.Add(group)
	}
	return set, rows.Err()
}

// Save upserts one group into a set
func (r *GroupingRepository) Save(ctx context.Context, objType, fieldName, userGUID string, group *groupings.Group) error {
	query := `
		INSERT INTO entity_group (account, object_type, field_name, user_guid, group_id, name, color, sort_order, commit_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (account, object_type, field_name, user_guid, group_id) DO UPDATE SET
			name = EXCLUDED.name,
			color = EXCLUDED.color,
			sort_order = EXCLUDED.sort_order,
			commit_id = EXCLUDED.commit_id
	`
	_, err := r.db.Exec(
		ctx,
		query,
		r.account,
		objType,
		fieldName,
		userGUID,
		group.ID,
		group.Name,
		group.Color,
		group.SortOrder,
		group.CommitID,
	)
	if err != nil {
		return fmt.Errorf("failed to save group %s: %w", group.ID, err)
	}
	return nil
}

// Delete removes one group from a set
func (r *GroupingRepository) Delete(ctx context.Context, objType, fieldName, userGUID, groupID string) error {
	query := `
		DELETE FROM entity_group
		WHERE account = $1 AND object_type = $2 AND field_name = $3 AND user_guid = $4 AND group_id = $5
	`
	if _, err := r.db.Exec(ctx, query, r.account, objType, fieldName, userGUID, groupID); err != nil {
		return fmt.Errorf("failed to delete group %s: %w", groupID, err)
	}
	return nil
}
