package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/recordstack/entitystore/common/db"
	"github.com/recordstack/entitystore/pkg/entity"
)

// RecurrenceRepository persists recurrence patterns and hands out
// pattern ids from a dedicated sequence so an id can be reserved
// before either the pattern or its first entity row exists
type RecurrenceRepository struct {
	db      *db.DB
	account string
}

// NewRecurrenceRepository creates a recurrence repository scoped to
// one account
func NewRecurrenceRepository(database *db.DB, account string) *RecurrenceRepository {
	return &RecurrenceRepository{db: database, account: account}
}

// NextID reserves a new pattern id for an object type
func (r *RecurrenceRepository) NextID(ctx context.Context, objType string) (string, error) {
	query := `
		INSERT INTO recurrence_seq (account, object_type, head)
		VALUES ($1, $2, 1)
		ON CONFLICT (account, object_type) DO UPDATE SET head = recurrence_seq.head + 1
		RETURNING head
	`
	var head int64
	if err := r.db.QueryRow(ctx, query, r.account, objType).Scan(&head); err != nil {
		return "", fmt.Errorf("failed to reserve recurrence id: %w", err)
	}
	return strconv.FormatInt(head, 10), nil
}

// Save upserts a pattern
func (r *RecurrenceRepository) Save(ctx context.Context, pattern *entity.RecurrencePattern) error {
	payload, err := json.Marshal(pattern)
	if err != nil {
		return fmt.Errorf("failed to serialize recurrence pattern: %w", err)
	}

	query := `
		INSERT INTO recurrence (account, recurrence_id, object_type, first_entity_id, pattern)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (account, recurrence_id) DO UPDATE SET
			object_type = EXCLUDED.object_type,
			first_entity_id = EXCLUDED.first_entity_id,
			pattern = EXCLUDED.pattern
	`
	_, err = r.db.Exec(ctx, query, r.account, pattern.ID, pattern.ObjType, pattern.FirstEntityID, payload)
	if err != nil {
		return fmt.Errorf("failed to save recurrence pattern %s: %w", pattern.ID, err)
	}
	return nil
}

// Get returns a pattern by id, entity.ErrNotFound on a miss
func (r *RecurrenceRepository) Get(ctx context.Context, id string) (*entity.RecurrencePattern, error) {
	query := `
		SELECT pattern
		FROM recurrence
		WHERE account = $1 AND recurrence_id = $2
	`
	var payload []byte
	err := r.db.QueryRow(ctx, query, r.account, id).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, entity.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch recurrence pattern %s: %w", id, err)
	}

	pattern := &entity.RecurrencePattern{}
	if err := json.Unmarshal(payload, pattern); err != nil {
		return nil, fmt.Errorf("corrupt recurrence pattern %s: %w", id, err)
	}
	return pattern, nil
}

// Delete removes a pattern
func (r *RecurrenceRepository) Delete(ctx context.Context, id string) error {
	query := `
		DELETE FROM recurrence
		WHERE account = $1 AND recurrence_id = $2
	`
	if _, err := r.db.Exec(ctx, query, r.account, id); err != nil {
		return fmt.Errorf("failed to delete recurrence pattern %s: %w", id, err)
	}
	return nil
}
