package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/recordstack/entitystore/common/db"
	"github.com/recordstack/entitystore/pkg/definition"
)

// SchemaRepository stores entity definitions. The definition registry
// reloads through it on stale-schema recovery.
type SchemaRepository struct {
	db      *db.DB
	account string
}

// NewSchemaRepository creates a schema repository scoped to one
// account
func NewSchemaRepository(database *db.DB, account string) *SchemaRepository {
	return &SchemaRepository{db: database, account: account}
}

// Load returns the stored definition for an object type
func (r *SchemaRepository) Load(ctx context.Context, objType string) (*definition.EntityDefinition, error) {
	query := `
		SELECT definition, revision
		FROM entity_schema
		WHERE account = $1 AND object_type = $2
	`
	var (
		payload  []byte
		revision int
	)
	err := r.db.QueryRow(ctx, query, r.account, objType).Scan(&payload, &revision)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("no schema stored for object type %q", objType)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load schema for %q: %w", objType, err)
	}

	def := &definition.EntityDefinition{}
	if err := json.Unmarshal(payload, def); err != nil {
		return nil, fmt.Errorf("corrupt schema for %q: %w", objType, err)
	}
	def.Revision = revision
	return def, nil
}

// Save upserts a definition at its declared revision
func (r *SchemaRepository) Save(ctx context.Context, def *definition.EntityDefinition) error {
	payload, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("failed to serialize schema: %w", err)
	}

	query := `
		INSERT INTO entity_schema (account, object_type, definition, revision)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (account, object_type) DO UPDATE SET
			definition = EXCLUDED.definition,
			revision = EXCLUDED.revision
	`
	_, err = r.db.Exec(ctx, query, r.account, def.ObjType, payload, def.Revision)
	if err != nil {
		return fmt.Errorf("failed to save schema for %q: %w", def.ObjType, err)
	}
	return nil
}

// GetRevision returns the stored schema revision, 0 when the object
// type has no stored schema
func (r *SchemaRepository) GetRevision(ctx context.Context, objType string) (int, error) {
	query := `
		SELECT revision FROM entity_schema
		WHERE account = $1 AND object_type = $2
	`
	var revision int
	err := r.db.QueryRow(ctx, query, r.account, objType).Scan(&revision)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read schema revision for %q: %w", objType, err)
	}
	return revision, nil
}
