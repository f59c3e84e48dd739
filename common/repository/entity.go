package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/recordstack/entitystore/common/db"
	"github.com/recordstack/entitystore/common/logger"
	"github.com/recordstack/entitystore/pkg/definition"
	"github.com/recordstack/entitystore/pkg/entity"
)

// EntityRepository stores entity rows as JSONB documents alongside the
// system columns the engine filters on. It implements the mapper's
// Store contract.
type EntityRepository struct {
	db      *db.DB
	defs    definition.Loader
	account string
	log     *logger.Logger
}

// NewEntityRepository creates an entity repository scoped to one
// account
func NewEntityRepository(database *db.DB, defs definition.Loader, account string, log *logger.Logger) *EntityRepository {
	return &EntityRepository{
		db:      database,
		defs:    defs,
		account: account,
		log:     log,
	}
}

const entityColumns = "object_type, entity_id, local_id, uname, field_data, revision, commit_id, f_deleted"

// FetchByID retrieves an entity by global id or legacy local id
func (r *EntityRepository) FetchByID(ctx context.Context, objType, id string) (*entity.Entity, error) {
	query := `
		SELECT ` + entityColumns + `
		FROM entity
		WHERE account = $1 AND object_type = $2 AND (entity_id = $3 OR local_id::text = $3)
	`
	return r.fetchRow(ctx, r.db.QueryRow(ctx, query, r.account, objType, id))
}

// FetchByGUID retrieves an entity by global id alone
func (r *EntityRepository) FetchByGUID(ctx context.Context, guid string) (*entity.Entity, error) {
	query := `
		SELECT ` + entityColumns + `
		FROM entity
		WHERE account = $1 AND entity_id = $2
	`
	return r.fetchRow(ctx, r.db.QueryRow(ctx, query, r.account, guid))
}

func (r *EntityRepository) fetchRow(ctx context.Context, row pgx.Row) (*entity.Entity, error) {
	var (
		objType   string
		entityID  string
		localID   int64
		uname     *string
		fieldData []byte
		revision  int64
		commitID  int64
		fDeleted  bool
	)
	err := row.Scan(&objType, &entityID, &localID, &uname, &fieldData, &revision, &commitID, &fDeleted)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, entity.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch entity: %w", err)
	}

	return r.buildEntity(ctx, objType, entityID, localID, uname, fieldData, revision, commitID, fDeleted)
}

func (r *EntityRepository) buildEntity(
	ctx context.Context,
	objType, entityID string,
	localID int64,
	uname *string,
	fieldData []byte,
	revision, commitID int64,
	fDeleted bool,
) (*entity.Entity, error) {
	def, err := r.defs.Get(ctx, objType)
	if err != nil {
		return nil, err
	}

	var fields map[string]any
	if err := json.Unmarshal(fieldData, &fields); err != nil {
		return nil, fmt.Errorf("corrupt field data for %s/%s: %w", objType, entityID, err)
	}

	ent := entity.New(def)
	if err := ent.FromArray(fields, false); err != nil {
		return nil, fmt.Errorf("failed to rebuild %s/%s: %w", objType, entityID, err)
	}

	// system columns are authoritative over the document copy
	if err := ent.SetValue("entity_id", entityID); err != nil {
		return nil, err
	}
	if err := ent.SetValue("id", localID); err != nil {
		return nil, err
	}
	if uname != nil {
		if err := ent.SetValue("uname", *uname); err != nil {
			return nil, err
		}
	}
	ent.SetRevision(revision)
	ent.SetCommitID(commitID)
	if err := ent.SetValue("f_deleted", fDeleted); err != nil {
		return nil, err
	}
	ent.ResetDirty()
	return ent, nil
}

// Save upserts the entity row. Writes built against a definition older
// than the persisted schema are rejected with definition.ErrStale.
func (r *EntityRepository) Save(ctx context.Context, ent *entity.Entity) error {
	objType := ent.ObjType()

	current, err := r.defs.Get(ctx, objType)
	if err != nil {
		return err
	}
	stored, err := r.schemaRevision(ctx, objType)
	if err != nil {
		return err
	}
	if stored > current.Revision {
		return fmt.Errorf("%w: %s is at schema revision %d, write built against %d",
			definition.ErrStale, objType, stored, current.Revision)
	}

	payload, err := json.Marshal(ent.ToArray())
	if err != nil {
		return fmt.Errorf("failed to serialize entity: %w", err)
	}

	query := `
		INSERT INTO entity (account, object_type, entity_id, uname, field_data, revision, commit_id, schema_revision, f_deleted)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (account, object_type, entity_id) DO UPDATE SET
			uname = EXCLUDED.uname,
			field_data = EXCLUDED.field_data,
			revision = EXCLUDED.revision,
			commit_id = EXCLUDED.commit_id,
			schema_revision = EXCLUDED.schema_revision,
			f_deleted = EXCLUDED.f_deleted
		RETURNING local_id
	`

	var uname *string
	if u := ent.UName(); u != "" {
		uname = &u
	}

	var localID int64
	err = r.db.QueryRow(
		ctx,
		query,
		r.account,
		objType,
		ent.EntityID(),
		uname,
		payload,
		ent.Revision(),
		ent.CommitID(),
		current.Revision,
		ent.IsDeleted(),
	).Scan(&localID)
	if err != nil {
		return fmt.Errorf("failed to save entity: %w", err)
	}

	return ent.SetValue("id", localID)
}

// DeleteHard removes the entity row entirely
func (r *EntityRepository) DeleteHard(ctx context.Context, ent *entity.Entity) error {
	query := `
		DELETE FROM entity
		WHERE account = $1 AND object_type = $2 AND entity_id = $3
	`
	_, err := r.db.Exec(ctx, query, r.account, ent.ObjType(), ent.EntityID())
	if err != nil {
		return fmt.Errorf("failed to purge entity: %w", err)
	}
	return nil
}

// QueryByFieldValues returns non-deleted entities matching every
// equality filter. System columns are matched directly; everything
// else goes through the JSONB document.
func (r *EntityRepository) QueryByFieldValues(ctx context.Context, objType string, filters map[string]any) ([]*entity.Entity, error) {
	query := `
		SELECT ` + entityColumns + `
		FROM entity
		WHERE account = $1 AND object_type = $2 AND f_deleted = false
	`
	args := []any{r.account, objType}

	names := make([]string, 0, len(filters))
	for name := range filters {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		value := filterText(filters[name])
		switch name {
		case "uname":
			args = append(args, value)
			query += fmt.Sprintf(" AND uname = $%d", len(args))
		case "entity_id":
			args = append(args, value)
			query += fmt.Sprintf(" AND entity_id = $%d", len(args))
		default:
			args = append(args, name, value)
			query += fmt.Sprintf(" AND field_data->>$%d = $%d", len(args)-1, len(args))
		}
	}
	query += " ORDER BY local_id"

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entities: %w", err)
	}
	defer rows.Close()

	var out []*entity.Entity
	for rows.Next() {
		var (
			rowObjType string
			entityID   string
			localID    int64
			uname      *string
			fieldData  []byte
			revision   int64
			commitID   int64
			fDeleted   bool
		)
		if err := rows.Scan(&rowObjType, &entityID, &localID, &uname, &fieldData, &revision, &commitID, &fDeleted); err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		ent, err := r.buildEntity(ctx, rowObjType, entityID, localID, uname, fieldData, revision, commitID, fDeleted)
		if err != nil {
			return nil, err
		}
		out = append(out, ent)
	}
	return out, rows.Err()
}

// SaveRevision snapshots the current entity state into the revision
// history table
func (r *EntityRepository) SaveRevision(ctx context.Context, ent *entity.Entity) error {
	payload, err := json.Marshal(ent.ToArray())
	if err != nil {
		return fmt.Errorf("failed to serialize revision snapshot: %w", err)
	}

	query := `
		INSERT INTO entity_revision (account, object_type, entity_id, revision, field_data, ts_created)
		VALUES ($1, $2, $3, $4, $5, now())
	`
	_, err = r.db.Exec(ctx, query, r.account, ent.ObjType(), ent.EntityID(), ent.Revision(), payload)
	if err != nil {
		return fmt.Errorf("failed to save revision snapshot: %w", err)
	}
	return nil
}

// EntityRevision is one historical snapshot of an entity
type EntityRevision struct {
	Revision int64
	Data     map[string]any
}

// GetRevisions returns every stored snapshot for an entity in order
func (r *EntityRepository) GetRevisions(ctx context.Context, objType, entityID string) ([]EntityRevision, error) {
	query := `
		SELECT revision, field_data
		FROM entity_revision
		WHERE account = $1 AND object_type = $2 AND entity_id = $3
		ORDER BY revision
	`
	rows, err := r.db.Query(ctx, query, r.account, objType, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to list revisions: %w", err)
	}
	defer rows.Close()

	var out []EntityRevision
	for rows.Next() {
		var (
			rev  EntityRevision
			data []byte
		)
		if err := rows.Scan(&rev.Revision, &data); err != nil {
			return nil, fmt.Errorf("failed to scan revision: %w", err)
		}
		if err := json.Unmarshal(data, &rev.Data); err != nil {
			return nil, fmt.Errorf("corrupt revision snapshot: %w", err)
		}
		out = append(out, rev)
	}
	return out, rows.Err()
}

// GetMovedTo returns the redirect for a superseded id, "" when none
func (r *EntityRepository) GetMovedTo(ctx context.Context, objType, oldID string) (string, error) {
	query := `
		SELECT new_id
		FROM entity_moved
		WHERE account = $1 AND object_type = $2 AND old_id = $3
	`
	var newID string
	err := r.db.QueryRow(ctx, query, r.account, objType, oldID).Scan(&newID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to check moved entity: %w", err)
	}
	return newID, nil
}

// SetMovedTo records a redirect from a superseded id to its
// replacement
func (r *EntityRepository) SetMovedTo(ctx context.Context, objType, oldID, newID string) error {
	query := `
		INSERT INTO entity_moved (account, object_type, old_id, new_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (account, object_type, old_id) DO UPDATE SET new_id = EXCLUDED.new_id
	`
	_, err := r.db.Exec(ctx, query, r.account, objType, oldID, newID)
	if err != nil {
		return fmt.Errorf("failed to record moved entity: %w", err)
	}
	return nil
}

func (r *EntityRepository) schemaRevision(ctx context.Context, objType string) (int, error) {
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
		return 0, fmt.Errorf("failed to read schema revision: %w", err)
	}
	return revision, nil
}

// filterText renders a filter value the way JSONB ->> renders it
func filterText(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case bool:
		if val {
			return "true"
		}
		return "false"
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", val)
	}
}
