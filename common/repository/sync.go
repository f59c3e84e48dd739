package repository

import (
	"context"
	"fmt"

	"github.com/recordstack/entitystore/common/db"
)

// SyncRepository records stale commit ranges so external sync partners
// can detect that a previously exported version is outdated
type SyncRepository struct {
	db      *db.DB
	account string
}

// NewSyncRepository creates a sync repository scoped to one account
func NewSyncRepository(database *db.DB, account string) *SyncRepository {
	return &SyncRepository{db: database, account: account}
}

// SetExportedStale marks a superseded commit stale for a collection
func (r *SyncRepository) SetExportedStale(ctx context.Context, collectionType string, oldCommit, newCommit int64) error {
	query := `
		INSERT INTO entity_sync_stale (account, collection_type, old_commit, new_commit, ts_marked)
		VALUES ($1, $2, $3, $4, now())
	`
	_, err := r.db.Exec(ctx, query, r.account, collectionType, oldCommit, newCommit)
	if err != nil {
		return fmt.Errorf("failed to mark commit %d stale for %s: %w", oldCommit, collectionType, err)
	}
	return nil
}

// StaleRange is one recorded stale window for a collection
type StaleRange struct {
	CollectionType string
	OldCommit      int64
	NewCommit      int64
}

// ListStale returns stale ranges for a collection after a commit,
// used by sync partners to plan re-export
func (r *SyncRepository) ListStale(ctx context.Context, collectionType string, sinceCommit int64) ([]StaleRange, error) {
	query := `
		SELECT collection_type, old_commit, new_commit
		FROM entity_sync_stale
		WHERE account = $1 AND collection_type = $2 AND new_commit > $3
		ORDER BY new_commit
	`
	rows, err := r.db.Query(ctx, query, r.account, collectionType, sinceCommit)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale commits: %w", err)
	}
	defer rows.Close()

	var out []StaleRange
	for rows.Next() {
		var s StaleRange
		if err := rows.Scan(&s.CollectionType, &s.OldCommit, &s.NewCommit); err != nil {
			return nil, fmt.Errorf("failed to scan stale range: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
