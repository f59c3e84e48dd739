package repository

import (
	"context"
	"fmt"

	"github.com/recordstack/entitystore/common/db"
)

// CommitRepository allocates strictly increasing commit ids per
// namespace. The counter row is advanced atomically inside the
// database, so concurrent processes never observe the same id.
type CommitRepository struct {
	db      *db.DB
	account string
}

// NewCommitRepository creates a commit repository scoped to one
// account
func NewCommitRepository(database *db.DB, account string) *CommitRepository {
	return &CommitRepository{db: database, account: account}
}

// CreateCommit advances the namespace counter and returns the new head
func (r *CommitRepository) CreateCommit(ctx context.Context, namespace string) (int64, error) {
	query := `
		INSERT INTO entity_commit (account, namespace, head)
		VALUES ($1, $2, 1)
		ON CONFLICT (account, namespace) DO UPDATE SET head = entity_commit.head + 1
		RETURNING head
	`
	var head int64
	if err := r.db.QueryRow(ctx, query, r.account, namespace).Scan(&head); err != nil {
		return 0, fmt.Errorf("failed to create commit for %s: %w", namespace, err)
	}
	return head, nil
}
