package datamapper

import (
	"context"

	"github.com/recordstack/entitystore/pkg/entity"
	"github.com/recordstack/entitystore/pkg/groupings"
)

// Store is the durable row storage behind the mapper. Lookup misses
// return entity.ErrNotFound; writes built against an outdated schema
// return definition.ErrStale.
type Store interface {
	FetchByID(ctx context.Context, objType, id string) (*entity.Entity, error)
	FetchByGUID(ctx context.Context, guid string) (*entity.Entity, error)
	Save(ctx context.Context, ent *entity.Entity) error
	DeleteHard(ctx context.Context, ent *entity.Entity) error

	// QueryByFieldValues returns non-deleted entities matching every
	// field equality filter. Used for unique-name checks and path
	// resolution.
	QueryByFieldValues(ctx context.Context, objType string, filters map[string]any) ([]*entity.Entity, error)

	// SaveRevision snapshots the entity state for revision history
	SaveRevision(ctx context.Context, ent *entity.Entity) error

	// Moved-entity redirection map
	GetMovedTo(ctx context.Context, objType, oldID string) (string, error)
	SetMovedTo(ctx context.Context, objType, oldID, newID string) error
}

// CommitManager allocates strictly increasing commit ids per namespace
type CommitManager interface {
	CreateCommit(ctx context.Context, namespace string) (int64, error)
}

// SyncService records stale commit ranges for external sync partners
type SyncService interface {
	SetExportedStale(ctx context.Context, collectionType string, oldCommit, newCommit int64) error
}

// Index keeps the search/query index in step with storage
type Index interface {
	Save(ctx context.Context, ent *entity.Entity) error
	Remove(ctx context.Context, ent *entity.Entity) error
}

// Validator checks an entity before any write happens
type Validator interface {
	IsValid(ctx context.Context, ent *entity.Entity, event string) error
}

// ActivityLog records save and delete actions. Failures are logged by
// the mapper, never surfaced.
type ActivityLog interface {
	Log(ctx context.Context, userID, verb string, ent *entity.Entity) error
}

// Notifier dispatches change notifications, fire-and-forget
type Notifier interface {
	Send(ctx context.Context, ent *entity.Entity, event string)
}

// RecurrenceStore persists recurrence patterns. NextID reserves a
// pattern id from a dedicated sequence before either the entity or the
// pattern row exists.
type RecurrenceStore interface {
	NextID(ctx context.Context, objType string) (string, error)
	Save(ctx context.Context, pattern *entity.RecurrencePattern) error
	Get(ctx context.Context, id string) (*entity.RecurrencePattern, error)
	Delete(ctx context.Context, id string) error
}

// Aggregator recomputes rollups on related entities after a save
type Aggregator interface {
	OnSave(ctx context.Context, ent *entity.Entity, userID string) error
}

// CacheInvalidator is how the mapper clears loader cache entries
// without depending on the loader package
type CacheInvalidator interface {
	ClearCache(ctx context.Context, objType, id string)
	ClearCacheByGUID(ctx context.Context, guid string)
}

// GroupingLoader is re-exported for wiring convenience
type GroupingLoader = groupings.Loader

// Hook runs custom side effects around a save or delete
type Hook func(ctx context.Context, ent *entity.Entity) error
