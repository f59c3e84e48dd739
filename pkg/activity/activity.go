package activity

import (
	"context"
	"time"

	"github.com/recordstack/entitystore/common/logger"
	"github.com/recordstack/entitystore/pkg/entity"
)

// Record is one row in the activity trail
type Record struct {
	UserID      string
	Verb        string
	ObjType     string
	EntityID    string
	Name        string
	Description string
	Timestamp   time.Time
}

// Store persists activity records
type Store interface {
	Insert(ctx context.Context, rec *Record) error
}

// Logger writes human-readable activity entries for entity saves and
// deletes
type Logger struct {
	store Store
	log   *logger.Logger
}

// NewLogger creates an activity logger
func NewLogger(store Store, log *logger.Logger) *Logger {
	return &Logger{store: store, log: log}
}

// Log records an action against an entity. The description prefers the
// pending change narrative, falling back to the entity's own
// description.
func (l *Logger) Log(ctx context.Context, userID, verb string, ent *entity.Entity) error {
	description := ent.ChangeLogDescription()
	if description == "" {
		description = ent.GetDescription()
	}

	return l.store.Insert(ctx, &Record{
		UserID:      userID,
		Verb:        verb,
		ObjType:     ent.ObjType(),
		EntityID:    ent.EntityID(),
		Name:        ent.GetName(userID),
		Description: description,
		Timestamp:   time.Now(),
	})
}
