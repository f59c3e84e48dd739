package datamapper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/recordstack/entitystore/common/logger"
	"github.com/recordstack/entitystore/pkg/definition"
	"github.com/recordstack/entitystore/pkg/entity"
)

// DataMapper orchestrates every state transition of an entity against
// durable storage. All cross-cutting invariants (revisioning, commit
// bookkeeping, unique names, reference coherence, recurrence linkage)
// are enforced here, in protocol order.
type DataMapper struct {
	store      Store
	commits    CommitManager
	sync       SyncService
	index      Index
	validator  Validator
	activity   ActivityLog
	notifier   Notifier
	recurrence RecurrenceStore
	groupings  GroupingLoader
	defs       definition.Loader
	log        *logger.Logger

	aggregator  Aggregator
	invalidator CacheInvalidator

	beforeSave  Hook
	afterSave   Hook
	beforePurge Hook
	afterPurge  Hook

	// movedCache holds resolved (objType/oldID) -> newID redirects.
	// Process-local, accessed by one logical operation at a time.
	movedCache map[string]string
}

// Config wires the mapper's required collaborators
type Config struct {
	Store       Store
	Commits     CommitManager
	Sync        SyncService
	Index       Index
	Validator   Validator
	Activity    ActivityLog
	Notifier    Notifier
	Recurrence  RecurrenceStore
	Groupings   GroupingLoader
	Definitions definition.Loader
	Log         *logger.Logger
}

// New creates a data mapper
func New(cfg Config) *DataMapper {
	return &DataMapper{
		store:      cfg.Store,
		commits:    cfg.Commits,
		sync:       cfg.Sync,
		index:      cfg.Index,
		validator:  cfg.Validator,
		activity:   cfg.Activity,
		notifier:   cfg.Notifier,
		recurrence: cfg.Recurrence,
		groupings:  cfg.Groupings,
		defs:       cfg.Definitions,
		log:        cfg.Log,
		movedCache: make(map[string]string),
	}
}

// SetAggregator wires the rollup updater. Set after construction
// because the updater saves entities back through this mapper.
func (m *DataMapper) SetAggregator(a Aggregator) {
	m.aggregator = a
}

// SetCacheInvalidator wires the loader's cache clearing. Set after
// construction because the loader fetches through this mapper.
func (m *DataMapper) SetCacheInvalidator(inv CacheInvalidator) {
	m.invalidator = inv
}

// SetBeforeSaveHook installs a pre-save side effect
func (m *DataMapper) SetBeforeSaveHook(h Hook) { m.beforeSave = h }

// SetAfterSaveHook installs a post-save side effect
func (m *DataMapper) SetAfterSaveHook(h Hook) { m.afterSave = h }

// SetBeforePurgeHook installs a pre-purge side effect
func (m *DataMapper) SetBeforePurgeHook(h Hook) { m.beforePurge = h }

// SetAfterPurgeHook installs a post-purge side effect
func (m *DataMapper) SetAfterPurgeHook(h Hook) { m.afterPurge = h }

// Save runs the full save protocol and returns the entity's global id.
// On validation failure nothing is written.
func (m *DataMapper) Save(ctx context.Context, ent *entity.Entity, userID string) (string, error) {
	objType := ent.ObjType()
	def := ent.Definition()

	event := definition.EventUpdate
	if !ent.IsSaved() {
		event = definition.EventCreate
	}

	// 1. validate before any side effect
	if err := m.validator.IsValid(ctx, ent, event); err != nil {
		return "", err
	}

	// 2. revision increments exactly once per successful save
	ent.SetRevision(ent.Revision() + 1)

	// 3. allocate the sync commit, remembering the previous one
	oldCommit := ent.CommitID()
	commitID, err := m.commits.CreateCommit(ctx, "entities/"+objType)
	if err != nil {
		return "", fmt.Errorf("failed to create commit: %w", err)
	}
	ent.SetCommitID(commitID)

	// 4.-5. event-scoped defaults and system timestamps
	ent.SetFieldsDefault(event, userID)
	m.stampTimestamps(ent, event)

	// 6. unique name
	if def.UnameSourceField() != "" {
		if err := m.setUniqueName(ctx, ent); err != nil {
			return "", err
		}
	}

	// 7. global id
	if ent.EntityID() == "" {
		if err := ent.SetValue("entity_id", uuid.NewString()); err != nil {
			return "", err
		}
	}

	// 8. reference label refresh, self-healing dangling pointers
	if err := m.refreshReferenceLabels(ctx, ent); err != nil {
		return "", err
	}

	// 9. reserve a recurrence id before either row exists
	if err := m.reserveRecurrenceID(ctx, ent); err != nil {
		return "", err
	}

	// 10. pre-save side effects
	ent.UpdateFollowers()
	if m.beforeSave != nil {
		if err := m.beforeSave(ctx, ent); err != nil {
			return "", fmt.Errorf("before-save hook failed: %w", err)
		}
	}

	// 11. persist, retrying once on a stale schema
	if err := m.saveWithStaleRetry(ctx, ent); err != nil {
		return "", err
	}

	// 12. revision history snapshot
	if def.StoreRevisions {
		if err := m.store.SaveRevision(ctx, ent); err != nil {
			return "", fmt.Errorf("failed to snapshot revision: %w", err)
		}
	}

	// 13. search index
	if err := m.index.Save(ctx, ent); err != nil {
		return "", fmt.Errorf("failed to index entity: %w", err)
	}

	// 14. loader cache
	m.invalidateCache(ctx, ent)

	// 15. mark the previously exported commit stale
	if oldCommit != 0 && commitID != 0 {
		if err := m.sync.SetExportedStale(ctx, objType, oldCommit, commitID); err != nil {
			return "", fmt.Errorf("failed to mark commit stale: %w", err)
		}
	}

	// 16. notifications
	m.notifier.Send(ctx, ent, event)

	// 17. post-save side effects
	if m.afterSave != nil {
		if err := m.afterSave(ctx, ent); err != nil {
			return "", fmt.Errorf("after-save hook failed: %w", err)
		}
	}

	// 18. aggregate rollups on related entities
	if m.aggregator != nil {
		if err := m.aggregator.OnSave(ctx, ent, userID); err != nil {
			return "", fmt.Errorf("failed to update aggregates: %w", err)
		}
	}

	// 19. the save consumed the pending changes
	ent.ResetDirty()

	// 20. persist the recurrence pattern, unless this occurrence is a
	// detached exception
	if ent.Recurrence != nil && !ent.IsRecurrenceException {
		if ent.Recurrence.FirstEntityID == "" {
			ent.Recurrence.FirstEntityID = ent.EntityID()
		}
		ent.Recurrence.ObjType = objType
		if err := m.recurrence.Save(ctx, ent.Recurrence); err != nil {
			return "", fmt.Errorf("failed to save recurrence pattern: %w", err)
		}
	}

	// 21. activity trail, best effort
	if err := m.activity.Log(ctx, userID, event, ent); err != nil {
		m.log.Warn("failed to write activity log",
			"obj_type", objType, "entity_id", ent.EntityID(), "error", err)
	}

	return ent.EntityID(), nil
}

// Delete soft-deletes an entity, or purges it when force is set or it
// is already soft-deleted
func (m *DataMapper) Delete(ctx context.Context, ent *entity.Entity, force bool, userID string) error {
	if !ent.IsSaved() {
		return fmt.Errorf("%w: cannot delete an unsaved entity", entity.ErrInvalidArgument)
	}

	if force || ent.IsDeleted() {
		return m.deleteHard(ctx, ent)
	}
	return m.deleteSoft(ctx, ent, userID)
}

func (m *DataMapper) deleteSoft(ctx context.Context, ent *entity.Entity, userID string) error {
	objType := ent.ObjType()

	oldCommit := ent.CommitID()
	commitID, err := m.commits.CreateCommit(ctx, "entities/"+objType)
	if err != nil {
		return fmt.Errorf("failed to create commit: %w", err)
	}
	ent.SetCommitID(commitID)

	if err := ent.SetValue("f_deleted", true); err != nil {
		return err
	}

	if err := m.saveWithStaleRetry(ctx, ent); err != nil {
		return err
	}
	if err := m.index.Save(ctx, ent); err != nil {
		return fmt.Errorf("failed to index entity: %w", err)
	}

	if oldCommit != 0 {
		if err := m.sync.SetExportedStale(ctx, objType, oldCommit, commitID); err != nil {
			return fmt.Errorf("failed to mark commit stale: %w", err)
		}
	}
	m.invalidateCache(ctx, ent)
	ent.ResetDirty()

	if err := m.activity.Log(ctx, userID, "delete", ent); err != nil {
		m.log.Warn("failed to write activity log",
			"obj_type", objType, "entity_id", ent.EntityID(), "error", err)
	}
	return nil
}

func (m *DataMapper) deleteHard(ctx context.Context, ent *entity.Entity) error {
	objType := ent.ObjType()
	def := ent.Definition()

	if m.beforePurge != nil {
		if err := m.beforePurge(ctx, ent); err != nil {
			return fmt.Errorf("before-purge hook failed: %w", err)
		}
	}

	// The canonical first occurrence takes the series pattern with it
	if def.RecurRules != nil {
		recurID := ent.GetValueString(def.RecurRules.FieldRecurID)
		if recurID != "" {
			pattern, err := m.recurrence.Get(ctx, recurID)
			if err != nil && !errors.Is(err, entity.ErrNotFound) {
				return fmt.Errorf("failed to load recurrence pattern: %w", err)
			}
			if pattern != nil && pattern.EntityIsFirst(ent.EntityID()) {
				if err := m.recurrence.Delete(ctx, recurID); err != nil {
					return fmt.Errorf("failed to delete recurrence pattern: %w", err)
				}
			}
		}
	}

	if err := m.store.DeleteHard(ctx, ent); err != nil {
		return fmt.Errorf("failed to purge entity: %w", err)
	}

	if m.afterPurge != nil {
		if err := m.afterPurge(ctx, ent); err != nil {
			return fmt.Errorf("after-purge hook failed: %w", err)
		}
	}

	if err := m.index.Remove(ctx, ent); err != nil {
		return fmt.Errorf("failed to remove entity from index: %w", err)
	}

	oldCommit := ent.CommitID()
	if oldCommit != 0 {
		commitID, err := m.commits.CreateCommit(ctx, "entities/"+objType)
		if err != nil {
			return fmt.Errorf("failed to create commit: %w", err)
		}
		if err := m.sync.SetExportedStale(ctx, objType, oldCommit, commitID); err != nil {
			return fmt.Errorf("failed to mark commit stale: %w", err)
		}
	}

	m.invalidateCache(ctx, ent)
	return nil
}

// saveWithStaleRetry persists the row, resyncing the definition and
// retrying exactly once when storage reports a stale schema
func (m *DataMapper) saveWithStaleRetry(ctx context.Context, ent *entity.Entity) error {
	err := m.store.Save(ctx, ent)
	if errors.Is(err, definition.ErrStale) {
		m.log.Warn("stale definition on save, resyncing",
			"obj_type", ent.ObjType(), "entity_id", ent.EntityID())
		if rerr := m.defs.ForceSystemReset(ctx, ent.ObjType()); rerr != nil {
			return fmt.Errorf("failed to resync definition: %w", rerr)
		}
		err = m.store.Save(ctx, ent)
	}
	if err != nil {
		return fmt.Errorf("failed to persist entity: %w", err)
	}
	return nil
}

func (m *DataMapper) stampTimestamps(ent *entity.Entity, event string) {
	now := time.Now().Unix()
	if event == definition.EventCreate && definition.IsEmptyValue(ent.GetValue("ts_entered")) {
		_ = ent.SetValue("ts_entered", now)
	}
	_ = ent.SetValue("ts_updated", now)
}

func (m *DataMapper) reserveRecurrenceID(ctx context.Context, ent *entity.Entity) error {
	def := ent.Definition()
	if ent.Recurrence == nil || ent.Recurrence.IsSaved() || def.RecurRules == nil {
		return nil
	}
	if !definition.IsEmptyValue(ent.GetValue(def.RecurRules.FieldRecurID)) {
		return nil
	}

	id, err := m.recurrence.NextID(ctx, ent.ObjType())
	if err != nil {
		return fmt.Errorf("failed to reserve recurrence id: %w", err)
	}
	ent.Recurrence.ID = id
	ent.Recurrence.ObjType = ent.ObjType()
	return ent.SetValue(def.RecurRules.FieldRecurID, id)
}

// refreshReferenceLabels re-resolves every cached foreign-key label.
// References that no longer resolve are cleared rather than failing
// the save, with a structured warning so the cleanup is observable.
func (m *DataMapper) refreshReferenceLabels(ctx context.Context, ent *entity.Entity) error {
	def := ent.Definition()

	for _, f := range def.Fields {
		switch {
		case f.Type.IsObjectReference():
			for _, id := range valueIDs(ent.GetValue(f.Name)) {
				ref, err := m.fetchReference(ctx, f.Subtype, id)
				if errors.Is(err, errUnresolvableRef) {
					continue
				}
				if err != nil {
					return err
				}
				if ref == nil {
					if err := m.clearReference(ent, f, id); err != nil {
						return err
					}
					continue
				}
				if err := m.setReferenceLabel(ent, f, id, ref.GetName("")); err != nil {
					return err
				}
			}

		case f.Type.IsGroupingReference():
			ids := valueIDs(ent.GetValue(f.Name))
			if len(ids) == 0 {
				continue
			}
			userGUID := ""
			if def.IsPrivate {
				userGUID = ent.OwnerID()
			}
			groups, err := m.groupings.Get(ctx, ent.ObjType(), f.Name, userGUID)
			if err != nil {
				return fmt.Errorf("failed to load groupings for %s.%s: %w", ent.ObjType(), f.Name, err)
			}
			for _, id := range ids {
				group := groups.GetByID(id)
				if group == nil {
					if err := m.clearReference(ent, f, id); err != nil {
						return err
					}
					continue
				}
				if err := m.setReferenceLabel(ent, f, id, group.Name); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// errUnresolvableRef marks a reference value the mapper cannot even
// address: not a guid, and the field carries no subtype to look it up
// under. Such values are left untouched rather than treated as
// dangling.
var errUnresolvableRef = errors.New("reference cannot be resolved")

// fetchReference resolves a referenced entity by guid, or by legacy id
// when the field subtype names the target type. A nil entity with a nil
// error means the reference resolved to a missing target.
func (m *DataMapper) fetchReference(ctx context.Context, subtype, id string) (*entity.Entity, error) {
	var (
		ref *entity.Entity
		err error
	)
	switch {
	case uuid.Validate(id) == nil:
		ref, err = m.store.FetchByGUID(ctx, id)
	case subtype != "":
		ref, err = m.store.FetchByID(ctx, subtype, id)
	default:
		return nil, errUnresolvableRef
	}
	if errors.Is(err, entity.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve reference %q: %w", id, err)
	}
	return ref, nil
}

func (m *DataMapper) clearReference(ent *entity.Entity, f *definition.Field, id string) error {
	m.log.Warn("cleared dangling reference",
		"obj_type", ent.ObjType(),
		"entity_id", ent.EntityID(),
		"field", f.Name,
		"ref", id,
	)
	if f.Type.IsMulti() {
		_, err := ent.RemoveMultiValue(f.Name, id)
		return err
	}
	return ent.SetValue(f.Name, nil)
}

func (m *DataMapper) setReferenceLabel(ent *entity.Entity, f *definition.Field, id, label string) error {
	if f.Type.IsMulti() {
		return ent.AddMultiValue(f.Name, id, label)
	}
	return ent.SetValueWithLabel(f.Name, id, label)
}

func (m *DataMapper) invalidateCache(ctx context.Context, ent *entity.Entity) {
	if m.invalidator == nil {
		return
	}
	if id := ent.ID(); id != "" {
		m.invalidator.ClearCache(ctx, ent.ObjType(), id)
	}
	if guid := ent.EntityID(); guid != "" {
		m.invalidator.ClearCache(ctx, ent.ObjType(), guid)
		m.invalidator.ClearCacheByGUID(ctx, guid)
	}
}

// valueIDs renders a reference field value as a list of id strings
func valueIDs(v any) []string {
	switch val := v.(type) {
	case nil:
		return nil
	case []any:
		out := make([]string, 0, len(val))
		for _, elem := range val {
			if s := fmt.Sprintf("%v", elem); s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if val == "" {
			return nil
		}
		return []string{val}
	default:
		return []string{fmt.Sprintf("%v", val)}
	}
}
