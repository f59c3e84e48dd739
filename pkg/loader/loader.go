package loader

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/recordstack/entitystore/common/cache"
	"github.com/recordstack/entitystore/common/logger"
	"github.com/recordstack/entitystore/common/metrics"
	"github.com/recordstack/entitystore/pkg/datamapper"
	"github.com/recordstack/entitystore/pkg/definition"
	"github.com/recordstack/entitystore/pkg/entity"
)

// Counter names published to the metrics registry
const (
	MetricCacheHit  = "entity.cache.hit"
	MetricCacheMiss = "entity.cache.miss"
)

// Loader is the read/write gateway in front of the data mapper: a
// process-local identity map backed by the shared cache store. One
// loader serves one account; construct one per account/session rather
// than sharing a global.
//
// The identity map carries no locking: the concurrency model is one
// logical operation per process, and cross-process coherence rests on
// the shared cache tier being invalidated inside save/delete.
type Loader struct {
	mapper  *datamapper.DataMapper
	defs    definition.Loader
	cache   cache.Cache
	metrics *metrics.Registry
	log     *logger.Logger

	account  string
	cacheTTL time.Duration

	identity map[string]*entity.Entity
}

// New creates a loader scoped to one account
func New(
	mapper *datamapper.DataMapper,
	defs definition.Loader,
	cacheStore cache.Cache,
	reg *metrics.Registry,
	log *logger.Logger,
	account string,
	cacheTTL time.Duration,
) *Loader {
	return &Loader{
		mapper:   mapper,
		defs:     defs,
		cache:    cacheStore,
		metrics:  reg,
		log:      log,
		account:  account,
		cacheTTL: cacheTTL,
		identity: make(map[string]*entity.Entity),
	}
}

// Create constructs a new empty entity of the given object type
func (l *Loader) Create(ctx context.Context, objType string) (*entity.Entity, error) {
	def, err := l.defs.Get(ctx, objType)
	if err != nil {
		return nil, err
	}
	return entity.New(def), nil
}

// Get returns the entity for an id, consulting the identity map, then
// the shared cache, then the mapper. A well-formed guid redirects to
// the guid path. Misses return (nil, nil).
func (l *Loader) Get(ctx context.Context, objType, id string) (*entity.Entity, error) {
	if uuid.Validate(id) == nil {
		return l.GetByGUID(ctx, id)
	}

	key := objType + "/" + id
	if ent, ok := l.identity[key]; ok {
		return ent, nil
	}

	if ent := l.fromSharedCache(ctx, objType, cache.EntityKey(l.account, objType, id)); ent != nil {
		l.identity[key] = ent
		l.metrics.Increment(MetricCacheHit)
		return ent, nil
	}

	l.metrics.Increment(MetricCacheMiss)
	ent, err := l.mapper.GetByID(ctx, objType, id)
	if err != nil || ent == nil {
		return nil, err
	}
	l.populate(ctx, ent)
	return ent, nil
}

// GetByGUID returns the entity for a global id; the object type is
// recovered from the cached payload on a hit. Misses return (nil, nil).
func (l *Loader) GetByGUID(ctx context.Context, guid string) (*entity.Entity, error) {
	key := "guid/" + guid
	if ent, ok := l.identity[key]; ok {
		return ent, nil
	}

	if ent := l.fromSharedCache(ctx, "", cache.EntityGUIDKey(l.account, guid)); ent != nil {
		l.identity[key] = ent
		l.metrics.Increment(MetricCacheHit)
		return ent, nil
	}

	l.metrics.Increment(MetricCacheMiss)
	ent, err := l.mapper.GetByGUID(ctx, guid)
	if err != nil || ent == nil {
		return nil, err
	}
	l.populate(ctx, ent)
	return ent, nil
}

// GetByGUIDOrObjRef unifies the three addressing schemes callers still
// use: a guid, a bare legacy id plus object type, or a bracket-tagged
// reference string
func (l *Loader) GetByGUIDOrObjRef(ctx context.Context, value, objType string) (*entity.Entity, error) {
	if uuid.Validate(value) == nil {
		return l.GetByGUID(ctx, value)
	}
	if ref := entity.ParseObjRef(value); ref != nil {
		return l.Get(ctx, ref.ObjType, ref.ID)
	}
	if objType != "" {
		return l.Get(ctx, objType, value)
	}
	return nil, fmt.Errorf("%w: cannot resolve entity reference %q without an object type", entity.ErrInvalidArgument, value)
}

// Save persists the entity through the mapper and drops every cache
// entry that could now be stale
func (l *Loader) Save(ctx context.Context, ent *entity.Entity, userID string) (string, error) {
	id, err := l.mapper.Save(ctx, ent, userID)
	if err != nil {
		return "", err
	}
	l.invalidate(ctx, ent)
	return id, nil
}

// Delete removes the entity through the mapper (soft unless forceHard)
// and drops its cache entries
func (l *Loader) Delete(ctx context.Context, ent *entity.Entity, forceHard bool, userID string) error {
	if err := l.mapper.Delete(ctx, ent, forceHard, userID); err != nil {
		return err
	}
	l.invalidate(ctx, ent)
	return nil
}

// ClearCache drops the id-keyed entry from both tiers
func (l *Loader) ClearCache(ctx context.Context, objType, id string) {
	delete(l.identity, objType+"/"+id)
	if err := l.cache.Delete(ctx, cache.EntityKey(l.account, objType, id)); err != nil {
		l.log.Warn("failed to clear cache entry", "obj_type", objType, "id", id, "error", err)
	}
}

// ClearCacheByGUID drops the guid-keyed entry from both tiers
func (l *Loader) ClearCacheByGUID(ctx context.Context, guid string) {
	delete(l.identity, "guid/"+guid)
	if err := l.cache.Delete(ctx, cache.EntityGUIDKey(l.account, guid)); err != nil {
		l.log.Warn("failed to clear cache entry", "guid", guid, "error", err)
	}
}

// Reload re-populates the passed-in entity from a fresh fetch. Fails
// fast when the entity carries no identity to reload by.
func (l *Loader) Reload(ctx context.Context, ent *entity.Entity) error {
	guid := ent.EntityID()
	id := ent.ID()
	if guid == "" && id == "" {
		return fmt.Errorf("%w: entity has no identity to reload by", entity.ErrInvalidArgument)
	}

	l.invalidate(ctx, ent)

	var (
		fresh *entity.Entity
		err   error
	)
	if guid != "" {
		fresh, err = l.GetByGUID(ctx, guid)
	} else {
		fresh, err = l.Get(ctx, ent.ObjType(), id)
	}
	if err != nil {
		return err
	}
	if fresh == nil {
		return fmt.Errorf("reload %s/%s: %w", ent.ObjType(), guid+id, entity.ErrNotFound)
	}

	if err := ent.FromArray(fresh.ToArray(), false); err != nil {
		return err
	}
	ent.ResetDirty()
	return nil
}

func (l *Loader) invalidate(ctx context.Context, ent *entity.Entity) {
	if id := ent.ID(); id != "" {
		l.ClearCache(ctx, ent.ObjType(), id)
	}
	if guid := ent.EntityID(); guid != "" {
		l.ClearCache(ctx, ent.ObjType(), guid)
		l.ClearCacheByGUID(ctx, guid)
	}
}

// populate fills the identity map and the shared cache after a mapper
// fetch
func (l *Loader) populate(ctx context.Context, ent *entity.Entity) {
	guid := ent.EntityID()
	if id := ent.ID(); id != "" {
		l.identity[ent.ObjType()+"/"+id] = ent
	}
	if guid != "" {
		l.identity["guid/"+guid] = ent
		l.identity[ent.ObjType()+"/"+guid] = ent
	}

	payload, err := json.Marshal(ent.ToArray())
	if err != nil {
		l.log.Warn("failed to serialize entity for cache",
			"obj_type", ent.ObjType(), "entity_id", guid, "error", err)
		return
	}

	if id := ent.ID(); id != "" {
		l.setCache(ctx, cache.EntityKey(l.account, ent.ObjType(), id), payload)
	}
	if guid != "" {
		l.setCache(ctx, cache.EntityKey(l.account, ent.ObjType(), guid), payload)
		l.setCache(ctx, cache.EntityGUIDKey(l.account, guid), payload)
	}
}

func (l *Loader) setCache(ctx context.Context, key string, payload []byte) {
	if err := l.cache.Set(ctx, key, payload, l.cacheTTL); err != nil {
		l.log.Warn("failed to write cache entry", "key", key, "error", err)
	}
}

// fromSharedCache deserializes a cached payload into a fresh entity.
// objType may be empty for guid-keyed entries; it is then recovered
// from the payload. Corrupt or identityless payloads degrade to a
// miss.
func (l *Loader) fromSharedCache(ctx context.Context, objType, key string) *entity.Entity {
	data, found, err := l.cache.Get(ctx, key)
	if err != nil {
		l.log.Warn("cache read failed", "key", key, "error", err)
		return nil
	}
	if !found {
		return nil
	}

	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		l.log.Warn("corrupt cache payload", "key", key, "error", err)
		return nil
	}

	if objType == "" {
		objType, _ = fields["obj_type"].(string)
		if objType == "" {
			return nil
		}
	}

	def, err := l.defs.Get(ctx, objType)
	if err != nil {
		l.log.Warn("failed to load definition for cached entity",
			"obj_type", objType, "error", err)
		return nil
	}

	ent := entity.New(def)
	if err := ent.FromArray(fields, false); err != nil {
		l.log.Warn("failed to rebuild cached entity", "key", key, "error", err)
		return nil
	}
	if ent.EntityID() == "" && ent.ID() == "" {
		return nil
	}
	ent.ResetDirty()
	return ent
}
