package loader

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/recordstack/entitystore/common/cache"
	"github.com/recordstack/entitystore/common/logger"
	"github.com/recordstack/entitystore/common/metrics"
	"github.com/recordstack/entitystore/pkg/datamapper"
	"github.com/recordstack/entitystore/pkg/definition"
	"github.com/recordstack/entitystore/pkg/entity"
	"github.com/recordstack/entitystore/pkg/groupings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is a minimal in-memory store behind the mapper
type memStore struct {
	rows      map[string]*entity.Entity
	nextLocal int
	fetches   int
}

func (s *memStore) clone(ent *entity.Entity) *entity.Entity {
	cp := entity.New(ent.Definition())
	if err := cp.FromArray(ent.ToArray(), false); err != nil {
		panic(err)
	}
	cp.ResetDirty()
	return cp
}

func (s *memStore) FetchByID(ctx context.Context, objType, id string) (*entity.Entity, error) {
	s.fetches++
	for _, ent := range s.rows {
		if ent.ObjType() == objType && (ent.ID() == id || ent.EntityID() == id) {
			return s.clone(ent), nil
		}
	}
	return nil, entity.ErrNotFound
}

func (s *memStore) FetchByGUID(ctx context.Context, guid string) (*entity.Entity, error) {
	s.fetches++
	for _, ent := range s.rows {
		if ent.EntityID() == guid {
			return s.clone(ent), nil
		}
	}
	return nil, entity.ErrNotFound
}

func (s *memStore) Save(ctx context.Context, ent *entity.Entity) error {
	if ent.ID() == "" {
		s.nextLocal++
		if err := ent.SetValue("id", int64(s.nextLocal)); err != nil {
			return err
		}
	}
	s.rows[ent.ObjType()+"/"+ent.EntityID()] = s.clone(ent)
	return nil
}

func (s *memStore) DeleteHard(ctx context.Context, ent *entity.Entity) error {
	delete(s.rows, ent.ObjType()+"/"+ent.EntityID())
	return nil
}

func (s *memStore) QueryByFieldValues(ctx context.Context, objType string, filters map[string]any) ([]*entity.Entity, error) {
	var out []*entity.Entity
	for _, ent := range s.rows {
		if ent.ObjType() != objType || ent.IsDeleted() {
			continue
		}
		match := true
		for field, want := range filters {
			if ent.GetValueString(field) != fmt.Sprintf("%v", want) {
				match = false
				break
			}
		}
		if match {
			out = append(out, s.clone(ent))
		}
	}
	return out, nil
}

func (s *memStore) SaveRevision(ctx context.Context, ent *entity.Entity) error { return nil }

func (s *memStore) GetMovedTo(ctx context.Context, objType, oldID string) (string, error) {
	return "", nil
}

func (s *memStore) SetMovedTo(ctx context.Context, objType, oldID, newID string) error { return nil }

type noopCommits struct{ head int64 }

func (c *noopCommits) CreateCommit(ctx context.Context, namespace string) (int64, error) {
	c.head++
	return c.head, nil
}

type noopSync struct{}

func (noopSync) SetExportedStale(ctx context.Context, collectionType string, oldCommit, newCommit int64) error {
	return nil
}

type noopIndex struct{}

func (noopIndex) Save(ctx context.Context, ent *entity.Entity) error   { return nil }
func (noopIndex) Remove(ctx context.Context, ent *entity.Entity) error { return nil }

type noopValidator struct{}

func (noopValidator) IsValid(ctx context.Context, ent *entity.Entity, event string) error {
	return nil
}

type noopActivity struct{}

func (noopActivity) Log(ctx context.Context, userID, verb string, ent *entity.Entity) error {
	return nil
}

type noopNotifier struct{}

func (noopNotifier) Send(ctx context.Context, ent *entity.Entity, event string) {}

type noopRecurrence struct{}

func (noopRecurrence) NextID(ctx context.Context, objType string) (string, error) { return "1", nil }
func (noopRecurrence) Save(ctx context.Context, p *entity.RecurrencePattern) error {
	return nil
}
func (noopRecurrence) Get(ctx context.Context, id string) (*entity.RecurrencePattern, error) {
	return nil, entity.ErrNotFound
}
func (noopRecurrence) Delete(ctx context.Context, id string) error { return nil }

type noopGroupings struct{}

func (noopGroupings) Get(ctx context.Context, objType, fieldName, userGUID string) (*groupings.Groupings, error) {
	return &groupings.Groupings{ObjType: objType, FieldName: fieldName}, nil
}

func noteDef() *definition.EntityDefinition {
	return definition.NewDefinition("note",
		&definition.Field{Name: "name", Title: "Name", Type: definition.FieldText},
		&definition.Field{Name: "body", Title: "Body", Type: definition.FieldText},
	)
}

type loaderFixture struct {
	loader  *Loader
	store   *memStore
	cache   cache.Cache
	metrics *metrics.Registry
}

func newLoaderFixture(t *testing.T) *loaderFixture {
	t.Helper()

	log := logger.New("error", "json")
	store := &memStore{rows: make(map[string]*entity.Entity)}
	registry := definition.NewRegistry()
	registry.Register(noteDef())

	mapper := datamapper.New(datamapper.Config{
		Store:       store,
		Commits:     &noopCommits{},
		Sync:        noopSync{},
		Index:       noopIndex{},
		Validator:   noopValidator{},
		Activity:    noopActivity{},
		Notifier:    noopNotifier{},
		Recurrence:  noopRecurrence{},
		Groupings:   noopGroupings{},
		Definitions: registry,
		Log:         log,
	})

	memCache := cache.NewMemoryCache(log)
	t.Cleanup(func() { memCache.Close() })
	reg := metrics.NewRegistry()

	l := New(mapper, registry, memCache, reg, log, "acme", time.Minute)
	mapper.SetCacheInvalidator(l)

	return &loaderFixture{loader: l, store: store, cache: memCache, metrics: reg}
}

func (f *loaderFixture) seed(t *testing.T, name string) string {
	t.Helper()
	ent := entity.New(noteDef())
	require.NoError(t, ent.SetValue("name", name))
	guid, err := f.loader.Save(context.Background(), ent, "user-1")
	require.NoError(t, err)
	return guid
}

func TestGet_IdentityMapReturnsSamePointer(t *testing.T) {
	f := newLoaderFixture(t)
	ctx := context.Background()
	guid := f.seed(t, "first")

	a, err := f.loader.GetByGUID(ctx, guid)
	require.NoError(t, err)
	require.NotNil(t, a)

	b, err := f.loader.GetByGUID(ctx, guid)
	require.NoError(t, err)
	assert.Same(t, a, b)

	// The id route lands on the same identity entry
	c, err := f.loader.Get(ctx, "note", guid)
	require.NoError(t, err)
	assert.Same(t, a, c)
}

func TestGet_CacheHitSkipsMapper(t *testing.T) {
	f := newLoaderFixture(t)
	ctx := context.Background()
	guid := f.seed(t, "first")

	_, err := f.loader.GetByGUID(ctx, guid)
	require.NoError(t, err)
	assert.Equal(t, int64(1), f.metrics.Value(MetricCacheMiss))

	// A second loader shares the cache tier but not the identity map
	l2 := New(nil, f.loader.defs, f.cache, f.metrics, f.loader.log, "acme", time.Minute)
	fetchesBefore := f.store.fetches

	ent, err := l2.GetByGUID(ctx, guid)
	require.NoError(t, err)
	require.NotNil(t, ent)
	assert.Equal(t, "first", ent.GetValueString("name"))
	assert.Equal(t, fetchesBefore, f.store.fetches)
	assert.Equal(t, int64(1), f.metrics.Value(MetricCacheHit))
}

func TestGet_MissReturnsNil(t *testing.T) {
	f := newLoaderFixture(t)
	ent, err := f.loader.Get(context.Background(), "note", "999")
	require.NoError(t, err)
	assert.Nil(t, ent)
	assert.Equal(t, int64(1), f.metrics.Value(MetricCacheMiss))
}

func TestGet_GUIDRedirect(t *testing.T) {
	f := newLoaderFixture(t)
	ctx := context.Background()
	guid := f.seed(t, "first")

	// A guid passed through the id route resolves via the guid path
	ent, err := f.loader.Get(ctx, "note", guid)
	require.NoError(t, err)
	require.NotNil(t, ent)
	assert.Equal(t, guid, ent.EntityID())
}

func TestGetByGUIDOrObjRef(t *testing.T) {
	f := newLoaderFixture(t)
	ctx := context.Background()
	guid := f.seed(t, "first")

	byGUID, err := f.loader.GetByGUIDOrObjRef(ctx, guid, "")
	require.NoError(t, err)
	require.NotNil(t, byGUID)

	byRef, err := f.loader.GetByGUIDOrObjRef(ctx, "[note:"+byGUID.ID()+":first]", "")
	require.NoError(t, err)
	require.NotNil(t, byRef)
	assert.Equal(t, guid, byRef.EntityID())

	byID, err := f.loader.GetByGUIDOrObjRef(ctx, byGUID.ID(), "note")
	require.NoError(t, err)
	require.NotNil(t, byID)

	_, err = f.loader.GetByGUIDOrObjRef(ctx, "123", "")
	assert.ErrorIs(t, err, entity.ErrInvalidArgument)
}

func TestSave_InvalidatesCaches(t *testing.T) {
	f := newLoaderFixture(t)
	ctx := context.Background()
	guid := f.seed(t, "first")

	ent, err := f.loader.GetByGUID(ctx, guid)
	require.NoError(t, err)

	require.NoError(t, ent.SetValue("name", "second"))
	_, err = f.loader.Save(ctx, ent, "user-1")
	require.NoError(t, err)

	// The cache tier no longer holds the stale payload
	_, found, err := f.cache.Get(ctx, "acme/objects/guid/"+guid)
	require.NoError(t, err)
	assert.False(t, found)

	fresh, err := f.loader.GetByGUID(ctx, guid)
	require.NoError(t, err)
	assert.Equal(t, "second", fresh.GetValueString("name"))
}

func TestDelete_DropsIdentityEntry(t *testing.T) {
	f := newLoaderFixture(t)
	ctx := context.Background()
	guid := f.seed(t, "first")

	ent, err := f.loader.GetByGUID(ctx, guid)
	require.NoError(t, err)

	require.NoError(t, f.loader.Delete(ctx, ent, true, "user-1"))

	gone, err := f.loader.GetByGUID(ctx, guid)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestReload(t *testing.T) {
	f := newLoaderFixture(t)
	ctx := context.Background()
	guid := f.seed(t, "first")

	ent, err := f.loader.GetByGUID(ctx, guid)
	require.NoError(t, err)

	// Local modifications are discarded by a reload
	require.NoError(t, ent.SetValue("name", "scratch"))
	require.NoError(t, f.loader.Reload(ctx, ent))
	assert.Equal(t, "first", ent.GetValueString("name"))
	assert.False(t, ent.IsDirty())

	// An identityless entity cannot be reloaded
	blank := entity.New(noteDef())
	assert.ErrorIs(t, f.loader.Reload(ctx, blank), entity.ErrInvalidArgument)
}

func TestCreate(t *testing.T) {
	f := newLoaderFixture(t)
	ent, err := f.loader.Create(context.Background(), "note")
	require.NoError(t, err)
	assert.Equal(t, "note", ent.ObjType())
	assert.False(t, ent.IsSaved())
}
