package aggregates

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/recordstack/entitystore/common/logger"
	"github.com/recordstack/entitystore/pkg/definition"
	"github.com/recordstack/entitystore/pkg/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubMapper struct {
	targets map[string]*entity.Entity
	saves   int
}

func (m *stubMapper) GetByID(ctx context.Context, objType, id string) (*entity.Entity, error) {
	return m.targets[objType+"/"+id], nil
}

func (m *stubMapper) GetByGUID(ctx context.Context, guid string) (*entity.Entity, error) {
	return m.targets[guid], nil
}

func (m *stubMapper) Save(ctx context.Context, ent *entity.Entity, userID string) (string, error) {
	m.saves++
	return ent.EntityID(), nil
}

type stubStore struct {
	rows []*entity.Entity
}

func (s *stubStore) FetchByID(ctx context.Context, objType, id string) (*entity.Entity, error) {
	return nil, entity.ErrNotFound
}

func (s *stubStore) FetchByGUID(ctx context.Context, guid string) (*entity.Entity, error) {
	return nil, entity.ErrNotFound
}

func (s *stubStore) Save(ctx context.Context, ent *entity.Entity) error      { return nil }
func (s *stubStore) DeleteHard(ctx context.Context, ent *entity.Entity) error { return nil }

func (s *stubStore) QueryByFieldValues(ctx context.Context, objType string, filters map[string]any) ([]*entity.Entity, error) {
	return s.rows, nil
}

func (s *stubStore) SaveRevision(ctx context.Context, ent *entity.Entity) error { return nil }
func (s *stubStore) GetMovedTo(ctx context.Context, objType, oldID string) (string, error) {
	return "", nil
}
func (s *stubStore) SetMovedTo(ctx context.Context, objType, oldID, newID string) error { return nil }

func lineDef() *definition.EntityDefinition {
	def := definition.NewDefinition("invoice_line",
		&definition.Field{Name: "amount", Type: definition.FieldNumber},
		&definition.Field{Name: "invoice_id", Type: definition.FieldObject, Subtype: "invoice"},
	)
	def.Aggregates = []definition.Aggregate{
		{Type: "sum", Field: "amount", RefField: "invoice_id", CalcField: "total"},
	}
	return def
}

func invoiceDef() *definition.EntityDefinition {
	return definition.NewDefinition("invoice",
		&definition.Field{Name: "total", Type: definition.FieldNumber},
	)
}

func makeLine(t *testing.T, amount float64, invoiceGUID string) *entity.Entity {
	t.Helper()
	ent := entity.New(lineDef())
	require.NoError(t, ent.SetValue("amount", amount))
	require.NoError(t, ent.SetValue("invoice_id", invoiceGUID))
	return ent
}

func TestOnSave_SumRollup(t *testing.T) {
	guid := uuid.NewString()
	invoice := entity.New(invoiceDef())
	require.NoError(t, invoice.SetValue("entity_id", guid))

	mapper := &stubMapper{targets: map[string]*entity.Entity{guid: invoice}}
	store := &stubStore{rows: []*entity.Entity{
		makeLine(t, 10.5, guid),
		makeLine(t, 4.5, guid),
	}}
	u := NewUpdater(mapper, store, logger.New("error", "json"))

	require.NoError(t, u.OnSave(context.Background(), store.rows[0], "user-1"))

	assert.Equal(t, 15.0, invoice.GetValue("total"))
	assert.Equal(t, 1, mapper.saves)
}

func TestOnSave_SkipsWhenNoAggregates(t *testing.T) {
	mapper := &stubMapper{targets: map[string]*entity.Entity{}}
	u := NewUpdater(mapper, &stubStore{}, logger.New("error", "json"))

	ent := entity.New(invoiceDef())
	require.NoError(t, u.OnSave(context.Background(), ent, "user-1"))
	assert.Zero(t, mapper.saves)
}

func TestOnSave_SkipsEmptyReference(t *testing.T) {
	mapper := &stubMapper{targets: map[string]*entity.Entity{}}
	u := NewUpdater(mapper, &stubStore{}, logger.New("error", "json"))

	line := entity.New(lineDef())
	require.NoError(t, line.SetValue("amount", 10))
	require.NoError(t, u.OnSave(context.Background(), line, "user-1"))
	assert.Zero(t, mapper.saves)
}

func TestCompute(t *testing.T) {
	rows := []*entity.Entity{}
	for _, amount := range []float64{4, 2, 6} {
		ent := entity.New(lineDef())
		require.NoError(t, ent.SetValue("amount", amount))
		rows = append(rows, ent)
	}

	assert.Equal(t, int64(3), compute("count", "amount", rows))
	assert.Equal(t, 12.0, compute("sum", "amount", rows))
	assert.Equal(t, 4.0, compute("avg", "amount", rows))
	assert.Equal(t, 2.0, compute("min", "amount", rows))
	assert.Equal(t, 6.0, compute("max", "amount", rows))
	assert.Equal(t, float64(0), compute("avg", "amount", nil))
}
