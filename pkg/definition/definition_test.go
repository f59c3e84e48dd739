package definition

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefinition_AppendsSystemFields(t *testing.T) {
	def := NewDefinition("task", &Field{Name: "name", Type: FieldText})

	for _, name := range []string{"id", "entity_id", "uname", "revision", "commit_id", "f_deleted", "ts_entered", "ts_updated", "followers"} {
		assert.True(t, def.HasField(name), "missing system field %s", name)
	}

	// Caller fields win on collision
	def = NewDefinition("task", &Field{Name: "followers", Type: FieldText})
	assert.Equal(t, FieldText, def.GetField("followers").Type)
}

func TestUnameTemplateAccessors(t *testing.T) {
	def := NewDefinition("page", &Field{Name: "site_id", Type: FieldObject}, &Field{Name: "title", Type: FieldText})

	assert.Empty(t, def.UnameSourceField())
	assert.Nil(t, def.UnameNamespaceFields())

	def.UnameSettings = []string{"site_id", "title"}
	assert.Equal(t, "title", def.UnameSourceField())
	assert.Equal(t, []string{"site_id"}, def.UnameNamespaceFields())
}

func TestDefaultRule_Coalesce(t *testing.T) {
	rule := &DefaultRule{Kind: DefaultCoalesce, Fields: []string{"nickname", "full_name"}}
	lookup := func(name string) any {
		if name == "full_name" {
			return "Alice Smith"
		}
		return ""
	}

	v, ok := rule.Apply(nil, EventCreate, lookup, "")
	require.True(t, ok)
	assert.Equal(t, "Alice Smith", v)

	// Non-empty current value blocks the rule
	_, ok = rule.Apply("already set", EventCreate, lookup, "")
	assert.False(t, ok)
}

func TestRegistry_LazyLoadAndReset(t *testing.T) {
	loads := 0
	reg := NewRegistry()
	reg.SetResetHook(func(ctx context.Context, objType string) (*EntityDefinition, error) {
		loads++
		return &EntityDefinition{ObjType: objType, Revision: loads}, nil
	})

	def, err := reg.Get(context.Background(), "task")
	require.NoError(t, err)
	assert.Equal(t, 1, def.Revision)

	// Cached on second read
	def, err = reg.Get(context.Background(), "task")
	require.NoError(t, err)
	assert.Equal(t, 1, def.Revision)
	assert.Equal(t, 1, loads)

	// Reset pulls a fresh copy
	require.NoError(t, reg.ForceSystemReset(context.Background(), "task"))
	def, err = reg.Get(context.Background(), "task")
	require.NoError(t, err)
	assert.Equal(t, 2, def.Revision)
}

func TestRegistry_NoHook(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Get(context.Background(), "ghost")
	assert.Error(t, err)

	reg.Register(&EntityDefinition{ObjType: "task", Revision: 1})
	def, err := reg.Get(context.Background(), "task")
	require.NoError(t, err)
	assert.Equal(t, "task", def.ObjType)
}

func TestRegistry_ResetHookFailure(t *testing.T) {
	reg := NewRegistry()
	reg.SetResetHook(func(ctx context.Context, objType string) (*EntityDefinition, error) {
		return nil, errors.New("storage down")
	})

	_, err := reg.Get(context.Background(), "task")
	assert.Error(t, err)
	assert.Error(t, reg.ForceSystemReset(context.Background(), "task"))
}
