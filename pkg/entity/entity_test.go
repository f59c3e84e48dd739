package entity

import (
	"testing"

	"github.com/recordstack/entitystore/pkg/definition"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func taskDef() *definition.EntityDefinition {
	def := definition.NewDefinition("task",
		&definition.Field{Name: "name", Title: "Name", Type: definition.FieldText},
		&definition.Field{Name: "notes", Title: "Notes", Type: definition.FieldText},
		&definition.Field{Name: "done", Title: "Done", Type: definition.FieldBool},
		&definition.Field{Name: "priority", Title: "Priority", Type: definition.FieldInteger},
		&definition.Field{Name: "deadline", Title: "Deadline", Type: definition.FieldDate},
		&definition.Field{Name: "owner_id", Title: "Owner", Type: definition.FieldObject, Subtype: "user"},
		&definition.Field{Name: "status_id", Title: "Status", Type: definition.FieldGrouping},
		&definition.Field{Name: "watchers", Title: "Watchers", Type: definition.FieldObjectMulti, Subtype: "user"},
	)
	def.UnameSettings = []string{"name"}
	return def
}

// TestSetValue_Coercion verifies raw input normalizes to each field's
// canonical representation
func TestSetValue_Coercion(t *testing.T) {
	ent := New(taskDef())

	require.NoError(t, ent.SetValue("done", "t"))
	assert.Equal(t, true, ent.GetValue("done"))

	require.NoError(t, ent.SetValue("done", "no"))
	assert.Equal(t, false, ent.GetValue("done"))

	require.NoError(t, ent.SetValue("priority", "7"))
	assert.Equal(t, int64(7), ent.GetValue("priority"))

	// JSON numbers arrive as float64
	require.NoError(t, ent.SetValue("priority", float64(3)))
	assert.Equal(t, int64(3), ent.GetValue("priority"))

	// Date strings normalize to epoch seconds
	require.NoError(t, ent.SetValue("deadline", "2024-01-15"))
	assert.Equal(t, int64(1705276800), ent.GetValue("deadline"))

	// Unparseable date input counts as unset, not an error
	require.NoError(t, ent.SetValue("deadline", "someday"))
	assert.Nil(t, ent.GetValue("deadline"))
}

func TestSetValue_RejectsBadInput(t *testing.T) {
	ent := New(taskDef())

	err := ent.SetValue("name", []any{"a", "b"})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	err = ent.SetValue("no_such_field", "x")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	err = ent.SetValue("done", "maybe")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

// TestSetValue_MultiWrapsScalar verifies a bare scalar assigned to a
// multi field becomes a one-element sequence
func TestSetValue_MultiWrapsScalar(t *testing.T) {
	ent := New(taskDef())

	require.NoError(t, ent.SetValue("watchers", "123"))
	assert.Equal(t, []any{"123"}, ent.GetValue("watchers"))
}

func TestAddMultiValue_Dedup(t *testing.T) {
	ent := New(taskDef())

	require.NoError(t, ent.AddMultiValue("watchers", "42", "Alice"))
	require.NoError(t, ent.AddMultiValue("watchers", "99", "Bob"))
	assert.Equal(t, []any{"42", "99"}, ent.GetValue("watchers"))

	// Duplicate add only refreshes the label
	require.NoError(t, ent.AddMultiValue("watchers", "42", "Alice Smith"))
	assert.Equal(t, []any{"42", "99"}, ent.GetValue("watchers"))
	assert.Equal(t, "Alice Smith", ent.GetValueLabels("watchers")["42"])

	// Adding to a scalar field is rejected
	err := ent.AddMultiValue("name", "x", "")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestRemoveMultiValue(t *testing.T) {
	ent := New(taskDef())
	require.NoError(t, ent.AddMultiValue("watchers", "42", "Alice"))
	require.NoError(t, ent.AddMultiValue("watchers", "99", "Bob"))

	removed, err := ent.RemoveMultiValue("watchers", "42")
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Equal(t, []any{"99"}, ent.GetValue("watchers"))
	assert.Empty(t, ent.GetValueLabels("watchers")["42"])

	removed, err = ent.RemoveMultiValue("watchers", "42")
	require.NoError(t, err)
	assert.False(t, removed)
}

// TestChangeLog_PreservesEarliestOldValue verifies repeated changes to
// one field before a save keep the original starting point
func TestChangeLog_PreservesEarliestOldValue(t *testing.T) {
	ent := New(taskDef())
	require.NoError(t, ent.SetValue("name", "first"))
	ent.ResetDirty()
	assert.False(t, ent.IsDirty())

	require.NoError(t, ent.SetValue("name", "second"))
	require.NoError(t, ent.SetValue("name", "third"))

	assert.True(t, ent.IsDirty())
	assert.True(t, ent.FieldValueChanged("name"))
	assert.Equal(t, "first", ent.PreviousValue("name"))

	change := ent.ChangeLog()["name"]
	require.NotNil(t, change)
	assert.Equal(t, "first", change.OldValue)
	assert.Equal(t, "third", change.NewValue)
}

func TestChangeLog_NoEntryForEqualValue(t *testing.T) {
	ent := New(taskDef())
	require.NoError(t, ent.SetValue("priority", 5))
	ent.ResetDirty()

	require.NoError(t, ent.SetValue("priority", int64(5)))
	assert.False(t, ent.IsDirty())
}

func TestUnameRecomputedFromSourceField(t *testing.T) {
	ent := New(taskDef())
	require.NoError(t, ent.SetValue("name", "Review Q3 Budget"))
	assert.Equal(t, "review-q3-budget", ent.UName())

	require.NoError(t, ent.SetValue("name", "Sales & Marketing"))
	assert.Equal(t, "sales-_and_-marketing", ent.UName())
}

func TestFromArray_PartialUpdate(t *testing.T) {
	ent := New(taskDef())
	require.NoError(t, ent.SetValue("name", "keep me"))
	require.NoError(t, ent.SetValue("priority", 2))

	err := ent.FromArray(map[string]any{"priority": 9}, true)
	require.NoError(t, err)

	assert.Equal(t, "keep me", ent.GetValueString("name"))
	assert.Equal(t, int64(9), ent.GetValue("priority"))
}

// TestFromArray_FullLoadClearsAbsentFields verifies a full-document
// load treats missing keys as deletions
func TestFromArray_FullLoadClearsAbsentFields(t *testing.T) {
	ent := New(taskDef())
	require.NoError(t, ent.SetValue("name", "old"))
	require.NoError(t, ent.SetValue("priority", 2))
	require.NoError(t, ent.AddMultiValue("watchers", "42", "Alice"))

	err := ent.FromArray(map[string]any{"name": "new"}, false)
	require.NoError(t, err)

	assert.Equal(t, "new", ent.GetValueString("name"))
	assert.Nil(t, ent.GetValue("priority"))
	assert.Equal(t, []any{}, ent.GetValue("watchers"))
}

func TestFromArray_LoadsReferenceLabels(t *testing.T) {
	ent := New(taskDef())

	err := ent.FromArray(map[string]any{
		"owner_id":      "42",
		"owner_id_fval": map[string]any{"42": "Alice"},
		"watchers":      []any{"42", "99"},
		"watchers_fval": map[string]any{"42": "Alice", "99": "Bob"},
	}, true)
	require.NoError(t, err)

	assert.Equal(t, "Alice", ent.GetValueLabel("owner_id"))
	assert.Equal(t, "Bob", ent.GetValueLabels("watchers")["99"])
}

func TestToArray_RoundTrip(t *testing.T) {
	ent := New(taskDef())
	require.NoError(t, ent.SetValue("name", "Standup"))
	require.NoError(t, ent.SetValue("done", true))
	require.NoError(t, ent.SetValue("deadline", "2024-01-15"))
	require.NoError(t, ent.AddMultiValue("watchers", "42", "Alice"))

	out := ent.ToArray()
	assert.Equal(t, "task", out["obj_type"])
	assert.Equal(t, "Standup", out["name"])
	assert.Equal(t, "2024-01-15", out["deadline"])
	assert.Equal(t, map[string]string{"42": "Alice"}, out["watchers_fval"])

	clone := New(taskDef())
	require.NoError(t, clone.FromArray(out, false))
	assert.Equal(t, "Standup", clone.GetValueString("name"))
	assert.Equal(t, true, clone.GetValue("done"))
	assert.Equal(t, []any{"42"}, clone.GetValue("watchers"))
	assert.Equal(t, int64(1705276800), clone.GetValue("deadline"))
}

func TestIdentityAccessors(t *testing.T) {
	ent := New(taskDef())
	assert.False(t, ent.IsSaved())

	require.NoError(t, ent.SetValue("entity_id", "0b96f3a0-9143-49a4-8b84-7ec2a7a2b8a1"))
	assert.True(t, ent.IsSaved())
	assert.Equal(t, "0b96f3a0-9143-49a4-8b84-7ec2a7a2b8a1", ent.EntityID())

	ent.SetRevision(4)
	assert.Equal(t, int64(4), ent.Revision())

	require.NoError(t, ent.SetValue("f_deleted", true))
	assert.True(t, ent.IsDeleted())
	assert.True(t, ent.IsArchived())
}

func TestGetName(t *testing.T) {
	ent := New(taskDef())
	require.NoError(t, ent.SetValue("name", "Standup"))
	assert.Equal(t, "Standup", ent.GetName(""))

	ent.SetNameResolver(func(e *Entity, userID string) (string, bool) {
		if userID == "42" {
			return "Your standup", true
		}
		return "", false
	})
	assert.Equal(t, "Your standup", ent.GetName("42"))
	assert.Equal(t, "Standup", ent.GetName("99"))
}

func TestChangeLogDescription(t *testing.T) {
	ent := New(taskDef())
	require.NoError(t, ent.SetValue("name", "old name"))
	ent.ResetDirty()

	require.NoError(t, ent.SetValue("name", "new name"))
	require.NoError(t, ent.SetValue("done", true))
	require.NoError(t, ent.SetValueWithLabel("owner_id", "42", "Alice"))
	require.NoError(t, ent.SetValue("revision", 9))

	desc := ent.ChangeLogDescription()
	assert.Contains(t, desc, `Name was changed from "old name" to "new name"`)
	assert.Contains(t, desc, `Done was changed from "No" to "Yes"`)
	assert.Contains(t, desc, `Owner was changed from "" to "Alice"`)
	assert.NotContains(t, desc, "Revision")
}

func TestUpdateFollowers(t *testing.T) {
	ent := New(taskDef())
	require.NoError(t, ent.SetValueWithLabel("owner_id", "42", "Alice"))
	require.NoError(t, ent.SetValue("notes", "ping [user:99:Bob] and [customer:7:Acme] about this"))

	ent.UpdateFollowers()

	assert.ElementsMatch(t, []any{"42", "99"}, ent.GetValue("followers"))
	assert.Equal(t, "Alice", ent.GetValueLabels("followers")["42"])
	assert.Equal(t, "Bob", ent.GetValueLabels("followers")["99"])
}

func TestSyncFollowers(t *testing.T) {
	a := New(taskDef())
	b := New(taskDef())
	require.NoError(t, a.AddMultiValue("followers", "1", "One"))
	require.NoError(t, b.AddMultiValue("followers", "2", "Two"))

	a.SyncFollowers(b)

	assert.ElementsMatch(t, []any{"1", "2"}, a.GetValue("followers"))
	assert.ElementsMatch(t, []any{"1", "2"}, b.GetValue("followers"))
}

// TestCloneTo verifies a clone carries data fields but never identity
func TestCloneTo(t *testing.T) {
	src := New(taskDef())
	require.NoError(t, src.SetValue("name", "template"))
	require.NoError(t, src.SetValue("priority", 3))
	require.NoError(t, src.SetValue("entity_id", "0b96f3a0-9143-49a4-8b84-7ec2a7a2b8a1"))
	src.SetRevision(5)

	target := New(taskDef())
	require.NoError(t, src.CloneTo(target))

	assert.Equal(t, "template", target.GetValueString("name"))
	assert.Equal(t, int64(3), target.GetValue("priority"))
	assert.Empty(t, target.EntityID())
	assert.Zero(t, target.Revision())
	assert.False(t, target.IsSaved())
}

func TestSetHasComments(t *testing.T) {
	def := definition.NewDefinition("task",
		&definition.Field{Name: "name", Type: definition.FieldText},
		&definition.Field{Name: "num_comments", Type: definition.FieldInteger},
	)
	ent := New(def)

	ent.SetHasComments(true)
	ent.SetHasComments(true)
	assert.Equal(t, int64(2), ent.GetValue("num_comments"))

	ent.SetHasComments(false)
	assert.Equal(t, int64(1), ent.GetValue("num_comments"))

	// Never drops below zero
	ent.SetHasComments(false)
	ent.SetHasComments(false)
	assert.Equal(t, int64(0), ent.GetValue("num_comments"))

	// Schemas without the counter are untouched
	plain := New(taskDef())
	plain.SetHasComments(true)
	assert.Nil(t, plain.GetValue("num_comments"))
}

func TestSetFieldsDefault(t *testing.T) {
	def := definition.NewDefinition("ticket",
		&definition.Field{Name: "name", Type: definition.FieldText},
		&definition.Field{
			Name: "status", Type: definition.FieldText,
			Default: &definition.DefaultRule{Kind: definition.DefaultLiteral, On: definition.EventCreate, Value: "open"},
		},
		&definition.Field{
			Name: "creator_id", Type: definition.FieldObject, Subtype: "user",
			Default: &definition.DefaultRule{Kind: definition.DefaultCurrentUser, On: definition.EventCreate},
		},
	)
	ent := New(def)

	ent.SetFieldsDefault(definition.EventCreate, "42")
	assert.Equal(t, "open", ent.GetValueString("status"))
	assert.Equal(t, "42", ent.GetValueString("creator_id"))

	// Defaults never overwrite caller data
	require.NoError(t, ent.SetValue("status", "closed"))
	ent.SetFieldsDefault(definition.EventCreate, "42")
	assert.Equal(t, "closed", ent.GetValueString("status"))

	// Create-scoped rules skip update events
	fresh := New(def)
	fresh.SetFieldsDefault(definition.EventUpdate, "42")
	assert.Nil(t, fresh.GetValue("status"))
}
