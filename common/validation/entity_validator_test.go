package validation

import (
	"context"
	"testing"

	"github.com/recordstack/entitystore/common/logger"
	"github.com/recordstack/entitystore/pkg/definition"
	"github.com/recordstack/entitystore/pkg/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newValidator(t *testing.T) *EntityValidator {
	t.Helper()
	v, err := NewEntityValidator(logger.New("error", "json"))
	require.NoError(t, err)
	return v
}

func ticketDef() *definition.EntityDefinition {
	def := definition.NewDefinition("ticket",
		&definition.Field{Name: "name", Title: "Name", Type: definition.FieldText, Required: true},
		&definition.Field{Name: "priority", Title: "Priority", Type: definition.FieldInteger},
		&definition.Field{Name: "external_ref", Title: "External Ref", Type: definition.FieldText, ReadOnly: true},
	)
	def.Revision = 1
	return def
}

func TestIsValid_RequiredFieldOnCreate(t *testing.T) {
	v := newValidator(t)
	ent := entity.New(ticketDef())

	err := v.IsValid(context.Background(), ent, definition.EventCreate)
	require.Error(t, err)

	verr, ok := err.(*entity.ValidationError)
	require.True(t, ok)
	assert.Contains(t, verr.Violations, `field "name" is required`)

	require.NoError(t, ent.SetValue("name", "broken printer"))
	assert.NoError(t, v.IsValid(context.Background(), ent, definition.EventCreate))
}

// TestIsValid_RequiredFieldOnUpdate verifies an update only flags a
// required field the caller actually touched
func TestIsValid_RequiredFieldOnUpdate(t *testing.T) {
	v := newValidator(t)
	ent := entity.New(ticketDef())

	// Untouched empty required field passes on update
	assert.NoError(t, v.IsValid(context.Background(), ent, definition.EventUpdate))

	// Clearing it is a violation
	require.NoError(t, ent.SetValue("name", "x"))
	ent.ResetDirty()
	require.NoError(t, ent.SetValue("name", ""))
	assert.Error(t, v.IsValid(context.Background(), ent, definition.EventUpdate))
}

func TestIsValid_ReadOnlyField(t *testing.T) {
	v := newValidator(t)
	ent := entity.New(ticketDef())
	require.NoError(t, ent.SetValue("name", "x"))
	require.NoError(t, ent.SetValue("external_ref", "JIRA-9"))

	err := v.IsValid(context.Background(), ent, definition.EventUpdate)
	require.Error(t, err)
	verr := err.(*entity.ValidationError)
	assert.Contains(t, verr.Violations, `field "external_ref" is read-only`)

	// System-stamped fields are exempt from the readonly guard
	ent2 := entity.New(ticketDef())
	require.NoError(t, ent2.SetValue("name", "x"))
	ent2.SetRevision(3)
	assert.NoError(t, v.IsValid(context.Background(), ent2, definition.EventUpdate))
}

func TestIsValid_CELConstraints(t *testing.T) {
	v := newValidator(t)
	def := ticketDef()
	def.Constraints = []string{
		`!has(entity.priority) || entity.priority <= 5`,
	}

	ent := entity.New(def)
	require.NoError(t, ent.SetValue("name", "x"))
	require.NoError(t, ent.SetValue("priority", 3))
	assert.NoError(t, v.IsValid(context.Background(), ent, definition.EventCreate))

	require.NoError(t, ent.SetValue("priority", 9))
	err := v.IsValid(context.Background(), ent, definition.EventCreate)
	require.Error(t, err)
	verr := err.(*entity.ValidationError)
	require.Len(t, verr.Violations, 1)
	assert.Contains(t, verr.Violations[0], "not satisfied")
}

func TestIsValid_AggregatesAllViolations(t *testing.T) {
	v := newValidator(t)
	def := ticketDef()
	def.Constraints = []string{`has(entity.name) && entity.name != "forbidden"`}

	ent := entity.New(def)
	require.NoError(t, ent.SetValue("name", "forbidden"))
	require.NoError(t, ent.SetValue("external_ref", "JIRA-9"))

	err := v.IsValid(context.Background(), ent, definition.EventUpdate)
	require.Error(t, err)
	verr := err.(*entity.ValidationError)
	assert.Len(t, verr.Violations, 2)
}

func TestIsValid_BadConstraintSyntax(t *testing.T) {
	v := newValidator(t)
	def := ticketDef()
	def.Constraints = []string{`entity.name ==`}

	ent := entity.New(def)
	require.NoError(t, ent.SetValue("name", "x"))

	err := v.IsValid(context.Background(), ent, definition.EventCreate)
	require.Error(t, err)
	// Compile failures surface as hard errors, not violations
	_, isValidation := err.(*entity.ValidationError)
	assert.False(t, isValidation)
}
