package entity

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/recordstack/entitystore/pkg/definition"
)

// nameFields is the priority order GetName scans for a display label
var nameFields = []string{"name", "title", "subject", "full_name", "first_name", "comment", "body"}

// descriptionFields is the priority order GetDescription scans
var descriptionFields = []string{"description", "notes", "details", "body"}

// changeLogHiddenFields are too noisy for human-readable diffs
var changeLogHiddenFields = map[string]bool{
	"revision":        true,
	"commit_id":       true,
	"num_comments":    true,
	"num_attachments": true,
	"ts_entered":      true,
	"ts_updated":      true,
	"path":            true,
	"sort_order":      true,
}

// FieldChange records one field's transition since the last save
type FieldChange struct {
	OldValue any
	NewValue any
	OldLabel string
	NewLabel string
}

// NameResolver lets specific object types compute a contextual display
// name relative to the acting user
type NameResolver func(e *Entity, userID string) (string, bool)

// Entity is a schema-typed value container and change tracker. Shape
// comes entirely from the bound definition; every set dispatches on
// the declared field type.
type Entity struct {
	def         *definition.EntityDefinition
	values      map[string]any
	valueLabels map[string]map[string]string
	changelog   map[string]*FieldChange

	// Recurrence is the pattern behind a repeating series, if any
	Recurrence *RecurrencePattern
	// IsRecurrenceException marks an occurrence detached from its series
	IsRecurrenceException bool

	nameResolver NameResolver
}

// New constructs an empty entity bound to a definition
func New(def *definition.EntityDefinition) *Entity {
	return &Entity{
		def:         def,
		values:      make(map[string]any),
		valueLabels: make(map[string]map[string]string),
		changelog:   make(map[string]*FieldChange),
	}
}

// Definition returns the bound schema
func (e *Entity) Definition() *definition.EntityDefinition {
	return e.def
}

// ObjType returns the entity's object type
func (e *Entity) ObjType() string {
	return e.def.ObjType
}

// SetNameResolver installs an actor-aware display-name override
func (e *Entity) SetNameResolver(fn NameResolver) {
	e.nameResolver = fn
}

// GetValue returns the current value of a field, nil when unset
func (e *Entity) GetValue(name string) any {
	return e.values[name]
}

// GetValueString returns the field value rendered as a string
func (e *Entity) GetValueString(name string) string {
	return stringifyValue(e.values[name])
}

// GetValueLabels returns the cached display names for a reference
// field, keyed by id
func (e *Entity) GetValueLabels(name string) map[string]string {
	return e.valueLabels[name]
}

// GetValueLabel returns the cached display name for the current value
// of a scalar reference field
func (e *Entity) GetValueLabel(name string) string {
	labels := e.valueLabels[name]
	if labels == nil {
		return ""
	}
	return labels[stringifyValue(e.values[name])]
}

// SetValue sets a field, coercing the raw value to the field's
// declared type
func (e *Entity) SetValue(name string, value any) error {
	return e.setValue(name, value, "", false)
}

// SetValueWithLabel sets a reference field along with the cached
// display name of the referenced record
func (e *Entity) SetValueWithLabel(name string, value any, label string) error {
	return e.setValue(name, value, label, true)
}

func (e *Entity) setValue(name string, value any, label string, hasLabel bool) error {
	f := e.def.GetField(name)
	if f == nil {
		return fmt.Errorf("%w: object type %q has no field %q", ErrInvalidArgument, e.def.ObjType, name)
	}

	coerced, err := coerceValue(f, value)
	if err != nil {
		return err
	}

	old := e.values[name]
	if !valuesEqual(old, coerced) {
		e.recordChange(name, old, coerced, e.GetValueLabel(name), label)
	}
	e.values[name] = coerced

	if hasLabel {
		e.setLabel(name, coerced, label)
	}

	// A change to the unique-name source field recomputes uname right
	// away rather than waiting for save
	if name == e.def.UnameSourceField() && e.def.HasField("uname") {
		slug := Slugify(stringifyValue(coerced))
		if !valuesEqual(e.values["uname"], any(slug)) {
			e.recordChange("uname", e.values["uname"], slug, "", "")
			e.values["uname"] = slug
		}
	}

	return nil
}

// AddMultiValue appends a value to a multi-value field. Adding a value
// already present only refreshes its cached label.
func (e *Entity) AddMultiValue(name string, value any, label string) error {
	f := e.def.GetField(name)
	if f == nil {
		return fmt.Errorf("%w: object type %q has no field %q", ErrInvalidArgument, e.def.ObjType, name)
	}
	if !f.Type.IsMulti() {
		return fmt.Errorf("%w: field %q is not multi-value", ErrInvalidArgument, name)
	}
	if !isScalar(value) {
		return fmt.Errorf("%w: field %q element must be a scalar, got %T", ErrInvalidArgument, name, value)
	}

	id := stringifyValue(value)
	current, _ := e.values[name].([]any)

	for _, existing := range current {
		if stringifyValue(existing) == id {
			if label != "" {
				e.setLabel(name, id, label)
			}
			return nil
		}
	}

	updated := make([]any, len(current), len(current)+1)
	copy(updated, current)
	updated = append(updated, id)

	e.recordChange(name, e.values[name], updated, "", label)
	e.values[name] = updated
	if label != "" {
		e.setLabel(name, id, label)
	}
	return nil
}

// RemoveMultiValue removes the first matching value from a multi-value
// field, reporting whether anything was removed
func (e *Entity) RemoveMultiValue(name string, value any) (bool, error) {
	f := e.def.GetField(name)
	if f == nil {
		return false, fmt.Errorf("%w: object type %q has no field %q", ErrInvalidArgument, e.def.ObjType, name)
	}
	if !f.Type.IsMulti() {
		return false, fmt.Errorf("%w: field %q is not multi-value", ErrInvalidArgument, name)
	}

	id := stringifyValue(value)
	current, _ := e.values[name].([]any)

	for i, existing := range current {
		if stringifyValue(existing) != id {
			continue
		}
		updated := make([]any, 0, len(current)-1)
		updated = append(updated, current[:i]...)
		updated = append(updated, current[i+1:]...)

		e.recordChange(name, e.values[name], updated, e.labelFor(name, id), "")
		e.values[name] = updated
		if labels := e.valueLabels[name]; labels != nil {
			delete(labels, id)
		}
		return true, nil
	}
	return false, nil
}

// recordChange appends to the changelog, preserving the earliest old
// value when a field changes repeatedly before a save
func (e *Entity) recordChange(name string, old, new any, oldLabel, newLabel string) {
	if existing, ok := e.changelog[name]; ok {
		existing.NewValue = new
		if newLabel != "" {
			existing.NewLabel = newLabel
		}
		return
	}
	e.changelog[name] = &FieldChange{
		OldValue: old,
		NewValue: new,
		OldLabel: oldLabel,
		NewLabel: newLabel,
	}
}

func (e *Entity) setLabel(name string, value any, label string) {
	if label == "" {
		return
	}
	var id string
	switch v := value.(type) {
	case []any:
		if len(v) != 1 {
			return
		}
		id = stringifyValue(v[0])
	default:
		id = stringifyValue(v)
	}
	if id == "" {
		return
	}
	if e.valueLabels[name] == nil {
		e.valueLabels[name] = make(map[string]string)
	}
	e.valueLabels[name][id] = label
}

func (e *Entity) labelFor(name, id string) string {
	if labels := e.valueLabels[name]; labels != nil {
		return labels[id]
	}
	return ""
}

// FromArray bulk-populates the entity, iterating the schema's field
// list rather than the input map. A full load (onlyProvidedFields
// false) treats data as the complete document and clears fields it
// does not mention; a partial load touches only keys actually present.
func (e *Entity) FromArray(data map[string]any, onlyProvidedFields bool) error {
	for _, f := range e.def.Fields {
		raw, present := data[f.Name]
		if !present {
			if onlyProvidedFields {
				continue
			}
			e.clearField(f)
			continue
		}

		labels := labelMap(data[f.Name+"_fval"])

		if f.Type.IsMulti() {
			// clear before repopulating so repeated loads don't accumulate
			if cur, _ := e.values[f.Name].([]any); len(cur) > 0 {
				e.recordChange(f.Name, cur, []any{}, "", "")
			}
			e.values[f.Name] = []any{}
			delete(e.valueLabels, f.Name)

			elems, err := multiElements(f, raw)
			if err != nil {
				return err
			}
			for _, elem := range elems {
				id := stringifyValue(elem)
				if err := e.AddMultiValue(f.Name, id, labels[id]); err != nil {
					return err
				}
			}
			continue
		}

		label := ""
		if f.Type.IsObjectReference() || f.Type.IsGroupingReference() {
			label = labels[stringifyValue(raw)]
		}
		if label != "" {
			if err := e.SetValueWithLabel(f.Name, raw, label); err != nil {
				return err
			}
		} else if err := e.SetValue(f.Name, raw); err != nil {
			return err
		}
	}

	if rp, ok := data["recurrence_pattern"].(map[string]any); ok {
		e.Recurrence = RecurrencePatternFromMap(rp)
		if e.Recurrence != nil && e.def.RecurRules != nil {
			e.IsRecurrenceException, _ = data["recurrence_exception"].(bool)
		}
	}

	return nil
}

func (e *Entity) clearField(f *definition.Field) {
	old, ok := e.values[f.Name]
	if !ok || old == nil {
		return
	}
	if f.Type.IsMulti() {
		if cur, _ := old.([]any); len(cur) > 0 {
			e.recordChange(f.Name, cur, []any{}, "", "")
		}
		e.values[f.Name] = []any{}
	} else {
		e.recordChange(f.Name, old, nil, e.GetValueLabel(f.Name), "")
		e.values[f.Name] = nil
	}
	delete(e.valueLabels, f.Name)
}

func multiElements(f *definition.Field, raw any) ([]any, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case []any:
		return v, nil
	case []string:
		out := make([]any, 0, len(v))
		for _, s := range v {
			out = append(out, s)
		}
		return out, nil
	default:
		if !isScalar(raw) {
			return nil, fmt.Errorf("%w: field %q takes scalars or a sequence of scalars, got %T", ErrInvalidArgument, f.Name, raw)
		}
		return []any{raw}, nil
	}
}

func labelMap(raw any) map[string]string {
	switch v := raw.(type) {
	case map[string]string:
		return v
	case map[string]any:
		out := make(map[string]string, len(v))
		for k, val := range v {
			out[k] = stringifyValue(val)
		}
		return out
	}
	return map[string]string{}
}

// ToArray serializes every schema field, formatting date and timestamp
// values for presentation and emitting a parallel {field}_fval map for
// every reference field carrying cached labels
func (e *Entity) ToArray() map[string]any {
	out := make(map[string]any, len(e.def.Fields)+2)
	out["obj_type"] = e.def.ObjType

	for _, f := range e.def.Fields {
		v, ok := e.values[f.Name]
		if !ok || v == nil {
			continue
		}

		switch {
		case f.Type.IsMulti():
			seq, _ := v.([]any)
			cp := make([]any, len(seq))
			copy(cp, seq)
			out[f.Name] = cp
		case f.Type == definition.FieldDate:
			out[f.Name] = formatEpoch(v, "2006-01-02")
		case f.Type == definition.FieldTimestamp:
			out[f.Name] = formatEpoch(v, "")
		default:
			out[f.Name] = v
		}

		if labels := e.valueLabels[f.Name]; len(labels) > 0 {
			fval := make(map[string]string, len(labels))
			for id, label := range labels {
				fval[id] = label
			}
			out[f.Name+"_fval"] = fval
		}
	}

	if e.Recurrence != nil {
		out["recurrence_pattern"] = e.Recurrence.ToMap()
		out["recurrence_exception"] = e.isRecurrenceException()
	}

	return out
}

// isRecurrenceException is only meaningful once the occurrence is
// linked to a pattern through the schema's recurrence id field
func (e *Entity) isRecurrenceException() bool {
	if !e.IsRecurrenceException || e.def.RecurRules == nil {
		return false
	}
	return !definition.IsEmptyValue(e.values[e.def.RecurRules.FieldRecurID])
}

// Identity and system-field accessors

// ID returns the legacy numeric local id as a string, "" when unsaved
func (e *Entity) ID() string {
	return stringifyValue(e.values["id"])
}

// EntityID returns the global guid, "" when unassigned
func (e *Entity) EntityID() string {
	s, _ := e.values["entity_id"].(string)
	return s
}

// UName returns the unique name, "" when unset
func (e *Entity) UName() string {
	s, _ := e.values["uname"].(string)
	return s
}

// Revision returns the persisted revision counter
func (e *Entity) Revision() int64 {
	return toInt64(e.values["revision"])
}

// SetRevision stamps the revision counter
func (e *Entity) SetRevision(rev int64) {
	e.values["revision"] = rev
}

// CommitID returns the last sync commit stamped on this entity
func (e *Entity) CommitID() int64 {
	return toInt64(e.values["commit_id"])
}

// SetCommitID stamps the sync commit
func (e *Entity) SetCommitID(id int64) {
	e.values["commit_id"] = id
}

// IsSaved reports whether the entity has ever been persisted
func (e *Entity) IsSaved() bool {
	return e.EntityID() != "" || stringifyValue(e.values["id"]) != ""
}

// IsDeleted reports whether the entity is soft-deleted
func (e *Entity) IsDeleted() bool {
	b, _ := e.values["f_deleted"].(bool)
	return b
}

// IsArchived is an alias for IsDeleted in caller-facing vocabulary
func (e *Entity) IsArchived() bool {
	return e.IsDeleted()
}

// IsDirty reports whether any field changed since the last save
func (e *Entity) IsDirty() bool {
	return len(e.changelog) > 0
}

// ResetDirty clears the changelog, called after load and after a
// successful save
func (e *Entity) ResetDirty() {
	e.changelog = make(map[string]*FieldChange)
}

// FieldValueChanged reports whether a specific field is dirty
func (e *Entity) FieldValueChanged(name string) bool {
	_, ok := e.changelog[name]
	return ok
}

// PreviousValue returns the value a dirty field held before its first
// change, or the current value when the field is clean
func (e *Entity) PreviousValue(name string) any {
	if c, ok := e.changelog[name]; ok {
		return c.OldValue
	}
	return e.values[name]
}

// ChangeLog returns the current field transitions keyed by field name
func (e *Entity) ChangeLog() map[string]*FieldChange {
	return e.changelog
}

// OwnerID returns the owning user, falling back to the creator
func (e *Entity) OwnerID() string {
	if v := stringifyValue(e.values["owner_id"]); v != "" {
		return v
	}
	return stringifyValue(e.values["creator_id"])
}

// SetHasComments adjusts the comment counter kept on commentable
// object types. No-op when the schema has no num_comments field.
func (e *Entity) SetHasComments(added bool) {
	if !e.def.HasField("num_comments") {
		return
	}
	count := toInt64(e.values["num_comments"])
	if added {
		count++
	} else if count > 0 {
		count--
	}
	_ = e.SetValue("num_comments", count)
}

// GetName returns a human display name: the resolver override if one
// is installed, else the first populated common label field, else the
// entity's own id
func (e *Entity) GetName(userID string) string {
	if e.nameResolver != nil {
		if name, ok := e.nameResolver(e, userID); ok {
			return name
		}
	}
	for _, field := range nameFields {
		if !e.def.HasField(field) {
			continue
		}
		if v := stringifyValue(e.values[field]); v != "" {
			return v
		}
	}
	if guid := e.EntityID(); guid != "" {
		return guid
	}
	return e.ID()
}

// GetDescription returns the first populated long-form text field
func (e *Entity) GetDescription() string {
	for _, field := range descriptionFields {
		if !e.def.HasField(field) {
			continue
		}
		if v := stringifyValue(e.values[field]); v != "" {
			return v
		}
	}
	return ""
}

// ChangeLogDescription renders the pending changes as human-readable
// lines, hiding noisy system fields and substituting labels for
// reference values and Yes/No for booleans
func (e *Entity) ChangeLogDescription() string {
	var b strings.Builder
	for _, f := range e.def.Fields {
		change, ok := e.changelog[f.Name]
		if !ok || changeLogHiddenFields[f.Name] {
			continue
		}

		title := f.Title
		if title == "" {
			title = f.Name
		}

		oldText := displayValue(f, change.OldValue, change.OldLabel)
		newText := displayValue(f, change.NewValue, change.NewLabel)
		fmt.Fprintf(&b, "%s was changed from \"%s\" to \"%s\"\n", title, oldText, newText)
	}
	return b.String()
}

func displayValue(f *definition.Field, v any, label string) string {
	if label != "" {
		return label
	}
	if f.Type == definition.FieldBool {
		if b, _ := v.(bool); b {
			return "Yes"
		}
		return "No"
	}
	if seq, ok := v.([]any); ok {
		parts := make([]string, 0, len(seq))
		for _, elem := range seq {
			parts = append(parts, stringifyValue(elem))
		}
		return strings.Join(parts, ", ")
	}
	return stringifyValue(v)
}

// UpdateFollowers scans user-typed reference fields and user tags
// embedded in text fields, adding each referenced user to the
// followers set. Idempotent through AddMultiValue's dedup; runs before
// every save.
func (e *Entity) UpdateFollowers() {
	if !e.def.HasField("followers") {
		return
	}

	for _, f := range e.def.Fields {
		if f.Name == "followers" {
			continue
		}

		switch {
		case f.Type.IsObjectReference() && f.Subtype == "user":
			for _, id := range e.referenceIDs(f.Name) {
				_ = e.AddMultiValue("followers", id, e.labelFor(f.Name, id))
			}
		case f.Type == definition.FieldText:
			text, _ := e.values[f.Name].(string)
			if text == "" {
				continue
			}
			for _, ref := range TaggedObjRefs(text) {
				if ref.ObjType != "user" || !isValidEntityID(ref.ID) {
					continue
				}
				_ = e.AddMultiValue("followers", ref.ID, ref.Name)
			}
		}
	}
}

// referenceIDs returns the id(s) held by a reference field as strings
func (e *Entity) referenceIDs(name string) []string {
	switch v := e.values[name].(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, elem := range v {
			if id := stringifyValue(elem); id != "" {
				out = append(out, id)
			}
		}
		return out
	case nil:
		return nil
	default:
		if id := stringifyValue(v); id != "" {
			return []string{id}
		}
		return nil
	}
}

// isValidEntityID accepts a guid or a legacy numeric id
func isValidEntityID(id string) bool {
	if id == "" {
		return false
	}
	if uuid.Validate(id) == nil {
		return true
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// SyncFollowers merges the followers sets of two related entities in
// both directions. Neither side is persisted; the caller saves both.
func (e *Entity) SyncFollowers(other *Entity) {
	if !e.def.HasField("followers") || !other.def.HasField("followers") {
		return
	}
	for _, id := range e.referenceIDs("followers") {
		_ = other.AddMultiValue("followers", id, e.labelFor("followers", id))
	}
	for _, id := range other.referenceIDs("followers") {
		_ = e.AddMultiValue("followers", id, other.labelFor("followers", id))
	}
}

// cloneResetFields are identity-bearing values a clone must not carry
var cloneResetFields = []string{
	"id", "entity_id", "uname", "revision", "commit_id",
	"ts_entered", "ts_updated", "f_deleted",
}

// CloneTo copies every field onto target while resetting identity
// fields so the target can be saved as a brand-new entity
func (e *Entity) CloneTo(target *Entity) error {
	data := e.ToArray()
	for _, name := range cloneResetFields {
		delete(data, name)
		delete(data, name+"_fval")
	}
	delete(data, "recurrence_pattern")
	delete(data, "recurrence_exception")
	return target.FromArray(data, false)
}

// SetFieldsDefault applies field default rules for a lifecycle event.
// Rules only fill empty values.
func (e *Entity) SetFieldsDefault(event, userID string) {
	lookup := func(name string) any { return e.values[name] }
	for _, f := range e.def.Fields {
		if f.Default == nil {
			continue
		}
		if v, ok := f.Default.Apply(e.values[f.Name], event, lookup, userID); ok {
			_ = e.SetValue(f.Name, v)
		}
	}
}

func formatEpoch(v any, layout string) any {
	epoch := toInt64(v)
	if epoch == 0 {
		return nil
	}
	t := timeFromEpoch(epoch)
	if layout == "" {
		return t.Format("2006-01-02T15:04:05Z07:00")
	}
	return t.Format(layout)
}
