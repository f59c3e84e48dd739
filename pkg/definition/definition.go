package definition

// Aggregate declares a rollup from entities of this type onto a
// referenced entity, recomputed after every save. RefField is the
// object field pointing at the target entity, Field is the source
// value on this type, CalcField is the target field to update.
type Aggregate struct {
	Type      string `json:"type"` // sum, avg, count, min, max
	Field     string `json:"field"`
	RefField  string `json:"ref_field"`
	CalcField string `json:"calc_field"`
}

// RecurRules names the fields a recurring object type uses to link
// occurrences to their shared pattern
type RecurRules struct {
	FieldRecurID   string `json:"field_recur_id"`
	FieldDateStart string `json:"field_date_start,omitempty"`
	FieldDateEnd   string `json:"field_date_end,omitempty"`
}

// EntityDefinition is the runtime-loaded schema for one object type
type EntityDefinition struct {
	ObjType string   `json:"obj_type"`
	Title   string   `json:"title"`
	Fields  []*Field `json:"fields"`

	// UnameSettings is the unique-name template: the last field is
	// slugified into uname, earlier fields namespace the uniqueness
	// check
	UnameSettings []string `json:"uname_settings,omitempty"`

	// ParentField supports path-style unique-name resolution
	ParentField string `json:"parent_field,omitempty"`

	// IsPrivate scopes grouping lookups to the owning user
	IsPrivate bool `json:"is_private,omitempty"`

	StoreRevisions bool        `json:"store_revisions,omitempty"`
	RecurRules     *RecurRules `json:"recur_rules,omitempty"`
	Aggregates     []Aggregate `json:"aggregates,omitempty"`

	// Constraints are CEL expressions over an `entity` map variable;
	// each must evaluate to true for a save to pass validation
	Constraints []string `json:"constraints,omitempty"`

	// Revision of the schema itself, bumped whenever the definition
	// changes. Writes carrying an older revision are rejected as stale.
	Revision int `json:"revision"`
}

// GetField returns the descriptor for a field name, or nil
func (d *EntityDefinition) GetField(name string) *Field {
	for _, f := range d.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// HasField reports whether the definition declares a field
func (d *EntityDefinition) HasField(name string) bool {
	return d.GetField(name) != nil
}

// UnameSourceField returns the field the uname slug is derived from,
// or "" when no unique-name template is configured
func (d *EntityDefinition) UnameSourceField() string {
	if len(d.UnameSettings) == 0 {
		return ""
	}
	return d.UnameSettings[len(d.UnameSettings)-1]
}

// UnameNamespaceFields returns the template segments that scope the
// uniqueness check
func (d *EntityDefinition) UnameNamespaceFields() []string {
	if len(d.UnameSettings) < 2 {
		return nil
	}
	return d.UnameSettings[:len(d.UnameSettings)-1]
}

// systemFields are present on every object type regardless of what the
// loaded schema declares
var systemFields = []*Field{
	{Name: "id", Title: "ID", Type: FieldInteger, ReadOnly: true, System: true},
	{Name: "entity_id", Title: "Global ID", Type: FieldUUID, ReadOnly: true, System: true},
	{Name: "uname", Title: "Unique Name", Type: FieldText, ReadOnly: true, System: true},
	{Name: "revision", Title: "Revision", Type: FieldInteger, ReadOnly: true, System: true},
	{Name: "commit_id", Title: "Commit", Type: FieldInteger, ReadOnly: true, System: true},
	{Name: "f_deleted", Title: "Deleted", Type: FieldBool, ReadOnly: true, System: true},
	{Name: "ts_entered", Title: "Created", Type: FieldTimestamp, ReadOnly: true, System: true},
	{Name: "ts_updated", Title: "Updated", Type: FieldTimestamp, ReadOnly: true, System: true},
	{Name: "followers", Title: "Followers", Type: FieldObjectMulti, Subtype: "user", System: true},
}

// NewDefinition builds a definition with the standard system fields
// appended after the caller's fields. Caller fields win on name
// collision.
func NewDefinition(objType string, fields ...*Field) *EntityDefinition {
	d := &EntityDefinition{
		ObjType:  objType,
		Fields:   fields,
		Revision: 1,
	}
	for _, sf := range systemFields {
		if !d.HasField(sf.Name) {
			d.Fields = append(d.Fields, sf)
		}
	}
	return d
}
