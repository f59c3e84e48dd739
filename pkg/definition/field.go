package definition

import "time"

// Field describes one schema field of an object type. Immutable once
// the definition is loaded for a given revision.
type Field struct {
	Name     string       `json:"name"`
	Title    string       `json:"title"`
	Type     FieldType    `json:"type"`
	Subtype  string       `json:"subtype,omitempty"`
	ReadOnly bool         `json:"readonly,omitempty"`
	System   bool         `json:"system,omitempty"`
	Required bool         `json:"required,omitempty"`
	Default  *DefaultRule `json:"default,omitempty"`
}

// DefaultKind selects how a default value is produced
type DefaultKind string

const (
	// DefaultLiteral uses Value as-is
	DefaultLiteral DefaultKind = "literal"
	// DefaultNow produces the current time as epoch seconds
	DefaultNow DefaultKind = "now"
	// DefaultCurrentUser produces the acting user's id
	DefaultCurrentUser DefaultKind = "current_user"
	// DefaultCoalesce produces the first non-empty value among Fields
	DefaultCoalesce DefaultKind = "coalesce"
)

// Save lifecycle events a default rule can be filtered to
const (
	EventCreate = "create"
	EventUpdate = "update"
)

// DefaultRule describes a field default. Rules only ever fill empty
// values; they never overwrite data the caller set.
type DefaultRule struct {
	Kind DefaultKind `json:"kind"`
	// On restricts the rule to one lifecycle event; empty applies to both
	On     string   `json:"on,omitempty"`
	Value  any      `json:"value,omitempty"`
	Fields []string `json:"fields,omitempty"`
}

// Apply evaluates the rule against the current value for the given
// event. lookup resolves sibling field values for coalesce rules.
// Returns the default and true when the field should be set.
func (r *DefaultRule) Apply(current any, event string, lookup func(field string) any, userID string) (any, bool) {
	if r.On != "" && r.On != event {
		return nil, false
	}
	if !IsEmptyValue(current) {
		return nil, false
	}

	var v any
	switch r.Kind {
	case DefaultLiteral:
		v = r.Value
	case DefaultNow:
		v = time.Now().Unix()
	case DefaultCurrentUser:
		if userID == "" {
			return nil, false
		}
		v = userID
	case DefaultCoalesce:
		for _, name := range r.Fields {
			if fv := lookup(name); !IsEmptyValue(fv) {
				v = fv
				break
			}
		}
	default:
		return nil, false
	}

	if IsEmptyValue(v) {
		return nil, false
	}
	return v, true
}
