package definition

// FieldType is the closed set of runtime field kinds. Every coercion
// and label-refresh decision in the engine dispatches on this tag.
type FieldType string

const (
	FieldText          FieldType = "text"
	FieldBool          FieldType = "bool"
	FieldNumber        FieldType = "number"
	FieldInteger       FieldType = "integer"
	FieldDate          FieldType = "date"
	FieldTimestamp     FieldType = "timestamp"
	FieldObject        FieldType = "object"
	FieldObjectMulti   FieldType = "object_multi"
	FieldGrouping      FieldType = "grouping"
	FieldGroupingMulti FieldType = "grouping_multi"
	FieldUUID          FieldType = "uuid"
	FieldAlias         FieldType = "alias"
)

// IsMulti reports whether values of this type are sequences
func (t FieldType) IsMulti() bool {
	return t == FieldObjectMulti || t == FieldGroupingMulti
}

// IsObjectReference reports whether values point at other entities
func (t FieldType) IsObjectReference() bool {
	return t == FieldObject || t == FieldObjectMulti
}

// IsGroupingReference reports whether values point at groups
func (t FieldType) IsGroupingReference() bool {
	return t == FieldGrouping || t == FieldGroupingMulti
}

// IsEpochTime reports whether values are stored as epoch seconds
func (t FieldType) IsEpochTime() bool {
	return t == FieldDate || t == FieldTimestamp
}

// IsEmptyValue reports whether a field value counts as unset for
// default application and required-field checks
func IsEmptyValue(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case []any:
		return len(val) == 0
	case []string:
		return len(val) == 0
	}
	return false
}
