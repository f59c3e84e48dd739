package entity

import (
	"fmt"
	"reflect"
	"strconv"
	"time"

	"github.com/recordstack/entitystore/pkg/definition"
)

// timeLayouts are tried in order when a date or timestamp field is set
// from a string
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"1/2/2006",
}

// coerceValue normalizes a raw value to the canonical representation
// for the field's type. Scalars are never stored for multi fields and
// sequences are never stored for scalar fields.
func coerceValue(f *definition.Field, value any) (any, error) {
	if value == nil {
		return nil, nil
	}

	if f.Type.IsMulti() {
		return coerceMulti(f, value)
	}

	switch f.Type {
	case definition.FieldBool:
		return coerceBool(value)
	case definition.FieldInteger:
		return coerceInt(f, value)
	case definition.FieldNumber:
		return coerceFloat(f, value)
	case definition.FieldDate, definition.FieldTimestamp:
		return coerceEpoch(value), nil
	default:
		// text, uuid, alias, object, grouping all store scalar strings
		if !isScalar(value) {
			return nil, fmt.Errorf("%w: field %q takes a scalar, got %T", ErrInvalidArgument, f.Name, value)
		}
		return stringifyValue(value), nil
	}
}

func coerceMulti(f *definition.Field, value any) (any, error) {
	switch v := value.(type) {
	case []any:
		out := make([]any, 0, len(v))
		for _, elem := range v {
			if !isScalar(elem) {
				return nil, fmt.Errorf("%w: field %q element must be a scalar, got %T", ErrInvalidArgument, f.Name, elem)
			}
			out = append(out, stringifyValue(elem))
		}
		return out, nil
	case []string:
		out := make([]any, 0, len(v))
		for _, elem := range v {
			out = append(out, elem)
		}
		return out, nil
	default:
		if !isScalar(value) {
			return nil, fmt.Errorf("%w: field %q takes scalars or a sequence of scalars, got %T", ErrInvalidArgument, f.Name, value)
		}
		// bare scalar wraps into a one-element sequence
		return []any{stringifyValue(value)}, nil
	}
}

func coerceBool(value any) (any, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		switch v {
		case "t", "true", "1", "yes":
			return true, nil
		case "f", "false", "0", "no", "":
			return false, nil
		}
		return nil, fmt.Errorf("%w: cannot interpret %q as boolean", ErrInvalidArgument, v)
	case int, int64, float64:
		return toInt64(v) != 0, nil
	}
	return nil, fmt.Errorf("%w: cannot interpret %T as boolean", ErrInvalidArgument, value)
}

func coerceInt(f *definition.Field, value any) (any, error) {
	switch v := value.(type) {
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		return int64(v), nil
	case string:
		if v == "" {
			return nil, nil
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: field %q expects an integer, got %q", ErrInvalidArgument, f.Name, v)
		}
		return n, nil
	}
	return nil, fmt.Errorf("%w: field %q expects an integer, got %T", ErrInvalidArgument, f.Name, value)
}

func coerceFloat(f *definition.Field, value any) (any, error) {
	switch v := value.(type) {
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case float64:
		return v, nil
	case string:
		if v == "" {
			return nil, nil
		}
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: field %q expects a number, got %q", ErrInvalidArgument, f.Name, v)
		}
		return n, nil
	}
	return nil, fmt.Errorf("%w: field %q expects a number, got %T", ErrInvalidArgument, f.Name, value)
}

// coerceEpoch accepts an epoch number or a parseable time string and
// normalizes to epoch seconds. Unparseable input is treated as unset.
func coerceEpoch(value any) any {
	switch v := value.(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	case time.Time:
		return v.Unix()
	case string:
		if v == "" {
			return nil
		}
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, v); err == nil {
				return t.Unix()
			}
		}
		return nil
	}
	return nil
}

func isScalar(value any) bool {
	switch value.(type) {
	case string, bool, int, int32, int64, float32, float64:
		return true
	}
	return false
}

// stringifyValue renders a scalar as its canonical string form, used
// for reference ids and text fields
func stringifyValue(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case bool:
		if v {
			return "true"
		}
		return "false"
	case int:
		return strconv.Itoa(v)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case nil:
		return ""
	}
	return fmt.Sprintf("%v", value)
}

func toInt64(value any) int64 {
	switch v := value.(type) {
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	case bool:
		if v {
			return 1
		}
	}
	return 0
}

func timeFromEpoch(epoch int64) time.Time {
	return time.Unix(epoch, 0).UTC()
}

func valuesEqual(a, b any) bool {
	if a == nil && b == nil {
		return true
	}
	return reflect.DeepEqual(a, b)
}
