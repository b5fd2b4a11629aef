package naturalid

import (
	"reflect"
	"sort"
)

// Normalize converts raw input into the canonical tuple for m.
//
// Accepted shapes:
//   - a scalar, for simple mappings only
//   - an array or slice, bound positionally to Attributes() (never reordered)
//   - a map keyed by attribute name
//
// The returned tuple always follows the mapping's attribute order.
func Normalize(m *Mapping, raw any) (Tuple, error) {
	if raw == nil {
		return nil, newInvalidInput(m.entityName, raw, "natural-id value is null")
	}
	if t, ok := raw.(Tuple); ok {
		raw = []any(t)
	}

	rv := reflect.ValueOf(raw)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil, newInvalidInput(m.entityName, raw, "natural-id value is null")
		}
		rv = rv.Elem()
	}

	// a simple attribute whose own type is a slice or map ([]byte, json maps) is a scalar
	if m.IsSimple() {
		if typ := m.attributes[0].Type; typ != nil && rv.Type().AssignableTo(typ) {
			return m.normalizeScalar(raw, rv.Interface())
		}
	}

	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		return m.normalizePositional(raw, rv)
	case reflect.Map:
		return m.normalizeNamed(raw, rv)
	}

	if m.IsSimple() {
		return m.normalizeScalar(raw, rv.Interface())
	}
	return nil, newInvalidInput(m.entityName, raw, "compound natural id %s requires an array, slice or name-keyed map", m)
}

func (m *Mapping) normalizeScalar(raw, value any) (Tuple, error) {
	attr := m.attributes[0]
	coerced, err := attr.Coerce(value)
	if err != nil {
		return nil, newInvalidInput(m.entityName, raw, "attribute %q: %v", attr.Name, err)
	}
	return Tuple{coerced}, nil
}

func (m *Mapping) normalizePositional(raw any, rv reflect.Value) (Tuple, error) {
	if rv.Len() != len(m.attributes) {
		return nil, newInvalidInput(m.entityName, raw, "expected %d natural-id values, got %d", len(m.attributes), rv.Len())
	}

	tuple := make(Tuple, len(m.attributes))
	for i, attr := range m.attributes {
		coerced, err := attr.Coerce(rv.Index(i).Interface())
		if err != nil {
			return nil, newInvalidInput(m.entityName, raw, "attribute %q: %v", attr.Name, err)
		}
		tuple[i] = coerced
	}
	return tuple, nil
}

func (m *Mapping) normalizeNamed(raw any, rv reflect.Value) (Tuple, error) {
	keyType := rv.Type().Key()
	if keyType.Kind() != reflect.String {
		return nil, newInvalidInput(m.entityName, raw, "name-keyed natural-id input requires string keys, got %s", keyType)
	}

	tuple := make(Tuple, len(m.attributes))
	for i, attr := range m.attributes {
		value := rv.MapIndex(reflect.ValueOf(attr.Name).Convert(keyType))
		if !value.IsValid() {
			return nil, &MissingAttributeError{Entity: m.entityName, Attribute: attr.Name}
		}
		coerced, err := attr.Coerce(value.Interface())
		if err != nil {
			return nil, newInvalidInput(m.entityName, raw, "attribute %q: %v", attr.Name, err)
		}
		tuple[i] = coerced
	}

	if rv.Len() > len(m.attributes) {
		var unknown []string
		for _, key := range rv.MapKeys() {
			if _, ok := m.index[key.String()]; !ok {
				unknown = append(unknown, key.String())
			}
		}
		sort.Strings(unknown)
		return nil, newInvalidInput(m.entityName, raw, "unknown natural-id attributes %v", unknown)
	}
	return tuple, nil
}

// IsCompoundShape reports whether v is an array, slice or map, the shapes that can
// carry a compound natural id through a single-value entry point
func IsCompoundShape(v any) bool {
	if _, ok := v.(Tuple); ok {
		return true
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr && !rv.IsNil() {
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return true
	}
	return false
}
