// Package naturalid describes the natural identifiers of an entity type and turns
// raw caller input into canonical, attribute-ordered value tuples.
package naturalid

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// Attribute describes one attribute taking part in a natural id
type Attribute struct {
	// Name is the attribute name used by name-keyed input (e.g. "username")
	Name string

	// Column is the backing column name; empty means the store derives it
	Column string

	// Type is the declared value type; nil disables coercion.
	// Pointer types are unwrapped and mark the attribute nullable.
	Type reflect.Type

	// Nullable allows nil values in normalized tuples
	Nullable bool

	// FieldIndex locates the attribute on the entity struct (reflect.Value.FieldByIndex).
	// Nil disables extraction from entity instances.
	FieldIndex []int
}

// Coerce converts a raw value to the attribute's declared type
func (a Attribute) Coerce(v any) (any, error) {
	return Coerce(v, a.Type, a.Nullable)
}

// Mapping is the immutable natural-id descriptor of one entity type.
// Attributes are ordered by name; that order drives positional input and tuple layout.
type Mapping struct {
	entityName string
	idType     reflect.Type
	idField    []int
	attributes []Attribute
	index      map[string]int
	mutable    bool
	cacheable  bool
}

// MappingOption configures optional descriptor properties
type MappingOption func(*Mapping)

// WithIDType declares the primary key type, used to decode cached identifiers
func WithIDType(t reflect.Type) MappingOption {
	return func(m *Mapping) {
		m.idType = t
	}
}

// WithIDField locates the primary key on the entity struct
func WithIDField(index []int) MappingOption {
	return func(m *Mapping) {
		m.idField = append([]int(nil), index...)
	}
}

// Mutable marks the natural id as updatable. Natural ids are immutable by default.
func Mutable(mutable bool) MappingOption {
	return func(m *Mapping) {
		m.mutable = mutable
	}
}

// Cacheable controls whether resolutions go through the resolution cache (default true)
func Cacheable(cacheable bool) MappingOption {
	return func(m *Mapping) {
		m.cacheable = cacheable
	}
}

// NewMapping builds a descriptor for entityName from the given attributes
func NewMapping(entityName string, attrs []Attribute, opts ...MappingOption) (*Mapping, error) {
	if entityName == "" {
		return nil, fmt.Errorf("%w: entity name is required", ErrInvalidMapping)
	}
	if len(attrs) == 0 {
		return nil, fmt.Errorf("%w: %s declares no natural-id attributes", ErrInvalidMapping, entityName)
	}

	sorted := make([]Attribute, len(attrs))
	for i, attr := range attrs {
		if attr.Name == "" {
			return nil, fmt.Errorf("%w: %s has an unnamed natural-id attribute", ErrInvalidMapping, entityName)
		}
		if attr.Type != nil && attr.Type.Kind() == reflect.Ptr {
			attr.Type = attr.Type.Elem()
			attr.Nullable = true
		}
		attr.FieldIndex = append([]int(nil), attr.FieldIndex...)
		sorted[i] = attr
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	index := make(map[string]int, len(sorted))
	for i, attr := range sorted {
		if _, dup := index[attr.Name]; dup {
			return nil, fmt.Errorf("%w: %s declares attribute %q twice", ErrInvalidMapping, entityName, attr.Name)
		}
		index[attr.Name] = i
	}

	m := &Mapping{
		entityName: entityName,
		attributes: sorted,
		index:      index,
		cacheable:  true,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m, nil
}

// EntityName returns the entity type name the mapping belongs to
func (m *Mapping) EntityName() string {
	return m.entityName
}

// IDType returns the declared primary key type, or nil when unknown
func (m *Mapping) IDType() reflect.Type {
	return m.idType
}

// Attributes returns a copy of the ordered attribute list
func (m *Mapping) Attributes() []Attribute {
	out := make([]Attribute, len(m.attributes))
	copy(out, m.attributes)
	return out
}

// Attribute looks up an attribute by name
func (m *Mapping) Attribute(name string) (Attribute, bool) {
	i, ok := m.index[name]
	if !ok {
		return Attribute{}, false
	}
	return m.attributes[i], true
}

// IsSimple reports whether the natural id consists of a single attribute
func (m *Mapping) IsSimple() bool {
	return len(m.attributes) == 1
}

// Arity returns the number of natural-id attributes
func (m *Mapping) Arity() int {
	return len(m.attributes)
}

// Mutable reports whether natural-id values may change after insert
func (m *Mapping) Mutable() bool {
	return m.mutable
}

// Cacheable reports whether resolutions may use the resolution cache
func (m *Mapping) Cacheable() bool {
	return m.cacheable
}

// Extract reads the natural-id values of an entity instance
func (m *Mapping) Extract(entity any) (Tuple, error) {
	rv, err := m.structValue(entity)
	if err != nil {
		return nil, err
	}

	tuple := make(Tuple, len(m.attributes))
	for i, attr := range m.attributes {
		if attr.FieldIndex == nil {
			return nil, fmt.Errorf("%w: attribute %q of %s has no field binding", ErrInvalidMapping, attr.Name, m.entityName)
		}
		value, err := attr.Coerce(fieldValue(rv, attr.FieldIndex))
		if err != nil {
			return nil, fmt.Errorf("extract %s.%s: %w", m.entityName, attr.Name, err)
		}
		tuple[i] = value
	}
	return tuple, nil
}

// ExtractID reads the primary key of an entity instance
func (m *Mapping) ExtractID(entity any) (any, error) {
	if m.idField == nil {
		return nil, fmt.Errorf("%w: %s has no identifier field binding", ErrInvalidMapping, m.entityName)
	}
	rv, err := m.structValue(entity)
	if err != nil {
		return nil, err
	}
	return fieldValue(rv, m.idField), nil
}

func (m *Mapping) structValue(entity any) (reflect.Value, error) {
	rv := reflect.ValueOf(entity)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return reflect.Value{}, fmt.Errorf("%s: nil entity", m.entityName)
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return reflect.Value{}, fmt.Errorf("%s: expected struct entity, got %s", m.entityName, rv.Kind())
	}
	return rv, nil
}

func fieldValue(rv reflect.Value, index []int) any {
	fv := rv.FieldByIndex(index)
	if fv.Kind() == reflect.Ptr && fv.IsNil() {
		return nil
	}
	return fv.Interface()
}

// String renders the mapping as Entity(attr1, attr2)
func (m *Mapping) String() string {
	names := make([]string, len(m.attributes))
	for i, attr := range m.attributes {
		names[i] = attr.Name
	}
	return fmt.Sprintf("%s(%s)", m.entityName, strings.Join(names, ", "))
}
