// Package metadata derives natural-id descriptors from GORM models.
//
// Natural-id attributes are marked with a `natid` struct tag:
//
//	type Account struct {
//		ID       uint   `gorm:"primaryKey"`
//		System   string `natid:"system"`
//		Username string `natid:"username,mutable"`
//	}
//
// The tag value names the attribute (default: the column name). The "mutable" option
// makes the whole natural id updatable.
package metadata

import (
	"fmt"
	"strings"
	"sync"

	"gorm.io/gorm/schema"

	"github.com/ammar0144/natid4go/pkg/naturalid"
)

// TagName is the struct tag marking natural-id attributes
const TagName = "natid"

var schemaCache sync.Map

// FromModel builds the natural-id mapping of model type T.
// opts are applied after the tag-derived settings.
func FromModel[T any](opts ...naturalid.MappingOption) (*naturalid.Mapping, error) {
	return fromModel[T](&schemaCache, schema.NamingStrategy{}, opts)
}

// FromModelWithNamer is FromModel with a custom GORM naming strategy
func FromModelWithNamer[T any](namer schema.Namer, opts ...naturalid.MappingOption) (*naturalid.Mapping, error) {
	return fromModel[T](&sync.Map{}, namer, opts)
}

func fromModel[T any](cache *sync.Map, namer schema.Namer, opts []naturalid.MappingOption) (*naturalid.Mapping, error) {
	sch, err := schema.Parse(new(T), cache, namer)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", naturalid.ErrInvalidMapping, err)
	}
	modelType := sch.ModelType

	var attrs []naturalid.Attribute
	mutable := false
	for _, field := range sch.Fields {
		tag, ok := field.Tag.Lookup(TagName)
		if !ok || tag == "-" {
			continue
		}
		name, options := parseTag(tag)
		if name == "" {
			name = field.DBName
		}
		if options["mutable"] {
			mutable = true
		}

		sf, ok := modelType.FieldByName(field.Name)
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s is not addressable", naturalid.ErrInvalidMapping, sch.Name, field.Name)
		}
		attrs = append(attrs, naturalid.Attribute{
			Name:       name,
			Column:     field.DBName,
			Type:       field.FieldType,
			Nullable:   options["nullable"],
			FieldIndex: sf.Index,
		})
	}
	if len(attrs) == 0 {
		return nil, fmt.Errorf("%w: %s has no %q tagged fields", naturalid.ErrInvalidMapping, sch.Name, TagName)
	}

	base := []naturalid.MappingOption{naturalid.Mutable(mutable)}
	if pk := sch.PrioritizedPrimaryField; pk != nil {
		if sf, ok := modelType.FieldByName(pk.Name); ok {
			base = append(base, naturalid.WithIDType(pk.FieldType), naturalid.WithIDField(sf.Index))
		}
	}
	return naturalid.NewMapping(sch.Name, attrs, append(base, opts...)...)
}

// MustFromModel is FromModel that panics on error, for package-level mapping variables
func MustFromModel[T any](opts ...naturalid.MappingOption) *naturalid.Mapping {
	m, err := FromModel[T](opts...)
	if err != nil {
		panic(err)
	}
	return m
}

func parseTag(tag string) (string, map[string]bool) {
	parts := strings.Split(tag, ",")
	options := make(map[string]bool, len(parts)-1)
	for _, opt := range parts[1:] {
		options[strings.TrimSpace(opt)] = true
	}
	return strings.TrimSpace(parts[0]), options
}
