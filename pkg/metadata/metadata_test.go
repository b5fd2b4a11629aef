package metadata_test

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	"github.com/ammar0144/natid4go/pkg/metadata"
	"github.com/ammar0144/natid4go/pkg/naturalid"
)

type Account struct {
	ID       uint   `gorm:"primaryKey"`
	Username string `natid:"username"`
	System   string `natid:"system"`
	Email    string
}

type Person struct {
	gorm.Model
	Name     string  `natid:",mutable"`
	Nickname *string `gorm:"column:nick"`
}

type Device struct {
	Serial   string  `gorm:"primaryKey"`
	Vendor   *string `natid:"vendor"`
	Model    string  `natid:"model"`
	Location string
}

type Untagged struct {
	ID   uint
	Name string
}

func TestFromModelCompound(t *testing.T) {
	m, err := metadata.FromModel[Account]()
	require.NoError(t, err)

	assert.Equal(t, "Account", m.EntityName())
	assert.False(t, m.IsSimple())
	assert.False(t, m.Mutable())
	assert.True(t, m.Cacheable())
	assert.Equal(t, reflect.TypeOf(uint(0)), m.IDType())

	attrs := m.Attributes()
	require.Len(t, attrs, 2)
	assert.Equal(t, "system", attrs[0].Name)
	assert.Equal(t, "system", attrs[0].Column)
	assert.Equal(t, "username", attrs[1].Name)

	account := Account{ID: 7, System: "matrix", Username: "neo"}
	tuple, err := m.Extract(&account)
	require.NoError(t, err)
	assert.Equal(t, naturalid.Tuple{"matrix", "neo"}, tuple)

	id, err := m.ExtractID(account)
	require.NoError(t, err)
	assert.Equal(t, uint(7), id)
}

func TestFromModelEmbeddedPrimaryKey(t *testing.T) {
	m, err := metadata.FromModel[Person]()
	require.NoError(t, err)

	assert.True(t, m.IsSimple())
	assert.True(t, m.Mutable())
	attr, ok := m.Attribute("name")
	require.True(t, ok)
	assert.Equal(t, "name", attr.Column)

	person := Person{Name: "John Doe"}
	person.ID = 3
	id, err := m.ExtractID(&person)
	require.NoError(t, err)
	assert.Equal(t, uint(3), id)
}

func TestFromModelNullableAttribute(t *testing.T) {
	m, err := metadata.FromModel[Device](naturalid.Cacheable(false))
	require.NoError(t, err)

	assert.False(t, m.Cacheable())
	assert.Equal(t, reflect.TypeOf(""), m.IDType())

	vendor, ok := m.Attribute("vendor")
	require.True(t, ok)
	assert.True(t, vendor.Nullable)
	assert.Equal(t, reflect.TypeOf(""), vendor.Type)

	tuple, err := m.Extract(Device{Serial: "s-1", Model: "x1"})
	require.NoError(t, err)
	assert.Equal(t, naturalid.Tuple{"x1", nil}, tuple)
}

func TestFromModelRequiresTaggedFields(t *testing.T) {
	_, err := metadata.FromModel[Untagged]()
	assert.ErrorIs(t, err, naturalid.ErrInvalidMapping)

	assert.Panics(t, func() { metadata.MustFromModel[Untagged]() })
}

func TestFromModelWithNamer(t *testing.T) {
	m, err := metadata.FromModelWithNamer[Account](schema.NamingStrategy{NoLowerCase: true})
	require.NoError(t, err)

	attr, ok := m.Attribute("system")
	require.True(t, ok)
	assert.Equal(t, "System", attr.Column)
}
