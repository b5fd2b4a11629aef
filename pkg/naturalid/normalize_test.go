package naturalid_test

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammar0144/natid4go/pkg/naturalid"
)

type Account struct {
	ID       int
	Username string
	System   string
}

type Person struct {
	ID   int64
	Name string
}

type accountSystem string

func accountMapping(t *testing.T) *naturalid.Mapping {
	t.Helper()
	m, err := naturalid.NewMapping("Account", []naturalid.Attribute{
		{Name: "username", Type: reflect.TypeOf(""), FieldIndex: []int{1}},
		{Name: "system", Type: reflect.TypeOf(""), FieldIndex: []int{2}},
	}, naturalid.WithIDField([]int{0}), naturalid.WithIDType(reflect.TypeOf(0)))
	require.NoError(t, err)
	return m
}

func personMapping(t *testing.T) *naturalid.Mapping {
	t.Helper()
	m, err := naturalid.NewMapping("Person", []naturalid.Attribute{
		{Name: "name", Type: reflect.TypeOf(""), FieldIndex: []int{1}},
	})
	require.NoError(t, err)
	return m
}

func TestNewMapping_OrdersAttributesByName(t *testing.T) {
	m := accountMapping(t)

	attrs := m.Attributes()
	require.Len(t, attrs, 2)
	assert.Equal(t, "system", attrs[0].Name)
	assert.Equal(t, "username", attrs[1].Name)
	assert.False(t, m.IsSimple())
	assert.Equal(t, 2, m.Arity())
	assert.True(t, m.Cacheable())
	assert.False(t, m.Mutable())
	assert.Equal(t, "Account(system, username)", m.String())
}

func TestNewMapping_Rejects(t *testing.T) {
	cases := []struct {
		name   string
		entity string
		attrs  []naturalid.Attribute
	}{
		{"no entity", "", []naturalid.Attribute{{Name: "a"}}},
		{"no attributes", "E", nil},
		{"unnamed attribute", "E", []naturalid.Attribute{{Name: ""}}},
		{"duplicate attribute", "E", []naturalid.Attribute{{Name: "a"}, {Name: "a"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := naturalid.NewMapping(tc.entity, tc.attrs)
			assert.ErrorIs(t, err, naturalid.ErrInvalidMapping)
		})
	}
}

func TestNewMapping_PointerAttributeIsNullable(t *testing.T) {
	var s *string
	m, err := naturalid.NewMapping("E", []naturalid.Attribute{{Name: "code", Type: reflect.TypeOf(s)}})
	require.NoError(t, err)

	attr, ok := m.Attribute("code")
	require.True(t, ok)
	assert.True(t, attr.Nullable)
	assert.Equal(t, reflect.String, attr.Type.Kind())

	tuple, err := naturalid.Normalize(m, []any{nil})
	require.NoError(t, err)
	assert.Equal(t, naturalid.Tuple{nil}, tuple)
}

func TestNormalize_SimpleScalar(t *testing.T) {
	m := personMapping(t)

	tuple, err := naturalid.Normalize(m, "John Doe")
	require.NoError(t, err)
	assert.Equal(t, naturalid.Tuple{"John Doe"}, tuple)

	name := "Jane"
	tuple, err = naturalid.Normalize(m, &name)
	require.NoError(t, err)
	assert.Equal(t, naturalid.Tuple{"Jane"}, tuple)
}

func TestNormalize_SimpleAcceptsWrappedShapes(t *testing.T) {
	m := personMapping(t)

	byMap, err := naturalid.Normalize(m, map[string]any{"name": "John Doe"})
	require.NoError(t, err)
	bySlice, err := naturalid.Normalize(m, []string{"John Doe"})
	require.NoError(t, err)

	assert.Equal(t, naturalid.Tuple{"John Doe"}, byMap)
	assert.Equal(t, byMap, bySlice)
}

func TestNormalize_CompoundShapesProduceSameTuple(t *testing.T) {
	m := accountMapping(t)
	want := naturalid.Tuple{"matrix", "neo"}

	inputs := map[string]any{
		"array":      [2]string{"matrix", "neo"},
		"any slice":  []any{"matrix", "neo"},
		"tuple":      naturalid.Tuple{"matrix", "neo"},
		"string map": map[string]string{"username": "neo", "system": "matrix"},
		"any map":    map[string]any{"system": "matrix", "username": "neo"},
	}
	for name, input := range inputs {
		t.Run(name, func(t *testing.T) {
			tuple, err := naturalid.Normalize(m, input)
			require.NoError(t, err)
			assert.Equal(t, want, tuple)
		})
	}
}

func TestNormalize_PositionalInputIsNotReordered(t *testing.T) {
	m := accountMapping(t)

	tuple, err := naturalid.Normalize(m, []string{"neo", "matrix"})
	require.NoError(t, err)
	assert.Equal(t, naturalid.Tuple{"neo", "matrix"}, tuple)
}

func TestNormalize_CompoundRejectsScalar(t *testing.T) {
	_, err := naturalid.Normalize(accountMapping(t), "neo")
	assert.ErrorIs(t, err, naturalid.ErrInvalidInput)
}

func TestNormalize_ArityMismatch(t *testing.T) {
	m := accountMapping(t)

	_, err := naturalid.Normalize(m, []string{"matrix"})
	assert.ErrorIs(t, err, naturalid.ErrInvalidInput)

	_, err = naturalid.Normalize(m, []string{"matrix", "neo", "extra"})
	assert.ErrorIs(t, err, naturalid.ErrInvalidInput)
}

func TestNormalize_MissingAttribute(t *testing.T) {
	_, err := naturalid.Normalize(accountMapping(t), map[string]any{"system": "matrix"})

	require.Error(t, err)
	assert.True(t, naturalid.IsMissingAttribute(err))
	assert.True(t, naturalid.IsInvalidInput(err))
	assert.Contains(t, err.Error(), `"username"`)
}

func TestNormalize_UnknownAttribute(t *testing.T) {
	_, err := naturalid.Normalize(accountMapping(t), map[string]any{
		"system": "matrix", "username": "neo", "realm": "zion",
	})
	require.ErrorIs(t, err, naturalid.ErrInvalidInput)
	assert.Contains(t, err.Error(), "realm")
}

func TestNormalize_NullInput(t *testing.T) {
	_, err := naturalid.Normalize(personMapping(t), nil)
	assert.ErrorIs(t, err, naturalid.ErrInvalidInput)

	_, err = naturalid.Normalize(accountMapping(t), []any{"matrix", nil})
	assert.ErrorIs(t, err, naturalid.ErrInvalidInput)
}

func TestNormalize_TypeCoercion(t *testing.T) {
	m, err := naturalid.NewMapping("Ticket", []naturalid.Attribute{
		{Name: "number", Type: reflect.TypeOf(int64(0))},
		{Name: "system", Type: reflect.TypeOf(accountSystem(""))},
	})
	require.NoError(t, err)

	tuple, err := naturalid.Normalize(m, []any{int32(42), "jira"})
	require.NoError(t, err)
	assert.Equal(t, naturalid.Tuple{int64(42), accountSystem("jira")}, tuple)

	_, err = naturalid.Normalize(m, []any{1.5, "jira"})
	assert.ErrorIs(t, err, naturalid.ErrInvalidInput)

	_, err = naturalid.Normalize(m, []any{"42", "jira"})
	assert.ErrorIs(t, err, naturalid.ErrInvalidInput)
}

func TestIsCompoundShape(t *testing.T) {
	assert.True(t, naturalid.IsCompoundShape([]any{"a"}))
	assert.True(t, naturalid.IsCompoundShape([1]string{"a"}))
	assert.True(t, naturalid.IsCompoundShape(map[string]any{}))
	assert.True(t, naturalid.IsCompoundShape(naturalid.Tuple{"a"}))
	assert.False(t, naturalid.IsCompoundShape("a"))
	assert.False(t, naturalid.IsCompoundShape(42))
}

func TestMapping_Extract(t *testing.T) {
	m := accountMapping(t)

	tuple, err := m.Extract(&Account{ID: 7, Username: "neo", System: "matrix"})
	require.NoError(t, err)
	assert.Equal(t, naturalid.Tuple{"matrix", "neo"}, tuple)

	id, err := m.ExtractID(Account{ID: 7})
	require.NoError(t, err)
	assert.Equal(t, 7, id)

	_, err = personMapping(t).ExtractID(&Person{})
	assert.ErrorIs(t, err, naturalid.ErrInvalidMapping)
}

func TestTuple_EncodeIsCanonical(t *testing.T) {
	a, err := naturalid.Tuple{"matrix", 42}.Encode()
	require.NoError(t, err)
	b, err := naturalid.Tuple{"matrix", int64(42)}.Encode()
	require.NoError(t, err)
	c, err := naturalid.Tuple{"matrix", 43}.Encode()
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.True(t, naturalid.Tuple{"a", 1}.Equal(naturalid.Tuple{"a", 1}))
	assert.False(t, naturalid.Tuple{"a"}.Equal(naturalid.Tuple{"a", 1}))
	assert.Equal(t, "[matrix, neo]", naturalid.Tuple{"matrix", "neo"}.String())
}
