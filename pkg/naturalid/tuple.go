package naturalid

import (
	"bytes"
	"fmt"
	"reflect"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// Tuple is a normalized natural-id value, ordered like Mapping.Attributes
type Tuple []any

// Equal compares two tuples element by element
func (t Tuple) Equal(other Tuple) bool {
	if len(t) != len(other) {
		return false
	}
	for i := range t {
		if !reflect.DeepEqual(t[i], other[i]) {
			return false
		}
	}
	return true
}

// Encode returns the canonical binary form of the tuple, usable as a cache key.
// Integers are encoded by value so int and int64 attributes of equal value match.
func (t Tuple) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.UseCompactInts(true)
	enc.SetSortMapKeys(true)
	if err := enc.Encode([]any(t)); err != nil {
		return nil, fmt.Errorf("encode natural-id tuple: %w", err)
	}
	return buf.Bytes(), nil
}

func (t Tuple) String() string {
	parts := make([]string, len(t))
	for i, v := range t {
		parts[i] = fmt.Sprintf("%v", v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
