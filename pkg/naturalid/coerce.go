package naturalid

import (
	"errors"
	"fmt"
	"reflect"
)

var errNullValue = errors.New("null value for non-nullable attribute")

// Coerce converts v to typ. Numeric values convert only when the conversion is
// lossless; string-kinded values convert between named string types. A nil typ
// returns v unchanged.
func Coerce(v any, typ reflect.Type, nullable bool) (any, error) {
	rv := reflect.ValueOf(v)
	for rv.IsValid() && rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			rv = reflect.Value{}
			break
		}
		rv = rv.Elem()
	}

	if !rv.IsValid() {
		if nullable {
			return nil, nil
		}
		return nil, errNullValue
	}

	if typ == nil || rv.Type() == typ {
		return rv.Interface(), nil
	}

	from := rv.Kind()
	to := typ.Kind()

	switch {
	case isNumeric(from) && isNumeric(to):
		converted := rv.Convert(typ)
		if converted.Convert(rv.Type()).Interface() != rv.Interface() {
			return nil, fmt.Errorf("value %v overflows %s", v, typ)
		}
		if isSigned(from) && isUnsigned(to) && rv.Int() < 0 {
			return nil, fmt.Errorf("negative value %v for %s", v, typ)
		}
		if isUnsigned(from) && isSigned(to) && converted.Int() < 0 {
			return nil, fmt.Errorf("value %v overflows %s", v, typ)
		}
		return converted.Interface(), nil

	case from == to && rv.Type().ConvertibleTo(typ):
		return rv.Convert(typ).Interface(), nil
	}

	return nil, fmt.Errorf("cannot use %T as %s", v, typ)
}

func isNumeric(k reflect.Kind) bool {
	return isSigned(k) || isUnsigned(k) || k == reflect.Float32 || k == reflect.Float64
}

func isSigned(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return true
	}
	return false
}

func isUnsigned(k reflect.Kind) bool {
	switch k {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return true
	}
	return false
}
