package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
)

// Nesting deeper than this while stringifying is treated as a cycle.
const maxDumpDepth = 64

// SafeJSONLoads decodes input as a single JSON value. Strings and byte slices
// are accepted; anything else, empty input or malformed JSON yields
// defaultValue unchanged.
func SafeJSONLoads(input any, defaultValue any) any {
	var data []byte
	switch value := input.(type) {
	case string:
		data = []byte(value)
	case []byte:
		data = value
	case json.RawMessage:
		data = value
	default:
		return defaultValue
	}
	if len(data) == 0 {
		return defaultValue
	}

	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return defaultValue
	}
	return decoded
}

// SafeJSONDumps encodes value. Parts JSON cannot represent, such as channels,
// funcs or NaN, are written as their fmt string. defaultValue is returned
// when that is still not enough, for example on reference cycles or a
// failing MarshalJSON.
func SafeJSONDumps(value any, defaultValue string) (encoded string) {
	defer func() {
		if recover() != nil {
			encoded = defaultValue
		}
	}()

	data, err := json.Marshal(value)
	if err == nil {
		return string(data)
	}
	var unsupportedType *json.UnsupportedTypeError
	var unsupportedValue *json.UnsupportedValueError
	if !errors.As(err, &unsupportedType) && !errors.As(err, &unsupportedValue) {
		return defaultValue
	}

	sanitized, ok := stringifyUnsupported(reflect.ValueOf(value), 0)
	if !ok {
		return defaultValue
	}
	data, err = json.Marshal(sanitized)
	if err != nil {
		return defaultValue
	}
	return string(data)
}

func stringifyUnsupported(v reflect.Value, depth int) (any, bool) {
	if !v.IsValid() {
		return nil, true
	}
	if depth > maxDumpDepth {
		return nil, false
	}
	if data, err := json.Marshal(v.Interface()); err == nil {
		return json.RawMessage(data), true
	}

	switch v.Kind() {
	case reflect.Pointer, reflect.Interface:
		if v.IsNil() {
			return nil, true
		}
		return stringifyUnsupported(v.Elem(), depth+1)
	case reflect.Map:
		out := make(map[string]any, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			item, ok := stringifyUnsupported(iter.Value(), depth+1)
			if !ok {
				return nil, false
			}
			out[fmt.Sprint(iter.Key().Interface())] = item
		}
		return out, true
	case reflect.Slice, reflect.Array:
		out := make([]any, v.Len())
		for i := range out {
			item, ok := stringifyUnsupported(v.Index(i), depth+1)
			if !ok {
				return nil, false
			}
			out[i] = item
		}
		return out, true
	}
	return fmt.Sprint(v.Interface()), true
}
