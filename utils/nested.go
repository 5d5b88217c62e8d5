package utils

import (
	"reflect"
	"strconv"
	"strings"
)

// DefaultDelimiter separates the segments of nested paths and flattened keys.
const DefaultDelimiter = "."

// GetNestedValue resolves a dot separated path such as "user.id" inside data.
// Missing keys, out of range indexes and values that resolve to nil all
// yield defaultValue.
func GetNestedValue(data any, path string, defaultValue any) any {
	return GetNestedValueWithDelimiter(data, path, DefaultDelimiter, defaultValue)
}

// GetNestedValueWithDelimiter is GetNestedValue with a custom segment delimiter.
func GetNestedValueWithDelimiter(data any, path string, delimiter string, defaultValue any) any {
	value, found := LookupNestedValue(data, path, delimiter)
	if !found || value == nil {
		return defaultValue
	}
	return value
}

// LookupNestedValue walks path through maps and sequences. The boolean is
// false when some segment could not be resolved; a present nil value is
// reported as (nil, true).
func LookupNestedValue(data any, path string, delimiter string) (any, bool) {
	if delimiter == "" {
		delimiter = DefaultDelimiter
	}

	current := data
	for _, segment := range strings.Split(path, delimiter) {
		next, ok := descend(current, segment)
		if !ok {
			return nil, false
		}
		current = next
	}
	return current, true
}

func descend(current any, segment string) (any, bool) {
	switch container := current.(type) {
	case map[string]any:
		value, ok := container[segment]
		return value, ok
	case []any:
		index, ok := parseIndex(segment, len(container))
		if !ok {
			return nil, false
		}
		return container[index], true
	case nil:
		return nil, false
	}

	value := reflect.ValueOf(current)
	switch value.Kind() {
	case reflect.Map:
		if value.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		entry := value.MapIndex(reflect.ValueOf(segment).Convert(value.Type().Key()))
		if !entry.IsValid() {
			return nil, false
		}
		return entry.Interface(), true
	case reflect.Slice, reflect.Array:
		index, ok := parseIndex(segment, value.Len())
		if !ok {
			return nil, false
		}
		return value.Index(index).Interface(), true
	}
	return nil, false
}

// Only plain decimal digits address a sequence; signs and spaces do not.
func parseIndex(segment string, length int) (int, bool) {
	if segment == "" {
		return 0, false
	}
	for _, r := range segment {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	index, err := strconv.Atoi(segment)
	if err != nil || index >= length {
		return 0, false
	}
	return index, true
}
