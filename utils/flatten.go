package utils

import (
	"sort"
)

// FlattenDict collapses nested maps into a single level map whose keys are
// the joined paths, e.g. {"a": {"b": 1}} becomes {"a.b": 1}. Only
// map[string]any values are descended into; slices and every other value are
// kept as leaves. An empty delimiter means DefaultDelimiter.
//
// The input must not contain reference cycles.
func FlattenDict(data map[string]any, delimiter string) map[string]any {
	if delimiter == "" {
		delimiter = DefaultDelimiter
	}
	flat := make(map[string]any, len(data))
	flattenInto(flat, data, "", delimiter)
	return flat
}

func flattenInto(flat map[string]any, data map[string]any, parentKey string, delimiter string) {
	keys := make([]string, 0, len(data))
	for key := range data {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		joined := key
		if parentKey != "" {
			joined = parentKey + delimiter + key
		}
		if nested, ok := data[key].(map[string]any); ok {
			flattenInto(flat, nested, joined, delimiter)
			continue
		}
		flat[joined] = data[key]
	}
}
