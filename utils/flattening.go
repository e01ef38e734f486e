package utils

import (
	"fmt"
	"strings"
)

// DotJoiner joins a key path with dots, the form property keys are exposed in
func DotJoiner(ks []string) string {
	return strings.Join(ks, ".")
}

// Flatten take a hierarchy and flatten it using the tokenizer supplied
func Flatten(m map[string]any, tokenizer func([]string) string) map[string]any {
	var r = make(map[string]any)
	flattenRecursive(m, []string{}, func(ks []string, v any) {
		r[tokenizer(ks)] = v
	})
	return r
}

// FlattenProperties flattens a parsed document into property keys, expanding lists into
// indexed keys: {"a": [{"b": 1}]} becomes {"a[0].b": 1}. Empty lists are kept as-is.
func FlattenProperties(m map[string]any) map[string]any {
	flat := Flatten(m, DotJoiner)
	if !expandIndexedLists(flat) {
		return flat
	}
	// list elements may themselves have been maps
	return Flatten(flat, DotJoiner)
}

func flattenRecursive(m map[string]any, ks []string, cb func([]string, any)) {
	for k, v := range m {
		newks := append(append([]string(nil), ks...), k)
		if newm, ok := v.(map[string]any); ok {
			if len(newm) == 0 {
				cb(newks, v)
				continue
			}
			flattenRecursive(newm, newks, cb)
		} else {
			cb(newks, v)
		}
	}
}

func expandIndexedLists(data map[string]any) bool {
	changed := false
	for k, v := range data {
		list, ok := v.([]any)
		if !ok || len(list) == 0 {
			continue
		}
		for i, val := range list {
			if nested, ok := val.(map[string]any); ok {
				expandIndexedLists(nested)
			}
			data[fmt.Sprintf("%s[%d]", k, i)] = val
		}
		delete(data, k)
		changed = true
	}
	return changed
}
