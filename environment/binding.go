package environment

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/shopspring/decimal"
	"github.com/wolfeidau/unflatten"
)

const (
	DecimalSuffix  = "_Decimal"
	DurationSuffix = "_Duration"
	StringSuffix   = "_String"
	CSVSuffix      = "CSV"
)

var leafIndexRegex = regexp.MustCompile(`^(.+)\[(\d+)]$`)

// Bind binds the resolved properties under prefix onto out, grouping hierarchical names so that
// `db.host` and `db.port` land under a common `db` parent. An empty prefix binds everything.
func (e *Environment) Bind(prefix string, out any) error {
	return BindHierarchical(under(e.Properties(), prefix), out)
}

func under(properties map[string]any, prefix string) map[string]any {
	if prefix == "" {
		return properties
	}
	prefix = strings.TrimSuffix(prefix, ".") + "."

	out := make(map[string]any)
	for k, v := range properties {
		if rest, ok := strings.CutPrefix(k, prefix); ok {
			out[rest] = v
		}
	}
	return out
}

// BindFlattened binds properties onto out without restructuring hierarchical names, so
// `service.host` must be matched by a `from:"service.host"` tag.
func BindFlattened(properties map[string]any, out any) error {
	return bindTo(copyMap(properties), out)
}

// BindHierarchical binds properties onto out after grouping hierarchical names under common
// parents and turning `name[i]` entries into lists. Nested structures may be needed in out.
func BindHierarchical(properties map[string]any, out any) error {
	collapsed := collapseIndexedLists(properties)
	return bindTo(unflatten.Unflatten(collapsed, func(k string) []string { return strings.Split(k, ".") }), out)
}

func bindTo(source map[string]any, out any) error {
	if err := remapDataValues(source); err != nil {
		return err
	}

	config := &mapstructure.DecoderConfig{Metadata: nil, ZeroFields: true, TagName: "from", Result: out, WeaklyTypedInput: true}
	decoder, err := mapstructure.NewDecoder(config)
	if err != nil {
		return err
	}
	return decoder.Decode(source)
}

// collapseIndexedLists turns `hosts[0]`, `hosts[1]` into a `hosts` list, ordered by index
func collapseIndexedLists(properties map[string]any) map[string]any {
	type indexed struct {
		idx   int
		value any
	}

	out := make(map[string]any, len(properties))
	lists := make(map[string][]indexed)
	for k, v := range properties {
		match := leafIndexRegex.FindStringSubmatch(k)
		if match == nil {
			out[k] = v
			continue
		}
		idx, err := strconv.Atoi(match[2])
		if err != nil {
			out[k] = v
			continue
		}
		lists[match[1]] = append(lists[match[1]], indexed{idx: idx, value: v})
	}

	for name, entries := range lists {
		sort.Slice(entries, func(i, j int) bool { return entries[i].idx < entries[j].idx })
		values := make([]any, 0, len(entries))
		for _, each := range entries {
			values = append(values, each.value)
		}
		out[name] = values
	}
	return out
}

func remapDataValues(source map[string]any) error {
	var overallErr error

	// Map data items recursively, without restructuring any lists or structures
	for k, propertyValue := range source {
		switch {
		case strings.HasSuffix(k, CSVSuffix) && len(k) > len(CSVSuffix):
			if s, ok := propertyValue.(string); ok {
				list := strings.Split(s, ",")
				for i := range list {
					list[i] = strings.TrimSpace(list[i])
				}
				source[k[:len(k)-len(CSVSuffix)]] = list
			}
		case strings.Index(k, DurationSuffix) > 0:
			if err := remapSuffixed(source, k, DurationSuffix, func(s string) (any, error) { return time.ParseDuration(s) }); err != nil {
				return err
			}
		case strings.Index(k, DecimalSuffix) > 0:
			if err := remapSuffixed(source, k, DecimalSuffix, func(s string) (any, error) { return decimal.NewFromString(s) }); err != nil {
				return err
			}
		case strings.Index(k, StringSuffix) > 0:
			// values that look like numbers but are meant as strings
			switch typed := propertyValue.(type) {
			case string:
				source[strings.Replace(k, StringSuffix, "", 1)] = typed
				delete(source, k)
			default:
				return fmt.Errorf("unexpected value type %+v - should be string", typed)
			}
		}

		if nested, ok := propertyValue.(map[string]any); ok {
			if e := remapDataValues(nested); e != nil {
				overallErr = e
			}
		}
	}

	return overallErr
}

// remapSuffixed converts a string (or a map of strings) under a suffixed key and stores it under
// the key with the suffix removed. Unparseable values are left where they are.
func remapSuffixed(source map[string]any, k string, suffix string, parse func(string) (any, error)) error {
	target := strings.Replace(k, suffix, "", 1)

	switch typed := source[k].(type) {
	case string:
		if v, err := parse(typed); err == nil {
			source[target] = v
			delete(source, k)
		}
	case map[string]any:
		for pkey, pval := range typed {
			if s, ok := pval.(string); ok {
				if v, err := parse(s); err == nil {
					typed[pkey] = v
				}
			}
		}
		source[target] = typed
		delete(source, k)
	default:
		return fmt.Errorf("unexpected value type %+v - should be string or map[string]any", typed)
	}
	return nil
}
