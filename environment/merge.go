package environment

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/GlintPay/gkcs/propertysource"
	"github.com/emirpasic/gods/sets/hashset"
	"github.com/rs/zerolog/log"
)

// Injections are properties supplied by configuration rather than by a cluster resource.
// Keys prefixed with ^ sit below every property source; all others sit above them.
type Injections map[string]any

func preprocess(key string) bool {
	return strings.HasPrefix(key, "^")
}

// Represent an explicit override that has no effect and can be removed
type duplicate struct {
	key    string
	value  any
	source string
}

func (d duplicate) String() string {
	return fmt.Sprintf("%s: %v (%s);", d.key, d.value, d.source)
}

type merger struct {
	pointlessOverrides []duplicate
}

// merge flattens sources (highest precedence first) into one map, lowest precedence first so
// that higher sources win. Indexed list entries of a lower source are dropped when a higher
// source defines the same list.
func (m *merger) merge(sources []propertysource.PropertySource, injections Injections) map[string]any {
	merged := make(map[string]any)

	for k, v := range injections {
		if preprocess(k) {
			m.overrideValue(merged, k[1:], v, "preprocess")
		}
	}

	replacedLists := findCompletelyReplacedFlattenedLists(sources)

	for i := len(sources) - 1; i >= 0; i-- {
		ps := sources[i]
		for _, k := range ps.Keys() {
			if shouldSkipCompletelyReplacedFlattenedList(ps.Name, replacedLists[i], k) {
				continue
			}
			m.overrideValue(merged, k, ps.Properties[k], ps.Name)
		}
	}

	for k, v := range injections {
		if !preprocess(k) {
			m.overrideValue(merged, k, v, "postprocess")
		}
	}

	if len(m.pointlessOverrides) > 0 {
		log.Info().Msgf("Unnecessary overrides were found: %v", m.pointlessOverrides)
	}
	return merged
}

func (m *merger) overrideValue(merged map[string]any, k string, v any, source string) {
	// resolution rewrites merged values in place, never a source's own
	v = cloneValue(v)

	if merged[k] == nil {
		merged[k] = v
		return
	}

	switch reflect.ValueOf(v).Kind() {
	case reflect.Map:
		if existing, ok := merged[k].(map[string]any); ok {
			if incoming, ok := v.(map[string]any); ok {
				for ck, cv := range incoming {
					existing[ck] = cv
				}
				return
			}
		}
		merged[k] = v
		return
	case reflect.Slice:
		// lists are replaced, never merged
		merged[k] = v
		return
	}

	if merged[k] != v {
		merged[k] = v
	} else {
		m.pointlessOverrides = append(m.pointlessOverrides, duplicate{key: k, value: v, source: source})
	}
}

func shouldSkipCompletelyReplacedFlattenedList(psName string, lists map[string]bool, k string) bool {
	for listName := range lists {
		if strings.HasPrefix(k, listName+"[") {
			log.Debug().Msgf("Skipping overridden list entry [%s] in source [%s]", k, psName)
			return true
		}
	}
	return false
}

// findCompletelyReplacedFlattenedLists returns, per source, the lists it defines that a higher
// precedence source also defines
func findCompletelyReplacedFlattenedLists(sources []propertysource.PropertySource) []map[string]bool {
	listsToRemove := make([]map[string]bool, 0, len(sources))
	for _, ps := range sources {
		listsToRemove = append(listsToRemove, findFlattenedLists(ps.Properties))
	}

	listsSoFar := hashset.New()
	for i := range sources {
		for listName := range listsToRemove[i] {
			if !listsSoFar.Contains(listName) {
				listsSoFar.Add(listName)
				delete(listsToRemove[i], listName)
			}
		}
	}
	return listsToRemove
}

var indexedRegex = regexp.MustCompile(`^([^\[]+)\[\d+]`)

// findFlattenedLists names the lists flattened into source, so `a.b[1]` yields `a.b`. Nested
// lists yield their outermost name: `a[0].b[1]` yields `a`.
func findFlattenedLists(source map[string]any) map[string]bool {
	listNames := make(map[string]bool)
	for propertyName := range source {
		if match := indexedRegex.FindStringSubmatch(propertyName); match != nil {
			listNames[match[1]] = true
		}
	}
	return listNames
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneValue(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(typed))
		for k, each := range typed {
			out[k] = cloneValue(each)
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for i, each := range typed {
			out[i] = cloneValue(each)
		}
		return out
	case []string:
		out := make([]string, len(typed))
		copy(out, typed)
		return out
	default:
		return v
	}
}

// precedenceDisplay renders source names highest precedence first
func precedenceDisplay(sources []propertysource.PropertySource) string {
	names := make([]string, 0, len(sources))
	for _, ps := range sources {
		names = append(names, ps.Name)
	}
	return strings.Join(names, " > ")
}
