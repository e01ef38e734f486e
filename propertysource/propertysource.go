// Package propertysource turns ConfigMap and Secret payloads into named, prioritised property
// sources and holds the live set of them.
package propertysource

import (
	"fmt"
	"sort"

	"github.com/GlintPay/gkcs/resource"
)

// Owner identifies the resource a property source was produced from
type Owner struct {
	Kind      resource.Kind `json:"kind"`
	Namespace string        `json:"namespace"`
	Name      string        `json:"name"`
}

func OwnerOf(r resource.Resource) Owner {
	return Owner{Kind: r.Kind, Namespace: r.Namespace, Name: r.Name}
}

func (o Owner) String() string {
	return fmt.Sprintf("%s %s", o.Kind, resource.Key{Namespace: o.Namespace, Name: o.Name})
}

type PropertySource struct {
	Name                  string         `json:"name"`
	Priority              int            `json:"priority"`
	Origin                resource.Kind  `json:"origin"`
	Owner                 Owner          `json:"owner"`
	SourceResourceVersion string         `json:"sourceResourceVersion,omitempty"`
	Properties            map[string]any `json:"source"`
}

// Keys returns the property keys in a stable, sorted order
func (ps PropertySource) Keys() []string {
	keys := make([]string, 0, len(ps.Properties))
	for k := range ps.Properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Precedes orders sources from highest to lowest precedence: priority first, then name
func Precedes(a, b PropertySource) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return a.Name < b.Name
}

func Sort(sources []PropertySource) {
	sort.SliceStable(sources, func(i, j int) bool {
		return Precedes(sources[i], sources[j])
	})
}
