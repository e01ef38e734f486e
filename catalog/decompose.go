package catalog

import (
	"strings"
)

// GroupPrefix maps a leading type-name segment to an API group, e.g. "Apps" -> "apps"
type GroupPrefix struct {
	Prefix string `json:"prefix"`
	Group  string `json:"group"`
}

// Decomposer splits declared type names like "AppsV1Deployment" or "V1ConfigMap" into group,
// version and kind using two passes over ordered tables: first a group prefix, then a version
// infix. Each match consumes the matched substring.
type Decomposer struct {
	prefixes []GroupPrefix
	infixes  []string
}

func NewDecomposer(prefixes []GroupPrefix, infixes []string) *Decomposer {
	return &Decomposer{prefixes: prefixes, infixes: infixes}
}

func DefaultDecomposer() *Decomposer {
	return NewDecomposer(
		[]GroupPrefix{
			{Prefix: "Admissionregistration", Group: "admissionregistration.k8s.io"},
			{Prefix: "Apiextensions", Group: "apiextensions.k8s.io"},
			{Prefix: "Apps", Group: "apps"},
			{Prefix: "Autoscaling", Group: "autoscaling"},
			{Prefix: "Batch", Group: "batch"},
			{Prefix: "Coordination", Group: "coordination.k8s.io"},
			{Prefix: "Core", Group: ""},
			{Prefix: "Discovery", Group: "discovery.k8s.io"},
			{Prefix: "Events", Group: "events.k8s.io"},
			{Prefix: "Networking", Group: "networking.k8s.io"},
			{Prefix: "Policy", Group: "policy"},
			{Prefix: "Rbac", Group: "rbac.authorization.k8s.io"},
			{Prefix: "Scheduling", Group: "scheduling.k8s.io"},
			{Prefix: "Storage", Group: "storage.k8s.io"},
		},
		[]string{"V1", "V1alpha1", "V1beta1", "V1beta2", "V2", "V2beta1", "V2beta2"},
	)
}

// Decompose returns the entry implied by typeName. ok is false when no version infix is found.
func (d *Decomposer) Decompose(typeName string) (Entry, bool) {
	group, rest := d.stripPrefix(typeName)

	version, kind, ok := d.stripInfix(rest)
	if !ok || kind == "" {
		return Entry{}, false
	}

	return Entry{
		Kind:       kind,
		Group:      group,
		Version:    strings.ToLower(version),
		Resource:   Pluralize(kind),
		Namespaced: true,
	}, true
}

// stripPrefix picks the longest matching prefix; equal lengths resolve in table order
func (d *Decomposer) stripPrefix(name string) (string, string) {
	best := -1
	for i, each := range d.prefixes {
		if each.Prefix == "" || !strings.HasPrefix(name, each.Prefix) {
			continue
		}
		if best < 0 || len(each.Prefix) > len(d.prefixes[best].Prefix) {
			best = i
		}
	}
	if best < 0 {
		return "", name
	}
	return d.prefixes[best].Group, name[len(d.prefixes[best].Prefix):]
}

// stripInfix picks the earliest matching infix, the longest one on ties
func (d *Decomposer) stripInfix(name string) (string, string, bool) {
	bestAt, bestLen := -1, 0
	for _, each := range d.infixes {
		if each == "" {
			continue
		}
		at := strings.Index(name, each)
		if at < 0 {
			continue
		}
		if bestAt < 0 || at < bestAt || (at == bestAt && len(each) > bestLen) {
			bestAt, bestLen = at, len(each)
		}
	}
	if bestAt < 0 {
		return "", name, false
	}
	return name[bestAt : bestAt+bestLen], name[:bestAt] + name[bestAt+bestLen:], true
}

// Pluralize guesses the resource name for a kind: lower-cased, with English plural rules
func Pluralize(kind string) string {
	lower := strings.ToLower(kind)
	switch {
	case lower == "":
		return ""
	case strings.HasSuffix(lower, "s"), strings.HasSuffix(lower, "x"),
		strings.HasSuffix(lower, "ch"), strings.HasSuffix(lower, "sh"):
		return lower + "es"
	case strings.HasSuffix(lower, "y"):
		// vowel + y just takes an s: gateway -> gateways
		if len(lower) >= 2 && isVowel(lower[len(lower)-2]) {
			return lower + "s"
		}
		return lower[:len(lower)-1] + "ies"
	default:
		return lower + "s"
	}
}

func isVowel(c byte) bool {
	return c == 'a' || c == 'e' || c == 'i' || c == 'o' || c == 'u'
}
