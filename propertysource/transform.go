package propertysource

import (
	"fmt"
	"path"
	"sort"

	"github.com/GlintPay/gkcs/filetypes"
	"github.com/GlintPay/gkcs/resource"
)

// VersionMarkerKey is a reserved data key carrying the payload's version. It never becomes a
// property and never counts when classifying a payload.
const VersionMarkerKey = "..resource-version"

const (
	DefaultSecretPriority    = 200
	DefaultConfigMapPriority = 100
	DefaultMountedPriority   = 50
)

// Transformer classifies ConfigMap/Secret payloads. A payload with exactly one key, whose
// extension a registered reader recognises, is a single file parsed into many properties.
// Anything else is literal: every key becomes one property.
type Transformer struct {
	Registry         *filetypes.Registry
	DefaultNamespace string
	Priorities       map[resource.Kind]int
}

func NewTransformer(registry *filetypes.Registry, defaultNamespace string) *Transformer {
	return &Transformer{
		Registry:         registry,
		DefaultNamespace: defaultNamespace,
		Priorities: map[resource.Kind]int{
			resource.SecretKind:    DefaultSecretPriority,
			resource.ConfigMapKind: DefaultConfigMapPriority,
		},
	}
}

// Transform produces the property sources for a ConfigMap or Secret
func (t *Transformer) Transform(r resource.Resource) ([]PropertySource, error) {
	data, ok := r.StringData()
	if !ok {
		return nil, fmt.Errorf("%s carries no key/value payload", r)
	}
	return t.TransformData(OwnerOf(r), r.ResourceVersion, data, t.Priorities[r.Kind])
}

// TransformData classifies a raw payload on behalf of owner
func (t *Transformer) TransformData(owner Owner, version string, data map[string]string, priority int) ([]PropertySource, error) {
	visible := make(map[string]string, len(data))
	for k, v := range data {
		if k == VersionMarkerKey {
			if version == "" {
				version = v
			}
			continue
		}
		visible[k] = v
	}

	if len(visible) == 1 {
		for key, value := range visible {
			if reader, ok := t.Registry.ForKey(key); ok {
				properties, err := reader.Read([]byte(value))
				if err != nil {
					return nil, fmt.Errorf("%s key [%s]: %w", owner, key, err)
				}
				return []PropertySource{{
					Name:                  t.sourceName(owner, key),
					Priority:              priority,
					Origin:                owner.Kind,
					Owner:                 owner,
					SourceResourceVersion: version,
					Properties:            properties,
				}}, nil
			}
		}
	}

	properties := make(map[string]any, len(visible))
	for k, v := range visible {
		properties[k] = v
	}

	return []PropertySource{{
		Name:                  t.sourceName(owner, owner.Name),
		Priority:              priority,
		Origin:                owner.Kind,
		Owner:                 owner,
		SourceResourceVersion: version,
		Properties:            properties,
	}}, nil
}

// sourceName is "<base> (<Kind>)", qualified by namespace outside the default namespace.
// Owners without a namespace are mounted volumes, whose files are qualified by directory.
func (t *Transformer) sourceName(owner Owner, base string) string {
	switch {
	case owner.Namespace == "":
		if base != owner.Name {
			base = path.Join(owner.Name, base)
		}
	case owner.Namespace != t.DefaultNamespace:
		base = owner.Namespace + "/" + base
	}
	return fmt.Sprintf("%s (%s)", base, owner.Kind)
}

// Names lists the source names in sources, sorted
func Names(sources []PropertySource) []string {
	out := make([]string, 0, len(sources))
	for _, ps := range sources {
		out = append(out, ps.Name)
	}
	sort.Strings(out)
	return out
}
