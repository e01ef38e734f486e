package k8s

import (
	"context"
	"fmt"
	"strings"

	"github.com/GlintPay/gkcs/resource"
	"github.com/rs/zerolog/log"
)

const (
	PrefixK8sSecret      = "k8s/secret:"
	PrefixK8sConfigMap   = "k8s/configmap:"
	PrefixK8sConfigMapCM = "k8s/cm:" // shorthand for configmap
)

// Lookup is the watched, locally cached view of one kind
type Lookup interface {
	GetByKey(namespace, name string) (resource.Resource, bool)
	Covers(namespace string) bool
}

// ValueGetter reads a single key straight from the API server
type ValueGetter interface {
	GetSecretValue(ctx context.Context, namespace, name, key string) (string, bool, error)
	GetConfigMapValue(ctx context.Context, namespace, name, key string) (string, bool, error)
}

// Resolver serves k8s placeholders from the local caches. Namespaces the caches do not watch
// are read through the fallback getter, when there is one.
type Resolver struct {
	secrets          Lookup
	configMaps       Lookup
	fallback         ValueGetter
	defaultNamespace string
}

// NewResolver builds a Resolver. Any of secrets, configMaps and fallback may be nil.
func NewResolver(secrets, configMaps Lookup, fallback ValueGetter, defaultNamespace string) *Resolver {
	return &Resolver{
		secrets:          secrets,
		configMaps:       configMaps,
		fallback:         fallback,
		defaultNamespace: defaultNamespace,
	}
}

// IsK8sPlaceholder checks if the placeholder starts with a k8s prefix
func IsK8sPlaceholder(placeholder string) bool {
	return strings.HasPrefix(placeholder, PrefixK8sSecret) ||
		strings.HasPrefix(placeholder, PrefixK8sConfigMap) ||
		strings.HasPrefix(placeholder, PrefixK8sConfigMapCM)
}

func (r *Resolver) CanResolve(placeholder string) bool {
	return IsK8sPlaceholder(placeholder)
}

// Resolve reads the value of a k8s placeholder.
// Placeholder formats:
//   - k8s/secret:namespace/name/key -> explicit namespace
//   - k8s/secret:name/key           -> uses default namespace
//   - k8s/configmap:namespace/name/key
//   - k8s/configmap:name/key
//
// Returns (value, found, error)
func (r *Resolver) Resolve(ctx context.Context, placeholder string) (string, bool, error) {
	var prefix string
	var kind resource.Kind

	switch {
	case strings.HasPrefix(placeholder, PrefixK8sSecret):
		prefix, kind = PrefixK8sSecret, resource.SecretKind
	case strings.HasPrefix(placeholder, PrefixK8sConfigMap):
		prefix, kind = PrefixK8sConfigMap, resource.ConfigMapKind
	case strings.HasPrefix(placeholder, PrefixK8sConfigMapCM):
		prefix, kind = PrefixK8sConfigMapCM, resource.ConfigMapKind
	default:
		return "", false, fmt.Errorf("unknown k8s placeholder prefix: %s", placeholder)
	}

	namespace, name, key, err := r.parsePath(strings.TrimPrefix(placeholder, prefix))
	if err != nil {
		return "", false, err
	}

	lookup := r.configMaps
	if kind == resource.SecretKind {
		lookup = r.secrets
	}

	if lookup != nil && lookup.Covers(namespace) {
		cached, ok := lookup.GetByKey(namespace, name)
		if !ok {
			return "", false, nil
		}
		data, _ := cached.StringData()
		value, ok := data[key]
		return value, ok, nil
	}

	if r.fallback == nil {
		return "", false, fmt.Errorf("%s %s/%s is outside the watched namespaces", kind, namespace, name)
	}

	log.Debug().Msgf("Fetching unwatched %s [%s/%s] with key [%s]...", kind, namespace, name, key)
	if kind == resource.SecretKind {
		return r.fallback.GetSecretValue(ctx, namespace, name, key)
	}
	return r.fallback.GetConfigMapValue(ctx, namespace, name, key)
}

// parsePath extracts namespace, name, and key from the path.
// Format: "namespace/name/key" (3 segments) or "name/key" (2 segments, uses default namespace)
func (r *Resolver) parsePath(path string) (namespace, name, key string, err error) {
	parts := strings.Split(path, "/")

	switch len(parts) {
	case 2:
		if r.defaultNamespace == "" {
			return "", "", "", fmt.Errorf("no default namespace configured and placeholder missing namespace: %s", path)
		}
		return r.defaultNamespace, parts[0], parts[1], nil
	case 3:
		return parts[0], parts[1], parts[2], nil
	default:
		return "", "", "", fmt.Errorf("invalid k8s placeholder path (expected 2 or 3 segments): %s", path)
	}
}
