package k8s

import (
	"context"
	"errors"
	"testing"

	"github.com/GlintPay/gkcs/cache"
	"github.com/GlintPay/gkcs/internal/test"
	"github.com/GlintPay/gkcs/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/runtime"
)

func TestIsK8sPlaceholder(t *testing.T) {
	tests := []struct {
		placeholder string
		expected    bool
	}{
		{"k8s/secret:default/my-secret/key", true},
		{"k8s/secret:my-secret/key", true},
		{"k8s/configmap:default/my-config/key", true},
		{"k8s/configmap:my-config/key", true},
		{"k8s/cm:default/my-config/key", true},
		{"k8s/cm:my-config/key", true},
		{"some.property.name", false},
		{"k8s/unknown:test/key", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.placeholder, func(t *testing.T) {
			result := IsK8sPlaceholder(tt.placeholder)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestResolver_parsePath(t *testing.T) {
	tests := []struct {
		name             string
		path             string
		defaultNamespace string
		wantNamespace    string
		wantName         string
		wantKey          string
		wantErr          bool
	}{
		{
			name:             "three segments - explicit namespace",
			path:             "backend/hubspot-api/api-key",
			defaultNamespace: "default",
			wantNamespace:    "backend",
			wantName:         "hubspot-api",
			wantKey:          "api-key",
		},
		{
			name:             "two segments - uses default namespace",
			path:             "hubspot-api/api-key",
			defaultNamespace: "default",
			wantNamespace:    "default",
			wantName:         "hubspot-api",
			wantKey:          "api-key",
		},
		{
			name:    "two segments - no default namespace configured",
			path:    "hubspot-api/api-key",
			wantErr: true,
		},
		{
			name:             "one segment - invalid",
			path:             "just-one",
			defaultNamespace: "default",
			wantErr:          true,
		},
		{
			name:             "four segments - invalid",
			path:             "a/b/c/d",
			defaultNamespace: "default",
			wantErr:          true,
		},
		{
			name:             "empty path - invalid",
			path:             "",
			defaultNamespace: "default",
			wantErr:          true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver := NewResolver(nil, nil, nil, tt.defaultNamespace)

			ns, name, key, err := resolver.parsePath(tt.path)

			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.wantNamespace, ns)
				assert.Equal(t, tt.wantName, name)
				assert.Equal(t, tt.wantKey, key)
			}
		})
	}
}

// mockGetter stands in for live API reads of unwatched namespaces
type mockGetter struct {
	secrets    map[string]string // key: "namespace/name/key"
	configMaps map[string]string
	err        error
	calls      int
}

func (m *mockGetter) GetSecretValue(_ context.Context, namespace, name, key string) (string, bool, error) {
	m.calls++
	if m.err != nil {
		return "", false, m.err
	}
	val, ok := m.secrets[namespace+"/"+name+"/"+key]
	return val, ok, nil
}

func (m *mockGetter) GetConfigMapValue(_ context.Context, namespace, name, key string) (string, bool, error) {
	m.calls++
	if m.err != nil {
		return "", false, m.err
	}
	val, ok := m.configMaps[namespace+"/"+name+"/"+key]
	return val, ok, nil
}

func cached(t *testing.T, kind resource.Kind, namespaces []string, objs ...runtime.Object) *cache.IndexerComposite {
	t.Helper()
	ic := cache.NewIndexerComposite(kind)
	for _, ns := range namespaces {
		ic.Partition(ns)
	}
	for _, obj := range objs {
		r, err := resource.FromObject(obj)
		require.NoError(t, err)
		ic.Partition(r.Namespace).Upsert(r)
	}
	return ic
}

func TestResolver_Resolve(t *testing.T) {
	ctx := context.Background()

	secrets := cached(t, resource.SecretKind, []string{"backend", "default"},
		test.Secret("backend", "hubspot-api", "1", map[string]string{"api-key": "secret-value-123"}),
		test.Secret("default", "postgres-creds", "1", map[string]string{"password": "db-password"}),
	)
	configMaps := cached(t, resource.ConfigMapKind, []string{"backend", "default"},
		test.ConfigMap("backend", "logging-config", "1", map[string]string{"level": "DEBUG"}),
		test.ConfigMap("default", "feature-flags", "1", map[string]string{"enabled": "true"}),
	)
	getter := &mockGetter{
		secrets: map[string]string{"production/redis/auth-token": "redis-token"},
	}

	tests := []struct {
		name             string
		placeholder      string
		defaultNamespace string
		wantValue        string
		wantFound        bool
		wantErr          bool
	}{
		{
			name:             "secret with explicit namespace",
			placeholder:      "k8s/secret:backend/hubspot-api/api-key",
			defaultNamespace: "default",
			wantValue:        "secret-value-123",
			wantFound:        true,
		},
		{
			name:             "secret using default namespace",
			placeholder:      "k8s/secret:postgres-creds/password",
			defaultNamespace: "default",
			wantValue:        "db-password",
			wantFound:        true,
		},
		{
			name:             "configmap with explicit namespace",
			placeholder:      "k8s/configmap:backend/logging-config/level",
			defaultNamespace: "default",
			wantValue:        "DEBUG",
			wantFound:        true,
		},
		{
			name:             "configmap using default namespace",
			placeholder:      "k8s/configmap:feature-flags/enabled",
			defaultNamespace: "default",
			wantValue:        "true",
			wantFound:        true,
		},
		{
			name:             "configmap shorthand (k8s/cm) with explicit namespace",
			placeholder:      "k8s/cm:backend/logging-config/level",
			defaultNamespace: "default",
			wantValue:        "DEBUG",
			wantFound:        true,
		},
		{
			name:             "configmap shorthand (k8s/cm) using default namespace",
			placeholder:      "k8s/cm:feature-flags/enabled",
			defaultNamespace: "default",
			wantValue:        "true",
			wantFound:        true,
		},
		{
			name:             "secret not found in a watched namespace",
			placeholder:      "k8s/secret:backend/nonexistent/key",
			defaultNamespace: "default",
		},
		{
			name:             "key not found in a cached secret",
			placeholder:      "k8s/secret:backend/hubspot-api/other",
			defaultNamespace: "default",
		},
		{
			name:             "unwatched namespace is read live",
			placeholder:      "k8s/secret:production/redis/auth-token",
			defaultNamespace: "default",
			wantValue:        "redis-token",
			wantFound:        true,
		},
		{
			name:        "missing default namespace",
			placeholder: "k8s/secret:my-secret/key",
			wantErr:     true,
		},
		{
			name:             "unknown prefix",
			placeholder:      "k8s/unknown:a/b",
			defaultNamespace: "default",
			wantErr:          true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver := NewResolver(secrets, configMaps, getter, tt.defaultNamespace)

			value, found, err := resolver.Resolve(ctx, tt.placeholder)

			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.wantFound, found)
				assert.Equal(t, tt.wantValue, value)
			}
		})
	}
}

func TestResolver_WatchedNamespacesNeverReadLive(t *testing.T) {
	getter := &mockGetter{}
	resolver := NewResolver(cached(t, resource.SecretKind, []string{"default"}), nil, getter, "default")

	_, found, err := resolver.Resolve(context.Background(), "k8s/secret:missing/key")
	assert.NoError(t, err)
	assert.False(t, found)
	assert.Zero(t, getter.calls)
}

func TestResolver_WithoutFallback(t *testing.T) {
	resolver := NewResolver(nil, nil, nil, "default")

	_, _, err := resolver.Resolve(context.Background(), "k8s/cm:flags/enabled")
	assert.ErrorContains(t, err, "outside the watched namespaces")
}

func TestResolver_FallbackError(t *testing.T) {
	resolver := NewResolver(nil, nil, &mockGetter{err: errors.New("forbidden")}, "default")

	_, found, err := resolver.Resolve(context.Background(), "k8s/secret:db/password")
	assert.ErrorContains(t, err, "forbidden")
	assert.False(t, found)
}
