package main

import (
	"context"
	"testing"

	"github.com/GlintPay/gkcs/catalog"
	"github.com/GlintPay/gkcs/config"
	"github.com/GlintPay/gkcs/resource"
	"github.com/GlintPay/gkcs/selector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/client-go/kubernetes/fake"
)

type entries []catalog.Entry

func (e entries) Fetch(context.Context) ([]catalog.Entry, error) {
	return e, nil
}

var (
	coreConfigMaps   = catalog.Entry{Kind: "ConfigMap", Version: "v1", Resource: "configmaps", Namespaced: true}
	legacyConfigMaps = catalog.Entry{Kind: "ConfigMap", Group: "legacy.example.com", Version: "v1beta1", Resource: "configmaps", Namespaced: true}
)

func TestResolveKindFollowsConfiguredTables(t *testing.T) {
	tests := []struct {
		name     string
		catalog  config.CatalogConfig
		kind     resource.Kind
		want     catalog.Entry
		contains string
	}{
		{
			name:    "defaults",
			catalog: config.Defaults().Catalog,
			kind:    resource.ConfigMapKind,
			want:    coreConfigMaps,
		},
		{
			name: "prefix picks the group",
			catalog: config.CatalogConfig{
				Enabled:        true,
				TypeNames:      map[string]string{"ConfigMap": "LegacyV1beta1ConfigMap"},
				GroupPrefixes:  []config.GroupPrefix{{Prefix: "Legacy", Group: "legacy.example.com"}},
				VersionInfixes: []string{"V1beta1"},
			},
			kind: resource.ConfigMapKind,
			want: legacyConfigMaps,
		},
		{
			name: "infix table without the declared version",
			catalog: config.CatalogConfig{
				Enabled:        true,
				TypeNames:      map[string]string{"ConfigMap": "V1ConfigMap"},
				VersionInfixes: []string{"V2"},
			},
			kind:     resource.ConfigMapKind,
			contains: "cannot watch ConfigMap",
		},
		{
			name: "disabled catalogue decomposes",
			catalog: config.CatalogConfig{
				TypeNames:      map[string]string{"Secret": "CoreV1Secret"},
				GroupPrefixes:  []config.GroupPrefix{{Prefix: "Core", Group: ""}},
				VersionInfixes: []string{"V1"},
			},
			kind: resource.SecretKind,
			want: catalog.Entry{Kind: "Secret", Version: "v1", Resource: "secrets", Namespaced: true},
		},
		{
			name: "type name of another kind",
			catalog: config.CatalogConfig{
				Enabled:   true,
				TypeNames: map[string]string{"Secret": "V1ConfigMap"},
			},
			kind:     resource.SecretKind,
			contains: "type name V1ConfigMap resolves to ConfigMap",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Defaults()
			cfg.Catalog = tt.catalog
			cat := catalog.NewCache(entries{coreConfigMaps, legacyConfigMaps}, catalogOptions(cfg))

			got, err := resolveKind(context.Background(), cat, tt.kind, cfg.Catalog.TypeName(string(tt.kind)))
			if tt.contains != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.contains)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWatchValidatesSelector(t *testing.T) {
	w := watcher{
		client:           fake.NewSimpleClientset(),
		selectors:        selector.NewResolver(nil),
		catalog:          catalog.NewCache(entries{coreConfigMaps}, catalogOptions(config.Defaults())),
		types:            config.Defaults().Catalog,
		defaultNamespace: "default",
	}

	tests := []struct {
		name      string
		labels    map[string]string
		informers int
		wantErr   bool
	}{
		{"no labels", nil, 1, false},
		{"valid labels", map[string]string{"app": "gkcs"}, 1, false},
		{"value with spaces", map[string]string{"app": "not valid!"}, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			composite, informers, err := w.watch(context.Background(), resource.ConfigMapKind, nil, tt.labels, nil)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "invalid selector for ConfigMap")
				assert.Nil(t, composite)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, composite)
			assert.Len(t, informers, tt.informers)
		})
	}
}
