package propertysource

import (
	"bytes"
	"sync"
	"testing"

	"github.com/GlintPay/gkcs/filetypes"
	"github.com/GlintPay/gkcs/internal/test"
	"github.com/GlintPay/gkcs/resource"
	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/runtime"
)

func asResource(t *testing.T, obj runtime.Object) resource.Resource {
	t.Helper()
	r, err := resource.FromObject(obj)
	require.NoError(t, err)
	return r
}

func newTransformer() *Transformer {
	return NewTransformer(filetypes.DefaultRegistry(nil), "default")
}

func TestTransformClassification(t *testing.T) {
	tests := []struct {
		name       string
		obj        runtime.Object
		wantName   string
		wantPrio   int
		wantProps  map[string]any
		wantOrigin resource.Kind
	}{
		{
			name:       "single yaml file",
			obj:        test.ConfigMap("default", "name", "7", map[string]string{"a.yml": "x: 1"}),
			wantName:   "a.yml (ConfigMap)",
			wantPrio:   DefaultConfigMapPriority,
			wantProps:  map[string]any{"x": int64(1)},
			wantOrigin: resource.ConfigMapKind,
		},
		{
			name:       "literal keys",
			obj:        test.ConfigMap("default", "name", "7", map[string]string{"a": "1", "b": "2"}),
			wantName:   "name (ConfigMap)",
			wantPrio:   DefaultConfigMapPriority,
			wantProps:  map[string]any{"a": "1", "b": "2"},
			wantOrigin: resource.ConfigMapKind,
		},
		{
			name:       "one key without extension",
			obj:        test.ConfigMap("default", "name", "7", map[string]string{"a": "1"}),
			wantName:   "name (ConfigMap)",
			wantPrio:   DefaultConfigMapPriority,
			wantProps:  map[string]any{"a": "1"},
			wantOrigin: resource.ConfigMapKind,
		},
		{
			name:       "unrecognised extension",
			obj:        test.ConfigMap("default", "name", "7", map[string]string{"notes.txt": "hello"}),
			wantName:   "name (ConfigMap)",
			wantPrio:   DefaultConfigMapPriority,
			wantProps:  map[string]any{"notes.txt": "hello"},
			wantOrigin: resource.ConfigMapKind,
		},
		{
			name:       "several files stay literal",
			obj:        test.ConfigMap("default", "name", "7", map[string]string{"a.yml": "x: 1", "b.yml": "y: 2"}),
			wantName:   "name (ConfigMap)",
			wantPrio:   DefaultConfigMapPriority,
			wantProps:  map[string]any{"a.yml": "x: 1", "b.yml": "y: 2"},
			wantOrigin: resource.ConfigMapKind,
		},
		{
			name:       "version marker is invisible",
			obj:        test.ConfigMap("default", "name", "7", map[string]string{"a.yml": "x: 1", VersionMarkerKey: "7"}),
			wantName:   "a.yml (ConfigMap)",
			wantPrio:   DefaultConfigMapPriority,
			wantProps:  map[string]any{"x": int64(1)},
			wantOrigin: resource.ConfigMapKind,
		},
		{
			name:       "empty payload",
			obj:        test.ConfigMap("default", "name", "7", nil),
			wantName:   "name (ConfigMap)",
			wantPrio:   DefaultConfigMapPriority,
			wantProps:  map[string]any{},
			wantOrigin: resource.ConfigMapKind,
		},
		{
			name:       "secret in another namespace",
			obj:        test.Secret("payments", "db", "7", map[string]string{"password": "s3cret", "user": "app"}),
			wantName:   "payments/db (Secret)",
			wantPrio:   DefaultSecretPriority,
			wantProps:  map[string]any{"password": "s3cret", "user": "app"},
			wantOrigin: resource.SecretKind,
		},
		{
			name:       "secret properties file",
			obj:        test.Secret("payments", "db", "7", map[string]string{"db.properties": "db.password=s3cret"}),
			wantName:   "payments/db.properties (Secret)",
			wantPrio:   DefaultSecretPriority,
			wantProps:  map[string]any{"db.password": "s3cret"},
			wantOrigin: resource.SecretKind,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sources, err := newTransformer().Transform(asResource(t, tt.obj))
			require.NoError(t, err)
			require.Len(t, sources, 1)

			ps := sources[0]
			assert.Equal(t, tt.wantName, ps.Name)
			assert.Equal(t, tt.wantPrio, ps.Priority)
			assert.Equal(t, tt.wantOrigin, ps.Origin)
			assert.Equal(t, "7", ps.SourceResourceVersion)
			if diff := cmp.Diff(tt.wantProps, ps.Properties); diff != "" {
				t.Errorf("properties mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTransformUnparseableFile(t *testing.T) {
	_, err := newTransformer().Transform(asResource(t, test.ConfigMap("default", "bad", "1", map[string]string{"a.yml": "\ninvalid: : yaml\n  - broken structure\n"})))
	assert.Error(t, err)
}

func TestTransformRejectsOtherKinds(t *testing.T) {
	_, err := newTransformer().Transform(asResource(t, test.Pod("default", "p", nil)))
	assert.Error(t, err)
}

func TestTransformIsDeterministic(t *testing.T) {
	r := asResource(t, test.ConfigMap("default", "app", "3", map[string]string{"application.yml": "a:\n  b: [1, 2]\n"}))

	first, err := newTransformer().Transform(r)
	require.NoError(t, err)
	second, err := newTransformer().Transform(r)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestStoreReplace(t *testing.T) {
	s := NewStore()
	owner := Owner{Kind: resource.ConfigMapKind, Namespace: "default", Name: "app"}
	literal := PropertySource{Name: "app (ConfigMap)", Owner: owner, Priority: 100, Properties: map[string]any{"a": "1"}}
	file := PropertySource{Name: "app.yml (ConfigMap)", Owner: owner, Priority: 100, Properties: map[string]any{"a": "2"}}

	assert.True(t, s.Replace(nil, []PropertySource{literal}))
	assert.False(t, s.Replace([]string{literal.Name}, []PropertySource{literal}), "replaying the same source changes nothing")

	// classification flipped: the old name goes, the new one arrives
	assert.True(t, s.ReplaceOwned(owner, []PropertySource{file}))
	_, ok := s.Get(literal.Name)
	assert.False(t, ok)
	got, ok := s.Get(file.Name)
	assert.True(t, ok)
	assert.Equal(t, "2", got.Properties["a"])

	assert.True(t, s.ReplaceOwned(owner, nil))
	assert.Zero(t, s.Len())
	assert.False(t, s.ReplaceOwned(owner, nil))
}

func TestStoreNameCollisionBetweenOwners(t *testing.T) {
	var buf bytes.Buffer
	saved := log.Logger
	log.Logger = zerolog.New(&buf)
	defer func() { log.Logger = saved }()

	first := Owner{Kind: resource.ConfigMapKind, Namespace: "default", Name: "first"}
	second := Owner{Kind: resource.ConfigMapKind, Namespace: "default", Name: "second"}

	tests := []struct {
		name  string
		owner Owner
		warns bool
	}{
		{"same owner", first, false},
		{"another owner", second, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()
			s := NewStore()
			s.ReplaceOwned(first, []PropertySource{{Name: "application.yml (ConfigMap)", Owner: first, Properties: map[string]any{"a": "1"}}})

			assert.True(t, s.ReplaceOwned(tt.owner, []PropertySource{{Name: "application.yml (ConfigMap)", Owner: tt.owner, Properties: map[string]any{"a": "2"}}}))
			got, ok := s.Get("application.yml (ConfigMap)")
			require.True(t, ok)
			assert.Equal(t, tt.owner, got.Owner)

			if !tt.warns {
				assert.Empty(t, buf.String())
				return
			}
			assert.Contains(t, buf.String(), `"level":"warn"`)
			assert.Contains(t, buf.String(), `"previous":"ConfigMap default/first"`)

			// the name now belongs to the later owner, so removing the earlier one keeps it
			assert.False(t, s.ReplaceOwned(first, nil))
			assert.Equal(t, 1, s.Len())
		})
	}
}

func TestStoreAllOrdersByPrecedence(t *testing.T) {
	s := NewStore()
	s.Replace(nil, []PropertySource{
		{Name: "b (ConfigMap)", Priority: 100},
		{Name: "a (ConfigMap)", Priority: 100},
		{Name: "s (Secret)", Priority: 200},
		{Name: "m", Priority: 50},
	})

	assert.Equal(t, []string{"s (Secret)", "a (ConfigMap)", "b (ConfigMap)", "m"}, namesInOrder(s.All()))
}

func TestStoreReadersNeverSeeHalfReplaced(t *testing.T) {
	s := NewStore()
	owner := Owner{Kind: resource.ConfigMapKind, Namespace: "default", Name: "app"}
	a := PropertySource{Name: "app (ConfigMap)", Owner: owner}
	b := PropertySource{Name: "app.yml (ConfigMap)", Owner: owner}
	s.Replace(nil, []PropertySource{a})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			if i%2 == 0 {
				s.ReplaceOwned(owner, []PropertySource{b})
			} else {
				s.ReplaceOwned(owner, []PropertySource{a})
			}
		}
	}()

	bad := 0
	for i := 0; i < 500; i++ {
		if s.Len() != 1 || len(s.All()) != 1 {
			bad++
		}
	}
	wg.Wait()
	assert.Zero(t, bad)
}

func TestKeysSorted(t *testing.T) {
	ps := PropertySource{Properties: map[string]any{"b": 1, "a": 2, "c": 3}}
	assert.Equal(t, []string{"a", "b", "c"}, ps.Keys())
}

func namesInOrder(sources []PropertySource) []string {
	out := make([]string, 0, len(sources))
	for _, ps := range sources {
		out = append(out, ps.Name)
	}
	return out
}
