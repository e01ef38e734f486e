package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFetcher struct {
	entries []Entry
	err     error
	calls   int
}

func (s *stubFetcher) Fetch(ctx context.Context) ([]Entry, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.entries, ctx.Err()
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

var deployment = Entry{Kind: "Deployment", Group: "apps", Version: "v1", Resource: "deployments", Namespaced: true}

func newTestCache(f Fetcher, opts Options) (*Cache, *clock) {
	clk := &clock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewCache(f, opts)
	c.now = clk.now
	return c, clk
}

func TestFindCachesWithinInterval(t *testing.T) {
	f := &stubFetcher{entries: []Entry{deployment}}
	c, clk := newTestCache(f, Options{Enabled: true, RefreshInterval: time.Minute})

	e, found, err := c.Find(context.Background(), "deployment")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, deployment, e)

	clk.t = clk.t.Add(30 * time.Second)
	_, _, err = c.Find(context.Background(), "DEPLOYMENT")
	require.NoError(t, err)
	assert.Equal(t, 1, f.calls)

	clk.t = clk.t.Add(time.Minute)
	_, _, err = c.Find(context.Background(), "Deployment")
	require.NoError(t, err)
	assert.Equal(t, 2, f.calls)
}

func TestFindUnknownKindDoesNotRefetch(t *testing.T) {
	f := &stubFetcher{entries: []Entry{deployment}}
	c, _ := newTestCache(f, Options{Enabled: true, RefreshInterval: time.Minute})

	_, found, err := c.Find(context.Background(), "Widget")
	assert.False(t, found)
	assert.ErrorIs(t, err, ErrUnknownKind)

	_, _, err = c.Find(context.Background(), "Widget")
	assert.ErrorIs(t, err, ErrUnknownKind)
	assert.Equal(t, 1, f.calls)
}

func TestFindFailOpen(t *testing.T) {
	f := &stubFetcher{entries: []Entry{deployment}}
	c, clk := newTestCache(f, Options{Enabled: true, RefreshInterval: time.Minute})

	_, _, err := c.Find(context.Background(), "Deployment")
	require.NoError(t, err)

	f.err = errors.New("apiserver unavailable")
	clk.t = clk.t.Add(2 * time.Minute)

	e, found, err := c.Find(context.Background(), "Deployment")
	assert.True(t, found)
	assert.Equal(t, deployment, e)
	assert.Error(t, err)

	// the failure does not move the refresh time, so the next call retries
	f.err = nil
	_, _, err = c.Find(context.Background(), "Deployment")
	assert.NoError(t, err)
	assert.Equal(t, 3, f.calls)
}

func TestFindFailureWithoutSnapshot(t *testing.T) {
	f := &stubFetcher{err: errors.New("boom")}
	c, _ := newTestCache(f, Options{Enabled: true, RefreshInterval: time.Minute})

	_, found, err := c.Find(context.Background(), "Deployment")
	assert.False(t, found)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnknownKind)
}

func TestStaticKindsAndDisabled(t *testing.T) {
	f := &stubFetcher{}
	static := Entry{Kind: "Widget", Group: "example.com", Version: "v1", Resource: "widgets", Namespaced: true}
	c, _ := newTestCache(f, Options{Enabled: false, StaticKinds: []Entry{static}})

	e, found, err := c.Find(context.Background(), "widget")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, static, e)

	_, found, err = c.Find(context.Background(), "Deployment")
	assert.False(t, found)
	assert.ErrorIs(t, err, ErrDisabled)

	_, err = c.FindAll(context.Background())
	assert.ErrorIs(t, err, ErrDisabled)
	assert.Zero(t, f.calls)
}

func TestFindAllReturnsStaleSnapshotOnError(t *testing.T) {
	configMaps := Entry{Kind: "ConfigMap", Version: "v1", Resource: "configmaps", Namespaced: true}
	f := &stubFetcher{entries: []Entry{deployment, configMaps}}
	c, clk := newTestCache(f, Options{Enabled: true, RefreshInterval: time.Minute})

	all, err := c.FindAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Entry{configMaps, deployment}, all)

	f.err = errors.New("boom")
	clk.t = clk.t.Add(time.Hour)

	all, err = c.FindAll(context.Background())
	assert.Error(t, err)
	assert.Len(t, all, 2)
}

func TestResolvePrefersDecomposedGroupVersion(t *testing.T) {
	v1beta1 := Entry{Kind: "Deployment", Group: "apps", Version: "v1beta1", Resource: "deployments", Namespaced: true}
	f := &stubFetcher{entries: []Entry{deployment, v1beta1}}
	c, _ := newTestCache(f, Options{Enabled: true, RefreshInterval: time.Minute})

	e, err := c.Resolve(context.Background(), "AppsV1beta1Deployment")
	require.NoError(t, err)
	assert.Equal(t, v1beta1, e)

	e, err = c.Resolve(context.Background(), "Deployment")
	require.NoError(t, err)
	assert.Equal(t, deployment, e)

	_, err = c.Resolve(context.Background(), "AppsV1Widget")
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestResolveDecomposesWhenDisabled(t *testing.T) {
	f := &stubFetcher{}
	tests := []struct {
		name       string
		decomposer *Decomposer
		typeName   string
		want       Entry
		wantErr    error
	}{
		{
			name:     "default tables",
			typeName: "AppsV1Deployment",
			want:     deployment,
		},
		{
			name:       "custom prefix and infix",
			decomposer: NewDecomposer([]GroupPrefix{{Prefix: "Example", Group: "example.com"}}, []string{"V3"}),
			typeName:   "ExampleV3Widget",
			want:       Entry{Kind: "Widget", Group: "example.com", Version: "v3", Resource: "widgets", Namespaced: true},
		},
		{
			name:       "infix missing from the table",
			decomposer: NewDecomposer(nil, []string{"V3"}),
			typeName:   "V1ConfigMap",
			wantErr:    ErrDisabled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestCache(f, Options{Enabled: false, Decomposer: tt.decomposer})

			e, err := c.Resolve(context.Background(), tt.typeName)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, e)
		})
	}
	assert.Zero(t, f.calls)
}

func TestRefreshHonoursTimeout(t *testing.T) {
	f := fetchFunc(func(ctx context.Context) ([]Entry, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	c, _ := newTestCache(f, Options{Enabled: true, RefreshInterval: time.Minute, Timeout: 10 * time.Millisecond})

	_, _, err := c.Find(context.Background(), "Deployment")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

type fetchFunc func(ctx context.Context) ([]Entry, error)

func (f fetchFunc) Fetch(ctx context.Context) ([]Entry, error) { return f(ctx) }
