package environment

import (
	"context"
	"testing"
	"time"

	"github.com/GlintPay/gkcs/propertysource"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Blah struct {
	Owner map[string]any
}

type TestHierarchicalConfig struct {
	Payments
	MyService
	Owner string
	Type  string
	X
}

type X struct{ Y }
type Y struct{ Z int16 }

type Payments struct {
	A    string
	B    string
	Name string
}

type MyService struct {
	Host  string
	Url   string
	Hosts []string
}

type TestFlattenedConfig struct {
	A     string `from:"g.a"`
	Name  string `from:"g.name"`
	Host  string `from:"myService.host"`
	Owner string
	Num   int16 `from:"x.y.z"`
}

type TestSuffixConfig struct {
	Timeout  time.Duration
	Fee      decimal.Decimal
	Code     string
	Regions  []string
	Timeouts map[string]time.Duration
}

func TestBindHierarchical(t *testing.T) {
	var cfg TestHierarchicalConfig
	err := BindHierarchical(map[string]any{
		"payments.a":        "b",
		"payments.b":        "c",
		"payments.name":     "Production",
		"myService.host":    "production",
		"myService.url":     "https://production.example.com",
		"myService.hosts[1]": "h2",
		"myService.hosts[0]": "h1",
		"owner":             "Mine",
		"type":              "backend",
		"x.y.z":             "123",
	}, &cfg)
	require.NoError(t, err)

	assert.Equal(t, TestHierarchicalConfig{
		Payments:  Payments{A: "b", B: "c", Name: "Production"},
		MyService: MyService{Host: "production", Url: "https://production.example.com", Hosts: []string{"h1", "h2"}},
		Owner:     "Mine",
		Type:      "backend",
		X:         X{Y: Y{Z: 123}},
	}, cfg)
}

func TestBindFlattened(t *testing.T) {
	var cfg TestFlattenedConfig
	err := BindFlattened(map[string]any{
		"g.a":            "b",
		"g.name":         "Production",
		"myService.host": "production",
		"owner":          "Mine",
		"x.y.z":          123,
	}, &cfg)
	require.NoError(t, err)

	assert.Equal(t, TestFlattenedConfig{A: "b", Name: "Production", Host: "production", Owner: "Mine", Num: 123}, cfg)
}

func TestBindSuffixes(t *testing.T) {
	var cfg TestSuffixConfig
	err := BindHierarchical(map[string]any{
		"timeout_Duration":    "1m30s",
		"fee_Decimal":         "0.015",
		"code_String":         "00123",
		"regionsCSV":          "eu-west-1, us-east-1 ,ap-south-1",
		"timeouts_Duration.a": "1s",
		"timeouts_Duration.b": "2s",
	}, &cfg)
	require.NoError(t, err)

	assert.Equal(t, 90*time.Second, cfg.Timeout)
	assert.True(t, decimal.RequireFromString("0.015").Equal(cfg.Fee))
	assert.Equal(t, "00123", cfg.Code)
	assert.Equal(t, []string{"eu-west-1", "us-east-1", "ap-south-1"}, cfg.Regions)
	assert.Equal(t, map[string]time.Duration{"a": time.Second, "b": 2 * time.Second}, cfg.Timeouts)
}

func TestBindMapOverride(t *testing.T) {
	var cfg Blah
	err := BindHierarchical(map[string]any{"owner": map[string]any{"a": "xxx"}}, &cfg)
	require.NoError(t, err)
	assert.Equal(t, Blah{Owner: map[string]any{"a": "xxx"}}, cfg)
}

func TestEnvironmentBindUnderPrefix(t *testing.T) {
	store := propertysource.NewStore()
	store.Replace(nil, []propertysource.PropertySource{{
		Name:       "app (ConfigMap)",
		Properties: map[string]any{"myService.host": "db", "myService.url": "https://${myService.host}", "other.host": "x"},
	}})
	env := New(store, Options{})
	env.Refresh(context.Background())

	var svc MyService
	require.NoError(t, env.Bind("myService", &svc))
	assert.Equal(t, MyService{Host: "db", Url: "https://db"}, svc)
}
