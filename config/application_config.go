package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/GlintPay/gkcs/utils"
)

// Configuration is read from the process environment
type Configuration struct {
	ApplicationConfigFileYmlPath string `env:"APP_CONFIG_FILE_YML_PATH" envDefault:"application.yml"`
	Hostname                     string `env:"HOSTNAME"`
	PodNamespace                 string `env:"POD_NAMESPACE"`
	WatchNamespaces              string `env:"WATCH_NAMESPACES"` // comma-separated, used where the YAML names none
}

// ApplicationConfiguration Must use full names for `sigs.k8s.io/yaml`
type ApplicationConfiguration struct {
	Server      Server            `json:"server"`
	Prometheus  Prometheus        `json:"prometheus"`
	Tracing     Tracing           `json:"tracing"`
	Kubernetes  K8sConfig         `json:"kubernetes"`
	ConfigMaps  SourceConfig      `json:"config-maps"`
	Secrets     SourceConfig      `json:"secrets"`
	Discovery   DiscoveryConfig   `json:"discovery"`
	Catalog     CatalogConfig     `json:"catalog"`
	Services    []ServiceConfig   `json:"services"`
	Environment EnvironmentConfig `json:"environment"`
}

func defaultTypeNames() map[string]string {
	return map[string]string{
		"ConfigMap": "V1ConfigMap",
		"Secret":    "V1Secret",
		"Service":   "V1Service",
		"Endpoints": "V1Endpoints",
	}
}

// Defaults returns the configuration applied before the YAML file is read
func Defaults() ApplicationConfiguration {
	return ApplicationConfiguration{
		Server:     Server{Port: 80},
		Kubernetes: K8sConfig{Enabled: true},
		ConfigMaps: SourceConfig{Enabled: true, WatchEnabled: true, Priority: 100, RefreshRateMillis: 15000},
		Secrets:    SourceConfig{Enabled: false, WatchEnabled: true, Priority: 200, RefreshRateMillis: 15000},
		Discovery:  DiscoveryConfig{Enabled: true, Mode: ModeEndpoints},
		Catalog:    CatalogConfig{Enabled: true, RefreshIntervalMillis: 300000, TimeoutMillis: 10000, TypeNames: defaultTypeNames()},
		Environment: EnvironmentConfig{
			NotificationBuffer: 16,
			Templates:          GoTemplate{LeftDelim: DefaultLeftDelim, RightDelim: DefaultRightDelim},
		},
	}
}

// Validate checks the configuration and fills in the values derived from the environment
func (c *ApplicationConfiguration) Validate(env Configuration) error {
	if c.Kubernetes.DefaultNamespace == "" {
		c.Kubernetes.DefaultNamespace = env.PodNamespace
	}
	if c.Kubernetes.DefaultNamespace == "" {
		c.Kubernetes.DefaultNamespace = "default"
	}

	if watched := utils.SplitCSV(env.WatchNamespaces); len(watched) > 0 {
		for _, namespaces := range []*[]string{&c.ConfigMaps.Namespaces, &c.Secrets.Namespaces, &c.Discovery.Namespaces} {
			if len(*namespaces) == 0 {
				*namespaces = watched
			}
		}
	}

	var errs []error
	if !validMode(c.Discovery.Mode) {
		errs = append(errs, fmt.Errorf("discovery.mode: unknown mode %q", c.Discovery.Mode))
	}
	for i, each := range c.Services {
		if each.Name == "" {
			errs = append(errs, fmt.Errorf("services[%d]: missing name", i))
		}
		if each.Mode != "" && !validMode(each.Mode) {
			errs = append(errs, fmt.Errorf("services[%d]: unknown mode %q", i, each.Mode))
		}
	}
	if c.Server.Port < 0 {
		errs = append(errs, fmt.Errorf("server.port: %d", c.Server.Port))
	}
	c.Environment.Templates = c.Environment.Templates.Validate()
	return errors.Join(errs...)
}

type Server struct {
	Port int `json:"port"`
}

type Tracing struct {
	Enabled         bool    `json:"enabled"`
	Endpoint        string  `json:"endpoint"`
	SamplerFraction float64 `json:"samplerFraction"`
}

type Prometheus struct {
	Path string `json:"path"`
}

// SourceConfig configures one of the ConfigMap / Secret property source kinds
type SourceConfig struct {
	Enabled            bool              `json:"enabled"`
	WatchEnabled       bool              `json:"watch-enabled"`
	Namespaces         []string          `json:"namespaces"`
	Includes           []string          `json:"includes"`
	Excludes           []string          `json:"excludes"`
	Labels             map[string]string `json:"labels"`
	PodLabels          []string          `json:"pod-labels"`
	MountedVolumePaths []string          `json:"mounted-volume-paths"`
	Priority           int               `json:"priority"`
	RefreshRateMillis  int64             `json:"refresh-rate"`
}

func (s SourceConfig) RefreshRate() time.Duration {
	return time.Duration(s.RefreshRateMillis) * time.Millisecond
}

const (
	ModeEndpoints = "ENDPOINTS"
	ModeService   = "SERVICE"
)

func validMode(mode string) bool {
	return mode == ModeEndpoints || mode == ModeService
}

type DiscoveryConfig struct {
	Enabled                     bool              `json:"enabled"`
	Mode                        string            `json:"mode"`
	Namespaces                  []string          `json:"namespaces"`
	Labels                      map[string]string `json:"labels"`
	PodLabels                   []string          `json:"pod-labels"`
	IncludeNotReadyAddresses    bool              `json:"include-not-ready-addresses"`
	IncludeExternalNameServices bool              `json:"include-external-name-services"`
	AddLabels                   bool              `json:"add-labels"`
	AddAnnotations              bool              `json:"add-annotations"`
}

// ServiceConfig pins how one service is resolved
type ServiceConfig struct {
	Name      string `json:"name"`
	Namespace string `json:"namespace"`
	Port      string `json:"port"`
	Mode      string `json:"mode"`
}

type CatalogConfig struct {
	Enabled               bool          `json:"enabled"`
	RefreshIntervalMillis int64         `json:"refresh-interval"`
	TimeoutMillis         int64         `json:"timeout"`
	StaticKinds           []StaticKind  `json:"static-kinds"`
	GroupPrefixes         []GroupPrefix `json:"group-prefixes"`
	VersionInfixes        []string      `json:"version-infixes"`
	// TypeNames declares the type name each watched kind is resolved from, e.g. ConfigMap: V1ConfigMap
	TypeNames map[string]string `json:"type-names"`
}

// TypeName returns the declared type name for kind, falling back to the core v1 name
func (c CatalogConfig) TypeName(kind string) string {
	if name := c.TypeNames[kind]; name != "" {
		return name
	}
	return "V1" + kind
}

func (c CatalogConfig) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshIntervalMillis) * time.Millisecond
}

func (c CatalogConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMillis) * time.Millisecond
}

// StaticKind answers a catalogue lookup without asking the API server
type StaticKind struct {
	Kind       string `json:"kind"`
	Group      string `json:"group"`
	Version    string `json:"version"`
	Resource   string `json:"resource"`
	Namespaced bool   `json:"namespaced"`
}

type GroupPrefix struct {
	Prefix string `json:"prefix"`
	Group  string `json:"group"`
}

type EnvironmentConfig struct {
	// Injections are merged with the cluster's property sources: keys starting with ^ underneath
	// them, all others on top
	Injections         map[string]any `json:"injections"`
	Templates          GoTemplate     `json:"templates"`
	NotificationBuffer int            `json:"notification-buffer"`
}
