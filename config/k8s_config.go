package config

type K8sConfig struct {
	Enabled          bool   `json:"enabled"`           // Must be enabled to watch the cluster
	Kubeconfig       string `json:"kubeconfig"`        // Path to kubeconfig file (empty = in-cluster auth)
	DefaultNamespace string `json:"default-namespace"` // Used when no namespace is configured or given in a placeholder
	CacheTTLSeconds  int    `json:"cache-ttl-seconds"` // TTL for live reads of unwatched Secrets/ConfigMaps (0 = no caching)
}
