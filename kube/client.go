// Package kube adapts client-go to the watch, lookup and discovery interfaces the rest of the
// server is written against.
package kube

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/GlintPay/gkcs/config"
	"github.com/rs/zerolog/log"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// NewClientset connects with the configured kubeconfig, or with the pod's service account
func NewClientset(cfg config.K8sConfig) (kubernetes.Interface, error) {
	var restConfig *rest.Config
	var err error

	if cfg.Kubeconfig != "" {
		// Out-of-cluster: use kubeconfig file
		restConfig, err = clientcmd.BuildConfigFromFlags("", cfg.Kubeconfig)
		if err != nil {
			return nil, fmt.Errorf("failed to build config from kubeconfig: %w", err)
		}
		log.Info().Str("kubeconfig", cfg.Kubeconfig).Msg("Using kubeconfig for K8s authentication")
	} else {
		// In-cluster: use service account
		restConfig, err = rest.InClusterConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to get in-cluster config: %w", err)
		}
		log.Info().Msg("Using in-cluster K8s authentication")
	}

	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes clientset: %w", err)
	}
	return clientset, nil
}

// LiveReader reads single Secret/ConfigMap keys straight from the API server, for namespaces
// that are not watched. Hits are kept for ttl; a zero ttl disables caching.
type LiveReader struct {
	clientset kubernetes.Interface
	cache     *valueCache
}

type valueCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

type cacheEntry struct {
	value     string
	expiresAt time.Time
}

func NewLiveReader(clientset kubernetes.Interface, ttl time.Duration) *LiveReader {
	reader := &LiveReader{clientset: clientset}
	if ttl > 0 {
		reader.cache = &valueCache{entries: make(map[string]cacheEntry), ttl: ttl, now: time.Now}
		log.Info().Dur("ttl", ttl).Msg("Live K8s value caching enabled")
	}
	return reader
}

func (c *LiveReader) GetSecretValue(ctx context.Context, namespace, name, key string) (string, bool, error) {
	cacheKey := fmt.Sprintf("secret:%s/%s/%s", namespace, name, key)
	if val, ok := c.cache.get(cacheKey); ok {
		return val, true, nil
	}

	log.Debug().Msgf("Fetching K8s secret [%s/%s] with key [%s]...", namespace, name, key)
	secret, err := c.clientset.CoreV1().Secrets(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return "", false, fmt.Errorf("failed to get secret %s/%s: %w", namespace, name, err)
	}

	value, ok := secretDataValue(secret, key)
	if !ok {
		return "", false, nil
	}
	c.cache.set(cacheKey, value)
	return value, true, nil
}

func secretDataValue(secret *corev1.Secret, key string) (string, bool) {
	if data, ok := secret.Data[key]; ok {
		return string(data), true
	}
	if data, ok := secret.StringData[key]; ok {
		return data, true
	}
	return "", false
}

func (c *LiveReader) GetConfigMapValue(ctx context.Context, namespace, name, key string) (string, bool, error) {
	cacheKey := fmt.Sprintf("configmap:%s/%s/%s", namespace, name, key)
	if val, ok := c.cache.get(cacheKey); ok {
		return val, true, nil
	}

	log.Debug().Msgf("Fetching K8s configmap [%s/%s] with key [%s]...", namespace, name, key)
	configMap, err := c.clientset.CoreV1().ConfigMaps(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return "", false, fmt.Errorf("failed to get configmap %s/%s: %w", namespace, name, err)
	}

	value, ok := configMap.Data[key]
	if !ok {
		binData, ok := configMap.BinaryData[key]
		if !ok {
			return "", false, nil
		}
		value = string(binData)
	}
	c.cache.set(cacheKey, value)
	return value, true, nil
}

func (rc *valueCache) get(key string) (string, bool) {
	if rc == nil {
		return "", false
	}
	rc.mu.RLock()
	defer rc.mu.RUnlock()

	entry, ok := rc.entries[key]
	if !ok || rc.now().After(entry.expiresAt) {
		return "", false
	}
	return entry.value, true
}

func (rc *valueCache) set(key, value string) {
	if rc == nil {
		return
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()

	rc.entries[key] = cacheEntry{value: value, expiresAt: rc.now().Add(rc.ttl)}
}
