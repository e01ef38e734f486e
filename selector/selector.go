// Package selector computes the label selector applied to list and watch calls.
package selector

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"
	"k8s.io/apimachinery/pkg/labels"
)

// PodLabelsLookup returns the labels of the pod this process runs in
type PodLabelsLookup interface {
	PodLabels(ctx context.Context) (map[string]string, error)
}

type Resolver struct {
	Pods PodLabelsLookup
}

func NewResolver(pods PodLabelsLookup) *Resolver {
	return &Resolver{Pods: pods}
}

// Resolve renders staticLabels as key=value pairs sorted by key, then appends the requested
// subset of this pod's own labels in the order they were requested. Keys the pod does not carry
// are skipped, and a failed pod lookup contributes nothing.
func (r *Resolver) Resolve(ctx context.Context, staticLabels map[string]string, podLabelKeys []string) string {
	var parts []string
	if len(staticLabels) > 0 {
		parts = append(parts, labels.Set(staticLabels).String())
	}

	if len(podLabelKeys) > 0 {
		parts = append(parts, r.podContribution(ctx, staticLabels, podLabelKeys)...)
	}

	return strings.Join(parts, ",")
}

func (r *Resolver) podContribution(ctx context.Context, staticLabels map[string]string, keys []string) []string {
	if r.Pods == nil {
		log.Warn().Msgf("Pod labels %v requested but no pod lookup is configured", keys)
		return nil
	}

	podLabels, err := r.Pods.PodLabels(ctx)
	if err != nil {
		log.Warn().Err(err).Msgf("Could not resolve own pod labels, ignoring %v", keys)
		return nil
	}

	var out []string
	for _, key := range keys {
		if _, static := staticLabels[key]; static {
			continue
		}
		value, ok := podLabels[key]
		if !ok {
			log.Warn().Msgf("Pod label [%s] not present, skipping", key)
			continue
		}
		out = append(out, key+"="+value)
	}
	return out
}

// Parse validates a computed selector for use in list options
func Parse(selector string) (labels.Selector, error) {
	return labels.Parse(selector)
}
