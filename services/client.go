package services

import (
	"errors"
	"sort"

	"github.com/GlintPay/gkcs/metrics"
	"github.com/rs/zerolog/log"
)

// Client is the discovery surface handed to application code
type Client struct {
	strategies  map[Mode]Strategy
	defaultMode Mode
	namespaces  []string
	configs     map[string]ServiceConfig
}

// NewClient builds a client over the given strategies. namespaces lists where service IDs are
// collected from; an empty list collects from every watched namespace.
func NewClient(strategies map[Mode]Strategy, defaultMode Mode, namespaces []string, configs []ServiceConfig) *Client {
	byName := make(map[string]ServiceConfig, len(configs))
	for _, each := range configs {
		byName[each.Name] = each
	}
	return &Client{
		strategies:  strategies,
		defaultMode: defaultMode,
		namespaces:  namespaces,
		configs:     byName,
	}
}

// GetServiceIDs lists known service names, sorted and de-duplicated across namespaces
func (c *Client) GetServiceIDs() []string {
	strategy, ok := c.strategies[c.defaultMode]
	if !ok {
		return nil
	}

	if len(c.namespaces) == 0 {
		return strategy.ListServiceIDs("")
	}

	seen := make(map[string]struct{})
	var out []string
	for _, ns := range c.namespaces {
		for _, id := range strategy.ListServiceIDs(ns) {
			if _, dup := seen[id]; !dup {
				seen[id] = struct{}{}
				out = append(out, id)
			}
		}
	}
	sort.Strings(out)
	return out
}

// GetInstances resolves serviceID. Only a missing pinned port is returned as an error; every
// other failure is logged and resolves to no instances.
func (c *Client) GetInstances(serviceID string) ([]Instance, error) {
	cfg := c.configFor(serviceID)

	strategy, ok := c.strategies[cfg.Mode]
	if !ok {
		log.Error().Msgf("No %s resolver configured for service [%s]", cfg.Mode, serviceID)
		return nil, nil
	}

	instances, err := strategy.ResolveInstances(cfg)
	switch {
	case err == nil:
		return instances, nil
	case errors.Is(err, ErrPortNotFound):
		metrics.ResolutionFailures.WithLabelValues("port_not_found").Inc()
		return nil, err
	case errors.Is(err, ErrServiceNotFound):
		log.Debug().Msgf("No service named [%s]", serviceID)
		return nil, nil
	default:
		metrics.ResolutionFailures.WithLabelValues("invalid").Inc()
		log.Error().Err(err).Msgf("Could not resolve instances of [%s]", serviceID)
		return nil, nil
	}
}

// Has reports whether serviceID is currently known
func (c *Client) Has(serviceID string) bool {
	for _, id := range c.GetServiceIDs() {
		if id == serviceID {
			return true
		}
	}
	return false
}

func (c *Client) configFor(serviceID string) ServiceConfig {
	cfg, ok := c.configs[serviceID]
	if !ok {
		cfg = ServiceConfig{Name: serviceID}
	}
	if cfg.Mode == "" {
		cfg.Mode = c.defaultMode
	}
	return cfg
}
