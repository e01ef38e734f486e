package services

import (
	"fmt"

	"github.com/GlintPay/gkcs/metrics"
	"github.com/GlintPay/gkcs/resource"
	"github.com/rs/zerolog/log"
	corev1 "k8s.io/api/core/v1"
)

// EndpointsResolver builds one instance per (port, address) pair of each Endpoints subset
type EndpointsResolver struct {
	Endpoints Lister
	Services  Lister // optional: labels, ExternalName services
	Options   Options
}

func (r *EndpointsResolver) ListServiceIDs(namespace string) []string {
	items := r.Endpoints.List(namespaceOrAll(namespace))
	if r.Options.IncludeExternalNameServices && r.Services != nil {
		for _, each := range r.Services.List(namespaceOrAll(namespace)) {
			if svc, ok := each.Service(); ok && svc.Spec.Type == corev1.ServiceTypeExternalName {
				items = append(items, each)
			}
		}
	}
	return sortedNames(items, nil)
}

func (r *EndpointsResolver) ResolveInstances(cfg ServiceConfig) ([]Instance, error) {
	var out []Instance
	found := false

	for _, ep := range r.candidates(r.Endpoints, cfg) {
		found = true
		instances, err := r.fromEndpoints(cfg, ep)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", ep.Key(), err)
		}
		out = append(out, instances...)
	}

	if r.Options.IncludeExternalNameServices && r.Services != nil {
		for _, each := range r.candidates(r.Services, cfg) {
			svc, ok := each.Service()
			if !ok || svc.Spec.Type != corev1.ServiceTypeExternalName {
				continue
			}
			found = true
			instances, err := externalNameInstances(r.Options, cfg.Name, each, svc, cfg.Port)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", each.Key(), err)
			}
			out = append(out, instances...)
		}
	}

	if !found {
		return nil, ErrServiceNotFound
	}
	return out, nil
}

func (r *EndpointsResolver) candidates(from Lister, cfg ServiceConfig) []resource.Resource {
	if cfg.Namespace != "" {
		if res, ok := from.GetByKey(cfg.Namespace, cfg.Name); ok {
			return []resource.Resource{res}
		}
		return nil
	}

	var out []resource.Resource
	for _, each := range from.List(resource.AllNamespaces) {
		if each.Name == cfg.Name {
			out = append(out, each)
		}
	}
	return out
}

func (r *EndpointsResolver) fromEndpoints(cfg ServiceConfig, res resource.Resource) ([]Instance, error) {
	ep, ok := res.Endpoints()
	if !ok {
		return nil, fmt.Errorf("unexpected payload %T", res.Object)
	}

	// labels and annotations come from the owning Service when it is cached
	owner := res
	if r.Services != nil {
		if svc, ok := r.Services.GetByKey(res.Namespace, res.Name); ok {
			owner = svc
		}
	}

	var out []Instance
	declaredPorts := 0

	for i, subset := range ep.Subsets {
		declaredPorts += len(subset.Ports)

		ports, err := selectEndpointPorts(subset.Ports, cfg.Port)
		if err != nil {
			metrics.ResolutionFailures.WithLabelValues("ambiguous_ports").Inc()
			log.Warn().Err(err).Msgf("Rejecting subset %d of %s", i, res.Key())
			continue
		}

		addresses := subset.Addresses
		if r.Options.IncludeNotReadyAddresses {
			addresses = append(append([]corev1.EndpointAddress(nil), addresses...), subset.NotReadyAddresses...)
		}

		for _, port := range ports {
			for _, address := range addresses {
				out = append(out, newInstance(cfg.Name, owner, address.IP, port.Port, port.Name, metadataFor(r.Options, owner, port.Name)))
			}
		}
	}

	if cfg.Port != "" && declaredPorts > 0 && len(out) == 0 && !anyPinned(ep.Subsets, cfg.Port) {
		return nil, ErrPortNotFound
	}
	return out, nil
}

// selectEndpointPorts applies the multi-port policy to one subset
func selectEndpointPorts(ports []corev1.EndpointPort, pin string) ([]corev1.EndpointPort, error) {
	if pin == "" {
		if len(ports) > 1 {
			return nil, errAmbiguousPorts
		}
		return ports, nil
	}

	var out []corev1.EndpointPort
	for _, p := range ports {
		if matchesPin(pin, p.Name, p.Port) {
			out = append(out, p)
		}
	}
	return out, nil
}

func anyPinned(subsets []corev1.EndpointSubset, pin string) bool {
	for _, subset := range subsets {
		for _, p := range subset.Ports {
			if matchesPin(pin, p.Name, p.Port) {
				return true
			}
		}
	}
	return false
}
