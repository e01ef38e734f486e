package services

import (
	"fmt"

	"github.com/GlintPay/gkcs/resource"
	"github.com/rs/zerolog/log"
	corev1 "k8s.io/api/core/v1"
)

// ServiceResolver resolves instances at the Service's cluster IP, or at its external name
type ServiceResolver struct {
	Services Lister
	Options  Options
}

func (r *ServiceResolver) ListServiceIDs(namespace string) []string {
	return sortedNames(r.Services.List(namespaceOrAll(namespace)), func(res resource.Resource) bool {
		svc, ok := res.Service()
		if !ok {
			return false
		}
		return svc.Spec.Type != corev1.ServiceTypeExternalName || r.Options.IncludeExternalNameServices
	})
}

func (r *ServiceResolver) ResolveInstances(cfg ServiceConfig) ([]Instance, error) {
	var matches []resource.Resource
	if cfg.Namespace != "" {
		if res, ok := r.Services.GetByKey(cfg.Namespace, cfg.Name); ok {
			matches = append(matches, res)
		}
	} else {
		for _, each := range r.Services.List(resource.AllNamespaces) {
			if each.Name == cfg.Name {
				matches = append(matches, each)
			}
		}
	}
	if len(matches) == 0 {
		return nil, ErrServiceNotFound
	}

	var out []Instance
	for _, res := range matches {
		instances, err := r.fromService(cfg, res)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", res.Key(), err)
		}
		out = append(out, instances...)
	}
	return out, nil
}

func (r *ServiceResolver) fromService(cfg ServiceConfig, res resource.Resource) ([]Instance, error) {
	svc, ok := res.Service()
	if !ok {
		return nil, fmt.Errorf("unexpected payload %T", res.Object)
	}

	if svc.Spec.Type == corev1.ServiceTypeExternalName {
		return externalNameInstances(r.Options, cfg.Name, res, svc, cfg.Port)
	}

	clusterIP := svc.Spec.ClusterIP
	if clusterIP == "" || clusterIP == corev1.ClusterIPNone {
		log.Debug().Msgf("Service %s has no cluster IP, nothing to resolve", res.Key())
		return nil, nil
	}

	var out []Instance
	for _, p := range svc.Spec.Ports {
		if cfg.Port != "" && !matchesPin(cfg.Port, p.Name, p.Port) {
			continue
		}
		out = append(out, newInstance(cfg.Name, res, clusterIP, p.Port, p.Name, metadataFor(r.Options, res, p.Name)))
	}
	if cfg.Port != "" && len(out) == 0 {
		return nil, ErrPortNotFound
	}
	return out, nil
}
