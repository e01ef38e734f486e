// Package services turns cached Service and Endpoints objects into connectable instances.
package services

import (
	"errors"
	"net"
	"strconv"
	"strings"

	"github.com/GlintPay/gkcs/resource"
	"github.com/emirpasic/gods/sets/treeset"
	corev1 "k8s.io/api/core/v1"
)

var (
	ErrPortNotFound    = errors.New("pinned port not found")
	ErrServiceNotFound = errors.New("service not found")

	errAmbiguousPorts = errors.New("subset declares several ports and none is pinned")
)

type Mode string

const (
	EndpointsMode Mode = "ENDPOINTS"
	ServiceMode   Mode = "SERVICE"
)

// ServiceConfig pins how one service is resolved. Empty fields fall back to client defaults;
// an empty Namespace searches every watched namespace.
type ServiceConfig struct {
	Name      string `json:"name"`
	Namespace string `json:"namespace"`
	Port      string `json:"port"`
	Mode      Mode   `json:"mode"`
}

// Instance is one connectable endpoint. It is computed from the cached resource on every call.
type Instance struct {
	ServiceID string            `json:"serviceId"`
	Namespace string            `json:"namespace"`
	Scheme    string            `json:"scheme"`
	Host      string            `json:"host"`
	Port      int32             `json:"port"`
	Secure    bool              `json:"secure"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

func (i Instance) URI() string {
	if i.Port <= 0 {
		return i.Scheme + "://" + i.Host
	}
	return i.Scheme + "://" + net.JoinHostPort(i.Host, strconv.Itoa(int(i.Port)))
}

// Strategy is one way of resolving instances from the caches
type Strategy interface {
	ListServiceIDs(namespace string) []string
	ResolveInstances(cfg ServiceConfig) ([]Instance, error)
}

// Lister is the read side of an IndexerComposite
type Lister interface {
	GetByKey(namespace, name string) (resource.Resource, bool)
	List(namespace string) []resource.Resource
}

// Options shared by both strategies
type Options struct {
	IncludeNotReadyAddresses    bool
	IncludeExternalNameServices bool
	AddLabels                   bool
	AddAnnotations              bool
}

// IsSecure reports whether a port should be reached over https
func IsSecure(port int32, portName string, labels map[string]string) bool {
	return strings.HasSuffix(strconv.Itoa(int(port)), "443") ||
		portName == "https" ||
		labels["secure"] == "true"
}

func scheme(secure bool) string {
	if secure {
		return "https"
	}
	return "http"
}

func newInstance(serviceID string, owner resource.Resource, host string, port int32, portName string, metadata map[string]string) Instance {
	secure := IsSecure(port, portName, owner.Labels)
	return Instance{
		ServiceID: serviceID,
		Namespace: owner.Namespace,
		Scheme:    scheme(secure),
		Host:      host,
		Port:      port,
		Secure:    secure,
		Metadata:  metadata,
	}
}

func metadataFor(opts Options, owner resource.Resource, portName string) map[string]string {
	md := map[string]string{"k8s_namespace": owner.Namespace}
	if portName != "" {
		md["port_name"] = portName
	}
	if opts.AddLabels {
		for k, v := range owner.Labels {
			md[k] = v
		}
	}
	if opts.AddAnnotations {
		for k, v := range owner.Annotations {
			md[k] = v
		}
	}
	return md
}

// matchesPin reports whether a port satisfies the pinned name or number
func matchesPin(pin, name string, number int32) bool {
	return pin == name || pin == strconv.Itoa(int(number))
}

// externalNameInstances resolves an ExternalName service: the external name is the host, and
// declared ports are used when present. A pinned port that is not declared is an error.
func externalNameInstances(opts Options, serviceID string, owner resource.Resource, svc *corev1.Service, pin string) ([]Instance, error) {
	host := svc.Spec.ExternalName
	if len(svc.Spec.Ports) == 0 {
		if pin != "" {
			return nil, ErrPortNotFound
		}
		return []Instance{newInstance(serviceID, owner, host, 0, "", metadataFor(opts, owner, ""))}, nil
	}

	var out []Instance
	for _, p := range svc.Spec.Ports {
		if pin != "" && !matchesPin(pin, p.Name, p.Port) {
			continue
		}
		out = append(out, newInstance(serviceID, owner, host, p.Port, p.Name, metadataFor(opts, owner, p.Name)))
	}
	if len(out) == 0 {
		return nil, ErrPortNotFound
	}
	return out, nil
}

func sortedNames(items []resource.Resource, keep func(resource.Resource) bool) []string {
	set := treeset.NewWithStringComparator()
	for _, r := range items {
		if keep == nil || keep(r) {
			set.Add(r.Name)
		}
	}

	out := make([]string, 0, set.Size())
	for _, v := range set.Values() {
		out = append(out, v.(string))
	}
	return out
}

func namespaceOrAll(namespace string) string {
	if namespace == "" {
		return resource.AllNamespaces
	}
	return namespace
}
