package resource

import (
	"context"
	"fmt"
)

type Kind string

const (
	ConfigMapKind Kind = "ConfigMap"
	SecretKind    Kind = "Secret"
	ServiceKind   Kind = "Service"
	EndpointsKind Kind = "Endpoints"
	PodKind       Kind = "Pod"
)

// AllNamespaces selects every namespace, both when watching and when listing
const AllNamespaces = "*"

// Key identifies a resource within one (kind, namespace) partition
type Key struct {
	Namespace string
	Name      string
}

func (k Key) String() string {
	if k.Namespace == "" {
		return k.Name
	}
	return k.Namespace + "/" + k.Name
}

// Resource is a read-only view over a cluster object. A new watch event always produces a new
// Resource value; the wrapped Object must never be mutated once the Resource has been built.
type Resource struct {
	Kind            Kind
	Namespace       string
	Name            string
	ResourceVersion string
	Labels          map[string]string
	Annotations     map[string]string

	Object any
}

func (r Resource) Key() Key {
	return Key{Namespace: r.Namespace, Name: r.Name}
}

func (r Resource) String() string {
	return fmt.Sprintf("%s %s@%s", r.Kind, r.Key(), r.ResourceVersion)
}

type EventKind string

const (
	Added    EventKind = "ADDED"
	Modified EventKind = "MODIFIED"
	Deleted  EventKind = "DELETED"
	Error    EventKind = "ERROR"
)

// Event is one item of a watch stream. Err is only set for Error events.
type Event struct {
	Kind     EventKind
	Resource Resource
	Err      error
}

// WatchSource feeds one (kind, namespace, labelSelector) partition: an initial full List,
// followed by a Watch that resumes from the list's resourceVersion.
type WatchSource interface {
	Kind() Kind
	Namespace() string
	List(ctx context.Context) ([]Resource, string, error)
	Watch(ctx context.Context, resourceVersion string) (<-chan Event, error)
}
