package resource

import (
	"fmt"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/meta"
	"k8s.io/apimachinery/pkg/runtime"
)

// FromObject wraps a typed client-go object. The object is deep-copied so that the Resource
// cannot observe later mutations made by whoever handed it over.
func FromObject(obj runtime.Object) (Resource, error) {
	kind, err := kindOf(obj)
	if err != nil {
		return Resource{}, err
	}

	copied := obj.DeepCopyObject()
	accessor, err := meta.Accessor(copied)
	if err != nil {
		return Resource{}, fmt.Errorf("cannot access metadata of %s: %w", kind, err)
	}

	return Resource{
		Kind:            kind,
		Namespace:       accessor.GetNamespace(),
		Name:            accessor.GetName(),
		ResourceVersion: accessor.GetResourceVersion(),
		Labels:          accessor.GetLabels(),
		Annotations:     accessor.GetAnnotations(),
		Object:          copied,
	}, nil
}

func kindOf(obj runtime.Object) (Kind, error) {
	switch obj.(type) {
	case *corev1.ConfigMap:
		return ConfigMapKind, nil
	case *corev1.Secret:
		return SecretKind, nil
	case *corev1.Service:
		return ServiceKind, nil
	case *corev1.Endpoints:
		return EndpointsKind, nil
	case *corev1.Pod:
		return PodKind, nil
	case nil:
		return "", fmt.Errorf("nil object")
	}
	return "", fmt.Errorf("unsupported object type %T", obj)
}

func (r Resource) ConfigMap() (*corev1.ConfigMap, bool) {
	cm, ok := r.Object.(*corev1.ConfigMap)
	return cm, ok
}

func (r Resource) Secret() (*corev1.Secret, bool) {
	s, ok := r.Object.(*corev1.Secret)
	return s, ok
}

func (r Resource) Service() (*corev1.Service, bool) {
	s, ok := r.Object.(*corev1.Service)
	return s, ok
}

func (r Resource) Endpoints() (*corev1.Endpoints, bool) {
	e, ok := r.Object.(*corev1.Endpoints)
	return e, ok
}

func (r Resource) Pod() (*corev1.Pod, bool) {
	p, ok := r.Object.(*corev1.Pod)
	return p, ok
}

// StringData returns the key/value payload of a ConfigMap or Secret. Secret values arrive
// already base64-decoded from client-go; StringData and BinaryData are folded in, with Data
// taking precedence.
func (r Resource) StringData() (map[string]string, bool) {
	switch typed := r.Object.(type) {
	case *corev1.ConfigMap:
		out := make(map[string]string, len(typed.Data)+len(typed.BinaryData))
		for k, v := range typed.BinaryData {
			out[k] = string(v)
		}
		for k, v := range typed.Data {
			out[k] = v
		}
		return out, true
	case *corev1.Secret:
		out := make(map[string]string, len(typed.Data)+len(typed.StringData))
		for k, v := range typed.StringData {
			out[k] = v
		}
		for k, v := range typed.Data {
			out[k] = string(v)
		}
		return out, true
	}
	return nil, false
}
