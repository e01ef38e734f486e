package test

import (
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// ConfigMap builds a ConfigMap fixture
func ConfigMap(namespace, name, resourceVersion string, data map[string]string) *corev1.ConfigMap {
	return &corev1.ConfigMap{
		ObjectMeta: objectMeta(namespace, name, resourceVersion),
		Data:       data,
	}
}

// Secret builds a Secret fixture; values are given in clear and stored as (decoded) Data
func Secret(namespace, name, resourceVersion string, data map[string]string) *corev1.Secret {
	bytes := make(map[string][]byte, len(data))
	for k, v := range data {
		bytes[k] = []byte(v)
	}
	return &corev1.Secret{
		ObjectMeta: objectMeta(namespace, name, resourceVersion),
		Data:       bytes,
	}
}

func Service(namespace, name, resourceVersion string, spec corev1.ServiceSpec) *corev1.Service {
	return &corev1.Service{
		ObjectMeta: objectMeta(namespace, name, resourceVersion),
		Spec:       spec,
	}
}

func Endpoints(namespace, name, resourceVersion string, subsets ...corev1.EndpointSubset) *corev1.Endpoints {
	return &corev1.Endpoints{
		ObjectMeta: objectMeta(namespace, name, resourceVersion),
		Subsets:    subsets,
	}
}

func Pod(namespace, name string, labels map[string]string) *corev1.Pod {
	meta := objectMeta(namespace, name, "1")
	meta.Labels = labels
	return &corev1.Pod{ObjectMeta: meta}
}

// Subset pairs the given IPs with the given ports
func Subset(ips []string, ports ...corev1.EndpointPort) corev1.EndpointSubset {
	addresses := make([]corev1.EndpointAddress, 0, len(ips))
	for _, ip := range ips {
		addresses = append(addresses, corev1.EndpointAddress{IP: ip})
	}
	return corev1.EndpointSubset{Addresses: addresses, Ports: ports}
}

func EndpointPort(name string, port int32) corev1.EndpointPort {
	return corev1.EndpointPort{Name: name, Port: port, Protocol: corev1.ProtocolTCP}
}

func ServicePort(name string, port int32) corev1.ServicePort {
	return corev1.ServicePort{Name: name, Port: port, Protocol: corev1.ProtocolTCP}
}

func objectMeta(namespace, name, resourceVersion string) metav1.ObjectMeta {
	return metav1.ObjectMeta{
		Namespace:       namespace,
		Name:            name,
		ResourceVersion: resourceVersion,
	}
}
