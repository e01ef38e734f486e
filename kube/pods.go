package kube

import (
	"context"
	"fmt"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// PodLabels reads the labels of the pod this process runs in
type PodLabels struct {
	Client    kubernetes.Interface
	Namespace string
	Name      string
}

func (p PodLabels) PodLabels(ctx context.Context) (map[string]string, error) {
	if p.Name == "" {
		return nil, fmt.Errorf("pod name unknown, is HOSTNAME set?")
	}
	pod, err := p.Client.CoreV1().Pods(p.Namespace).Get(ctx, p.Name, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get pod %s/%s: %w", p.Namespace, p.Name, err)
	}
	return pod.Labels, nil
}
