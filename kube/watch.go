package kube

import (
	"context"
	"fmt"

	"github.com/GlintPay/gkcs/resource"
	"github.com/rs/zerolog/log"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes"
)

type listFunc func(ctx context.Context, opts metav1.ListOptions) (runtime.Object, error)
type watchFunc func(ctx context.Context, opts metav1.ListOptions) (watch.Interface, error)

// WatchSource lists and watches one kind in one namespace through a clientset
type WatchSource struct {
	kind      resource.Kind
	namespace string
	selector  string
	list      listFunc
	watch     watchFunc
}

// NewWatchSource builds the source for (kind, namespace, labelSelector). resource.AllNamespaces
// watches the whole cluster.
func NewWatchSource(client kubernetes.Interface, kind resource.Kind, namespace string, labelSelector string) (*WatchSource, error) {
	ns := namespace
	if ns == resource.AllNamespaces {
		ns = metav1.NamespaceAll
	}
	core := client.CoreV1()

	ws := &WatchSource{kind: kind, namespace: namespace, selector: labelSelector}
	switch kind {
	case resource.ConfigMapKind:
		ws.list = func(ctx context.Context, opts metav1.ListOptions) (runtime.Object, error) {
			return core.ConfigMaps(ns).List(ctx, opts)
		}
		ws.watch = core.ConfigMaps(ns).Watch
	case resource.SecretKind:
		ws.list = func(ctx context.Context, opts metav1.ListOptions) (runtime.Object, error) {
			return core.Secrets(ns).List(ctx, opts)
		}
		ws.watch = core.Secrets(ns).Watch
	case resource.ServiceKind:
		ws.list = func(ctx context.Context, opts metav1.ListOptions) (runtime.Object, error) {
			return core.Services(ns).List(ctx, opts)
		}
		ws.watch = core.Services(ns).Watch
	case resource.EndpointsKind:
		ws.list = func(ctx context.Context, opts metav1.ListOptions) (runtime.Object, error) {
			return core.Endpoints(ns).List(ctx, opts)
		}
		ws.watch = core.Endpoints(ns).Watch
	default:
		return nil, fmt.Errorf("no watch source for kind %s", kind)
	}
	return ws, nil
}

func (ws *WatchSource) Kind() resource.Kind {
	return ws.kind
}

func (ws *WatchSource) Namespace() string {
	return ws.namespace
}

func (ws *WatchSource) List(ctx context.Context) ([]resource.Resource, string, error) {
	obj, err := ws.list(ctx, metav1.ListOptions{LabelSelector: ws.selector})
	if err != nil {
		return nil, "", err
	}

	listMeta, err := meta.ListAccessor(obj)
	if err != nil {
		return nil, "", err
	}
	items, err := meta.ExtractList(obj)
	if err != nil {
		return nil, "", err
	}

	out := make([]resource.Resource, 0, len(items))
	for _, item := range items {
		r, err := resource.FromObject(item)
		if err != nil {
			return nil, "", err
		}
		out = append(out, r)
	}
	return out, listMeta.GetResourceVersion(), nil
}

// Watch streams events from resourceVersion until ctx ends or the server closes the stream
func (ws *WatchSource) Watch(ctx context.Context, resourceVersion string) (<-chan resource.Event, error) {
	w, err := ws.watch(ctx, metav1.ListOptions{
		LabelSelector:   ws.selector,
		ResourceVersion: resourceVersion,
	})
	if err != nil {
		return nil, err
	}

	out := make(chan resource.Event)
	go func() {
		defer close(out)
		defer w.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.ResultChan():
				if !ok {
					return
				}
				converted, keep := ws.convert(ev)
				if !keep {
					continue
				}
				select {
				case out <- converted:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (ws *WatchSource) convert(ev watch.Event) (resource.Event, bool) {
	var kind resource.EventKind
	switch ev.Type {
	case watch.Added:
		kind = resource.Added
	case watch.Modified:
		kind = resource.Modified
	case watch.Deleted:
		kind = resource.Deleted
	case watch.Error:
		return resource.Event{Kind: resource.Error, Err: apierrors.FromObject(ev.Object)}, true
	default:
		return resource.Event{}, false
	}

	r, err := resource.FromObject(ev.Object)
	if err != nil {
		log.Error().Err(err).Str("kind", string(ws.kind)).Msg("Dropping unreadable watch event")
		return resource.Event{}, false
	}
	return resource.Event{Kind: kind, Resource: r}, true
}
