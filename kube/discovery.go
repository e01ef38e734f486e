package kube

import (
	"context"
	"strings"

	"github.com/GlintPay/gkcs/catalog"
	"github.com/rs/zerolog/log"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/discovery"
)

// DiscoveryFetcher reads the server's preferred resource versions
type DiscoveryFetcher struct {
	Discovery discovery.DiscoveryInterface
}

type fetched struct {
	lists []*metav1.APIResourceList
	err   error
}

// Fetch returns every top-level resource at its preferred version. Groups that fail to answer
// are logged and left out; the call only fails when nothing could be read.
func (f DiscoveryFetcher) Fetch(ctx context.Context) ([]catalog.Entry, error) {
	results := make(chan fetched, 1)
	go func() {
		lists, err := discovery.ServerPreferredResources(f.Discovery)
		results <- fetched{lists: lists, err: err}
	}()

	var res fetched
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-results:
	}

	if res.err != nil {
		if !discovery.IsGroupDiscoveryFailedError(res.err) || len(res.lists) == 0 {
			return nil, res.err
		}
		log.Warn().Err(res.err).Msg("Partial API discovery")
	}

	var entries []catalog.Entry
	for _, list := range res.lists {
		gv, err := schema.ParseGroupVersion(list.GroupVersion)
		if err != nil {
			log.Warn().Err(err).Msgf("Skipping unparseable group version [%s]", list.GroupVersion)
			continue
		}
		for _, r := range list.APIResources {
			if strings.Contains(r.Name, "/") {
				// subresource
				continue
			}
			entries = append(entries, catalog.Entry{
				Kind:       r.Kind,
				Group:      gv.Group,
				Version:    gv.Version,
				Resource:   r.Name,
				Namespaced: r.Namespaced,
			})
		}
	}
	return entries, nil
}
