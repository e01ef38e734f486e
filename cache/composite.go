package cache

import (
	"sort"
	"sync"

	"github.com/GlintPay/gkcs/resource"
)

// Lookup is the read side shared by ResourceCache partitions and the IndexerComposite
type Lookup interface {
	GetByKey(namespace, name string) (resource.Resource, bool)
}

// IndexerComposite answers get/list queries for one kind across every watched namespace.
// Reads never wait for a watch event: they return whatever the partitions hold right now.
type IndexerComposite struct {
	kind resource.Kind

	mu         sync.RWMutex
	partitions map[string]*ResourceCache
}

func NewIndexerComposite(kind resource.Kind) *IndexerComposite {
	return &IndexerComposite{
		kind:       kind,
		partitions: make(map[string]*ResourceCache),
	}
}

func (ic *IndexerComposite) Kind() resource.Kind {
	return ic.kind
}

// Partition returns the cache for namespace, creating it on first use
func (ic *IndexerComposite) Partition(namespace string) *ResourceCache {
	ic.mu.Lock()
	defer ic.mu.Unlock()

	if p, ok := ic.partitions[namespace]; ok {
		return p
	}
	p := NewResourceCache(ic.kind, namespace)
	ic.partitions[namespace] = p
	return p
}

// Namespaces lists the watched namespaces, sorted
func (ic *IndexerComposite) Namespaces() []string {
	ic.mu.RLock()
	defer ic.mu.RUnlock()

	out := make([]string, 0, len(ic.partitions))
	for ns := range ic.partitions {
		out = append(out, ns)
	}
	sort.Strings(out)
	return out
}

// Covers reports whether namespace is watched, directly or through the all-namespace partition
func (ic *IndexerComposite) Covers(namespace string) bool {
	ic.mu.RLock()
	defer ic.mu.RUnlock()

	_, direct := ic.partitions[namespace]
	_, all := ic.partitions[resource.AllNamespaces]
	return direct || all
}

func (ic *IndexerComposite) GetByKey(namespace, name string) (resource.Resource, bool) {
	ic.mu.RLock()
	direct := ic.partitions[namespace]
	all := ic.partitions[resource.AllNamespaces]
	ic.mu.RUnlock()

	if direct != nil {
		if r, ok := direct.GetByKey(namespace, name); ok {
			return r, true
		}
	}
	if all != nil && all != direct {
		return all.GetByKey(namespace, name)
	}
	return resource.Resource{}, false
}

// List returns the resources held for namespace. resource.AllNamespaces returns the union
// of every partition; a resource seen by two partitions is reported once, newest version wins.
func (ic *IndexerComposite) List(namespace string) []resource.Resource {
	ic.mu.RLock()
	var sources []*ResourceCache
	if namespace == resource.AllNamespaces {
		for _, p := range ic.partitions {
			sources = append(sources, p)
		}
	} else {
		if p, ok := ic.partitions[namespace]; ok {
			sources = append(sources, p)
		}
		if p, ok := ic.partitions[resource.AllNamespaces]; ok {
			sources = append(sources, p)
		}
	}
	ic.mu.RUnlock()

	merged := make(map[resource.Key]resource.Resource)
	for _, p := range sources {
		for _, r := range p.List() {
			if namespace != resource.AllNamespaces && r.Namespace != namespace {
				continue
			}
			if existing, ok := merged[r.Key()]; ok && !resource.IsOlder(existing.ResourceVersion, r.ResourceVersion) {
				continue
			}
			merged[r.Key()] = r
		}
	}

	out := make([]resource.Resource, 0, len(merged))
	for _, r := range merged {
		out = append(out, r)
	}
	sortResources(out)
	return out
}
