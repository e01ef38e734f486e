package cache

import (
	"sort"
	"sync"

	"github.com/GlintPay/gkcs/metrics"
	"github.com/GlintPay/gkcs/resource"
)

type Outcome int

const (
	// Absorbed means the cache was left untouched: an older or same-version replay
	Absorbed Outcome = iota
	Inserted
	Replaced
)

// ResourceCache is the authoritative local copy of one kind within one namespace partition
// (or all namespaces, for a partition watching resource.AllNamespaces). One watch consumer
// writes, any number of readers read.
type ResourceCache struct {
	kind      resource.Kind
	namespace string

	mu              sync.RWMutex
	entries         map[resource.Key]entry
	lastSyncVersion string
}

type entry struct {
	resource        resource.Resource
	lastSeenVersion string
}

func NewResourceCache(kind resource.Kind, namespace string) *ResourceCache {
	return &ResourceCache{
		kind:      kind,
		namespace: namespace,
		entries:   make(map[resource.Key]entry),
	}
}

func (c *ResourceCache) Kind() resource.Kind {
	return c.kind
}

func (c *ResourceCache) Namespace() string {
	return c.namespace
}

// Upsert stores r unless the cache already holds the same or a newer version of it.
// The previously cached value is returned for Replaced outcomes.
func (c *ResourceCache) Upsert(r resource.Resource) (resource.Resource, Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.upsertLocked(r)
}

func (c *ResourceCache) upsertLocked(r resource.Resource) (resource.Resource, Outcome) {
	key := r.Key()
	existing, ok := c.entries[key]
	if !ok {
		c.entries[key] = entry{resource: r, lastSeenVersion: r.ResourceVersion}
		c.bumpSyncVersion(r.ResourceVersion)
		return resource.Resource{}, Inserted
	}

	if resource.CompareVersions(r.ResourceVersion, existing.lastSeenVersion) <= 0 {
		return existing.resource, Absorbed
	}

	c.entries[key] = entry{resource: r, lastSeenVersion: r.ResourceVersion}
	c.bumpSyncVersion(r.ResourceVersion)
	return existing.resource, Replaced
}

// Delete removes the entry for key, returning what was cached. Absent keys are a no-op.
func (c *ResourceCache) Delete(key resource.Key) (resource.Resource, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing, ok := c.entries[key]
	if !ok {
		return resource.Resource{}, false
	}
	delete(c.entries, key)
	return existing.resource, true
}

// Delta is one difference found while replacing the partition contents with a fresh list
type Delta struct {
	Kind     resource.EventKind
	Old      resource.Resource
	Resource resource.Resource
}

// Replace swaps the partition contents for a freshly listed set, in one step as far as
// readers are concerned, and reports the differences against what was held before.
func (c *ResourceCache) Replace(items []resource.Resource, resourceVersion string) []Delta {
	c.mu.Lock()
	defer c.mu.Unlock()

	deltas := make([]Delta, 0)
	listed := make(map[resource.Key]struct{}, len(items))

	for _, each := range items {
		listed[each.Key()] = struct{}{}

		previous, outcome := c.upsertLocked(each)
		switch outcome {
		case Inserted:
			deltas = append(deltas, Delta{Kind: resource.Added, Resource: each})
		case Replaced:
			deltas = append(deltas, Delta{Kind: resource.Modified, Old: previous, Resource: each})
		}
	}

	for key, existing := range c.entries {
		if _, ok := listed[key]; !ok {
			delete(c.entries, key)
			deltas = append(deltas, Delta{Kind: resource.Deleted, Resource: existing.resource})
		}
	}

	c.lastSyncVersion = resourceVersion
	return deltas
}

func (c *ResourceCache) GetByKey(namespace, name string) (resource.Resource, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[resource.Key{Namespace: namespace, Name: name}]
	return e.resource, ok
}

// List returns a snapshot of the partition ordered by namespace then name
func (c *ResourceCache) List() []resource.Resource {
	c.mu.RLock()
	out := make([]resource.Resource, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e.resource)
	}
	c.mu.RUnlock()

	sortResources(out)
	return out
}

func (c *ResourceCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// LastSyncVersion is the resume point for the next watch
func (c *ResourceCache) LastSyncVersion() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastSyncVersion
}

func (c *ResourceCache) bumpSyncVersion(v string) {
	if resource.CompareVersions(v, c.lastSyncVersion) > 0 {
		c.lastSyncVersion = v
	}
}

func (c *ResourceCache) recordSize() {
	metrics.CacheSize.WithLabelValues(string(c.kind), c.namespace).Set(float64(c.Len()))
}

func sortResources(items []resource.Resource) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].Namespace != items[j].Namespace {
			return items[i].Namespace < items[j].Namespace
		}
		return items[i].Name < items[j].Name
	})
}
