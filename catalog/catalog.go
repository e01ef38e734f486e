// Package catalog caches the cluster's API discovery document so that a resource kind can be
// mapped to its group, version and plural name without a round trip per lookup.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/GlintPay/gkcs/metrics"
	gotel "github.com/GlintPay/gkcs/otel"
	"github.com/rs/zerolog/log"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

var (
	ErrUnknownKind = errors.New("unknown resource kind")
	ErrDisabled    = errors.New("api catalogue is disabled")
)

// Entry describes one served resource type
type Entry struct {
	Kind       string `json:"kind"`
	Group      string `json:"group"`
	Version    string `json:"version"`
	Resource   string `json:"resource"`
	Namespaced bool   `json:"namespaced"`
}

func (e Entry) GroupVersionResource() schema.GroupVersionResource {
	return schema.GroupVersionResource{Group: e.Group, Version: e.Version, Resource: e.Resource}
}

func (e Entry) String() string {
	if e.Group == "" {
		return e.Version + "/" + e.Resource
	}
	return e.Group + "/" + e.Version + "/" + e.Resource
}

// Fetcher retrieves the full discovery document. Implementations must honour ctx.
type Fetcher interface {
	Fetch(ctx context.Context) ([]Entry, error)
}

type Options struct {
	Enabled         bool
	RefreshInterval time.Duration
	Timeout         time.Duration
	StaticKinds     []Entry
	Decomposer      *Decomposer
	EnableTrace     bool
}

// Cache is a TTL cache over the discovery document with fail-open staleness: once a snapshot
// has been fetched, a failed refresh never hides it.
type Cache struct {
	fetcher Fetcher
	opts    Options
	static  map[string]Entry
	now     func() time.Time

	refreshMu sync.Mutex

	mu          sync.RWMutex
	byKind      map[string][]Entry
	all         []Entry
	nextRefresh time.Time
}

func NewCache(fetcher Fetcher, opts Options) *Cache {
	static := make(map[string]Entry, len(opts.StaticKinds))
	for _, each := range opts.StaticKinds {
		static[strings.ToLower(each.Kind)] = each
	}
	if opts.Decomposer == nil {
		opts.Decomposer = DefaultDecomposer()
	}

	return &Cache{
		fetcher: fetcher,
		opts:    opts,
		static:  static,
		now:     time.Now,
		byKind:  make(map[string][]Entry),
	}
}

// Find returns the entry for kind, matched case-insensitively. Statically configured kinds never
// touch the network. When a due refresh fails but a previous snapshot knows the kind, the stale
// entry is returned with found=true alongside the refresh error.
func (c *Cache) Find(ctx context.Context, kind string) (Entry, bool, error) {
	if e, ok := c.static[strings.ToLower(kind)]; ok {
		return e, true, nil
	}
	if !c.opts.Enabled {
		return Entry{}, false, fmt.Errorf("find %s: %w", kind, ErrDisabled)
	}

	refreshErr := c.refreshIfDue(ctx)

	c.mu.RLock()
	candidates := c.byKind[strings.ToLower(kind)]
	c.mu.RUnlock()

	if len(candidates) > 0 {
		if refreshErr != nil {
			log.Warn().Err(refreshErr).Msgf("Serving stale catalogue entry for %s", kind)
		}
		return candidates[0], true, refreshErr
	}
	if refreshErr != nil {
		return Entry{}, false, refreshErr
	}
	return Entry{}, false, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
}

// FindAll returns every known entry. On refresh failure the previous snapshot is returned along
// with the error.
func (c *Cache) FindAll(ctx context.Context) ([]Entry, error) {
	if !c.opts.Enabled {
		return nil, ErrDisabled
	}

	err := c.refreshIfDue(ctx)

	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Entry(nil), c.all...), err
}

// Resolve maps a declared type name such as "AppsV1Deployment" to an entry. Static kinds win,
// then the decomposed kind is looked up in the catalogue, preferring the decomposed group and
// version when the catalogue serves the kind under several. With the catalogue disabled the
// decomposed entry itself is returned.
func (c *Cache) Resolve(ctx context.Context, typeName string) (Entry, error) {
	if e, ok := c.static[strings.ToLower(typeName)]; ok {
		return e, nil
	}

	decomposed, ok := c.opts.Decomposer.Decompose(typeName)
	if !ok {
		e, found, err := c.Find(ctx, typeName)
		if !found {
			return Entry{}, err
		}
		return e, nil
	}

	if e, ok := c.static[strings.ToLower(decomposed.Kind)]; ok {
		return e, nil
	}

	first, found, err := c.Find(ctx, decomposed.Kind)
	if !found {
		if errors.Is(err, ErrDisabled) {
			return decomposed, nil
		}
		return Entry{}, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, each := range c.byKind[strings.ToLower(decomposed.Kind)] {
		if each.Group == decomposed.Group && each.Version == decomposed.Version {
			return each, nil
		}
	}
	return first, nil
}

func (c *Cache) refreshIfDue(ctx context.Context) error {
	if !c.due() {
		return nil
	}

	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	// another caller may have refreshed while we waited
	if !c.due() {
		return nil
	}

	ctx, end := gotel.Start(ctx, c.opts.EnableTrace, "catalog-refresh")
	defer end()

	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	started := time.Now()
	entries, err := c.fetcher.Fetch(ctx)
	metrics.CatalogRefreshDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		metrics.CatalogRefreshErrors.Inc()
		return fmt.Errorf("refresh api catalogue: %w", err)
	}

	byKind := make(map[string][]Entry)
	for _, each := range entries {
		key := strings.ToLower(each.Kind)
		byKind[key] = append(byKind[key], each)
	}

	all := append([]Entry(nil), entries...)
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Group != all[j].Group {
			return all[i].Group < all[j].Group
		}
		return all[i].Kind < all[j].Kind
	})

	c.mu.Lock()
	c.byKind = byKind
	c.all = all
	c.nextRefresh = c.now().Add(c.opts.RefreshInterval)
	c.mu.Unlock()

	log.Debug().Int("entries", len(entries)).Msg("API catalogue refreshed")
	return nil
}

func (c *Cache) due() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.now().Before(c.nextRefresh)
}
