// Package reconciler keeps the property source store in step with the ConfigMaps and Secrets
// held by the resource caches, and refreshes the environment after every change.
package reconciler

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/GlintPay/gkcs/environment"
	"github.com/GlintPay/gkcs/metrics"
	"github.com/GlintPay/gkcs/propertysource"
	"github.com/GlintPay/gkcs/resource"
	"github.com/emirpasic/gods/sets/hashset"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Lister is the cached view of the reconciled kind
type Lister interface {
	List(namespace string) []resource.Resource
}

// Reconciler handles the cache events of one kind. Nothing is written to the store until Start
// has been called; Start then catches up with whatever the cache holds.
type Reconciler struct {
	kind        resource.Kind
	filter      Filter
	transformer *propertysource.Transformer
	store       *propertysource.Store
	env         *environment.Environment
	lister      Lister
	logger      zerolog.Logger

	started atomic.Bool
	ctx     context.Context

	// one store change and its refresh at a time, across partitions
	mu sync.Mutex
}

func New(kind resource.Kind, filter Filter, transformer *propertysource.Transformer, store *propertysource.Store, env *environment.Environment, lister Lister) *Reconciler {
	return &Reconciler{
		kind:        kind,
		filter:      filter,
		transformer: transformer,
		store:       store,
		env:         env,
		lister:      lister,
		ctx:         context.Background(),
		logger:      log.With().Str("reconciler", string(kind)).Logger(),
	}
}

func (r *Reconciler) Kind() resource.Kind {
	return r.kind
}

func (r *Reconciler) Started() bool {
	return r.started.Load()
}

// Start opens the gate and reconciles the store against the current cache contents: sources
// for resources that vanished during startup are dropped, the rest are (re)built.
func (r *Reconciler) Start(ctx context.Context) ChangeSummary {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ctx = ctx
	r.started.Store(true)

	var current []resource.Resource
	if r.lister != nil {
		current = r.lister.List(resource.AllNamespaces)
	}

	live := hashset.New()
	changed := false
	for _, each := range current {
		live.Add(propertysource.OwnerOf(each))
		if r.applyLocked(each) {
			changed = true
		}
	}

	for _, ps := range r.store.All() {
		// mounted volume sources have no namespace and are not ours to resync
		if ps.Owner.Kind != r.kind || ps.Owner.Namespace == "" || live.Contains(ps.Owner) {
			continue
		}
		if r.store.ReplaceOwned(ps.Owner, nil) {
			changed = true
		}
	}

	r.logger.Info().Int("resources", len(current)).Bool("changed", changed).Msg("Reconciler started")
	return r.refreshLocked()
}

// ChangeSummary is what one reconciliation published, if anything
type ChangeSummary struct {
	environment.ChangeEvent
	Published bool
}

func (r *Reconciler) OnAdd(res resource.Resource) {
	r.reconcile(res, func() bool { return r.applyLocked(res) })
}

// OnUpdate rebuilds the resource's sources. The previous ones are swapped out in the same store
// operation, so a source renamed by reclassification is never seen twice or not at all.
func (r *Reconciler) OnUpdate(_, res resource.Resource) {
	r.reconcile(res, func() bool { return r.applyLocked(res) })
}

func (r *Reconciler) OnDelete(res resource.Resource) {
	r.reconcile(res, func() bool {
		return r.store.ReplaceOwned(propertysource.OwnerOf(res), nil)
	})
}

// Replace swaps the sources of an owner that is not backed by the cache, such as a mounted
// volume. It reports false, leaving the store alone, until the reconciler has started.
func (r *Reconciler) Replace(owner propertysource.Owner, sources []propertysource.PropertySource) bool {
	if !r.started.Load() {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.store.ReplaceOwned(owner, sources) {
		r.refreshLocked()
	}
	return true
}

// OnError keeps the last known-good configuration in place
func (r *Reconciler) OnError(err error) {
	r.logger.Warn().Err(err).Msg("Watch error, keeping current property sources")
}

func (r *Reconciler) reconcile(res resource.Resource, change func() bool) {
	if !r.started.Load() {
		r.logger.Debug().Msgf("Not started, deferring %s", res)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !change() {
		r.logger.Debug().Msgf("No property source change for %s", res)
		return
	}
	r.refreshLocked()
}

// applyLocked replaces the sources owned by res with freshly transformed ones. Filtered-out
// resources, and resources that cannot be transformed, contribute nothing.
func (r *Reconciler) applyLocked(res resource.Resource) bool {
	owner := propertysource.OwnerOf(res)

	if !r.filter.Accepts(res) {
		return r.store.ReplaceOwned(owner, nil)
	}

	sources, err := r.transformer.Transform(res)
	if err != nil {
		metrics.ConfigTransformErrors.WithLabelValues(string(r.kind)).Inc()
		r.logger.Error().Err(err).Msgf("Could not transform %s, dropping its property sources", res)
		return r.store.ReplaceOwned(owner, nil)
	}
	return r.store.ReplaceOwned(owner, sources)
}

func (r *Reconciler) refreshLocked() ChangeSummary {
	event := r.env.Refresh(r.ctx)
	if event.Empty() {
		return ChangeSummary{ChangeEvent: event}
	}

	r.env.Publish(event)
	metrics.ConfigChanges.WithLabelValues(string(r.kind)).Inc()
	r.logger.Info().Strs("keys", event.Keys).Msg("Configuration changed")
	return ChangeSummary{ChangeEvent: event, Published: true}
}
