package cache

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GlintPay/gkcs/metrics"
	"github.com/GlintPay/gkcs/resource"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/util/wait"
)

// Handler receives the changes an Informer applied to its partition. Calls for one partition
// are made sequentially, in delivery order.
type Handler interface {
	OnAdd(r resource.Resource)
	OnUpdate(old, r resource.Resource)
	OnDelete(r resource.Resource)
	OnError(err error)
}

var errRelist = errors.New("watch expired, relist required")

// Informer consumes one WatchSource into one ResourceCache partition
type Informer struct {
	source   resource.WatchSource
	cache    *ResourceCache
	backoff  wait.Backoff
	logger   zerolog.Logger
	synced   atomic.Bool
	handlers []Handler
	mu       sync.Mutex
}

func NewInformer(source resource.WatchSource, cache *ResourceCache, handlers ...Handler) *Informer {
	return &Informer{
		source:   source,
		cache:    cache,
		handlers: handlers,
		backoff:  DefaultBackoff(),
		logger: log.With().
			Str("kind", string(source.Kind())).
			Str("namespace", source.Namespace()).
			Logger(),
	}
}

func DefaultBackoff() wait.Backoff {
	return wait.Backoff{
		Duration: 500 * time.Millisecond,
		Factor:   2,
		Jitter:   0.1,
		Steps:    math.MaxInt32,
		Cap:      30 * time.Second,
	}
}

// WithBackoff overrides the retry schedule, mostly for tests
func (i *Informer) WithBackoff(b wait.Backoff) *Informer {
	i.backoff = b
	return i
}

// AddHandler registers another handler. Must be called before Run.
func (i *Informer) AddHandler(h Handler) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.handlers = append(i.handlers, h)
}

func (i *Informer) Cache() *ResourceCache {
	return i.cache
}

// HasSynced reports whether the first full List has been applied
func (i *Informer) HasSynced() bool {
	return i.synced.Load()
}

// Run lists then watches until ctx is cancelled. Cancellation leaves the partition exactly
// as it was: nothing is cleared and no Delete is dispatched.
func (i *Informer) Run(ctx context.Context) error {
	backoff := i.backoff

	for {
		resourceVersion, err := i.list(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			i.logger.Error().Err(err).Msg("List failed")
			metrics.WatchRestarts.WithLabelValues(string(i.source.Kind()), "list_failed").Inc()
			if !sleep(ctx, backoff.Step()) {
				return nil
			}
			continue
		}
		backoff = i.backoff

		for {
			delivered, err := i.watch(ctx, resourceVersion)
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, errRelist) {
				metrics.WatchRestarts.WithLabelValues(string(i.source.Kind()), "expired").Inc()
				break
			}
			if err != nil {
				i.logger.Warn().Err(err).Msg("Watch failed")
				metrics.WatchRestarts.WithLabelValues(string(i.source.Kind()), "watch_failed").Inc()
				if !sleep(ctx, backoff.Step()) {
					return nil
				}
			} else {
				metrics.WatchRestarts.WithLabelValues(string(i.source.Kind()), "closed").Inc()
				if delivered > 0 {
					backoff = i.backoff
				} else if !sleep(ctx, backoff.Step()) {
					return nil
				}
			}
			resourceVersion = i.cache.LastSyncVersion()
		}
	}
}

func (i *Informer) list(ctx context.Context) (string, error) {
	items, resourceVersion, err := i.source.List(ctx)
	if err != nil {
		return "", fmt.Errorf("list %s: %w", i.source.Kind(), err)
	}

	deltas := i.cache.Replace(items, resourceVersion)
	i.cache.recordSize()

	for _, d := range deltas {
		switch d.Kind {
		case resource.Added:
			i.dispatch(func(h Handler) { h.OnAdd(d.Resource) })
		case resource.Modified:
			i.dispatch(func(h Handler) { h.OnUpdate(d.Old, d.Resource) })
		case resource.Deleted:
			i.dispatch(func(h Handler) { h.OnDelete(d.Resource) })
		}
	}

	if !i.synced.Swap(true) {
		i.logger.Info().Int("count", len(items)).Msg("Initial list applied")
	} else {
		i.logger.Debug().Int("count", len(items)).Int("changes", len(deltas)).Msg("Relist applied")
	}

	return resourceVersion, nil
}

// watch consumes one watch stream, returning how many events it delivered
func (i *Informer) watch(ctx context.Context, resourceVersion string) (int, error) {
	events, err := i.source.Watch(ctx, resourceVersion)
	if err != nil {
		if isExpired(err) {
			return 0, errRelist
		}
		return 0, err
	}

	delivered := 0
	for {
		select {
		case <-ctx.Done():
			return delivered, nil
		case event, ok := <-events:
			if !ok {
				return delivered, nil
			}
			delivered++
			if err := i.apply(event); err != nil {
				return delivered, err
			}
		}
	}
}

// apply mutates the partition for one event and fans the effective change out
func (i *Informer) apply(event resource.Event) error {
	kind := string(i.source.Kind())

	switch event.Kind {
	case resource.Added, resource.Modified:
		previous, outcome := i.cache.Upsert(event.Resource)
		switch outcome {
		case Inserted:
			metrics.CacheEvents.WithLabelValues(kind, "applied").Inc()
			i.cache.recordSize()
			i.dispatch(func(h Handler) { h.OnAdd(event.Resource) })
		case Replaced:
			metrics.CacheEvents.WithLabelValues(kind, "applied").Inc()
			i.dispatch(func(h Handler) { h.OnUpdate(previous, event.Resource) })
		default:
			metrics.CacheEvents.WithLabelValues(kind, "absorbed").Inc()
			i.logger.Debug().Msgf("Absorbed replay of %s", event.Resource)
		}

	case resource.Deleted:
		if _, ok := i.cache.Delete(event.Resource.Key()); ok {
			metrics.CacheEvents.WithLabelValues(kind, "applied").Inc()
			i.cache.recordSize()
			i.dispatch(func(h Handler) { h.OnDelete(event.Resource) })
		} else {
			metrics.CacheEvents.WithLabelValues(kind, "absorbed").Inc()
		}

	case resource.Error:
		metrics.CacheEvents.WithLabelValues(kind, "error").Inc()
		i.dispatch(func(h Handler) { h.OnError(event.Err) })
		if isExpired(event.Err) {
			return errRelist
		}
		return fmt.Errorf("watch error event: %w", event.Err)

	default:
		i.logger.Warn().Msgf("Ignoring unknown event kind [%s]", event.Kind)
	}

	return nil
}

func (i *Informer) dispatch(call func(h Handler)) {
	i.mu.Lock()
	handlers := i.handlers
	i.mu.Unlock()

	for _, h := range handlers {
		i.safely(h, call)
	}
}

// A misbehaving handler must not take the partition's watch down with it
func (i *Informer) safely(h Handler, call func(h Handler)) {
	defer func() {
		if r := recover(); r != nil {
			i.logger.Error().Msgf("Handler %T panicked: %v", h, r)
		}
	}()
	call(h)
}

func isExpired(err error) bool {
	return err != nil && (apierrors.IsResourceExpired(err) || apierrors.IsGone(err))
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
