// Package environment merges the live property sources into one resolved configuration,
// tells subscribers which keys changed, and binds properties onto structs.
package environment

import (
	"context"
	"sort"
	"sync"

	"github.com/GlintPay/gkcs/metrics"
	gotel "github.com/GlintPay/gkcs/otel"
	"github.com/GlintPay/gkcs/propertysource"
	"github.com/emirpasic/gods/sets/hashset"
	"github.com/rs/zerolog/log"
	"k8s.io/apimachinery/pkg/api/equality"
)

// ChangeEvent names the resolved keys whose value appeared, changed or disappeared in one
// refresh, along with the sources in effect afterwards, highest precedence first
type ChangeEvent struct {
	Keys    []string `json:"keys"`
	Sources []string `json:"sources"`
}

func (c ChangeEvent) Empty() bool {
	return len(c.Keys) == 0
}

type Options struct {
	Injections  Injections
	External    ExternalResolver
	Templates   *Templates
	EnableTrace bool
}

type snapshot struct {
	properties map[string]any
	sources    []string
	precedence string
}

// Environment is the resolved view over a propertysource.Store. It changes only on Refresh.
type Environment struct {
	store *propertysource.Store
	opts  Options

	refreshMu sync.Mutex

	mu      sync.RWMutex
	current snapshot

	subsMu sync.Mutex
	subs   map[int]chan ChangeEvent
	nextID int
}

func New(store *propertysource.Store, opts Options) *Environment {
	return &Environment{
		store:   store,
		opts:    opts,
		current: snapshot{properties: map[string]any{}},
		subs:    make(map[int]chan ChangeEvent),
	}
}

// Refresh re-merges and re-resolves the store, swaps in the result and returns what changed.
// Resolution problems are logged and leave the affected values empty; they never fail a refresh.
func (e *Environment) Refresh(ctx context.Context) ChangeEvent {
	ctx, end := gotel.Start(ctx, e.opts.EnableTrace, "environment-refresh")
	defer end()

	e.refreshMu.Lock()
	defer e.refreshMu.Unlock()

	sources := e.store.All()

	m := merger{}
	merged := m.merge(sources, e.opts.Injections)

	resolved, err := NewPropertiesResolver(merged, e.opts.External, e.opts.Templates).ResolvePlaceholdersFromTop(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Environment resolved with errors")
	}

	next := snapshot{
		properties: resolved,
		sources:    make([]string, 0, len(sources)),
		precedence: precedenceDisplay(sources),
	}
	for _, ps := range sources {
		next.sources = append(next.sources, ps.Name)
	}

	e.mu.Lock()
	previous := e.current
	e.current = next
	e.mu.Unlock()

	return ChangeEvent{Keys: changedKeys(previous.properties, next.properties), Sources: next.sources}
}

// changedKeys returns, sorted, every key whose presence or value differs between before and after
func changedKeys(before, after map[string]any) []string {
	union := hashset.New()
	for k := range before {
		union.Add(k)
	}
	for k := range after {
		union.Add(k)
	}

	var changed []string
	for _, each := range union.Values() {
		k := each.(string)
		prev, hadPrev := before[k]
		curr, hasCurr := after[k]
		if hadPrev != hasCurr || !equality.Semantic.DeepEqual(prev, curr) {
			changed = append(changed, k)
		}
	}
	sort.Strings(changed)
	return changed
}

// Subscribe registers for change events. Delivery never blocks the publisher: when the buffer
// is full the event is dropped for that subscriber. cancel closes the channel.
func (e *Environment) Subscribe(buffer int) (<-chan ChangeEvent, func()) {
	ch := make(chan ChangeEvent, buffer)

	e.subsMu.Lock()
	id := e.nextID
	e.nextID++
	e.subs[id] = ch
	e.subsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			e.subsMu.Lock()
			delete(e.subs, id)
			e.subsMu.Unlock()
			close(ch)
		})
	}
}

// Publish fans event out to every subscriber
func (e *Environment) Publish(event ChangeEvent) {
	e.subsMu.Lock()
	defer e.subsMu.Unlock()

	for id, ch := range e.subs {
		select {
		case ch <- event:
		default:
			metrics.DroppedNotifications.Inc()
			log.Warn().Int("subscriber", id).Strs("keys", event.Keys).Msg("Subscriber not keeping up, change event dropped")
		}
	}
}

// Get returns one resolved property
func (e *Environment) Get(key string) (any, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.current.properties[key]
	return v, ok
}

// Properties returns a copy of every resolved property
func (e *Environment) Properties() map[string]any {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return copyMap(e.current.properties)
}

// Precedence renders the source names in effect, highest precedence first
func (e *Environment) Precedence() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.current.precedence
}

// Sources returns the property sources currently held by the store
func (e *Environment) Sources() []propertysource.PropertySource {
	return e.store.All()
}
