package propertysource

import (
	"sync"

	"github.com/rs/zerolog/log"
	"k8s.io/apimachinery/pkg/api/equality"
)

// Store is the live set of property sources, keyed by name. Replace applies removals and
// insertions as one step, so readers never see a renamed source missing or duplicated.
type Store struct {
	mu      sync.RWMutex
	sources map[string]PropertySource
}

func NewStore() *Store {
	return &Store{sources: make(map[string]PropertySource)}
}

// Replace removes the named sources then inserts add, atomically. It reports whether the
// stored set actually changed.
func (s *Store) Replace(remove []string, add []PropertySource) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.replaceLocked(remove, add)
}

// ReplaceOwned swaps every source produced by owner for add, atomically. A name already held by
// another owner passes to this one; the previous holder's content is gone until it is next
// reconciled.
func (s *Store) ReplaceOwned(owner Owner, add []PropertySource) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.replaceLocked(s.ownedLocked(owner), add)
}

func (s *Store) replaceLocked(remove []string, add []PropertySource) bool {
	before := make(map[string]PropertySource, len(remove)+len(add))
	for _, name := range remove {
		if existing, ok := s.sources[name]; ok {
			before[name] = existing
		}
	}
	for _, ps := range add {
		if existing, ok := s.sources[ps.Name]; ok {
			before[ps.Name] = existing
			if existing.Owner != ps.Owner {
				log.Warn().Str("source", ps.Name).Str("owner", ps.Owner.String()).Str("previous", existing.Owner.String()).
					Msg("Property source name collision, replacing source of another owner")
			}
		}
	}

	for _, name := range remove {
		delete(s.sources, name)
	}
	for _, ps := range add {
		s.sources[ps.Name] = ps
	}

	for name := range before {
		if _, still := s.sources[name]; !still {
			return true
		}
	}
	for _, ps := range add {
		prev, ok := before[ps.Name]
		if !ok || !equality.Semantic.DeepEqual(prev, ps) {
			return true
		}
	}
	return false
}

func (s *Store) Get(name string) (PropertySource, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ps, ok := s.sources[name]
	return ps, ok
}

func (s *Store) ownedLocked(owner Owner) []string {
	var names []string
	for name, ps := range s.sources {
		if ps.Owner == owner {
			names = append(names, name)
		}
	}
	return names
}

// All returns a snapshot ordered from highest to lowest precedence
func (s *Store) All() []PropertySource {
	s.mu.RLock()
	out := make([]PropertySource, 0, len(s.sources))
	for _, ps := range s.sources {
		out = append(out, ps)
	}
	s.mu.RUnlock()

	Sort(out)
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sources)
}
