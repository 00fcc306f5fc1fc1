package coordinator

import (
	"sync"

	"github.com/riskcore-io/riskcore/internal/evaluator"
	"github.com/riskcore-io/riskcore/internal/memtable"
)

// keyState is the per-(instrument, direction) runtime state that lives
// outside the Memory Manager's reload-driven snapshot: a Robust-Zone, its
// adjustment-cycle phase, and its exploration state. These mutate on the
// outcome-feedback path and the zone-evolution ticker, never from Evaluate
// itself, preserving evaluator purity (spec.md §8 property 7).
type keyState struct {
	Zone        *evaluator.Zone
	ZoneState   evaluator.ZoneState
	Exploration evaluator.ExplorationState
}

// StateStore holds one keyState per partition key, guarded by a single
// mutex — contention is low (one entry per traded instrument/direction) so
// a map-wide lock is simpler than per-key locks and good enough for the
// write rates described in spec.md §5.
type StateStore struct {
	mu     sync.Mutex
	states map[memtable.Key]*keyState
}

func NewStateStore() *StateStore {
	return &StateStore{states: make(map[memtable.Key]*keyState)}
}

// Get returns the current state for k, creating a fresh observe-phase entry
// if none exists yet.
func (s *StateStore) Get(k memtable.Key, targetWaitTrades int) keyState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[k]
	if !ok {
		st = &keyState{
			ZoneState:   evaluator.NewZoneState(targetWaitTrades),
			Exploration: evaluator.NewExplorationState(),
		}
		s.states[k] = st
	}
	return *st
}

// SetZone replaces the published zone for k (from a zone-evolution tick).
func (s *StateStore) SetZone(k memtable.Key, zone *evaluator.Zone) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.ensure(k)
	st.Zone = zone
}

// SetZoneState replaces the adjustment-cycle state for k.
func (s *StateStore) SetZoneState(k memtable.Key, zs evaluator.ZoneState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.ensure(k)
	st.ZoneState = zs
}

// SetExploration replaces the exploration state for k.
func (s *StateStore) SetExploration(k memtable.Key, es evaluator.ExplorationState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.ensure(k)
	st.Exploration = es
}

func (s *StateStore) ensure(k memtable.Key) *keyState {
	st, ok := s.states[k]
	if !ok {
		st = &keyState{}
		s.states[k] = st
	}
	return st
}

// Keys returns every key with runtime state, for the zone-evolution ticker
// to iterate.
func (s *StateStore) Keys() []memtable.Key {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]memtable.Key, 0, len(s.states))
	for k := range s.states {
		out = append(out, k)
	}
	return out
}
