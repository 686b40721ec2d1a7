package monitor

import (
	"sync/atomic"
	"time"
)

// Store holds the current and previous FleetSnapshot. Both are swapped in
// together so a reader never sees a current that is older than previous.
type Store struct {
	state atomic.Pointer[storeState]
}

type storeState struct {
	current  *FleetSnapshot
	previous *FleetSnapshot
}

// NewStore returns an empty store.
func NewStore() *Store {
	s := &Store{}
	s.state.Store(&storeState{})
	return s
}

// Publish makes snap current and demotes the old current to previous.
// snap must not be modified afterwards.
func (s *Store) Publish(snap *FleetSnapshot) {
	for {
		old := s.state.Load()
		next := &storeState{current: snap, previous: old.current}
		if s.state.CompareAndSwap(old, next) {
			return
		}
	}
}

// Read returns the current snapshot, or nil before the first publish.
func (s *Store) Read() *FleetSnapshot {
	return s.state.Load().current
}

// Previous returns the snapshot that was current before the last publish.
func (s *Store) Previous() *FleetSnapshot {
	return s.state.Load().previous
}

// Age returns how old the current snapshot is at now. ok is false when
// nothing has been published yet.
func (s *Store) Age(now time.Time) (age time.Duration, ok bool) {
	cur := s.Read()
	if cur == nil {
		return 0, false
	}
	return now.Sub(cur.Timestamp), true
}
