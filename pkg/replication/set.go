package replication

import (
	"sort"

	"github.com/sessamekesh/splatnet/pkg/message"
)

type SetParams struct {
	// Defaults to DefaultRate
	Rate float64
}

// Set holds the remote entities known to one peer. It belongs to the game goroutine.
type Set struct {
	rate     float64
	entities map[int32]*RemoteEntityState
}

func CreateSet(params SetParams) *Set {
	rate := params.Rate
	if rate <= 0 {
		rate = DefaultRate
	}
	return &Set{
		rate:     rate,
		entities: make(map[int32]*RemoteEntityState),
	}
}

// Apply records a confirmed state. The first state for an unseen id creates its entity; created
// reports whether that happened.
func (s *Set) Apply(state message.PlayerState) (entity *RemoteEntityState, created bool) {
	if existing, has := s.entities[state.PeerId]; has {
		existing.SetTarget(state)
		return existing, false
	}
	entity = NewRemoteEntityState(state)
	s.entities[state.PeerId] = entity
	return entity, true
}

func (s *Set) Get(peerId int32) (*RemoteEntityState, bool) {
	e, has := s.entities[peerId]
	return e, has
}

func (s *Set) Remove(peerId int32) bool {
	if _, has := s.entities[peerId]; !has {
		return false
	}
	delete(s.entities, peerId)
	return true
}

// Step advances every entity and returns them ordered by id.
func (s *Set) Step(dt float64) []*RemoteEntityState {
	out := make([]*RemoteEntityState, 0, len(s.entities))
	for _, e := range s.entities {
		e.Step(dt, s.rate)
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PeerId < out[j].PeerId })
	return out
}

func (s *Set) Ids() []int32 {
	out := make([]int32, 0, len(s.entities))
	for id := range s.entities {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s *Set) Len() int {
	return len(s.entities)
}

func (s *Set) Clear() {
	s.entities = make(map[int32]*RemoteEntityState)
}
