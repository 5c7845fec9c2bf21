package ratelimit

import (
	"context"
	"sync"
)

// MemoryStateStore keeps pacing state per shop for the life of the process.
type MemoryStateStore struct {
	mu     sync.Mutex
	byShop map[string]State
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{byShop: make(map[string]State)}
}

func (s *MemoryStateStore) Get(_ context.Context, shop string) (State, error) {
	s.mu.Lock()
	state, ok := s.byShop[normalizeShop(shop)]
	s.mu.Unlock()
	if !ok {
		return State{}, ErrStateNotFound
	}
	return state, nil
}

func (s *MemoryStateStore) Upsert(_ context.Context, state State) error {
	state.Shop = normalizeShop(state.Shop)
	s.mu.Lock()
	s.byShop[state.Shop] = state
	s.mu.Unlock()
	return nil
}

var _ StateStore = (*MemoryStateStore)(nil)
