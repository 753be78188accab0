package session

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store. All methods are safe for concurrent use.
type MemoryStore struct {
	mu     sync.Mutex
	pairs  map[string]*SeedPair    // id → pair
	active map[string]string       // playerID → active pair id
	rolls  map[string][]RollRecord // seed pair id → ledger
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		pairs:  make(map[string]*SeedPair),
		active: make(map[string]string),
		rolls:  make(map[string][]RollRecord),
	}
}

// CreateSeedPair implements Store.
func (s *MemoryStore) CreateSeedPair(_ context.Context, p SeedPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.active[p.PlayerID]; exists {
		return ErrActiveSeedPairExists
	}
	stored := p
	stored.RevealedAt = nil
	s.pairs[p.ID] = &stored
	s.active[p.PlayerID] = p.ID
	return nil
}

// ActiveSeedPair implements Store.
func (s *MemoryStore) ActiveSeedPair(_ context.Context, playerID string) (SeedPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.active[playerID]
	if !ok {
		return SeedPair{}, ErrNoActiveSeedPair
	}
	return *s.pairs[id], nil
}

// SeedPair implements Store.
func (s *MemoryStore) SeedPair(_ context.Context, id string) (SeedPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pairs[id]
	if !ok {
		return SeedPair{}, ErrSeedPairNotFound
	}
	return *p, nil
}

// RecordRoll implements Store.
func (s *MemoryStore) RecordRoll(_ context.Context, id string, build RollFunc) (RollRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pairs[id]
	if !ok || p.Revealed() {
		return RollRecord{}, ErrSeedPairNotFound
	}
	rec, err := build(p.Nonce)
	if err != nil {
		return RollRecord{}, err
	}
	if _, ok := s.pairs[rec.SeedPairID]; !ok {
		return RollRecord{}, ErrSeedPairNotFound
	}
	s.rolls[rec.SeedPairID] = append(s.rolls[rec.SeedPairID], rec)
	p.Nonce++
	return rec, nil
}

// RevealSeedPair implements Store.
func (s *MemoryStore) RevealSeedPair(_ context.Context, id string, at time.Time) (SeedPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pairs[id]
	if !ok || p.Revealed() {
		return SeedPair{}, ErrSeedPairNotFound
	}
	revealedAt := at
	p.RevealedAt = &revealedAt
	delete(s.active, p.PlayerID)
	return *p, nil
}

// AppendRoll implements Store.
func (s *MemoryStore) AppendRoll(_ context.Context, r RollRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pairs[r.SeedPairID]; !ok {
		return ErrSeedPairNotFound
	}
	s.rolls[r.SeedPairID] = append(s.rolls[r.SeedPairID], r)
	return nil
}

// Rolls implements Store.
func (s *MemoryStore) Rolls(_ context.Context, seedPairID string) ([]RollRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RollRecord, len(s.rolls[seedPairID]))
	copy(out, s.rolls[seedPairID])
	sort.Slice(out, func(i, j int) bool { return out[i].Nonce < out[j].Nonce })
	return out, nil
}
