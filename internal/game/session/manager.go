package session

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/fairplay/internal/game/fairness"
	"github.com/cory-johannsen/fairplay/internal/game/lootcase"
)

// CaseLookup resolves a case ID to its definition.
type CaseLookup interface {
	Case(id string) (*lootcase.Case, bool)
}

// RollOutcome is the result of Manager.Roll.
type RollOutcome struct {
	Record     RollRecord
	Result     fairness.RollResult
	Commitment string
}

const lockStripes = 64

// Manager owns the seed pair lifecycle for all players.
// All methods are safe for concurrent use; operations for one player are
// serialised so rotation never interleaves with a roll.
type Manager struct {
	store  Store
	cases  CaseLookup
	engine *fairness.Engine
	logger *zap.Logger
	now    func() time.Time
	locks  [lockStripes]sync.Mutex
}

// NewManager creates a Manager.
//
// Precondition: store, cases, engine and logger must be non-nil.
func NewManager(store Store, cases CaseLookup, engine *fairness.Engine, logger *zap.Logger) *Manager {
	return &Manager{
		store:  store,
		cases:  cases,
		engine: engine,
		logger: logger,
		now:    time.Now,
	}
}

func (m *Manager) lock(playerID string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(playerID))
	mu := &m.locks[h.Sum32()%lockStripes]
	mu.Lock()
	return mu.Unlock
}

// Open returns the player's active seed pair, creating one when none exists.
// clientSeed is only used when a pair is created; empty means generate one.
//
// Postcondition: Returns the redacted active pair.
func (m *Manager) Open(ctx context.Context, playerID, clientSeed string) (SeedPair, error) {
	if playerID == "" {
		return SeedPair{}, ErrInvalidPlayer
	}
	unlock := m.lock(playerID)
	defer unlock()

	pair, err := m.store.ActiveSeedPair(ctx, playerID)
	switch {
	case err == nil:
		return pair.Redacted(), nil
	case !errors.Is(err, ErrNoActiveSeedPair):
		return SeedPair{}, fmt.Errorf("loading active seed pair: %w", err)
	}

	pair, err = m.create(ctx, playerID, clientSeed)
	if err != nil {
		return SeedPair{}, err
	}
	return pair.Redacted(), nil
}

// create must be called with the player's lock held.
func (m *Manager) create(ctx context.Context, playerID, clientSeed string) (SeedPair, error) {
	if clientSeed == "" {
		clientSeed = m.engine.ClientSeed()
	}
	serverSeed, commitment := m.engine.ServerSeed()
	pair := SeedPair{
		ID:         uuid.NewString(),
		PlayerID:   playerID,
		ServerSeed: serverSeed,
		Commitment: commitment,
		ClientSeed: clientSeed,
		Nonce:      0,
		CreatedAt:  m.now().UTC(),
	}
	if err := m.store.CreateSeedPair(ctx, pair); err != nil {
		return SeedPair{}, fmt.Errorf("creating seed pair: %w", err)
	}
	m.logger.Info("seed pair opened",
		zap.String("player_id", playerID),
		zap.String("seed_pair_id", pair.ID),
		zap.String("commitment", commitment),
	)
	return pair, nil
}

// Roll opens caseID for the player with the next nonce of the active pair.
//
// Postcondition: On success the nonce used is recorded in the ledger and the
// pair's nonce has advanced by one; on failure neither has changed. Returns
// ErrUnknownCase or ErrNoActiveSeedPair when the preconditions for a roll do
// not hold.
func (m *Manager) Roll(ctx context.Context, playerID, caseID string) (RollOutcome, error) {
	if playerID == "" {
		return RollOutcome{}, ErrInvalidPlayer
	}
	c, ok := m.cases.Case(caseID)
	if !ok {
		return RollOutcome{}, fmt.Errorf("%w: %q", ErrUnknownCase, caseID)
	}

	unlock := m.lock(playerID)
	defer unlock()

	pair, err := m.store.ActiveSeedPair(ctx, playerID)
	if err != nil {
		return RollOutcome{}, err
	}
	var draw fairness.Draw
	rec, err := m.store.RecordRoll(ctx, pair.ID, func(nonce uint64) (RollRecord, error) {
		d, err := m.engine.Roll(pair.ServerSeed, pair.ClientSeed, nonce, c.Table())
		if err != nil {
			return RollRecord{}, fmt.Errorf("rolling case %q: %w", caseID, err)
		}
		draw = d
		return RollRecord{
			ID:         uuid.NewString(),
			SeedPairID: pair.ID,
			PlayerID:   playerID,
			CaseID:     caseID,
			Nonce:      nonce,
			Roll:       d.Result.Value,
			Item:       d.Outcome.Item,
			CreatedAt:  m.now().UTC(),
		}, nil
	})
	if err != nil {
		return RollOutcome{}, fmt.Errorf("recording roll: %w", err)
	}
	return RollOutcome{Record: rec, Result: draw.Result, Commitment: pair.Commitment}, nil
}

// Rotate reveals the player's active pair and opens a new one with
// clientSeed (generated when empty). Changing the client seed always rotates.
//
// Postcondition: revealed carries its server seed; next is redacted.
// Returns ErrNoActiveSeedPair if there is nothing to reveal.
func (m *Manager) Rotate(ctx context.Context, playerID, clientSeed string) (revealed, next SeedPair, err error) {
	if playerID == "" {
		return SeedPair{}, SeedPair{}, ErrInvalidPlayer
	}
	unlock := m.lock(playerID)
	defer unlock()

	active, err := m.store.ActiveSeedPair(ctx, playerID)
	if err != nil {
		return SeedPair{}, SeedPair{}, err
	}
	revealed, err = m.store.RevealSeedPair(ctx, active.ID, m.now().UTC())
	if err != nil {
		return SeedPair{}, SeedPair{}, fmt.Errorf("revealing seed pair: %w", err)
	}
	m.logger.Info("seed pair revealed",
		zap.String("player_id", playerID),
		zap.String("seed_pair_id", revealed.ID),
		zap.Uint64("rolls", revealed.Nonce),
	)

	next, err = m.create(ctx, playerID, clientSeed)
	if err != nil {
		return SeedPair{}, SeedPair{}, err
	}
	return revealed, next.Redacted(), nil
}

// SetClientSeed replaces the player's client seed. The active pair is
// revealed and a new pair is opened with clientSeed, so a player can never
// pick a client seed after seeing the commitment it will be paired with.
//
// Precondition: clientSeed must be non-empty.
func (m *Manager) SetClientSeed(ctx context.Context, playerID, clientSeed string) (revealed, next SeedPair, err error) {
	if clientSeed == "" {
		return SeedPair{}, SeedPair{}, ErrInvalidClientSeed
	}
	return m.Rotate(ctx, playerID, clientSeed)
}

// SeedPair returns the pair with the given ID, redacted unless revealed.
func (m *Manager) SeedPair(ctx context.Context, id string) (SeedPair, error) {
	p, err := m.store.SeedPair(ctx, id)
	if err != nil {
		return SeedPair{}, err
	}
	return p.Redacted(), nil
}

// History returns the roll ledger for a pair ordered by nonce.
func (m *Manager) History(ctx context.Context, seedPairID string) ([]RollRecord, error) {
	if _, err := m.store.SeedPair(ctx, seedPairID); err != nil {
		return nil, err
	}
	return m.store.Rolls(ctx, seedPairID)
}

// Audit re-verifies every recorded roll of a revealed pair against its
// commitment and the current case tables.
//
// Postcondition: Returns the number of rolls verified, or the first
// verification failure. Returns ErrNotRevealed for an active pair.
func (m *Manager) Audit(ctx context.Context, seedPairID string) (int, error) {
	pair, err := m.store.SeedPair(ctx, seedPairID)
	if err != nil {
		return 0, err
	}
	if !pair.Revealed() {
		return 0, ErrNotRevealed
	}
	rolls, err := m.store.Rolls(ctx, seedPairID)
	if err != nil {
		return 0, fmt.Errorf("loading rolls: %w", err)
	}
	for i, r := range rolls {
		c, ok := m.cases.Case(r.CaseID)
		if !ok {
			return i, fmt.Errorf("roll %d: %w: %q", r.Nonce, ErrUnknownCase, r.CaseID)
		}
		_, err := fairness.Verify(fairness.Proof{
			ServerSeed: pair.ServerSeed,
			Commitment: pair.Commitment,
			ClientSeed: pair.ClientSeed,
			Nonce:      r.Nonce,
			Roll:       r.Roll,
			Item:       r.Item,
		}, c.Table())
		if err != nil {
			return i, fmt.Errorf("roll %d: %w", r.Nonce, err)
		}
	}
	return len(rolls), nil
}
