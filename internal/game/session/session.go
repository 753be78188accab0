// Package session tracks per-player seed pairs: it commits to a server seed
// before any roll, advances the nonce once per roll, records every roll and
// reveals the server seed on rotation so past rolls can be verified.
package session

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrInvalidPlayer is returned when an operation is called without a player ID.
	ErrInvalidPlayer = errors.New("player id must not be empty")
	// ErrInvalidClientSeed is returned when an explicit client seed is empty.
	ErrInvalidClientSeed = errors.New("client seed must not be empty")
	// ErrNoActiveSeedPair is returned when a player has no unrevealed seed pair.
	ErrNoActiveSeedPair = errors.New("no active seed pair")
	// ErrActiveSeedPairExists is returned when creating a second active pair for a player.
	ErrActiveSeedPairExists = errors.New("active seed pair already exists")
	// ErrSeedPairNotFound is returned when a seed pair lookup yields no results,
	// or when a revealed pair is used where an active one is required.
	ErrSeedPairNotFound = errors.New("seed pair not found")
	// ErrUnknownCase is returned when rolling a case that is not registered.
	ErrUnknownCase = errors.New("unknown case")
	// ErrNotRevealed is returned when auditing a seed pair that is still active.
	ErrNotRevealed = errors.New("seed pair not revealed")
)

// SeedPair is a committed server seed paired with a client seed.
//
// Invariant: Commitment == fairness.Commit(ServerSeed); Nonce is the next
// nonce to use and only ever increases while RevealedAt is nil.
type SeedPair struct {
	ID         string
	PlayerID   string
	ServerSeed string
	Commitment string
	ClientSeed string
	Nonce      uint64
	CreatedAt  time.Time
	RevealedAt *time.Time
}

// Revealed reports whether the server seed has been disclosed.
func (p SeedPair) Revealed() bool {
	return p.RevealedAt != nil
}

// Redacted returns a copy of p that is safe to hand to a player: the server
// seed is blanked unless the pair has been revealed.
func (p SeedPair) Redacted() SeedPair {
	if !p.Revealed() {
		p.ServerSeed = ""
	}
	return p
}

// RollRecord is one entry in the append-only roll ledger.
type RollRecord struct {
	ID         string
	SeedPairID string
	PlayerID   string
	CaseID     string
	Nonce      uint64
	Roll       float64
	Item       string
	CreatedAt  time.Time
}

// RollFunc builds the ledger record for a reserved nonce. It runs while the
// nonce is held and must not block.
type RollFunc func(nonce uint64) (RollRecord, error)

// Store persists seed pairs and the roll ledger.
//
// Implementations MUST be safe for concurrent use. RecordRoll MUST be atomic:
// concurrent callers on the same pair receive distinct, consecutive nonces, and
// a nonce is consumed only together with its ledger entry.
type Store interface {
	// CreateSeedPair inserts a new active pair.
	// Returns ErrActiveSeedPairExists if the player already has one.
	CreateSeedPair(ctx context.Context, p SeedPair) error
	// ActiveSeedPair returns the player's unrevealed pair or ErrNoActiveSeedPair.
	ActiveSeedPair(ctx context.Context, playerID string) (SeedPair, error)
	// SeedPair returns the pair with the given ID or ErrSeedPairNotFound.
	SeedPair(ctx context.Context, id string) (SeedPair, error)
	// RecordRoll reserves the pair's current nonce, builds the ledger record
	// with build and appends it, all in one step. Nothing is written when
	// build or the append fails.
	// Returns ErrSeedPairNotFound if the pair is missing or revealed.
	RecordRoll(ctx context.Context, id string, build RollFunc) (RollRecord, error)
	// RevealSeedPair marks the pair revealed at the given time and returns it.
	// Returns ErrSeedPairNotFound if the pair is missing or already revealed.
	RevealSeedPair(ctx context.Context, id string, at time.Time) (SeedPair, error)
	// AppendRoll adds a record to the ledger without touching the pair's nonce.
	// It is used to import ledgers; live rolls go through RecordRoll.
	AppendRoll(ctx context.Context, r RollRecord) error
	// Rolls returns the ledger for a pair ordered by nonce.
	Rolls(ctx context.Context, seedPairID string) ([]RollRecord, error)
}
