package testutil

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/fairplay/internal/game/fairness"
	"github.com/cory-johannsen/fairplay/internal/game/session"
)

// NewSeedPair returns an unrevealed pair for playerID with fresh seeds.
func NewSeedPair(playerID string) session.SeedPair {
	serverSeed := fairness.GenerateServerSeed(nil)
	return session.SeedPair{
		ID:         uuid.NewString(),
		PlayerID:   playerID,
		ServerSeed: serverSeed,
		Commitment: fairness.Commit(serverSeed),
		ClientSeed: fairness.GenerateClientSeed(nil),
		CreatedAt:  time.Now().UTC().Truncate(time.Microsecond),
	}
}

// RecordRoll records a roll for p at the next nonce through s.RecordRoll.
func RecordRoll(ctx context.Context, s session.Store, p session.SeedPair) (session.RollRecord, error) {
	return s.RecordRoll(ctx, p.ID, func(nonce uint64) (session.RollRecord, error) {
		return session.RollRecord{
			ID:         uuid.NewString(),
			SeedPairID: p.ID,
			PlayerID:   p.PlayerID,
			CaseID:     "starter",
			Nonce:      nonce,
			Roll:       fairness.CalculateRoll(p.ServerSeed, p.ClientSeed, nonce),
			Item:       "sticker",
			CreatedAt:  time.Now().UTC(),
		}, nil
	})
}

// RunStoreSuite exercises the session.Store contract against stores built by
// newStore. Every subtest receives a fresh store.
//
// Precondition: newStore must return an empty, ready-to-use store.
func RunStoreSuite(t *testing.T, newStore func(t *testing.T) session.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("create and load active pair", func(t *testing.T) {
		s := newStore(t)
		p := NewSeedPair("alice")
		require.NoError(t, s.CreateSeedPair(ctx, p))

		got, err := s.ActiveSeedPair(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, p.ID, got.ID)
		assert.Equal(t, p.ServerSeed, got.ServerSeed)
		assert.Equal(t, p.Commitment, got.Commitment)
		assert.Equal(t, p.ClientSeed, got.ClientSeed)
		assert.Equal(t, uint64(0), got.Nonce)
		assert.False(t, got.Revealed())
		assert.WithinDuration(t, p.CreatedAt, got.CreatedAt, time.Millisecond)

		byID, err := s.SeedPair(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, p.ID, byID.ID)
	})

	t.Run("missing pairs", func(t *testing.T) {
		s := newStore(t)
		_, err := s.ActiveSeedPair(ctx, "nobody")
		assert.ErrorIs(t, err, session.ErrNoActiveSeedPair)
		_, err = s.SeedPair(ctx, uuid.NewString())
		assert.ErrorIs(t, err, session.ErrSeedPairNotFound)
		_, err = RecordRoll(ctx, s, NewSeedPair("nobody"))
		assert.ErrorIs(t, err, session.ErrSeedPairNotFound)
		_, err = s.RevealSeedPair(ctx, uuid.NewString(), time.Now())
		assert.ErrorIs(t, err, session.ErrSeedPairNotFound)
	})

	t.Run("one active pair per player", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.CreateSeedPair(ctx, NewSeedPair("alice")))
		err := s.CreateSeedPair(ctx, NewSeedPair("alice"))
		assert.ErrorIs(t, err, session.ErrActiveSeedPairExists)
		assert.NoError(t, s.CreateSeedPair(ctx, NewSeedPair("bob")))
	})

	t.Run("record roll", func(t *testing.T) {
		s := newStore(t)
		p := NewSeedPair("alice")
		require.NoError(t, s.CreateSeedPair(ctx, p))
		for want := uint64(0); want < 5; want++ {
			got, err := RecordRoll(ctx, s, p)
			require.NoError(t, err)
			assert.Equal(t, want, got.Nonce)
		}
		got, err := s.SeedPair(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, uint64(5), got.Nonce)

		rolls, err := s.Rolls(ctx, p.ID)
		require.NoError(t, err)
		assert.Len(t, rolls, 5)
	})

	t.Run("failed roll consumes no nonce", func(t *testing.T) {
		s := newStore(t)
		p := NewSeedPair("alice")
		require.NoError(t, s.CreateSeedPair(ctx, p))
		_, err := RecordRoll(ctx, s, p)
		require.NoError(t, err)

		boom := errors.New("boom")
		_, err = s.RecordRoll(ctx, p.ID, func(uint64) (session.RollRecord, error) {
			return session.RollRecord{}, boom
		})
		assert.ErrorIs(t, err, boom)

		// A record the ledger rejects rolls the nonce back as well.
		_, err = s.RecordRoll(ctx, p.ID, func(nonce uint64) (session.RollRecord, error) {
			return session.RollRecord{
				ID:         uuid.NewString(),
				SeedPairID: uuid.NewString(),
				PlayerID:   "alice",
				CaseID:     "starter",
				Nonce:      nonce,
				Roll:       0.5,
				Item:       "sticker",
				CreatedAt:  time.Now().UTC(),
			}, nil
		})
		assert.Error(t, err)

		got, err := s.SeedPair(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), got.Nonce)

		next, err := RecordRoll(ctx, s, p)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), next.Nonce, "the ledger has no gap")
		rolls, err := s.Rolls(ctx, p.ID)
		require.NoError(t, err)
		require.Len(t, rolls, 2)
		assert.Equal(t, uint64(0), rolls[0].Nonce)
		assert.Equal(t, uint64(1), rolls[1].Nonce)
	})

	t.Run("record roll concurrently", func(t *testing.T) {
		s := newStore(t)
		p := NewSeedPair("alice")
		require.NoError(t, s.CreateSeedPair(ctx, p))

		const n = 32
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			seen = make(map[uint64]bool)
		)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				rec, err := RecordRoll(ctx, s, p)
				assert.NoError(t, err)
				mu.Lock()
				seen[rec.Nonce] = true
				mu.Unlock()
			}()
		}
		wg.Wait()
		assert.Len(t, seen, n, "every caller must receive a distinct nonce")
		for i := uint64(0); i < n; i++ {
			assert.True(t, seen[i], "nonce %d missing", i)
		}
		rolls, err := s.Rolls(ctx, p.ID)
		require.NoError(t, err)
		assert.Len(t, rolls, n)
	})

	t.Run("reveal", func(t *testing.T) {
		s := newStore(t)
		p := NewSeedPair("alice")
		require.NoError(t, s.CreateSeedPair(ctx, p))
		_, err := RecordRoll(ctx, s, p)
		require.NoError(t, err)

		at := time.Now().UTC().Truncate(time.Microsecond)
		revealed, err := s.RevealSeedPair(ctx, p.ID, at)
		require.NoError(t, err)
		require.True(t, revealed.Revealed())
		assert.WithinDuration(t, at, *revealed.RevealedAt, time.Millisecond)
		assert.Equal(t, p.ServerSeed, revealed.ServerSeed)
		assert.Equal(t, uint64(1), revealed.Nonce)

		_, err = s.ActiveSeedPair(ctx, "alice")
		assert.ErrorIs(t, err, session.ErrNoActiveSeedPair)
		_, err = RecordRoll(ctx, s, p)
		assert.ErrorIs(t, err, session.ErrSeedPairNotFound, "revealed pairs cannot roll")
		_, err = s.RevealSeedPair(ctx, p.ID, at)
		assert.ErrorIs(t, err, session.ErrSeedPairNotFound, "pairs are revealed once")

		assert.NoError(t, s.CreateSeedPair(ctx, NewSeedPair("alice")), "a new pair may follow a reveal")
	})

	t.Run("roll ledger", func(t *testing.T) {
		s := newStore(t)
		p := NewSeedPair("alice")
		require.NoError(t, s.CreateSeedPair(ctx, p))

		for _, nonce := range []uint64{2, 0, 1} {
			require.NoError(t, s.AppendRoll(ctx, session.RollRecord{
				ID:         uuid.NewString(),
				SeedPairID: p.ID,
				PlayerID:   "alice",
				CaseID:     "starter",
				Nonce:      nonce,
				Roll:       fairness.CalculateRoll(p.ServerSeed, p.ClientSeed, nonce),
				Item:       "sticker",
				CreatedAt:  time.Now().UTC(),
			}))
		}

		rolls, err := s.Rolls(ctx, p.ID)
		require.NoError(t, err)
		require.Len(t, rolls, 3)
		for i, r := range rolls {
			assert.Equal(t, uint64(i), r.Nonce)
			assert.Equal(t, fairness.CalculateRoll(p.ServerSeed, p.ClientSeed, r.Nonce), r.Roll)
			assert.Equal(t, "starter", r.CaseID)
			assert.Equal(t, "sticker", r.Item)
		}

		empty, err := s.Rolls(ctx, uuid.NewString())
		require.NoError(t, err)
		assert.Empty(t, empty)
	})
}
