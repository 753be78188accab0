package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/fairplay/internal/game/session"
)

const seedPairColumns = `id, player_id, server_seed, commitment, client_seed, nonce, created_at, revealed_at`

// SeedRepository implements session.Store on PostgreSQL.
// A roll reserves its nonce and writes its ledger row in one transaction.
type SeedRepository struct {
	db *pgxpool.Pool
}

// NewSeedRepository creates a SeedRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool with the
// seed_pairs and rolls tables migrated.
func NewSeedRepository(db *pgxpool.Pool) *SeedRepository {
	return &SeedRepository{db: db}
}

// CreateSeedPair inserts a new active pair.
//
// Postcondition: Returns session.ErrActiveSeedPairExists if the player
// already has an unrevealed pair.
func (r *SeedRepository) CreateSeedPair(ctx context.Context, p session.SeedPair) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO seed_pairs (id, player_id, server_seed, commitment, client_seed, nonce, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.PlayerID, p.ServerSeed, p.Commitment, p.ClientSeed, int64(p.Nonce), p.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return session.ErrActiveSeedPairExists
		}
		return fmt.Errorf("inserting seed pair: %w", err)
	}
	return nil
}

// ActiveSeedPair returns the player's unrevealed pair.
func (r *SeedRepository) ActiveSeedPair(ctx context.Context, playerID string) (session.SeedPair, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+seedPairColumns+` FROM seed_pairs
		 WHERE player_id = $1 AND revealed_at IS NULL`,
		playerID,
	)
	p, err := scanSeedPair(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return session.SeedPair{}, session.ErrNoActiveSeedPair
	}
	if err != nil {
		return session.SeedPair{}, fmt.Errorf("querying active seed pair: %w", err)
	}
	return p, nil
}

// SeedPair returns the pair with the given ID.
func (r *SeedRepository) SeedPair(ctx context.Context, id string) (session.SeedPair, error) {
	key, ok := parseID(id)
	if !ok {
		return session.SeedPair{}, session.ErrSeedPairNotFound
	}
	row := r.db.QueryRow(ctx,
		`SELECT `+seedPairColumns+` FROM seed_pairs WHERE id = $1`,
		key,
	)
	p, err := scanSeedPair(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return session.SeedPair{}, session.ErrSeedPairNotFound
	}
	if err != nil {
		return session.SeedPair{}, fmt.Errorf("querying seed pair: %w", err)
	}
	return p, nil
}

// RecordRoll reserves the pair's current nonce, builds the record and inserts
// it in one transaction. The nonce UPDATE holds the pair's row lock until
// commit, so concurrent rollers on one pair are serialised.
//
// Postcondition: Returns session.ErrSeedPairNotFound for missing or
// revealed pairs. On any error the nonce is left unchanged.
func (r *SeedRepository) RecordRoll(ctx context.Context, id string, build session.RollFunc) (session.RollRecord, error) {
	key, ok := parseID(id)
	if !ok {
		return session.RollRecord{}, session.ErrSeedPairNotFound
	}
	var rec session.RollRecord
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		var nonce int64
		err := tx.QueryRow(ctx,
			`UPDATE seed_pairs SET nonce = nonce + 1
			 WHERE id = $1 AND revealed_at IS NULL
			 RETURNING nonce - 1`,
			key,
		).Scan(&nonce)
		if errors.Is(err, pgx.ErrNoRows) {
			return session.ErrSeedPairNotFound
		}
		if err != nil {
			return fmt.Errorf("advancing nonce: %w", err)
		}
		rec, err = build(uint64(nonce))
		if err != nil {
			return err
		}
		return insertRoll(ctx, tx, rec)
	})
	if err != nil {
		return session.RollRecord{}, err
	}
	return rec, nil
}

// RevealSeedPair marks the pair revealed and returns it with its server seed.
//
// Postcondition: Returns session.ErrSeedPairNotFound for missing or
// already revealed pairs.
func (r *SeedRepository) RevealSeedPair(ctx context.Context, id string, at time.Time) (session.SeedPair, error) {
	key, ok := parseID(id)
	if !ok {
		return session.SeedPair{}, session.ErrSeedPairNotFound
	}
	row := r.db.QueryRow(ctx,
		`UPDATE seed_pairs SET revealed_at = $2
		 WHERE id = $1 AND revealed_at IS NULL
		 RETURNING `+seedPairColumns,
		key, at,
	)
	p, err := scanSeedPair(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return session.SeedPair{}, session.ErrSeedPairNotFound
	}
	if err != nil {
		return session.SeedPair{}, fmt.Errorf("revealing seed pair: %w", err)
	}
	return p, nil
}

// AppendRoll adds a record to the ledger.
//
// Postcondition: Returns session.ErrSeedPairNotFound if the pair does not exist.
func (r *SeedRepository) AppendRoll(ctx context.Context, rec session.RollRecord) error {
	if _, ok := parseID(rec.SeedPairID); !ok {
		return session.ErrSeedPairNotFound
	}
	return insertRoll(ctx, r.db, rec)
}

type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

func insertRoll(ctx context.Context, db execer, rec session.RollRecord) error {
	_, err := db.Exec(ctx,
		`INSERT INTO rolls (id, seed_pair_id, player_id, case_id, nonce, roll, item, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.ID, rec.SeedPairID, rec.PlayerID, rec.CaseID, int64(rec.Nonce), rec.Roll, rec.Item, rec.CreatedAt,
	)
	if err != nil {
		if isForeignKeyError(err) {
			return session.ErrSeedPairNotFound
		}
		return fmt.Errorf("inserting roll: %w", err)
	}
	return nil
}

// Rolls returns the ledger for a pair ordered by nonce.
func (r *SeedRepository) Rolls(ctx context.Context, seedPairID string) ([]session.RollRecord, error) {
	key, ok := parseID(seedPairID)
	if !ok {
		return []session.RollRecord{}, nil
	}
	rows, err := r.db.Query(ctx,
		`SELECT id, seed_pair_id, player_id, case_id, nonce, roll, item, created_at
		 FROM rolls WHERE seed_pair_id = $1 ORDER BY nonce`,
		key,
	)
	if err != nil {
		return nil, fmt.Errorf("querying rolls: %w", err)
	}
	defer rows.Close()

	out := []session.RollRecord{}
	for rows.Next() {
		var (
			rec   session.RollRecord
			nonce int64
		)
		if err := rows.Scan(&rec.ID, &rec.SeedPairID, &rec.PlayerID, &rec.CaseID, &nonce, &rec.Roll, &rec.Item, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning roll: %w", err)
		}
		rec.Nonce = uint64(nonce)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rolls: %w", err)
	}
	return out, nil
}

// parseID reports whether id is a UUID; other strings cannot name a row.
func parseID(id string) (uuid.UUID, bool) {
	key, err := uuid.Parse(id)
	return key, err == nil
}

func scanSeedPair(row pgx.Row) (session.SeedPair, error) {
	var (
		p     session.SeedPair
		nonce int64
	)
	err := row.Scan(&p.ID, &p.PlayerID, &p.ServerSeed, &p.Commitment, &p.ClientSeed, &nonce, &p.CreatedAt, &p.RevealedAt)
	if err != nil {
		return session.SeedPair{}, err
	}
	p.Nonce = uint64(nonce)
	return p, nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	return sqlState(err) == "23505"
}

// isForeignKeyError checks if a pgx error is a foreign key violation.
func isForeignKeyError(err error) bool {
	return sqlState(err) == "23503"
}

func sqlState(err error) string {
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return pgErr.SQLState()
	}
	return ""
}
