// Package sqlite provides a SQLite-backed session.Store for single-node
// deployments. The schema is applied when the store is opened.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/cory-johannsen/fairplay/internal/game/session"
)

const schema = `
CREATE TABLE IF NOT EXISTS seed_pairs (
    id          TEXT    PRIMARY KEY,
    player_id   TEXT    NOT NULL,
    server_seed TEXT    NOT NULL,
    commitment  TEXT    NOT NULL,
    client_seed TEXT    NOT NULL,
    nonce       INTEGER NOT NULL DEFAULT 0 CHECK (nonce >= 0),
    created_at  INTEGER NOT NULL,
    revealed_at INTEGER
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_seed_pairs_active_player
    ON seed_pairs (player_id) WHERE revealed_at IS NULL;

CREATE TABLE IF NOT EXISTS rolls (
    id           TEXT    PRIMARY KEY,
    seed_pair_id TEXT    NOT NULL REFERENCES seed_pairs (id) ON DELETE CASCADE,
    player_id    TEXT    NOT NULL,
    case_id      TEXT    NOT NULL,
    nonce        INTEGER NOT NULL CHECK (nonce >= 0),
    roll         REAL    NOT NULL CHECK (roll >= 0 AND roll <= 1),
    item         TEXT    NOT NULL,
    created_at   INTEGER NOT NULL,
    UNIQUE (seed_pair_id, nonce)
);
`

const seedPairColumns = `id, player_id, server_seed, commitment, client_seed, nonce, created_at, revealed_at`

// Store persists seed pairs and rolls in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMicros(value time.Time) int64 {
	return value.UTC().UnixMicro()
}

func fromMicros(value int64) time.Time {
	return time.UnixMicro(value).UTC()
}

// Open opens the SQLite database at path and applies the schema.
//
// Postcondition: The caller must Close the returned Store.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) +
		"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One connection serialises roll transactions and keeps them free of SQLITE_BUSY.
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// CreateSeedPair implements session.Store.
func (s *Store) CreateSeedPair(ctx context.Context, p session.SeedPair) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO seed_pairs (id, player_id, server_seed, commitment, client_seed, nonce, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.PlayerID, p.ServerSeed, p.Commitment, p.ClientSeed, int64(p.Nonce), toMicros(p.CreatedAt),
	)
	if err != nil {
		if hasCode(err, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE, sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY) {
			return session.ErrActiveSeedPairExists
		}
		return fmt.Errorf("create seed pair: %w", err)
	}
	return nil
}

// ActiveSeedPair implements session.Store.
func (s *Store) ActiveSeedPair(ctx context.Context, playerID string) (session.SeedPair, error) {
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT `+seedPairColumns+` FROM seed_pairs WHERE player_id = ? AND revealed_at IS NULL`,
		playerID,
	)
	p, err := scanSeedPair(row)
	if errors.Is(err, sql.ErrNoRows) {
		return session.SeedPair{}, session.ErrNoActiveSeedPair
	}
	if err != nil {
		return session.SeedPair{}, fmt.Errorf("get active seed pair: %w", err)
	}
	return p, nil
}

// SeedPair implements session.Store.
func (s *Store) SeedPair(ctx context.Context, id string) (session.SeedPair, error) {
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT `+seedPairColumns+` FROM seed_pairs WHERE id = ?`,
		id,
	)
	p, err := scanSeedPair(row)
	if errors.Is(err, sql.ErrNoRows) {
		return session.SeedPair{}, session.ErrSeedPairNotFound
	}
	if err != nil {
		return session.SeedPair{}, fmt.Errorf("get seed pair: %w", err)
	}
	return p, nil
}

// RecordRoll implements session.Store.
func (s *Store) RecordRoll(ctx context.Context, id string, build session.RollFunc) (rec session.RollRecord, err error) {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return session.RollRecord{}, fmt.Errorf("begin roll: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var nonce int64
	err = tx.QueryRowContext(ctx,
		`UPDATE seed_pairs SET nonce = nonce + 1
		 WHERE id = ? AND revealed_at IS NULL
		 RETURNING nonce - 1`,
		id,
	).Scan(&nonce)
	if errors.Is(err, sql.ErrNoRows) {
		return session.RollRecord{}, session.ErrSeedPairNotFound
	}
	if err != nil {
		return session.RollRecord{}, fmt.Errorf("advance nonce: %w", err)
	}
	rec, err = build(uint64(nonce))
	if err != nil {
		return session.RollRecord{}, err
	}
	if err = insertRoll(ctx, tx, rec); err != nil {
		return session.RollRecord{}, err
	}
	if err = tx.Commit(); err != nil {
		return session.RollRecord{}, fmt.Errorf("commit roll: %w", err)
	}
	return rec, nil
}

// RevealSeedPair implements session.Store.
func (s *Store) RevealSeedPair(ctx context.Context, id string, at time.Time) (session.SeedPair, error) {
	row := s.sqlDB.QueryRowContext(ctx,
		`UPDATE seed_pairs SET revealed_at = ?
		 WHERE id = ? AND revealed_at IS NULL
		 RETURNING `+seedPairColumns,
		toMicros(at), id,
	)
	p, err := scanSeedPair(row)
	if errors.Is(err, sql.ErrNoRows) {
		return session.SeedPair{}, session.ErrSeedPairNotFound
	}
	if err != nil {
		return session.SeedPair{}, fmt.Errorf("reveal seed pair: %w", err)
	}
	return p, nil
}

// AppendRoll implements session.Store.
func (s *Store) AppendRoll(ctx context.Context, r session.RollRecord) error {
	return insertRoll(ctx, s.sqlDB, r)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertRoll(ctx context.Context, db execer, r session.RollRecord) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO rolls (id, seed_pair_id, player_id, case_id, nonce, roll, item, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.SeedPairID, r.PlayerID, r.CaseID, int64(r.Nonce), r.Roll, r.Item, toMicros(r.CreatedAt),
	)
	if err != nil {
		if hasCode(err, sqlite3lib.SQLITE_CONSTRAINT_FOREIGNKEY) {
			return session.ErrSeedPairNotFound
		}
		return fmt.Errorf("append roll: %w", err)
	}
	return nil
}

// Rolls implements session.Store.
func (s *Store) Rolls(ctx context.Context, seedPairID string) ([]session.RollRecord, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, seed_pair_id, player_id, case_id, nonce, roll, item, created_at
		 FROM rolls WHERE seed_pair_id = ? ORDER BY nonce`,
		seedPairID,
	)
	if err != nil {
		return nil, fmt.Errorf("list rolls: %w", err)
	}
	defer rows.Close()

	out := []session.RollRecord{}
	for rows.Next() {
		var (
			r         session.RollRecord
			nonce     int64
			createdAt int64
		)
		if err := rows.Scan(&r.ID, &r.SeedPairID, &r.PlayerID, &r.CaseID, &nonce, &r.Roll, &r.Item, &createdAt); err != nil {
			return nil, fmt.Errorf("scan roll: %w", err)
		}
		r.Nonce = uint64(nonce)
		r.CreatedAt = fromMicros(createdAt)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rolls: %w", err)
	}
	return out, nil
}

func scanSeedPair(row *sql.Row) (session.SeedPair, error) {
	var (
		p          session.SeedPair
		nonce      int64
		createdAt  int64
		revealedAt sql.NullInt64
	)
	err := row.Scan(&p.ID, &p.PlayerID, &p.ServerSeed, &p.Commitment, &p.ClientSeed, &nonce, &createdAt, &revealedAt)
	if err != nil {
		return session.SeedPair{}, err
	}
	p.Nonce = uint64(nonce)
	p.CreatedAt = fromMicros(createdAt)
	if revealedAt.Valid {
		t := fromMicros(revealedAt.Int64)
		p.RevealedAt = &t
	}
	return p, nil
}

func hasCode(err error, codes ...int) bool {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	for _, c := range codes {
		if sqliteErr.Code() == c {
			return true
		}
	}
	return false
}

var _ session.Store = (*Store)(nil)
