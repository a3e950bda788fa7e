// Package postgres implements the storage port on database/sql with lib/pq.
//
// The schema is bootstrapped on open. Identity-set versioning uses a single
// data_version row: every identity write refreshes its token, and
// ApplyChanges locks the row, compares tokens, and applies the whole batch in
// one transaction.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	identity "notto/internal/identity/models"
	lotto "notto/internal/lotto/models"
	prompt "notto/internal/prompt/models"
	"notto/pkg/platform/sentinel"
)

const schema = `
CREATE TABLE IF NOT EXISTS identities (
	id            UUID PRIMARY KEY,
	name          TEXT NOT NULL,
	status        TEXT NOT NULL,
	fixed_numbers INTEGER[],
	reject_reason TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS identities_name_key ON identities (lower(name));

CREATE TABLE IF NOT EXISTS rounds (
	id              UUID PRIMARY KEY,
	round_number    INTEGER NOT NULL UNIQUE,
	draw_date       TEXT NOT NULL,
	winning_numbers INTEGER[],
	bonus_number    INTEGER,
	created_at      TIMESTAMPTZ NOT NULL,
	winning_set_at  TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS identity_rounds (
	id            UUID PRIMARY KEY,
	identity_id   UUID NOT NULL,
	name          TEXT NOT NULL,
	round_number  INTEGER NOT NULL,
	numbers       INTEGER[] NOT NULL,
	matched_count INTEGER,
	created_at    TIMESTAMPTZ NOT NULL,
	UNIQUE (identity_id, round_number)
);

CREATE TABLE IF NOT EXISTS prompts (
	id         UUID PRIMARY KEY,
	type       TEXT NOT NULL,
	content    TEXT NOT NULL,
	is_active  BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS data_version (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	version    UUID NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
`

// Store is the relational backend.
type Store struct {
	db *sql.DB
}

// Open connects, verifies the connection, and bootstraps the schema.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("bootstrap schema: %w", err)
	}
	if _, err := db.ExecContext(ctx,
		`INSERT INTO data_version (id, version, updated_at) VALUES (1, $1, $2)
		 ON CONFLICT (id) DO NOTHING`,
		uuid.NewString(), time.Now().UTC()); err != nil {
		db.Close()
		return nil, fmt.Errorf("seed version row: %w", err)
	}
	return &Store{db: db}, nil
}

// NewFromDB wraps an existing connection pool; the caller owns its lifecycle.
// The schema must already exist.
func NewFromDB(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func toInt64(ns []int) pq.Int64Array {
	out := make(pq.Int64Array, len(ns))
	for i, n := range ns {
		out[i] = int64(n)
	}
	return out
}

func fromInt64(ns pq.Int64Array) []int {
	if len(ns) == 0 {
		return nil
	}
	out := make([]int, len(ns))
	for i, n := range ns {
		out[i] = int(n)
	}
	return out
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func bumpVersion(ctx context.Context, ex execer) error {
	_, err := ex.ExecContext(ctx,
		`UPDATE data_version SET version = $1, updated_at = $2 WHERE id = 1`,
		uuid.NewString(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("bump version: %w", err)
	}
	return nil
}

const upsertIdentitySQL = `
INSERT INTO identities (id, name, status, fixed_numbers, reject_reason, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE SET
	status        = EXCLUDED.status,
	fixed_numbers = EXCLUDED.fixed_numbers,
	reject_reason = EXCLUDED.reject_reason,
	updated_at    = EXCLUDED.updated_at`

func (s *Store) SaveIdentity(ctx context.Context, id identity.Identity) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, upsertIdentitySQL,
		id.ID, id.Name, id.Status, toInt64(id.FixedNumbers), id.RejectReason, id.CreatedAt, id.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("save identity: %w", err)
	}
	if err := bumpVersion(ctx, tx); err != nil {
		return err
	}
	return tx.Commit()
}

const selectIdentitySQL = `
SELECT id, name, status, fixed_numbers, reject_reason, created_at, updated_at
FROM identities`

func scanIdentity(row interface{ Scan(...any) error }) (identity.Identity, error) {
	var id identity.Identity
	var numbers pq.Int64Array
	if err := row.Scan(&id.ID, &id.Name, &id.Status, &numbers, &id.RejectReason, &id.CreatedAt, &id.UpdatedAt); err != nil {
		return identity.Identity{}, err
	}
	id.FixedNumbers = fromInt64(numbers)
	return id, nil
}

func (s *Store) FindIdentityByName(ctx context.Context, name string) (identity.Identity, error) {
	row := s.db.QueryRowContext(ctx, selectIdentitySQL+` WHERE lower(name) = lower($1)`, name)
	id, err := scanIdentity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return identity.Identity{}, sentinel.ErrNotFound
	}
	if err != nil {
		return identity.Identity{}, fmt.Errorf("find identity: %w", err)
	}
	return id, nil
}

func (s *Store) listIdentities(ctx context.Context, query string, args ...any) ([]identity.Identity, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	defer rows.Close()

	var out []identity.Identity
	for rows.Next() {
		id, err := scanIdentity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *Store) ListIdentities(ctx context.Context) ([]identity.Identity, error) {
	return s.listIdentities(ctx, selectIdentitySQL+` ORDER BY created_at, name`)
}

func (s *Store) ListIdentitiesByStatus(ctx context.Context, status identity.Status) ([]identity.Identity, error) {
	return s.listIdentities(ctx, selectIdentitySQL+` WHERE status = $1 ORDER BY created_at, name`, status)
}

func (s *Store) CreateRound(ctx context.Context, r lotto.Round) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rounds (id, round_number, draw_date, winning_numbers, bonus_number, created_at, winning_set_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.ID, r.RoundNumber, r.DrawDate, toInt64(r.WinningNumbers), r.BonusNumber, r.CreatedAt, r.WinningSetAt)
	if isUniqueViolation(err) {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("create round: %w", err)
	}
	return nil
}

const selectRoundSQL = `
SELECT id, round_number, draw_date, winning_numbers, bonus_number, created_at, winning_set_at
FROM rounds`

func scanRound(row interface{ Scan(...any) error }) (lotto.Round, error) {
	var r lotto.Round
	var numbers pq.Int64Array
	if err := row.Scan(&r.ID, &r.RoundNumber, &r.DrawDate, &numbers, &r.BonusNumber, &r.CreatedAt, &r.WinningSetAt); err != nil {
		return lotto.Round{}, err
	}
	r.WinningNumbers = fromInt64(numbers)
	return r, nil
}

func (s *Store) FindRound(ctx context.Context, roundNumber int) (lotto.Round, error) {
	row := s.db.QueryRowContext(ctx, selectRoundSQL+` WHERE round_number = $1`, roundNumber)
	r, err := scanRound(row)
	if errors.Is(err, sql.ErrNoRows) {
		return lotto.Round{}, sentinel.ErrNotFound
	}
	if err != nil {
		return lotto.Round{}, fmt.Errorf("find round: %w", err)
	}
	return r, nil
}

func (s *Store) LatestRound(ctx context.Context) (lotto.Round, error) {
	row := s.db.QueryRowContext(ctx, selectRoundSQL+` ORDER BY round_number DESC LIMIT 1`)
	r, err := scanRound(row)
	if errors.Is(err, sql.ErrNoRows) {
		return lotto.Round{}, sentinel.ErrNotFound
	}
	if err != nil {
		return lotto.Round{}, fmt.Errorf("latest round: %w", err)
	}
	return r, nil
}

func (s *Store) UpdateRound(ctx context.Context, r lotto.Round) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE rounds SET draw_date = $2, winning_numbers = $3, bonus_number = $4, winning_set_at = $5
		 WHERE round_number = $1`,
		r.RoundNumber, r.DrawDate, toInt64(r.WinningNumbers), r.BonusNumber, r.WinningSetAt)
	if err != nil {
		return fmt.Errorf("update round: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update round: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Store) UpsertIdentityRound(ctx context.Context, row lotto.IdentityRound) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO identity_rounds (id, identity_id, name, round_number, numbers, matched_count, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (identity_id, round_number) DO UPDATE SET
			name          = EXCLUDED.name,
			numbers       = EXCLUDED.numbers,
			matched_count = EXCLUDED.matched_count`,
		row.ID, row.IdentityID, row.Name, row.RoundNumber, toInt64(row.Numbers), row.MatchedCount, row.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert identity round: %w", err)
	}
	return nil
}

func (s *Store) ListIdentityRounds(ctx context.Context, roundNumber int) ([]lotto.IdentityRound, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, identity_id, name, round_number, numbers, matched_count, created_at
		 FROM identity_rounds WHERE round_number = $1 ORDER BY name`,
		roundNumber)
	if err != nil {
		return nil, fmt.Errorf("list identity rounds: %w", err)
	}
	defer rows.Close()

	var out []lotto.IdentityRound
	for rows.Next() {
		var row lotto.IdentityRound
		var numbers pq.Int64Array
		if err := rows.Scan(&row.ID, &row.IdentityID, &row.Name, &row.RoundNumber, &numbers, &row.MatchedCount, &row.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan identity round: %w", err)
		}
		row.Numbers = fromInt64(numbers)
		out = append(out, row)
	}
	return out, rows.Err()
}

func (s *Store) SavePrompt(ctx context.Context, p prompt.Prompt) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if p.IsActive {
		if _, err := tx.ExecContext(ctx,
			`UPDATE prompts SET is_active = FALSE WHERE type = $1 AND id <> $2`, p.Type, p.ID); err != nil {
			return fmt.Errorf("deactivate prompts: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO prompts (id, type, content, is_active, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET content = EXCLUDED.content, is_active = EXCLUDED.is_active`,
		p.ID, p.Type, p.Content, p.IsActive, p.CreatedAt); err != nil {
		return fmt.Errorf("save prompt: %w", err)
	}
	return tx.Commit()
}

func (s *Store) ActivePrompt(ctx context.Context, t prompt.Type) (prompt.Prompt, error) {
	var p prompt.Prompt
	err := s.db.QueryRowContext(ctx,
		`SELECT id, type, content, is_active, created_at FROM prompts
		 WHERE type = $1 AND is_active ORDER BY created_at DESC LIMIT 1`, t).
		Scan(&p.ID, &p.Type, &p.Content, &p.IsActive, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return prompt.Prompt{}, sentinel.ErrNotFound
	}
	if err != nil {
		return prompt.Prompt{}, fmt.Errorf("active prompt: %w", err)
	}
	return p, nil
}

func (s *Store) ActivatePrompt(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var promptType prompt.Type
	err = tx.QueryRowContext(ctx, `SELECT type FROM prompts WHERE id = $1`, id).Scan(&promptType)
	if errors.Is(err, sql.ErrNoRows) {
		return sentinel.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("find prompt: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE prompts SET is_active = (id = $2) WHERE type = $1`, promptType, id); err != nil {
		return fmt.Errorf("activate prompt: %w", err)
	}
	return tx.Commit()
}

func (s *Store) ListPrompts(ctx context.Context) ([]prompt.Prompt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, type, content, is_active, created_at FROM prompts ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list prompts: %w", err)
	}
	defer rows.Close()

	var out []prompt.Prompt
	for rows.Next() {
		var p prompt.Prompt
		if err := rows.Scan(&p.ID, &p.Type, &p.Content, &p.IsActive, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan prompt: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) Version(ctx context.Context) (string, error) {
	var version string
	if err := s.db.QueryRowContext(ctx, `SELECT version FROM data_version WHERE id = 1`).Scan(&version); err != nil {
		return "", fmt.Errorf("read version: %w", err)
	}
	return version, nil
}

func (s *Store) ApplyChanges(ctx context.Context, baseVersion string, writes []identity.Identity) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var current string
	if err := tx.QueryRowContext(ctx,
		`SELECT version FROM data_version WHERE id = 1 FOR UPDATE`).Scan(&current); err != nil {
		return fmt.Errorf("lock version row: %w", err)
	}
	if current != baseVersion {
		return sentinel.ErrVersionConflict
	}

	for _, w := range writes {
		if _, err := tx.ExecContext(ctx, upsertIdentitySQL,
			w.ID, w.Name, w.Status, toInt64(w.FixedNumbers), w.RejectReason, w.CreatedAt, w.UpdatedAt); err != nil {
			if isUniqueViolation(err) {
				return sentinel.ErrConflict
			}
			return fmt.Errorf("apply identity write: %w", err)
		}
	}
	if err := bumpVersion(ctx, tx); err != nil {
		return err
	}
	return tx.Commit()
}
