// Package postgres provides a PostgreSQL-backed CredentialStore for voicepool.
//
// Usage decrements are single UPDATE statements, so concurrent writers on any
// number of instances never lose an update.
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

	"github.com/ineyio/voicepool"
	"github.com/ineyio/voicepool/internal/secret"
)

// uniqueViolation is the SQLSTATE for a unique constraint failure.
const uniqueViolation = "23505"

// Store is a PostgreSQL-backed CredentialStore.
type Store struct {
	pool        *pgxpool.Pool
	tablePrefix string
	box         *secret.Box
	now         func() time.Time
}

var _ voicepool.CredentialStore = (*Store)(nil)

// Option configures Store.
type Option func(*Store)

// WithTablePrefix sets the table name prefix (default "voicepool_").
func WithTablePrefix(prefix string) Option {
	return func(s *Store) { s.tablePrefix = prefix }
}

// WithSecretBox seals secrets before they are written.
func WithSecretBox(box *secret.Box) Option {
	return func(s *Store) { s.box = box }
}

// WithClock sets the time source used for creation timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a new PostgreSQL-backed CredentialStore.
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{
		pool:        pool,
		tablePrefix: "voicepool_",
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) table() string { return s.tablePrefix + "credentials" }

// EnsureSchema creates the credentials table if it doesn't exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	q := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			seq BIGSERIAL,
			label TEXT NOT NULL,
			secret TEXT NOT NULL,
			fingerprint TEXT NOT NULL UNIQUE,
			remaining_quota BIGINT NOT NULL,
			total_quota BIGINT NOT NULL,
			active BOOLEAN NOT NULL DEFAULT true,
			last_used_at TIMESTAMPTZ,
			last_synced_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		);
	`, s.table())
	if _, err := s.pool.Exec(ctx, q); err != nil {
		return fmt.Errorf("voicepool/postgres: ensure schema: %w", err)
	}
	return nil
}

const columns = `id, label, secret, remaining_quota, total_quota, active, last_used_at, last_synced_at, created_at`

func (s *Store) ListAll(ctx context.Context) ([]voicepool.Credential, error) {
	return s.query(ctx, fmt.Sprintf(`SELECT %s FROM %s ORDER BY seq`, columns, s.table()))
}

func (s *Store) ListActive(ctx context.Context) ([]voicepool.Credential, error) {
	return s.query(ctx, fmt.Sprintf(`SELECT %s FROM %s WHERE active ORDER BY seq`, columns, s.table()))
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]voicepool.Credential, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("voicepool/postgres: list: %w", err)
	}
	defer rows.Close()

	var out []voicepool.Credential
	for rows.Next() {
		c, err := s.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("voicepool/postgres: list: %w", err)
	}
	return out, nil
}

func (s *Store) Get(ctx context.Context, id string) (voicepool.Credential, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, columns, s.table()), id)
	c, err := s.scan(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return voicepool.Credential{}, voicepool.ErrCredentialNotFound
	}
	return c, err
}

func (s *Store) Create(ctx context.Context, label, plaintext string, totalQuota int64) (voicepool.Credential, error) {
	if err := voicepool.ValidateNewCredential(label, plaintext, totalQuota); err != nil {
		return voicepool.Credential{}, err
	}

	sealed, err := s.box.Seal(plaintext)
	if err != nil {
		return voicepool.Credential{}, fmt.Errorf("voicepool/postgres: seal secret: %w", err)
	}

	c := voicepool.Credential{
		ID:             uuid.New().String(),
		Label:          label,
		Secret:         plaintext,
		RemainingQuota: totalQuota,
		TotalQuota:     totalQuota,
		Active:         true,
		CreatedAt:      s.now().UTC().Truncate(time.Microsecond),
	}
	c.LastSyncedAt = c.CreatedAt

	_, err = s.pool.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, label, secret, fingerprint, remaining_quota, total_quota, active, last_synced_at, created_at)
			VALUES ($1, $2, $3, $4, $5, $5, true, $6, $6)`, s.table()),
		c.ID, label, sealed, secret.Fingerprint(plaintext), totalQuota, c.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return voicepool.Credential{}, voicepool.ErrDuplicateCredential
		}
		return voicepool.Credential{}, fmt.Errorf("voicepool/postgres: create: %w", err)
	}
	return c, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	return s.exec(ctx, "delete", fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, s.table()), id)
}

func (s *Store) SetActive(ctx context.Context, id string, active bool) error {
	return s.exec(ctx, "set active",
		fmt.Sprintf(`UPDATE %s SET active = $2 WHERE id = $1`, s.table()),
		id, active,
	)
}

func (s *Store) UpsertQuota(ctx context.Context, id string, u voicepool.QuotaUpdate) error {
	return s.exec(ctx, "upsert quota",
		fmt.Sprintf(`UPDATE %s SET remaining_quota = $2, total_quota = $3, active = $4, last_synced_at = $5 WHERE id = $1`, s.table()),
		id, u.Remaining, u.Total, u.Active, u.SyncedAt,
	)
}

func (s *Store) DecrementQuota(ctx context.Context, id string, amount int64, usedAt time.Time) error {
	return s.exec(ctx, "decrement",
		fmt.Sprintf(`UPDATE %s SET remaining_quota = remaining_quota - $2, last_used_at = $3 WHERE id = $1`, s.table()),
		id, amount, usedAt,
	)
}

// exec runs a statement that targets one row and maps zero affected rows to
// ErrCredentialNotFound.
func (s *Store) exec(ctx context.Context, op, q string, args ...any) error {
	tag, err := s.pool.Exec(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("voicepool/postgres: %s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return voicepool.ErrCredentialNotFound
	}
	return nil
}

func (s *Store) scan(row pgx.Row) (voicepool.Credential, error) {
	var (
		c      voicepool.Credential
		sealed string
	)
	err := row.Scan(&c.ID, &c.Label, &sealed, &c.RemainingQuota, &c.TotalQuota,
		&c.Active, &c.LastUsedAt, &c.LastSyncedAt, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return voicepool.Credential{}, err
		}
		return voicepool.Credential{}, fmt.Errorf("voicepool/postgres: scan: %w", err)
	}

	c.Secret, err = s.box.Open(sealed)
	if err != nil {
		return voicepool.Credential{}, fmt.Errorf("voicepool/postgres: open secret of %s: %w", c.ID, err)
	}
	return c, nil
}
