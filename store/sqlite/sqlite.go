// Package sqlite provides a SQLite-backed CredentialStore for single-node
// deployments.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ineyio/voicepool"
	"github.com/ineyio/voicepool/internal/secret"
)

// Store is a SQLite-backed CredentialStore.
type Store struct {
	db  *DB
	box *secret.Box
	now func() time.Time
}

var _ voicepool.CredentialStore = (*Store)(nil)

// Option configures Store.
type Option func(*Store)

// WithSecretBox seals secrets before they are written.
func WithSecretBox(box *secret.Box) Option {
	return func(s *Store) { s.box = box }
}

// WithClock sets the time source used for creation timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a Store on an already migrated DB.
func New(db *DB, opts ...Option) *Store {
	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open opens the database at path, applies migrations and returns a Store.
// The caller owns the returned DB.
func Open(path string, opts ...Option) (*Store, *DB, error) {
	db, err := NewDB(path)
	if err != nil {
		return nil, nil, fmt.Errorf("voicepool/sqlite: %w", err)
	}
	if err := RunMigrations(db.Writer); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("voicepool/sqlite: %w", err)
	}
	return New(db, opts...), db, nil
}

const columns = `id, label, secret, remaining_quota, total_quota, active, last_used_at, last_synced_at, created_at`

func (s *Store) ListAll(ctx context.Context) ([]voicepool.Credential, error) {
	return s.query(ctx, `SELECT `+columns+` FROM credentials ORDER BY seq`)
}

func (s *Store) ListActive(ctx context.Context) ([]voicepool.Credential, error) {
	return s.query(ctx, `SELECT `+columns+` FROM credentials WHERE active = 1 ORDER BY seq`)
}

func (s *Store) query(ctx context.Context, q string) ([]voicepool.Credential, error) {
	rows, err := s.db.Reader.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("voicepool/sqlite: list: %w", err)
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
		return nil, fmt.Errorf("voicepool/sqlite: list: %w", err)
	}
	return out, nil
}

func (s *Store) Get(ctx context.Context, id string) (voicepool.Credential, error) {
	row := s.db.Reader.QueryRowContext(ctx, `SELECT `+columns+` FROM credentials WHERE id = ?`, id)
	c, err := s.scan(row)
	if errors.Is(err, sql.ErrNoRows) {
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
		return voicepool.Credential{}, fmt.Errorf("voicepool/sqlite: seal secret: %w", err)
	}

	now := s.now().UTC()
	c := voicepool.Credential{
		ID:             uuid.New().String(),
		Label:          label,
		Secret:         plaintext,
		RemainingQuota: totalQuota,
		TotalQuota:     totalQuota,
		Active:         true,
		LastSyncedAt:   now,
		CreatedAt:      now,
	}

	const q = `INSERT INTO credentials (id, label, secret, fingerprint, remaining_quota, total_quota, active, last_synced_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)`
	_, err = s.db.Writer.ExecContext(ctx, q,
		c.ID, label, sealed, secret.Fingerprint(plaintext), totalQuota, totalQuota, now.UnixNano(), now.UnixNano(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return voicepool.Credential{}, voicepool.ErrDuplicateCredential
		}
		return voicepool.Credential{}, fmt.Errorf("voicepool/sqlite: create: %w", err)
	}
	return c, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	return s.exec(ctx, "delete", `DELETE FROM credentials WHERE id = ?`, id)
}

func (s *Store) SetActive(ctx context.Context, id string, active bool) error {
	return s.exec(ctx, "set active", `UPDATE credentials SET active = ? WHERE id = ?`, active, id)
}

func (s *Store) UpsertQuota(ctx context.Context, id string, u voicepool.QuotaUpdate) error {
	return s.exec(ctx, "upsert quota",
		`UPDATE credentials SET remaining_quota = ?, total_quota = ?, active = ?, last_synced_at = ? WHERE id = ?`,
		u.Remaining, u.Total, u.Active, u.SyncedAt.UnixNano(), id,
	)
}

func (s *Store) DecrementQuota(ctx context.Context, id string, amount int64, usedAt time.Time) error {
	return s.exec(ctx, "decrement",
		`UPDATE credentials SET remaining_quota = remaining_quota - ?, last_used_at = ? WHERE id = ?`,
		amount, usedAt.UnixNano(), id,
	)
}

func (s *Store) exec(ctx context.Context, op, q string, args ...any) error {
	res, err := s.db.Writer.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("voicepool/sqlite: %s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("voicepool/sqlite: %s: %w", op, err)
	}
	if n == 0 {
		return voicepool.ErrCredentialNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func (s *Store) scan(row scanner) (voicepool.Credential, error) {
	var (
		c                 voicepool.Credential
		sealed            string
		lastUsed          sql.NullInt64
		lastSynced, added int64
	)
	err := row.Scan(&c.ID, &c.Label, &sealed, &c.RemainingQuota, &c.TotalQuota,
		&c.Active, &lastUsed, &lastSynced, &added)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return voicepool.Credential{}, err
		}
		return voicepool.Credential{}, fmt.Errorf("voicepool/sqlite: scan: %w", err)
	}

	c.Secret, err = s.box.Open(sealed)
	if err != nil {
		return voicepool.Credential{}, fmt.Errorf("voicepool/sqlite: open secret of %s: %w", c.ID, err)
	}
	c.LastSyncedAt = time.Unix(0, lastSynced).UTC()
	c.CreatedAt = time.Unix(0, added).UTC()
	if lastUsed.Valid {
		t := time.Unix(0, lastUsed.Int64).UTC()
		c.LastUsedAt = &t
	}
	return c, nil
}
