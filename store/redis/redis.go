// Package redis provides a Redis-backed CredentialStore for voicepool.
//
// Each credential is a Redis hash. Creation order is kept in a list and
// secret fingerprints in a separate hash, and every multi-key mutation runs
// as a Lua script. This makes it safe for multi-instance deployments.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/ineyio/voicepool"
	"github.com/ineyio/voicepool/internal/secret"
)

// Store is a Redis-backed CredentialStore.
type Store struct {
	client    goredis.Cmdable
	keyPrefix string
	box       *secret.Box
	now       func() time.Time
}

var _ voicepool.CredentialStore = (*Store)(nil)

// Option configures Store.
type Option func(*Store)

// WithKeyPrefix sets the Redis key prefix (default "voicepool:cred:").
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) { s.keyPrefix = prefix }
}

// WithSecretBox seals secrets before they are written.
func WithSecretBox(box *secret.Box) Option {
	return func(s *Store) { s.box = box }
}

// WithClock sets the time source used for creation timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a new Redis-backed CredentialStore.
// The client must be a connected *goredis.Client or *goredis.ClusterClient.
// All keys carry the same hash tag, so a cluster keeps them in one slot.
func New(client goredis.Cmdable, opts ...Option) *Store {
	s := &Store{
		client:    client,
		keyPrefix: "voicepool:cred:",
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// slotTag pins every key of a store to one Redis Cluster slot, which the
// multi-key scripts require.
const slotTag = "{pool}:"

func (s *Store) credKey(id string) string { return s.keyPrefix + slotTag + id }
func (s *Store) orderKey() string         { return s.keyPrefix + slotTag + "order" }
func (s *Store) fingerprintKey() string   { return s.keyPrefix + slotTag + "fingerprints" }

// createScript adds a credential unless its fingerprint is taken.
// KEYS[1] = fingerprint hash
// KEYS[2] = credential hash
// KEYS[3] = order list
// ARGV[1] = fingerprint
// ARGV[2] = id
// ARGV[3] = label
// ARGV[4] = sealed secret
// ARGV[5] = total quota
// ARGV[6] = now (unix nanos)
//
// Returns 1 on success, 0 on a duplicate secret.
var createScript = goredis.NewScript(`
if redis.call("HSETNX", KEYS[1], ARGV[1], ARGV[2]) == 0 then
    return 0
end
redis.call("HSET", KEYS[2],
    "label", ARGV[3],
    "secret", ARGV[4],
    "fingerprint", ARGV[1],
    "remaining", ARGV[5],
    "total", ARGV[5],
    "active", "1",
    "last_synced_at", ARGV[6],
    "created_at", ARGV[6])
redis.call("RPUSH", KEYS[3], ARGV[2])
return 1
`)

// updateScript sets hash fields only if the credential exists.
// KEYS[1] = credential hash
// ARGV = field/value pairs
//
// Returns 1 on success, 0 if the credential is missing.
var updateScript = goredis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
    return 0
end
redis.call("HSET", KEYS[1], unpack(ARGV))
return 1
`)

// decrementScript subtracts usage and stamps last use.
// KEYS[1] = credential hash
// ARGV[1] = amount
// ARGV[2] = used at (unix nanos)
var decrementScript = goredis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
    return 0
end
redis.call("HINCRBY", KEYS[1], "remaining", -tonumber(ARGV[1]))
redis.call("HSET", KEYS[1], "last_used_at", ARGV[2])
return 1
`)

// deleteScript removes a credential with its fingerprint and order entry.
// KEYS[1] = fingerprint hash
// KEYS[2] = credential hash
// KEYS[3] = order list
// ARGV[1] = id
var deleteScript = goredis.NewScript(`
local fp = redis.call("HGET", KEYS[2], "fingerprint")
if not fp then
    return 0
end
redis.call("HDEL", KEYS[1], fp)
redis.call("DEL", KEYS[2])
redis.call("LREM", KEYS[3], 0, ARGV[1])
return 1
`)

func (s *Store) ListAll(ctx context.Context) ([]voicepool.Credential, error) {
	return s.list(ctx, false)
}

func (s *Store) ListActive(ctx context.Context) ([]voicepool.Credential, error) {
	return s.list(ctx, true)
}

func (s *Store) list(ctx context.Context, activeOnly bool) ([]voicepool.Credential, error) {
	ids, err := s.client.LRange(ctx, s.orderKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("voicepool/redis: list: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*goredis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, s.credKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("voicepool/redis: list: %w", err)
	}

	out := make([]voicepool.Credential, 0, len(ids))
	for i, cmd := range cmds {
		fields := cmd.Val()
		// Deleted between LRANGE and HGETALL.
		if len(fields) == 0 {
			continue
		}
		c, err := s.decode(ids[i], fields)
		if err != nil {
			return nil, err
		}
		if activeOnly && !c.Active {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *Store) Get(ctx context.Context, id string) (voicepool.Credential, error) {
	fields, err := s.client.HGetAll(ctx, s.credKey(id)).Result()
	if err != nil {
		return voicepool.Credential{}, fmt.Errorf("voicepool/redis: get: %w", err)
	}
	if len(fields) == 0 {
		return voicepool.Credential{}, voicepool.ErrCredentialNotFound
	}
	return s.decode(id, fields)
}

func (s *Store) Create(ctx context.Context, label, plaintext string, totalQuota int64) (voicepool.Credential, error) {
	if err := voicepool.ValidateNewCredential(label, plaintext, totalQuota); err != nil {
		return voicepool.Credential{}, err
	}

	sealed, err := s.box.Seal(plaintext)
	if err != nil {
		return voicepool.Credential{}, fmt.Errorf("voicepool/redis: seal secret: %w", err)
	}

	id := uuid.New().String()
	now := s.now().UTC()

	result, err := createScript.Run(ctx, s.client,
		[]string{s.fingerprintKey(), s.credKey(id), s.orderKey()},
		secret.Fingerprint(plaintext), id, label, sealed, totalQuota, now.UnixNano(),
	).Int64()
	if err != nil {
		return voicepool.Credential{}, fmt.Errorf("voicepool/redis: create: %w", err)
	}
	if result == 0 {
		return voicepool.Credential{}, voicepool.ErrDuplicateCredential
	}

	return voicepool.Credential{
		ID:             id,
		Label:          label,
		Secret:         plaintext,
		RemainingQuota: totalQuota,
		TotalQuota:     totalQuota,
		Active:         true,
		LastSyncedAt:   now,
		CreatedAt:      now,
	}, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	result, err := deleteScript.Run(ctx, s.client,
		[]string{s.fingerprintKey(), s.credKey(id), s.orderKey()},
		id,
	).Int64()
	if err != nil {
		return fmt.Errorf("voicepool/redis: delete: %w", err)
	}
	if result == 0 {
		return voicepool.ErrCredentialNotFound
	}
	return nil
}

func (s *Store) SetActive(ctx context.Context, id string, active bool) error {
	return s.update(ctx, "set active", id, "active", boolField(active))
}

func (s *Store) UpsertQuota(ctx context.Context, id string, u voicepool.QuotaUpdate) error {
	return s.update(ctx, "upsert quota", id,
		"remaining", u.Remaining,
		"total", u.Total,
		"active", boolField(u.Active),
		"last_synced_at", u.SyncedAt.UnixNano(),
	)
}

func (s *Store) DecrementQuota(ctx context.Context, id string, amount int64, usedAt time.Time) error {
	result, err := decrementScript.Run(ctx, s.client,
		[]string{s.credKey(id)},
		amount, usedAt.UnixNano(),
	).Int64()
	if err != nil {
		return fmt.Errorf("voicepool/redis: decrement: %w", err)
	}
	if result == 0 {
		return voicepool.ErrCredentialNotFound
	}
	return nil
}

func (s *Store) update(ctx context.Context, op, id string, pairs ...any) error {
	result, err := updateScript.Run(ctx, s.client, []string{s.credKey(id)}, pairs...).Int64()
	if err != nil {
		return fmt.Errorf("voicepool/redis: %s: %w", op, err)
	}
	if result == 0 {
		return voicepool.ErrCredentialNotFound
	}
	return nil
}

func (s *Store) decode(id string, f map[string]string) (voicepool.Credential, error) {
	plaintext, err := s.box.Open(f["secret"])
	if err != nil {
		return voicepool.Credential{}, fmt.Errorf("voicepool/redis: open secret of %s: %w", id, err)
	}

	remaining, err1 := strconv.ParseInt(f["remaining"], 10, 64)
	total, err2 := strconv.ParseInt(f["total"], 10, 64)
	synced, err3 := strconv.ParseInt(f["last_synced_at"], 10, 64)
	created, err4 := strconv.ParseInt(f["created_at"], 10, 64)
	if err := errors.Join(err1, err2, err3, err4); err != nil {
		return voicepool.Credential{}, fmt.Errorf("voicepool/redis: decode %s: %w", id, err)
	}

	c := voicepool.Credential{
		ID:             id,
		Label:          f["label"],
		Secret:         plaintext,
		RemainingQuota: remaining,
		TotalQuota:     total,
		Active:         f["active"] == "1",
		LastSyncedAt:   time.Unix(0, synced).UTC(),
		CreatedAt:      time.Unix(0, created).UTC(),
	}
	if v := f["last_used_at"]; v != "" {
		used, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return voicepool.Credential{}, fmt.Errorf("voicepool/redis: decode %s: %w", id, err)
		}
		t := time.Unix(0, used).UTC()
		c.LastUsedAt = &t
	}
	return c, nil
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
