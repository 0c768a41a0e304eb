package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/gosuda/relaygate/internal/idempotency"
)

// In-flight markers are stored as pendingPrefix followed by the owner token.
const pendingPrefix = "pending:"

//nolint:gochecknoglobals // compiled once
var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)
	completeScript = redis.NewScript(`
local v = redis.call("GET", KEYS[1])
if v == false or v == ARGV[1] then
  redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
  return 1
end
return 0
`)
)

// LedgerStore is an idempotency.Store. Waiters are not signalled; the ledger
// polls instead.
type LedgerStore struct {
	client *redis.Client
}

func NewLedgerStore(client *redis.Client) *LedgerStore {
	return &LedgerStore{client: client}
}

func (s *LedgerStore) Reserve(ctx context.Context, id string, lease time.Duration) (idempotency.Reservation, error) {
	key := ledgerKeyPrefix + id
	token := uuid.NewString()

	ok, err := s.client.SetNX(ctx, key, pendingPrefix+token, lease).Result()
	if err != nil {
		return idempotency.Reservation{}, fmt.Errorf("redis.LedgerStore.Reserve: %w", err)
	}
	if ok {
		return idempotency.Reservation{Acquired: true, Token: token}, nil
	}

	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		// Released or expired between the two commands; the ledger asks again.
		return idempotency.Reservation{}, nil
	}
	if err != nil {
		return idempotency.Reservation{}, fmt.Errorf("redis.LedgerStore.Reserve: get: %w", err)
	}
	if strings.HasPrefix(val, pendingPrefix) {
		return idempotency.Reservation{}, nil
	}

	var rec idempotency.Record
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return idempotency.Reservation{}, fmt.Errorf("redis.LedgerStore.Reserve: decode record: %w", err)
	}
	return idempotency.Reservation{Record: &rec}, nil
}

// Complete writes rec only while token still owns the marker or the key is
// gone.
func (s *LedgerStore) Complete(ctx context.Context, id, token string, rec idempotency.Record, ttl time.Duration) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("redis.LedgerStore.Complete: encode record: %w", err)
	}
	n, err := completeScript.Run(ctx, s.client, []string{ledgerKeyPrefix + id},
		pendingPrefix+token, data, ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("redis.LedgerStore.Complete: %w", err)
	}
	if n == 0 {
		return idempotency.ErrLeaseLost
	}
	return nil
}

// Release only drops the marker owned by token, never a completed record.
func (s *LedgerStore) Release(ctx context.Context, id, token string) error {
	if err := releaseScript.Run(ctx, s.client, []string{ledgerKeyPrefix + id}, pendingPrefix+token).Err(); err != nil {
		return fmt.Errorf("redis.LedgerStore.Release: %w", err)
	}
	return nil
}
