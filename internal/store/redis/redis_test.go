package redis_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/relaygate/internal/idempotency"
	redisstore "github.com/gosuda/relaygate/internal/store/redis"
)

func newTestClient(t *testing.T) (*redisstore.Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return redisstore.Wrap(client), mr
}

func TestLimiter_FixedWindow(t *testing.T) {
	t.Parallel()

	c, mr := newTestClient(t)
	limiter := c.Limiter(time.Minute)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		d, err := limiter.Allow(ctx, "get_user:t/a", 3)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, i, d.Count)
		assert.Equal(t, 3-i, d.Remaining)
	}

	for range 5 {
		d, err := limiter.Allow(ctx, "get_user:t/a", 3)
		require.NoError(t, err)
		assert.False(t, d.Allowed)
		assert.Equal(t, 3, d.Count)
		assert.Equal(t, 0, d.Remaining)
	}

	// Rejections never move the counter.
	stored, err := mr.Get("relaygate:rl:get_user:t/a")
	require.NoError(t, err)
	assert.Equal(t, "3", stored)

	other, err := limiter.Allow(ctx, "get_user:t/b", 3)
	require.NoError(t, err)
	assert.True(t, other.Allowed)

	mr.FastForward(time.Minute + time.Second)

	d, err := limiter.Allow(ctx, "get_user:t/a", 3)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Count)
}

func TestLimiter_Concurrent(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t)
	limiter := c.Limiter(time.Minute)

	var allowed atomic.Int32
	var wg sync.WaitGroup
	for range 30 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := limiter.Allow(context.Background(), "fn:caller", 7)
			if err == nil && d.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(7), allowed.Load())
}

func TestLimiter_Unavailable(t *testing.T) {
	t.Parallel()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	c := redisstore.Wrap(client)

	_, err = c.Limiter(time.Minute).Allow(context.Background(), "fn:caller", 1)
	require.Error(t, err)
}

func TestLedgerStore_Lifecycle(t *testing.T) {
	t.Parallel()

	c, mr := newTestClient(t)
	store := c.Ledger()
	ctx := context.Background()

	held, err := store.Reserve(ctx, "abc", time.Minute)
	require.NoError(t, err)
	assert.True(t, held.Acquired)
	assert.NotEmpty(t, held.Token)

	res, err := store.Reserve(ctx, "abc", time.Minute)
	require.NoError(t, err)
	assert.False(t, res.Acquired)
	assert.Nil(t, res.Record)
	assert.Nil(t, res.Wait)

	rec := idempotency.Record{
		FirstSeenAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Outcome:     idempotency.OutcomeSuccess,
		Result:      json.RawMessage(`{"n":1}`),
	}
	require.NoError(t, store.Complete(ctx, "abc", held.Token, rec, time.Hour))

	// Release after completion keeps the record.
	require.NoError(t, store.Release(ctx, "abc", held.Token))

	res, err = store.Reserve(ctx, "abc", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, res.Record)
	assert.Equal(t, idempotency.OutcomeSuccess, res.Record.Outcome)
	assert.JSONEq(t, `{"n":1}`, string(res.Record.Result))
	assert.True(t, rec.FirstSeenAt.Equal(res.Record.FirstSeenAt))

	mr.FastForward(time.Hour + time.Second)

	res, err = store.Reserve(ctx, "abc", time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Acquired)
}

func TestLedgerStore_ReleaseAndLease(t *testing.T) {
	t.Parallel()

	c, mr := newTestClient(t)
	store := c.Ledger()
	ctx := context.Background()

	res, err := store.Reserve(ctx, "a", time.Minute)
	require.NoError(t, err)
	require.True(t, res.Acquired)
	require.NoError(t, store.Release(ctx, "a", res.Token))

	res, err = store.Reserve(ctx, "a", time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Acquired)

	// An abandoned reservation expires with its lease.
	res, err = store.Reserve(ctx, "b", 10*time.Second)
	require.NoError(t, err)
	require.True(t, res.Acquired)

	mr.FastForward(11 * time.Second)

	res, err = store.Reserve(ctx, "b", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, res.Acquired)
}

func TestLedgerStore_StaleHolderCannotReleaseOrComplete(t *testing.T) {
	t.Parallel()

	c, mr := newTestClient(t)
	store := c.Ledger()
	ctx := context.Background()

	first, err := store.Reserve(ctx, "a", 10*time.Second)
	require.NoError(t, err)
	require.True(t, first.Acquired)

	mr.FastForward(11 * time.Second)

	second, err := store.Reserve(ctx, "a", time.Minute)
	require.NoError(t, err)
	require.True(t, second.Acquired)

	// The first holder fails late and releases; the second keeps its lease.
	require.NoError(t, store.Release(ctx, "a", first.Token))

	third, err := store.Reserve(ctx, "a", time.Minute)
	require.NoError(t, err)
	assert.False(t, third.Acquired)
	assert.Nil(t, third.Record)

	err = store.Complete(ctx, "a", first.Token, idempotency.Record{Outcome: "late"}, time.Hour)
	require.ErrorIs(t, err, idempotency.ErrLeaseLost)

	require.NoError(t, store.Complete(ctx, "a", second.Token, idempotency.Record{Outcome: idempotency.OutcomeSuccess}, time.Hour))
	ttl := mr.TTL("relaygate:idem:a")
	assert.InDelta(t, time.Hour.Seconds(), ttl.Seconds(), 1)

	done, err := store.Reserve(ctx, "a", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, done.Record)
	assert.Equal(t, idempotency.OutcomeSuccess, done.Record.Outcome)

	err = store.Complete(ctx, "a", second.Token, idempotency.Record{Outcome: "late"}, time.Hour)
	require.ErrorIs(t, err, idempotency.ErrLeaseLost)
}

func TestLedgerStore_WithLedger(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t)
	ledger := idempotency.NewLedger(c.Ledger(), idempotency.WithPollInterval(5*time.Millisecond))

	var calls atomic.Int32
	processor := func(context.Context) (json.RawMessage, error) {
		calls.Add(1)
		time.Sleep(20 * time.Millisecond)
		return json.RawMessage(`"done"`), nil
	}

	var processed, cached atomic.Int32
	var wg sync.WaitGroup
	for range 6 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := ledger.AdmitAndProcess(context.Background(), "wh-1", processor)
			if err != nil {
				return
			}
			if res.Processed {
				processed.Add(1)
			}
			if res.Cached {
				cached.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, int32(1), processed.Load())
	assert.Equal(t, int32(5), cached.Load())

	// A failed attempt is released for a retry.
	failing := func(context.Context) (json.RawMessage, error) { return nil, errors.New("downstream down") }
	_, err := ledger.AdmitAndProcess(context.Background(), "wh-2", failing)
	require.Error(t, err)

	res, err := ledger.AdmitAndProcess(context.Background(), "wh-2", processor)
	require.NoError(t, err)
	assert.True(t, res.Processed)
}
