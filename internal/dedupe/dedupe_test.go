package dedupe

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type fakeRedis struct {
	keys    map[string]bool
	err     error
	lastKey string
	lastTTL time.Duration
}

func (f *fakeRedis) SetNX(_ context.Context, key string, _ interface{}, exp time.Duration) *redis.BoolCmd {
	f.lastKey, f.lastTTL = key, exp
	if f.err != nil {
		return redis.NewBoolResult(false, f.err)
	}
	if f.keys[key] {
		return redis.NewBoolResult(false, nil)
	}
	f.keys[key] = true
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	var n int64
	for _, k := range keys {
		f.lastKey = k
		if f.keys[k] {
			delete(f.keys, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func TestNewRedis_Validation(t *testing.T) {
	_, err := NewRedis(nil, time.Hour)
	require.ErrorContains(t, err, "must not be nil")
	_, err = NewRedis(&fakeRedis{}, 0)
	require.ErrorContains(t, err, "ttl")
}

func TestRedis_FirstSeen(t *testing.T) {
	f := &fakeRedis{keys: map[string]bool{}}
	d, err := NewRedis(f, 24*time.Hour)
	require.NoError(t, err)
	ctx := context.Background()

	first, err := d.FirstSeen(ctx, "3EB0ABC")
	require.NoError(t, err)
	require.True(t, first)
	require.Equal(t, "consignado:msg:3EB0ABC", f.lastKey)
	require.Equal(t, 24*time.Hour, f.lastTTL)

	first, err = d.FirstSeen(ctx, "3EB0ABC")
	require.NoError(t, err)
	require.False(t, first)
}

func TestRedis_FirstSeen_BlankIDNeverDuplicate(t *testing.T) {
	f := &fakeRedis{keys: map[string]bool{}}
	d, err := NewRedis(f, time.Hour)
	require.NoError(t, err)

	first, err := d.FirstSeen(context.Background(), " ")
	require.NoError(t, err)
	require.True(t, first)
	require.Empty(t, f.lastKey)
}

func TestRedis_FirstSeen_Error(t *testing.T) {
	d, err := NewRedis(&fakeRedis{err: errors.New("connection refused")}, time.Hour)
	require.NoError(t, err)
	_, err = d.FirstSeen(context.Background(), "id")
	require.ErrorContains(t, err, "connection refused")
}

func TestRedis_ForgetReleasesID(t *testing.T) {
	f := &fakeRedis{keys: map[string]bool{}}
	d, err := NewRedis(f, time.Hour)
	require.NoError(t, err)
	ctx := context.Background()

	first, err := d.FirstSeen(ctx, "m1")
	require.NoError(t, err)
	require.True(t, first)

	require.NoError(t, d.Forget(ctx, "m1"))
	require.Equal(t, "consignado:msg:m1", f.lastKey)

	first, err = d.FirstSeen(ctx, "m1")
	require.NoError(t, err)
	require.True(t, first, "a released id is first seen again")
}

func TestRedis_ForgetError(t *testing.T) {
	d, err := NewRedis(&fakeRedis{err: errors.New("connection refused")}, time.Hour)
	require.NoError(t, err)
	require.ErrorContains(t, d.Forget(context.Background(), "m1"), "dedupe: del")
}

func TestNewRedisClient_BadURL(t *testing.T) {
	_, err := NewRedisClient(context.Background(), "not-a-redis-url")
	require.ErrorContains(t, err, "parse redis URL")
}

func TestMemory_FirstSeenWithinTTL(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemory(time.Hour)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	first, _ := m.FirstSeen(ctx, "a")
	require.True(t, first)
	first, _ = m.FirstSeen(ctx, "a")
	require.False(t, first)

	now = now.Add(time.Hour)
	first, _ = m.FirstSeen(ctx, "a")
	require.True(t, first, "ids expire after the ttl")
}

func TestMemory_Forget(t *testing.T) {
	m := NewMemory(time.Hour)
	ctx := context.Background()

	first, _ := m.FirstSeen(ctx, "m1")
	require.True(t, first)
	require.NoError(t, m.Forget(ctx, " m1 "))
	first, _ = m.FirstSeen(ctx, "m1")
	require.True(t, first)
	require.Equal(t, 1, m.Len())
}

func TestMemory_SweepsExpired(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemory(time.Minute)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		_, _ = m.FirstSeen(ctx, id)
	}
	require.Equal(t, 3, m.Len())

	now = now.Add(2 * time.Minute)
	_, _ = m.FirstSeen(ctx, "d")
	require.Equal(t, 1, m.Len())
}

func TestMemory_DefaultTTL(t *testing.T) {
	require.Equal(t, 24*time.Hour, NewMemory(0).ttl)
}
