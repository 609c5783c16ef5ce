package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/solcials-sync/config"
	"github.com/d60-Lab/solcials-sync/internal/model"
	"github.com/d60-Lab/solcials-sync/pkg/database"
)

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// backend bundles a store with a way to move its notion of time forward.
type backend struct {
	store   Store
	advance func(time.Duration)
}

func backends(t *testing.T) map[string]backend {
	t.Helper()

	memClock := clockwork.NewFakeClockAt(epoch)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	dbClock := clockwork.NewFakeClockAt(epoch)
	db, err := database.Open("file:"+t.Name()+"?mode=memory&cache=shared", &model.CacheEntry{})
	require.NoError(t, err)

	return map[string]backend{
		"memory": {NewMemory(memClock), memClock.Advance},
		"redis":  {NewRedis(client, "test:"), mr.FastForward},
		"gorm":   {NewGorm(db, dbClock), dbClock.Advance},
	}
}

func TestStoreContract(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := b.store

			_, ok, err := s.Get(ctx, "missing")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.Set(ctx, "fresh:posts:a", []byte("one"), time.Minute))
			require.NoError(t, s.Set(ctx, "fresh:posts:b", []byte("two"), time.Hour))
			require.NoError(t, s.Set(ctx, "stale:posts:a", []byte("old"), time.Hour))

			got, ok, err := s.Get(ctx, "fresh:posts:a")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, []byte("one"), got)

			// overwrite keeps the latest value
			require.NoError(t, s.Set(ctx, "fresh:posts:a", []byte("uno"), time.Minute))
			got, _, _ = s.Get(ctx, "fresh:posts:a")
			assert.Equal(t, []byte("uno"), got)

			b.advance(time.Minute)
			_, ok, err = s.Get(ctx, "fresh:posts:a")
			require.NoError(t, err)
			assert.False(t, ok, "entry read at capture+ttl must be absent")

			_, ok, _ = s.Get(ctx, "fresh:posts:b")
			assert.True(t, ok)

			require.NoError(t, s.RemovePrefix(ctx, "fresh:"))
			_, ok, _ = s.Get(ctx, "fresh:posts:b")
			assert.False(t, ok)
			_, ok, _ = s.Get(ctx, "stale:posts:a")
			assert.True(t, ok, "prefix removal must not touch other prefixes")

			require.NoError(t, s.Remove(ctx, "stale:posts:a"))
			_, ok, _ = s.Get(ctx, "stale:posts:a")
			assert.False(t, ok)
		})
	}
}

func TestRemovePrefixTreatsPatternCharsLiterally(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, b.store.Set(ctx, "k_1", []byte("x"), time.Hour))
			require.NoError(t, b.store.Set(ctx, "kx1", []byte("y"), time.Hour))

			require.NoError(t, b.store.RemovePrefix(ctx, "k_"))

			_, ok, _ := b.store.Get(ctx, "k_1")
			assert.False(t, ok)
			_, ok, _ = b.store.Get(ctx, "kx1")
			assert.True(t, ok)
		})
	}
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	s := NewMemory(clockwork.NewFakeClockAt(epoch))

	type meta struct {
		URL string `json:"url"`
	}
	require.NoError(t, SetJSON(ctx, s, "media:cid", meta{URL: "https://ipfs.io/ipfs/cid"}, time.Hour))

	got, ok, err := GetJSON[meta](ctx, s, "media:cid")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "https://ipfs.io/ipfs/cid", got.URL)

	require.NoError(t, s.Set(ctx, "bad", []byte("{"), time.Hour))
	_, _, err = GetJSON[meta](ctx, s, "bad")
	assert.Error(t, err)
}

func TestMemoryEvictsOnRead(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	m := NewMemory(clock)
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "k", []byte("v"), time.Second))
	assert.Equal(t, 1, m.Len())
	clock.Advance(2 * time.Second)
	_, ok, _ := m.Get(ctx, "k")
	assert.False(t, ok)
	assert.Equal(t, 0, m.Len())
}

func TestGormPurgeExpired(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	db, err := database.Open("file:"+t.Name()+"?mode=memory&cache=shared", &model.CacheEntry{})
	require.NoError(t, err)
	g := NewGorm(db, clock)
	ctx := context.Background()

	require.NoError(t, g.Set(ctx, "short", []byte("1"), time.Second))
	require.NoError(t, g.Set(ctx, "long", []byte("2"), time.Hour))
	clock.Advance(time.Minute)

	n, err := g.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestOpenMemoryBackend(t *testing.T) {
	s, closeFn, err := Open(context.Background(), config.CacheConfig{Backend: "memory"}, nil)
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &Memory{}, s)

	_, _, err = Open(context.Background(), config.CacheConfig{Backend: "etcd"}, nil)
	assert.Error(t, err)
}
