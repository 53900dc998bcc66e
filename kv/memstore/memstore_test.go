package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocfetch/fetcher/model"
)

func TestStore_PutGetRoundTrip(t *testing.T) {
	s := New(Config{})
	defer s.Close()
	ctx := context.Background()

	type payload struct{ Name string }
	require.NoError(t, s.Put(ctx, "k1", payload{Name: "a"}, 0))

	var got payload
	require.NoError(t, s.Get(ctx, "k1", &got))
	assert.Equal(t, "a", got.Name)
}

func TestStore_GetMissingReturnsErrNotFound(t *testing.T) {
	s := New(Config{})
	defer s.Close()

	var out string
	err := s.Get(context.Background(), "missing", &out)
	assert.True(t, errors.Is(err, model.ErrNotFound))
}

func TestStore_TTLExpiry(t *testing.T) {
	s := New(Config{})
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "k1", "v1", 10*time.Millisecond))
	ok, err := s.Exists(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, ok)

	time.Sleep(30 * time.Millisecond)

	ok, err = s.Exists(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, ok, "entry should have expired")

	var out string
	err = s.Get(ctx, "k1", &out)
	assert.True(t, errors.Is(err, model.ErrNotFound))
}

func TestStore_DeleteReportsWhetherKeyExisted(t *testing.T) {
	s := New(Config{})
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "k1", "v1", 0))

	existed, err := s.Delete(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = s.Delete(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, existed)
}

func TestStore_RangeGetReturnsAscendingWithinBoundsAndStripsPrefix(t *testing.T) {
	s := New(Config{Prefix: "p:"})
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "a:1", "v1", 0))
	require.NoError(t, s.Put(ctx, "a:2", "v2", 0))
	require.NoError(t, s.Put(ctx, "b:1", "v3", 0))

	pairs, err := s.RangeGet(ctx, "a:", "a:\xff", 0)
	require.NoError(t, err)
	require.Len(t, pairs, 2)
	assert.Equal(t, "a:1", pairs[0].Key)
	assert.Equal(t, "a:2", pairs[1].Key)
}

func TestStore_RangeGetRespectsLimit(t *testing.T) {
	s := New(Config{})
	defer s.Close()
	ctx := context.Background()

	for _, k := range []string{"a:1", "a:2", "a:3"} {
		require.NoError(t, s.Put(ctx, k, "v", 0))
	}

	pairs, err := s.RangeGet(ctx, "a:", "a:\xff", 2)
	require.NoError(t, err)
	assert.Len(t, pairs, 2)
}

func TestStore_SweepRemovesExpiredEntries(t *testing.T) {
	s := New(Config{SweepInterval: 10 * time.Millisecond})
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "k1", "v1", 5*time.Millisecond))
	time.Sleep(50 * time.Millisecond)

	s.mu.RLock()
	_, stillPresent := s.data[s.fullKey("k1")]
	s.mu.RUnlock()
	assert.False(t, stillPresent, "sweep goroutine should have removed the expired entry")
}
