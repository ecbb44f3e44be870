package store

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/heartline/matchqueue/pkg/types"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	st := NewRedisStore(rdb, time.Hour)
	t.Cleanup(func() { _ = st.Close() })
	return st, mr
}

var t0 = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

func TestEnqueueIsIdempotent(t *testing.T) {
	st, _ := newTestRedis(t)
	ctx := context.Background()

	e, err := st.Enqueue(ctx, "u1", types.GlobalPool, t0)
	require.NoError(t, err)
	assert.Equal(t, types.StatusWaiting, e.Status)
	assert.True(t, e.JoinedAt.Equal(t0))

	e, err = st.Enqueue(ctx, "u1", types.GlobalPool, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, e.JoinedAt.Equal(t0), "rejoin must keep original join time")

	n, err := st.QueueSize(ctx, types.GlobalPool)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestEnqueueMovesBetweenPools(t *testing.T) {
	st, _ := newTestRedis(t)
	ctx := context.Background()

	_, err := st.Enqueue(ctx, "u1", types.GlobalPool, t0)
	require.NoError(t, err)
	_, err = st.Enqueue(ctx, "u1", "friday-night", t0.Add(time.Second))
	require.NoError(t, err)

	n, _ := st.QueueSize(ctx, types.GlobalPool)
	assert.EqualValues(t, 0, n)
	n, _ = st.QueueSize(ctx, "friday-night")
	assert.EqualValues(t, 1, n)

	e, err := st.Status(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "friday-night", e.Pool)
}

func TestPeekQueueOldestFirst(t *testing.T) {
	st, _ := newTestRedis(t)
	ctx := context.Background()

	for i, id := range []string{"c", "a", "b"} {
		_, err := st.Enqueue(ctx, id, types.GlobalPool, t0.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
	}
	got, err := st.PeekQueue(ctx, types.GlobalPool, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].UserID)
	assert.Equal(t, "a", got[1].UserID)
	assert.True(t, got[1].JoinedAt.Equal(t0.Add(time.Second)))
}

func TestDequeue(t *testing.T) {
	st, _ := newTestRedis(t)
	ctx := context.Background()

	_, err := st.Enqueue(ctx, "u1", types.GlobalPool, t0)
	require.NoError(t, err)

	removed, err := st.Dequeue(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = st.Dequeue(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, removed)

	_, err = st.Status(ctx, "u1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClaimPair(t *testing.T) {
	st, mr := newTestRedis(t)
	ctx := context.Background()

	for _, id := range []string{"u1", "u2", "u3"} {
		_, err := st.Enqueue(ctx, id, types.GlobalPool, t0)
		require.NoError(t, err)
	}

	ok, err := st.ClaimPair(ctx, types.GlobalPool, "u1", "u2", "chat-1", t0.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)

	e, err := st.Status(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusMatched, e.Status)
	assert.Equal(t, "chat-1", e.ChatID)
	assert.Equal(t, "u2", e.PartnerID)
	require.NotNil(t, e.MatchedAt)
	assert.True(t, e.MatchedAt.Equal(t0.Add(time.Minute)))
	assert.Equal(t, time.Hour, mr.TTL(entryKey("u1")))

	// u1 is no longer waiting, so a second claim involving u1 fails.
	ok, err = st.ClaimPair(ctx, types.GlobalPool, "u1", "u3", "chat-2", t0)
	require.NoError(t, err)
	assert.False(t, ok)

	e, err = st.Status(ctx, "u3")
	require.NoError(t, err)
	assert.Equal(t, types.StatusWaiting, e.Status)

	ok, err = st.ClaimPair(ctx, types.GlobalPool, "u3", "u3", "chat-3", t0)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClaimPairWrongPool(t *testing.T) {
	st, _ := newTestRedis(t)
	ctx := context.Background()

	_, _ = st.Enqueue(ctx, "u1", types.GlobalPool, t0)
	_, _ = st.Enqueue(ctx, "u2", "friday-night", t0)

	ok, err := st.ClaimPair(ctx, types.GlobalPool, "u1", "u2", "chat-1", t0)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRequeueRestoresWaiting(t *testing.T) {
	st, _ := newTestRedis(t)
	ctx := context.Background()

	a, _ := st.Enqueue(ctx, "u1", types.GlobalPool, t0)
	b, _ := st.Enqueue(ctx, "u2", types.GlobalPool, t0.Add(time.Second))
	ok, err := st.ClaimPair(ctx, types.GlobalPool, "u1", "u2", "chat-1", t0)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, st.Requeue(ctx, "chat-1", a, b))

	got, err := st.PeekQueue(ctx, types.GlobalPool, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "u1", got[0].UserID)

	e, err := st.Status(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, types.StatusWaiting, e.Status)
	assert.Empty(t, e.ChatID)
	assert.True(t, e.JoinedAt.Equal(t0.Add(time.Second)))
}

func TestRequeueSkipsUsersWhoLeft(t *testing.T) {
	st, _ := newTestRedis(t)
	ctx := context.Background()

	a, _ := st.Enqueue(ctx, "u1", types.GlobalPool, t0)
	b, _ := st.Enqueue(ctx, "u2", types.GlobalPool, t0.Add(time.Second))
	ok, err := st.ClaimPair(ctx, types.GlobalPool, "u1", "u2", "chat-1", t0)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = st.Dequeue(ctx, "u1")
	require.NoError(t, err)
	require.NoError(t, st.Requeue(ctx, "chat-1", a, b))

	_, err = st.Status(ctx, "u1")
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := st.PeekQueue(ctx, types.GlobalPool, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "u2", got[0].UserID)

	// A different chat id restores nobody.
	c, _ := st.Enqueue(ctx, "u3", types.GlobalPool, t0.Add(2*time.Second))
	ok, err = st.ClaimPair(ctx, types.GlobalPool, "u2", "u3", "chat-2", t0)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, st.Requeue(ctx, "chat-1", b, c))

	e, err := st.Status(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, types.StatusMatched, e.Status)
	assert.Equal(t, "chat-2", e.ChatID)
	n, err := st.QueueSize(ctx, types.GlobalPool)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPruneStaleAndDrain(t *testing.T) {
	st, _ := newTestRedis(t)
	ctx := context.Background()

	_, _ = st.Enqueue(ctx, "old", types.GlobalPool, t0)
	_, _ = st.Enqueue(ctx, "edge", types.GlobalPool, t0.Add(10*time.Minute))
	_, _ = st.Enqueue(ctx, "new", types.GlobalPool, t0.Add(20*time.Minute))

	ids, err := st.PruneStale(ctx, types.GlobalPool, t0.Add(10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []string{"old"}, ids)

	_, err = st.Status(ctx, "old")
	assert.ErrorIs(t, err, ErrNotFound)

	ids, err = st.DrainPool(ctx, types.GlobalPool)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"edge", "new"}, ids)

	ids, err = st.DrainPool(ctx, types.GlobalPool)
	require.NoError(t, err)
	assert.Empty(t, ids)
}
