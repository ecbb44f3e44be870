package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/heartline/matchqueue/pkg/types"
	"github.com/redis/go-redis/v9"
)

const (
	queuePrefix = "mm:queue:" // ZSET per pool: score=joined_at millis, member=userID
	entryPrefix = "mm:entry:" // HASH per user: status, pool, joined_at, chat_id, partner_id, matched_at
)

func queueKey(pool string) string   { return queuePrefix + pool }
func entryKey(userID string) string { return entryPrefix + userID }

// Joining while already waiting in the same pool keeps the original join
// time. Joining another pool moves the user.
var enqueueScript = redis.NewScript(`
local status = redis.call('HGET', KEYS[1], 'status')
if status == 'waiting' then
	local old = redis.call('HGET', KEYS[1], 'pool')
	if old == ARGV[2] then
		return redis.call('HGET', KEYS[1], 'joined_at')
	end
	redis.call('ZREM', ARGV[4] .. old, ARGV[1])
end
redis.call('DEL', KEYS[1])
redis.call('HSET', KEYS[1], 'status', 'waiting', 'pool', ARGV[2], 'joined_at', ARGV[3])
redis.call('ZADD', KEYS[2], ARGV[3], ARGV[1])
return ARGV[3]
`)

var dequeueScript = redis.NewScript(`
local removed = 0
if redis.call('HGET', KEYS[1], 'status') == 'waiting' then
	local pool = redis.call('HGET', KEYS[1], 'pool')
	removed = redis.call('ZREM', ARGV[2] .. pool, ARGV[1])
end
redis.call('DEL', KEYS[1])
return removed
`)

// Both users must still be waiting in the pool; otherwise nothing changes.
var claimScript = redis.NewScript(`
if not redis.call('ZSCORE', KEYS[1], ARGV[1]) or not redis.call('ZSCORE', KEYS[1], ARGV[2]) then
	return 0
end
redis.call('ZREM', KEYS[1], ARGV[1], ARGV[2])
redis.call('HSET', KEYS[2], 'status', 'matched', 'chat_id', ARGV[3], 'partner_id', ARGV[2], 'matched_at', ARGV[4])
redis.call('HSET', KEYS[3], 'status', 'matched', 'chat_id', ARGV[3], 'partner_id', ARGV[1], 'matched_at', ARGV[4])
redis.call('EXPIRE', KEYS[2], ARGV[5])
redis.call('EXPIRE', KEYS[3], ARGV[5])
return 1
`)

var requeueScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'status') ~= 'matched' or redis.call('HGET', KEYS[1], 'chat_id') ~= ARGV[4] then
	return 0
end
redis.call('DEL', KEYS[1])
redis.call('HSET', KEYS[1], 'status', 'waiting', 'pool', ARGV[2], 'joined_at', ARGV[3])
redis.call('ZADD', KEYS[2], ARGV[3], ARGV[1])
return 1
`)

var removeRangeScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
for _, id in ipairs(ids) do
	redis.call('ZREM', KEYS[1], id)
	redis.call('DEL', ARGV[2] .. id)
end
return ids
`)

type RedisStore struct {
	rdb        *redis.Client
	matchedTTL time.Duration
}

func NewRedisClient(addr, password string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
}

// NewRedisStore wraps rdb. Matched entries stay readable for matchedTTL so
// clients polling their status can pick up the chat.
func NewRedisStore(rdb *redis.Client, matchedTTL time.Duration) *RedisStore {
	if matchedTTL <= 0 {
		matchedTTL = time.Hour
	}
	return &RedisStore{rdb: rdb, matchedTTL: matchedTTL}
}

func (s *RedisStore) Close() error { return s.rdb.Close() }

func (s *RedisStore) Ping(ctx context.Context) error { return s.rdb.Ping(ctx).Err() }

func (s *RedisStore) Enqueue(ctx context.Context, userID, pool string, now time.Time) (types.QueueEntry, error) {
	raw, err := enqueueScript.Run(ctx, s.rdb,
		[]string{entryKey(userID), queueKey(pool)},
		userID, pool, now.UnixMilli(), queuePrefix,
	).Text()
	if err != nil {
		return types.QueueEntry{}, fmt.Errorf("enqueue %s: %w", userID, err)
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return types.QueueEntry{}, fmt.Errorf("enqueue %s: bad joined_at %q", userID, raw)
	}
	return types.QueueEntry{
		UserID:   userID,
		Pool:     pool,
		Status:   types.StatusWaiting,
		JoinedAt: time.UnixMilli(ms).UTC(),
	}, nil
}

// Dequeue removes the user from whatever pool they wait in and clears any
// matched status. It reports whether the user was still waiting.
func (s *RedisStore) Dequeue(ctx context.Context, userID string) (bool, error) {
	n, err := dequeueScript.Run(ctx, s.rdb, []string{entryKey(userID)}, userID, queuePrefix).Int()
	if err != nil {
		return false, fmt.Errorf("dequeue %s: %w", userID, err)
	}
	return n > 0, nil
}

func (s *RedisStore) Status(ctx context.Context, userID string) (types.QueueEntry, error) {
	fields, err := s.rdb.HGetAll(ctx, entryKey(userID)).Result()
	if err != nil {
		return types.QueueEntry{}, err
	}
	if len(fields) == 0 {
		return types.QueueEntry{}, ErrNotFound
	}
	e := types.QueueEntry{
		UserID:    userID,
		Pool:      fields["pool"],
		Status:    fields["status"],
		ChatID:    fields["chat_id"],
		PartnerID: fields["partner_id"],
	}
	if ms, err := strconv.ParseInt(fields["joined_at"], 10, 64); err == nil {
		e.JoinedAt = time.UnixMilli(ms).UTC()
	}
	if ms, err := strconv.ParseInt(fields["matched_at"], 10, 64); err == nil {
		t := time.UnixMilli(ms).UTC()
		e.MatchedAt = &t
	}
	return e, nil
}

// PeekQueue returns up to n waiting entries, oldest first.
func (s *RedisStore) PeekQueue(ctx context.Context, pool string, n int) ([]types.QueueEntry, error) {
	zs, err := s.rdb.ZRangeWithScores(ctx, queueKey(pool), 0, int64(n-1)).Result()
	if err != nil {
		return nil, err
	}
	res := make([]types.QueueEntry, 0, len(zs))
	for _, z := range zs {
		id, _ := z.Member.(string)
		res = append(res, types.QueueEntry{
			UserID:   id,
			Pool:     pool,
			Status:   types.StatusWaiting,
			JoinedAt: time.UnixMilli(int64(z.Score)).UTC(),
		})
	}
	return res, nil
}

func (s *RedisStore) QueueSize(ctx context.Context, pool string) (int64, error) {
	return s.rdb.ZCard(ctx, queueKey(pool)).Result()
}

// ClaimPair atomically moves a and b from waiting to matched. It returns
// false if either user already left the pool.
func (s *RedisStore) ClaimPair(ctx context.Context, pool, a, b, chatID string, now time.Time) (bool, error) {
	if a == b {
		return false, nil
	}
	n, err := claimScript.Run(ctx, s.rdb,
		[]string{queueKey(pool), entryKey(a), entryKey(b)},
		a, b, chatID, now.UnixMilli(), int64(s.matchedTTL/time.Second),
	).Int()
	if err != nil {
		return false, fmt.Errorf("claim pair: %w", err)
	}
	return n == 1, nil
}

// Requeue puts entries back as waiting with their original join time. Only
// users still matched to chatID are restored, so a user who left after the
// claim stays gone.
func (s *RedisStore) Requeue(ctx context.Context, chatID string, entries ...types.QueueEntry) error {
	for _, e := range entries {
		err := requeueScript.Run(ctx, s.rdb,
			[]string{entryKey(e.UserID), queueKey(e.Pool)},
			e.UserID, e.Pool, e.JoinedAt.UnixMilli(), chatID,
		).Err()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("requeue %s: %w", e.UserID, err)
		}
	}
	return nil
}

// PruneStale drops waiters who joined before cutoff.
func (s *RedisStore) PruneStale(ctx context.Context, pool string, cutoff time.Time) ([]string, error) {
	return s.removeRange(ctx, pool, "("+strconv.FormatInt(cutoff.UnixMilli(), 10))
}

// DrainPool drops every waiter in the pool.
func (s *RedisStore) DrainPool(ctx context.Context, pool string) ([]string, error) {
	return s.removeRange(ctx, pool, "+inf")
}

func (s *RedisStore) removeRange(ctx context.Context, pool, upper string) ([]string, error) {
	ids, err := removeRangeScript.Run(ctx, s.rdb, []string{queueKey(pool)}, upper, entryPrefix).StringSlice()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("remove from %s: %w", pool, err)
	}
	return ids, nil
}
