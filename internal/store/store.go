package store

import (
	"context"
	"errors"
	"time"

	"github.com/heartline/matchqueue/pkg/types"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrLimitReached = errors.New("daily match limit reached")
)

// QueueStore holds the matchmaking pools.
type QueueStore interface {
	Enqueue(ctx context.Context, userID, pool string, now time.Time) (types.QueueEntry, error)
	Dequeue(ctx context.Context, userID string) (bool, error)
	Status(ctx context.Context, userID string) (types.QueueEntry, error)
	PeekQueue(ctx context.Context, pool string, n int) ([]types.QueueEntry, error)
	QueueSize(ctx context.Context, pool string) (int64, error)
	ClaimPair(ctx context.Context, pool, a, b, chatID string, now time.Time) (bool, error)
	Requeue(ctx context.Context, chatID string, entries ...types.QueueEntry) error
	PruneStale(ctx context.Context, pool string, cutoff time.Time) ([]string, error)
	DrainPool(ctx context.Context, pool string) ([]string, error)
	Ping(ctx context.Context) error
	Close() error
}

type ChatStore interface {
	CreateChat(ctx context.Context, chat *types.Chat) error
	GetChat(ctx context.Context, chatID string) (*types.Chat, error)
	ListChatsByUser(ctx context.Context, userID string, limit int) ([]types.Chat, error)
}

// UsageStore counts matches per user per calendar day.
type UsageStore interface {
	GetUsage(ctx context.Context, userID, day string) (int, error)
	IncrementUsage(ctx context.Context, userID, day string, limit int) (int, error)
	DeleteUsageBefore(ctx context.Context, day string) (int64, error)
}
