package match

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/heartline/matchqueue/internal/arena"
	"github.com/heartline/matchqueue/internal/limits"
	"github.com/heartline/matchqueue/internal/logger"
	"github.com/heartline/matchqueue/internal/metrics"
	"github.com/heartline/matchqueue/internal/store"
	"github.com/heartline/matchqueue/pkg/types"
	"go.uber.org/zap"
)

// Pairing: take up to Batch of the oldest waiters in a pool, shuffle them
// and pair the first two. One pair per pool per pass.

type Notifier interface {
	Notify(userID string, ev types.Event)
}

type Options struct {
	Batch    int
	Interval time.Duration
}

type Matchmaker struct {
	st       store.QueueStore
	chats    store.ChatStore
	limits   *limits.Service
	hub      Notifier
	schedule *arena.Schedule
	log      *zap.Logger

	batch    int
	interval time.Duration

	shuffle func([]types.QueueEntry)
	newID   func() string
	now     func() time.Time
}

func NewMatchmaker(st store.QueueStore, chats store.ChatStore, lim *limits.Service, hub Notifier, schedule *arena.Schedule, log *zap.Logger, opts Options) *Matchmaker {
	if opts.Batch < 2 {
		opts.Batch = 10
	}
	if opts.Interval <= 0 {
		opts.Interval = 500 * time.Millisecond
	}
	return &Matchmaker{
		st:       st,
		chats:    chats,
		limits:   lim,
		hub:      hub,
		schedule: schedule,
		log:      log,
		batch:    opts.Batch,
		interval: opts.Interval,
		shuffle: func(es []types.QueueEntry) {
			rand.Shuffle(len(es), func(i, j int) { es[i], es[j] = es[j], es[i] })
		},
		newID: uuid.NewString,
		now:   time.Now,
	}
}

func (m *Matchmaker) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.RunOnce(ctx, m.now()); err != nil && ctx.Err() == nil {
				m.log.Error("matchmaking pass failed", zap.Error(err))
			}
		}
	}
}

// Pools lists the pools open at now: the global pool plus every live arena.
func (m *Matchmaker) Pools(now time.Time) []string {
	pools := []string{types.GlobalPool}
	if m.schedule != nil {
		for _, a := range m.schedule.Active(now) {
			pools = append(pools, a.ID)
		}
	}
	return pools
}

// RunOnce makes a single matchmaking pass over every open pool and returns
// the number of pairs formed.
func (m *Matchmaker) RunOnce(ctx context.Context, now time.Time) (int, error) {
	var (
		formed int
		errs   []error
	)
	for _, pool := range m.Pools(now) {
		ok, err := m.matchPool(ctx, pool, now)
		if err != nil {
			errs = append(errs, fmt.Errorf("pool %s: %w", pool, err))
			continue
		}
		if ok {
			formed++
		}
	}
	return formed, errors.Join(errs...)
}

func (m *Matchmaker) matchPool(ctx context.Context, pool string, now time.Time) (bool, error) {
	if size, err := m.st.QueueSize(ctx, pool); err == nil {
		metrics.QueueSize.WithLabelValues(pool).Set(float64(size))
	}

	waiting, err := m.st.PeekQueue(ctx, pool, m.batch)
	if err != nil {
		return false, err
	}
	if len(waiting) < 2 {
		return false, nil
	}

	m.shuffle(waiting)
	a, b := waiting[0], waiting[1]
	chatID := m.newID()

	claimed, err := m.st.ClaimPair(ctx, pool, a.UserID, b.UserID, chatID, now)
	if err != nil {
		return false, err
	}
	if !claimed {
		metrics.ClaimConflicts.Inc()
		m.log.Debug("pair already claimed", logger.WithPool(pool), zap.String("a", a.UserID), zap.String("b", b.UserID))
		return false, nil
	}

	chat := &types.Chat{ID: chatID, UserA: a.UserID, UserB: b.UserID, Pool: pool, CreatedAt: now.UTC()}
	if err := m.chats.CreateChat(ctx, chat); err != nil {
		if rqErr := m.st.Requeue(ctx, chatID, a, b); rqErr != nil {
			m.log.Error("requeue after failed chat insert", logger.WithPool(pool), zap.Error(rqErr))
		}
		return false, err
	}

	for _, uid := range []string{a.UserID, b.UserID} {
		if _, err := m.limits.Consume(ctx, uid, now); err != nil {
			m.log.Warn("match usage not recorded", logger.WithUserID(uid), zap.Error(err))
		}
	}

	metrics.MatchesTotal.WithLabelValues(pool).Inc()
	m.notify(chat, now)
	m.log.Info("match formed",
		logger.WithPool(pool),
		logger.WithChatID(chatID),
		zap.String("user_a", a.UserID),
		zap.String("user_b", b.UserID),
	)
	return true, nil
}

func (m *Matchmaker) notify(chat *types.Chat, now time.Time) {
	if m.hub == nil {
		return
	}
	for _, uid := range []string{chat.UserA, chat.UserB} {
		m.hub.Notify(uid, types.Event{Type: "match_found", Payload: types.MatchFound{
			ChatID:    chat.ID,
			PartnerID: chat.Partner(uid),
			Pool:      chat.Pool,
			MatchedAt: now.UTC(),
		}})
	}
}
