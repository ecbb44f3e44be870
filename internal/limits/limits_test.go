package limits

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/heartline/matchqueue/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUsage(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "limits.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

var now = time.Date(2026, 10, 17, 22, 30, 0, 0, time.UTC)

func TestCheckAndConsume(t *testing.T) {
	svc := New(newUsage(t), 2, time.UTC)
	ctx := context.Background()

	st, err := svc.Check(ctx, "u1", now)
	require.NoError(t, err)
	assert.Equal(t, 0, st.Used)
	assert.Equal(t, 2, st.Remaining)
	assert.True(t, st.CanMatch)
	assert.True(t, st.ResetsAt.Equal(time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)))

	st, err = svc.Consume(ctx, "u1", now)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Remaining)

	st, err = svc.Consume(ctx, "u1", now)
	require.NoError(t, err)
	assert.Equal(t, 0, st.Remaining)
	assert.False(t, st.CanMatch)

	st, err = svc.Consume(ctx, "u1", now)
	assert.ErrorIs(t, err, ErrLimitReached)
	assert.Equal(t, 2, st.Used)

	// New day, new allowance.
	st, err = svc.Check(ctx, "u1", now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, st.Used)
	assert.True(t, st.CanMatch)
}

func TestDayUsesLocation(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	svc := New(newUsage(t), 5, tokyo)

	// 22:30 UTC is 07:30 next day in Tokyo.
	assert.Equal(t, "2026-10-18", svc.Day(now))
	assert.True(t, svc.ResetsAt(now).Equal(time.Date(2026, 10, 19, 0, 0, 0, 0, tokyo)))
}

func TestUnlimited(t *testing.T) {
	svc := New(newUsage(t), 0, nil)
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		_, err := svc.Consume(ctx, "u1", now)
		require.NoError(t, err)
	}
	st, err := svc.Check(ctx, "u1", now)
	require.NoError(t, err)
	assert.True(t, st.Unlimited)
	assert.True(t, st.CanMatch)
	assert.Equal(t, 50, st.Used)
}

func TestPurgeBefore(t *testing.T) {
	usage := newUsage(t)
	svc := New(usage, 5, time.UTC)
	ctx := context.Background()

	_, err := svc.Consume(ctx, "u1", now.AddDate(0, 0, -40))
	require.NoError(t, err)
	_, err = svc.Consume(ctx, "u1", now)
	require.NoError(t, err)

	n, err := svc.PurgeBefore(ctx, now, 30)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}
