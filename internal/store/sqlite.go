package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/heartline/matchqueue/pkg/types"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists chats and daily match usage.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Single writer keeps the bounded usage upsert free of SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS chats (
			id TEXT PRIMARY KEY,
			user_a TEXT NOT NULL,
			user_b TEXT NOT NULL,
			pool TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chats_user_a ON chats(user_a)`,
		`CREATE INDEX IF NOT EXISTS idx_chats_user_b ON chats(user_b)`,
		`CREATE TABLE IF NOT EXISTS match_usage (
			user_id TEXT NOT NULL,
			day TEXT NOT NULL,
			count INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (user_id, day)
		)`,
	}
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateChat(ctx context.Context, chat *types.Chat) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chats (id, user_a, user_b, pool, created_at) VALUES (?, ?, ?, ?, ?)`,
		chat.ID, chat.UserA, chat.UserB, chat.Pool, chat.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("create chat: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetChat(ctx context.Context, chatID string) (*types.Chat, error) {
	var (
		c  types.Chat
		ms int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_a, user_b, pool, created_at FROM chats WHERE id = ?`, chatID,
	).Scan(&c.ID, &c.UserA, &c.UserB, &c.Pool, &ms)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	c.CreatedAt = time.UnixMilli(ms).UTC()
	return &c, nil
}

// ListChatsByUser returns the user's chats, newest first.
func (s *SQLiteStore) ListChatsByUser(ctx context.Context, userID string, limit int) ([]types.Chat, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_a, user_b, pool, created_at FROM chats
		 WHERE user_a = ? OR user_b = ?
		 ORDER BY created_at DESC, id
		 LIMIT ?`, userID, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	chats := []types.Chat{}
	for rows.Next() {
		var (
			c  types.Chat
			ms int64
		)
		if err := rows.Scan(&c.ID, &c.UserA, &c.UserB, &c.Pool, &ms); err != nil {
			return nil, err
		}
		c.CreatedAt = time.UnixMilli(ms).UTC()
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

func (s *SQLiteStore) GetUsage(ctx context.Context, userID, day string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count FROM match_usage WHERE user_id = ? AND day = ?`, userID, day,
	).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return n, err
}

// IncrementUsage adds one match to the user's count for day and returns the
// new count. With limit > 0 the count never exceeds limit; an increment at
// the cap returns ErrLimitReached and leaves the row unchanged.
func (s *SQLiteStore) IncrementUsage(ctx context.Context, userID, day string, limit int) (int, error) {
	var (
		n   int
		err error
	)
	if limit > 0 {
		err = s.db.QueryRowContext(ctx,
			`INSERT INTO match_usage (user_id, day, count) VALUES (?, ?, 1)
			 ON CONFLICT(user_id, day) DO UPDATE SET count = count + 1
			 WHERE match_usage.count < ?
			 RETURNING count`, userID, day, limit,
		).Scan(&n)
	} else {
		err = s.db.QueryRowContext(ctx,
			`INSERT INTO match_usage (user_id, day, count) VALUES (?, ?, 1)
			 ON CONFLICT(user_id, day) DO UPDATE SET count = count + 1
			 RETURNING count`, userID, day,
		).Scan(&n)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return limit, ErrLimitReached
	}
	if err != nil {
		return 0, fmt.Errorf("increment usage: %w", err)
	}
	return n, nil
}

// DeleteUsageBefore removes usage rows for days strictly before day.
func (s *SQLiteStore) DeleteUsageBefore(ctx context.Context, day string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM match_usage WHERE day < ?`, day)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
