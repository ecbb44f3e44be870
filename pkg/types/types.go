package types

import "time"

// GlobalPool is the always-open matchmaking pool.
const GlobalPool = "global"

const (
	StatusWaiting = "waiting"
	StatusMatched = "matched"
)

type JoinRequest struct {
	UserID string `json:"user_id"`
	Pool   string `json:"pool,omitempty"`
}

// QueueEntry is a user's row in the matchmaking queue.
type QueueEntry struct {
	UserID    string     `json:"user_id"`
	Pool      string     `json:"pool"`
	Status    string     `json:"status"`
	JoinedAt  time.Time  `json:"joined_at"`
	ChatID    string     `json:"chat_id,omitempty"`
	PartnerID string     `json:"partner_id,omitempty"`
	MatchedAt *time.Time `json:"matched_at,omitempty"`
}

type Chat struct {
	ID        string    `json:"id"`
	UserA     string    `json:"user_a"`
	UserB     string    `json:"user_b"`
	Pool      string    `json:"pool"`
	CreatedAt time.Time `json:"created_at"`
}

// Partner returns the other participant, or "" if userID is not in the chat.
func (c Chat) Partner(userID string) string {
	switch userID {
	case c.UserA:
		return c.UserB
	case c.UserB:
		return c.UserA
	}
	return ""
}

type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type MatchFound struct {
	ChatID    string    `json:"chat_id"`
	PartnerID string    `json:"partner_id"`
	Pool      string    `json:"pool"`
	MatchedAt time.Time `json:"matched_at"`
}
