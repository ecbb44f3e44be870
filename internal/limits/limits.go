// Package limits enforces the per-user daily match allowance.
package limits

import (
	"context"
	"errors"
	"time"

	"github.com/heartline/matchqueue/internal/store"
)

// ErrLimitReached is returned by Consume when the user is at the daily cap.
var ErrLimitReached = store.ErrLimitReached

const dayLayout = "2006-01-02"

type Status struct {
	Used      int       `json:"used"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	CanMatch  bool      `json:"can_match"`
	ResetsAt  time.Time `json:"resets_at"`
	Unlimited bool      `json:"unlimited,omitempty"`
}

type Service struct {
	usage store.UsageStore
	limit int
	loc   *time.Location
}

// New returns a limit service. A dailyLimit of 0 disables the cap. Days roll
// over at midnight in loc.
func New(usage store.UsageStore, dailyLimit int, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	if dailyLimit < 0 {
		dailyLimit = 0
	}
	return &Service{usage: usage, limit: dailyLimit, loc: loc}
}

func (s *Service) Limit() int { return s.limit }

// Day is the usage bucket that now falls into.
func (s *Service) Day(now time.Time) string { return now.In(s.loc).Format(dayLayout) }

// ResetsAt is the next local midnight after now.
func (s *Service) ResetsAt(now time.Time) time.Time {
	t := now.In(s.loc)
	return time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, s.loc)
}

func (s *Service) Check(ctx context.Context, userID string, now time.Time) (Status, error) {
	used, err := s.usage.GetUsage(ctx, userID, s.Day(now))
	if err != nil {
		return Status{}, err
	}
	st := Status{Used: used, Limit: s.limit, ResetsAt: s.ResetsAt(now)}
	if s.limit == 0 {
		st.Unlimited = true
		st.CanMatch = true
		return st, nil
	}
	st.Remaining = max(0, s.limit-used)
	st.CanMatch = st.Remaining > 0
	return st, nil
}

// Consume records one match for the user today.
func (s *Service) Consume(ctx context.Context, userID string, now time.Time) (Status, error) {
	used, err := s.usage.IncrementUsage(ctx, userID, s.Day(now), s.limit)
	if err != nil && !errors.Is(err, store.ErrLimitReached) {
		return Status{}, err
	}
	st := Status{Used: used, Limit: s.limit, ResetsAt: s.ResetsAt(now), Unlimited: s.limit == 0}
	if s.limit == 0 {
		st.CanMatch = true
	} else {
		st.Remaining = max(0, s.limit-used)
		st.CanMatch = st.Remaining > 0
	}
	return st, err
}

// PurgeBefore drops usage rows older than keepDays days before now.
func (s *Service) PurgeBefore(ctx context.Context, now time.Time, keepDays int) (int64, error) {
	cutoff := now.In(s.loc).AddDate(0, 0, -keepDays).Format(dayLayout)
	return s.usage.DeleteUsageBefore(ctx, cutoff)
}
