// Package arena computes the recurring weekly windows in which arena pools
// are open for matchmaking.
package arena

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrNotFound = errors.New("arena not found")

const week = 7 * 24 * time.Hour

// Arena is a weekly timed group event.
type Arena struct {
	ID       string
	Name     string
	Weekday  time.Weekday
	Hour     int
	Minute   int
	Duration time.Duration
	Location *time.Location
}

func (a Arena) Validate() error {
	if strings.TrimSpace(a.ID) == "" {
		return errors.New("arena id is required")
	}
	if a.Weekday < time.Sunday || a.Weekday > time.Saturday {
		return fmt.Errorf("arena %s: invalid weekday %d", a.ID, a.Weekday)
	}
	if a.Hour < 0 || a.Hour > 23 || a.Minute < 0 || a.Minute > 59 {
		return fmt.Errorf("arena %s: invalid start %02d:%02d", a.ID, a.Hour, a.Minute)
	}
	if a.Duration <= 0 || a.Duration >= week {
		return fmt.Errorf("arena %s: duration must be positive and shorter than a week", a.ID)
	}
	return nil
}

func (a Arena) loc() *time.Location {
	if a.Location == nil {
		return time.UTC
	}
	return a.Location
}

// StartLabel renders the start time as HH:MM.
func (a Arena) StartLabel() string { return fmt.Sprintf("%02d:%02d", a.Hour, a.Minute) }

// NextStart returns the first occurrence of the arena's weekday and start
// time at or after now, in the arena's location.
func (a Arena) NextStart(now time.Time) time.Time {
	t := now.In(a.loc())
	days := (int(a.Weekday) - int(t.Weekday()) + 7) % 7
	start := time.Date(t.Year(), t.Month(), t.Day()+days, a.Hour, a.Minute, 0, 0, a.loc())
	if start.Before(now) {
		start = start.AddDate(0, 0, 7)
	}
	return start
}

// Window returns the window containing now, or the next one if now is
// outside every window.
func (a Arena) Window(now time.Time) (time.Time, time.Time) {
	next := a.NextStart(now)
	prev := next.AddDate(0, 0, -7)
	if end := prev.Add(a.Duration); now.Before(end) && !now.Before(prev) {
		return prev, end
	}
	return next, next.Add(a.Duration)
}

func (a Arena) IsActive(now time.Time) bool {
	start, end := a.Window(now)
	return !now.Before(start) && now.Before(end)
}

// Countdown describes the time until the next window, or "live" while one
// is open.
func (a Arena) Countdown(now time.Time) string {
	if a.IsActive(now) {
		return "live"
	}
	return FormatCountdown(a.NextStart(now).Sub(now))
}

// FormatCountdown renders d as "2d 3h 15m". Zero day and hour parts are
// omitted; anything under a minute is "<1m".
func FormatCountdown(d time.Duration) string {
	if d < time.Minute {
		return "<1m"
	}
	days := int(d / (24 * time.Hour))
	d -= time.Duration(days) * 24 * time.Hour
	hours := int(d / time.Hour)
	d -= time.Duration(hours) * time.Hour
	minutes := int(d / time.Minute)

	var parts []string
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	parts = append(parts, fmt.Sprintf("%dm", minutes))
	return strings.Join(parts, " ")
}
