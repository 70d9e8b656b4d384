package backend

import (
	"errors"
	"strings"
	"time"
)

// AccountLink binds a Telegram chat identity to a Plazen account. Rows are
// created by the Plazen app; this bot only ever reads them.
type AccountLink struct {
	AccountID     string
	ChatID        string
	Notifications bool
}

// TaskRecord is one validated task row. DurationMinutes is nil when the
// task has no duration set.
type TaskRecord struct {
	AccountID       string
	Title           string
	ScheduledAt     time.Time
	Completed       bool
	DurationMinutes *int
}

type accountRow struct {
	UserID        string `json:"user_id"`
	TelegramID    string `json:"telegram_id"`
	Notifications bool   `json:"notifications"`
}

type taskRow struct {
	UserID          string  `json:"user_id"`
	Title           *string `json:"title"`
	ScheduledTime   *string `json:"scheduled_time"`
	IsCompleted     bool    `json:"is_completed"`
	DurationMinutes *int    `json:"duration_minutes"`
}

// scheduledTimeFormats covers timestamptz rows (RFC 3339) plus naive
// timestamps the Plazen app historically wrote; naive values are read as UTC.
var scheduledTimeFormats = []string{
	time.RFC3339,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
}

// validate converts a raw row into a TaskRecord, failing closed when a field
// the formatter depends on is missing or unreadable.
func (r taskRow) validate() (TaskRecord, error) {
	if r.Title == nil || strings.TrimSpace(*r.Title) == "" {
		return TaskRecord{}, errors.New("task row missing title")
	}
	if r.ScheduledTime == nil || strings.TrimSpace(*r.ScheduledTime) == "" {
		return TaskRecord{}, errors.New("task row missing scheduled_time")
	}

	var at time.Time
	var err error
	raw := strings.TrimSpace(*r.ScheduledTime)
	for _, layout := range scheduledTimeFormats {
		at, err = time.Parse(layout, raw)
		if err == nil {
			break
		}
	}
	if err != nil {
		return TaskRecord{}, errors.New("task row has unreadable scheduled_time")
	}

	return TaskRecord{
		AccountID:       r.UserID,
		Title:           *r.Title,
		ScheduledAt:     at.UTC(),
		Completed:       r.IsCompleted,
		DurationMinutes: r.DurationMinutes,
	}, nil
}
