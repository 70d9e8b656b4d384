// Package schedule turns task rows into the daily agenda text.
package schedule

import (
	"fmt"
	"strings"
	"time"

	"plazenbot/internal/backend"
	"plazenbot/pkg/tgui"
)

// NoTasksToday is the fixed reply for an empty agenda.
const NoTasksToday = "You have no tasks scheduled for today. ✨"

// DayBounds returns the half-open UTC day [start, start+24h) containing ref.
func DayBounds(ref time.Time) (start, end time.Time) {
	ref = ref.UTC()
	start = time.Date(ref.Year(), ref.Month(), ref.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.Add(24 * time.Hour)
}

// FormatAgenda renders one HTML line per task in input order: status glyph,
// HH:MM in UTC, the escaped title, and a "(N min)" suffix when the task has
// a duration. It is total: an empty input renders the no-tasks message.
func FormatAgenda(tasks []backend.TaskRecord) string {
	if len(tasks) == 0 {
		return NoTasksToday
	}

	var b strings.Builder
	for i, t := range tasks {
		if i > 0 {
			b.WriteByte('\n')
		}
		status := "🔲"
		if t.Completed {
			status = "✅"
		}
		b.WriteString(status)
		b.WriteByte(' ')
		b.WriteString(tgui.B(t.ScheduledAt.UTC().Format("15:04")).String())
		b.WriteString(" - ")
		b.WriteString(tgui.Esc(t.Title).String())
		if t.DurationMinutes != nil {
			b.WriteString(fmt.Sprintf(" (%d min)", *t.DurationMinutes))
		}
	}
	return b.String()
}
