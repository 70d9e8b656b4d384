package backend

import (
	"context"
	"net/url"
	"sort"
	"time"

	"plazenbot/pkg/logx"
)

const taskTable = "tasks"

// TasksInRange returns the account's tasks with scheduled time in
// [start, end), ascending. The store is asked to sort, but the result is
// re-sorted locally: chronological order is a correctness requirement of the
// agenda, not an optimization.
//
// Malformed rows (missing title or scheduled time) are skipped with a
// warning so one bad row cannot blank out the whole day.
func (c *Client) TasksInRange(ctx context.Context, accountID string, start, end time.Time) ([]TaskRecord, error) {
	return c.tasksInRange(ctx, accountID, start, end, false)
}

// PendingTasksInRange is TasksInRange restricted to incomplete tasks. Used
// by the reminder sweep.
func (c *Client) PendingTasksInRange(ctx context.Context, accountID string, start, end time.Time) ([]TaskRecord, error) {
	return c.tasksInRange(ctx, accountID, start, end, true)
}

func (c *Client) tasksInRange(ctx context.Context, accountID string, start, end time.Time, pendingOnly bool) ([]TaskRecord, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("user_id", "eq."+accountID)
	q.Set("scheduled_time", "gte."+start.UTC().Format(time.RFC3339))
	q.Add("scheduled_time", "lt."+end.UTC().Format(time.RFC3339))
	q.Set("order", "scheduled_time.asc")
	if pendingOnly {
		q.Set("is_completed", "eq.false")
	}

	var rows []taskRow
	if err := c.get(ctx, taskTable, q, &rows); err != nil {
		return nil, err
	}

	out := make([]TaskRecord, 0, len(rows))
	for _, r := range rows {
		rec, err := r.validate()
		if err != nil {
			c.log.Warn("skipping malformed task row",
				logx.String("account_id", accountID),
				logx.Err(err),
			)
			continue
		}
		out = append(out, rec)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ScheduledAt.Before(out[j].ScheduledAt)
	})
	return out, nil
}
