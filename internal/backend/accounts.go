package backend

import (
	"context"
	"net/url"
	"strings"

	"plazenbot/pkg/logx"
)

const accountTable = "UserSettings"

// AccountLinkByChatID resolves a chat identity to its linked account.
//
// Zero matching rows (or a row without a user id) is ErrNoLinkedAccount.
// More than one row violates the "chat id determines at most one account"
// invariant and is reported as ErrAmbiguousLink after logging.
func (c *Client) AccountLinkByChatID(ctx context.Context, chatID string) (AccountLink, error) {
	q := url.Values{}
	q.Set("select", "user_id,telegram_id,notifications")
	q.Set("telegram_id", "eq."+chatID)

	var rows []accountRow
	if err := c.get(ctx, accountTable, q, &rows); err != nil {
		return AccountLink{}, err
	}

	if len(rows) > 1 {
		c.log.Warn("multiple account links for one chat id",
			logx.String("chat_id", chatID),
			logx.Int("rows", len(rows)),
		)
		return AccountLink{}, ErrAmbiguousLink
	}
	if len(rows) == 0 || strings.TrimSpace(rows[0].UserID) == "" {
		return AccountLink{}, ErrNoLinkedAccount
	}

	r := rows[0]
	return AccountLink{
		AccountID:     r.UserID,
		ChatID:        r.TelegramID,
		Notifications: r.Notifications,
	}, nil
}

// ReminderRecipients lists account links that opted into notifications.
// Rows missing either side of the link are skipped with a warning.
func (c *Client) ReminderRecipients(ctx context.Context) ([]AccountLink, error) {
	q := url.Values{}
	q.Set("select", "user_id,telegram_id,notifications")
	q.Set("notifications", "eq.true")

	var rows []accountRow
	if err := c.get(ctx, accountTable, q, &rows); err != nil {
		return nil, err
	}

	out := make([]AccountLink, 0, len(rows))
	for _, r := range rows {
		if strings.TrimSpace(r.UserID) == "" || strings.TrimSpace(r.TelegramID) == "" {
			c.log.Warn("skipping incomplete account link", logx.String("account_id", r.UserID))
			continue
		}
		out = append(out, AccountLink{
			AccountID:     r.UserID,
			ChatID:        r.TelegramID,
			Notifications: r.Notifications,
		})
	}
	return out, nil
}
